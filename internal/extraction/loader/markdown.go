package loader

import (
	"context"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"

	"github.com/lk2023060901/llm-field-extractor/internal/extraction/types"
	"github.com/russross/blackfriday/v2"
)

var (
	reScript    = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	reLineBreak = regexp.MustCompile(`(?i)<br\s*/?>|</p>|</li>|</tr>`)
	reHeading   = regexp.MustCompile(`(?i)</h[1-6]>`)
	reTag       = regexp.MustCompile(`<[^>]+>`)
	reBlankRuns = regexp.MustCompile(`\n{3,}`)
)

// MarkdownLoader renders markdown and keeps its text.
type MarkdownLoader struct{}

func NewMarkdownLoader() *MarkdownLoader {
	return &MarkdownLoader{}
}

func (l *MarkdownLoader) Load(ctx context.Context, reader io.Reader) (*types.Document, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read markdown content: %w", err)
	}
	src, enc, err := Decode(data)
	if err != nil {
		return nil, err
	}

	rendered := blackfriday.Run([]byte(src))
	return &types.Document{
		Content:  htmlToText(string(rendered)),
		Encoding: enc,
		Metadata: map[string]string{"loader": "markdown"},
	}, nil
}

func (l *MarkdownLoader) SupportedTypes() []FileType {
	return []FileType{FileTypeMd}
}

// htmlToText strips tags and keeps blocks apart with blank lines, so the
// paragraph chunker still sees them.
func htmlToText(s string) string {
	s = reScript.ReplaceAllString(s, "")
	s = reLineBreak.ReplaceAllString(s, "\n\n")
	s = reHeading.ReplaceAllString(s, "\n\n")
	s = reTag.ReplaceAllString(s, "")
	s = html.UnescapeString(s)

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	s = strings.Join(lines, "\n")
	s = reBlankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

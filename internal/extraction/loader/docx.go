package loader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/lk2023060901/llm-field-extractor/internal/extraction/types"
	"github.com/unidoc/unioffice/common/license"
	"github.com/unidoc/unioffice/document"
)

var (
	licenseOnce sync.Once
	licenseErr  error
)

// DOCXLoader reads Word documents paragraph by paragraph.
type DOCXLoader struct {
	licensed bool
}

// NewDOCXLoader applies the metered license key once per process when one is given.
func NewDOCXLoader(licenseKey string) *DOCXLoader {
	if licenseKey == "" {
		return &DOCXLoader{}
	}
	licenseOnce.Do(func() {
		licenseErr = license.SetMeteredKey(licenseKey)
	})
	return &DOCXLoader{licensed: true}
}

func (l *DOCXLoader) Load(ctx context.Context, reader io.Reader) (*types.Document, error) {
	if l.licensed && licenseErr != nil {
		return nil, fmt.Errorf("unioffice license: %w", licenseErr)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read DOCX data: %w", err)
	}

	doc, err := document.Read(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open DOCX document: %w", err)
	}
	defer doc.Close()

	// blank line between paragraphs keeps paragraph chunking meaningful
	paragraphs := make([]string, 0, len(doc.Paragraphs()))
	for _, para := range doc.Paragraphs() {
		var sb strings.Builder
		for _, run := range para.Runs() {
			sb.WriteString(run.Text())
		}
		if text := strings.TrimSpace(sb.String()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	}

	return &types.Document{
		Content:  strings.Join(paragraphs, "\n\n"),
		Encoding: EncodingUTF8,
		Metadata: map[string]string{"loader": "docx"},
	}, nil
}

func (l *DOCXLoader) SupportedTypes() []FileType {
	return []FileType{FileTypeDocx}
}

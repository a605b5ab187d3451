package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/lk2023060901/llm-field-extractor/internal/extraction/types"
)

// JSONLoader renders a JSON document as indented "key: value" lines.
type JSONLoader struct{}

func NewJSONLoader() *JSONLoader {
	return &JSONLoader{}
}

func (l *JSONLoader) Load(ctx context.Context, reader io.Reader) (*types.Document, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read json content: %w", err)
	}

	var data interface{}
	if err := json.Unmarshal(content, &data); err != nil {
		return nil, fmt.Errorf("failed to parse json: %w", err)
	}

	var sb strings.Builder
	writeJSON(&sb, data, 0)
	return &types.Document{
		Content:  strings.TrimRight(sb.String(), "\n"),
		Encoding: EncodingUTF8,
		Metadata: map[string]string{"loader": "json"},
	}, nil
}

func (l *JSONLoader) SupportedTypes() []FileType {
	return []FileType{FileTypeJSON}
}

// writeJSON sorts object keys so the output is stable.
func writeJSON(sb *strings.Builder, data interface{}, indent int) {
	pad := strings.Repeat("  ", indent)

	switch v := data.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			writeEntry(sb, pad+k+":", v[k], indent)
		}
	case []interface{}:
		for i, item := range v {
			writeEntry(sb, fmt.Sprintf("%s[%d]:", pad, i), item, indent)
		}
	default:
		fmt.Fprintf(sb, "%s%s\n", pad, types.Stringify(v))
	}
}

func writeEntry(sb *strings.Builder, label string, value interface{}, indent int) {
	switch value.(type) {
	case map[string]interface{}, []interface{}:
		sb.WriteString(label + "\n")
		writeJSON(sb, value, indent+1)
	default:
		sb.WriteString(label + " " + types.Stringify(value) + "\n")
	}
}

package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/lk2023060901/llm-field-extractor/internal/extraction/types"
	"github.com/yuin/goldmark"
)

// Output formats.
const (
	FormatJSON     = "json"
	FormatText     = "text"
	FormatMarkdown = "md"
	FormatCSV      = "csv"
	FormatHTML     = "html"
	FormatXLSX     = "xlsx"
)

var formats = []string{FormatJSON, FormatText, FormatMarkdown, FormatCSV, FormatHTML, FormatXLSX}

// Formats lists every supported output format.
func Formats() []string {
	return append([]string(nil), formats...)
}

// Valid reports whether format is supported.
func Valid(format string) bool {
	format = strings.ToLower(format)
	for _, f := range formats {
		if f == format {
			return true
		}
	}
	return false
}

// Options control rendering.
type Options struct {
	// ListFields are rendered item by item, split on ListSeparator.
	ListFields    []string
	ListSeparator string
	// Provenance adds merge strategy and contributing chunks.
	Provenance bool
}

// OptionsFrom reads list settings off a run config.
func OptionsFrom(cfg types.RunConfig, provenance bool) Options {
	return Options{ListFields: cfg.ListFields, ListSeparator: cfg.ListSeparator, Provenance: provenance}
}

func (o Options) items(field, value string) ([]string, bool) {
	for _, f := range o.ListFields {
		if f == field {
			sep := o.ListSeparator
			if sep == "" {
				sep = types.DefaultListSeparator
			}
			return strings.Split(value, sep), true
		}
	}
	return nil, false
}

// ContentType returns the MIME type of format.
func ContentType(format string) string {
	switch strings.ToLower(format) {
	case FormatText:
		return "text/plain; charset=utf-8"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatHTML:
		return "text/html; charset=utf-8"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/json"
	}
}

// Extension returns the file extension for format, with the dot.
func Extension(format string) string {
	switch f := strings.ToLower(format); f {
	case FormatText:
		return ".txt"
	case FormatJSON, FormatMarkdown, FormatCSV, FormatHTML, FormatXLSX:
		return "." + f
	default:
		return ".json"
	}
}

// Format renders result. Unknown formats fall back to JSON.
func Format(result *types.Result, format string, opts Options) ([]byte, error) {
	switch strings.ToLower(format) {
	case FormatText:
		return []byte(Text(result, opts)), nil
	case FormatMarkdown:
		return []byte(Markdown(result, opts)), nil
	case FormatCSV:
		return CSV(result, opts)
	case FormatHTML:
		return HTML(result, opts)
	case FormatXLSX:
		return XLSX(result, opts)
	default:
		return JSON(result, opts)
	}
}

// JSON renders the values as an object in field order. With provenance it
// wraps them together with provenance, failed chunks and warnings.
func JSON(result *types.Result, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, field := range result.Order {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(field)
		v, _ := json.Marshal(result.Values[field])
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')

	if opts.Provenance {
		wrapped := struct {
			Fields       json.RawMessage             `json:"extracted_fields"`
			Provenance   map[string]types.Provenance `json:"provenance"`
			FailedChunks []int                       `json:"failed_chunks"`
			Warnings     []types.DateParseWarning    `json:"warnings,omitempty"`
		}{
			Fields:       buf.Bytes(),
			Provenance:   result.Provenance,
			FailedChunks: result.FailedChunks(),
			Warnings:     result.Warnings,
		}
		raw, err := json.Marshal(wrapped)
		if err != nil {
			return nil, fmt.Errorf("marshal result: %w", err)
		}
		buf.Reset()
		buf.Write(raw)
	}

	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", "  "); err != nil {
		return nil, fmt.Errorf("indent result: %w", err)
	}
	return out.Bytes(), nil
}

// Text renders one "field: value" line per field.
func Text(result *types.Result, opts Options) string {
	var lines []string
	for _, field := range result.Order {
		value := result.Values[field]
		if items, ok := opts.items(field, value); ok {
			lines = append(lines, field+":")
			for _, item := range items {
				lines = append(lines, "  - "+item)
			}
		} else {
			lines = append(lines, field+": "+value)
		}
		if opts.Provenance {
			lines = append(lines, "  ("+describe(result.Provenance[field])+")")
		}
	}
	return strings.Join(lines, "\n")
}

// Markdown renders an "Extracted Fields" document.
func Markdown(result *types.Result, opts Options) string {
	return markdown(result, opts, func(s string) string { return s })
}

func markdown(result *types.Result, opts Options, escape func(string) string) string {
	lines := []string{"# Extracted Fields", ""}
	for _, field := range result.Order {
		value := result.Values[field]
		if items, ok := opts.items(field, value); ok {
			lines = append(lines, "## "+escape(field))
			for _, item := range items {
				lines = append(lines, "- "+escape(item))
			}
			lines = append(lines, "")
		} else {
			lines = append(lines, "**"+escape(field)+"**: "+escape(value), "")
		}
		if opts.Provenance {
			lines = append(lines, "_"+escape(describe(result.Provenance[field]))+"_", "")
		}
	}
	if failed := result.FailedChunks(); len(failed) > 0 {
		lines = append(lines, fmt.Sprintf("Failed chunks: %v", failed), "")
	}
	for _, w := range result.Warnings {
		lines = append(lines, "> "+escape(w.String()), "")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n") + "\n"
}

// CSV renders a header row of field names and one row of values.
// List items are joined with "; ".
func CSV(result *types.Result, opts Options) ([]byte, error) {
	row := make([]string, len(result.Order))
	for i, field := range result.Order {
		value := result.Values[field]
		if items, ok := opts.items(field, value); ok {
			value = strings.Join(items, "; ")
		}
		row[i] = value
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(result.Order)
	_ = w.Write(row)
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	return buf.Bytes(), nil
}

const htmlPage = `<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>Extracted Fields</title>
<style>
body { font-family: Arial, sans-serif; margin: 20px; }
h1 { color: #333; }
h2 { color: #666; margin-top: 20px; }
</style>
</head>
<body>
%s</body>
</html>
`

// HTML renders the markdown output with goldmark inside a standalone page.
func HTML(result *types.Result, opts Options) ([]byte, error) {
	src := markdown(result, opts, html.EscapeString)

	var body bytes.Buffer
	if err := goldmark.Convert([]byte(src), &body); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}
	return []byte(fmt.Sprintf(htmlPage, body.String())), nil
}

func describe(p types.Provenance) string {
	s := fmt.Sprintf("strategy: %s, chunks: %v", p.Strategy, p.ContributingChunks)
	if len(p.Alternatives) > 0 {
		alts := make([]string, 0, len(p.Alternatives))
		for _, a := range p.Alternatives {
			alts = append(alts, fmt.Sprintf("%q from chunk %d", a.Value, a.ChunkIndex))
		}
		s += ", alternatives: " + strings.Join(alts, ", ")
	}
	if p.DateParseFailed {
		s += ", date not parsed"
	}
	return s
}

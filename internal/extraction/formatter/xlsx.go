package formatter

import (
	"fmt"
	"strings"

	"github.com/lk2023060901/llm-field-extractor/internal/extraction/types"
	"github.com/xuri/excelize/v2"
)

const (
	fieldsSheet   = "Extracted Fields"
	failuresSheet = "Failed Chunks"
)

// XLSX renders one row per field. Failed chunks go to a second sheet.
func XLSX(result *types.Result, opts Options) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", fieldsSheet); err != nil {
		return nil, err
	}

	headers := []string{"Field", "Value"}
	if opts.Provenance {
		headers = append(headers, "Strategy", "Contributing Chunks", "Alternatives")
	}
	writeRow(f, fieldsSheet, 1, toAny(headers))

	for i, field := range result.Order {
		value := result.Values[field]
		if items, ok := opts.items(field, value); ok {
			value = strings.Join(items, "\n")
		}
		row := []any{field, value}
		if opts.Provenance {
			p := result.Provenance[field]
			alts := make([]string, 0, len(p.Alternatives))
			for _, a := range p.Alternatives {
				alts = append(alts, fmt.Sprintf("%s (chunk %d)", a.Value, a.ChunkIndex))
			}
			row = append(row, p.Strategy, joinInts(p.ContributingChunks), strings.Join(alts, "; "))
		}
		writeRow(f, fieldsSheet, i+2, row)
	}
	_ = f.SetColWidth(fieldsSheet, "A", "A", 24)
	_ = f.SetColWidth(fieldsSheet, "B", "B", 48)

	if len(result.Failures) > 0 {
		if _, err := f.NewSheet(failuresSheet); err != nil {
			return nil, err
		}
		writeRow(f, failuresSheet, 1, []any{"Chunk", "Reason"})
		for i, fl := range result.Failures {
			writeRow(f, failuresSheet, i+2, []any{fl.ChunkIndex, fl.Reason})
		}
		_ = f.SetColWidth(failuresSheet, "B", "B", 60)
	}

	idx, _ := f.GetSheetIndex(fieldsSheet)
	f.SetActiveSheet(idx)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) {
	for col, v := range values {
		cell, _ := excelize.CoordinatesToCellName(col+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func toAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func joinInts(in []int) string {
	parts := make([]string, len(in))
	for i, n := range in {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ", ")
}

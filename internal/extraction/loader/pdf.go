package loader

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/lk2023060901/llm-field-extractor/internal/extraction/types"
)

// PDFLoader extracts page text with MuPDF.
type PDFLoader struct{}

func NewPDFLoader() *PDFLoader {
	return &PDFLoader{}
}

func (l *PDFLoader) Load(ctx context.Context, reader io.Reader) (*types.Document, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF data: %w", err)
	}

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	var sb strings.Builder
	pages := doc.NumPage()
	skipped := 0
	for i := 0; i < pages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := doc.Text(i)
		if err != nil {
			skipped++
			continue
		}
		sb.WriteString(strings.TrimSpace(text))
		sb.WriteString("\n\n")
	}

	return &types.Document{
		Content:  strings.TrimSpace(sb.String()),
		Encoding: EncodingUTF8,
		Metadata: map[string]string{
			"loader":        "pdf",
			"page_count":    strconv.Itoa(pages),
			"skipped_pages": strconv.Itoa(skipped),
		},
	}, nil
}

func (l *PDFLoader) SupportedTypes() []FileType {
	return []FileType{FileTypePdf}
}

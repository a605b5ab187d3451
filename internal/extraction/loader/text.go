package loader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/lk2023060901/llm-field-extractor/internal/extraction/types"
	"golang.org/x/text/encoding/charmap"
)

const (
	EncodingUTF8   = "utf-8"
	EncodingLatin1 = "latin-1"
	EncodingCP1252 = "cp1252"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// TextLoader reads plain text in utf-8, latin-1 or cp1252.
type TextLoader struct{}

func NewTextLoader() *TextLoader {
	return &TextLoader{}
}

func (l *TextLoader) Load(ctx context.Context, reader io.Reader) (*types.Document, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read text content: %w", err)
	}
	text, enc, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return &types.Document{
		Content:  text,
		Encoding: enc,
		Metadata: map[string]string{"loader": "text"},
	}, nil
}

func (l *TextLoader) SupportedTypes() []FileType {
	return []FileType{FileTypeTxt}
}

// Decode returns data as a string together with the encoding it was read in.
// Valid utf-8 wins. Otherwise bytes in 0x80-0x9F, which are control codes in
// latin-1 but printable in cp1252, select cp1252, and latin-1 is used for the rest.
func Decode(data []byte) (string, string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return string(data), EncodingUTF8, nil
	}

	enc, name := charmap.ISO8859_1, EncodingLatin1
	for _, b := range data {
		if b >= 0x80 && b <= 0x9F {
			enc, name = charmap.Windows1252, EncodingCP1252
			break
		}
	}

	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", "", fmt.Errorf("decode %s: %w", name, err)
	}
	return string(out), name, nil
}

package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lk2023060901/llm-field-extractor/internal/extraction/types"
	"github.com/lk2023060901/llm-field-extractor/internal/pkg/logger"
	"go.uber.org/zap"
)

// FileType is a supported input extension without the dot.
type FileType string

const (
	FileTypeTxt  FileType = "txt"
	FileTypeMd   FileType = "md"
	FileTypePdf  FileType = "pdf"
	FileTypeDocx FileType = "docx"
	FileTypeJSON FileType = "json"
)

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrEmptyFile       = errors.New("file has no readable text")
)

// Loader turns raw file bytes into document text.
type Loader interface {
	Load(ctx context.Context, reader io.Reader) (*types.Document, error)

	SupportedTypes() []FileType
}

// Options configure the loaders.
type Options struct {
	// OfficeLicense is the unioffice metered key used by the docx loader.
	OfficeLicense string
}

// Factory picks a loader by file extension.
type Factory struct {
	loaders map[FileType]Loader
	logger  *logger.Logger
}

func NewFactory(opts Options, lgr *logger.Logger) *Factory {
	if lgr == nil {
		lgr = logger.L()
	}
	f := &Factory{loaders: make(map[FileType]Loader), logger: lgr.Named("loader")}

	f.register(NewTextLoader())
	f.register(NewMarkdownLoader())
	f.register(NewPDFLoader())
	f.register(NewDOCXLoader(opts.OfficeLicense))
	f.register(NewJSONLoader())
	return f
}

func (f *Factory) register(l Loader) {
	for _, t := range l.SupportedTypes() {
		f.loaders[t] = l
	}
}

// TypeOf returns the file type of name, from its extension.
func TypeOf(name string) FileType {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if ext == "markdown" {
		return FileTypeMd
	}
	if ext == "text" {
		return FileTypeTxt
	}
	return FileType(ext)
}

// ForFile returns the loader for name.
func (f *Factory) ForFile(name string) (Loader, error) {
	t := TypeOf(name)
	l, ok := f.loaders[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, t)
	}
	return l, nil
}

// SupportedTypes lists every registered type, sorted.
func (f *Factory) SupportedTypes() []FileType {
	out := make([]FileType, 0, len(f.loaders))
	for t := range f.loaders {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Load reads name from reader with the matching loader.
func (f *Factory) Load(ctx context.Context, name string, reader io.Reader) (*types.Document, error) {
	l, err := f.ForFile(name)
	if err != nil {
		return nil, err
	}
	doc, err := l.Load(ctx, reader)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	if strings.TrimSpace(doc.Content) == "" {
		return nil, fmt.Errorf("load %s: %w", name, ErrEmptyFile)
	}
	doc.Source = name

	f.logger.WithContext(ctx).Info("document loaded",
		zap.String("source", name),
		zap.String("type", string(TypeOf(name))),
		zap.String("encoding", doc.Encoding),
		zap.Int("bytes", len(doc.Content)),
	)
	return doc, nil
}

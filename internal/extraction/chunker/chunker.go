package chunker

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lk2023060901/llm-field-extractor/internal/extraction/types"
)

// Chunker splits a document into ordered, possibly overlapping chunks.
// Implementations are pure: the same text always yields the same chunks.
type Chunker interface {
	Chunk(text string) []types.Chunk

	Method() string
}

// Config selects and parameterizes a chunker.
type Config struct {
	Method       string
	Size         int // words per chunk
	Overlap      int // words repeated between consecutive chunks
	MinChunkSize int // words; shorter trailing windows are folded into the previous chunk
	Counter      TokenCounter
}

// New validates cfg and returns the matching chunker.
func New(cfg Config) (Chunker, error) {
	if cfg.Size <= 0 {
		return nil, &types.ConfigError{Field: "chunk_size", Reason: "must be greater than 0"}
	}
	if cfg.Overlap < 0 {
		return nil, &types.ConfigError{Field: "chunk_overlap", Reason: "must not be negative"}
	}
	if cfg.Overlap >= cfg.Size {
		return nil, &types.ConfigError{
			Field:  "chunk_overlap",
			Reason: fmt.Sprintf("must be less than chunk_size (%d >= %d)", cfg.Overlap, cfg.Size),
		}
	}
	if cfg.MinChunkSize < 0 {
		return nil, &types.ConfigError{Field: "min_chunk_size", Reason: "must not be negative"}
	}
	if cfg.Counter == nil {
		cfg.Counter = WordCounter{}
	}

	switch cfg.Method {
	case types.ChunkMethodWords, "":
		return &WordChunker{size: cfg.Size, overlap: cfg.Overlap, minSize: cfg.MinChunkSize, counter: cfg.Counter}, nil
	case types.ChunkMethodParagraphs:
		return &ParagraphChunker{size: cfg.Size, overlap: cfg.Overlap, counter: cfg.Counter}, nil
	default:
		return nil, &types.ConfigError{Field: "chunk_method", Reason: fmt.Sprintf("unsupported chunk method %q", cfg.Method)}
	}
}

// Chunk is a convenience wrapper counting tokens as words.
func Chunk(text, method string, size, overlap, minChunkSize int) ([]types.Chunk, error) {
	c, err := New(Config{Method: method, Size: size, Overlap: overlap, MinChunkSize: minChunkSize})
	if err != nil {
		return nil, err
	}
	return c.Chunk(text), nil
}

func emptyChunk() []types.Chunk {
	return []types.Chunk{{Index: 0, Text: "", StartOffset: 0, EndOffset: 0}}
}

// WordChunker cuts fixed-size word windows.
type WordChunker struct {
	size    int
	overlap int
	minSize int
	counter TokenCounter
}

func (c *WordChunker) Method() string {
	return types.ChunkMethodWords
}

func (c *WordChunker) Chunk(text string) []types.Chunk {
	words := strings.Fields(text)
	n := len(words)
	if n == 0 {
		return emptyChunk()
	}

	step := c.size - c.overlap
	chunks := make([]types.Chunk, 0, n/step+1)

	for start := 0; ; start += step {
		end := start + c.size
		if end > n {
			end = n
		}

		if end < n {
			next := start + step
			// the next window would be the last one and is too short: fold it in
			if next+c.size >= n && n-next < c.minSize {
				end = n
			}
		}

		chunkText := strings.Join(words[start:end], " ")
		chunks = append(chunks, types.Chunk{
			Index:       len(chunks),
			Text:        chunkText,
			StartOffset: start,
			EndOffset:   end,
			TokenCount:  c.counter.Count(chunkText),
		})

		if end == n {
			return chunks
		}
	}
}

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// ParagraphChunker keeps paragraphs intact and repeats trailing words of the
// previous chunk as a prefix of the next one.
type ParagraphChunker struct {
	size    int
	overlap int
	counter TokenCounter
}

func (c *ParagraphChunker) Method() string {
	return types.ChunkMethodParagraphs
}

type paragraph struct {
	words []string
	start int
	text  string
}

func splitParagraphs(text string) []paragraph {
	var out []paragraph
	pos := 0
	for _, raw := range paragraphBreak.Split(text, -1) {
		raw = strings.TrimSpace(raw)
		words := strings.Fields(raw)
		if len(words) == 0 {
			continue
		}
		out = append(out, paragraph{words: words, start: pos, text: raw})
		pos += len(words)
	}
	return out
}

func (c *ParagraphChunker) Chunk(text string) []types.Chunk {
	paras := splitParagraphs(text)
	if len(paras) == 0 {
		return emptyChunk()
	}

	var (
		chunks  []types.Chunk
		prefix  []string // overlap words carried from the previous chunk
		current []paragraph
		size    int
	)

	flush := func() {
		first := current[0]
		last := current[len(current)-1]

		parts := make([]string, 0, len(current)+1)
		if len(prefix) > 0 {
			parts = append(parts, strings.Join(prefix, " "))
		}
		var words []string
		words = append(words, prefix...)
		for _, p := range current {
			parts = append(parts, p.text)
			words = append(words, p.words...)
		}

		chunkText := strings.Join(parts, "\n\n")
		chunks = append(chunks, types.Chunk{
			Index:       len(chunks),
			Text:        chunkText,
			StartOffset: first.start - len(prefix),
			EndOffset:   last.start + len(last.words),
			TokenCount:  c.counter.Count(chunkText),
		})

		k := c.overlap
		if k > len(words) {
			k = len(words)
		}
		prefix = append([]string(nil), words[len(words)-k:]...)
		current = nil
		size = len(prefix)
	}

	for _, p := range paras {
		if len(current) > 0 && size+len(p.words) > c.size {
			flush()
		}
		current = append(current, p)
		size += len(p.words)
	}
	flush()

	return chunks
}

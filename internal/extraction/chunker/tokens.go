package chunker

import (
	"fmt"
	"strings"
	"sync"

	"github.com/lk2023060901/llm-field-extractor/internal/pkg/logger"
	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

const DefaultEncoding = "cl100k_base"

// TokenCounter measures chunk text for usage metrics.
type TokenCounter interface {
	Count(text string) int
}

// WordCounter counts whitespace separated words.
type WordCounter struct{}

func (WordCounter) Count(text string) int {
	return len(strings.Fields(text))
}

// TiktokenCounter counts BPE tokens the way OpenAI models do.
type TiktokenCounter struct {
	encoding *tiktoken.Tiktoken
}

// NewTiktokenCounter loads encoding (default cl100k_base).
func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to get encoding: %w", err)
	}
	return &TiktokenCounter{encoding: enc}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.encoding.Encode(text, nil, nil))
}

var (
	defaultOnce    sync.Once
	defaultCounter TokenCounter
)

// DefaultCounter returns a cl100k_base counter, or a WordCounter when the
// encoding cannot be loaded (tiktoken downloads its ranks on first use).
func DefaultCounter(log *logger.Logger) TokenCounter {
	defaultOnce.Do(func() {
		tc, err := NewTiktokenCounter(DefaultEncoding)
		if err != nil {
			if log == nil {
				log = logger.L()
			}
			log.Warn("tiktoken unavailable, counting words instead", zap.Error(err))
			defaultCounter = WordCounter{}
			return
		}
		defaultCounter = tc
	})
	return defaultCounter
}

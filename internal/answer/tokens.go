package answer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter measures and trims text in model tokens.
type TokenCounter interface {
	Count(text string) int
	Trim(text string, maxTokens int) string
}

type tiktokenCounter struct {
	encoding *tiktoken.Tiktoken
}

func newTiktokenCounter(encoding string) (*tiktokenCounter, error) {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken encoding %q: %w", encoding, err)
	}
	return &tiktokenCounter{encoding: enc}, nil
}

func (t *tiktokenCounter) Count(text string) int {
	return len(t.encoding.Encode(text, nil, nil))
}

func (t *tiktokenCounter) Trim(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	tokens := t.encoding.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return t.encoding.Decode(tokens[:maxTokens])
}

// estimateCounter assumes four runes per token. It is used when the BPE
// ranks cannot be loaded, e.g. on an offline host with an empty cache.
type estimateCounter struct{}

func (estimateCounter) Count(text string) int {
	n := len([]rune(text))
	return (n + 3) / 4
}

func (estimateCounter) Trim(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= maxTokens*4 {
		return text
	}
	return string(runes[:maxTokens*4])
}

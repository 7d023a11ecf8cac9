package processor

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer counts tokens in a piece of text.
type Tokenizer interface {
	Count(text string) int
}

// WordTokenizer approximates tokens as whitespace-separated words.
type WordTokenizer struct{}

func (WordTokenizer) Count(text string) int {
	return len(strings.Fields(text))
}

// TiktokenTokenizer counts BPE tokens. The encoding tables are fetched on
// first use unless a tiktoken offline loader is installed.
type TiktokenTokenizer struct {
	encoding *tiktoken.Tiktoken
}

func NewTiktokenTokenizer(encoding string) (*TiktokenTokenizer, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer %s: %w", encoding, err)
	}
	return &TiktokenTokenizer{encoding: enc}, nil
}

func (t *TiktokenTokenizer) Count(text string) int {
	return len(t.encoding.Encode(text, nil, nil))
}

// NewTokenizer resolves a tokenizer by name: "words" (or empty) or a
// tiktoken encoding such as "cl100k_base".
func NewTokenizer(name string) (Tokenizer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "words":
		return WordTokenizer{}, nil
	default:
		return NewTiktokenTokenizer(name)
	}
}

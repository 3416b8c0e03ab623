package llm

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the BPE used to estimate context size.
const DefaultEncoding = "cl100k_base"

type Tokenizer struct {
	encoding *tiktoken.Tiktoken
}

// NewTokenizer loads the named encoding. The BPE ranks are fetched and cached
// by tiktoken-go on first use.
func NewTokenizer(encoding string) (*Tokenizer, error) {
	tkm, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %s: %w", encoding, err)
	}
	return &Tokenizer{encoding: tkm}, nil
}

// Count returns the number of tokens in text.
func (t *Tokenizer) Count(text string) int {
	return len(t.encoding.Encode(text, nil, nil))
}

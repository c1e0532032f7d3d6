package tokenizer

import (
	"fmt"

	tiktoken "github.com/pkoukk/tiktoken-go"

	"llmhub/internal/domain"
)

// TikToken wraps tiktoken-go to implement domain.Tokenizer.
type TikToken struct {
	encoding *tiktoken.Tiktoken
}

// NewTikToken creates a new TikToken tokenizer with the given encoding name.
// Common encodings: "cl100k_base" (GPT-4/3.5), "o200k_base" (GPT-4o).
// Returns an error if the encoding is not recognized or cannot be loaded.
func NewTikToken(encodingName string) (*TikToken, error) {
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: unknown encoding %q: %w", encodingName, err)
	}
	return &TikToken{encoding: enc}, nil
}

// CountTokens returns the number of tokens in the given text.
func (t *TikToken) CountTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	return len(t.encoding.Encode(text, nil, nil)), nil
}

// Split cuts text into the sub-word pieces the encoding would produce. The
// pieces concatenate back to text.
func (t *TikToken) Split(text string) []string {
	if text == "" {
		return nil
	}
	ids := t.encoding.Encode(text, nil, nil)
	pieces := make([]string, 0, len(ids))
	for _, id := range ids {
		pieces = append(pieces, t.encoding.Decode([]int{id}))
	}
	return pieces
}

var _ domain.Tokenizer = (*TikToken)(nil)

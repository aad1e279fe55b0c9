package flow

import (
	"fmt"

	"github.com/hupe1980/todomesh/core"
	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates the number of tokens in a text.
type TokenCounter interface {
	Count(text string) int
}

// TiktokenCounter counts tokens with a BPE encoding from tiktoken-go.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter loads the named encoding ("cl100k_base" when empty).
func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("flow: load encoding %s: %w", encoding, err)
	}
	return &TiktokenCounter{enc: enc}, nil
}

// Count implements TokenCounter.
func (c *TiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// approxCounter assumes roughly four characters per token.
type approxCounter struct{}

func (approxCounter) Count(text string) int { return (len(text) + 3) / 4 }

// estimateTokens sums the token count of every text, call and result in turns.
func estimateTokens(c TokenCounter, turns []core.Content) int {
	total := 0
	for _, t := range turns {
		for _, p := range t.Parts {
			switch part := p.(type) {
			case core.TextPart:
				total += c.Count(part.Text)
			case core.FunctionCallPart:
				total += c.Count(part.FunctionCall.Name) + c.Count(part.FunctionCall.Arguments)
			case core.FunctionResponsePart:
				total += c.Count(part.FunctionResponse.Response)
			}
		}
	}
	return total
}

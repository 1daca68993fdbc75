// Package tokens counts tokens for context budgeting.
package tokens

import (
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// DefaultEncoding is used when the model has no known tiktoken encoding.
const DefaultEncoding = "cl100k_base"

// runesPerToken is the rough ratio used when no tokenizer is available.
const runesPerToken = 4

// Counter counts the tokens in a piece of text.
type Counter interface {
	Count(text string) int
}

// CounterFunc adapts a function to Counter.
type CounterFunc func(string) int

// Count implements Counter.
func (f CounterFunc) Count(text string) int { return f(text) }

// Estimate approximates a token count from the rune count.
func Estimate(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + runesPerToken - 1) / runesPerToken
}

// Estimator is a Counter backed by Estimate.
var Estimator Counter = CounterFunc(Estimate)

// Tiktoken counts with a BPE encoding.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

// Count implements Counter.
func (t *Tiktoken) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(t.enc.Encode(text, nil, nil))
}

// NewTiktoken loads the encoding for model, or DefaultEncoding when the
// model is unknown.
func NewTiktoken(model string) (*Tiktoken, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(DefaultEncoding)
		if err != nil {
			return nil, err
		}
	}
	return &Tiktoken{enc: enc}, nil
}

// New returns a tiktoken counter for model, falling back to the rune-based
// Estimator when the encoding cannot be loaded.
func New(model string, logger *zap.Logger) Counter {
	t, err := NewTiktoken(model)
	if err != nil {
		logger.Warn("tiktoken unavailable, estimating tokens from rune count",
			zap.String("model", model),
			zap.Error(err),
		)
		return Estimator
	}
	return t
}

package chunker

import (
	"fmt"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// RuneSizer measures text in Unicode code points.
type RuneSizer struct{}

// Size returns the rune count of text.
func (RuneSizer) Size(text string) int {
	return utf8.RuneCountInString(text)
}

// TokenSizer measures text in BPE tokens.
type TokenSizer struct {
	enc *tiktoken.Tiktoken
}

// NewTokenSizer loads the named tiktoken encoding (for example
// "cl100k_base"). The BPE ranks are fetched once and cached under
// TIKTOKEN_CACHE_DIR; a failed load returns ErrChunkerUnavailable.
func NewTokenSizer(encoding string) (*TokenSizer, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("%w: loading token encoding %q: %v", ErrChunkerUnavailable, encoding, err)
	}
	return &TokenSizer{enc: enc}, nil
}

// Size returns the token count of text.
func (s *TokenSizer) Size(text string) int {
	return len(s.enc.EncodeOrdinary(text))
}

// NewSizer returns the sizer named by kind: "chars" or "tokens".
func NewSizer(kind, encoding string) (Sizer, error) {
	switch kind {
	case "", "chars":
		return RuneSizer{}, nil
	case "tokens":
		return NewTokenSizer(encoding)
	default:
		return nil, fmt.Errorf("%w: unknown sizer %q", ErrChunkerUnavailable, kind)
	}
}

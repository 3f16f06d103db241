// Package chunker splits text into bounded-size chunks for embedding.
//
// Text is segmented into sentences (Unicode UAX #29) and sentences are packed
// greedily into chunks no larger than the configured size. A sentence that is
// too large on its own is split on paragraph, line and word boundaries, and
// as a last resort between characters.
package chunker

import (
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/clipperhouse/uax29/v2/sentences"
	"github.com/tmc/langchaingo/textsplitter"
)

// ErrChunkerUnavailable is returned when the chunker cannot be configured or
// its size-measurement resource cannot be loaded.
var ErrChunkerUnavailable = errors.New("chunker unavailable")

// Sizer measures text in the unit chunk sizes are expressed in.
type Sizer interface {
	Size(text string) int
}

// Config configures a Chunker.
type Config struct {
	// MaxSize is the largest chunk size, in Sizer units.
	MaxSize int

	// Sizer measures chunks. Defaults to RuneSizer.
	Sizer Sizer
}

// Chunker produces chunks. It is immutable and safe for concurrent use.
type Chunker struct {
	max      int
	sizer    Sizer
	splitter textsplitter.RecursiveCharacter
}

// New creates a Chunker.
func New(cfg Config) (*Chunker, error) {
	if cfg.MaxSize < 1 {
		return nil, fmt.Errorf("%w: max size must be >= 1, got %d", ErrChunkerUnavailable, cfg.MaxSize)
	}
	sizer := cfg.Sizer
	if sizer == nil {
		sizer = RuneSizer{}
	}

	return &Chunker{
		max:   cfg.MaxSize,
		sizer: sizer,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(cfg.MaxSize),
			textsplitter.WithChunkOverlap(0),
			textsplitter.WithSeparators([]string{"\n\n", "\n", " ", ""}),
			textsplitter.WithKeepSeparator(true),
			textsplitter.WithLenFunc(sizer.Size),
		),
	}, nil
}

// MaxSize returns the configured chunk bound.
func (c *Chunker) MaxSize() int {
	return c.max
}

// Chunks returns the chunks of text in order. The sequence is lazy and can
// be ranged over any number of times.
//
// Chunks are trimmed of surrounding whitespace and never empty. Joining them
// reproduces text up to whitespace at chunk boundaries.
func (c *Chunker) Chunks(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		var current string

		it := sentences.FromString(text)
		for it.Next() {
			sentence := it.Value()

			if candidate := current + sentence; c.fits(candidate) {
				current = candidate
				continue
			}

			if !c.emit(current, yield) {
				return
			}
			current = ""

			if c.fits(sentence) {
				current = sentence
				continue
			}
			for _, piece := range c.splitOversized(sentence) {
				if !c.emit(piece, yield) {
					return
				}
			}
		}

		c.emit(current, yield)
	}
}

// Split collects Chunks into a slice.
func (c *Chunker) Split(text string) []string {
	var out []string
	for chunk := range c.Chunks(text) {
		out = append(out, chunk)
	}
	return out
}

func (c *Chunker) fits(s string) bool {
	return c.sizer.Size(strings.TrimSpace(s)) <= c.max
}

// emit yields s trimmed, skipping blanks. It reports whether to continue.
func (c *Chunker) emit(s string, yield func(string) bool) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return true
	}
	return yield(s)
}

// splitOversized breaks one sentence that exceeds the bound on its own.
//
// The splitter picks the break points. Its pieces are trimmed and, at the
// character level, can be a single rune, so adjacent pieces are packed
// back together using their spans in s, keeping the original spacing.
func (c *Chunker) splitOversized(s string) []string {
	pieces, err := c.splitter.SplitText(s)
	if err != nil || len(pieces) == 0 {
		pieces = []string{s}
	}

	var (
		out        []string
		offset     int
		start, end = -1, -1
	)
	flush := func() {
		if start >= 0 {
			out = append(out, s[start:end])
		}
		start, end = -1, -1
	}

	for _, p := range pieces {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		i := strings.Index(s[offset:], p)
		if i < 0 {
			flush()
			out = append(out, c.enforce(p)...)
			continue
		}
		pStart, pEnd := offset+i, offset+i+len(p)
		offset = pEnd

		if start >= 0 && c.fits(s[start:pEnd]) {
			end = pEnd
			continue
		}
		flush()
		if c.fits(p) {
			start, end = pStart, pEnd
			continue
		}
		out = append(out, c.enforce(p)...)
	}
	flush()
	return out
}

// enforce bisects p by runes until every part fits. Token counts are not
// additive, so merged splitter output can still overshoot by a token or two.
func (c *Chunker) enforce(p string) []string {
	if c.fits(p) {
		return []string{p}
	}
	runes := []rune(p)
	if len(runes) <= 1 {
		return []string{p}
	}
	mid := len(runes) / 2
	return append(c.enforce(string(runes[:mid])), c.enforce(string(runes[mid:]))...)
}

// Package embeddingstest provides a deterministic embeddings.Provider for tests.
package embeddingstest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/fyrsmithlabs/ragstore/internal/embeddings"
)

// Fake maps texts to fixed vectors. Unknown texts get Default, or fail when
// Default is nil. Errors set in Fail are returned for matching texts.
type Fake struct {
	ModelName string
	Vectors   map[string][]float32
	Default   []float32
	Fail      map[string]error

	// Block, when non-nil, is received from before every call returns.
	Block chan struct{}

	calls atomic.Int64
	mu    sync.Mutex
	seen  []string
}

// NewFake returns a Fake for the given model and vectors.
func NewFake(model string, vectors map[string][]float32) *Fake {
	return &Fake{ModelName: model, Vectors: vectors}
}

// EmbedDocuments returns one vector per text.
func (f *Fake) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", embeddings.ErrEmptyInput)
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := f.lookup(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// EmbedQuery returns the vector for text.
func (f *Fake) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", embeddings.ErrEmptyInput)
	}
	return f.lookup(ctx, text)
}

func (f *Fake) lookup(ctx context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.seen = append(f.seen, text)
	f.mu.Unlock()

	if f.Block != nil {
		select {
		case <-f.Block:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", embeddings.ErrEmbeddingFailed, ctx.Err())
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", embeddings.ErrEmbeddingFailed, err)
	}
	if err, ok := f.Fail[text]; ok {
		return nil, err
	}
	v, ok := f.Vectors[text]
	if !ok {
		if f.Default == nil {
			return nil, fmt.Errorf("%w: no vector for %q", embeddings.ErrEmbeddingFailed, text)
		}
		v = f.Default
	}
	return append([]float32(nil), v...), nil
}

// Model returns ModelName.
func (f *Fake) Model() string {
	return f.ModelName
}

// Dimension returns the width of any configured vector.
func (f *Fake) Dimension() int {
	for _, v := range f.Vectors {
		return len(v)
	}
	return len(f.Default)
}

// Close is a no-op.
func (f *Fake) Close() error {
	return nil
}

// Calls returns the number of texts embedded so far.
func (f *Fake) Calls() int {
	return int(f.calls.Load())
}

// Seen returns the embedded texts in call order.
func (f *Fake) Seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.seen...)
}

var _ embeddings.Provider = (*Fake)(nil)

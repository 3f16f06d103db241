package vectorstore

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/ragstore/internal/chunker"
	"github.com/fyrsmithlabs/ragstore/internal/embeddings"
	"github.com/fyrsmithlabs/ragstore/internal/extraction"
	"github.com/fyrsmithlabs/ragstore/internal/ranking"
)

var (
	// ErrNotFound is returned by Get and Delete for an absent id.
	ErrNotFound = errors.New("node not found")

	// ErrModelMismatch is returned by Load when the persisted model differs
	// from the provider's.
	ErrModelMismatch = errors.New("embedding model mismatch")

	// ErrInvalidConfig indicates invalid store configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidInput indicates an empty text or vector.
	ErrInvalidInput = errors.New("invalid input")
)

// Errors raised by the store's collaborators, re-exported so callers can
// match on one package.
var (
	ErrDimensionMismatch  = ranking.ErrDimensionMismatch
	ErrDegenerateVector   = ranking.ErrDegenerateVector
	ErrInvalidScore       = ranking.ErrInvalidScore
	ErrEmbeddingFailed    = embeddings.ErrEmbeddingFailed
	ErrExtractionFailed   = extraction.ErrExtractionFailed
	ErrChunkerUnavailable = chunker.ErrChunkerUnavailable
)

// PersistenceError reports a failed save or load.
type PersistenceError struct {
	Op   string // "persist" or "load"
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// errorKind labels err for metrics.
func errorKind(err error) string {
	var perr *PersistenceError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrModelMismatch):
		return "model_mismatch"
	case errors.As(err, &perr):
		return "persistence"
	case errors.Is(err, ErrDimensionMismatch):
		return "dimension_mismatch"
	case errors.Is(err, ErrDegenerateVector):
		return "degenerate_vector"
	case errors.Is(err, ErrInvalidScore):
		return "invalid_score"
	case errors.Is(err, ErrEmbeddingFailed):
		return "embedding"
	case errors.Is(err, ErrExtractionFailed):
		return "extraction"
	case errors.Is(err, ErrChunkerUnavailable):
		return "chunker"
	case errors.Is(err, ErrInvalidInput), errors.Is(err, embeddings.ErrEmptyInput):
		return "invalid_input"
	default:
		return "other"
	}
}

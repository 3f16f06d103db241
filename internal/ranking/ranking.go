// Package ranking scores candidate vectors against a query by cosine
// similarity and returns a stable top-k.
package ranking

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

var (
	// ErrDegenerateVector is returned when normalizing a zero vector.
	ErrDegenerateVector = errors.New("degenerate vector")

	// ErrInvalidScore is returned when a similarity score is NaN.
	ErrInvalidScore = errors.New("invalid similarity score")

	// ErrDimensionMismatch is returned when a candidate's width differs from the query's.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Candidate is one (id, vector) pair to rank.
type Candidate struct {
	ID     uint64
	Vector []float32
}

// Scored is a ranked candidate.
type Scored struct {
	ID    uint64
	Score float32
}

// Normalize returns v scaled to unit Euclidean length. v is not modified.
// NaN components propagate; Rank reports them as ErrInvalidScore.
func Normalize(v []float32) ([]float32, error) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return nil, fmt.Errorf("%w: zero norm over %d components", ErrDegenerateVector, len(v))
	}

	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out, nil
}

// Cosine returns the cosine similarity of a and b.
func Cosine(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}
	na, err := Normalize(a)
	if err != nil {
		return 0, err
	}
	nb, err := Normalize(b)
	if err != nil {
		return 0, err
	}
	return dot(na, nb)
}

// dot assumes len(a) == len(b).
func dot(a, b []float32) (float32, error) {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	if math.IsNaN(sum) {
		return 0, ErrInvalidScore
	}
	return float32(sum), nil
}

// Rank returns the k candidates most similar to query, best first.
//
// Candidates with equal scores keep their input order. k larger than the
// candidate count returns every candidate; k <= 0 returns nothing.
func Rank(query []float32, candidates []Candidate, k int) ([]Scored, error) {
	if k <= 0 || len(candidates) == 0 {
		return []Scored{}, nil
	}

	q, err := Normalize(query)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	scored := make([]Scored, 0, len(candidates))
	for _, c := range candidates {
		if len(c.Vector) != len(q) {
			return nil, fmt.Errorf("%w: candidate %d has %d dimensions, query has %d",
				ErrDimensionMismatch, c.ID, len(c.Vector), len(q))
		}
		v, err := Normalize(c.Vector)
		if err != nil {
			return nil, fmt.Errorf("candidate %d: %w", c.ID, err)
		}
		score, err := dot(q, v)
		if err != nil {
			return nil, fmt.Errorf("candidate %d: %w", c.ID, err)
		}
		scored = append(scored, Scored{ID: c.ID, Score: score})
	}

	slices.SortStableFunc(scored, func(a, b Scored) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})

	if k < len(scored) {
		scored = scored[:k]
	}
	return scored, nil
}

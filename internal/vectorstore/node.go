package vectorstore

import (
	"fmt"
	"math"
	"slices"

	"github.com/fyrsmithlabs/ragstore/internal/ranking"
)

// Filter is one metadata tag. Equality is exact and case-sensitive on both
// fields.
type Filter struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (f Filter) String() string {
	return f.Key + "=" + f.Value
}

// Node is one stored chunk.
type Node struct {
	TextID    uint64
	Sentence  string
	Embedding []float32
	Metadata  Filter
}

// clone returns a copy that shares no memory with n.
func (n Node) clone() Node {
	n.Embedding = slices.Clone(n.Embedding)
	return n
}

// Matches reports whether every filter equals the node's tag. With one tag
// per node, two different filters never both match.
func Matches(n Node, filters []Filter) bool {
	for _, f := range filters {
		if f != n.Metadata {
			return false
		}
	}
	return true
}

// checkVector rejects vectors that could never be ranked.
func checkVector(v []float32) error {
	if len(v) == 0 {
		return fmt.Errorf("%w: empty embedding", ErrInvalidInput)
	}
	for i, x := range v {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return fmt.Errorf("%w: non-finite component at %d", ErrDegenerateVector, i)
		}
	}
	if _, err := ranking.Normalize(v); err != nil {
		return err
	}
	return nil
}

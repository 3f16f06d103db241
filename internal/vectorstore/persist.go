package vectorstore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragstore/internal/embeddings"
)

const (
	// NodesFile holds the serialized node array.
	NodesFile = "nodes.json"

	// ModelFile holds the embedding model identifier as plain text.
	ModelFile = "model.txt"

	// StateFile holds the id counter, so ids freed by deletion stay retired
	// across a reload.
	StateFile = "state.json"
)

type state struct {
	NextID uint64 `json:"next_id"`
}

// record is the on-disk form of a Node. Embedding is an array of vectors
// holding exactly one element.
type record struct {
	Embedding [][]float32 `json:"embedding"`
	Sentence  string      `json:"sentence"`
	TextID    uint64      `json:"text_id"`
	Metadata  Filter      `json:"metadata"`
}

// Persist writes every node and the model identifier to dir, creating it if
// needed. An empty dir means Config.Dir. Failures are *PersistenceError.
func (s *Store) Persist(ctx context.Context, dir string) (err error) {
	if dir == "" {
		dir = s.config.Dir
	}
	ctx, span := s.tracer.Start(ctx, "vectorstore.Persist", trace.WithAttributes(
		attribute.String("store.dir", dir),
	))
	defer s.finish(ctx, span, "persist", time.Now(), &err)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.persistLocked(dir); err != nil {
		return err
	}
	s.logger.Debug(ctx, "store persisted", zap.String("dir", dir), zap.Int("nodes", len(s.nodes)))
	return nil
}

// persistLocked requires s.mu held in either mode.
func (s *Store) persistLocked(dir string) error {
	if dir == "" {
		return &PersistenceError{Op: "persist", Err: fmt.Errorf("%w: no directory configured", ErrInvalidConfig)}
	}

	records := make([]record, len(s.nodes))
	for i, n := range s.nodes {
		records[i] = record{
			Embedding: [][]float32{n.Embedding},
			Sentence:  n.Sentence,
			TextID:    n.TextID,
			Metadata:  n.Metadata,
		}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return &PersistenceError{Op: "persist", Path: dir, Err: err}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &PersistenceError{Op: "persist", Path: dir, Err: err}
	}
	nodesPath := filepath.Join(dir, NodesFile)
	if err := writeFileAtomic(nodesPath, data); err != nil {
		return &PersistenceError{Op: "persist", Path: nodesPath, Err: err}
	}
	modelPath := filepath.Join(dir, ModelFile)
	if err := writeFileAtomic(modelPath, []byte(s.model)); err != nil {
		return &PersistenceError{Op: "persist", Path: modelPath, Err: err}
	}
	statePath := filepath.Join(dir, StateFile)
	stateData, err := json.Marshal(state{NextID: s.nextID})
	if err != nil {
		return &PersistenceError{Op: "persist", Path: statePath, Err: err}
	}
	if err := writeFileAtomic(statePath, stateData); err != nil {
		return &PersistenceError{Op: "persist", Path: statePath, Err: err}
	}
	return nil
}

// writeFileAtomic never leaves a partially written file at path.
func writeFileAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp." + randomSuffix()

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

func randomSuffix() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Load reconstructs a store persisted in dir. The persisted model identifier
// must equal provider.Model(). Ids and node order are reproduced exactly.
// The next assigned id comes from the persisted counter, and is never lower
// than one past the highest persisted id. Without a counter file it is
// exactly that.
func Load(ctx context.Context, dir string, provider embeddings.Provider, cfg Config, opts ...Option) (_ *Store, err error) {
	s, err := New(provider, cfg, opts...)
	if err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "vectorstore.Load", trace.WithAttributes(
		attribute.String("store.dir", dir),
	))
	defer s.finish(ctx, span, "load", time.Now(), &err)

	modelPath := filepath.Join(dir, ModelFile)
	raw, err := os.ReadFile(modelPath)
	if err != nil {
		return nil, &PersistenceError{Op: "load", Path: modelPath, Err: err}
	}
	model := strings.TrimSpace(string(raw))
	if model != s.model {
		return nil, &PersistenceError{
			Op:   "load",
			Path: modelPath,
			Err:  fmt.Errorf("%w: persisted %q, provider %q", ErrModelMismatch, model, s.model),
		}
	}

	nodesPath := filepath.Join(dir, NodesFile)
	data, err := os.ReadFile(nodesPath)
	if err != nil {
		return nil, &PersistenceError{Op: "load", Path: nodesPath, Err: err}
	}
	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, &PersistenceError{Op: "load", Path: nodesPath, Err: err}
	}

	nodes, maxID, err := decodeRecords(records)
	if err != nil {
		return nil, &PersistenceError{Op: "load", Path: nodesPath, Err: err}
	}

	next, err := loadNextID(dir)
	if err != nil {
		return nil, err
	}

	s.nodes = nodes
	for i, n := range nodes {
		s.index[n.TextID] = i
	}
	s.nextID = max(maxID+1, next)

	span.SetAttributes(attribute.Int("store.nodes", len(nodes)))
	NodesTotal.Set(float64(len(nodes)))
	s.logger.Info(ctx, "store loaded",
		zap.String("dir", dir),
		zap.String("model", model),
		zap.Int("nodes", len(nodes)))
	return s, nil
}

// loadNextID returns 0 when no counter was persisted.
func loadNextID(dir string) (uint64, error) {
	statePath := filepath.Join(dir, StateFile)
	data, err := os.ReadFile(statePath)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, &PersistenceError{Op: "load", Path: statePath, Err: err}
	}
	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		return 0, &PersistenceError{Op: "load", Path: statePath, Err: err}
	}
	return st.NextID, nil
}

func decodeRecords(records []record) ([]Node, uint64, error) {
	nodes := make([]Node, 0, len(records))
	seen := make(map[uint64]struct{}, len(records))
	var maxID uint64
	dim := 0

	for i, r := range records {
		if len(r.Embedding) != 1 {
			return nil, 0, fmt.Errorf("record %d: %w: expected 1 embedding, got %d", i, ErrInvalidInput, len(r.Embedding))
		}
		v := r.Embedding[0]
		if err := checkVector(v); err != nil {
			return nil, 0, fmt.Errorf("record %d: %w", i, err)
		}
		if dim == 0 {
			dim = len(v)
		} else if len(v) != dim {
			return nil, 0, fmt.Errorf("record %d: %w: %d dimensions, expected %d", i, ErrDimensionMismatch, len(v), dim)
		}
		if r.TextID == 0 {
			return nil, 0, fmt.Errorf("record %d: %w: text id 0", i, ErrInvalidInput)
		}
		if _, dup := seen[r.TextID]; dup {
			return nil, 0, fmt.Errorf("record %d: %w: duplicate text id %d", i, ErrInvalidInput, r.TextID)
		}
		seen[r.TextID] = struct{}{}
		maxID = max(maxID, r.TextID)

		nodes = append(nodes, Node{
			TextID:    r.TextID,
			Sentence:  r.Sentence,
			Embedding: v,
			Metadata:  r.Metadata,
		})
	}
	return nodes, maxID, nil
}

// Open loads the store persisted in cfg.Dir, or creates an empty one when
// nothing has been persisted there yet.
func Open(ctx context.Context, provider embeddings.Provider, cfg Config, opts ...Option) (*Store, error) {
	if cfg.Dir != "" {
		_, err := os.Stat(filepath.Join(cfg.Dir, NodesFile))
		switch {
		case err == nil:
			return Load(ctx, cfg.Dir, provider, cfg, opts...)
		case !errors.Is(err, fs.ErrNotExist):
			return nil, &PersistenceError{Op: "load", Path: cfg.Dir, Err: err}
		}
	}
	return New(provider, cfg, opts...)
}

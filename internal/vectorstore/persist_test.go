package vectorstore_test

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragstore/internal/embeddings/embeddingstest"
	"github.com/fyrsmithlabs/ragstore/internal/vectorstore"
)

func TestPersist_RoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "store")
	s := newStore(t, nil, vectorstore.Config{TopK: 2})
	seed(t, s)
	ctx := context.Background()
	require.NoError(t, s.Delete(ctx, 2))

	require.NoError(t, s.Persist(ctx, dir))

	loaded, err := vectorstore.Load(ctx, dir, embeddingstest.NewFake(testModel, nil), vectorstore.Config{TopK: 2})
	require.NoError(t, err)
	assert.Equal(t, s.Nodes(), loaded.Nodes())
	assert.Equal(t, testModel, loaded.Model())

	id, err := loaded.AddVector(ctx, "west", []float32{-1, 0}, vectorstore.Filter{})
	require.NoError(t, err)
	assert.Equal(t, uint64(4), id)

	got, err := loaded.Query(ctx, []float32{1, 0}, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 3}, ids(got))
}

func TestPersist_FileFormat(t *testing.T) {
	dir := t.TempDir()
	s := newStore(t, nil, vectorstore.Config{})
	_, err := s.AddVector(context.Background(), "hello", []float32{0.5, 1.5}, vectorstore.Filter{Key: "k", Value: "v"})
	require.NoError(t, err)
	require.NoError(t, s.Persist(context.Background(), dir))

	data, err := os.ReadFile(filepath.Join(dir, vectorstore.NodesFile))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"embedding":[[0.5,1.5]],"sentence":"hello","text_id":1,"metadata":{"key":"k","value":"v"}}]`, string(data))

	model, err := os.ReadFile(filepath.Join(dir, vectorstore.ModelFile))
	require.NoError(t, err)
	assert.Equal(t, testModel, string(model))

	st, err := os.ReadFile(filepath.Join(dir, vectorstore.StateFile))
	require.NoError(t, err)
	assert.JSONEq(t, `{"next_id":2}`, string(st))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 3, "no temp files are left behind")
}

func TestPersist_IDsNotReusedAfterReload(t *testing.T) {
	ctx := context.Background()
	fake := embeddingstest.NewFake(testModel, nil)

	tests := []struct {
		name   string
		delete []uint64
		want   uint64
	}{
		{"highest id deleted", []uint64{3}, 4},
		{"all deleted", []uint64{1, 2, 3}, 4},
		{"nothing deleted", nil, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			s := newStore(t, fake, vectorstore.Config{})
			seed(t, s)
			for _, id := range tt.delete {
				require.NoError(t, s.Delete(ctx, id))
			}
			require.NoError(t, s.Persist(ctx, dir))

			loaded, err := vectorstore.Load(ctx, dir, fake, vectorstore.Config{})
			require.NoError(t, err)
			id, err := loaded.AddVector(ctx, "west", []float32{-1, 0}, vectorstore.Filter{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestLoad_StateFile(t *testing.T) {
	records := []rawRecord{{Embedding: [][]float32{{1, 0}}, Sentence: "a", TextID: 2}}
	fake := embeddingstest.NewFake(testModel, nil)

	t.Run("counter ahead of nodes", func(t *testing.T) {
		dir := writeStore(t, testModel, records)
		require.NoError(t, os.WriteFile(filepath.Join(dir, vectorstore.StateFile), []byte(`{"next_id":7}`), 0o600))

		s, err := vectorstore.Load(context.Background(), dir, fake, vectorstore.Config{})
		require.NoError(t, err)
		id, err := s.AddVector(context.Background(), "b", []float32{0, 1}, vectorstore.Filter{})
		require.NoError(t, err)
		assert.Equal(t, uint64(7), id)
	})

	t.Run("stale counter", func(t *testing.T) {
		dir := writeStore(t, testModel, records)
		require.NoError(t, os.WriteFile(filepath.Join(dir, vectorstore.StateFile), []byte(`{"next_id":1}`), 0o600))

		s, err := vectorstore.Load(context.Background(), dir, fake, vectorstore.Config{})
		require.NoError(t, err)
		id, err := s.AddVector(context.Background(), "b", []float32{0, 1}, vectorstore.Filter{})
		require.NoError(t, err)
		assert.Equal(t, uint64(3), id)
	})

	t.Run("corrupt counter", func(t *testing.T) {
		dir := writeStore(t, testModel, records)
		statePath := filepath.Join(dir, vectorstore.StateFile)
		require.NoError(t, os.WriteFile(statePath, []byte("{"), 0o600))

		_, err := vectorstore.Load(context.Background(), dir, fake, vectorstore.Config{})
		var perr *vectorstore.PersistenceError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, statePath, perr.Path)
	})
}

func TestPersist_EmptyStore(t *testing.T) {
	dir := t.TempDir()
	s := newStore(t, nil, vectorstore.Config{})
	require.NoError(t, s.Persist(context.Background(), dir))

	loaded, err := vectorstore.Load(context.Background(), dir, embeddingstest.NewFake(testModel, nil), vectorstore.Config{})
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.Len())

	id, err := loaded.AddVector(context.Background(), "x", []float32{1}, vectorstore.Filter{})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)
}

func TestPersist_Errors(t *testing.T) {
	s := newStore(t, nil, vectorstore.Config{})
	seed(t, s)

	t.Run("no directory", func(t *testing.T) {
		err := s.Persist(context.Background(), "")
		var perr *vectorstore.PersistenceError
		require.ErrorAs(t, err, &perr)
		assert.ErrorIs(t, err, vectorstore.ErrInvalidConfig)
	})

	t.Run("directory is a file", func(t *testing.T) {
		blocker := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(blocker, nil, 0o600))

		err := s.Persist(context.Background(), blocker)
		var perr *vectorstore.PersistenceError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, "persist", perr.Op)
		assert.Contains(t, err.Error(), blocker)
	})

	t.Run("uses configured directory", func(t *testing.T) {
		dir := t.TempDir()
		s := newStore(t, nil, vectorstore.Config{Dir: dir})
		require.NoError(t, s.Persist(context.Background(), ""))
		assert.FileExists(t, filepath.Join(dir, vectorstore.NodesFile))
	})
}

func writeStore(t *testing.T, model string, records any) string {
	t.Helper()
	dir := t.TempDir()
	data, err := json.Marshal(records)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, vectorstore.NodesFile), data, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, vectorstore.ModelFile), []byte(model), 0o600))
	return dir
}

type rawRecord struct {
	Embedding [][]float32        `json:"embedding"`
	Sentence  string             `json:"sentence"`
	TextID    uint64             `json:"text_id"`
	Metadata  vectorstore.Filter `json:"metadata"`
}

func TestLoad_Errors(t *testing.T) {
	fake := embeddingstest.NewFake(testModel, nil)

	tests := []struct {
		name    string
		dir     func(t *testing.T) string
		wantErr error
	}{
		{
			name:    "missing directory",
			dir:     func(t *testing.T) string { return filepath.Join(t.TempDir(), "absent") },
			wantErr: fs.ErrNotExist,
		},
		{
			name: "model mismatch",
			dir: func(t *testing.T) string {
				return writeStore(t, "other-model", []rawRecord{})
			},
			wantErr: vectorstore.ErrModelMismatch,
		},
		{
			name: "two vectors in one record",
			dir: func(t *testing.T) string {
				return writeStore(t, testModel, []rawRecord{{Embedding: [][]float32{{1}, {2}}, TextID: 1}})
			},
			wantErr: vectorstore.ErrInvalidInput,
		},
		{
			name: "no vector",
			dir: func(t *testing.T) string {
				return writeStore(t, testModel, []rawRecord{{Embedding: [][]float32{}, TextID: 1}})
			},
			wantErr: vectorstore.ErrInvalidInput,
		},
		{
			name: "duplicate ids",
			dir: func(t *testing.T) string {
				return writeStore(t, testModel, []rawRecord{
					{Embedding: [][]float32{{1, 0}}, TextID: 1},
					{Embedding: [][]float32{{0, 1}}, TextID: 1},
				})
			},
			wantErr: vectorstore.ErrInvalidInput,
		},
		{
			name: "mixed widths",
			dir: func(t *testing.T) string {
				return writeStore(t, testModel, []rawRecord{
					{Embedding: [][]float32{{1, 0}}, TextID: 1},
					{Embedding: [][]float32{{0, 1, 0}}, TextID: 2},
				})
			},
			wantErr: vectorstore.ErrDimensionMismatch,
		},
		{
			name: "zero vector",
			dir: func(t *testing.T) string {
				return writeStore(t, testModel, []rawRecord{{Embedding: [][]float32{{0, 0}}, TextID: 1}})
			},
			wantErr: vectorstore.ErrDegenerateVector,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := vectorstore.Load(context.Background(), tt.dir(t), fake, vectorstore.Config{})
			var perr *vectorstore.PersistenceError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, "load", perr.Op)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLoad_CorruptJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, vectorstore.NodesFile), []byte("[{"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, vectorstore.ModelFile), []byte(testModel), 0o600))

	_, err := vectorstore.Load(context.Background(), dir, embeddingstest.NewFake(testModel, nil), vectorstore.Config{})
	var perr *vectorstore.PersistenceError
	assert.ErrorAs(t, err, &perr)
}

func TestLoad_KeepsPersistedOrder(t *testing.T) {
	dir := writeStore(t, testModel+"\n", []rawRecord{
		{Embedding: [][]float32{{0, 1}}, Sentence: "b", TextID: 9},
		{Embedding: [][]float32{{1, 0}}, Sentence: "a", TextID: 4},
	})

	s, err := vectorstore.Load(context.Background(), dir, embeddingstest.NewFake(testModel, nil), vectorstore.Config{})
	require.NoError(t, err)
	assert.Equal(t, []uint64{9, 4}, ids(s.Nodes()))

	id, err := s.AddVector(context.Background(), "c", []float32{1, 1}, vectorstore.Filter{})
	require.NoError(t, err)
	assert.Equal(t, uint64(10), id)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	fake := embeddingstest.NewFake(testModel, nil)

	t.Run("fresh directory", func(t *testing.T) {
		s, err := vectorstore.Open(ctx, fake, vectorstore.Config{Dir: filepath.Join(t.TempDir(), "new")})
		require.NoError(t, err)
		assert.Equal(t, 0, s.Len())
	})

	t.Run("existing store", func(t *testing.T) {
		dir := t.TempDir()
		s := newStore(t, fake, vectorstore.Config{})
		seed(t, s)
		require.NoError(t, s.Persist(ctx, dir))

		opened, err := vectorstore.Open(ctx, fake, vectorstore.Config{Dir: dir})
		require.NoError(t, err)
		assert.Equal(t, 3, opened.Len())
	})

	t.Run("no directory", func(t *testing.T) {
		s, err := vectorstore.Open(ctx, fake, vectorstore.Config{})
		require.NoError(t, err)
		assert.Equal(t, 0, s.Len())
	})
}

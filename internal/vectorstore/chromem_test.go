package vectorstore_test

import (
	"context"
	"path/filepath"
	"testing"

	chromem "github.com/philippgille/chromem-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragstore/internal/embeddings/embeddingstest"
	"github.com/fyrsmithlabs/ragstore/internal/vectorstore"
)

func TestExportChromem(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "chromem")
	fake := embeddingstest.NewFake(testModel, map[string][]float32{"right": {1, 0}})
	s := newStore(t, fake, vectorstore.Config{})
	seed(t, s)
	ctx := context.Background()

	n, err := s.ExportChromem(ctx, dir, "")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	db, err := chromem.NewPersistentDB(dir, false)
	require.NoError(t, err)
	col := db.GetCollection(vectorstore.DefaultCollection, nil)
	require.NotNil(t, col)
	assert.Equal(t, 3, col.Count())

	res, err := col.QueryEmbedding(ctx, []float32{1, 0}, 1, map[string]string{"topic": "a"}, nil)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "1", res[0].ID)
	assert.Equal(t, "east", res[0].Content)
	assert.Equal(t, 0, fake.Calls(), "stored embeddings are exported without re-embedding")

	// stored vectors are untouched by chromem's normalization
	v, err := s.Get(3)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.7, 0.7}, v)
}

func TestExportChromem_Empty(t *testing.T) {
	s := newStore(t, nil, vectorstore.Config{})
	n, err := s.ExportChromem(context.Background(), t.TempDir(), "empty")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestExportChromem_NoDirectory(t *testing.T) {
	s := newStore(t, nil, vectorstore.Config{})
	_, err := s.ExportChromem(context.Background(), " ", "c")
	assert.ErrorIs(t, err, vectorstore.ErrInvalidConfig)
}

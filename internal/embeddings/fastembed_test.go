//go:build cgo

package embeddings

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipWithoutONNX(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping FastEmbed test in short mode")
	}
	if _, err := os.Stat("/usr/lib/libonnxruntime.so"); os.IsNotExist(err) && os.Getenv("ONNX_PATH") == "" {
		t.Skip("ONNX runtime not available, skipping FastEmbed test")
	}
}

func TestNewFastEmbedProvider_UnsupportedModel(t *testing.T) {
	_, err := NewFastEmbedProvider(FastEmbedConfig{Model: "not-a-model"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestFastEmbedProvider_Embed(t *testing.T) {
	skipWithoutONNX(t)

	p, err := NewFastEmbedProvider(FastEmbedConfig{Model: "BAAI/bge-small-en-v1.5", CacheDir: t.TempDir()})
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, 384, p.Dimension())
	assert.Equal(t, "BAAI/bge-small-en-v1.5", p.Model())

	vectors, err := p.EmbedDocuments(context.Background(), []string{"hello world", "vector stores"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Len(t, vectors[0], 384)

	q, err := p.EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, q, 384)
}

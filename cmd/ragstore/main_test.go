package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragstore/internal/embeddings"
	"github.com/fyrsmithlabs/ragstore/internal/embeddings/embeddingstest"
	"github.com/fyrsmithlabs/ragstore/internal/vectorstore"
)

// setupCLI isolates config from the host and swaps in a fake provider.
func setupCLI(t *testing.T, vectors map[string][]float32) (string, *embeddingstest.Fake) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("RAGSTORE_CHUNKER__SIZER", "chars")
	t.Setenv("RAGSTORE_LOGGING__LEVEL", "error")

	fake := embeddingstest.NewFake("llama3.2:latest", vectors)
	prev := newProvider
	newProvider = func(embeddings.ProviderConfig) (embeddings.Provider, error) {
		return fake, nil
	}
	t.Cleanup(func() { newProvider = prev })

	return filepath.Join(t.TempDir(), "store"), fake
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func queryIDs(t *testing.T, out string) []uint64 {
	t.Helper()
	var nodes []nodeJSON
	require.NoError(t, json.Unmarshal([]byte(out), &nodes))
	ids := make([]uint64, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}

func TestCLI_AddQueryDelete(t *testing.T) {
	dir, _ := setupCLI(t, map[string][]float32{
		"east":       {1, 0},
		"north":      {0, 1},
		"north east": {0.7, 0.7},
	})

	for i, args := range [][]string{
		{"add", "east", "--key", "topic", "--value", "a"},
		{"add", "north", "--key", "topic", "--value", "b"},
		{"add", "north east", "--key", "topic", "--value", "a"},
	} {
		out, err := run(t, append(args, "--dir", dir)...)
		require.NoError(t, err)
		assert.Equal(t, strconv.Itoa(i+1)+"\n", out)
	}

	out, err := run(t, "query", "--vector", "1,0", "--top-k", "2", "--json", "--dir", dir)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 3}, queryIDs(t, out))

	out, err = run(t, "query", "--filter", "topic=a", "--json", "--dir", dir)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 3}, queryIDs(t, out))

	out, err = run(t, "get", "2", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "tag:       topic=b")
	assert.Contains(t, out, "dimension: 2")

	_, err = run(t, "delete", "2", "--dir", dir)
	require.NoError(t, err)

	_, err = run(t, "get", "2", "--dir", dir)
	assert.ErrorIs(t, err, vectorstore.ErrNotFound)
}

func TestCLI_IngestAndSearch(t *testing.T) {
	dir, fake := setupCLI(t, nil)
	fake.Default = []float32{1, 1}

	doc := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(doc, []byte("First sentence. Second sentence."), 0o600))

	out, err := run(t, "ingest", doc, "--dir", dir)
	require.NoError(t, err)
	assert.Equal(t, doc+": 1 chunks\n", out)

	out, err = run(t, "query", "--filter", "source=notes.txt", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "First sentence. Second sentence.")

	out, err = run(t, "search", "anything at all", "--json", "--dir", dir)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, queryIDs(t, out))
}

func TestCLI_Export(t *testing.T) {
	dir, _ := setupCLI(t, map[string][]float32{"east": {1, 0}})

	_, err := run(t, "add", "east", "--dir", dir)
	require.NoError(t, err)

	out, err := run(t, "export", filepath.Join(t.TempDir(), "chromem"), "--dir", dir)
	require.NoError(t, err)
	assert.Equal(t, "exported 1 documents\n", out)
}

func TestCLI_Errors(t *testing.T) {
	dir, _ := setupCLI(t, nil)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"query without input", []string{"query"}, "one of text"},
		{"bad filter", []string{"query", "--filter", "topic"}, "expected key=value"},
		{"bad vector", []string{"query", "--vector", "1,x"}, "invalid vector component"},
		{"bad id", []string{"get", "abc"}, "invalid id"},
		{"missing document", []string{"ingest", "/nonexistent/file.txt"}, "ingesting"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, append(tt.args, "--dir", dir)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseFilter(t *testing.T) {
	f, err := parseFilter("source=a=b.txt")
	require.NoError(t, err)
	assert.Equal(t, vectorstore.Filter{Key: "source", Value: "a=b.txt"}, f)

	f, err = parseFilter("empty=")
	require.NoError(t, err)
	assert.Equal(t, vectorstore.Filter{Key: "empty"}, f)

	_, err = parseFilter("=value")
	assert.Error(t, err)
}

func TestParseVector(t *testing.T) {
	v, err := parseVector("1, 0.5,-2")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0.5, -2}, v)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "a b c", preview("a\n b\tc", 10))
	assert.Equal(t, "abcd…", preview("abcdefgh", 5))
}

package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTEIServer(t *testing.T, handler func(req teiRequest) (int, any)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embed", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req teiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		status, body := handler(req)
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTEIProvider_EmbedDocuments(t *testing.T) {
	srv := newTEIServer(t, func(req teiRequest) (int, any) {
		assert.True(t, req.Truncate)
		out := make([][]float32, len(req.Inputs))
		for i := range req.Inputs {
			out[i] = []float32{float32(i), 1, 0}
		}
		return http.StatusOK, out
	})

	p, err := NewTEIProvider(TEIConfig{BaseURL: srv.URL + "/", Model: "custom-model"})
	require.NoError(t, err)
	assert.Equal(t, 0, p.Dimension())

	vectors, err := p.EmbedDocuments(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 1, 0}, {1, 1, 0}}, vectors)
	assert.Equal(t, 3, p.Dimension())
	assert.Equal(t, "custom-model", p.Model())

	v, err := p.EmbedQuery(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 0}, v)
}

func TestTEIProvider_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    any
		texts   []string
		wantErr error
	}{
		{"empty input", http.StatusOK, [][]float32{}, nil, ErrEmptyInput},
		{"server error", http.StatusInternalServerError, map[string]string{"error": "boom"}, []string{"a"}, ErrEmbeddingFailed},
		{"malformed body", http.StatusOK, map[string]string{"not": "vectors"}, []string{"a"}, ErrEmbeddingFailed},
		{"count mismatch", http.StatusOK, [][]float32{{1}, {2}}, []string{"a"}, ErrEmbeddingFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTEIServer(t, func(teiRequest) (int, any) { return tt.status, tt.body })
			p, err := NewTEIProvider(TEIConfig{BaseURL: srv.URL})
			require.NoError(t, err)

			_, err = p.EmbedDocuments(context.Background(), tt.texts)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestTEIProvider_WidthChangeRejected(t *testing.T) {
	width := 2
	srv := newTEIServer(t, func(teiRequest) (int, any) {
		v := make([]float32, width)
		width++
		return http.StatusOK, [][]float32{v}
	})
	p, err := NewTEIProvider(TEIConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = p.EmbedQuery(context.Background(), "a")
	require.NoError(t, err)
	_, err = p.EmbedQuery(context.Background(), "b")
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.Equal(t, 2, p.Dimension())
}

func TestTEIProvider_BearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode([][]float32{{1}})
	}))
	defer srv.Close()

	p, err := NewTEIProvider(TEIConfig{BaseURL: srv.URL, APIKey: "secret"})
	require.NoError(t, err)
	_, err = p.EmbedQuery(context.Background(), "x")
	require.NoError(t, err)
}

func TestTEIProvider_ContextCanceled(t *testing.T) {
	srv := newTEIServer(t, func(teiRequest) (int, any) { return http.StatusOK, [][]float32{{1}} })
	p, err := NewTEIProvider(TEIConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.EmbedQuery(ctx, "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.ErrorIs(t, err, context.Canceled)
}

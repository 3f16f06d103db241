package embeddings

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUnsupportedProvider indicates an unknown provider name.
	ErrUnsupportedProvider = errors.New("unsupported embedding provider")

	// ErrEmbeddingFailed indicates the provider was unreachable or returned a
	// malformed response.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Provider produces embedding vectors for text.
//
// Repeated calls with the same model return vectors of the same width.
// Implementations are safe for concurrent use.
type Provider interface {
	// EmbedDocuments embeds each text, returning one vector per input in order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery embeds a single query text.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// Model identifies the model producing the vectors.
	Model() string
	// Dimension returns the vector width, or 0 if not yet known.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}

// ProviderConfig holds configuration for creating an embedding provider.
type ProviderConfig struct {
	// Provider is one of "ollama", "openai", "tei" or "fastembed".
	Provider string
	Model    string
	// BaseURL is the service URL (ollama, openai, tei).
	BaseURL string
	// APIKey authenticates against OpenAI-compatible endpoints.
	APIKey string
	// Dimension overrides detection when non-zero.
	Dimension int
	// CacheDir is the model cache directory (fastembed only).
	CacheDir string
	// Timeout bounds a single HTTP request. Zero means no client timeout.
	Timeout time.Duration

	Logger *zap.Logger
}

// NewProvider creates an embedding provider based on the configuration.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Dimension < 0 {
		return nil, fmt.Errorf("%w: dimension must be >= 0", ErrInvalidConfig)
	}

	client := &http.Client{Timeout: cfg.Timeout}

	var (
		p   Provider
		err error
	)
	switch cfg.Provider {
	case "ollama", "":
		p, err = newOllamaProvider(cfg, client)
	case "openai":
		p, err = newOpenAIProvider(cfg, client)
	case "tei":
		p, err = NewTEIProvider(TEIConfig{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			APIKey:    cfg.APIKey,
			Dimension: cfg.Dimension,
			Client:    client,
			Logger:    cfg.Logger,
		})
	case "fastembed":
		p, err = NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// detectDimensionFromModel guesses the embedding width from a model name.
// Returns 0 when the name carries no hint; the width is then learned from
// the first response.
func detectDimensionFromModel(model string) int {
	if dim, ok := fastEmbedModelDimension(model); ok {
		return dim
	}
	switch {
	case strings.Contains(model, "text-embedding-3-large"):
		return 3072
	case strings.Contains(model, "text-embedding-3-small"), strings.Contains(model, "ada-002"):
		return 1536
	case strings.Contains(model, "nomic-embed-text"):
		return 768
	case strings.Contains(model, "bge-large"), strings.Contains(model, "mxbai-embed-large"):
		return 1024
	case strings.Contains(model, "bge-base"):
		return 768
	case strings.Contains(model, "bge-small"), strings.Contains(model, "MiniLM"):
		return 384
	default:
		return 0
	}
}

// knownFastEmbedDimensions lists the widths of the models fastembed ships.
var knownFastEmbedDimensions = map[string]int{
	"BAAI/bge-small-en-v1.5":                 384,
	"BAAI/bge-small-en":                      384,
	"BAAI/bge-base-en-v1.5":                  768,
	"BAAI/bge-base-en":                       768,
	"BAAI/bge-small-zh-v1.5":                 512,
	"sentence-transformers/all-MiniLM-L6-v2": 384,
	"fast-bge-small-en-v1.5":                 384,
	"fast-bge-small-en":                      384,
	"fast-bge-base-en-v1.5":                  768,
	"fast-bge-base-en":                       768,
	"fast-bge-small-zh-v1.5":                 512,
	"fast-all-MiniLM-L6-v2":                  384,
}

func fastEmbedModelDimension(model string) (int, bool) {
	dim, ok := knownFastEmbedDimensions[model]
	return dim, ok
}

// checkBatch validates a provider response against its request.
func checkBatch(texts []string, vectors [][]float32) error {
	if len(vectors) != len(texts) {
		return fmt.Errorf("%w: expected %d vectors, got %d", ErrEmbeddingFailed, len(texts), len(vectors))
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("%w: empty vector at index %d", ErrEmbeddingFailed, i)
		}
		if len(v) != len(vectors[0]) {
			return fmt.Errorf("%w: inconsistent widths %d and %d", ErrEmbeddingFailed, len(vectors[0]), len(v))
		}
	}
	return nil
}

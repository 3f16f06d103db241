package embeddings

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"

	lcembeddings "github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// langchainProvider adapts a langchaingo embedder (Ollama, OpenAI) to Provider.
type langchainProvider struct {
	embedder lcembeddings.Embedder
	*instrumentation
}

func newOllamaProvider(cfg ProviderConfig, client *http.Client) (*langchainProvider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: ollama model required", ErrInvalidConfig)
	}
	opts := []ollama.Option{
		ollama.WithModel(cfg.Model),
		ollama.WithHTTPClient(client),
	}
	if cfg.BaseURL != "" {
		// WithServerURL exits the process on a malformed URL
		if _, err := url.Parse(cfg.BaseURL); err != nil {
			return nil, fmt.Errorf("%w: ollama base URL: %v", ErrInvalidConfig, err)
		}
		opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: ollama client: %v", ErrInvalidConfig, err)
	}
	return newLangchainProvider("ollama", cfg, llm)
}

func newOpenAIProvider(cfg ProviderConfig, client *http.Client) (*langchainProvider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: openai embedding model required", ErrInvalidConfig)
	}
	opts := []openai.Option{
		openai.WithEmbeddingModel(cfg.Model),
		openai.WithToken(cfg.APIKey),
		openai.WithHTTPClient(client),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Dimension > 0 {
		opts = append(opts, openai.WithEmbeddingDimensions(cfg.Dimension))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: openai client: %v", ErrInvalidConfig, err)
	}
	return newLangchainProvider("openai", cfg, llm)
}

func newLangchainProvider(name string, cfg ProviderConfig, client lcembeddings.EmbedderClient) (*langchainProvider, error) {
	embedder, err := lcembeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("%w: %s embedder: %v", ErrInvalidConfig, name, err)
	}
	return &langchainProvider{
		embedder:        embedder,
		instrumentation: newInstrumentation(name, cfg.Model, cfg.Dimension, cfg.Logger),
	}, nil
}

// EmbedDocuments generates embeddings for multiple texts.
func (p *langchainProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	// the langchaingo embedder rewrites newlines in place
	return p.observe(ctx, "embed_documents", slices.Clone(texts), func(ctx context.Context, in []string) ([][]float32, error) {
		vectors, err := p.embedder.EmbedDocuments(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrEmbeddingFailed, p.provider, err)
		}
		return vectors, nil
	})
}

// EmbedQuery generates an embedding for a single query.
func (p *langchainProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	vectors, err := p.observe(ctx, "embed_query", []string{text}, func(ctx context.Context, in []string) ([][]float32, error) {
		v, err := p.embedder.EmbedQuery(ctx, in[0])
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrEmbeddingFailed, p.provider, err)
		}
		return [][]float32{v}, nil
	})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Model returns the configured model name.
func (p *langchainProvider) Model() string {
	return p.model
}

// Dimension returns the known vector width.
func (p *langchainProvider) Dimension() int {
	return p.dimension()
}

// Close is a no-op; the HTTP client holds no dedicated resources.
func (p *langchainProvider) Close() error {
	return nil
}

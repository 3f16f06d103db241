// Package config provides configuration loading for ragstore.
//
// Configuration is layered: hardcoded defaults, then an optional YAML file,
// then RAGSTORE_ environment variables. See LoadWithFile.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds the complete ragstore configuration.
type Config struct {
	Store      StoreConfig      `koanf:"store"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Chunker    ChunkerConfig    `koanf:"chunker"`
	Server     ServerConfig     `koanf:"server"`
	Watch      WatchConfig      `koanf:"watch"`
	Logging    LoggingConfig    `koanf:"logging"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
}

// StoreConfig configures the vector store.
type StoreConfig struct {
	// Dir is the persistence directory (nodes.json + model.txt).
	Dir         string `koanf:"dir"`
	TopK        int    `koanf:"top_k"`
	AutoSave    bool   `koanf:"auto_save"`
	Concurrency int    `koanf:"concurrency"`
}

// EmbeddingsConfig selects and configures the embedding provider.
type EmbeddingsConfig struct {
	Provider  string          `koanf:"provider"` // ollama | openai | tei | fastembed
	Model     string          `koanf:"model"`
	BaseURL   string          `koanf:"base_url"`
	APIKey    Secret          `koanf:"api_key"`
	Dimension int             `koanf:"dimension"`
	CacheDir  string          `koanf:"cache_dir"`
	Timeout   Duration        `koanf:"timeout"`
	Retry     RetryConfig     `koanf:"retry"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
}

// RetryConfig controls provider call retries.
type RetryConfig struct {
	MaxAttempts    int      `koanf:"max_attempts"`
	InitialBackoff Duration `koanf:"initial_backoff"`
	MaxBackoff     Duration `koanf:"max_backoff"`
}

// RateLimitConfig bounds provider call throughput. Zero RPS means unlimited.
type RateLimitConfig struct {
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`
}

// ChunkerConfig configures text chunking.
type ChunkerConfig struct {
	MaxSize  int    `koanf:"max_size"`
	Sizer    string `koanf:"sizer"` // tokens | chars
	Encoding string `koanf:"encoding"`
}

// ServerConfig holds HTTP host configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// WatchConfig configures directory watch ingestion.
type WatchConfig struct {
	Debounce   Duration `koanf:"debounce"`
	Extensions []string `koanf:"extensions"`
}

// LoggingConfig is the subset of logging settings exposed through config files.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig is the subset of OpenTelemetry settings exposed through config files.
type TelemetryConfig struct {
	Enabled      bool    `koanf:"enabled"`
	Endpoint     string  `koanf:"endpoint"`
	Protocol     string  `koanf:"protocol"` // grpc | http/protobuf
	Insecure     bool    `koanf:"insecure"`
	SamplingRate float64 `koanf:"sampling_rate"`
}

var (
	validProviders = map[string]bool{"ollama": true, "openai": true, "tei": true, "fastembed": true}
	validSizers    = map[string]bool{"tokens": true, "chars": true}
)

// Default returns a Config populated with defaults.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Store.Dir == "" {
		cfg.Store.Dir = "~/.ragstore/default"
	}
	if cfg.Store.TopK == 0 {
		cfg.Store.TopK = 5
	}
	if cfg.Store.Concurrency == 0 {
		cfg.Store.Concurrency = 4
	}

	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "ollama"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = defaultModel(cfg.Embeddings.Provider)
	}
	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = defaultBaseURL(cfg.Embeddings.Provider)
	}
	if cfg.Embeddings.CacheDir == "" {
		cfg.Embeddings.CacheDir = "~/.cache/ragstore/fastembed"
	}
	if cfg.Embeddings.Timeout == 0 {
		cfg.Embeddings.Timeout = Duration(60 * time.Second)
	}
	if cfg.Embeddings.Retry.MaxAttempts == 0 {
		cfg.Embeddings.Retry.MaxAttempts = 3
	}
	if cfg.Embeddings.Retry.InitialBackoff == 0 {
		cfg.Embeddings.Retry.InitialBackoff = Duration(500 * time.Millisecond)
	}
	if cfg.Embeddings.Retry.MaxBackoff == 0 {
		cfg.Embeddings.Retry.MaxBackoff = Duration(10 * time.Second)
	}
	if cfg.Embeddings.RateLimit.Burst == 0 {
		cfg.Embeddings.RateLimit.Burst = 1
	}

	if cfg.Chunker.MaxSize == 0 {
		cfg.Chunker.MaxSize = 256
	}
	if cfg.Chunker.Sizer == "" {
		cfg.Chunker.Sizer = "tokens"
	}
	if cfg.Chunker.Encoding == "" {
		cfg.Chunker.Encoding = "cl100k_base"
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9191
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = Duration(500 * time.Millisecond)
	}
	if len(cfg.Watch.Extensions) == 0 {
		cfg.Watch.Extensions = []string{".pdf", ".txt", ".md", ".html"}
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.SamplingRate == 0 {
		cfg.Telemetry.SamplingRate = 1.0
	}
}

func defaultModel(provider string) string {
	switch provider {
	case "openai":
		return "text-embedding-3-small"
	case "tei", "fastembed":
		return "BAAI/bge-small-en-v1.5"
	default:
		return "llama3.2:latest"
	}
}

func defaultBaseURL(provider string) string {
	switch provider {
	case "openai":
		return "https://api.openai.com/v1"
	case "tei":
		return "http://localhost:8080"
	case "fastembed":
		return ""
	default:
		return "http://localhost:11434"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []error

	if c.Store.TopK < 1 {
		errs = append(errs, fmt.Errorf("store.top_k must be >= 1, got %d", c.Store.TopK))
	}
	if c.Store.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("store.concurrency must be >= 1, got %d", c.Store.Concurrency))
	}
	if !validProviders[c.Embeddings.Provider] {
		errs = append(errs, fmt.Errorf("embeddings.provider %q is not supported (ollama, openai, tei, fastembed)", c.Embeddings.Provider))
	}
	if c.Embeddings.Dimension < 0 {
		errs = append(errs, fmt.Errorf("embeddings.dimension must be >= 0, got %d", c.Embeddings.Dimension))
	}
	if c.Embeddings.Timeout.Duration() <= 0 {
		errs = append(errs, errors.New("embeddings.timeout must be positive"))
	}
	if c.Embeddings.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("embeddings.retry.max_attempts must be >= 1, got %d", c.Embeddings.Retry.MaxAttempts))
	}
	if c.Embeddings.RateLimit.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("embeddings.rate_limit.requests_per_second must be >= 0"))
	}
	if c.Chunker.MaxSize < 1 {
		errs = append(errs, fmt.Errorf("chunker.max_size must be >= 1, got %d", c.Chunker.MaxSize))
	}
	if !validSizers[c.Chunker.Sizer] {
		errs = append(errs, fmt.Errorf("chunker.sizer %q is not supported (tokens, chars)", c.Chunker.Sizer))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port))
	}
	if c.Telemetry.SamplingRate < 0 || c.Telemetry.SamplingRate > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sampling_rate must be between 0 and 1, got %f", c.Telemetry.SamplingRate))
	}

	return errors.Join(errs...)
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

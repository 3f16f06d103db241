package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragstore/internal/chunker"
	"github.com/fyrsmithlabs/ragstore/internal/config"
	"github.com/fyrsmithlabs/ragstore/internal/embeddings"
	"github.com/fyrsmithlabs/ragstore/internal/extraction"
	"github.com/fyrsmithlabs/ragstore/internal/logging"
	"github.com/fyrsmithlabs/ragstore/internal/telemetry"
	"github.com/fyrsmithlabs/ragstore/internal/vectorstore"
)

// newProvider builds the embedding provider. Tests replace it.
var newProvider = embeddings.NewProvider

// app holds the initialized dependencies of one command run.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	store     *vectorstore.Store
}

// openApp loads configuration and opens the store it points at.
//
// Initialization order:
//  1. Config (file, env, flags)
//  2. Logger (stderr, so results on stdout stay parseable)
//  3. Telemetry
//  4. Embedding provider with retry and rate limiting
//  5. Chunker and extractor
//  6. Store, loaded from its directory when one was persisted there
func openApp(ctx context.Context, opts *rootOptions) (_ *app, err error) {
	cfg, err := config.LoadWithFile(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.dir != "" {
		cfg.Store.Dir = opts.dir
	}
	if opts.topK > 0 {
		cfg.Store.TopK = opts.topK
	}

	logCfg, err := logging.FromAppConfig(cfg.Logging)
	if err != nil {
		return nil, err
	}
	logCfg.Output.Writer = "stderr"
	logger, err := logging.NewLogger(logCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromAppConfig(cfg.Telemetry), telemetry.WithLogger(logger.Underlying()))
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, telemetry: tel}
	defer func() {
		if err != nil {
			a.Close(context.Background())
		}
	}()

	dir, err := config.ExpandPath(cfg.Store.Dir)
	if err != nil {
		return nil, err
	}
	cacheDir, err := config.ExpandPath(cfg.Embeddings.CacheDir)
	if err != nil {
		return nil, err
	}

	zl := logger.Underlying()
	provider, err := newProvider(embeddings.ProviderConfig{
		Provider:  cfg.Embeddings.Provider,
		Model:     cfg.Embeddings.Model,
		BaseURL:   cfg.Embeddings.BaseURL,
		APIKey:    cfg.Embeddings.APIKey.Value(),
		Dimension: cfg.Embeddings.Dimension,
		CacheDir:  cacheDir,
		Timeout:   cfg.Embeddings.Timeout.Duration(),
		Logger:    zl,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding provider: %w", err)
	}
	provider = embeddings.NewRetrying(provider, embeddings.RetryConfig{
		MaxAttempts:       cfg.Embeddings.Retry.MaxAttempts,
		InitialBackoff:    cfg.Embeddings.Retry.InitialBackoff.Duration(),
		MaxBackoff:        cfg.Embeddings.Retry.MaxBackoff.Duration(),
		RequestsPerSecond: cfg.Embeddings.RateLimit.RequestsPerSecond,
		Burst:             cfg.Embeddings.RateLimit.Burst,
	}, zl)

	sizer, err := chunker.NewSizer(cfg.Chunker.Sizer, cfg.Chunker.Encoding)
	if err != nil {
		provider.Close()
		return nil, err
	}
	ch, err := chunker.New(chunker.Config{MaxSize: cfg.Chunker.MaxSize, Sizer: sizer})
	if err != nil {
		provider.Close()
		return nil, err
	}

	tp := tel.TracerProvider()
	store, err := vectorstore.Open(ctx, provider, vectorstore.Config{
		TopK:        cfg.Store.TopK,
		Dir:         dir,
		AutoSave:    cfg.Store.AutoSave,
		Concurrency: cfg.Store.Concurrency,
	},
		vectorstore.WithLogger(logger.Named("vectorstore")),
		vectorstore.WithTracerProvider(tp),
		vectorstore.WithChunker(ch),
		vectorstore.WithExtractor(extraction.NewFileExtractor(
			extraction.WithLogger(zl.Named("extraction")),
			extraction.WithTracerProvider(tp),
		)),
	)
	if err != nil {
		provider.Close()
		return nil, err
	}
	a.store = store

	logger.Debug(ctx, "store opened",
		zap.String("dir", dir),
		zap.String("provider", cfg.Embeddings.Provider),
		zap.String("model", store.Model()),
		zap.Int("nodes", store.Len()))
	return a, nil
}

// persist saves the store unless auto save already did.
func (a *app) persist(ctx context.Context) error {
	if a.cfg.Store.AutoSave {
		return nil
	}
	return a.store.Persist(ctx, "")
}

// Close releases the store and flushes telemetry and logs.
func (a *app) Close(ctx context.Context) {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn(ctx, "closing embedding provider", zap.Error(err))
		}
	}
	if err := a.telemetry.Shutdown(ctx); err != nil {
		a.logger.Warn(ctx, "telemetry shutdown", zap.Error(err))
	}
	_ = a.logger.Sync()
}

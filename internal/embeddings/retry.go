package embeddings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RetryConfig controls NewRetrying.
type RetryConfig struct {
	// MaxAttempts includes the first call. Values below 1 mean 1.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// RequestsPerSecond limits call rate. Zero means unlimited.
	RequestsPerSecond float64
	Burst             int
}

// retryingProvider retries transient provider failures with exponential
// backoff and paces calls through a token bucket.
type retryingProvider struct {
	Provider
	cfg     RetryConfig
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewRetrying wraps p. Only ErrEmbeddingFailed is retried; invalid input and
// context cancellation fail immediately.
func NewRetrying(p Provider, cfg RetryConfig, logger *zap.Logger) Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = cfg.InitialBackoff
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &retryingProvider{
		Provider: p,
		cfg:      cfg,
		limiter:  limiter,
		logger:   logger,
	}
}

// EmbedDocuments calls the wrapped provider with retries.
func (r *retryingProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := r.do(ctx, "embed_documents", func() error {
		var err error
		out, err = r.Provider.EmbedDocuments(ctx, texts)
		return err
	})
	return out, err
}

// EmbedQuery calls the wrapped provider with retries.
func (r *retryingProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := r.do(ctx, "embed_query", func() error {
		var err error
		out, err = r.Provider.EmbedQuery(ctx, text)
		return err
	})
	return out, err
}

func (r *retryingProvider) do(ctx context.Context, op string, call func() error) error {
	var lastErr error
	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := r.backoff(attempt)
			r.logger.Debug("retrying embedding call",
				zap.String("operation", op),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return fmt.Errorf("%w: %w", ErrEmbeddingFailed, ctx.Err())
			}
		}

		if err := r.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: rate limiter: %w", ErrEmbeddingFailed, err)
		}

		lastErr = call()
		if lastErr == nil {
			return nil
		}
		if !isRetryable(ctx, lastErr) {
			return lastErr
		}
	}

	r.logger.Warn("embedding call failed after retries",
		zap.String("operation", op),
		zap.Int("attempts", r.cfg.MaxAttempts),
		zap.Error(lastErr))
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// backoff returns the delay before the given attempt (1-based retries).
func (r *retryingProvider) backoff(attempt int) time.Duration {
	d := r.cfg.InitialBackoff
	for i := 1; i < attempt && d < r.cfg.MaxBackoff; i++ {
		d *= 2
	}
	return min(d, r.cfg.MaxBackoff)
}

func isRetryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, ErrEmbeddingFailed)
}

package embeddings

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/ragstore/internal/embeddings"

// Metrics holds all embedding-related metrics.
type Metrics struct {
	meter     metric.Meter
	logger    *zap.Logger
	duration  metric.Float64Histogram
	batchSize metric.Int64Histogram
	errors    metric.Int64Counter
}

// NewMetrics creates embedding metrics on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	return newMetrics(otel.Meter(instrumentationName), logger)
}

func newMetrics(meter metric.Meter, logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{meter: meter, logger: logger}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.duration, err = m.meter.Float64Histogram(
		"ragstore.embeddings.duration",
		metric.WithDescription("Duration of embedding provider calls, by model and operation (embed_documents, embed_query)"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.batchSize, err = m.meter.Int64Histogram(
		"ragstore.embeddings.batch_size",
		metric.WithDescription("Number of texts per embedding request"),
		metric.WithUnit("{text}"),
		metric.WithExplicitBucketBoundaries(1, 2, 5, 10, 25, 50, 100, 250, 500),
	)
	if err != nil {
		m.logger.Warn("failed to create batch size histogram", zap.Error(err))
	}

	m.errors, err = m.meter.Int64Counter(
		"ragstore.embeddings.errors",
		metric.WithDescription("Failed embedding provider calls, by model and operation"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		m.logger.Warn("failed to create errors counter", zap.Error(err))
	}
}

// RecordGeneration records one provider call.
func (m *Metrics) RecordGeneration(ctx context.Context, model, operation string, duration time.Duration, batchSize int, err error) {
	attrs := metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("operation", operation),
	)

	if m.duration != nil {
		m.duration.Record(ctx, duration.Seconds(), attrs)
	}
	if batchSize > 0 && m.batchSize != nil {
		m.batchSize.Record(ctx, int64(batchSize), attrs)
	}
	if err != nil && m.errors != nil {
		m.errors.Add(ctx, 1, attrs)
	}
}

// instrumentation is shared by every provider: it traces and meters calls
// and tracks the vector width the model produces.
type instrumentation struct {
	provider string
	model    string
	fixed    int
	learned  atomic.Int64
	metrics  *Metrics
	tracer   trace.Tracer
	logger   *zap.Logger
}

func newInstrumentation(provider, model string, dimension int, logger *zap.Logger) *instrumentation {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dimension == 0 {
		dimension = detectDimensionFromModel(model)
	}
	return &instrumentation{
		provider: provider,
		model:    model,
		fixed:    dimension,
		metrics:  NewMetrics(logger),
		tracer:   otel.Tracer(instrumentationName),
		logger:   logger,
	}
}

func (in *instrumentation) dimension() int {
	if d := in.learned.Load(); d > 0 {
		return int(d)
	}
	return in.fixed
}

// observe runs one provider call under a span and records its metrics.
// Successful responses are checked for count and width consistency.
func (in *instrumentation) observe(
	ctx context.Context,
	operation string,
	texts []string,
	call func(context.Context, []string) ([][]float32, error),
) ([][]float32, error) {
	ctx, span := in.tracer.Start(ctx, "embeddings.Embed", trace.WithAttributes(
		attribute.String("embeddings.provider", in.provider),
		attribute.String("embeddings.model", in.model),
		attribute.String("embeddings.operation", operation),
		attribute.Int("chunks.count", len(texts)),
	))
	defer span.End()

	start := time.Now()
	vectors, err := call(ctx, texts)
	if err == nil {
		err = checkBatch(texts, vectors)
	}
	if err == nil {
		err = in.learnWidth(len(vectors[0]))
	}
	in.metrics.RecordGeneration(ctx, in.model, operation, time.Since(start), len(texts), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		in.logger.Debug("embedding call failed",
			zap.String("provider", in.provider),
			zap.String("operation", operation),
			zap.Error(err))
		return nil, err
	}
	return vectors, nil
}

// learnWidth records the first observed width and rejects later changes.
func (in *instrumentation) learnWidth(width int) error {
	if in.learned.CompareAndSwap(0, int64(width)) {
		if in.fixed != 0 && in.fixed != width {
			in.logger.Warn("model width differs from expected dimension",
				zap.String("model", in.model),
				zap.Int("expected", in.fixed),
				zap.Int("actual", width))
		}
		return nil
	}
	if got := in.learned.Load(); int(got) != width {
		return fmt.Errorf("%w: model %s returned width %d, previously %d", ErrEmbeddingFailed, in.model, width, got)
	}
	return nil
}

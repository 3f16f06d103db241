package embeddings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestMetrics_RecordGeneration(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m := newMetrics(mp.Meter(instrumentationName), nil)

	ctx := context.Background()
	m.RecordGeneration(ctx, "BAAI/bge-small-en-v1.5", "embed_documents", 100*time.Millisecond, 10, nil)
	m.RecordGeneration(ctx, "BAAI/bge-small-en-v1.5", "embed_query", 50*time.Millisecond, 1, nil)
	m.RecordGeneration(ctx, "BAAI/bge-small-en-v1.5", "embed_documents", 25*time.Millisecond, 5, errors.New("generation failed"))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	found := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, metric := range sm.Metrics {
			found[metric.Name] = metric
		}
	}

	require.Contains(t, found, "ragstore.embeddings.duration")
	require.Contains(t, found, "ragstore.embeddings.batch_size")
	require.Contains(t, found, "ragstore.embeddings.errors")

	hist, ok := found["ragstore.embeddings.duration"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(3), count)

	errs, ok := found["ragstore.embeddings.errors"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range errs.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(1), total)
}

func TestInstrumentation_LearnWidth(t *testing.T) {
	in := newInstrumentation("test", "BAAI/bge-small-en-v1.5", 0, nil)
	assert.Equal(t, 384, in.dimension())

	require.NoError(t, in.learnWidth(384))
	require.NoError(t, in.learnWidth(384))
	assert.ErrorIs(t, in.learnWidth(768), ErrEmbeddingFailed)

	explicit := newInstrumentation("test", "unknown", 16, nil)
	assert.Equal(t, 16, explicit.dimension())
}

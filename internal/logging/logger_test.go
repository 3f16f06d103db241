package logging

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/embedded"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(NewDefaultConfig(), nil)
	require.NoError(t, err)
	require.NotNil(t, logger.Underlying())
	assert.True(t, logger.Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Enabled(zapcore.DebugLevel))
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"

	_, err := NewLogger(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestNewLogger_NoOutputs(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Output.Writer = ""
	cfg.Output.OTEL = true

	// OTEL enabled but no provider: nothing to write to
	_, err := NewLogger(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one output")
}

// recordingProvider keeps every OTEL log record emitted through it.
type recordingProvider struct {
	embedded.LoggerProvider
	logger *recordingLogger
}

func newRecordingProvider() *recordingProvider {
	return &recordingProvider{logger: &recordingLogger{}}
}

func (p *recordingProvider) Logger(string, ...otellog.LoggerOption) otellog.Logger {
	return p.logger
}

func (p *recordingProvider) bodies() []string {
	p.logger.mu.Lock()
	defer p.logger.mu.Unlock()
	out := make([]string, len(p.logger.records))
	for i, r := range p.logger.records {
		out[i] = r.Body().AsString()
	}
	return out
}

type recordingLogger struct {
	embedded.Logger
	mu      sync.Mutex
	records []otellog.Record
}

func (l *recordingLogger) Emit(_ context.Context, r otellog.Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, r.Clone())
}

func (l *recordingLogger) Enabled(context.Context, otellog.EnabledParameters) bool {
	return true
}

func TestNewLogger_OTELOnly(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Output.Writer = ""
	cfg.Output.OTEL = true
	provider := newRecordingProvider()

	logger, err := NewLogger(cfg, provider)
	require.NoError(t, err)

	ctx := context.Background()
	logger.Debug(ctx, "below level")
	logger.Info(ctx, "bridged")
	logger.Warn(ctx, "also bridged")

	assert.False(t, logger.Enabled(zapcore.DebugLevel))
	assert.True(t, logger.Enabled(zapcore.InfoLevel))
	assert.Equal(t, []string{"bridged", "also bridged"}, provider.bodies())
}

func TestNewLogger_OTELHonorsLevel(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Output.Writer = ""
	cfg.Output.OTEL = true
	cfg.Level = zapcore.ErrorLevel
	provider := newRecordingProvider()

	logger, err := NewLogger(cfg, provider)
	require.NoError(t, err)

	ctx := context.Background()
	logger.With(zap.String("component", "test")).Warn(ctx, "dropped")
	logger.Error(ctx, "kept")

	assert.Equal(t, []string{"kept"}, provider.bodies())
}

func TestLogger_Levels(t *testing.T) {
	tl := NewTestLogger()
	ctx := context.Background()

	tests := []struct {
		name  string
		log   func()
		level zapcore.Level
	}{
		{"trace", func() { tl.Trace(ctx, "msg") }, TraceLevel},
		{"debug", func() { tl.Debug(ctx, "msg") }, zapcore.DebugLevel},
		{"info", func() { tl.Info(ctx, "msg") }, zapcore.InfoLevel},
		{"warn", func() { tl.Warn(ctx, "msg") }, zapcore.WarnLevel},
		{"error", func() { tl.Error(ctx, "msg") }, zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tl.Reset()
			tt.log()
			entries := tl.All()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.level, entries[0].Level)
		})
	}
}

func TestLogger_ContextFields(t *testing.T) {
	tl := NewTestLogger()

	tp := trace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	ctx = WithRequestID(ctx, "req-1")
	ctx = WithIngestID(ctx, "ing-1")
	tl.Info(ctx, "ingested", zap.Int("chunks", 3))

	tl.AssertField(t, "ingested", "request.id", "req-1")
	tl.AssertField(t, "ingested", "ingest.id", "ing-1")
	tl.AssertField(t, "ingested", "trace_id", span.SpanContext().TraceID().String())
	tl.AssertField(t, "ingested", "chunks", int64(3))
}

func TestLogger_WithAndNamed(t *testing.T) {
	tl := NewTestLogger()
	child := tl.With(zap.String("component", "store")).Named("vectorstore")

	child.Info(context.Background(), "hello")

	entries := tl.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "vectorstore", entries[0].LoggerName)
	assert.Equal(t, "store", entries[0].ContextMap()["component"])
}

func TestContext_LoggerRoundTrip(t *testing.T) {
	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)

	assert.Same(t, tl.Logger, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}

func TestWithRequestID_Truncates(t *testing.T) {
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}
	ctx := WithRequestID(context.Background(), string(long))
	assert.Len(t, RequestIDFromContext(ctx), maxIDLen)
}

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"trace", TraceLevel, false},
		{"TRACE", TraceLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{"Warn", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"loud", zapcore.InfoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := LevelFromString(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

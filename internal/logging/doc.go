// Package logging provides structured logging for ragstore on top of zap.
//
// The Logger wraps zap with:
//   - a Trace level (-2, below Debug)
//   - stdout/stderr output plus an optional OpenTelemetry log bridge
//   - context field injection (trace_id, span_id, request.id, ingest.id)
//   - field-name and pattern based secret redaction
//   - level-aware sampling (errors are never sampled)
//
// Usage:
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithIngestID(ctx, id)
//	logger.Info(ctx, "document ingested", zap.Int("chunks", n))
//
// Library packages take a plain *zap.Logger (Underlying) so they can be used
// without this wrapper; nil always means zap.NewNop().
//
// Use NewTestLogger in tests to assert on emitted entries.
package logging

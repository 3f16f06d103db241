// Package telemetry wires OpenTelemetry tracing and metrics for ragstore.
//
// New builds OTLP exporters (gRPC or HTTP/protobuf) for traces and metrics
// and installs them as the global providers. A disabled or unreachable
// collector never fails the host: the instance reports itself degraded and
// callers fall back to the global no-op providers.
//
//	tel, err := telemetry.New(ctx, telemetry.FromAppConfig(cfg.Telemetry))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// Tests use NewTestTelemetry, which records spans and metrics in memory.
package telemetry

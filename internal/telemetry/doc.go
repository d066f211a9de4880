// Package telemetry provides OpenTelemetry instrumentation for reposearch.
//
// # Overview
//
// This package sets up tracing, metrics and log export with the OpenTelemetry
// Go SDK. All three go to an OTEL Collector over OTLP (grpc or
// http/protobuf). Log records reach the LoggerProvider through the logging
// package's otelzap bridge.
//
// # Usage
//
// Create telemetry instance:
//
//	cfg := telemetry.NewDefaultConfig()
//	tel, err := telemetry.New(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(ctx)
//
// Use tracer and meter:
//
//	tracer := tel.Tracer("reposearch.search")
//	ctx, span := tracer.Start(ctx, "search.repos")
//	defer span.End()
//
//	meter := tel.Meter("reposearch.http")
//	counter, _ := meter.Int64Counter("http.requests_total")
//	counter.Add(ctx, 1)
//
// # Configuration
//
// The daemon derives Config from the observability section:
//
//	observability:
//	  enable_telemetry: true
//	  endpoint: "localhost:4317"
//	  protocol: grpc
//	  service_name: "reposearch"
//	  sampling_rate: 1.0
//
// # Error Handling
//
// Telemetry failures do not crash the application. If telemetry cannot be
// initialized, the instance degrades gracefully and returns no-op providers.
//
// # Testing
//
// Use TestTelemetry for tests:
//
//	tt := telemetry.NewTestTelemetry()
//	tracer := tt.Tracer("test")
//	_, span := tracer.Start(ctx, "test-span")
//	span.End()
//	tt.AssertSpanExists(t, "test-span")
package telemetry

package observability

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestInitTracing(t *testing.T) {
	ctx := context.Background()

	shutdown, err := InitTracing(ctx, TracingConfig{})
	if err != nil {
		t.Fatalf("disabled InitTracing: %v", err)
	}
	if err := shutdown(ctx); err != nil {
		t.Fatalf("noop shutdown: %v", err)
	}

	var buf bytes.Buffer
	cfg := TracingConfigFromFlag("stdout")
	cfg.Writer = &buf
	shutdown, err = InitTracing(ctx, cfg)
	if err != nil {
		t.Fatalf("stdout InitTracing: %v", err)
	}
	_, span := otel.Tracer(TracerName).Start(ctx, "laptime.test")
	span.End()
	ShutdownWithTimeout(ctx, shutdown)
	if !strings.Contains(buf.String(), "laptime.test") {
		t.Errorf("span not exported: %q", buf.String())
	}

	if _, err := InitTracing(ctx, TracingConfig{Enabled: true, Exporter: "zipkin"}); err == nil {
		t.Error("expected unsupported exporter error")
	}

	// Leave the global provider disabled for other tests.
	_, _ = InitTracing(ctx, TracingConfig{})
}

func TestTracingConfigFromFlag(t *testing.T) {
	if TracingConfigFromFlag("").Enabled {
		t.Error("empty flag should disable tracing")
	}
	if TracingConfigFromFlag("none").Enabled {
		t.Error("none should disable tracing")
	}
	cfg := TracingConfigFromFlag(" OTLP ")
	if !cfg.Enabled || cfg.Exporter != "otlp" {
		t.Errorf("unexpected config %+v", cfg)
	}
}

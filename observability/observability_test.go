package observability

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/metric/noop"
)

func TestDefaultMeterConfig(t *testing.T) {
	cfg := DefaultMeterConfig("realtime")
	if cfg.ServiceName != "realtime" {
		t.Errorf("expected service name 'realtime', got %q", cfg.ServiceName)
	}
	if cfg.Endpoint == "" {
		t.Error("expected default endpoint")
	}
	if !cfg.Insecure {
		t.Error("expected insecure default for development")
	}
}

func TestNewStreamMetrics_NoopMeter(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")
	m, err := NewStreamMetrics(meter)
	if err != nil {
		t.Fatalf("NewStreamMetrics failed: %v", err)
	}

	// All recorders must be safe on a noop meter.
	ctx := context.Background()
	m.RecordConnect(ctx)
	m.RecordSent(ctx, "ping")
	m.RecordRetried(ctx, 3)
	m.RecordDropped(ctx, 1)
	m.RecordEviction(ctx, "stale")
	m.RecordDisconnect(ctx)
}

func TestMeter_GlobalProvider(t *testing.T) {
	// Without InitMeter the global provider is a no-op; Meter must still
	// hand back a usable meter.
	m := Meter("github.com/kbukum/streamkit/sse")
	if m == nil {
		t.Fatal("expected meter from global provider")
	}
}

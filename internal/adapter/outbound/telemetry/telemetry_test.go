package telemetry

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Sentinel-Gate/Contractgate/internal/domain/usage"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect() error: %v", err)
	}
	out := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					out[m.Name] += dp.Value
				}
			}
		}
	}
	return out
}

func TestRecorder(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	r, err := NewRecorder(provider)
	if err != nil {
		t.Fatalf("NewRecorder() error: %v", err)
	}

	r.RecordDecision(usage.Allow(usage.PatternProvideAccess))
	r.RecordDecision(usage.Deny(usage.PatternNTimesUsage, usage.ReasonAccessNumberReached, ""))
	r.RecordNegotiation("confirm", "CONFIRMED")
	r.RecordSweep("post_duty", 2, 1, 30*time.Millisecond)

	got := collect(t, reader)
	want := map[string]int64{
		"contractgate.policy.decisions":  2,
		"contractgate.negotiation.steps": 1,
		"contractgate.sweep.deleted":     2,
		"contractgate.sweep.errors":      1,
	}
	for name, v := range want {
		if got[name] != v {
			t.Errorf("%s = %d, want %d", name, got[name], v)
		}
	}
}

func TestSetup_WritesSpans(t *testing.T) {
	var buf bytes.Buffer
	p, err := Setup(&buf, time.Hour)
	if err != nil {
		t.Fatalf("Setup() error: %v", err)
	}

	_, span := otel.Tracer("test").Start(context.Background(), "usage.Verify")
	span.End()

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
	if !strings.Contains(buf.String(), `"Name":"usage.Verify"`) {
		t.Errorf("span not exported: %s", buf.String())
	}
}

package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Sentinel-Gate/Contractgate/internal/domain/usage"
	"github.com/Sentinel-Gate/Contractgate/internal/service"
)

const meterName = "github.com/Sentinel-Gate/Contractgate"

// Recorder records service counters as OpenTelemetry instruments.
type Recorder struct {
	decisions    metric.Int64Counter
	negotiations metric.Int64Counter
	swept        metric.Int64Counter
	sweepErrors  metric.Int64Counter
	sweepTime    metric.Float64Histogram
}

// NewRecorder creates the instruments on provider.
func NewRecorder(provider metric.MeterProvider) (*Recorder, error) {
	m := provider.Meter(meterName)
	r := &Recorder{}
	var err error
	if r.decisions, err = m.Int64Counter("contractgate.policy.decisions",
		metric.WithDescription("Policy decisions by pattern and outcome")); err != nil {
		return nil, err
	}
	if r.negotiations, err = m.Int64Counter("contractgate.negotiation.steps",
		metric.WithDescription("Contract negotiation steps by outcome")); err != nil {
		return nil, err
	}
	if r.swept, err = m.Int64Counter("contractgate.sweep.deleted",
		metric.WithDescription("Items removed by enforcement sweeps")); err != nil {
		return nil, err
	}
	if r.sweepErrors, err = m.Int64Counter("contractgate.sweep.errors",
		metric.WithDescription("Items an enforcement sweep failed on")); err != nil {
		return nil, err
	}
	if r.sweepTime, err = m.Float64Histogram("contractgate.sweep.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Enforcement sweep duration")); err != nil {
		return nil, err
	}
	return r, nil
}

// RecordDecision counts one policy decision.
func (r *Recorder) RecordDecision(d usage.Decision) {
	r.decisions.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("pattern", string(d.Pattern)),
		attribute.String("result", d.Result()),
		attribute.String("reason", string(d.Reason)),
	))
}

// RecordNegotiation counts one negotiation step.
func (r *Recorder) RecordNegotiation(step, outcome string) {
	r.negotiations.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("step", step),
		attribute.String("outcome", outcome),
	))
}

// RecordSweep records one sweep pass.
func (r *Recorder) RecordSweep(pass string, deleted, failed int, elapsed time.Duration) {
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String("pass", pass))
	r.swept.Add(ctx, int64(deleted), attrs)
	r.sweepErrors.Add(ctx, int64(failed), attrs)
	r.sweepTime.Record(ctx, elapsed.Seconds(), attrs)
}

var _ service.Recorder = (*Recorder)(nil)

// Package service contains application services.
package service

import (
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sentinel-Gate/Contractgate/internal/domain/usage"
)

const tracerName = "github.com/Sentinel-Gate/Contractgate/internal/service"

// tracer returns the service tracer from the global provider. Without a
// configured provider spans are no-ops.
func tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// Recorder receives counters from the services.
// Implemented by the Prometheus metrics of the HTTP adapter.
type Recorder interface {
	// RecordDecision counts one policy decision.
	RecordDecision(d usage.Decision)
	// RecordNegotiation counts one negotiation step outcome.
	RecordNegotiation(step, outcome string)
	// RecordSweep records one sweep pass.
	RecordSweep(pass string, deleted, failed int, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordDecision(usage.Decision)               {}
func (nopRecorder) RecordNegotiation(string, string)            {}
func (nopRecorder) RecordSweep(string, int, int, time.Duration) {}

// Recorders fans out to every non-nil recorder.
func Recorders(rs ...Recorder) Recorder {
	var out multiRecorder
	for _, r := range rs {
		if r != nil {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nopRecorder{}
	}
	return out
}

type multiRecorder []Recorder

func (m multiRecorder) RecordDecision(d usage.Decision) {
	for _, r := range m {
		r.RecordDecision(d)
	}
}

func (m multiRecorder) RecordNegotiation(step, outcome string) {
	for _, r := range m {
		r.RecordNegotiation(step, outcome)
	}
}

func (m multiRecorder) RecordSweep(pass string, deleted, failed int, elapsed time.Duration) {
	for _, r := range m {
		r.RecordSweep(pass, deleted, failed, elapsed)
	}
}

var (
	_ Recorder = nopRecorder{}
	_ Recorder = multiRecorder(nil)
)

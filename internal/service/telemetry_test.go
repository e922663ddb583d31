package service

import (
	"testing"
	"time"

	"github.com/Sentinel-Gate/Contractgate/internal/domain/usage"
)

func TestRecorders(t *testing.T) {
	t.Parallel()

	if _, ok := Recorders().(nopRecorder); !ok {
		t.Error("Recorders() without recorders should be a no-op")
	}
	if _, ok := Recorders(nil, nil).(nopRecorder); !ok {
		t.Error("Recorders(nil, nil) should be a no-op")
	}

	a, b := &mockRecorder{}, &mockRecorder{}
	r := Recorders(a, nil, b)
	r.RecordDecision(usage.Allow(usage.PatternProvideAccess))
	r.RecordNegotiation("request", "REQUESTED")
	r.RecordSweep(SweepExpiry, 1, 0, time.Second)

	for i, m := range []*mockRecorder{a, b} {
		if len(m.decisions) != 1 || len(m.steps) != 1 || len(m.sweeps) != 1 {
			t.Errorf("recorder %d = %+v", i, m)
		}
	}
}

package service

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sentinel-Gate/Contractgate/internal/domain/usage"
)

// StatsService keeps in-process totals of decisions, negotiation steps and
// sweeps. It is a Recorder and is safe for concurrent use.
type StatsService struct {
	allowed      atomic.Int64
	denied       atomic.Int64
	sweepDeleted atomic.Int64
	sweepErrors  atomic.Int64

	mu           sync.Mutex
	reasons      map[usage.Reason]int64
	negotiations map[string]int64
	lastSweep    time.Time
}

// NewStatsService creates a StatsService with all counters at zero.
func NewStatsService() *StatsService {
	return &StatsService{
		reasons:      make(map[usage.Reason]int64),
		negotiations: make(map[string]int64),
	}
}

// RecordDecision counts d. Denials are also counted per reason.
func (s *StatsService) RecordDecision(d usage.Decision) {
	if d.Allowed {
		s.allowed.Add(1)
		return
	}
	s.denied.Add(1)
	s.mu.Lock()
	s.reasons[d.Reason]++
	s.mu.Unlock()
}

// RecordNegotiation counts one step outcome under "step/outcome".
func (s *StatsService) RecordNegotiation(step, outcome string) {
	s.mu.Lock()
	s.negotiations[step+"/"+outcome]++
	s.mu.Unlock()
}

// RecordSweep adds the pass totals.
func (s *StatsService) RecordSweep(_ string, deleted, failed int, _ time.Duration) {
	s.sweepDeleted.Add(int64(deleted))
	s.sweepErrors.Add(int64(failed))
	s.mu.Lock()
	s.lastSweep = time.Now().UTC()
	s.mu.Unlock()
}

// Stats is a snapshot of the counters.
type Stats struct {
	Allowed      int64                  `json:"allowed"`
	Denied       int64                  `json:"denied"`
	DenyReasons  map[usage.Reason]int64 `json:"deny_reasons"`
	Negotiations map[string]int64       `json:"negotiations"`
	SweepDeleted int64                  `json:"sweep_deleted"`
	SweepErrors  int64                  `json:"sweep_errors"`
	LastSweep    *time.Time             `json:"last_sweep,omitempty"`
}

// GetStats returns a snapshot. Each counter is consistent on its own, the
// snapshot as a whole is not atomic.
func (s *StatsService) GetStats() Stats {
	s.mu.Lock()
	reasons := make(map[usage.Reason]int64, len(s.reasons))
	for k, v := range s.reasons {
		reasons[k] = v
	}
	negotiations := make(map[string]int64, len(s.negotiations))
	for k, v := range s.negotiations {
		negotiations[k] = v
	}
	var last *time.Time
	if !s.lastSweep.IsZero() {
		t := s.lastSweep
		last = &t
	}
	s.mu.Unlock()

	return Stats{
		Allowed:      s.allowed.Load(),
		Denied:       s.denied.Load(),
		DenyReasons:  reasons,
		Negotiations: negotiations,
		SweepDeleted: s.sweepDeleted.Load(),
		SweepErrors:  s.sweepErrors.Load(),
		LastSweep:    last,
	}
}

// Reset sets all counters to zero.
func (s *StatsService) Reset() {
	s.allowed.Store(0)
	s.denied.Store(0)
	s.sweepDeleted.Store(0)
	s.sweepErrors.Store(0)

	s.mu.Lock()
	s.reasons = make(map[usage.Reason]int64)
	s.negotiations = make(map[string]int64)
	s.lastSweep = time.Time{}
	s.mu.Unlock()
}

var _ Recorder = (*StatsService)(nil)

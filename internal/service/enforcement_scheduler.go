package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule runs the sweep once a minute.
const DefaultSweepSchedule = "@every 1m"

// Sweeper runs the enforcement passes. EnforcementService implements it.
type Sweeper interface {
	RunPostDutySweep(ctx context.Context) SweepReport
	RunExpirySweep(ctx context.Context) SweepReport
}

// EnforcementScheduler runs the sweeps on a cron schedule. A run that is
// still in progress when the next one is due causes that one to be skipped.
type EnforcementScheduler struct {
	sweeper  Sweeper
	schedule string
	expiry   bool
	logger   *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	done    chan struct{}
	running bool
}

// NewEnforcementScheduler creates a scheduler. An empty schedule selects
// DefaultSweepSchedule. expiry enables the expiry pass after the post-duty
// pass.
func NewEnforcementScheduler(sweeper Sweeper, schedule string, expiry bool, logger *slog.Logger) *EnforcementScheduler {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	return &EnforcementScheduler{
		sweeper:  sweeper,
		schedule: schedule,
		expiry:   expiry,
		logger:   logger,
	}
}

// Start schedules the sweep and returns. The scheduler stops when ctx is
// cancelled or Stop is called.
func (s *EnforcementScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(s.schedule, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}
	c.Start()
	done := make(chan struct{})
	s.cron = c
	s.done = done
	s.running = true
	s.logger.Info("enforcement scheduler started", "schedule", s.schedule, "expiry", s.expiry)

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-done:
		}
	}()
	return nil
}

// RunOnce runs every enabled pass synchronously.
func (s *EnforcementScheduler) RunOnce(ctx context.Context) []SweepReport {
	reports := []SweepReport{s.sweeper.RunPostDutySweep(ctx)}
	if s.expiry {
		reports = append(reports, s.sweeper.RunExpirySweep(ctx))
	}
	for _, r := range reports {
		if r.Deleted > 0 || r.Errors > 0 {
			s.logger.Info("sweep completed", "pass", r.Pass, "deleted", r.Deleted, "errors", r.Errors, "run_id", r.RunID)
		}
	}
	return reports
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *EnforcementScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil || !s.running {
		return
	}
	<-s.cron.Stop().Done()
	close(s.done)
	s.running = false
	s.logger.Info("enforcement scheduler stopped")
}

// IsRunning reports whether the scheduler is running.
func (s *EnforcementScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled sweep, or nil when not running.
func (s *EnforcementScheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil || !s.running {
		return nil
	}
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}

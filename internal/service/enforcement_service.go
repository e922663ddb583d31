package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sentinel-Gate/Contractgate/internal/domain/contract"
	"github.com/Sentinel-Gate/Contractgate/internal/domain/usage"
)

// Sweep pass names used in logs and metrics.
const (
	SweepPostDuty = "post_duty"
	SweepExpiry   = "expiry"
)

// DataEraser removes artifact payloads and reports whether one was there.
// ExecutionService implements it.
type DataEraser interface {
	DeleteArtifactData(ctx context.Context, artifactID string) (bool, error)
}

// SweepReport summarizes one sweep pass.
type SweepReport struct {
	RunID   string
	Pass    string
	Checked int
	Deleted int
	Skipped int
	Errors  int
	Elapsed time.Duration
}

// EnforcementService re-checks persisted rules for deletion obligations.
// Two passes exist with disjoint scope: the post-duty pass erases artifact
// payloads governed by confirmed agreements, the expiry pass removes
// resources whose offers carry a due deletion duty. Neither touches what
// the other owns. Every item fails on its own; a sweep never aborts.
type EnforcementService struct {
	agreements contract.AgreementStore
	artifacts  contract.ArtifactStore
	contracts  contract.ContractStore
	resources  contract.ResourceStore
	eraser     DataEraser
	logger     *slog.Logger
	recorder   Recorder
	now        func() time.Time
}

// EnforcementOption configures EnforcementService.
type EnforcementOption func(*EnforcementService)

// WithSweepClock overrides the clock.
func WithSweepClock(now func() time.Time) EnforcementOption {
	return func(s *EnforcementService) {
		s.now = now
	}
}

// WithSweepRecorder sets the metrics recorder.
func WithSweepRecorder(r Recorder) EnforcementOption {
	return func(s *EnforcementService) {
		if r != nil {
			s.recorder = r
		}
	}
}

// NewEnforcementService creates an EnforcementService.
func NewEnforcementService(
	agreements contract.AgreementStore,
	artifacts contract.ArtifactStore,
	contracts contract.ContractStore,
	resources contract.ResourceStore,
	eraser DataEraser,
	logger *slog.Logger,
	opts ...EnforcementOption,
) *EnforcementService {
	s := &EnforcementService{
		agreements: agreements,
		artifacts:  artifacts,
		contracts:  contracts,
		resources:  resources,
		eraser:     eraser,
		logger:     logger,
		recorder:   nopRecorder{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunPostDutySweep erases the payload of every artifact targeted by a rule
// of a confirmed agreement whose DELETE duty is due. Running it twice with
// the same clock leaves the same state.
func (s *EnforcementService) RunPostDutySweep(ctx context.Context) SweepReport {
	now := s.now()
	report := SweepReport{RunID: uuid.NewString(), Pass: SweepPostDuty}
	ctx, span := tracer().Start(ctx, "enforcement.PostDutySweep")
	defer span.End()

	agreements, err := s.agreements.List(ctx)
	if err != nil {
		s.logger.Error("sweep: list agreements failed", "run_id", report.RunID, "error", err)
		report.Errors++
		return s.end(report, now, span)
	}

	for _, a := range agreements {
		if ctx.Err() != nil {
			break
		}
		if !a.Confirmed {
			report.Skipped++
			continue
		}
		var governed []contract.Artifact
		loaded := false
		for _, rule := range a.All() {
			report.Checked++
			due, err := usage.DeletionDue(rule, now)
			if err != nil {
				s.logger.Warn("sweep: unreadable deletion duty",
					"run_id", report.RunID, "agreement_id", a.ID, "rule_id", rule.ID, "error", err)
				report.Errors++
				continue
			}
			if !due {
				continue
			}
			if !loaded {
				governed, err = s.artifacts.ArtifactsByAgreement(ctx, a.ID)
				if err != nil {
					s.logger.Warn("sweep: load artifacts failed", "run_id", report.RunID, "agreement_id", a.ID, "error", err)
					report.Errors++
					break
				}
				loaded = true
			}
			for _, art := range governed {
				if !art.Matches(rule.Target) {
					continue
				}
				cleared, err := s.eraser.DeleteArtifactData(ctx, art.ID)
				if err != nil {
					s.logger.Warn("sweep: delete artifact data failed",
						"run_id", report.RunID, "agreement_id", a.ID, "artifact_id", art.ID, "error", err)
					report.Errors++
					continue
				}
				if !cleared {
					continue
				}
				report.Deleted++
				s.logger.Info("artifact data deleted",
					"run_id", report.RunID, "agreement_id", a.ID, "artifact_id", art.ID, "rule_id", rule.ID)
			}
		}
	}
	return s.end(report, now, span)
}

// RunExpirySweep removes every resource with an offer whose rules carry a
// due DELETE duty. Artifact payloads and agreements are left alone.
func (s *EnforcementService) RunExpirySweep(ctx context.Context) SweepReport {
	now := s.now()
	report := SweepReport{RunID: uuid.NewString(), Pass: SweepExpiry}
	ctx, span := tracer().Start(ctx, "enforcement.ExpirySweep")
	defer span.End()

	resources, err := s.resources.List(ctx)
	if err != nil {
		s.logger.Error("sweep: list resources failed", "run_id", report.RunID, "error", err)
		report.Errors++
		return s.end(report, now, span)
	}

	for _, r := range resources {
		if ctx.Err() != nil {
			break
		}
		report.Checked++
		expired, err := s.resourceExpired(ctx, r, now)
		if err != nil {
			s.logger.Warn("sweep: resource check failed", "run_id", report.RunID, "resource_id", r.ID, "error", err)
			report.Errors++
			continue
		}
		if !expired {
			report.Skipped++
			continue
		}
		if err := s.resources.Delete(ctx, r.ID); err != nil {
			s.logger.Warn("sweep: delete resource failed", "run_id", report.RunID, "resource_id", r.ID, "error", err)
			report.Errors++
			continue
		}
		report.Deleted++
		s.logger.Info("resource removed", "run_id", report.RunID, "resource_id", r.ID)
	}
	return s.end(report, now, span)
}

func (s *EnforcementService) resourceExpired(ctx context.Context, r contract.Resource, now time.Time) (bool, error) {
	for _, id := range r.ContractIDs {
		offer, err := s.contracts.Get(ctx, id)
		if err != nil {
			return false, err
		}
		for _, rule := range offer.Rules {
			due, err := usage.DeletionDue(rule, now)
			if err != nil {
				return false, err
			}
			if due {
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *EnforcementService) end(r SweepReport, started time.Time, span trace.Span) SweepReport {
	r.Elapsed = s.now().Sub(started)
	span.SetAttributes(
		attribute.String("sweep.pass", r.Pass),
		attribute.Int("sweep.checked", r.Checked),
		attribute.Int("sweep.deleted", r.Deleted),
		attribute.Int("sweep.errors", r.Errors),
	)
	s.recorder.RecordSweep(r.Pass, r.Deleted, r.Errors, r.Elapsed)
	s.logger.Debug("sweep finished",
		"run_id", r.RunID,
		"pass", r.Pass,
		"checked", r.Checked,
		"deleted", r.Deleted,
		"skipped", r.Skipped,
		"errors", r.Errors,
		"elapsed", r.Elapsed,
	)
	return r
}

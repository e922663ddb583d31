package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sentinel-Gate/Contractgate/internal/domain/contract"
	"github.com/Sentinel-Gate/Contractgate/internal/domain/usage"
)

// Executor is the side-effect surface the decision service calls for the
// logging and notification patterns.
type Executor interface {
	SendLog(ctx context.Context, target string, ts time.Time, issuer string) error
	SendNotification(ctx context.Context, endpoint, target string, ts time.Time, issuer string) error
}

// decisionHandler decides one rule for one pattern.
type decisionHandler func(ctx context.Context, rule usage.Rule, target string, ec usage.EvaluationContext) usage.Decision

// DecisionService is the policy decision point. It maps every pattern to a
// handler and holds no mutable state, so Decide is safe for concurrent use.
type DecisionService struct {
	executor         Executor
	artifacts        contract.ArtifactStore
	logger           *slog.Logger
	recorder         Recorder
	allowUnsupported bool
	now              func() time.Time
	handlers         map[usage.Pattern]decisionHandler
}

// DecisionOption configures DecisionService.
type DecisionOption func(*DecisionService)

// WithAllowUnsupported turns unrecognized patterns into Allow decisions.
func WithAllowUnsupported(allow bool) DecisionOption {
	return func(s *DecisionService) {
		s.allowUnsupported = allow
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) DecisionOption {
	return func(s *DecisionService) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithClock overrides the clock used when a context carries no time.
func WithClock(now func() time.Time) DecisionOption {
	return func(s *DecisionService) {
		s.now = now
	}
}

// NewDecisionService creates a DecisionService. artifacts is only needed for
// DecideAndConsume and may be nil otherwise.
func NewDecisionService(executor Executor, artifacts contract.ArtifactStore, logger *slog.Logger, opts ...DecisionOption) *DecisionService {
	s := &DecisionService{
		executor:  executor,
		artifacts: artifacts,
		logger:    logger,
		recorder:  nopRecorder{},
		now:       time.Now,
	}
	s.handlers = map[usage.Pattern]decisionHandler{
		usage.PatternProvideAccess:            s.provideAccess,
		usage.PatternProhibitAccess:           s.prohibitAccess,
		usage.PatternUsageDuringInterval:      s.interval(usage.PatternUsageDuringInterval),
		usage.PatternUsageUntilDeletion:       s.interval(usage.PatternUsageUntilDeletion),
		usage.PatternDurationUsage:            s.duration,
		usage.PatternNTimesUsage:              s.nTimes,
		usage.PatternUsageLogging:             s.logging,
		usage.PatternUsageNotification:        s.notification,
		usage.PatternConnectorRestrictedUsage: s.connectorRestricted,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Decide evaluates rule under pattern for target. Recognized patterns never
// fail; they deny with a reason instead.
func (s *DecisionService) Decide(ctx context.Context, pattern usage.Pattern, rule usage.Rule, target string, ec usage.EvaluationContext) usage.Decision {
	ctx, span := tracer().Start(ctx, "usage.Decide", trace.WithAttributes(
		attribute.String("usage.pattern", pattern.String()),
		attribute.String("usage.target", target),
	))
	defer span.End()

	if ec.Now.IsZero() {
		ec.Now = s.now()
	}

	var d usage.Decision
	if h, ok := s.handlers[pattern]; ok {
		d = h(ctx, rule, target, ec)
	} else {
		d = s.unsupported(pattern)
	}
	d.Pattern = pattern

	span.SetAttributes(attribute.Bool("usage.allowed", d.Allowed), attribute.String("usage.reason", string(d.Reason)))
	s.record(d, target, ec)
	return d
}

// DecideAndConsume decides an N_TIMES_USAGE rule and counts the access in a
// single atomic store operation, so concurrent callers can never pass the
// limit together. Other patterns are decided as by Decide.
func (s *DecisionService) DecideAndConsume(ctx context.Context, pattern usage.Pattern, rule usage.Rule, artifactID string, ec usage.EvaluationContext) usage.Decision {
	if pattern != usage.PatternNTimesUsage {
		return s.Decide(ctx, pattern, rule, artifactID, ec)
	}

	ctx, span := tracer().Start(ctx, "usage.DecideAndConsume", trace.WithAttributes(
		attribute.String("usage.artifact_id", artifactID),
	))
	defer span.End()

	var d usage.Decision
	limit, err := usage.MaxAccess(rule)
	switch {
	case err != nil:
		d = usage.Deny(pattern, usage.ReasonPolicyRestriction, err.Error())
	case s.artifacts == nil:
		d = usage.Deny(pattern, usage.ReasonExecutionFailed, "no artifact store for access counting")
	default:
		count, ok, incErr := s.artifacts.IncrementAccessIfBelow(ctx, artifactID, limit)
		switch {
		case incErr != nil:
			d = usage.Deny(pattern, usage.ReasonExecutionFailed, incErr.Error())
		case ok:
			d = usage.Allow(pattern)
		default:
			d = usage.Deny(pattern, usage.ReasonAccessNumberReached,
				fmt.Sprintf("access count %d reached maximum %d", count, limit))
		}
	}

	span.SetAttributes(attribute.Bool("usage.allowed", d.Allowed))
	s.record(d, artifactID, ec)
	return d
}

// unsupported handles the final branch for patterns without handler. This is
// the only place the fail-open flag is consulted.
func (s *DecisionService) unsupported(pattern usage.Pattern) usage.Decision {
	if s.allowUnsupported {
		d := usage.Allow(pattern)
		d.Reason = usage.ReasonUnsupportedPattern
		d.Detail = "unsupported pattern allowed by configuration"
		return d
	}
	return usage.Deny(pattern, usage.ReasonPolicyRestriction, "unsupported pattern "+pattern.String())
}

func (s *DecisionService) record(d usage.Decision, target string, ec usage.EvaluationContext) {
	s.recorder.RecordDecision(d)
	if d.Allowed {
		s.logger.Debug("usage allowed", "pattern", d.Pattern, "target", target, "issuer", ec.IssuerConnector)
		return
	}
	s.logger.Info("usage denied",
		"pattern", d.Pattern,
		"target", target,
		"issuer", ec.IssuerConnector,
		"agreement_id", ec.AgreementID,
		"reason", d.Reason,
		"detail", d.Detail,
	)
}

func (s *DecisionService) provideAccess(context.Context, usage.Rule, string, usage.EvaluationContext) usage.Decision {
	return usage.Allow(usage.PatternProvideAccess)
}

func (s *DecisionService) prohibitAccess(context.Context, usage.Rule, string, usage.EvaluationContext) usage.Decision {
	return usage.Deny(usage.PatternProhibitAccess, usage.ReasonPolicyRestriction, "usage prohibited")
}

func (s *DecisionService) interval(p usage.Pattern) decisionHandler {
	return func(_ context.Context, rule usage.Rule, _ string, ec usage.EvaluationContext) usage.Decision {
		iv, err := usage.IntervalOf(rule)
		if err != nil {
			return usage.Deny(p, usage.ReasonInvalidInterval, err.Error())
		}
		if !iv.Contains(ec.Now) {
			return usage.Deny(p, usage.ReasonInvalidInterval,
				fmt.Sprintf("%s is outside %s..%s", ec.Now.UTC().Format(usage.TimeLayout),
					iv.Start.Format(usage.TimeLayout), iv.End.Format(usage.TimeLayout)))
		}
		return usage.Allow(p)
	}
}

func (s *DecisionService) duration(_ context.Context, rule usage.Rule, _ string, ec usage.EvaluationContext) usage.Decision {
	p, err := usage.DurationOf(rule)
	if err != nil {
		return usage.Deny(usage.PatternDurationUsage, usage.ReasonInvalidInterval, err.Error())
	}
	deadline := usage.Deadline(ec.CreationDate, p)
	if ec.Now.After(deadline) {
		return usage.Deny(usage.PatternDurationUsage, usage.ReasonInvalidInterval,
			"usage period ended at "+deadline.UTC().Format(usage.TimeLayout))
	}
	return usage.Allow(usage.PatternDurationUsage)
}

func (s *DecisionService) nTimes(_ context.Context, rule usage.Rule, _ string, ec usage.EvaluationContext) usage.Decision {
	limit, err := usage.MaxAccess(rule)
	if err != nil {
		return usage.Deny(usage.PatternNTimesUsage, usage.ReasonPolicyRestriction, err.Error())
	}
	if ec.AccessCount < limit {
		return usage.Allow(usage.PatternNTimesUsage)
	}
	return usage.Deny(usage.PatternNTimesUsage, usage.ReasonAccessNumberReached,
		fmt.Sprintf("access count %d reached maximum %d", ec.AccessCount, limit))
}

func (s *DecisionService) logging(ctx context.Context, _ usage.Rule, target string, ec usage.EvaluationContext) usage.Decision {
	if s.executor == nil {
		return usage.Deny(usage.PatternUsageLogging, usage.ReasonExecutionFailed, "no executor")
	}
	if err := s.executor.SendLog(ctx, target, ec.Now, ec.IssuerConnector); err != nil {
		return usage.Deny(usage.PatternUsageLogging, usage.ReasonExecutionFailed, err.Error())
	}
	return usage.Allow(usage.PatternUsageLogging)
}

func (s *DecisionService) notification(ctx context.Context, rule usage.Rule, target string, ec usage.EvaluationContext) usage.Decision {
	endpoint, err := usage.NotificationEndpoint(rule)
	if err != nil {
		return usage.Deny(usage.PatternUsageNotification, usage.ReasonExecutionFailed, err.Error())
	}
	if s.executor == nil {
		return usage.Deny(usage.PatternUsageNotification, usage.ReasonExecutionFailed, "no executor")
	}
	if err := s.executor.SendNotification(ctx, endpoint, target, ec.Now, ec.IssuerConnector); err != nil {
		return usage.Deny(usage.PatternUsageNotification, usage.ReasonExecutionFailed, err.Error())
	}
	return usage.Allow(usage.PatternUsageNotification)
}

func (s *DecisionService) connectorRestricted(_ context.Context, rule usage.Rule, _ string, ec usage.EvaluationContext) usage.Decision {
	allowed, err := usage.AllowedConnector(rule)
	if err != nil {
		return usage.Deny(usage.PatternConnectorRestrictedUsage, usage.ReasonInvalidConsumer, err.Error())
	}
	if allowed != ec.IssuerConnector {
		return usage.Deny(usage.PatternConnectorRestrictedUsage, usage.ReasonInvalidConsumer,
			fmt.Sprintf("connector %q is not %q", ec.IssuerConnector, allowed))
	}
	return usage.Allow(usage.PatternConnectorRestrictedUsage)
}

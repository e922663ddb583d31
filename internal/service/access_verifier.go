package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sentinel-Gate/Contractgate/internal/domain/contract"
	"github.com/Sentinel-Gate/Contractgate/internal/domain/usage"
)

// AccessResult is the verdict on one data access attempt.
type AccessResult struct {
	Allowed bool
	// Decisions holds one entry per evaluated rule, in evaluation order.
	Decisions []usage.Decision
	// Denial is the first denying decision, zero when allowed.
	Denial usage.Decision
	// Guard names the guard that refused the access, if any.
	Guard string
}

// classifiedRule is a rule of the agreement paired with its pattern.
// An unclassifiable rule carries the empty pattern.
type classifiedRule struct {
	rule    usage.Rule
	pattern usage.Pattern
}

// AccessVerifier decides whether an artifact may be served under an
// agreement. It resolves the agreement rules for the artifact, runs the
// access guards, and asks the decision service about every rule whose
// pattern is enforced at access time.
type AccessVerifier struct {
	manager   *ContractManager
	decisions *DecisionService
	artifacts contract.ArtifactStore
	guards    *GuardService
	enforced  map[usage.Pattern]bool
	logger    *slog.Logger
	now       func() time.Time
}

// AccessVerifierOption configures AccessVerifier.
type AccessVerifierOption func(*AccessVerifier)

// WithGuards sets the access guards run before any rule is decided.
func WithGuards(g *GuardService) AccessVerifierOption {
	return func(v *AccessVerifier) {
		v.guards = g
	}
}

// WithEnforcedPatterns restricts access-time enforcement to patterns.
// Rules with other recognized patterns are skipped.
func WithEnforcedPatterns(patterns []usage.Pattern) AccessVerifierOption {
	return func(v *AccessVerifier) {
		if len(patterns) == 0 {
			return
		}
		v.enforced = make(map[usage.Pattern]bool, len(patterns))
		for _, p := range patterns {
			v.enforced[p] = true
		}
	}
}

// WithVerifierClock overrides the clock.
func WithVerifierClock(now func() time.Time) AccessVerifierOption {
	return func(v *AccessVerifier) {
		v.now = now
	}
}

// DefaultEnforcedPatterns are the patterns checked when serving data.
// USAGE_UNTIL_DELETION is enforced as its interval here and as a deletion
// obligation by the sweep.
func DefaultEnforcedPatterns() []usage.Pattern {
	return []usage.Pattern{
		usage.PatternProvideAccess,
		usage.PatternProhibitAccess,
		usage.PatternNTimesUsage,
		usage.PatternDurationUsage,
		usage.PatternUsageDuringInterval,
		usage.PatternUsageUntilDeletion,
		usage.PatternUsageLogging,
		usage.PatternUsageNotification,
		usage.PatternConnectorRestrictedUsage,
	}
}

// NewAccessVerifier creates an AccessVerifier.
func NewAccessVerifier(manager *ContractManager, decisions *DecisionService, artifacts contract.ArtifactStore, logger *slog.Logger, opts ...AccessVerifierOption) *AccessVerifier {
	v := &AccessVerifier{
		manager:   manager,
		decisions: decisions,
		artifacts: artifacts,
		logger:    logger,
		now:       time.Now,
	}
	WithEnforcedPatterns(DefaultEnforcedPatterns())(v)
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks one access attempt. The agreement must be valid for the
// artifact and the issuer. Rules are then decided in three phases: pure
// checks, the access count, and the logging and notification side effects.
// Nothing is delivered for an access refused before the effects run, and a
// count reserved for an access that a failing effect refuses is given back.
// Errors are returned only when the agreement itself is unusable.
func (v *AccessVerifier) Verify(ctx context.Context, req usage.AccessRequest) (AccessResult, error) {
	ctx, span := tracer().Start(ctx, "usage.Verify", trace.WithAttributes(
		attribute.String("usage.agreement_id", req.AgreementID),
		attribute.String("usage.artifact_id", req.ArtifactID),
	))
	defer span.End()

	if req.Now.IsZero() {
		req.Now = v.now()
	}

	agreement, err := v.manager.ValidateContract(ctx, req.AgreementID, req.ArtifactID, req.IssuerConnector)
	if err != nil {
		return AccessResult{}, err
	}
	artifact, err := v.artifacts.Get(ctx, req.ArtifactID)
	if err != nil {
		return AccessResult{}, err
	}

	rules := contract.RulesForTarget(agreement.All(), *artifact)
	if len(rules) == 0 {
		d := usage.Deny("", usage.ReasonPolicyRestriction, fmt.Sprintf("agreement %s has no rule for artifact %s", agreement.ID, artifact.ID))
		return v.finish(span, AccessResult{Denial: d, Decisions: []usage.Decision{d}}), nil
	}

	classified := make([]classifiedRule, 0, len(rules))
	for _, r := range rules {
		p, err := usage.Classify(r)
		if err != nil {
			v.logger.Debug("rule not classified", "agreement_id", agreement.ID, "rule_id", r.ID, "error", err)
			p = ""
		}
		classified = append(classified, classifiedRule{rule: r, pattern: p})
		req.Patterns = append(req.Patterns, p)
	}

	req.Target = targetOf(*artifact)
	req.AccessCount = artifact.AccessCount
	if v.guards != nil {
		if verdict := v.guards.Check(ctx, req); verdict.Denied {
			d := usage.Deny("", usage.ReasonPolicyRestriction, "refused by guard "+verdict.Guard)
			return v.finish(span, AccessResult{Denial: d, Decisions: []usage.Decision{d}, Guard: verdict.Guard}), nil
		}
	}

	ec := usage.EvaluationContext{
		Now:             req.Now,
		IssuerConnector: req.IssuerConnector,
		AccessCount:     artifact.AccessCount,
		CreationDate:    artifact.CreationDate,
		AgreementID:     agreement.ID,
	}

	var result AccessResult
	var counted, effects []classifiedRule
	for _, c := range classified {
		switch {
		case c.pattern == usage.PatternNTimesUsage && v.enforced[c.pattern]:
			counted = append(counted, c)
			continue
		case c.pattern == usage.PatternUsageLogging || c.pattern == usage.PatternUsageNotification:
			if v.enforced[c.pattern] {
				effects = append(effects, c)
			}
			continue
		case c.pattern.Valid() && !v.enforced[c.pattern]:
			continue
		}
		d := v.decisions.Decide(ctx, c.pattern, c.rule, req.Target, ec)
		if done := result.add(d); done {
			return v.finish(span, result), nil
		}
	}

	reserved := false
	if len(counted) > 0 {
		d := v.consume(ctx, counted, artifact.ID, ec)
		if done := result.add(d); done {
			return v.finish(span, result), nil
		}
		reserved = true
	}

	for _, c := range effects {
		d := v.decisions.Decide(ctx, c.pattern, c.rule, req.Target, ec)
		if done := result.add(d); done {
			if reserved {
				v.release(ctx, artifact.ID)
			}
			return v.finish(span, result), nil
		}
	}

	if !reserved {
		if _, err := v.artifacts.IncrementAccess(ctx, artifact.ID); err != nil {
			v.logger.Warn("access count not updated", "artifact_id", artifact.ID, "error", err)
		}
	}
	result.Allowed = true
	return v.finish(span, result), nil
}

// consume checks the tightest N_TIMES limit and increments the counter
// atomically. An allow decision means one access has been reserved.
func (v *AccessVerifier) consume(ctx context.Context, counted []classifiedRule, artifactID string, ec usage.EvaluationContext) usage.Decision {

	tightest := counted[0]
	tightestLimit, err := usage.MaxAccess(tightest.rule)
	if err == nil {
		for _, c := range counted[1:] {
			limit, err := usage.MaxAccess(c.rule)
			if err != nil {
				tightest = c
				break
			}
			if limit < tightestLimit {
				tightest, tightestLimit = c, limit
			}
		}
	}
	return v.decisions.DecideAndConsume(ctx, tightest.pattern, tightest.rule, artifactID, ec)
}

// release gives back an access reserved by consume.
func (v *AccessVerifier) release(ctx context.Context, artifactID string) {
	if _, err := v.artifacts.DecrementAccess(ctx, artifactID); err != nil {
		v.logger.Warn("reserved access not released", "artifact_id", artifactID, "error", err)
	}
}

// add appends d and reports whether evaluation stops.
func (r *AccessResult) add(d usage.Decision) bool {
	r.Decisions = append(r.Decisions, d)
	if !d.Allowed {
		r.Denial = d
		return true
	}
	return false
}

func (v *AccessVerifier) finish(span trace.Span, r AccessResult) AccessResult {
	span.SetAttributes(attribute.Bool("usage.allowed", r.Allowed))
	if !r.Allowed {
		span.SetAttributes(attribute.String("usage.reason", string(r.Denial.Reason)))
	}
	return r
}

// IsAccessDenied reports whether err means the agreement cannot be used,
// as opposed to an infrastructure failure.
func IsAccessDenied(err error) bool {
	return errors.Is(err, contract.ErrContractMismatch) ||
		errors.Is(err, contract.ErrNotConfirmed) ||
		errors.Is(err, contract.ErrResourceNotFound)
}

// targetOf is the reference rules use for the artifact.
func targetOf(a contract.Artifact) string {
	if a.RemoteID != "" {
		return a.RemoteID
	}
	return a.ID
}

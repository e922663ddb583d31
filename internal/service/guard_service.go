package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/cel-go/cel"

	celeval "github.com/Sentinel-Gate/Contractgate/internal/adapter/outbound/cel"
	"github.com/Sentinel-Gate/Contractgate/internal/domain/usage"
)

// GuardAction is what happens when a guard condition matches.
type GuardAction string

const (
	// GuardDeny refuses the access before any usage rule is evaluated.
	GuardDeny GuardAction = "deny"
	// GuardAudit only logs the match.
	GuardAudit GuardAction = "audit"
)

// GuardDefinition is an operator-defined condition over an access request.
type GuardDefinition struct {
	Name      string
	Condition string
	Action    GuardAction
}

type compiledGuard struct {
	GuardDefinition
	program cel.Program
}

// GuardVerdict is the outcome of running the guards.
type GuardVerdict struct {
	Denied bool
	Guard  string
}

// GuardService evaluates access guards in declaration order. Guards are
// compiled once at construction and read-only afterwards.
type GuardService struct {
	evaluator *celeval.Evaluator
	guards    []compiledGuard
	logger    *slog.Logger
}

// NewGuardService compiles the guard definitions. Any invalid condition
// fails construction.
func NewGuardService(defs []GuardDefinition, logger *slog.Logger) (*GuardService, error) {
	evaluator, err := celeval.NewEvaluator()
	if err != nil {
		return nil, err
	}
	s := &GuardService{evaluator: evaluator, logger: logger}
	for _, d := range defs {
		prg, err := evaluator.Compile(d.Condition)
		if err != nil {
			return nil, fmt.Errorf("guard %q: %w", d.Name, err)
		}
		if d.Action == "" {
			d.Action = GuardDeny
		}
		if d.Action != GuardDeny && d.Action != GuardAudit {
			return nil, fmt.Errorf("guard %q: unknown action %q", d.Name, d.Action)
		}
		s.guards = append(s.guards, compiledGuard{GuardDefinition: d, program: prg})
	}
	return s, nil
}

// Len returns the number of compiled guards.
func (s *GuardService) Len() int {
	return len(s.guards)
}

// Check runs every guard against req. The first matching deny guard wins.
// A guard that fails to evaluate denies.
func (s *GuardService) Check(ctx context.Context, req usage.AccessRequest) GuardVerdict {
	for _, g := range s.guards {
		matched, err := s.evaluator.Evaluate(ctx, g.program, req)
		if err != nil {
			s.logger.Warn("guard evaluation failed", "guard", g.Name, "error", err)
			return GuardVerdict{Denied: true, Guard: g.Name}
		}
		if !matched {
			continue
		}
		if g.Action == GuardAudit {
			s.logger.Info("guard matched",
				"guard", g.Name,
				"issuer", req.IssuerConnector,
				"artifact_id", req.ArtifactID,
				"agreement_id", req.AgreementID,
			)
			continue
		}
		return GuardVerdict{Denied: true, Guard: g.Name}
	}
	return GuardVerdict{}
}

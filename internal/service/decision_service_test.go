package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Sentinel-Gate/Contractgate/internal/adapter/outbound/memory"
	"github.com/Sentinel-Gate/Contractgate/internal/domain/contract"
	"github.com/Sentinel-Gate/Contractgate/internal/domain/usage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := usage.ParseTime(s)
	if err != nil {
		t.Fatalf("ParseTime(%q): %v", s, err)
	}
	return ts
}

// mockExecutor records deliveries and fails when err is set.
type mockExecutor struct {
	mu            sync.Mutex
	err           error
	logs          []string
	notifications []string
}

func (m *mockExecutor) SendLog(_ context.Context, target string, _ time.Time, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.logs = append(m.logs, target)
	return nil
}

func (m *mockExecutor) SendNotification(_ context.Context, endpoint, _ string, _ time.Time, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.notifications = append(m.notifications, endpoint)
	return nil
}

// mockRecorder counts recorded decisions.
type mockRecorder struct {
	mu        sync.Mutex
	decisions []usage.Decision
	steps     []string
	sweeps    []string
}

func (m *mockRecorder) RecordDecision(d usage.Decision) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions = append(m.decisions, d)
}

func (m *mockRecorder) RecordNegotiation(step, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, step+":"+outcome)
}

func (m *mockRecorder) RecordSweep(pass string, _, _ int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweeps = append(m.sweeps, pass)
}

func countRule(op usage.Operator, value string) usage.Rule {
	return usage.Rule{
		Kind: usage.KindPermission,
		Constraints: []usage.Constraint{{
			LeftOperand:  usage.LeftOperandCount,
			Operator:     op,
			RightOperand: usage.RightOperand{Value: value, Type: usage.TypeInteger},
		}},
	}
}

func intervalRule(after, before string) usage.Rule {
	return usage.Rule{
		Kind: usage.KindPermission,
		Constraints: []usage.Constraint{
			{LeftOperand: usage.LeftOperandPolicyEvaluationTime, Operator: usage.OperatorAfter, RightOperand: usage.RightOperand{Value: after, Type: usage.TypeDateTimeStamp}},
			{LeftOperand: usage.LeftOperandPolicyEvaluationTime, Operator: usage.OperatorBefore, RightOperand: usage.RightOperand{Value: before, Type: usage.TypeDateTimeStamp}},
		},
	}
}

func durationRule(value string) usage.Rule {
	return usage.Rule{
		Kind: usage.KindPermission,
		Constraints: []usage.Constraint{{
			LeftOperand:  usage.LeftOperandElapsedTime,
			Operator:     usage.OperatorDurationEQ,
			RightOperand: usage.RightOperand{Value: value, Type: usage.TypeDuration},
		}},
	}
}

func TestDecide_NTimesUsage(t *testing.T) {
	t.Parallel()

	svc := NewDecisionService(&mockExecutor{}, nil, discardLogger())
	rule := countRule(usage.OperatorLTEQ, "3")

	for count := int64(0); count < 6; count++ {
		d := svc.Decide(context.Background(), usage.PatternNTimesUsage, rule, "t", usage.EvaluationContext{AccessCount: count})
		wantAllowed := count < 3
		if d.Allowed != wantAllowed {
			t.Errorf("accessCount=%d: Allowed = %v, want %v", count, d.Allowed, wantAllowed)
		}
		if !wantAllowed && d.Reason != usage.ReasonAccessNumberReached {
			t.Errorf("accessCount=%d: Reason = %v, want AccessNumberReached", count, d.Reason)
		}
	}
}

func TestDecide_UsageDuringInterval(t *testing.T) {
	t.Parallel()

	svc := NewDecisionService(&mockExecutor{}, nil, discardLogger())
	rule := intervalRule("2020-01-01T00:00:00Z", "2030-01-01T00:00:00Z")

	d := svc.Decide(context.Background(), usage.PatternUsageDuringInterval, rule, "t",
		usage.EvaluationContext{Now: mustParse(t, "2025-01-01T00:00:00Z")})
	if !d.Allowed {
		t.Errorf("inside interval: %+v", d)
	}

	d = svc.Decide(context.Background(), usage.PatternUsageDuringInterval, rule, "t",
		usage.EvaluationContext{Now: mustParse(t, "2031-01-01T00:00:00Z")})
	if d.Allowed || d.Reason != usage.ReasonInvalidInterval {
		t.Errorf("after interval: %+v", d)
	}

	broken := intervalRule("whenever", "2030-01-01T00:00:00Z")
	d = svc.Decide(context.Background(), usage.PatternUsageUntilDeletion, broken, "t",
		usage.EvaluationContext{Now: mustParse(t, "2025-01-01T00:00:00Z")})
	if d.Allowed || d.Reason != usage.ReasonInvalidInterval {
		t.Errorf("unparseable bound: %+v", d)
	}
}

func TestDecide_DurationUsage(t *testing.T) {
	t.Parallel()

	svc := NewDecisionService(&mockExecutor{}, nil, discardLogger())
	rule := durationRule("P1D")
	created := mustParse(t, "2024-01-01T00:00:00Z")

	tests := []struct {
		now  string
		want bool
	}{
		{"2024-01-01T12:00:00Z", true},
		{"2024-01-02T00:00:00Z", true},
		{"2024-01-03T00:00:00Z", false},
	}
	for _, tt := range tests {
		d := svc.Decide(context.Background(), usage.PatternDurationUsage, rule, "t",
			usage.EvaluationContext{Now: mustParse(t, tt.now), CreationDate: created})
		if d.Allowed != tt.want {
			t.Errorf("now=%s: Allowed = %v, want %v (%s)", tt.now, d.Allowed, tt.want, d.Detail)
		}
	}

	d := svc.Decide(context.Background(), usage.PatternDurationUsage, durationRule("forever"), "t",
		usage.EvaluationContext{Now: created, CreationDate: created})
	if d.Allowed || d.Reason != usage.ReasonInvalidInterval {
		t.Errorf("unparseable duration: %+v", d)
	}
}

func TestDecide_SimplePatterns(t *testing.T) {
	t.Parallel()

	svc := NewDecisionService(&mockExecutor{}, nil, discardLogger())
	ctx := context.Background()

	if d := svc.Decide(ctx, usage.PatternProvideAccess, usage.Rule{}, "t", usage.EvaluationContext{}); !d.Allowed {
		t.Errorf("PROVIDE_ACCESS: %+v", d)
	}
	d := svc.Decide(ctx, usage.PatternProhibitAccess, usage.Rule{}, "t", usage.EvaluationContext{})
	if d.Allowed || d.Reason != usage.ReasonPolicyRestriction {
		t.Errorf("PROHIBIT_ACCESS: %+v", d)
	}
	if d.Pattern != usage.PatternProhibitAccess {
		t.Errorf("Pattern = %v", d.Pattern)
	}
}

func TestDecide_ConnectorRestricted(t *testing.T) {
	t.Parallel()

	svc := NewDecisionService(&mockExecutor{}, nil, discardLogger())
	rule := usage.Rule{Kind: usage.KindPermission, Constraints: []usage.Constraint{{
		LeftOperand:  usage.LeftOperandEndpoint,
		Operator:     usage.OperatorEQ,
		RightOperand: usage.RightOperand{Value: "https://consumer.example", Type: usage.TypeAnyURI},
	}}}

	d := svc.Decide(context.Background(), usage.PatternConnectorRestrictedUsage, rule, "t",
		usage.EvaluationContext{IssuerConnector: "https://consumer.example"})
	if !d.Allowed {
		t.Errorf("matching connector: %+v", d)
	}
	d = svc.Decide(context.Background(), usage.PatternConnectorRestrictedUsage, rule, "t",
		usage.EvaluationContext{IssuerConnector: "https://intruder.example"})
	if d.Allowed || d.Reason != usage.ReasonInvalidConsumer {
		t.Errorf("other connector: %+v", d)
	}
}

func TestDecide_LoggingAndNotification(t *testing.T) {
	t.Parallel()

	exec := &mockExecutor{}
	svc := NewDecisionService(exec, nil, discardLogger())
	ctx := context.Background()

	logRule := usage.Rule{Kind: usage.KindPermission, PostDuties: []usage.Rule{{Kind: usage.KindDuty, Actions: []usage.Action{usage.ActionLog}}}}
	if d := svc.Decide(ctx, usage.PatternUsageLogging, logRule, "t", usage.EvaluationContext{}); !d.Allowed {
		t.Errorf("logging acknowledged: %+v", d)
	}

	notifyRule := usage.Rule{Kind: usage.KindPermission, PostDuties: []usage.Rule{{
		Kind:    usage.KindDuty,
		Actions: []usage.Action{usage.ActionNotify},
		Constraints: []usage.Constraint{{
			LeftOperand:  usage.LeftOperandEndpoint,
			Operator:     usage.OperatorEQ,
			RightOperand: usage.RightOperand{Value: "https://hooks.example/usage"},
		}},
	}}}
	if d := svc.Decide(ctx, usage.PatternUsageNotification, notifyRule, "t", usage.EvaluationContext{}); !d.Allowed {
		t.Errorf("notification acknowledged: %+v", d)
	}
	if len(exec.logs) != 1 || len(exec.notifications) != 1 || exec.notifications[0] != "https://hooks.example/usage" {
		t.Errorf("deliveries = %v / %v", exec.logs, exec.notifications)
	}

	exec.err = errors.New("connection refused")
	d := svc.Decide(ctx, usage.PatternUsageLogging, logRule, "t", usage.EvaluationContext{})
	if d.Allowed || d.Reason != usage.ReasonExecutionFailed {
		t.Errorf("logging failed: %+v", d)
	}
	d = svc.Decide(ctx, usage.PatternUsageNotification, notifyRule, "t", usage.EvaluationContext{})
	if d.Allowed || d.Reason != usage.ReasonExecutionFailed {
		t.Errorf("notification failed: %+v", d)
	}
}

func TestDecide_UnsupportedPattern(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	strict := NewDecisionService(&mockExecutor{}, nil, discardLogger())
	d := strict.Decide(ctx, usage.Pattern(""), usage.Rule{}, "t", usage.EvaluationContext{})
	if d.Allowed || d.Reason != usage.ReasonPolicyRestriction {
		t.Errorf("strict: %+v", d)
	}

	open := NewDecisionService(&mockExecutor{}, nil, discardLogger(), WithAllowUnsupported(true))
	d = open.Decide(ctx, usage.Pattern("SOMETHING_NEW"), usage.Rule{}, "t", usage.EvaluationContext{})
	if !d.Allowed || d.Reason != usage.ReasonUnsupportedPattern {
		t.Errorf("fail-open: %+v", d)
	}

	d = open.Decide(ctx, usage.PatternProhibitAccess, usage.Rule{}, "t", usage.EvaluationContext{})
	if d.Allowed {
		t.Error("fail-open flag must not affect recognized patterns")
	}
}

func TestDecide_RecordsMetrics(t *testing.T) {
	t.Parallel()

	rec := &mockRecorder{}
	svc := NewDecisionService(&mockExecutor{}, nil, discardLogger(), WithRecorder(rec))
	svc.Decide(context.Background(), usage.PatternProvideAccess, usage.Rule{}, "t", usage.EvaluationContext{})
	svc.Decide(context.Background(), usage.PatternProhibitAccess, usage.Rule{}, "t", usage.EvaluationContext{})
	if len(rec.decisions) != 2 || rec.decisions[1].Result() != "deny" {
		t.Errorf("recorded = %+v", rec.decisions)
	}
}

func TestDecideAndConsume_ConcurrentSingleUse(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewArtifactStore()
	if err := store.Create(ctx, &contract.Artifact{ID: "art-1"}); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	svc := NewDecisionService(&mockExecutor{}, store, discardLogger())
	rule := countRule(usage.OperatorEQ, "1")

	const n = 50
	results := make(chan usage.Decision, n)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			results <- svc.DecideAndConsume(ctx, usage.PatternNTimesUsage, rule, "art-1", usage.EvaluationContext{})
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	allowed, denied := 0, 0
	for d := range results {
		if d.Allowed {
			allowed++
			continue
		}
		if d.Reason != usage.ReasonAccessNumberReached {
			t.Errorf("unexpected deny reason %v", d.Reason)
		}
		denied++
	}
	if allowed != 1 || denied != n-1 {
		t.Errorf("allowed=%d denied=%d, want 1 and %d", allowed, denied, n-1)
	}
}

func TestDecideAndConsume_DelegatesOtherPatterns(t *testing.T) {
	t.Parallel()

	svc := NewDecisionService(&mockExecutor{}, nil, discardLogger())
	d := svc.DecideAndConsume(context.Background(), usage.PatternProvideAccess, usage.Rule{}, "art-1", usage.EvaluationContext{})
	if !d.Allowed {
		t.Errorf("DecideAndConsume(PROVIDE_ACCESS) = %+v", d)
	}

	d = svc.DecideAndConsume(context.Background(), usage.PatternNTimesUsage, countRule(usage.OperatorEQ, "1"), "art-1", usage.EvaluationContext{})
	if d.Allowed || d.Reason != usage.ReasonExecutionFailed {
		t.Errorf("DecideAndConsume without store = %+v", d)
	}
}

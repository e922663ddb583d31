package service

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"testing"
	"time"

	"github.com/Sentinel-Gate/Contractgate/internal/adapter/outbound/memory"
	"github.com/Sentinel-Gate/Contractgate/internal/domain/contract"
	"github.com/Sentinel-Gate/Contractgate/internal/domain/usage"
)

const (
	providerID = "https://provider.example/connector"
	consumerID = "https://consumer.example/connector"
	targetA    = "https://provider.example/artifact/a"
	targetB    = "https://provider.example/artifact/b"
)

type staticIdentity string

func (s staticIdentity) ConnectorID() string { return string(s) }

// fakeSerializer hashes the JSON form of an agreement, or fails when err is set.
type fakeSerializer struct {
	err error
}

func (f *fakeSerializer) SerializeAgreement(a *contract.ContractAgreement) ([]byte, uint64, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	data, err := json.Marshal(a)
	if err != nil {
		return nil, 0, err
	}
	h := fnv.New64a()
	_, _ = h.Write(data)
	return data, h.Sum64(), nil
}

type managerFixture struct {
	agreements *memory.MemoryAgreementStore
	artifacts  *memory.MemoryArtifactStore
	contracts  *memory.MemoryContractStore
	serializer *fakeSerializer
	recorder   *mockRecorder
	now        time.Time
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()
	ctx := context.Background()
	f := &managerFixture{
		agreements: memory.NewAgreementStore(),
		artifacts:  memory.NewArtifactStore(),
		contracts:  memory.NewContractStore(),
		serializer: &fakeSerializer{},
		recorder:   &mockRecorder{},
		now:        mustParse(t, "2025-06-01T12:00:00Z"),
	}
	for _, a := range []contract.Artifact{
		{ID: "art-a", RemoteID: targetA},
		{ID: "art-b", RemoteID: targetB},
	} {
		a := a
		if err := f.artifacts.Create(ctx, &a); err != nil {
			t.Fatalf("Create artifact: %v", err)
		}
	}
	if err := f.contracts.Create(ctx, &contract.Contract{
		ID:    "offer-1",
		Rules: []usage.Rule{offeredRule(targetA), offeredRule(targetB)},
	}); err != nil {
		t.Fatalf("Create offer: %v", err)
	}
	return f
}

func (f *managerFixture) manager(identity string) *ContractManager {
	return NewContractManager(
		staticIdentity(identity),
		f.agreements, f.artifacts, f.contracts, f.serializer,
		discardLogger(),
		WithManagerClock(func() time.Time { return f.now }),
		WithManagerRecorder(f.recorder),
	)
}

func offeredRule(target string) usage.Rule {
	r := countRule(usage.OperatorLTEQ, "5")
	r.ID = "offer-rule-" + target
	r.Target = target
	r.Actions = []usage.Action{usage.ActionUse}
	return r
}

func requestedRule(target string) usage.Rule {
	r := offeredRule(target)
	r.ID = "req-rule-" + target
	return r
}

func TestContractManager_BuildContractRequest(t *testing.T) {
	t.Parallel()

	f := newManagerFixture(t)
	m := f.manager(consumerID)

	req, err := m.BuildContractRequest([]usage.Rule{requestedRule(targetA)})
	if err != nil {
		t.Fatalf("BuildContractRequest() error: %v", err)
	}
	if req.ID == "" || req.Consumer != consumerID {
		t.Errorf("request = %+v", req)
	}
	if !req.ContractDate.Equal(f.now) {
		t.Errorf("ContractDate = %v, want %v", req.ContractDate, f.now)
	}
	if len(req.Permissions) != 1 || req.Permissions[0].Assignee != consumerID {
		t.Errorf("Permissions = %+v", req.Permissions)
	}

	noTarget := requestedRule("")
	if _, err := m.BuildContractRequest([]usage.Rule{noTarget}); !errors.Is(err, contract.ErrMissingTarget) {
		t.Errorf("missing target error = %v, want ErrMissingTarget", err)
	}

	badKind := requestedRule(targetA)
	badKind.Kind = "obligation"
	if _, err := m.BuildContractRequest([]usage.Rule{requestedRule(targetB), badKind}); !errors.Is(err, contract.ErrUnknownRuleKind) {
		t.Errorf("unknown kind error = %v, want ErrUnknownRuleKind", err)
	}
}

func TestContractManager_ValidateRequestAgainstOffers(t *testing.T) {
	t.Parallel()

	f := newManagerFixture(t)
	m := f.manager(providerID)
	offers := []contract.Contract{{ID: "o", Rules: []usage.Rule{offeredRule(targetA)}}}

	tests := []struct {
		name      string
		requested []usage.Rule
		target    string
		want      bool
	}{
		{"same content", []usage.Rule{requestedRule(targetA)}, targetA, true},
		{"different target", []usage.Rule{requestedRule(targetB)}, targetB, false},
		{"no rules for target", []usage.Rule{requestedRule(targetA)}, targetB, false},
		{"changed constraint", func() []usage.Rule {
			r := requestedRule(targetA)
			r.Constraints[0].RightOperand.Value = "50"
			return []usage.Rule{r}
		}(), targetA, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.ValidateRequestAgainstOffers(tt.requested, offers, tt.target); got != tt.want {
				t.Errorf("ValidateRequestAgainstOffers() = %v, want %v", got, tt.want)
			}
		})
	}

	restricted := []contract.Contract{{ID: "o", Consumer: "https://other.example", Rules: []usage.Rule{offeredRule(targetA)}}}
	r := requestedRule(targetA)
	r.Assignee = consumerID
	if m.ValidateRequestAgainstOffers([]usage.Rule{r}, restricted, targetA) {
		t.Error("offer restricted to another consumer should not match")
	}

	expired := []contract.Contract{{ID: "o", End: f.now.Add(-time.Hour), Rules: []usage.Rule{offeredRule(targetA)}}}
	if m.ValidateRequestAgainstOffers([]usage.Rule{requestedRule(targetA)}, expired, targetA) {
		t.Error("expired offer should not match")
	}
}

func TestContractManager_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newManagerFixture(t)
	consumer := f.manager(consumerID)
	provider := f.manager(providerID)

	req, err := consumer.BuildContractRequest([]usage.Rule{requestedRule(targetA), requestedRule(targetB)})
	if err != nil {
		t.Fatalf("BuildContractRequest() error: %v", err)
	}

	agreement, err := provider.ProcessContractRequest(ctx, req, consumerID)
	if err != nil {
		t.Fatalf("ProcessContractRequest() error: %v", err)
	}
	if agreement.Confirmed {
		t.Error("provider agreement should start unconfirmed")
	}
	if agreement.Provider != providerID || agreement.Consumer != consumerID {
		t.Errorf("agreement parties = %q/%q", agreement.Provider, agreement.Consumer)
	}
	if agreement.ValueDigest == 0 || len(agreement.SerializedValue) == 0 {
		t.Error("agreement should carry its serialized value and digest")
	}
	linked, err := f.artifacts.ArtifactsByAgreement(ctx, agreement.ID)
	if err != nil || len(linked) != 2 {
		t.Fatalf("linked artifacts = %v, %v; want 2", linked, err)
	}

	validated, err := consumer.ValidateContractAgreement(agreement, req)
	if err != nil {
		t.Fatalf("ValidateContractAgreement() error: %v", err)
	}

	confirmed, err := provider.ConfirmAgreement(ctx, validated)
	if err != nil {
		t.Fatalf("ConfirmAgreement() error: %v", err)
	}
	if !confirmed.Confirmed {
		t.Error("agreement should be confirmed")
	}

	if _, err := provider.ValidateContract(ctx, agreement.ID, "art-a", consumerID); err != nil {
		t.Errorf("ValidateContract() error: %v", err)
	}

	if len(f.recorder.steps) < 2 || f.recorder.steps[0] != "request:AGREED_UNCONFIRMED" || f.recorder.steps[1] != "confirm:CONFIRMED" {
		t.Errorf("recorded steps = %v", f.recorder.steps)
	}
}

func TestContractManager_ProcessContractRequest_Rejected(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newManagerFixture(t)
	provider := f.manager(providerID)

	tampered := requestedRule(targetA)
	tampered.Constraints[0].RightOperand.Value = "500"
	req := &contract.ContractRequest{ID: "r", Consumer: consumerID, RuleSet: contract.Partition([]usage.Rule{tampered})}

	if _, err := provider.ProcessContractRequest(ctx, req, consumerID); !errors.Is(err, contract.ErrContractMismatch) {
		t.Fatalf("error = %v, want ErrContractMismatch", err)
	}
	if all, _ := f.agreements.List(ctx); len(all) != 0 {
		t.Errorf("rejected request left %d agreements", len(all))
	}
	if len(f.recorder.steps) != 1 || f.recorder.steps[0] != "request:REJECTED" {
		t.Errorf("recorded steps = %v", f.recorder.steps)
	}

	wrongIssuer := &contract.ContractRequest{ID: "r2", Consumer: consumerID, RuleSet: contract.Partition([]usage.Rule{requestedRule(targetA)})}
	if _, err := provider.ProcessContractRequest(ctx, wrongIssuer, "https://mallory.example"); !errors.Is(err, contract.ErrContractMismatch) {
		t.Errorf("issuer mismatch error = %v, want ErrContractMismatch", err)
	}
}

func TestContractManager_ValidateContractAgreement_Tampered(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newManagerFixture(t)
	consumer := f.manager(consumerID)
	provider := f.manager(providerID)

	req, err := consumer.BuildContractRequest([]usage.Rule{requestedRule(targetA)})
	if err != nil {
		t.Fatalf("BuildContractRequest() error: %v", err)
	}
	agreement, err := provider.ProcessContractRequest(ctx, req, consumerID)
	if err != nil {
		t.Fatalf("ProcessContractRequest() error: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(a *contract.ContractAgreement)
	}{
		{"consumer", func(a *contract.ContractAgreement) { a.Consumer = "https://mallory.example" }},
		{"no provider", func(a *contract.ContractAgreement) { a.Provider = "" }},
		{"rule content", func(a *contract.ContractAgreement) { a.Permissions[0].Constraints[0].RightOperand.Value = "9" }},
		{"extra rule", func(a *contract.ContractAgreement) { a.Permissions = append(a.Permissions, requestedRule(targetB)) }},
		{"assignee", func(a *contract.ContractAgreement) { a.Permissions[0].Assignee = "https://mallory.example" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tampered := agreement.Clone()
			tt.mutate(tampered)
			if _, err := consumer.ValidateContractAgreement(tampered, req); !errors.Is(err, contract.ErrContractMismatch) {
				t.Errorf("error = %v, want ErrContractMismatch", err)
			}
		})
	}
}

func TestContractManager_ConfirmAgreement_Mismatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newManagerFixture(t)
	provider := f.manager(providerID)
	req := &contract.ContractRequest{ID: "r", Consumer: consumerID, RuleSet: contract.Partition([]usage.Rule{requestedRule(targetA)})}

	agreement, err := provider.ProcessContractRequest(ctx, req, consumerID)
	if err != nil {
		t.Fatalf("ProcessContractRequest() error: %v", err)
	}
	tampered := agreement.Clone()
	tampered.Permissions[0].Constraints[0].RightOperand.Value = "99"

	if _, err := provider.ConfirmAgreement(ctx, tampered); !errors.Is(err, contract.ErrContractMismatch) {
		t.Fatalf("error = %v, want ErrContractMismatch", err)
	}
	if _, err := f.agreements.Get(ctx, agreement.ID); !errors.Is(err, contract.ErrResourceNotFound) {
		t.Errorf("rejected agreement should be deleted, Get() error = %v", err)
	}
}

func TestContractManager_BuildContractAgreement_Compensation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("serializer failure", func(t *testing.T) {
		f := newManagerFixture(t)
		f.serializer.err = errors.New("encoder down")
		provider := f.manager(providerID)
		req := &contract.ContractRequest{ID: "r", Consumer: consumerID, RuleSet: contract.Partition([]usage.Rule{requestedRule(targetA)})}

		if _, err := provider.BuildContractAgreement(ctx, req, consumerID); err == nil {
			t.Fatal("expected error")
		}
		if all, _ := f.agreements.List(ctx); len(all) != 0 {
			t.Errorf("placeholder left behind: %d agreements", len(all))
		}
	})

	t.Run("missing artifact", func(t *testing.T) {
		f := newManagerFixture(t)
		provider := f.manager(providerID)
		req := &contract.ContractRequest{ID: "r", Consumer: consumerID, RuleSet: contract.Partition([]usage.Rule{requestedRule("https://provider.example/artifact/gone")})}

		if _, err := provider.BuildContractAgreement(ctx, req, consumerID); !errors.Is(err, contract.ErrResourceNotFound) {
			t.Fatalf("error = %v, want ErrResourceNotFound", err)
		}
		if all, _ := f.agreements.List(ctx); len(all) != 0 {
			t.Errorf("placeholder left behind: %d agreements", len(all))
		}
	})
}

func TestContractManager_LinkArtifactsToAgreement(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newManagerFixture(t)
	m := f.manager(providerID)

	pending := &contract.ContractAgreement{Consumer: consumerID, Provider: providerID}
	if err := f.agreements.Create(ctx, pending); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := m.LinkArtifactsToAgreement(ctx, pending.ID, []string{"art-a", "missing"}); err == nil {
		t.Fatal("expected link error")
	}
	if _, err := f.agreements.Get(ctx, pending.ID); !errors.Is(err, contract.ErrResourceNotFound) {
		t.Errorf("unconfirmed agreement should be deleted, Get() error = %v", err)
	}

	confirmed := &contract.ContractAgreement{Consumer: consumerID, Provider: providerID, Confirmed: true}
	if err := f.agreements.Create(ctx, confirmed); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := m.LinkArtifactsToAgreement(ctx, confirmed.ID, []string{"missing"}); err == nil {
		t.Fatal("expected link error")
	}
	if _, err := f.agreements.Get(ctx, confirmed.ID); err != nil {
		t.Errorf("confirmed agreement should survive, Get() error = %v", err)
	}

	if err := m.LinkArtifactsToAgreement(ctx, confirmed.ID, []string{"art-a"}); err != nil {
		t.Errorf("LinkArtifactsToAgreement() error: %v", err)
	}
}

func TestContractManager_ValidateContract(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newManagerFixture(t)
	m := f.manager(providerID)

	store := func(a *contract.ContractAgreement, artifacts ...string) string {
		t.Helper()
		if err := f.agreements.Create(ctx, a); err != nil {
			t.Fatalf("Create() error: %v", err)
		}
		if err := f.artifacts.Link(ctx, a.ID, artifacts...); err != nil {
			t.Fatalf("Link() error: %v", err)
		}
		return a.ID
	}

	valid := store(&contract.ContractAgreement{Consumer: consumerID, Provider: providerID, Confirmed: true}, "art-a")
	unconfirmed := store(&contract.ContractAgreement{Consumer: consumerID, Provider: providerID}, "art-a")
	expired := store(&contract.ContractAgreement{Consumer: consumerID, Provider: providerID, Confirmed: true, End: f.now.Add(-time.Minute)}, "art-a")

	tests := []struct {
		name        string
		agreementID string
		artifactID  string
		issuer      string
		wantErr     error
	}{
		{"valid", valid, "art-a", consumerID, nil},
		{"no issuer check", valid, "art-a", "", nil},
		{"unknown agreement", "nope", "art-a", consumerID, contract.ErrResourceNotFound},
		{"artifact not governed", valid, "art-b", consumerID, contract.ErrContractMismatch},
		{"unconfirmed", unconfirmed, "art-a", consumerID, contract.ErrNotConfirmed},
		{"expired", expired, "art-a", consumerID, contract.ErrContractMismatch},
		{"wrong issuer", valid, "art-a", "https://mallory.example", contract.ErrContractMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.ValidateContract(ctx, tt.agreementID, tt.artifactID, tt.issuer)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateContract() error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateContract() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestContractManager_StoreConfirmedAgreement(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	providerSide := newManagerFixture(t)
	consumerSide := newManagerFixture(t)
	provider := providerSide.manager(providerID)
	consumer := consumerSide.manager(consumerID)

	req, err := consumer.BuildContractRequest([]usage.Rule{requestedRule(targetA)})
	if err != nil {
		t.Fatalf("BuildContractRequest() error: %v", err)
	}
	agreement, err := provider.ProcessContractRequest(ctx, req, consumerID)
	if err != nil {
		t.Fatalf("ProcessContractRequest() error: %v", err)
	}

	stored, err := consumer.StoreConfirmedAgreement(ctx, agreement, req, nil)
	if err != nil {
		t.Fatalf("StoreConfirmedAgreement() error: %v", err)
	}
	if !stored.Confirmed || stored.RemoteID != agreement.ID {
		t.Errorf("stored = confirmed %v remote %q", stored.Confirmed, stored.RemoteID)
	}
	if _, err := consumer.ValidateContract(ctx, stored.ID, "art-a", consumerID); err != nil {
		t.Errorf("ValidateContract() on stored agreement error: %v", err)
	}

	tampered := agreement.Clone()
	tampered.Consumer = "https://mallory.example"
	if _, err := consumer.StoreConfirmedAgreement(ctx, tampered, req, nil); !errors.Is(err, contract.ErrContractMismatch) {
		t.Errorf("tampered agreement error = %v, want ErrContractMismatch", err)
	}
}

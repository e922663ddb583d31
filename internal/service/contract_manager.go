package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sentinel-Gate/Contractgate/internal/domain/contract"
	"github.com/Sentinel-Gate/Contractgate/internal/domain/usage"
	"github.com/Sentinel-Gate/Contractgate/internal/port/outbound"
)

// ContractManager builds, validates, and persists contract requests and
// agreements on both sides of a negotiation.
type ContractManager struct {
	identity   outbound.ConnectorIdentity
	agreements contract.AgreementStore
	artifacts  contract.ArtifactStore
	contracts  contract.ContractStore
	serializer outbound.AgreementSerializer
	logger     *slog.Logger
	recorder   Recorder
	now        func() time.Time
}

// ContractManagerOption configures ContractManager.
type ContractManagerOption func(*ContractManager)

// WithManagerClock overrides the clock.
func WithManagerClock(now func() time.Time) ContractManagerOption {
	return func(m *ContractManager) {
		m.now = now
	}
}

// WithManagerRecorder sets the metrics recorder.
func WithManagerRecorder(r Recorder) ContractManagerOption {
	return func(m *ContractManager) {
		if r != nil {
			m.recorder = r
		}
	}
}

// NewContractManager creates a ContractManager.
func NewContractManager(
	identity outbound.ConnectorIdentity,
	agreements contract.AgreementStore,
	artifacts contract.ArtifactStore,
	contracts contract.ContractStore,
	serializer outbound.AgreementSerializer,
	logger *slog.Logger,
	opts ...ContractManagerOption,
) *ContractManager {
	m := &ContractManager{
		identity:   identity,
		agreements: agreements,
		artifacts:  artifacts,
		contracts:  contracts,
		serializer: serializer,
		logger:     logger,
		recorder:   nopRecorder{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// BuildContractRequest turns the rules a consumer wants into a request. Every
// rule is stamped with the local connector as assignee and must carry a target
// and a known kind.
func (m *ContractManager) BuildContractRequest(rules []usage.Rule) (*contract.ContractRequest, error) {
	if len(rules) == 0 {
		return nil, fmt.Errorf("%w: no rules requested", contract.ErrMissingTarget)
	}
	local := m.identity.ConnectorID()
	stamped := usage.CloneRules(rules)
	for i := range stamped {
		if stamped[i].Target == "" {
			return nil, fmt.Errorf("%w: rule %q", contract.ErrMissingTarget, stamped[i].ID)
		}
		if !stamped[i].Kind.Valid() {
			return nil, fmt.Errorf("%w: rule %q has kind %q", contract.ErrUnknownRuleKind, stamped[i].ID, stamped[i].Kind)
		}
		stamped[i].Assignee = local
	}

	now := m.now().UTC()
	return &contract.ContractRequest{
		ID:           uuid.NewString(),
		Consumer:     local,
		ContractDate: now,
		Start:        now,
		RuleSet:      contract.Partition(stamped),
	}, nil
}

// ValidateRequestAgainstOffers reports whether the requested rules on target
// match, by content, the rules on target of at least one offer. Offers
// restricted to another consumer or outside their validity window are
// skipped.
func (m *ContractManager) ValidateRequestAgainstOffers(requestedRules []usage.Rule, offers []contract.Contract, target string) bool {
	var requested []usage.Rule
	consumer := ""
	for _, r := range requestedRules {
		if r.Target == target {
			requested = append(requested, r)
			if consumer == "" {
				consumer = r.Assignee
			}
		}
	}
	if len(requested) == 0 {
		return false
	}
	for _, offer := range contract.FilterOffers(offers, target, consumer, m.now()) {
		if contract.MatchesOffer(requested, offer, target) {
			return true
		}
	}
	return false
}

// ProcessContractRequest handles a request on the provider side: it checks
// every requested target against the published offers and builds an
// unconfirmed agreement. Any failure rejects the negotiation.
func (m *ContractManager) ProcessContractRequest(ctx context.Context, req *contract.ContractRequest, issuer string) (*contract.ContractAgreement, error) {
	ctx, span := tracer().Start(ctx, "negotiation.ProcessContractRequest", trace.WithAttributes(
		attribute.String("negotiation.issuer", issuer),
	))
	defer span.End()

	state, _ := contract.Next(contract.StateOffered, contract.EventRequest)

	agreement, err := m.processRequest(ctx, req, issuer)
	if err != nil {
		state, _ = contract.Next(state, contract.EventReject)
		m.recorder.RecordNegotiation("request", string(state))
		m.logger.Info("contract request rejected", "issuer", issuer, "state", state, "error", err)
		return nil, err
	}
	state, _ = contract.Next(state, contract.EventAgree)
	m.recorder.RecordNegotiation("request", string(state))
	m.logger.Info("contract agreement built", "agreement_id", agreement.ID, "consumer", agreement.Consumer, "state", state)
	return agreement, nil
}

func (m *ContractManager) processRequest(ctx context.Context, req *contract.ContractRequest, issuer string) (*contract.ContractAgreement, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: empty request", contract.ErrContractMismatch)
	}
	if issuer != "" && req.Consumer != "" && issuer != req.Consumer {
		return nil, fmt.Errorf("%w: request consumer %q is not the issuer %q", contract.ErrContractMismatch, req.Consumer, issuer)
	}
	byTarget, err := contract.TargetRuleMap(req.All())
	if err != nil {
		return nil, err
	}
	if len(byTarget) == 0 {
		return nil, fmt.Errorf("%w: request carries no rules", contract.ErrMissingTarget)
	}

	for _, target := range contract.SortedTargets(byTarget) {
		offers, err := m.contracts.OffersForTarget(ctx, target)
		if err != nil {
			return nil, fmt.Errorf("%w: load offers for %s: %v", contract.ErrPersistenceFailure, target, err)
		}
		if !m.ValidateRequestAgainstOffers(byTarget[target], offers, target) {
			return nil, fmt.Errorf("%w: no offer matches the rules requested for %s", contract.ErrContractMismatch, target)
		}
	}
	return m.BuildContractAgreement(ctx, req, issuer)
}

// BuildContractAgreement persists an unconfirmed agreement for req and links
// it to the artifacts its rules target. A failure after the placeholder
// insert deletes the placeholder.
func (m *ContractManager) BuildContractAgreement(ctx context.Context, req *contract.ContractRequest, issuer string) (*contract.ContractAgreement, error) {
	consumer := req.Consumer
	if consumer == "" {
		consumer = issuer
	}
	if consumer == "" {
		return nil, fmt.Errorf("%w: agreement has no consumer", contract.ErrContractMismatch)
	}
	provider := m.identity.ConnectorID()
	now := m.now().UTC()

	saga := newAgreementSaga(m.agreements, m.artifacts, m.serializer, m.logger)
	return saga.run(ctx,
		func(a *contract.ContractAgreement) error {
			a.Provider = provider
			a.Consumer = consumer
			a.ContractDate = now
			a.Start = now
			a.End = req.End
			a.Confirmed = false
			a.RuleSet = stampRules(req.RuleSet, provider, consumer)
			return nil
		},
		m.resolveTargets,
	)
}

// ValidateContractAgreement checks, on the consumer side, that the agreement
// returned by the provider carries exactly the requested rules and
// consistent signer fields.
func (m *ContractManager) ValidateContractAgreement(returned *contract.ContractAgreement, original *contract.ContractRequest) (*contract.ContractAgreement, error) {
	if returned == nil || original == nil {
		return nil, fmt.Errorf("%w: missing agreement or request", contract.ErrContractMismatch)
	}
	if returned.Consumer != original.Consumer {
		return nil, fmt.Errorf("%w: consumer %q differs from requested %q", contract.ErrContractMismatch, returned.Consumer, original.Consumer)
	}
	if returned.Provider == "" {
		return nil, fmt.Errorf("%w: agreement has no provider", contract.ErrContractMismatch)
	}
	if !returned.RuleSet.EqualContent(original.RuleSet) {
		return nil, fmt.Errorf("%w: agreement rules differ from the request", contract.ErrContractMismatch)
	}
	for _, r := range returned.All() {
		if r.Assigner != returned.Provider || r.Assignee != returned.Consumer {
			return nil, fmt.Errorf("%w: rule %q is signed by %q for %q", contract.ErrContractMismatch, r.ID, r.Assigner, r.Assignee)
		}
	}
	return returned, nil
}

// ValidateContract checks at data-access time that artifactID may be served
// under agreementID to issuer. An empty issuer skips the consumer check.
func (m *ContractManager) ValidateContract(ctx context.Context, agreementID, artifactID, issuer string) (*contract.ContractAgreement, error) {
	ctx, span := tracer().Start(ctx, "negotiation.ValidateContract", trace.WithAttributes(
		attribute.String("negotiation.agreement_id", agreementID),
		attribute.String("negotiation.artifact_id", artifactID),
	))
	defer span.End()

	agreement, err := m.agreements.Get(ctx, agreementID)
	if err != nil {
		if errors.Is(err, contract.ErrResourceNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: load agreement %s: %v", contract.ErrPersistenceFailure, agreementID, err)
	}

	governed, err := m.artifacts.ArtifactsByAgreement(ctx, agreementID)
	if err != nil {
		return nil, fmt.Errorf("%w: load artifacts of %s: %v", contract.ErrPersistenceFailure, agreementID, err)
	}
	found := false
	for _, a := range governed {
		if a.ID == artifactID {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: artifact %s is not governed by agreement %s", contract.ErrContractMismatch, artifactID, agreementID)
	}
	if !agreement.Confirmed {
		return nil, fmt.Errorf("%w: agreement %s", contract.ErrNotConfirmed, agreementID)
	}
	if agreement.ExpiredAt(m.now()) {
		return nil, fmt.Errorf("%w: agreement %s ended at %s", contract.ErrContractMismatch, agreementID, agreement.End.Format(time.RFC3339))
	}
	if issuer != "" && issuer != agreement.Consumer {
		return nil, fmt.Errorf("%w: issuer %q is not the agreement consumer", contract.ErrContractMismatch, issuer)
	}
	return agreement, nil
}

// LinkArtifactsToAgreement links artifacts to an existing agreement. If
// linking fails and the agreement is still unconfirmed, the agreement is
// deleted rather than left without artifacts.
func (m *ContractManager) LinkArtifactsToAgreement(ctx context.Context, agreementID string, artifactIDs []string) error {
	linkErr := m.artifacts.Link(ctx, agreementID, artifactIDs...)
	if linkErr == nil {
		return nil
	}

	a, err := m.agreements.Get(ctx, agreementID)
	if err == nil && !a.Confirmed {
		if delErr := m.deleteAgreement(ctx, agreementID); delErr != nil {
			m.logger.Error("failed to delete unlinked agreement", "agreement_id", agreementID, "error", delErr)
		}
	}
	return fmt.Errorf("link artifacts to %s: %w", agreementID, linkErr)
}

// ConfirmAgreement completes the handshake on the provider side. The
// received agreement must match the stored one; a mismatch rejects the
// negotiation and removes the unconfirmed agreement.
func (m *ContractManager) ConfirmAgreement(ctx context.Context, received *contract.ContractAgreement) (*contract.ContractAgreement, error) {
	ctx, span := tracer().Start(ctx, "negotiation.ConfirmAgreement")
	defer span.End()

	if received == nil {
		return nil, fmt.Errorf("%w: empty agreement", contract.ErrContractMismatch)
	}
	stored, err := m.agreements.Get(ctx, received.ID)
	if err != nil {
		return nil, err
	}
	state := contract.StateAgreedUnconfirmed
	if stored.Confirmed {
		state = contract.StateConfirmed
	}

	if stored.Consumer != received.Consumer || stored.Provider != received.Provider ||
		!stored.RuleSet.EqualContent(received.RuleSet) {
		mismatch := fmt.Errorf("%w: received agreement %s differs from the stored one", contract.ErrContractMismatch, received.ID)
		next, terr := contract.Next(state, contract.EventReject)
		if terr != nil {
			return nil, mismatch
		}
		if delErr := m.deleteAgreement(ctx, stored.ID); delErr != nil {
			m.logger.Error("failed to delete rejected agreement", "agreement_id", stored.ID, "error", delErr)
		}
		m.recorder.RecordNegotiation("confirm", string(next))
		return nil, mismatch
	}

	if state == contract.StateConfirmed {
		return stored, nil
	}
	next, err := contract.Next(state, contract.EventConfirm)
	if err != nil {
		return nil, err
	}
	stored.Confirmed = true
	if err := m.agreements.Update(ctx, stored); err != nil {
		return nil, fmt.Errorf("%w: confirm agreement %s: %v", contract.ErrPersistenceFailure, stored.ID, err)
	}
	m.recorder.RecordNegotiation("confirm", string(next))
	m.logger.Info("agreement confirmed", "agreement_id", stored.ID, "consumer", stored.Consumer)
	return stored, nil
}

// StoreConfirmedAgreement persists, on the consumer side, an agreement that
// passed ValidateContractAgreement and links it to local artifacts. The
// provider's ID is kept as remote ID.
func (m *ContractManager) StoreConfirmedAgreement(ctx context.Context, received *contract.ContractAgreement, original *contract.ContractRequest, artifactIDs []string) (*contract.ContractAgreement, error) {
	ctx, span := tracer().Start(ctx, "negotiation.StoreConfirmedAgreement")
	defer span.End()

	validated, err := m.ValidateContractAgreement(received, original)
	if err != nil {
		m.recorder.RecordNegotiation("store", string(contract.StateRejected))
		return nil, err
	}

	saga := newAgreementSaga(m.agreements, m.artifacts, m.serializer, m.logger)
	stored, err := saga.run(ctx,
		func(a *contract.ContractAgreement) error {
			id := a.ID
			*a = *validated.Clone()
			a.ID = id
			a.RemoteID = validated.ID
			a.Confirmed = true
			return nil
		},
		func(ctx context.Context, a *contract.ContractAgreement) ([]string, error) {
			if len(artifactIDs) > 0 {
				return artifactIDs, nil
			}
			return m.resolveTargets(ctx, a)
		},
	)
	if err != nil {
		m.recorder.RecordNegotiation("store", "error")
		return nil, err
	}
	m.recorder.RecordNegotiation("store", string(contract.StateConfirmed))
	return stored, nil
}

// resolveTargets maps every rule target of a to a local artifact.
func (m *ContractManager) resolveTargets(ctx context.Context, a *contract.ContractAgreement) ([]string, error) {
	all, err := m.artifacts.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list artifacts: %v", contract.ErrPersistenceFailure, err)
	}
	seen := make(map[string]bool)
	var ids []string
	for _, r := range a.All() {
		matched := false
		for _, art := range all {
			if art.Matches(r.Target) {
				matched = true
				if !seen[art.ID] {
					seen[art.ID] = true
					ids = append(ids, art.ID)
				}
			}
		}
		if !matched {
			return nil, fmt.Errorf("%w: no artifact for target %s", contract.ErrResourceNotFound, r.Target)
		}
	}
	return ids, nil
}

func (m *ContractManager) deleteAgreement(ctx context.Context, id string) error {
	return errors.Join(m.artifacts.Unlink(ctx, id), m.agreements.Delete(ctx, id))
}

// stampRules copies a rule set with assigner and assignee set on every rule.
func stampRules(s contract.RuleSet, assigner, assignee string) contract.RuleSet {
	out := s.Clone()
	for _, part := range [][]usage.Rule{out.Permissions, out.Prohibitions, out.Obligations} {
		for i := range part {
			part[i].Assigner = assigner
			part[i].Assignee = assignee
		}
	}
	return out
}

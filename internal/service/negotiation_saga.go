package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Sentinel-Gate/Contractgate/internal/domain/contract"
	"github.com/Sentinel-Gate/Contractgate/internal/port/outbound"
)

// sagaStep is the progress of persisting one agreement.
type sagaStep string

const (
	sagaStarted            sagaStep = "started"
	sagaPlaceholderCreated sagaStep = "placeholder-created"
	sagaPopulated          sagaStep = "populated"
	sagaLinked             sagaStep = "linked"
	sagaDone               sagaStep = "done"
	sagaCompensated        sagaStep = "compensated"
)

// agreementSaga persists an agreement in three local steps: insert an empty
// placeholder to obtain its ID, populate it, and link its artifacts. When a
// step after the placeholder insert fails, the placeholder is deleted.
type agreementSaga struct {
	agreements contract.AgreementStore
	artifacts  contract.ArtifactStore
	serializer outbound.AgreementSerializer
	logger     *slog.Logger

	step sagaStep
	id   string
}

// populateFunc fills the agreement once its ID is known.
type populateFunc func(a *contract.ContractAgreement) error

// artifactResolver returns the artifacts to link to the populated agreement.
type artifactResolver func(ctx context.Context, a *contract.ContractAgreement) ([]string, error)

func newAgreementSaga(agreements contract.AgreementStore, artifacts contract.ArtifactStore, serializer outbound.AgreementSerializer, logger *slog.Logger) *agreementSaga {
	return &agreementSaga{
		agreements: agreements,
		artifacts:  artifacts,
		serializer: serializer,
		logger:     logger,
		step:       sagaStarted,
	}
}

func (s *agreementSaga) run(ctx context.Context, populate populateFunc, resolve artifactResolver) (*contract.ContractAgreement, error) {
	ctx, span := tracer().Start(ctx, "negotiation.AgreementSaga")
	defer span.End()

	placeholder := &contract.ContractAgreement{}
	if err := s.agreements.Create(ctx, placeholder); err != nil {
		return nil, fmt.Errorf("%w: create placeholder agreement: %v", contract.ErrPersistenceFailure, err)
	}
	s.id = placeholder.ID
	s.step = sagaPlaceholderCreated

	a, err := s.populate(ctx, populate)
	if err != nil {
		return nil, s.compensate(ctx, err)
	}
	s.step = sagaPopulated

	artifactIDs, err := resolve(ctx, a)
	if err != nil {
		return nil, s.compensate(ctx, err)
	}
	if err := s.artifacts.Link(ctx, a.ID, artifactIDs...); err != nil {
		return nil, s.compensate(ctx, fmt.Errorf("link artifacts: %w", err))
	}
	s.step = sagaLinked
	s.logger.Debug("agreement persisted", "agreement_id", a.ID, "artifacts", len(artifactIDs), "confirmed", a.Confirmed)

	s.step = sagaDone
	return a, nil
}

func (s *agreementSaga) populate(ctx context.Context, populate populateFunc) (*contract.ContractAgreement, error) {
	a := &contract.ContractAgreement{ID: s.id}
	if err := populate(a); err != nil {
		return nil, err
	}
	a.ID = s.id

	value, digest, err := s.serializer.SerializeAgreement(a)
	if err != nil {
		return nil, fmt.Errorf("serialize agreement: %w", err)
	}
	a.SerializedValue = value
	a.ValueDigest = digest

	if err := s.agreements.Update(ctx, a); err != nil {
		return nil, fmt.Errorf("%w: populate agreement: %v", contract.ErrPersistenceFailure, err)
	}
	return a, nil
}

// compensate deletes the placeholder and its links. Failures are logged and
// never replace cause.
func (s *agreementSaga) compensate(ctx context.Context, cause error) error {
	failedAt := s.step
	var errs []error
	if err := s.artifacts.Unlink(ctx, s.id); err != nil {
		errs = append(errs, err)
	}
	if err := s.agreements.Delete(ctx, s.id); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		s.logger.Error("agreement compensation failed",
			"agreement_id", s.id,
			"failed_after", failedAt,
			"error", errors.Join(errs...),
		)
	} else {
		s.logger.Warn("agreement build rolled back", "agreement_id", s.id, "failed_after", failedAt, "cause", cause)
	}
	s.step = sagaCompensated
	return cause
}

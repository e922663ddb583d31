package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Sentinel-Gate/Contractgate/internal/domain/contract"
	"github.com/Sentinel-Gate/Contractgate/internal/port/outbound"
)

// ExecutionService performs the side effects usage rules demand.
// Delivery failures are reported to the caller and never retried here;
// retries belong to the sink transports.
type ExecutionService struct {
	audit  outbound.AuditSink
	notify outbound.NotificationSink
	data   outbound.ArtifactDataSource
	logger *slog.Logger
}

// NewExecutionService creates an ExecutionService.
func NewExecutionService(audit outbound.AuditSink, notify outbound.NotificationSink, data outbound.ArtifactDataSource, logger *slog.Logger) *ExecutionService {
	return &ExecutionService{
		audit:  audit,
		notify: notify,
		data:   data,
		logger: logger,
	}
}

// SendLog delivers an access record to the audit collaborator.
func (s *ExecutionService) SendLog(ctx context.Context, target string, ts time.Time, issuer string) error {
	if s.audit == nil {
		return errors.New("no audit sink configured")
	}
	rec := outbound.AccessRecord{Target: target, Timestamp: ts.UTC(), IssuerConnector: issuer}
	if err := s.audit.SendLog(ctx, rec); err != nil {
		s.logger.Warn("usage log not acknowledged", "target", target, "error", err)
		return fmt.Errorf("send log: %w", err)
	}
	return nil
}

// SendNotification delivers an access record to endpoint.
func (s *ExecutionService) SendNotification(ctx context.Context, endpoint, target string, ts time.Time, issuer string) error {
	if s.notify == nil {
		return errors.New("no notification sink configured")
	}
	rec := outbound.AccessRecord{Target: target, Timestamp: ts.UTC(), IssuerConnector: issuer}
	if err := s.notify.SendNotification(ctx, endpoint, rec); err != nil {
		s.logger.Warn("usage notification not acknowledged", "endpoint", endpoint, "target", target, "error", err)
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
}

// DeleteArtifactData clears an artifact's payload and reports whether a
// payload was removed. Deleting an empty or unknown artifact is a no-op.
func (s *ExecutionService) DeleteArtifactData(ctx context.Context, artifactID string) (bool, error) {
	cleared, err := s.data.ClearData(ctx, artifactID)
	if errors.Is(err, contract.ErrResourceNotFound) {
		s.logger.Debug("artifact already gone", "artifact_id", artifactID)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("delete artifact data %s: %w", artifactID, err)
	}
	if !cleared {
		s.logger.Debug("artifact data already empty", "artifact_id", artifactID)
	}
	return cleared, nil
}

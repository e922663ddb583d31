// Package outbound defines the outbound port interfaces for the collaborators
// the usage-control core delivers side effects to.
package outbound

import (
	"context"
	"time"

	"github.com/Sentinel-Gate/Contractgate/internal/domain/contract"
	"github.com/Sentinel-Gate/Contractgate/internal/domain/usage"
)

// ArtifactDataSource reads and writes artifact payloads by artifact id.
type ArtifactDataSource interface {
	// GetData returns the payload. An artifact without payload yields nil.
	GetData(ctx context.Context, artifactID string) ([]byte, error)
	// SetData replaces the payload.
	SetData(ctx context.Context, artifactID string, data []byte) error
	// ClearData removes the payload and reports whether there was one.
	// Clearing an empty payload is a no-op.
	ClearData(ctx context.Context, artifactID string) (bool, error)
}

// ConnectorIdentity exposes the identity of the local connector.
type ConnectorIdentity interface {
	ConnectorID() string
}

// AccessRecord is what is delivered for USAGE_LOGGING and USAGE_NOTIFICATION.
type AccessRecord struct {
	Target          string    `json:"target"`
	Timestamp       time.Time `json:"timestamp"`
	IssuerConnector string    `json:"issuer_connector"`
	AgreementID     string    `json:"agreement_id,omitempty"`
}

// AuditSink delivers access records to an audit collaborator.
// A nil error acknowledges delivery.
type AuditSink interface {
	SendLog(ctx context.Context, record AccessRecord) error
}

// NotificationSink delivers access records to a remote endpoint.
// A nil error acknowledges delivery.
type NotificationSink interface {
	SendNotification(ctx context.Context, endpoint string, record AccessRecord) error
}

// RuleDeserializer parses persisted serialized values back into the model.
type RuleDeserializer interface {
	DeserializeRules(data []byte) ([]usage.Rule, error)
	DeserializeAgreement(data []byte) (*contract.ContractAgreement, error)
}

// AgreementSerializer produces the serialized value and digest stored with
// an agreement.
type AgreementSerializer interface {
	SerializeAgreement(a *contract.ContractAgreement) ([]byte, uint64, error)
}

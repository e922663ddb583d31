package contract

import "errors"

// Sentinel errors for negotiation and agreement enforcement.
var (
	// ErrContractMismatch is returned when an agreement or request does not
	// match what it is checked against.
	ErrContractMismatch = errors.New("contract mismatch")
	// ErrNotConfirmed is returned when data is requested under an agreement
	// whose handshake has not completed.
	ErrNotConfirmed = errors.New("agreement not confirmed")
	// ErrResourceNotFound is returned when an agreement, artifact, contract,
	// or resource does not exist.
	ErrResourceNotFound = errors.New("resource not found")
	// ErrPersistenceFailure wraps storage backend errors.
	ErrPersistenceFailure = errors.New("persistence failure")
	// ErrMissingTarget is returned when a rule carries no usable target.
	ErrMissingTarget = errors.New("rule has no target")
	// ErrUnknownRuleKind is returned for a rule that is not a permission,
	// prohibition, or duty.
	ErrUnknownRuleKind = errors.New("unknown rule kind")
	// ErrInvalidTransition is returned for a negotiation step not allowed
	// from the current state.
	ErrInvalidTransition = errors.New("invalid negotiation transition")
	// ErrAgreementImmutable is returned when an update would change the rules
	// or serialized value of a confirmed agreement.
	ErrAgreementImmutable = errors.New("confirmed agreement is immutable")
)

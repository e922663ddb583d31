package usage

import "errors"

// Sentinel errors for rule interpretation.
var (
	// ErrUnsupportedPattern is returned when a rule matches no known pattern.
	ErrUnsupportedPattern = errors.New("unsupported usage pattern")
	// ErrInvalidInterval is returned when interval bounds are missing or unparseable.
	ErrInvalidInterval = errors.New("invalid time interval")
	// ErrInvalidDuration is returned when a duration constraint is missing or unparseable.
	ErrInvalidDuration = errors.New("invalid duration")
	// ErrInvalidCount is returned when an access count constraint is not an integer.
	ErrInvalidCount = errors.New("invalid access count")
	// ErrMissingConstraint is returned when a rule lacks the constraint an evaluator needs.
	ErrMissingConstraint = errors.New("missing constraint")
)

package usage

import "time"

// Reason explains why an access decision denied (or exceptionally allowed) use.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonUnsupportedPattern  Reason = "UnsupportedPattern"
	ReasonPolicyRestriction   Reason = "PolicyRestriction"
	ReasonInvalidInterval     Reason = "InvalidInterval"
	ReasonAccessNumberReached Reason = "AccessNumberReached"
	ReasonInvalidConsumer     Reason = "InvalidConsumer"
	ReasonExecutionFailed     Reason = "ExecutionFailed"
)

// EvaluationContext is the request-time input to a decision.
type EvaluationContext struct {
	// Now is the evaluation instant. Zero means time.Now().
	Now time.Time
	// IssuerConnector is the connector asking for the data.
	IssuerConnector string
	// AccessCount is how often the artifact has been accessed so far.
	AccessCount int64
	// CreationDate is when the artifact was created.
	CreationDate time.Time
	// AgreementID is the agreement the access happens under (optional).
	AgreementID string
}

// Decision is the outcome of evaluating one rule.
type Decision struct {
	Allowed bool
	Pattern Pattern
	Reason  Reason
	// Detail is a human-readable explanation for logs.
	Detail string
}

// Allow returns an allowing decision for pattern p.
func Allow(p Pattern) Decision {
	return Decision{Allowed: true, Pattern: p}
}

// Deny returns a denying decision for pattern p.
func Deny(p Pattern, reason Reason, detail string) Decision {
	return Decision{Pattern: p, Reason: reason, Detail: detail}
}

// Result returns "allow" or "deny".
func (d Decision) Result() string {
	if d.Allowed {
		return "allow"
	}
	return "deny"
}

package usage

import "time"

// AccessRequest describes one attempt to read an artifact under an agreement.
type AccessRequest struct {
	AgreementID     string
	ArtifactID      string
	IssuerConnector string
	// Now is the request instant. Zero means time.Now().
	Now time.Time

	// Filled in by the verifier before guards run.
	Target      string
	AccessCount int64
	Patterns    []Pattern
}

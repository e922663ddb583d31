package contract

import (
	"context"
	"fmt"
)

// AgreementStore persists contract agreements.
// Get returns ErrResourceNotFound for unknown ids.
type AgreementStore interface {
	Get(ctx context.Context, id string) (*ContractAgreement, error)
	// Create stores a new agreement. An empty ID is assigned by the store.
	Create(ctx context.Context, a *ContractAgreement) error
	// Update replaces an agreement. Returns ErrAgreementImmutable when a
	// confirmed agreement's content would change.
	Update(ctx context.Context, a *ContractAgreement) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]ContractAgreement, error)
}

// ArtifactStore persists artifact records and their agreement links.
type ArtifactStore interface {
	Get(ctx context.Context, id string) (*Artifact, error)
	Create(ctx context.Context, a *Artifact) error
	Update(ctx context.Context, a *Artifact) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Artifact, error)

	// ArtifactsByAgreement returns the artifacts an agreement governs.
	ArtifactsByAgreement(ctx context.Context, agreementID string) ([]Artifact, error)
	// AgreementsByArtifact returns the ids of agreements governing an artifact.
	AgreementsByArtifact(ctx context.Context, artifactID string) ([]string, error)
	// Link associates artifacts with an agreement. Either all links are
	// created or none.
	Link(ctx context.Context, agreementID string, artifactIDs ...string) error
	// Unlink removes every link of an agreement.
	Unlink(ctx context.Context, agreementID string) error

	// IncrementAccessIfBelow atomically increments the access count when it
	// is below limit. It returns the resulting count and whether it incremented.
	IncrementAccessIfBelow(ctx context.Context, id string, limit int64) (int64, bool, error)
	// IncrementAccess unconditionally increments the access count.
	IncrementAccess(ctx context.Context, id string) (int64, error)
	// DecrementAccess gives back one counted access. The count never goes
	// below zero.
	DecrementAccess(ctx context.Context, id string) (int64, error)
}

// ContractStore persists contract offers.
type ContractStore interface {
	Get(ctx context.Context, id string) (*Contract, error)
	Create(ctx context.Context, c *Contract) error
	Update(ctx context.Context, c *Contract) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Contract, error)
	// OffersForTarget returns the offers with at least one rule on target.
	OffersForTarget(ctx context.Context, target string) ([]Contract, error)
}

// ResourceStore persists published resources.
type ResourceStore interface {
	Get(ctx context.Context, id string) (*Resource, error)
	Create(ctx context.Context, r *Resource) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Resource, error)
}

// CheckUpdate validates replacing stored with next. Once stored is confirmed,
// the rules and serialized value may not change and it may not be
// unconfirmed again.
func CheckUpdate(stored, next *ContractAgreement) error {
	if !stored.Confirmed {
		return nil
	}
	if !next.Confirmed {
		return fmt.Errorf("%w: agreement %s cannot be unconfirmed", ErrAgreementImmutable, stored.ID)
	}
	if stored.ValueDigest != next.ValueDigest || !stored.RuleSet.EqualContent(next.RuleSet) {
		return fmt.Errorf("%w: agreement %s", ErrAgreementImmutable, stored.ID)
	}
	return nil
}

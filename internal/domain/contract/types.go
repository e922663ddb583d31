// Package contract contains the contract offer, request, and agreement model,
// the artifact records they govern, and the negotiation state machine.
package contract

import (
	"time"

	"github.com/Sentinel-Gate/Contractgate/internal/domain/usage"
)

// Contract is an offer published by the provider for one or more targets.
type Contract struct {
	ID    string       `json:"id" yaml:"id"`
	Title string       `json:"title,omitempty" yaml:"title,omitempty"`
	Rules []usage.Rule `json:"rules" yaml:"rules"`
	// Consumer restricts the offer to one connector. Empty means any.
	Consumer string `json:"consumer,omitempty" yaml:"consumer,omitempty"`
	// Start and End bound the period in which the offer may be accepted.
	// Zero values leave the respective side open.
	Start time.Time `json:"start,omitempty" yaml:"start,omitempty"`
	End   time.Time `json:"end,omitempty" yaml:"end,omitempty"`
}

// ValidAt reports whether the offer may be accepted at now.
func (c Contract) ValidAt(now time.Time) bool {
	if !c.Start.IsZero() && now.Before(c.Start) {
		return false
	}
	if !c.End.IsZero() && now.After(c.End) {
		return false
	}
	return true
}

// OfferedTo reports whether the offer is open to consumer. An empty consumer
// (not yet known) matches every offer.
func (c Contract) OfferedTo(consumer string) bool {
	return c.Consumer == "" || consumer == "" || c.Consumer == consumer
}

// Targets reports whether any rule of the offer targets target.
func (c Contract) Targets(target string) bool {
	for _, r := range c.Rules {
		if r.Target == target {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the contract.
func (c Contract) Clone() Contract {
	out := c
	out.Rules = usage.CloneRules(c.Rules)
	return out
}

// RuleSet holds rules partitioned by kind, as carried by requests and agreements.
type RuleSet struct {
	Permissions  []usage.Rule `json:"permissions,omitempty"`
	Prohibitions []usage.Rule `json:"prohibitions,omitempty"`
	Obligations  []usage.Rule `json:"obligations,omitempty"`
}

// All returns the rules of every partition in permission, prohibition,
// obligation order.
func (s RuleSet) All() []usage.Rule {
	out := make([]usage.Rule, 0, len(s.Permissions)+len(s.Prohibitions)+len(s.Obligations))
	out = append(out, s.Permissions...)
	out = append(out, s.Prohibitions...)
	out = append(out, s.Obligations...)
	return out
}

// Len returns the total number of rules.
func (s RuleSet) Len() int {
	return len(s.Permissions) + len(s.Prohibitions) + len(s.Obligations)
}

// Clone returns a deep copy of the rule set.
func (s RuleSet) Clone() RuleSet {
	return RuleSet{
		Permissions:  usage.CloneRules(s.Permissions),
		Prohibitions: usage.CloneRules(s.Prohibitions),
		Obligations:  usage.CloneRules(s.Obligations),
	}
}

// EqualContent compares two rule sets partition by partition, ignoring
// rule identity and order.
func (s RuleSet) EqualContent(other RuleSet) bool {
	return usage.EqualRuleSets(s.Permissions, other.Permissions) &&
		usage.EqualRuleSets(s.Prohibitions, other.Prohibitions) &&
		usage.EqualRuleSets(s.Obligations, other.Obligations)
}

// Partition sorts rules into their kind buckets. Rules with an unknown kind
// are dropped.
func Partition(rules []usage.Rule) RuleSet {
	var s RuleSet
	for _, r := range rules {
		switch r.Kind {
		case usage.KindPermission:
			s.Permissions = append(s.Permissions, r)
		case usage.KindProhibition:
			s.Prohibitions = append(s.Prohibitions, r)
		case usage.KindDuty:
			s.Obligations = append(s.Obligations, r)
		}
	}
	return s
}

// ContractRequest is what a consumer sends to ask for an agreement.
type ContractRequest struct {
	ID           string    `json:"id"`
	Consumer     string    `json:"consumer"`
	ContractDate time.Time `json:"contract_date"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end,omitempty"`
	RuleSet
}

// ContractAgreement is the negotiated, eventually confirmed instance of a
// subset of an offer's rules between one consumer and one provider.
type ContractAgreement struct {
	ID string `json:"id"`
	// RemoteID is the identifier the counterpart uses for the agreement.
	RemoteID     string    `json:"remote_id,omitempty"`
	Consumer     string    `json:"consumer"`
	Provider     string    `json:"provider"`
	ContractDate time.Time `json:"contract_date"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end,omitempty"`
	RuleSet
	Confirmed bool `json:"confirmed"`
	// SerializedValue is the agreement as exchanged on the wire; ValueDigest
	// fingerprints it.
	SerializedValue []byte `json:"-"`
	ValueDigest     uint64 `json:"-"`
}

// Clone returns a deep copy of the agreement.
func (a *ContractAgreement) Clone() *ContractAgreement {
	if a == nil {
		return nil
	}
	out := *a
	out.RuleSet = a.RuleSet.Clone()
	if a.SerializedValue != nil {
		out.SerializedValue = append([]byte(nil), a.SerializedValue...)
	}
	return &out
}

// ExpiredAt reports whether the agreement end date lies before now.
func (a *ContractAgreement) ExpiredAt(now time.Time) bool {
	return !a.End.IsZero() && a.End.Before(now)
}

// Artifact is an exposed data payload record. The payload itself lives behind
// the artifact data source.
type Artifact struct {
	ID string `json:"id" yaml:"id"`
	// RemoteID is the URI rules refer to when they target this artifact.
	RemoteID     string    `json:"remote_id,omitempty" yaml:"remote_id,omitempty"`
	Title        string    `json:"title,omitempty" yaml:"title,omitempty"`
	CreationDate time.Time `json:"creation_date" yaml:"creation_date"`
	AccessCount  int64     `json:"access_count" yaml:"access_count"`
	DataRef      string    `json:"data_ref,omitempty" yaml:"data_ref,omitempty"`
}

// Matches reports whether target refers to this artifact.
func (a Artifact) Matches(target string) bool {
	return target != "" && (a.ID == target || a.RemoteID == target)
}

// Resource groups the offers and artifacts a provider publishes together.
type Resource struct {
	ID          string   `json:"id" yaml:"id"`
	Title       string   `json:"title,omitempty" yaml:"title,omitempty"`
	ContractIDs []string `json:"contract_ids" yaml:"contract_ids"`
	ArtifactIDs []string `json:"artifact_ids" yaml:"artifact_ids"`
}

// Clone returns a deep copy of the resource.
func (r Resource) Clone() Resource {
	out := r
	out.ContractIDs = append([]string(nil), r.ContractIDs...)
	out.ArtifactIDs = append([]string(nil), r.ArtifactIDs...)
	return out
}

// Package codec converts rules and agreements to and from their persisted
// JSON form and fingerprints serialized agreements.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/Sentinel-Gate/Contractgate/internal/domain/contract"
	"github.com/Sentinel-Gate/Contractgate/internal/domain/usage"
	"github.com/Sentinel-Gate/Contractgate/internal/port/outbound"
)

// ErrMalformed is returned for input that is not a rule list or agreement.
var ErrMalformed = errors.New("malformed serialized value")

// JSON is the JSON codec. The zero value is ready to use.
type JSON struct{}

// ruleDocument is every accepted shape of a rule list: a bare array, an
// offer with "rules", or a partitioned rule set.
type ruleDocument struct {
	Rules []usage.Rule `json:"rules"`
	contract.RuleSet
}

// DeserializeRules parses a rule list. Rules without a kind are taken as
// permissions; an unknown kind is an error.
func (JSON) DeserializeRules(data []byte) ([]usage.Rule, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrMalformed)
	}

	var rules []usage.Rule
	if data[0] == '[' {
		if err := json.Unmarshal(data, &rules); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	} else {
		var doc ruleDocument
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		rules = append(doc.Rules, doc.RuleSet.All()...)
		// Partitioned rules carry their kind by position.
		for i := len(doc.Rules); i < len(rules); i++ {
			if rules[i].Kind == "" {
				rules[i].Kind = kindAt(doc.RuleSet, i-len(doc.Rules))
			}
		}
	}

	for i := range rules {
		if err := normalize(&rules[i], usage.KindPermission); err != nil {
			return nil, err
		}
	}
	return rules, nil
}

func kindAt(s contract.RuleSet, i int) usage.RuleKind {
	switch {
	case i < len(s.Permissions):
		return usage.KindPermission
	case i < len(s.Permissions)+len(s.Prohibitions):
		return usage.KindProhibition
	default:
		return usage.KindDuty
	}
}

func normalize(r *usage.Rule, def usage.RuleKind) error {
	if r.Kind == "" {
		r.Kind = def
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: rule %q has unknown kind %q", ErrMalformed, r.ID, r.Kind)
	}
	for i := range r.PreDuties {
		if err := normalize(&r.PreDuties[i], usage.KindDuty); err != nil {
			return err
		}
	}
	for i := range r.PostDuties {
		if err := normalize(&r.PostDuties[i], usage.KindDuty); err != nil {
			return err
		}
	}
	return nil
}

// DeserializeAgreement parses an agreement and restores its serialized
// value and digest from data.
func (JSON) DeserializeAgreement(data []byte) (*contract.ContractAgreement, error) {
	var a contract.ContractAgreement
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	parts := []struct {
		rules []usage.Rule
		kind  usage.RuleKind
	}{
		{a.Permissions, usage.KindPermission},
		{a.Prohibitions, usage.KindProhibition},
		{a.Obligations, usage.KindDuty},
	}
	for _, p := range parts {
		for i := range p.rules {
			if err := normalize(&p.rules[i], p.kind); err != nil {
				return nil, err
			}
		}
	}
	a.SerializedValue = append([]byte(nil), data...)
	a.ValueDigest = Digest(data)
	return &a, nil
}

// SerializeAgreement returns the JSON form of a and its digest. The
// encoding is deterministic for equal agreements.
func (JSON) SerializeAgreement(a *contract.ContractAgreement) ([]byte, uint64, error) {
	if a == nil {
		return nil, 0, fmt.Errorf("%w: nil agreement", ErrMalformed)
	}
	data, err := json.Marshal(a)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal agreement %s: %w", a.ID, err)
	}
	return data, Digest(data), nil
}

// Digest fingerprints a serialized value.
func Digest(data []byte) uint64 {
	return xxhash.Sum64(data)
}

var (
	_ outbound.RuleDeserializer    = JSON{}
	_ outbound.AgreementSerializer = JSON{}
)

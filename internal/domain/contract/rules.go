package contract

import (
	"fmt"
	"sort"
	"time"

	"github.com/Sentinel-Gate/Contractgate/internal/domain/usage"
)

// RulesForTarget returns the rules of rules that apply to the artifact.
func RulesForTarget(rules []usage.Rule, artifact Artifact) []usage.Rule {
	var out []usage.Rule
	for _, r := range rules {
		if artifact.Matches(r.Target) {
			out = append(out, r)
		}
	}
	return out
}

// TargetRuleMap groups rules by target. Returns ErrMissingTarget if any rule
// has an empty target.
func TargetRuleMap(rules []usage.Rule) (map[string][]usage.Rule, error) {
	out := make(map[string][]usage.Rule)
	for _, r := range rules {
		if r.Target == "" {
			return nil, fmt.Errorf("%w: rule %q", ErrMissingTarget, r.ID)
		}
		out[r.Target] = append(out[r.Target], r)
	}
	return out, nil
}

// SortedTargets returns the keys of a target rule map in stable order.
func SortedTargets(m map[string][]usage.Rule) []string {
	targets := make([]string, 0, len(m))
	for t := range m {
		targets = append(targets, t)
	}
	sort.Strings(targets)
	return targets
}

// FilterOffers keeps the offers that target target, are open to consumer,
// and may be accepted at now.
func FilterOffers(offers []Contract, target, consumer string, now time.Time) []Contract {
	var out []Contract
	for _, c := range offers {
		if c.Targets(target) && c.OfferedTo(consumer) && c.ValidAt(now) {
			out = append(out, c)
		}
	}
	return out
}

// MatchesOffer reports whether requested carries exactly the content of the
// offer's rules on target. Rules of the offer on other targets are ignored.
func MatchesOffer(requested []usage.Rule, offer Contract, target string) bool {
	var offered []usage.Rule
	for _, r := range offer.Rules {
		if r.Target == target {
			offered = append(offered, r)
		}
	}
	return len(offered) > 0 && usage.EqualRuleSets(requested, offered)
}

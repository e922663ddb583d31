package usage

import (
	"sort"
	"strings"
)

// ContentKey renders the content of a rule as a canonical string. Identity
// fields (id, assigner, assignee) are left out; actions and constraints are
// sorted so that ordering does not affect the key. Duties are rendered
// recursively.
func ContentKey(r Rule) string {
	var b strings.Builder
	writeContentKey(&b, r)
	return b.String()
}

func writeContentKey(b *strings.Builder, r Rule) {
	b.WriteString(string(r.Kind))
	b.WriteByte('|')
	b.WriteString(r.Target)
	b.WriteByte('|')

	actions := make([]string, 0, len(r.Actions))
	for _, a := range r.Actions {
		actions = append(actions, string(a))
	}
	sort.Strings(actions)
	actions = dedupSorted(actions)
	b.WriteString(strings.Join(actions, ","))
	b.WriteByte('|')

	constraints := make([]string, 0, len(r.Constraints))
	for _, c := range r.Constraints {
		constraints = append(constraints, strings.Join([]string{
			string(c.LeftOperand), string(c.Operator),
			c.RightOperand.Value, c.RightOperand.Type, c.PIPEndpoint,
		}, "\x1f"))
	}
	sort.Strings(constraints)
	b.WriteString(strings.Join(constraints, ";"))

	b.WriteString("|pre[")
	b.WriteString(strings.Join(sortedKeys(r.PreDuties), ";"))
	b.WriteString("]|post[")
	b.WriteString(strings.Join(sortedKeys(r.PostDuties), ";"))
	b.WriteByte(']')
}

func sortedKeys(rules []Rule) []string {
	keys := make([]string, 0, len(rules))
	for _, r := range rules {
		keys = append(keys, "("+ContentKey(r)+")")
	}
	sort.Strings(keys)
	return keys
}

func dedupSorted(s []string) []string {
	if len(s) < 2 {
		return s
	}
	out := s[:1]
	for _, v := range s[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

// EqualContent reports whether two rules carry the same content.
func EqualContent(a, b Rule) bool {
	return ContentKey(a) == ContentKey(b)
}

// EqualRuleSets reports whether two rule lists are equal as multisets of
// rule content. Order is ignored.
func EqualRuleSets(a, b []Rule) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[string]int, len(a))
	for _, r := range a {
		counts[ContentKey(r)]++
	}
	for _, r := range b {
		k := ContentKey(r)
		if counts[k] == 0 {
			return false
		}
		counts[k]--
	}
	return true
}

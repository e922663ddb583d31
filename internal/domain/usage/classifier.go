package usage

import "fmt"

// classifierRow maps a rule predicate to the pattern it implies.
// Rows are evaluated top-down; the first match wins.
type classifierRow struct {
	matches func(Rule) bool
	pattern Pattern
}

// Rows for permissions and duties, selected by constraint count.
var (
	multiConstraintRows = []classifierRow{
		{matches: hasPostDuties, pattern: PatternUsageUntilDeletion},
		{matches: always, pattern: PatternUsageDuringInterval},
	}

	singleConstraintRows = []classifierRow{
		{matches: firstLeftOperandIs(LeftOperandCount), pattern: PatternNTimesUsage},
		{matches: firstLeftOperandIs(LeftOperandElapsedTime), pattern: PatternDurationUsage},
		{matches: isConnectorRestriction, pattern: PatternConnectorRestrictedUsage},
	}

	noConstraintRows = []classifierRow{
		{matches: firstPostDutyActionIs(ActionNotify), pattern: PatternUsageNotification},
		{matches: firstPostDutyActionIs(ActionLog), pattern: PatternUsageLogging},
		{matches: not(hasPostDuties), pattern: PatternProvideAccess},
	}
)

// Classify recognizes the usage pattern of a rule.
//
// Prohibitions always classify as PROHIBIT_ACCESS. Permissions and duties are
// classified by their constraint count: more than one constraint is an
// interval (with a deletion post-duty: usage until deletion), exactly one
// constraint is decided by its left operand, and no constraint is decided by
// the first post-duty's action. Rules matching no row return
// ErrUnsupportedPattern.
func Classify(rule Rule) (Pattern, error) {
	if rule.Kind == KindProhibition {
		return PatternProhibitAccess, nil
	}
	if !rule.Kind.Valid() {
		return "", fmt.Errorf("%w: unknown rule kind %q", ErrUnsupportedPattern, rule.Kind)
	}

	var rows []classifierRow
	switch n := len(rule.Constraints); {
	case n > 1:
		rows = multiConstraintRows
	case n == 1:
		rows = singleConstraintRows
	default:
		rows = noConstraintRows
	}

	for _, row := range rows {
		if row.matches(rule) {
			return row.pattern, nil
		}
	}
	return "", fmt.Errorf("%w: rule %q on target %q", ErrUnsupportedPattern, rule.ID, rule.Target)
}

func always(Rule) bool { return true }

func not(pred func(Rule) bool) func(Rule) bool {
	return func(r Rule) bool { return !pred(r) }
}

func hasPostDuties(r Rule) bool { return len(r.PostDuties) > 0 }

func firstLeftOperandIs(op LeftOperand) func(Rule) bool {
	return func(r Rule) bool {
		return len(r.Constraints) > 0 && r.Constraints[0].LeftOperand == op
	}
}

func firstPostDutyActionIs(a Action) func(Rule) bool {
	return func(r Rule) bool {
		return len(r.PostDuties) > 0 && r.PostDuties[0].FirstAction() == a
	}
}

// isConnectorRestriction matches an endpoint constraint whose right operand
// names a connector. SYSTEM with SAME_AS is accepted as an equivalent form.
func isConnectorRestriction(r Rule) bool {
	if len(r.Constraints) == 0 {
		return false
	}
	c := r.Constraints[0]
	if c.RightOperand.Value == "" {
		return false
	}
	switch c.LeftOperand {
	case LeftOperandEndpoint:
		return true
	case LeftOperandSystem:
		return c.Operator == OperatorSameAs
	}
	return false
}

// Package usage contains the rule model, pattern recognition, and constraint
// arithmetic for usage control.
package usage

// RuleKind distinguishes permissions, prohibitions, and duties.
type RuleKind string

const (
	// KindPermission grants use of a target under the rule's constraints.
	KindPermission RuleKind = "permission"
	// KindProhibition forbids use of a target.
	KindProhibition RuleKind = "prohibition"
	// KindDuty is an obligation, either standalone or attached to a permission.
	KindDuty RuleKind = "duty"
)

// Valid reports whether k is a known rule kind.
func (k RuleKind) Valid() bool {
	switch k {
	case KindPermission, KindProhibition, KindDuty:
		return true
	}
	return false
}

// Action is an ODRL action tag.
type Action string

const (
	ActionUse        Action = "USE"
	ActionRead       Action = "READ"
	ActionDistribute Action = "DISTRIBUTE"
	ActionDelete     Action = "DELETE"
	ActionLog        Action = "LOG"
	ActionNotify     Action = "NOTIFY"
)

// LeftOperand names what a constraint measures.
type LeftOperand string

const (
	LeftOperandCount       LeftOperand = "COUNT"
	LeftOperandElapsedTime LeftOperand = "ELAPSED_TIME"
	LeftOperandAfter       LeftOperand = "AFTER"
	LeftOperandBefore      LeftOperand = "BEFORE"
	LeftOperandEndpoint    LeftOperand = "ENDPOINT"
	// LeftOperandPolicyEvaluationTime is the operand interval constraints
	// usually carry; the operator then says which bound it is.
	LeftOperandPolicyEvaluationTime LeftOperand = "POLICY_EVALUATION_TIME"
	// LeftOperandSystem combined with SAME_AS restricts usage to one connector.
	LeftOperandSystem LeftOperand = "SYSTEM"
	LeftOperandOther  LeftOperand = "OTHER"
)

// Operator is the binary operator of a constraint.
type Operator string

const (
	OperatorEQ     Operator = "EQ"
	OperatorLT     Operator = "LT"
	OperatorLTEQ   Operator = "LTEQ"
	OperatorGT     Operator = "GT"
	OperatorGTEQ   Operator = "GTEQ"
	OperatorAfter  Operator = "AFTER"
	OperatorBefore Operator = "BEFORE"
	OperatorSameAs Operator = "SAME_AS"
	// OperatorDurationEQ is the operator duration constraints are written with.
	OperatorDurationEQ Operator = "DURATION_EQ"
)

// Right operand type identifiers.
const (
	TypeDuration         = "xsd:duration"
	TypeDurationLong     = "http://www.w3.org/2001/XMLSchema#duration"
	TypeDateTimeStamp    = "xsd:dateTimeStamp"
	TypeDateTimeStampURI = "http://www.w3.org/2001/XMLSchema#dateTimeStamp"
	TypeInteger          = "xsd:integer"
	TypeAnyURI           = "xsd:anyURI"
)

// RightOperand is the typed literal a constraint compares against.
type RightOperand struct {
	Value string `json:"value" yaml:"value"`
	Type  string `json:"type,omitempty" yaml:"type,omitempty"`
}

// Constraint is a single condition attached to a rule.
type Constraint struct {
	LeftOperand  LeftOperand  `json:"left_operand" yaml:"left_operand"`
	Operator     Operator     `json:"operator" yaml:"operator"`
	RightOperand RightOperand `json:"right_operand" yaml:"right_operand"`
	// PIPEndpoint optionally names a policy information point for the operand.
	PIPEndpoint string `json:"pip_endpoint,omitempty" yaml:"pip_endpoint,omitempty"`
}

// Rule is an ODRL-style permission, prohibition, or duty on a target.
// A rule becomes immutable once it is part of a confirmed agreement.
type Rule struct {
	ID          string       `json:"id,omitempty" yaml:"id,omitempty"`
	Kind        RuleKind     `json:"kind" yaml:"kind"`
	Actions     []Action     `json:"actions" yaml:"actions"`
	Target      string       `json:"target" yaml:"target"`
	Constraints []Constraint `json:"constraints,omitempty" yaml:"constraints,omitempty"`
	// PreDuties and PostDuties are only meaningful on permissions.
	PreDuties  []Rule `json:"pre_duties,omitempty" yaml:"pre_duties,omitempty"`
	PostDuties []Rule `json:"post_duties,omitempty" yaml:"post_duties,omitempty"`
	Assigner   string `json:"assigner,omitempty" yaml:"assigner,omitempty"`
	Assignee   string `json:"assignee,omitempty" yaml:"assignee,omitempty"`
}

// HasAction reports whether the rule carries action a.
func (r Rule) HasAction(a Action) bool {
	for _, ra := range r.Actions {
		if ra == a {
			return true
		}
	}
	return false
}

// FirstAction returns the first action tag, or "" when the rule has none.
func (r Rule) FirstAction() Action {
	if len(r.Actions) == 0 {
		return ""
	}
	return r.Actions[0]
}

// Clone returns a deep copy of the rule.
func (r Rule) Clone() Rule {
	c := r
	c.Actions = append([]Action(nil), r.Actions...)
	c.Constraints = append([]Constraint(nil), r.Constraints...)
	c.PreDuties = CloneRules(r.PreDuties)
	c.PostDuties = CloneRules(r.PostDuties)
	return c
}

// CloneRules deep-copies a rule list. A nil input yields nil.
func CloneRules(rules []Rule) []Rule {
	if rules == nil {
		return nil
	}
	out := make([]Rule, len(rules))
	for i := range rules {
		out[i] = rules[i].Clone()
	}
	return out
}

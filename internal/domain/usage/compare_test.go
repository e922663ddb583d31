package usage

import "testing"

func sampleRules() []Rule {
	return []Rule{
		{
			ID:       "r1",
			Kind:     KindPermission,
			Actions:  []Action{ActionUse, ActionRead},
			Target:   "https://provider.example/artifacts/1",
			Assigner: "https://provider.example",
			Assignee: "https://consumer.example",
			Constraints: []Constraint{
				constraint(LeftOperandPolicyEvaluationTime, OperatorAfter, "2020-01-01T00:00:00Z", TypeDateTimeStamp),
				constraint(LeftOperandPolicyEvaluationTime, OperatorBefore, "2030-01-01T00:00:00Z", TypeDateTimeStamp),
			},
			PostDuties: []Rule{deleteDuty("2030-01-01T00:00:00Z")},
		},
		{
			ID:      "r2",
			Kind:    KindProhibition,
			Actions: []Action{ActionDistribute},
			Target:  "https://provider.example/artifacts/1",
		},
	}
}

func TestEqualRuleSets_IgnoresIdentityAndOrder(t *testing.T) {
	a := sampleRules()
	b := CloneRules(a)
	b[0], b[1] = b[1], b[0]
	for i := range b {
		b[i].ID = "other-" + b[i].ID
		b[i].Assigner = ""
		b[i].Assignee = "https://someone.example"
	}
	b[1].Actions = []Action{ActionRead, ActionUse}
	b[1].Constraints[0], b[1].Constraints[1] = b[1].Constraints[1], b[1].Constraints[0]

	if !EqualRuleSets(a, b) {
		t.Error("EqualRuleSets() = false, want true")
	}
}

func TestEqualRuleSets_DetectsDifferences(t *testing.T) {
	tests := []struct {
		name   string
		mutate func([]Rule) []Rule
	}{
		{"target", func(r []Rule) []Rule { r[0].Target = "https://provider.example/artifacts/2"; return r }},
		{"kind", func(r []Rule) []Rule { r[1].Kind = KindPermission; return r }},
		{"constraint value", func(r []Rule) []Rule {
			r[0].Constraints[1].RightOperand.Value = "2031-01-01T00:00:00Z"
			return r
		}},
		{"post duty", func(r []Rule) []Rule { r[0].PostDuties = nil; return r }},
		{"extra rule", func(r []Rule) []Rule { return append(r, r[1].Clone()) }},
		{"missing rule", func(r []Rule) []Rule { return r[:1] }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.mutate(CloneRules(sampleRules()))
			if EqualRuleSets(sampleRules(), got) {
				t.Error("EqualRuleSets() = true, want false")
			}
		})
	}
}

func TestEqualRuleSets_Multiset(t *testing.T) {
	r := sampleRules()
	a := []Rule{r[0], r[0], r[1]}
	b := []Rule{r[0], r[1], r[1]}
	if EqualRuleSets(a, b) {
		t.Error("EqualRuleSets() treats duplicates as a set")
	}
}

func TestClone_IsDeep(t *testing.T) {
	orig := sampleRules()[0]
	c := orig.Clone()
	c.Actions[0] = ActionDelete
	c.Constraints[0].RightOperand.Value = "changed"
	c.PostDuties[0].Actions[0] = ActionLog
	if orig.Actions[0] != ActionUse || orig.Constraints[0].RightOperand.Value == "changed" ||
		orig.PostDuties[0].Actions[0] != ActionDelete {
		t.Error("Clone() shares memory with the original")
	}
}

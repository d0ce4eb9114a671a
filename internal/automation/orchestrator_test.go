package automation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrchestrator(rules ...*Rule) (*Orchestrator, *MemoryLogStore) {
	logs := NewMemoryLogStore()
	orch := NewOrchestrator(NewGates(time.UTC), NewExecutor(nil, quietLogger()), NewMemoryRuleStore(rules...), logs, quietLogger())
	return orch, logs
}

func welcomeRule() *Rule {
	return &Rule{
		ID:         "welcome",
		Name:       "Welcome new leads",
		Active:     true,
		Priority:   PriorityMedium,
		Conditions: []Condition{{Type: ConditionStatus, Operator: OpEqual, Value: "new"}},
		Actions: []Action{
			{Type: ActionAssign, Value: AssignAutoBranch},
			{Type: ActionAddTag, Value: "Lead"},
		},
	}
}

func TestRunPassEndToEnd(t *testing.T) {
	orch, logs := newTestOrchestrator()
	s := &Subject{ID: "lead-9", Name: "Luis", Status: "new", Tags: []string{}, CreatedAt: evalNow.Add(-time.Hour)}
	rules := []*Rule{welcomeRule()}

	first := orch.RunPass(context.Background(), s, rules, "agent", evalNow)

	require.Len(t, first, 1)
	assert.Equal(t, OutcomeSuccess, first[0].Outcome)
	assert.Equal(t, "2 actions completed", first[0].Message)
	assert.Equal(t, "assign: assignment routed via auto-branch; add-tag: tag Lead added", first[0].ActionSummary)
	assert.Equal(t, "welcome", first[0].RuleID)
	assert.Equal(t, "lead-9", first[0].SubjectID)
	assert.Equal(t, evalNow, first[0].Timestamp)
	assert.Len(t, first[0].Snapshot.Actions, 2)
	assert.True(t, s.HasTag("Lead"))
	assert.Equal(t, AssignAutoBranch, s.AssignedTo)

	second := orch.RunPass(context.Background(), s, rules, "agent", evalNow)
	require.Len(t, second, 1, "rules are not consumed while conditions hold")
	assert.Equal(t, OutcomeSuccess, second[0].Outcome)
	assert.NotEqual(t, first[0].ID, second[0].ID)

	stored, err := logs.List(context.Background(), LogFilter{SubjectID: "lead-9"})
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestRunPassSkipsUnmatched(t *testing.T) {
	orch, logs := newTestOrchestrator()
	inactive := welcomeRule()
	inactive.Active = false
	scoped := welcomeRule()
	scoped.ID = "scoped"
	scoped.AllowedRoles = []string{"admin"}
	unmatched := welcomeRule()
	unmatched.ID = "unmatched"
	unmatched.Conditions = []Condition{{Type: ConditionStatus, Operator: OpEqual, Value: "won"}}

	s := &Subject{ID: "lead-1", Status: "new"}
	produced := orch.RunPass(context.Background(), s, []*Rule{inactive, scoped, unmatched}, "agent", evalNow)

	assert.Empty(t, produced)
	all, _ := logs.List(context.Background(), LogFilter{})
	assert.Empty(t, all)
	assert.False(t, s.HasTag("Lead"))
}

func TestRunPassIsolatesFailures(t *testing.T) {
	orch, _ := newTestOrchestrator()
	broken := &Rule{ID: "broken", Name: "Broken", Active: true, Priority: PriorityHigh, Actions: []Action{
		{Type: ActionAddTag, Value: "Touched"},
		{Type: ActionConfirmAppointment},
		{Type: ActionAddTag, Value: "Unreached"},
	}}
	s := &Subject{ID: "lead-2", Status: "new"}

	produced := orch.RunPass(context.Background(), s, []*Rule{broken, welcomeRule()}, "agent", evalNow)

	require.Len(t, produced, 2)
	assert.Equal(t, "broken", produced[0].RuleID)
	assert.Equal(t, OutcomeFailure, produced[0].Outcome)
	assert.Contains(t, produced[0].Message, "stopped at confirm-appointment after 1 of 3 actions")
	assert.Equal(t, "welcome", produced[1].RuleID)
	assert.Equal(t, OutcomeSuccess, produced[1].Outcome)
	assert.True(t, s.HasTag("Touched"))
	assert.False(t, s.HasTag("Unreached"))
	assert.True(t, s.HasTag("Lead"))
}

func TestSortRulesIsStableByPriorityThenOrder(t *testing.T) {
	rules := []*Rule{
		{ID: "low", Active: true, Priority: PriorityLow, Order: 0},
		{ID: "med-2", Active: true, Priority: PriorityMedium, Order: 2},
		{ID: "off", Active: false, Priority: PriorityHigh},
		{ID: "high", Active: true, Priority: PriorityHigh, Order: 9},
		{ID: "med-1a", Active: true, Priority: PriorityMedium, Order: 1},
		{ID: "med-1b", Active: true, Priority: PriorityMedium, Order: 1},
		{ID: "odd", Active: true, Priority: "critical"},
	}

	var ids []string
	for _, r := range SortRules(rules) {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"high", "med-1a", "med-1b", "med-2", "low", "odd"}, ids)
}

type failingRuleStore struct{ MemoryRuleStore }

func (f *failingRuleStore) List(context.Context) ([]*Rule, error) {
	return nil, errors.New("connection refused")
}

func TestRunStored(t *testing.T) {
	orch, _ := newTestOrchestrator(welcomeRule())
	s := &Subject{ID: "lead-3", Status: "new"}

	produced, err := orch.RunStored(context.Background(), s, "agent", evalNow)
	require.NoError(t, err)
	assert.Len(t, produced, 1)

	broken := NewOrchestrator(NewGates(time.UTC), NewExecutor(nil, quietLogger()), &failingRuleStore{}, NewMemoryLogStore(), quietLogger())
	_, err = broken.RunStored(context.Background(), s, "agent", evalNow)
	assert.ErrorContains(t, err, "connection refused")
}

func TestSimulate(t *testing.T) {
	r := welcomeRule()
	r.Active = false
	r.BranchScope = "centro"
	subjects := []*Subject{
		{ID: "a", Status: "new", CustomFields: map[string]string{FieldBranch: "centro"}},
		{ID: "b", Status: "contacted", CustomFields: map[string]string{FieldBranch: "centro"}},
		{ID: "c", Status: "new", CustomFields: map[string]string{FieldBranch: "norte"}},
	}

	res := Simulate(r, subjects, evalNow)

	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 1, res.Matched)
	assert.Equal(t, []string{"a"}, res.SubjectIDs)
	assert.Empty(t, subjects[0].Tags, "simulation executes nothing")
}

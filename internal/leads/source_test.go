package leads

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinicops/internal/automation"
)

func TestSubjectProjection(t *testing.T) {
	contact := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	lead := &Lead{
		ID: "lead-1", Name: "Ana", Email: "ana@example.com", Phone: "+5215550001111",
		Message: "Needs a cleaning", Channel: "whatsapp", Status: "new",
		Tags: []string{"VIP"}, Attempts: 2, LastContactAt: &contact,
		CustomFields: map[string]string{automation.FieldBranch: "centro"},
	}

	s := lead.Subject()

	assert.Equal(t, automation.SubjectLead, s.Kind)
	assert.Equal(t, "+5215550001111", s.Contact)
	assert.Equal(t, "Needs a cleaning", s.Notes)
	assert.Equal(t, "centro", s.Field(automation.FieldBranch))

	s.Tags[0] = "changed"
	assert.Equal(t, "VIP", lead.Tags[0], "projection must not alias the lead")

	lead.Channel = "email"
	assert.Equal(t, "ana@example.com", lead.Subject().Contact)
}

func TestSubjectSourceRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()
	created, err := repo.Create(ctx, &CreateLeadRequest{Name: "Luis", Phone: "+5215550002222", Channel: "sms"})
	require.NoError(t, err)

	source := NewSubjectSource(repo)
	subjects, err := source.ListSubjects(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, subjects, 1)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s := subjects[0]
	s.AddTag("Lead")
	s.SetStatus("contacted", now)
	s.AssignedTo = automation.AssignAutoBranch
	s.SetField(automation.FieldPendingTask, "Call back")
	s.UpdatedAt = now
	require.NoError(t, source.SaveSubject(ctx, s))

	stored, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Lead"}, stored.Tags)
	assert.Equal(t, "contacted", stored.Status)
	assert.Equal(t, now, stored.StatusChangedAt)
	assert.Equal(t, automation.AssignAutoBranch, stored.AssignedTo)
	assert.Equal(t, "Call back", stored.CustomFields[automation.FieldPendingTask])
	assert.Equal(t, "Luis", stored.Name, "engine never touches identity fields")
}

func TestSubjectSourceSaveUnknown(t *testing.T) {
	source := NewSubjectSource(NewInMemoryRepository())
	err := source.SaveSubject(context.Background(), &automation.Subject{ID: "ghost"})
	assert.ErrorIs(t, err, ErrLeadNotFound)
}

func TestMotorOverLeads(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()
	lead, err := repo.Create(ctx, &CreateLeadRequest{Name: "Rosa", Email: "rosa@example.com"})
	require.NoError(t, err)

	rules := automation.NewMemoryRuleStore(&automation.Rule{
		ID: "welcome", Name: "Welcome", Active: true, Priority: automation.PriorityHigh,
		Conditions: []automation.Condition{{Type: automation.ConditionStatus, Operator: automation.OpEqual, Value: "new"}},
		Actions:    []automation.Action{{Type: automation.ActionAddTag, Value: "Lead"}},
	})
	orch := automation.NewOrchestrator(automation.NewGates(time.UTC), automation.NewExecutor(nil, nil), rules, automation.NewMemoryLogStore(), nil)

	report, err := automation.NewMotor(NewSubjectSource(repo), orch, nil).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Logs)

	stored, err := repo.GetByID(ctx, lead.ID)
	require.NoError(t, err)
	assert.True(t, stored.Subject().HasTag("Lead"))
}

func TestMotorOverLeadsPagesEveryLead(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()
	var ids []string
	for _, name := range []string{"Ana", "Beto", "Carla", "Dani", "Eva"} {
		l, err := repo.Create(ctx, &CreateLeadRequest{Name: name, Email: name + "@example.com"})
		require.NoError(t, err)
		ids = append(ids, l.ID)
	}

	rules := automation.NewMemoryRuleStore(&automation.Rule{
		ID: "contact", Name: "Contact", Active: true, Priority: automation.PriorityMedium,
		Conditions: []automation.Condition{{Type: automation.ConditionStatus, Operator: automation.OpEqual, Value: "new"}},
		Actions:    []automation.Action{{Type: automation.ActionMoveStatus, Value: "contacted"}},
	})
	orch := automation.NewOrchestrator(automation.NewGates(time.UTC), automation.NewExecutor(nil, nil), rules, automation.NewMemoryLogStore(), nil)

	report, err := automation.NewMotor(NewSubjectSource(repo), orch, nil).WithBatchSize(2).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, report.Subjects)
	assert.Equal(t, 5, report.Logs)

	for _, id := range ids {
		stored, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "contacted", stored.Status)
	}
}

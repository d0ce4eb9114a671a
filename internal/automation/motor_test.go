package automation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakySource struct {
	*MemorySubjectSource
	mu      sync.Mutex
	failIDs map[string]bool
}

func (f *flakySource) SaveSubject(ctx context.Context, s *Subject) error {
	f.mu.Lock()
	fail := f.failIDs[s.ID]
	f.mu.Unlock()
	if fail {
		return errors.New("write conflict")
	}
	return f.MemorySubjectSource.SaveSubject(ctx, s)
}

func TestMotorRunOnce(t *testing.T) {
	var subjects []*Subject
	for i := 0; i < 10; i++ {
		status := "new"
		if i%2 == 1 {
			status = "contacted"
		}
		subjects = append(subjects, &Subject{ID: fmt.Sprintf("lead-%02d", i), Status: status})
	}
	source := NewMemorySubjectSource(subjects...)
	orch, logs := newTestOrchestrator(welcomeRule())
	motor := NewMotor(source, orch, quietLogger()).
		WithWorkers(3).
		WithClock(func() time.Time { return evalNow })

	report, err := motor.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, MotorReport{Subjects: 10, Logs: 5}, report)

	saved, ok := source.Get("lead-00")
	require.True(t, ok)
	assert.True(t, saved.HasTag("Lead"))
	untouched, ok := source.Get("lead-01")
	require.True(t, ok)
	assert.False(t, untouched.HasTag("Lead"))

	all, err := logs.List(context.Background(), LogFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

type pagingSource struct {
	*MemorySubjectSource
	offsets []int
	failAt  int
}

func (p *pagingSource) ListSubjects(ctx context.Context, offset, limit int) ([]*Subject, error) {
	p.offsets = append(p.offsets, offset)
	if p.failAt > 0 && offset == p.failAt {
		return nil, errors.New("replica lag")
	}
	return p.MemorySubjectSource.ListSubjects(ctx, offset, limit)
}

func TestMotorPagesPastBatchSize(t *testing.T) {
	source := &pagingSource{MemorySubjectSource: NewMemorySubjectSource(
		&Subject{ID: "a", Status: "new"},
		&Subject{ID: "b", Status: "new"},
		&Subject{ID: "c", Status: "new"},
	)}
	orch, _ := newTestOrchestrator(&Rule{
		ID: "qualify", Name: "Qualify", Active: true, Priority: PriorityMedium,
		Conditions: []Condition{{Type: ConditionStatus, Operator: OpEqual, Value: "new"}},
		Actions:    []Action{{Type: ActionMoveStatus, Value: "qualified"}},
	})

	report, err := NewMotor(source, orch, quietLogger()).WithBatchSize(2).RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, MotorReport{Subjects: 3, Logs: 3}, report)
	assert.Equal(t, []int{0, 2}, source.offsets)
	for _, id := range []string{"a", "b", "c"} {
		s, ok := source.Get(id)
		require.True(t, ok)
		assert.Equal(t, "qualified", s.Status, id)
	}
}

func TestMotorStopsOnExactMultiple(t *testing.T) {
	source := &pagingSource{MemorySubjectSource: NewMemorySubjectSource(
		&Subject{ID: "a", Status: "new"},
		&Subject{ID: "b", Status: "new"},
	)}
	orch, _ := newTestOrchestrator(welcomeRule())

	report, err := NewMotor(source, orch, quietLogger()).WithBatchSize(2).RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, report.Subjects)
	assert.Equal(t, []int{0, 2}, source.offsets)
}

func TestMotorReportsPageListFailure(t *testing.T) {
	source := &pagingSource{
		MemorySubjectSource: NewMemorySubjectSource(&Subject{ID: "a", Status: "new"}, &Subject{ID: "b", Status: "new"}, &Subject{ID: "c", Status: "new"}),
		failAt:              2,
	}
	orch, _ := newTestOrchestrator(welcomeRule())

	report, err := NewMotor(source, orch, quietLogger()).WithBatchSize(2).RunOnce(context.Background())

	assert.ErrorContains(t, err, "list subjects at 2")
	assert.Equal(t, 2, report.Subjects)
}

func TestMotorRunsUnderSystemRole(t *testing.T) {
	rule := welcomeRule()
	rule.AllowedRoles = []string{"admin"}
	source := NewMemorySubjectSource(&Subject{ID: "a", Status: "new"})
	orch, _ := newTestOrchestrator(rule)

	report, err := NewMotor(source, orch, quietLogger()).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Logs)

	report, err = NewMotor(source, orch, quietLogger()).WithRole("admin").RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Logs)
}

func TestMotorCountsSaveFailures(t *testing.T) {
	source := &flakySource{
		MemorySubjectSource: NewMemorySubjectSource(&Subject{ID: "a", Status: "new"}, &Subject{ID: "b", Status: "new"}),
		failIDs:             map[string]bool{"b": true},
	}
	orch, _ := newTestOrchestrator(welcomeRule())

	report, err := NewMotor(source, orch, quietLogger()).RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, report.Logs)
	assert.Equal(t, 1, report.SaveFailures)
}

func TestMotorFailsWithoutRules(t *testing.T) {
	orch := NewOrchestrator(NewGates(time.UTC), NewExecutor(nil, quietLogger()), &failingRuleStore{}, NewMemoryLogStore(), quietLogger())
	_, err := NewMotor(NewMemorySubjectSource(), orch, quietLogger()).RunOnce(context.Background())
	assert.ErrorContains(t, err, "load rules")
}

package automation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/clinicops/pkg/logging"
)

// SubjectSource feeds the motor and persists the mutated subjects. Listings
// are in a stable order so offsets page through every subject.
type SubjectSource interface {
	ListSubjects(ctx context.Context, offset, limit int) ([]*Subject, error)
	SaveSubject(ctx context.Context, s *Subject) error
}

// SystemRole is the role the motor runs rules under.
const SystemRole = "system"

// MotorReport summarizes one motor tick.
type MotorReport struct {
	Subjects     int
	Logs         int
	Failures     int
	SaveFailures int
}

// Motor periodically runs the stored rules over every subject, one page of
// batch subjects at a time. Each subject is handled by exactly one worker.
type Motor struct {
	source  SubjectSource
	orch    *Orchestrator
	logger  *logging.Logger
	batch   int
	workers int
	role    string
	now     func() time.Time
}

func NewMotor(source SubjectSource, orch *Orchestrator, logger *logging.Logger) *Motor {
	if logger == nil {
		logger = logging.Default()
	}
	return &Motor{
		source:  source,
		orch:    orch,
		logger:  logger,
		batch:   200,
		workers: 4,
		role:    SystemRole,
		now:     time.Now,
	}
}

func (m *Motor) WithBatchSize(n int) *Motor {
	if n > 0 {
		m.batch = n
	}
	return m
}

func (m *Motor) WithWorkers(n int) *Motor {
	if n > 0 {
		m.workers = n
	}
	return m
}

func (m *Motor) WithRole(role string) *Motor {
	if role != "" {
		m.role = role
	}
	return m
}

func (m *Motor) WithClock(now func() time.Time) *Motor {
	if now != nil {
		m.now = now
	}
	return m
}

// RunOnce loads the rules once and pages through all subjects.
func (m *Motor) RunOnce(ctx context.Context) (MotorReport, error) {
	var report MotorReport
	if m.orch.rules == nil {
		return report, fmt.Errorf("automation: motor: no rule store configured")
	}
	rules, err := m.orch.rules.List(ctx)
	if err != nil {
		return report, fmt.Errorf("automation: motor: load rules: %w", err)
	}
	now := m.now()

	for offset := 0; ; offset += m.batch {
		subjects, err := m.source.ListSubjects(ctx, offset, m.batch)
		if err != nil {
			return report, fmt.Errorf("automation: motor: list subjects at %d: %w", offset, err)
		}
		if err := m.runPage(ctx, subjects, rules, now, &report); err != nil {
			return report, err
		}
		if len(subjects) < m.batch {
			break
		}
	}
	m.logger.Info("automation motor pass complete", "subjects", report.Subjects, "logs", report.Logs, "failures", report.Failures)
	return report, nil
}

func (m *Motor) runPage(ctx context.Context, subjects []*Subject, rules []*Rule, now time.Time, report *MotorReport) error {
	report.Subjects += len(subjects)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for _, s := range subjects {
		g.Go(func() error {
			logs := m.orch.RunPass(gctx, s, rules, m.role, now)
			failures := 0
			for _, l := range logs {
				if l.Outcome == OutcomeFailure {
					failures++
				}
			}
			saveFailed := false
			if len(logs) > 0 {
				if err := m.source.SaveSubject(gctx, s); err != nil {
					m.logger.Error("motor failed to save subject", "subject_id", s.ID, "error", err)
					saveFailed = true
				}
			}
			mu.Lock()
			report.Logs += len(logs)
			report.Failures += failures
			if saveFailed {
				report.SaveFailures++
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Run adapts RunOnce to the scheduler job signature.
func (m *Motor) Run(ctx context.Context) {
	if _, err := m.RunOnce(ctx); err != nil {
		m.logger.Error("automation motor pass failed", "error", err)
	}
}

// MemorySubjectSource is an in-process SubjectSource.
type MemorySubjectSource struct {
	mu       sync.RWMutex
	subjects map[string]*Subject
	order    []string
}

func NewMemorySubjectSource(subjects ...*Subject) *MemorySubjectSource {
	src := &MemorySubjectSource{subjects: make(map[string]*Subject)}
	for _, s := range subjects {
		src.put(s)
	}
	return src
}

func (m *MemorySubjectSource) put(s *Subject) {
	if _, ok := m.subjects[s.ID]; !ok {
		m.order = append(m.order, s.ID)
	}
	m.subjects[s.ID] = s.Clone()
}

func (m *MemorySubjectSource) ListSubjects(_ context.Context, offset, limit int) ([]*Subject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if offset < 0 {
		offset = 0
	}
	var out []*Subject
	for _, id := range m.order[min(offset, len(m.order)):] {
		out = append(out, m.subjects[id].Clone())
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MemorySubjectSource) SaveSubject(_ context.Context, s *Subject) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(s)
	return nil
}

// Get returns a copy of a stored subject.
func (m *MemorySubjectSource) Get(id string) (*Subject, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.subjects[id]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

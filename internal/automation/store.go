package automation

import (
	"context"
	"sort"
	"sync"
	"time"
)

// RuleStore persists rule definitions.
type RuleStore interface {
	List(ctx context.Context) ([]*Rule, error)
	Get(ctx context.Context, id string) (*Rule, error)
	Save(ctx context.Context, r *Rule) error
}

// LogFilter narrows a log listing. Zero fields match everything.
type LogFilter struct {
	RuleID    string
	SubjectID string
	Limit     int
}

// LogStore is an append-only audit trail of rule runs.
type LogStore interface {
	Append(ctx context.Context, l Log) error
	List(ctx context.Context, f LogFilter) ([]Log, error)
}

// MemoryRuleStore keeps rules in process.
type MemoryRuleStore struct {
	mu    sync.RWMutex
	rules map[string]*Rule
}

func NewMemoryRuleStore(rules ...*Rule) *MemoryRuleStore {
	s := &MemoryRuleStore{rules: make(map[string]*Rule)}
	for _, r := range rules {
		s.rules[r.ID] = cloneRule(r)
	}
	return s
}

func (s *MemoryRuleStore) List(_ context.Context) ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Rule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, cloneRule(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryRuleStore) Get(_ context.Context, id string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rules[id]
	if !ok {
		return nil, ErrRuleNotFound
	}
	return cloneRule(r), nil
}

func (s *MemoryRuleStore) Save(_ context.Context, r *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[r.ID] = cloneRule(r)
	return nil
}

func cloneRule(r *Rule) *Rule {
	cp := *r
	cp.Conditions = append([]Condition(nil), r.Conditions...)
	cp.Actions = append([]Action(nil), r.Actions...)
	cp.AllowedRoles = append([]string(nil), r.AllowedRoles...)
	if r.Schedule != nil {
		sch := *r.Schedule
		sch.Days = append([]time.Weekday(nil), r.Schedule.Days...)
		cp.Schedule = &sch
	}
	if r.PauseWindow != nil {
		p := *r.PauseWindow
		cp.PauseWindow = &p
	}
	if r.ABTest != nil {
		ab := *r.ABTest
		cp.ABTest = &ab
	}
	if r.SLAByStage != nil {
		cp.SLAByStage = make(map[string]int, len(r.SLAByStage))
		for k, v := range r.SLAByStage {
			cp.SLAByStage[k] = v
		}
	}
	return &cp
}

// MemoryLogStore keeps logs in append order.
type MemoryLogStore struct {
	mu   sync.RWMutex
	logs []Log
}

func NewMemoryLogStore() *MemoryLogStore {
	return &MemoryLogStore{}
}

func (s *MemoryLogStore) Append(_ context.Context, l Log) error {
	s.mu.Lock()
	s.logs = append(s.logs, l)
	s.mu.Unlock()
	return nil
}

// List returns matching logs newest first.
func (s *MemoryLogStore) List(_ context.Context, f LogFilter) ([]Log, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Log
	for i := len(s.logs) - 1; i >= 0; i-- {
		l := s.logs[i]
		if f.RuleID != "" && l.RuleID != f.RuleID {
			continue
		}
		if f.SubjectID != "" && l.SubjectID != f.SubjectID {
			continue
		}
		out = append(out, l)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

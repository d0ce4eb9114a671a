package leads

import (
	"context"
	"fmt"

	"github.com/wolfman30/clinicops/internal/automation"
)

// SubjectSource feeds leads to the automation motor and writes back what the
// rules changed.
type SubjectSource struct {
	repo Repository
}

func NewSubjectSource(repo Repository) *SubjectSource {
	return &SubjectSource{repo: repo}
}

// ListSubjects pages leads oldest first.
func (s *SubjectSource) ListSubjects(ctx context.Context, offset, limit int) ([]*automation.Subject, error) {
	leads, err := s.repo.List(ctx, ListFilter{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	out := make([]*automation.Subject, 0, len(leads))
	for _, l := range leads {
		out = append(out, l.Subject())
	}
	return out, nil
}

func (s *SubjectSource) SaveSubject(ctx context.Context, subject *automation.Subject) error {
	lead, err := s.repo.GetByID(ctx, subject.ID)
	if err != nil {
		return fmt.Errorf("leads: save subject %s: %w", subject.ID, err)
	}
	lead.Apply(subject)
	return s.repo.Save(ctx, lead)
}

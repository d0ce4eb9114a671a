package opentickets

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Repository persists tickets.
type Repository interface {
	Create(ctx context.Context, t *Ticket) error
	Get(ctx context.Context, id string) (*Ticket, error)
	Update(ctx context.Context, t *Ticket) error
	// ListExpirable returns Active tickets whose validUntil is before now.
	ListExpirable(ctx context.Context, now time.Time, limit int) ([]*Ticket, error)
}

// InMemoryRepository is a mutex-guarded Repository.
type InMemoryRepository struct {
	mu      sync.RWMutex
	tickets map[string]*Ticket
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{tickets: make(map[string]*Ticket)}
}

func (r *InMemoryRepository) Create(_ context.Context, t *Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tickets[t.ID] = t.Clone()
	return nil
}

func (r *InMemoryRepository) Get(_ context.Context, id string) (*Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

func (r *InMemoryRepository) Update(_ context.Context, t *Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tickets[t.ID]; !ok {
		return ErrNotFound
	}
	r.tickets[t.ID] = t.Clone()
	return nil
}

func (r *InMemoryRepository) ListExpirable(_ context.Context, now time.Time, limit int) ([]*Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Ticket
	for _, t := range r.tickets {
		if t.Status == StatusActive && t.ValidUntil.Before(now) {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ValidUntil.Before(out[j].ValidUntil) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

package appointments

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for appointment storage.
type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	Get(ctx context.Context, id string) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	CountInSlot(ctx context.Context, branchRef, date, clock, excludeID string) (int, error)
}

// InMemoryRepository keeps appointments in a map. Records are copied in and
// out so callers never share pointers with the store.
type InMemoryRepository struct {
	mu           sync.RWMutex
	appointments map[string]*Appointment
}

// NewInMemoryRepository creates a new in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{appointments: make(map[string]*Appointment)}
}

func (r *InMemoryRepository) Create(_ context.Context, a *Appointment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = a.CreatedAt
	}
	if a.StatusChangedAt.IsZero() {
		a.StatusChangedAt = a.CreatedAt
	}
	r.mu.Lock()
	r.appointments[a.ID] = a.Clone()
	r.mu.Unlock()
	return nil
}

func (r *InMemoryRepository) Get(_ context.Context, id string) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a.Clone(), nil
}

func (r *InMemoryRepository) Update(_ context.Context, a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.appointments[a.ID]; !ok {
		return ErrNotFound
	}
	r.appointments[a.ID] = a.Clone()
	return nil
}

// CountInSlot counts live appointments occupying a branch slot, skipping excludeID.
func (r *InMemoryRepository) CountInSlot(_ context.Context, branchRef, date, clock, excludeID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, a := range r.appointments {
		if a.ID == excludeID {
			continue
		}
		if a.BranchRef == branchRef && a.ScheduledDate == date && a.ScheduledTime == clock && !a.Status.Terminal() {
			n++
		}
	}
	return n, nil
}

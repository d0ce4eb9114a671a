package leads

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ListFilter narrows a lead listing.
type ListFilter struct {
	Status string
	Limit  int
	Offset int
}

// Repository defines the interface for lead storage
type Repository interface {
	Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error)
	GetByID(ctx context.Context, id string) (*Lead, error)
	List(ctx context.Context, f ListFilter) ([]*Lead, error)
	Save(ctx context.Context, l *Lead) error
}

// InMemoryRepository keeps leads in process. Records are copied in and out.
type InMemoryRepository struct {
	mu    sync.RWMutex
	leads map[string]*Lead
	now   func() time.Time
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		leads: make(map[string]*Lead),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (r *InMemoryRepository) Create(_ context.Context, req *CreateLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	lead := newLead(uuid.New().String(), req, r.now())

	r.mu.Lock()
	r.leads[lead.ID] = lead.Clone()
	r.mu.Unlock()

	return lead, nil
}

func (r *InMemoryRepository) GetByID(_ context.Context, id string) (*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lead, ok := r.leads[id]
	if !ok {
		return nil, ErrLeadNotFound
	}
	return lead.Clone(), nil
}

// List returns leads oldest first.
func (r *InMemoryRepository) List(_ context.Context, f ListFilter) ([]*Lead, error) {
	r.mu.RLock()
	var all []*Lead
	for _, l := range r.leads {
		if f.Status != "" && l.Status != f.Status {
			continue
		}
		all = append(all, l.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})
	if f.Offset >= len(all) {
		return []*Lead{}, nil
	}
	all = all[f.Offset:]
	if f.Limit > 0 && len(all) > f.Limit {
		all = all[:f.Limit]
	}
	return all, nil
}

func (r *InMemoryRepository) Save(_ context.Context, l *Lead) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.leads[l.ID]; !ok {
		return ErrLeadNotFound
	}
	r.leads[l.ID] = l.Clone()
	return nil
}

package appointments

import (
	"context"
	"fmt"
	"time"
)

// CapacityChecker answers whether a branch can take another booking at a time.
// excludeID names an appointment that must not count against the slot, the
// one being moved; it is empty for new bookings. Availability is owned
// outside this package.
type CapacityChecker interface {
	HasCapacity(ctx context.Context, branchRef string, at time.Time, excludeID string) (bool, error)
}

// CapacityFunc adapts a function to CapacityChecker.
type CapacityFunc func(ctx context.Context, branchRef string, at time.Time, excludeID string) (bool, error)

func (f CapacityFunc) HasCapacity(ctx context.Context, branchRef string, at time.Time, excludeID string) (bool, error) {
	return f(ctx, branchRef, at, excludeID)
}

// SlotCapacity allows up to PerSlot live appointments per branch slot.
type SlotCapacity struct {
	Repo    Repository
	PerSlot int
}

func (s SlotCapacity) HasCapacity(ctx context.Context, branchRef string, at time.Time, excludeID string) (bool, error) {
	limit := s.PerSlot
	if limit <= 0 {
		limit = 1
	}
	n, err := s.Repo.CountInSlot(ctx, branchRef, at.Format(DateLayout), at.Format(ClockLayout), excludeID)
	if err != nil {
		return false, fmt.Errorf("appointments: count slot: %w", err)
	}
	return n < limit, nil
}

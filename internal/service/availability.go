package service

import (
	"context"

	"github.com/iliyamo/homestay-reservation/internal/model"
	"github.com/iliyamo/homestay-reservation/internal/repository"
)

// AvailabilityChecker decides whether a room is free for a stay.  It reads
// through whatever LineReader it is given: the store for lock-free display
// queries, or a locked transaction for the authoritative check before insert.
type AvailabilityChecker struct {
	clock Clock
	// expire is called once per overdue RESERVED reservation found by
	// Conflicts.  It may be nil.
	expire func(ctx context.Context, reservationID string)
}

// NewAvailabilityChecker returns a checker evaluating payment deadlines
// against clock.
func NewAvailabilityChecker(clock Clock, expire func(ctx context.Context, reservationID string)) *AvailabilityChecker {
	return &AvailabilityChecker{clock: clock, expire: expire}
}

// Check returns the lines on roomID that overlap stay and still hold the
// room, ignoring lines of excludeID.  RESERVED lines past their payment
// deadline do not count; their reservation ids are returned in overdue,
// each once, and are left for the caller to expire.
func (a *AvailabilityChecker) Check(ctx context.Context, r repository.LineReader, roomID string, stay model.Interval, excludeID string) (conflicts []model.OccupiedLine, overdue []string, err error) {
	lines, err := r.OccupyingLines(ctx, roomID, stay)
	if err != nil {
		return nil, nil, err
	}
	now := a.clock.Now()
	seen := make(map[string]struct{})
	for _, l := range lines {
		if excludeID != "" && l.ReservationID == excludeID {
			continue
		}
		if l.PaymentOverdue(now) {
			if _, ok := seen[l.ReservationID]; !ok {
				seen[l.ReservationID] = struct{}{}
				overdue = append(overdue, l.ReservationID)
			}
			continue
		}
		if l.Stay.Overlaps(stay) {
			conflicts = append(conflicts, l)
		}
	}
	return conflicts, overdue, nil
}

// Conflicts is Check followed by the expire hook for every overdue
// reservation.  Only use it on readers that hold no locks: the hook writes
// through its own connection.
func (a *AvailabilityChecker) Conflicts(ctx context.Context, r repository.LineReader, roomID string, stay model.Interval, excludeID string) ([]model.OccupiedLine, error) {
	conflicts, overdue, err := a.Check(ctx, r, roomID, stay, excludeID)
	if err != nil {
		return nil, err
	}
	if a.expire != nil {
		for _, id := range overdue {
			a.expire(ctx, id)
		}
	}
	return conflicts, nil
}

// IsAvailable reports whether no line other than excludeID's holds roomID
// during stay.
func (a *AvailabilityChecker) IsAvailable(ctx context.Context, r repository.LineReader, roomID string, stay model.Interval, excludeID string) (bool, error) {
	conflicts, err := a.Conflicts(ctx, r, roomID, stay, excludeID)
	if err != nil {
		return false, err
	}
	return len(conflicts) == 0, nil
}

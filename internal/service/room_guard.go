package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/iliyamo/homestay-reservation/internal/repository"
)

// RoomGuard serialises writers per room.  fn runs inside one transaction
// after every requested room lock is held; the transaction commits only if
// fn returns nil, so a multi-room booking lands on all rooms or none.
type RoomGuard struct {
	store repository.ReservationStore
	wait  time.Duration
}

// NewRoomGuard returns a guard that waits at most wait for each room lock.
func NewRoomGuard(store repository.ReservationStore, wait time.Duration) *RoomGuard {
	return &RoomGuard{store: store, wait: wait}
}

// WithRoomLock is WithRoomLocks for a single room.
func (g *RoomGuard) WithRoomLock(ctx context.Context, roomID string, fn func(tx repository.ReservationTx) error) error {
	return g.WithRoomLocks(ctx, []string{roomID}, fn)
}

// WithRoomLocks locks the distinct rooms in ascending id order, so two
// requests over overlapping room sets always queue instead of deadlocking,
// runs fn and commits.  A lock that cannot be taken in time yields
// model.ErrBusy and nothing is written.
func (g *RoomGuard) WithRoomLocks(ctx context.Context, roomIDs []string, fn func(tx repository.ReservationTx) error) error {
	ids := sortedDistinct(roomIDs)

	tx, err := g.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	for _, id := range ids {
		if err := tx.LockRoom(ctx, id, g.wait); err != nil {
			return err
		}
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

func sortedDistinct(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, id := range in {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

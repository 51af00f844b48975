package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/homestay-reservation/internal/model"
)

// MemoryStore keeps reservations and rooms in process memory.  It honours
// the same locking contract as the MySQL store: each room has a one-slot
// lock, inserts are buffered in the transaction and become visible on
// Commit, and status changes are compare-and-swap under the store mutex.
// All values handed out are copies.
type MemoryStore struct {
	mu           sync.RWMutex
	reservations map[string]*model.Reservation
	rooms        map[string]model.Room

	locksMu sync.Mutex
	locks   map[string]chan struct{}
}

// NewMemoryStore returns an empty store seeded with the given rooms.
func NewMemoryStore(rooms ...model.Room) *MemoryStore {
	s := &MemoryStore{
		reservations: make(map[string]*model.Reservation),
		rooms:        make(map[string]model.Room),
		locks:        make(map[string]chan struct{}),
	}
	for _, r := range rooms {
		s.rooms[r.ID] = r
	}
	return s
}

// AddRoom inserts or replaces a catalog room.
func (s *MemoryStore) AddRoom(r model.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[r.ID] = r
}

// GetRoom implements RoomCatalog.
func (s *MemoryStore) GetRoom(_ context.Context, id string) (*model.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return &r, nil
}

// ListRoomsByBranch implements RoomCatalog.  Rooms are ordered by id.
func (s *MemoryStore) ListRoomsByBranch(_ context.Context, branchID string) ([]model.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Room, 0)
	for _, r := range s.rooms {
		if r.BranchID == branchID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// OccupyingLines implements LineReader on committed data.
func (s *MemoryStore) OccupyingLines(_ context.Context, roomID string, within model.Interval) ([]model.OccupiedLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.OccupiedLine, 0)
	for _, res := range s.reservations {
		out = appendOccupying(out, res, roomID, within)
	}
	return out, nil
}

func appendOccupying(out []model.OccupiedLine, res *model.Reservation, roomID string, within model.Interval) []model.OccupiedLine {
	if res.IsDeleted || !res.Status.Occupying() {
		return out
	}
	for _, l := range res.Lines {
		if l.RoomID != roomID || !l.Stay.Overlaps(within) {
			continue
		}
		out = append(out, model.OccupiedLine{
			ReservationID:    res.ID,
			RoomID:           l.RoomID,
			Stay:             l.Stay,
			Status:           res.Status,
			PaymentTimeoutAt: copyTime(res.PaymentTimeoutAt),
		})
	}
	return out
}

// GetByID implements ReservationStore.
func (s *MemoryStore) GetByID(_ context.Context, id string) (*model.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.reservations[id]
	if !ok {
		return nil, ErrReservationNotFound
	}
	return cloneReservation(res), nil
}

// ApplyStatusChange implements ReservationStore.
func (s *MemoryStore) ApplyStatusChange(_ context.Context, ch model.StatusChange) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.reservations[ch.ReservationID]
	if !ok {
		return false, ErrReservationNotFound
	}
	if !ch.Matches(res) {
		return false, nil
	}
	ch.ApplyTo(res)
	return true, nil
}

// ListOverdue implements ReservationStore.
func (s *MemoryStore) ListOverdue(_ context.Context, now time.Time, limit int) ([]model.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Reservation, 0)
	for _, res := range s.reservations {
		if !res.IsDeleted && res.PaymentOverdue(now) {
			out = append(out, *cloneReservation(res))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PaymentTimeoutAt.Before(*out[j].PaymentTimeoutAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListByBranch implements ReservationStore.
func (s *MemoryStore) ListByBranch(_ context.Context, branchID string, withHistory bool) ([]model.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Reservation, 0)
	for _, res := range s.reservations {
		if res.BranchID != branchID {
			continue
		}
		if !withHistory && (res.IsDeleted || res.Status == model.StatusAborted) {
			continue
		}
		out = append(out, *cloneReservation(res))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// BeginTx implements ReservationStore.
func (s *MemoryStore) BeginTx(_ context.Context) (ReservationTx, error) {
	return &memoryTx{store: s}, nil
}

func (s *MemoryStore) roomLock(roomID string) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	ch, ok := s.locks[roomID]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[roomID] = ch
	}
	return ch
}

type memoryTx struct {
	store   *MemoryStore
	held    []chan struct{}
	inserts []*model.Reservation
	done    bool
}

func (tx *memoryTx) LockRoom(ctx context.Context, roomID string, wait time.Duration) error {
	if tx.done {
		return fmt.Errorf("memory tx: already finished")
	}
	if _, err := tx.store.GetRoom(ctx, roomID); err != nil {
		return err
	}
	lock := tx.store.roomLock(roomID)
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case lock <- struct{}{}:
		tx.held = append(tx.held, lock)
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: lock wait for room %s exceeded %s", model.ErrBusy, roomID, wait)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (tx *memoryTx) OccupyingLines(ctx context.Context, roomID string, within model.Interval) ([]model.OccupiedLine, error) {
	out, err := tx.store.OccupyingLines(ctx, roomID, within)
	if err != nil {
		return nil, err
	}
	for _, res := range tx.inserts {
		out = appendOccupying(out, res, roomID, within)
	}
	return out, nil
}

func (tx *memoryTx) Insert(_ context.Context, res *model.Reservation) error {
	if tx.done {
		return fmt.Errorf("memory tx: already finished")
	}
	tx.inserts = append(tx.inserts, cloneReservation(res))
	return nil
}

func (tx *memoryTx) Commit() error {
	if tx.done {
		return fmt.Errorf("memory tx: already finished")
	}
	defer tx.release()
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, res := range tx.inserts {
		if _, exists := s.reservations[res.ID]; exists {
			return fmt.Errorf("memory tx: duplicate reservation id %s", res.ID)
		}
	}
	for _, res := range tx.inserts {
		s.reservations[res.ID] = res
	}
	return nil
}

func (tx *memoryTx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.release()
	return nil
}

func (tx *memoryTx) release() {
	tx.done = true
	tx.inserts = nil
	for _, lock := range tx.held {
		<-lock
	}
	tx.held = nil
}

func cloneReservation(res *model.Reservation) *model.Reservation {
	c := *res
	c.PaymentTimeoutAt = copyTime(res.PaymentTimeoutAt)
	c.DeletedAt = copyTime(res.DeletedAt)
	c.Lines = append([]model.ReservationLine(nil), res.Lines...)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

package repository

import (
	"context"      // context carries deadlines for catalog lookups
	"database/sql" // sql provides DB primitives
	"errors"

	"github.com/iliyamo/homestay-reservation/internal/model"
)

// RoomRepo reads the branch room catalog.  The booking engine never writes
// rooms; the rows exist so reservations can be validated against capacity
// and pricing and so LockRoom has a row to lock.
type RoomRepo struct {
	db *sql.DB // db is the underlying database connection
}

// NewRoomRepo constructs a RoomRepo with the given DB handle.
func NewRoomRepo(db *sql.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

// GetRoom fetches an active room by id.  Inactive rooms are reported as not
// found so they cannot be booked.
func (r *RoomRepo) GetRoom(ctx context.Context, id string) (*model.Room, error) {
	const q = `SELECT id, branch_id, name, capacity, nightly_rate_cents
	           FROM rooms WHERE id = ? AND is_active = 1`
	var room model.Room
	err := r.db.QueryRowContext(ctx, q, id).
		Scan(&room.ID, &room.BranchID, &room.Name, &room.Capacity, &room.NightlyRateCents)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return &room, nil
}

// ListRoomsByBranch returns all active rooms of a branch ordered by id.
func (r *RoomRepo) ListRoomsByBranch(ctx context.Context, branchID string) ([]model.Room, error) {
	const q = `SELECT id, branch_id, name, capacity, nightly_rate_cents
	           FROM rooms WHERE branch_id = ? AND is_active = 1
	           ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Room, 0)
	for rows.Next() {
		var room model.Room
		if err := rows.Scan(&room.ID, &room.BranchID, &room.Name, &room.Capacity, &room.NightlyRateCents); err != nil {
			return nil, err
		}
		out = append(out, room)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

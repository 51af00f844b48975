package repository

import (
	"context"
	"time"

	"github.com/iliyamo/homestay-reservation/internal/model"
)

// LineReader reads the reservation lines that may occupy a room.
type LineReader interface {
	// OccupyingLines returns the lines on roomID whose stay intersects
	// within and whose reservation is RESERVED, CONFIRMED or COMPLETED and
	// not soft deleted.  Payment deadlines are not evaluated here; callers
	// decide whether an overdue RESERVED line still counts.
	OccupyingLines(ctx context.Context, roomID string, within model.Interval) ([]model.OccupiedLine, error)
}

// ReservationTx is a transaction scoped to a set of locked rooms.  Reads
// made after LockRoom observe every line committed before the lock was
// granted, and no other transaction can insert lines on a locked room until
// this one ends.
type ReservationTx interface {
	LineReader
	// LockRoom takes the exclusive lock for roomID, waiting at most wait.
	// It returns model.ErrBusy when the wait elapses and ErrRoomNotFound
	// for an unknown room.
	LockRoom(ctx context.Context, roomID string, wait time.Duration) error
	// Insert stores the reservation and all of its lines.
	Insert(ctx context.Context, res *model.Reservation) error
	Commit() error
	Rollback() error
}

// ReservationStore is the durable storage the booking engine runs on.
type ReservationStore interface {
	LineReader
	BeginTx(ctx context.Context) (ReservationTx, error)
	// GetByID returns the reservation with its lines, including soft deleted
	// ones.  It returns ErrReservationNotFound when the id is unknown.
	GetByID(ctx context.Context, id string) (*model.Reservation, error)
	// ApplyStatusChange performs the guarded compare-and-swap described by
	// ch and reports whether this call won it.
	ApplyStatusChange(ctx context.Context, ch model.StatusChange) (bool, error)
	// ListOverdue returns up to limit RESERVED, non-deleted reservations
	// whose payment deadline is at or before now, oldest deadline first.
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]model.Reservation, error)
	// ListByBranch returns the branch's reservations, newest first.  Unless
	// withHistory is set only active ones are returned: not soft deleted and
	// not ABORTED.  Overdue RESERVED rows are still returned; expiring them
	// is the caller's job.
	ListByBranch(ctx context.Context, branchID string, withHistory bool) ([]model.Reservation, error)
}

// RoomCatalog gives read access to the branch room catalog.
type RoomCatalog interface {
	// GetRoom returns ErrRoomNotFound when the id is unknown.
	GetRoom(ctx context.Context, id string) (*model.Room, error)
	ListRoomsByBranch(ctx context.Context, branchID string) ([]model.Room, error)
}

// Package repository implements storage for reservations and the room
// catalog.  Two implementations satisfy the same contract: ReservationRepo
// and RoomRepo on MySQL, and MemoryStore for tests and local runs.
//
// Not-found conditions are reported with the sentinels below, which wrap
// model.ErrNotFound so that higher layers can test either one.
package repository

import (
	"fmt"

	"github.com/iliyamo/homestay-reservation/internal/model"
)

// ErrReservationNotFound is returned when a reservation id does not resolve.
var ErrReservationNotFound = fmt.Errorf("reservation %w", model.ErrNotFound)

// ErrRoomNotFound is returned when a room id is not in the catalog.
var ErrRoomNotFound = fmt.Errorf("room %w", model.ErrNotFound)

package model

import (
	"fmt"
	"time"
)

// Reservation is one customer's booking over one or more rooms and date
// ranges.  It is the aggregate root: its lines are created with it and never
// change afterwards.
//
// Fields:
//  ID               – opaque identifier (UUID), never reused.
//  BranchID         – branch the rooms belong to.
//  Customer         – contact details used for notifications.
//  Status           – lifecycle state (RESERVED, CONFIRMED, COMPLETED, ABORTED).
//  PaymentMethod    – CARD, CASH or BANK_TRANSFER.
//  PaymentTimeoutAt – payment deadline; set only while a bank transfer
//                     booking is RESERVED.
//  TotalAmountCents – sum of line prices at creation time.
//  IsDeleted        – soft-delete marker; deleted bookings never occupy rooms.
//  DeletedAt        – when the soft delete happened.
type Reservation struct {
	ID               string
	BranchID         string
	Customer         Customer
	Status           Status
	PaymentMethod    PaymentMethod
	PaymentTimeoutAt *time.Time
	TotalAmountCents int64
	IsDeleted        bool
	DeletedAt        *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Lines            []ReservationLine
}

// Customer holds the guest's contact details.
type Customer struct {
	Name  string
	Email string
	Phone string
}

// ReservationLine is one room and stay inside a reservation.
type ReservationLine struct {
	Position   int // display order within the reservation, starting at 1
	RoomID     string
	Stay       Interval
	Adults     int
	Children   int
	PriceCents int64
}

// Guests returns the number of occupants on the line.
func (l ReservationLine) Guests() int { return l.Adults + l.Children }

// Room is a bookable unit from the branch catalog.  The engine only reads it.
type Room struct {
	ID               string
	BranchID         string
	Name             string
	Capacity         int
	NightlyRateCents int64
}

// OccupiedLine is a reservation line together with the owning reservation's
// state, as returned by availability queries.
type OccupiedLine struct {
	ReservationID    string
	RoomID           string
	Stay             Interval
	Status           Status
	PaymentTimeoutAt *time.Time
}

// PaymentOverdue reports whether the line's reservation is a RESERVED booking
// whose payment deadline has passed and which must be treated as ABORTED.
func (l OccupiedLine) PaymentOverdue(now time.Time) bool {
	return overdue(l.Status, l.PaymentTimeoutAt, now)
}

// PaymentOverdue reports whether r is RESERVED and its deadline is at or
// before now.
func (r *Reservation) PaymentOverdue(now time.Time) bool {
	return overdue(r.Status, r.PaymentTimeoutAt, now)
}

func overdue(s Status, deadline *time.Time, now time.Time) bool {
	return s == StatusReserved && deadline != nil && !now.Before(*deadline)
}

// RoomIDs returns the distinct rooms referenced by the lines, in line order.
func (r *Reservation) RoomIDs() []string {
	seen := make(map[string]struct{}, len(r.Lines))
	ids := make([]string, 0, len(r.Lines))
	for _, l := range r.Lines {
		if _, ok := seen[l.RoomID]; ok {
			continue
		}
		seen[l.RoomID] = struct{}{}
		ids = append(ids, l.RoomID)
	}
	return ids
}

// DeadlineGuard restricts a status change by the payment deadline.
type DeadlineGuard int

const (
	// DeadlineAny ignores payment_timeout_at.
	DeadlineAny DeadlineGuard = iota
	// DeadlineOpen requires the deadline to be absent or still in the future.
	DeadlineOpen
	// DeadlineElapsed requires a deadline at or before the change time.
	DeadlineElapsed
)

// StatusChange is a compare-and-swap on a reservation's status.  Storage
// applies it as a single conditional update: it succeeds only if the row is
// still in From, not deleted and satisfies Deadline at time At.  Leaving
// RESERVED always clears the payment deadline.
type StatusChange struct {
	ReservationID string
	From          Status
	To            Status
	Deadline      DeadlineGuard
	SoftDelete    bool
	At            time.Time
}

// Matches reports whether r currently satisfies the change's guard.
func (c StatusChange) Matches(r *Reservation) bool {
	if r.ID != c.ReservationID || r.IsDeleted || r.Status != c.From {
		return false
	}
	switch c.Deadline {
	case DeadlineOpen:
		return r.PaymentTimeoutAt == nil || r.PaymentTimeoutAt.After(c.At)
	case DeadlineElapsed:
		return r.PaymentTimeoutAt != nil && !r.PaymentTimeoutAt.After(c.At)
	}
	return true
}

// ApplyTo writes the change into r without checking the guard.
func (c StatusChange) ApplyTo(r *Reservation) {
	r.Status = c.To
	r.UpdatedAt = c.At
	if c.To != StatusReserved {
		r.PaymentTimeoutAt = nil
	}
	if c.SoftDelete {
		at := c.At
		r.IsDeleted = true
		r.DeletedAt = &at
	}
}

// PlanTransition validates ev against the state machine and the payment
// deadline at now, and returns the guarded change that storage must apply.
// Every path that mutates status (confirm, cancel, complete, lazy expiry and
// the sweeper) goes through here, so they all race on the same guard.
func (r *Reservation) PlanTransition(ev Event, now time.Time) (StatusChange, error) {
	to, err := Transition(r.Status, ev)
	if err != nil {
		return StatusChange{}, err
	}
	ch := StatusChange{ReservationID: r.ID, From: r.Status, To: to, At: now}
	switch ev {
	case EventConfirmPayment:
		if r.PaymentOverdue(now) {
			return StatusChange{}, fmt.Errorf("%w: payment window elapsed", ErrInvalidTransition)
		}
		ch.Deadline = DeadlineOpen
	case EventExpire:
		if !r.PaymentOverdue(now) {
			return StatusChange{}, fmt.Errorf("%w: payment deadline not reached", ErrInvalidTransition)
		}
		ch.Deadline = DeadlineElapsed
	case EventCancel:
		if r.Status == StatusReserved {
			if r.PaymentOverdue(now) {
				return StatusChange{}, fmt.Errorf("%w: payment window elapsed", ErrInvalidTransition)
			}
			// Unpaid cancellations are soft deleted; paid ones stay in the
			// financial history.
			ch.Deadline = DeadlineOpen
			ch.SoftDelete = true
		}
	}
	return ch, nil
}

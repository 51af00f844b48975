// Package queue defines message payloads exchanged over the message broker
// and the consumer that records them.
package queue

import (
	"time"

	"github.com/iliyamo/homestay-reservation/internal/model"
)

// Event types carried in ReservationEvent.Type.
const (
	EventReservationCreated   = "reservation.created"
	EventReservationConfirmed = "reservation.confirmed"
	EventReservationAborted   = "reservation.aborted"
	EventReservationCompleted = "reservation.completed"
)

// ReservationEvent is published after a reservation is created or changes
// status.  It carries enough of the booking for downstream consumers to
// notify the guest or log the change without querying the primary database.
type ReservationEvent struct {
	Type             string      `json:"type"`
	ReservationID    string      `json:"reservation_id"`
	BranchID         string      `json:"branch_id"`
	Status           string      `json:"status"`
	PaymentMethod    string      `json:"payment_method"`
	PaymentTimeoutAt string      `json:"payment_timeout_at,omitempty"`
	CustomerName     string      `json:"customer_name"`
	CustomerEmail    string      `json:"customer_email"`
	CustomerPhone    string      `json:"customer_phone,omitempty"`
	TotalAmountCents int64       `json:"total_amount_cents"`
	Lines            []EventLine `json:"lines"`
	OccurredAt       string      `json:"occurred_at"`
}

// EventLine summarises one booked room.
type EventLine struct {
	RoomID   string `json:"room_id"`
	CheckIn  string `json:"check_in"`
	CheckOut string `json:"check_out"`
	Guests   int    `json:"guests"`
}

// NewReservationEvent builds the payload for eventType from res.
func NewReservationEvent(eventType string, res *model.Reservation, at time.Time) ReservationEvent {
	ev := ReservationEvent{
		Type:             eventType,
		ReservationID:    res.ID,
		BranchID:         res.BranchID,
		Status:           string(res.Status),
		PaymentMethod:    string(res.PaymentMethod),
		CustomerName:     res.Customer.Name,
		CustomerEmail:    res.Customer.Email,
		CustomerPhone:    res.Customer.Phone,
		TotalAmountCents: res.TotalAmountCents,
		Lines:            make([]EventLine, 0, len(res.Lines)),
		OccurredAt:       at.UTC().Format(time.RFC3339),
	}
	if res.PaymentTimeoutAt != nil {
		ev.PaymentTimeoutAt = res.PaymentTimeoutAt.UTC().Format(time.RFC3339)
	}
	for _, l := range res.Lines {
		ev.Lines = append(ev.Lines, EventLine{
			RoomID:   l.RoomID,
			CheckIn:  l.Stay.CheckIn.Format(model.DateLayout),
			CheckOut: l.Stay.CheckOut.Format(model.DateLayout),
			Guests:   l.Guests(),
		})
	}
	return ev
}

package model

import "fmt"

// Status is the lifecycle state of a reservation as stored in
// reservations.status.
type Status string

const (
	StatusReserved  Status = "RESERVED"
	StatusConfirmed Status = "CONFIRMED"
	StatusCompleted Status = "COMPLETED"
	StatusAborted   Status = "ABORTED"
)

// Valid reports whether s is one of the known states.
func (s Status) Valid() bool {
	switch s {
	case StatusReserved, StatusConfirmed, StatusCompleted, StatusAborted:
		return true
	}
	return false
}

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusAborted
}

// Occupying reports whether a reservation in state s holds its rooms.
// Reserved counts: a tentative booking blocks others until it is
// confirmed, cancelled or expires.
func (s Status) Occupying() bool {
	return s == StatusReserved || s == StatusConfirmed || s == StatusCompleted
}

// PaymentMethod is how the guest settles the booking.
type PaymentMethod string

const (
	PaymentCard         PaymentMethod = "CARD"
	PaymentCash         PaymentMethod = "CASH"
	PaymentBankTransfer PaymentMethod = "BANK_TRANSFER"
)

// Valid reports whether m is a supported payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCard, PaymentCash, PaymentBankTransfer:
		return true
	}
	return false
}

// Deferred reports whether confirmation of m arrives asynchronously and is
// therefore bounded by a payment deadline.
func (m PaymentMethod) Deferred() bool {
	return m == PaymentBankTransfer
}

// Event is something that asks a reservation to change state.
type Event string

const (
	EventConfirmPayment Event = "confirm_payment"
	EventExpire         Event = "expire"
	EventCancel         Event = "cancel"
	EventComplete       Event = "complete"
)

var transitions = map[Status]map[Event]Status{
	StatusReserved: {
		EventConfirmPayment: StatusConfirmed,
		EventExpire:         StatusAborted,
		EventCancel:         StatusAborted,
	},
	StatusConfirmed: {
		EventComplete: StatusCompleted,
		EventCancel:   StatusAborted,
	},
}

// Transition returns the state reached from `from` on ev, or
// ErrInvalidTransition when the table has no such edge.  Guards that depend
// on the payment deadline are applied by Reservation.PlanTransition.
func Transition(from Status, ev Event) (Status, error) {
	if to, ok := transitions[from][ev]; ok {
		return to, nil
	}
	return "", fmt.Errorf("%w: cannot %s a %s reservation", ErrInvalidTransition, ev, from)
}

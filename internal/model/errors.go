package model

import "errors"

// Error kinds returned by the booking engine.  Callers wrap them with
// context via fmt.Errorf("...: %w", err) and inspect them with errors.Is.
// Handlers translate each kind into a distinct HTTP response.
var (
	// ErrValidation marks malformed input: a bad interval, a non-positive
	// occupant count or a missing contact field.  Never retried.
	ErrValidation = errors.New("validation error")

	// ErrConflict is returned when the requested dates overlap an active
	// reservation on the same room.  The caller may retry with other dates.
	ErrConflict = errors.New("dates unavailable")

	// ErrBusy is returned when a room lock could not be acquired within the
	// configured wait.  The identical request may be retried after a backoff.
	ErrBusy = errors.New("room busy")

	// ErrInvalidTransition is returned when the state machine rejects a
	// status change, e.g. confirming an aborted booking.  Never retried.
	ErrInvalidTransition = errors.New("booking already finalized")

	// ErrNotFound is returned when a reservation or room id does not
	// resolve.
	ErrNotFound = errors.New("not found")
)

package service

import (
	"context"

	"github.com/iliyamo/homestay-reservation/internal/queue"
)

// Notifier delivers reservation events to the outside world.  Calls happen
// after the owning transaction committed; an error is logged by the caller
// and never undoes the state change.
type Notifier interface {
	Notify(ctx context.Context, ev queue.ReservationEvent) error
}

// NopNotifier drops every event.  It is used when notifications are disabled.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, queue.ReservationEvent) error { return nil }

package service_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/homestay-reservation/internal/model"
	"github.com/iliyamo/homestay-reservation/internal/queue"
	"github.com/iliyamo/homestay-reservation/internal/repository"
	"github.com/iliyamo/homestay-reservation/internal/service"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []queue.ReservationEvent
}

func (n *recordingNotifier) Notify(_ context.Context, ev queue.ReservationEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

// types returns the event types recorded for reservationID, in delivery order.
func (n *recordingNotifier) types(reservationID string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, ev := range n.events {
		if ev.ReservationID == reservationID {
			out = append(out, ev.Type)
		}
	}
	return out
}

type fixture struct {
	svc      *service.BookingService
	store    *repository.MemoryStore
	clock    *fakeClock
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: repository.NewMemoryStore(
			model.Room{ID: "R101", BranchID: "b1", Name: "Garden", Capacity: 2, NightlyRateCents: 10000},
			model.Room{ID: "R102", BranchID: "b1", Name: "Loft", Capacity: 4, NightlyRateCents: 15000},
			model.Room{ID: "R201", BranchID: "b2", Name: "Sea", Capacity: 2, NightlyRateCents: 9000},
		),
		clock:    &fakeClock{now: time.Date(2025, 5, 20, 10, 0, 0, 0, time.UTC)},
		notifier: &recordingNotifier{},
	}
	f.svc = service.NewBookingService(f.store, f.store, service.Options{
		PaymentTimeout: 10 * time.Minute,
		LockWait:       2 * time.Second,
		Clock:          f.clock,
		Notifier:       f.notifier,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	t.Cleanup(f.svc.WaitNotifications)
	return f
}

func stay(t *testing.T, in, out string) model.Interval {
	t.Helper()
	iv, err := model.ParseInterval(in, out)
	require.NoError(t, err)
	return iv
}

func booking(roomID string, s model.Interval, method model.PaymentMethod) service.CreateReservationInput {
	return service.CreateReservationInput{
		BranchID:      "b1",
		Customer:      model.Customer{Name: "Ana Silva", Email: "ana@example.com", Phone: "+351 900 000 000"},
		PaymentMethod: method,
		Lines:         []service.LineInput{{RoomID: roomID, Stay: s, Adults: 1}},
	}
}

func (f *fixture) create(t *testing.T, in service.CreateReservationInput) *model.Reservation {
	t.Helper()
	res, err := f.svc.CreateReservation(context.Background(), in)
	require.NoError(t, err)
	return res
}

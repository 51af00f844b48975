package service_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/homestay-reservation/internal/model"
	"github.com/iliyamo/homestay-reservation/internal/queue"
	"github.com/iliyamo/homestay-reservation/internal/repository"
	"github.com/iliyamo/homestay-reservation/internal/service"
)

func TestCreateReservation_pricesFromCatalog(t *testing.T) {
	f := newFixture(t)
	in := booking("R101", stay(t, "2025-06-01", "2025-06-03"), model.PaymentCard)
	in.Customer.Email = "  Ana@Example.COM "
	in.Lines = append(in.Lines, service.LineInput{
		RoomID: "R102", Stay: stay(t, "2025-06-01", "2025-06-04"), Adults: 2, Children: 2,
	})

	res := f.create(t, in)

	assert.NotEmpty(t, res.ID)
	assert.Equal(t, model.StatusReserved, res.Status)
	assert.Nil(t, res.PaymentTimeoutAt, "card payments have no deadline")
	assert.Equal(t, "ana@example.com", res.Customer.Email)
	require.Len(t, res.Lines, 2)
	assert.Equal(t, 1, res.Lines[0].Position)
	assert.Equal(t, int64(20000), res.Lines[0].PriceCents)
	assert.Equal(t, int64(45000), res.Lines[1].PriceCents)
	assert.Equal(t, int64(65000), res.TotalAmountCents)

	f.svc.WaitNotifications()
	assert.Equal(t, []string{queue.EventReservationCreated}, f.notifier.types(res.ID))
}

func TestCreateReservation_bankTransferGetsDeadline(t *testing.T) {
	f := newFixture(t)
	res := f.create(t, booking("R101", stay(t, "2025-06-01", "2025-06-03"), model.PaymentBankTransfer))

	require.NotNil(t, res.PaymentTimeoutAt)
	assert.Equal(t, f.clock.Now().Add(10*time.Minute), *res.PaymentTimeoutAt)
}

func TestCreateReservation_validation(t *testing.T) {
	june := func(t *testing.T) model.Interval { return stay(t, "2025-06-01", "2025-06-03") }
	tests := []struct {
		name   string
		mutate func(t *testing.T, in *service.CreateReservationInput)
	}{
		{"missing branch", func(_ *testing.T, in *service.CreateReservationInput) { in.BranchID = "" }},
		{"missing name", func(_ *testing.T, in *service.CreateReservationInput) { in.Customer.Name = " " }},
		{"bad email", func(_ *testing.T, in *service.CreateReservationInput) { in.Customer.Email = "not-an-email" }},
		{"bad method", func(_ *testing.T, in *service.CreateReservationInput) { in.PaymentMethod = "CHEQUE" }},
		{"no lines", func(_ *testing.T, in *service.CreateReservationInput) { in.Lines = nil }},
		{"zero interval", func(_ *testing.T, in *service.CreateReservationInput) { in.Lines[0].Stay = model.Interval{} }},
		{"no adults", func(_ *testing.T, in *service.CreateReservationInput) { in.Lines[0].Adults = 0 }},
		{"negative children", func(_ *testing.T, in *service.CreateReservationInput) { in.Lines[0].Children = -1 }},
		{"over capacity", func(_ *testing.T, in *service.CreateReservationInput) { in.Lines[0].Adults = 3 }},
		{"unknown room", func(_ *testing.T, in *service.CreateReservationInput) { in.Lines[0].RoomID = "R999" }},
		{"room of other branch", func(_ *testing.T, in *service.CreateReservationInput) { in.Lines[0].RoomID = "R201" }},
		{"overlapping lines", func(t *testing.T, in *service.CreateReservationInput) {
			in.Lines = append(in.Lines, service.LineInput{RoomID: "R101", Stay: stay(t, "2025-06-02", "2025-06-05"), Adults: 1})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			in := booking("R101", june(t), model.PaymentCard)
			tt.mutate(t, &in)

			_, err := f.svc.CreateReservation(context.Background(), in)
			assert.ErrorIs(t, err, model.ErrValidation)

			list, err := f.svc.ListBranchReservations(context.Background(), "b1", true)
			require.NoError(t, err)
			assert.Empty(t, list, "nothing is written on validation failure")
		})
	}
}

func TestCreateReservation_backToBackAllowed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.create(t, booking("R101", stay(t, "2025-06-01", "2025-06-03"), model.PaymentCard))
	_, err := f.svc.ConfirmPayment(ctx, first.ID, "")
	require.NoError(t, err)

	_, err = f.svc.CreateReservation(ctx, booking("R101", stay(t, "2025-06-02", "2025-06-04"), model.PaymentCard))
	assert.ErrorIs(t, err, model.ErrConflict)

	second, err := f.svc.CreateReservation(ctx, booking("R101", stay(t, "2025-06-03", "2025-06-05"), model.PaymentCard))
	require.NoError(t, err)
	assert.Equal(t, model.StatusReserved, second.Status)
}

func TestCreateReservation_multiRoomIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, booking("R102", stay(t, "2025-06-02", "2025-06-03"), model.PaymentCash))

	in := booking("R101", stay(t, "2025-06-01", "2025-06-03"), model.PaymentCard)
	in.Lines = append(in.Lines, service.LineInput{RoomID: "R102", Stay: stay(t, "2025-06-01", "2025-06-03"), Adults: 2})
	_, err := f.svc.CreateReservation(ctx, in)
	require.ErrorIs(t, err, model.ErrConflict)

	free, err := f.svc.IsAvailable(ctx, "R101", stay(t, "2025-06-01", "2025-06-03"), "")
	require.NoError(t, err)
	assert.True(t, free, "R101 must not be booked when R102 conflicts")
}

func TestCreateReservation_concurrentSameRoom(t *testing.T) {
	f := newFixture(t)
	const workers = 16
	in := booking("R101", stay(t, "2025-07-10", "2025-07-12"), model.PaymentCard)

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CreateReservation(context.Background(), in)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, model.ErrConflict)
	}
	assert.Equal(t, 1, succeeded)
}

func TestCreateReservation_busyWhenRoomLocked(t *testing.T) {
	f := newFixture(t)
	fast := service.NewBookingService(f.store, f.store, service.Options{
		LockWait: 20 * time.Millisecond,
		Clock:    f.clock,
	})
	guard := service.NewRoomGuard(f.store, time.Second)

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- guard.WithRoomLock(context.Background(), "R101", func(repository.ReservationTx) error {
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	in := booking("R101", stay(t, "2025-06-01", "2025-06-03"), model.PaymentCard)
	_, err := fast.CreateReservation(context.Background(), in)
	assert.ErrorIs(t, err, model.ErrBusy)

	close(release)
	require.NoError(t, <-done)

	_, err = fast.CreateReservation(context.Background(), in)
	require.NoError(t, err, "the room is bookable once the lock is released")
}

func TestConfirmPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.create(t, booking("R101", stay(t, "2025-06-01", "2025-06-03"), model.PaymentBankTransfer))

	_, err := f.svc.ConfirmPayment(ctx, res.ID, model.PaymentCard)
	assert.ErrorIs(t, err, model.ErrValidation, "method must match the booking")

	got, err := f.svc.ConfirmPayment(ctx, res.ID, model.PaymentBankTransfer)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, got.Status)
	assert.Nil(t, got.PaymentTimeoutAt, "confirmation clears the deadline")

	again, err := f.svc.ConfirmPayment(ctx, res.ID, "")
	require.NoError(t, err, "confirming twice is a no-op")
	assert.Equal(t, model.StatusConfirmed, again.Status)

	f.svc.WaitNotifications()
	assert.ElementsMatch(t, []string{queue.EventReservationCreated, queue.EventReservationConfirmed}, f.notifier.types(res.ID))

	_, err = f.svc.ConfirmPayment(ctx, "missing", "")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestConfirmPayment_afterDeadlineExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := stay(t, "2025-06-01", "2025-06-03")
	res := f.create(t, booking("R101", s, model.PaymentBankTransfer))

	free, err := f.svc.IsAvailable(ctx, "R101", s, "")
	require.NoError(t, err)
	assert.False(t, free)

	f.clock.Advance(11 * time.Minute)

	_, err = f.svc.ConfirmPayment(ctx, res.ID, "")
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	got, err := f.svc.GetReservation(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAborted, got.Status)
	assert.False(t, got.IsDeleted, "expiry does not soft delete")

	free, err = f.svc.IsAvailable(ctx, "R101", s, "")
	require.NoError(t, err)
	assert.True(t, free)

	f.svc.WaitNotifications()
	assert.ElementsMatch(t, []string{queue.EventReservationCreated, queue.EventReservationAborted}, f.notifier.types(res.ID))
}

func TestOverdueBookingFreesRoomForNewBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := stay(t, "2025-06-01", "2025-06-03")
	stale := f.create(t, booking("R101", s, model.PaymentBankTransfer))

	f.clock.Advance(10 * time.Minute)

	fresh, err := f.svc.CreateReservation(ctx, booking("R101", s, model.PaymentCard))
	require.NoError(t, err)
	assert.NotEqual(t, stale.ID, fresh.ID)

	got, err := f.svc.GetReservation(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAborted, got.Status)
}

// lockTrackingStore flags status writes made while a room lock transaction
// is open.  On MySQL such a write needs a second pooled connection.
type lockTrackingStore struct {
	*repository.MemoryStore
	open          atomic.Int32
	writesInTx    atomic.Int32
	writesOutside atomic.Int32
}

func (s *lockTrackingStore) BeginTx(ctx context.Context) (repository.ReservationTx, error) {
	tx, err := s.MemoryStore.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	s.open.Add(1)
	return &trackedTx{ReservationTx: tx, store: s}, nil
}

func (s *lockTrackingStore) ApplyStatusChange(ctx context.Context, ch model.StatusChange) (bool, error) {
	if s.open.Load() > 0 {
		s.writesInTx.Add(1)
	} else {
		s.writesOutside.Add(1)
	}
	return s.MemoryStore.ApplyStatusChange(ctx, ch)
}

type trackedTx struct {
	repository.ReservationTx
	store *lockTrackingStore
	done  sync.Once
}

func (t *trackedTx) end() { t.done.Do(func() { t.store.open.Add(-1) }) }

func (t *trackedTx) Commit() error {
	defer t.end()
	return t.ReservationTx.Commit()
}

func (t *trackedTx) Rollback() error {
	defer t.end()
	return t.ReservationTx.Rollback()
}

func TestCreateReservation_expiresOverdueAfterReleasingLocks(t *testing.T) {
	for _, tc := range []struct {
		name    string
		blocker model.PaymentMethod
		wantErr error
	}{
		{"insert succeeds", "", nil},
		{"conflict rolls back", model.PaymentCard, model.ErrConflict},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			store := &lockTrackingStore{MemoryStore: f.store}
			svc := service.NewBookingService(store, f.store, service.Options{
				PaymentTimeout: 10 * time.Minute,
				Clock:          f.clock,
				Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
			})
			t.Cleanup(svc.WaitNotifications)

			s := stay(t, "2025-06-01", "2025-06-05")
			stale, err := svc.CreateReservation(ctx, booking("R101", stay(t, "2025-06-01", "2025-06-02"), model.PaymentBankTransfer))
			require.NoError(t, err)
			if tc.blocker != "" {
				_, err = svc.CreateReservation(ctx, booking("R101", stay(t, "2025-06-04", "2025-06-05"), tc.blocker))
				require.NoError(t, err)
			}
			f.clock.Advance(time.Hour)

			_, err = svc.CreateReservation(ctx, booking("R101", s, model.PaymentCard))
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			} else {
				require.NoError(t, err)
			}

			assert.Zero(t, store.writesInTx.Load(), "no status write while room locks are held")
			assert.Equal(t, int32(1), store.writesOutside.Load())
			got, err := f.store.GetByID(ctx, stale.ID)
			require.NoError(t, err)
			assert.Equal(t, model.StatusAborted, got.Status)
		})
	}
}

func TestCancelReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := stay(t, "2025-06-01", "2025-06-03")

	t.Run("reserved is soft deleted and frees the room", func(t *testing.T) {
		res := f.create(t, booking("R101", s, model.PaymentCash))

		got, err := f.svc.CancelReservation(ctx, res.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusAborted, got.Status)
		assert.True(t, got.IsDeleted)
		require.NotNil(t, got.DeletedAt)

		free, err := f.svc.IsAvailable(ctx, "R101", s, "")
		require.NoError(t, err)
		assert.True(t, free)

		read, err := f.svc.GetReservation(ctx, res.ID)
		require.NoError(t, err, "soft deleted bookings stay readable")
		assert.True(t, read.IsDeleted)

		_, err = f.svc.CancelReservation(ctx, res.ID)
		assert.ErrorIs(t, err, model.ErrInvalidTransition, "a cancelled booking is finalised")
		_, err = f.svc.ConfirmPayment(ctx, res.ID, "")
		assert.ErrorIs(t, err, model.ErrInvalidTransition)
		_, err = f.svc.CompleteReservation(ctx, res.ID)
		assert.ErrorIs(t, err, model.ErrInvalidTransition)
	})

	t.Run("confirmed stays visible", func(t *testing.T) {
		res := f.create(t, booking("R102", s, model.PaymentCard))
		_, err := f.svc.ConfirmPayment(ctx, res.ID, "")
		require.NoError(t, err)

		got, err := f.svc.CancelReservation(ctx, res.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusAborted, got.Status)
		assert.False(t, got.IsDeleted)

		_, err = f.svc.CancelReservation(ctx, res.ID)
		assert.ErrorIs(t, err, model.ErrInvalidTransition)
	})

	t.Run("overdue cannot be cancelled", func(t *testing.T) {
		other := stay(t, "2025-09-01", "2025-09-02")
		res := f.create(t, booking("R101", other, model.PaymentBankTransfer))
		f.clock.Advance(time.Hour)

		_, err := f.svc.CancelReservation(ctx, res.ID)
		assert.ErrorIs(t, err, model.ErrInvalidTransition)
	})
}

func TestCompleteReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := stay(t, "2025-06-01", "2025-06-03")
	res := f.create(t, booking("R101", s, model.PaymentCard))

	_, err := f.svc.CompleteReservation(ctx, res.ID)
	assert.ErrorIs(t, err, model.ErrInvalidTransition, "only confirmed stays complete")

	_, err = f.svc.ConfirmPayment(ctx, res.ID, "")
	require.NoError(t, err)
	got, err := f.svc.CompleteReservation(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)

	free, err := f.svc.IsAvailable(ctx, "R101", s, "")
	require.NoError(t, err)
	assert.False(t, free, "completed stays keep their dates")

	_, err = f.svc.CancelReservation(ctx, res.ID)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	f.svc.WaitNotifications()
	assert.ElementsMatch(t, []string{
		queue.EventReservationCreated, queue.EventReservationConfirmed, queue.EventReservationCompleted,
	}, f.notifier.types(res.ID))
}

func TestConcurrentConfirmAndCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.create(t, booking("R101", stay(t, "2025-06-01", "2025-06-03"), model.PaymentCard))

	var wg sync.WaitGroup
	var confirmErr, cancelErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, confirmErr = f.svc.ConfirmPayment(ctx, res.ID, "")
	}()
	go func() {
		defer wg.Done()
		_, cancelErr = f.svc.CancelReservation(ctx, res.ID)
	}()
	wg.Wait()

	got, err := f.svc.GetReservation(ctx, res.ID)
	require.NoError(t, err)
	require.NoError(t, cancelErr, "cancel succeeds from RESERVED and from CONFIRMED")
	assert.Equal(t, model.StatusAborted, got.Status)
	if confirmErr != nil {
		// Cancel won first and soft deleted the booking.
		assert.ErrorIs(t, confirmErr, model.ErrInvalidTransition)
		assert.True(t, got.IsDeleted)
	} else {
		assert.False(t, got.IsDeleted)
	}
}

func TestIsAvailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := stay(t, "2025-06-01", "2025-06-03")
	res := f.create(t, booking("R101", s, model.PaymentCard))

	free, err := f.svc.IsAvailable(ctx, "R101", s, res.ID)
	require.NoError(t, err)
	assert.True(t, free, "a reservation never conflicts with itself")

	_, err = f.svc.IsAvailable(ctx, "R999", s, "")
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = f.svc.IsAvailable(ctx, "R101", model.Interval{}, "")
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestSearchAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := stay(t, "2025-06-01", "2025-06-03")
	f.create(t, booking("R101", s, model.PaymentCard))

	rooms, err := f.svc.SearchAvailability(ctx, "b1", s, 1)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, "R102", rooms[0].ID)

	rooms, err = f.svc.SearchAvailability(ctx, "b1", stay(t, "2025-06-03", "2025-06-04"), 2)
	require.NoError(t, err)
	assert.Len(t, rooms, 2)

	rooms, err = f.svc.SearchAvailability(ctx, "b1", stay(t, "2025-06-03", "2025-06-04"), 3)
	require.NoError(t, err)
	require.Len(t, rooms, 1, "capacity filter")
	assert.Equal(t, "R102", rooms[0].ID)

	_, err = f.svc.SearchAvailability(ctx, "b1", s, -1)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestListBranchReservations_expiresOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.create(t, booking("R101", stay(t, "2025-06-01", "2025-06-03"), model.PaymentBankTransfer))
	f.clock.Advance(time.Hour)

	list, err := f.svc.ListBranchReservations(ctx, "b1", false)
	require.NoError(t, err)
	assert.Empty(t, list, "expired bookings are not active")

	got, err := f.store.GetByID(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAborted, got.Status, "listing expires overdue bookings")

	list, err = f.svc.ListBranchReservations(ctx, "b1", true)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, res.ID, list[0].ID)
	assert.Equal(t, model.StatusAborted, list[0].Status)
}

func TestListBranchReservations_activeView(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := stay(t, "2025-06-01", "2025-06-03")

	reserved := f.create(t, booking("R101", s, model.PaymentCash))
	confirmed := f.create(t, booking("R102", s, model.PaymentCard))
	_, err := f.svc.ConfirmPayment(ctx, confirmed.ID, "")
	require.NoError(t, err)
	completed := f.create(t, booking("R101", stay(t, "2025-07-01", "2025-07-02"), model.PaymentCard))
	_, err = f.svc.ConfirmPayment(ctx, completed.ID, "")
	require.NoError(t, err)
	_, err = f.svc.CompleteReservation(ctx, completed.ID)
	require.NoError(t, err)

	// Cancelling a CONFIRMED booking aborts it without deleting it.
	refunded := f.create(t, booking("R102", stay(t, "2025-08-01", "2025-08-02"), model.PaymentCard))
	_, err = f.svc.ConfirmPayment(ctx, refunded.ID, "")
	require.NoError(t, err)
	_, err = f.svc.CancelReservation(ctx, refunded.ID)
	require.NoError(t, err)

	dropped := f.create(t, booking("R101", stay(t, "2025-08-01", "2025-08-02"), model.PaymentCash))
	_, err = f.svc.CancelReservation(ctx, dropped.ID)
	require.NoError(t, err)

	ids := func(list []model.Reservation) []string {
		out := make([]string, 0, len(list))
		for _, r := range list {
			out = append(out, r.ID)
		}
		return out
	}

	active, err := f.svc.ListBranchReservations(ctx, "b1", false)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{reserved.ID, confirmed.ID, completed.ID}, ids(active))

	history, err := f.svc.ListBranchReservations(ctx, "b1", true)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{reserved.ID, confirmed.ID, completed.ID, refunded.ID, dropped.ID}, ids(history))
}

func TestNewBookingService_panicsWithoutStore(t *testing.T) {
	assert.Panics(t, func() { service.NewBookingService(nil, nil, service.Options{}) })
}

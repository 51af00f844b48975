// Package service holds the reservation engine: availability, the room lock
// guard, the booking orchestrator and the payment deadline sweeper.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/homestay-reservation/internal/model"
	"github.com/iliyamo/homestay-reservation/internal/queue"
	"github.com/iliyamo/homestay-reservation/internal/repository"
)

// Defaults applied by NewBookingService for zero Options fields.
const (
	DefaultPaymentTimeout = 30 * time.Minute
	DefaultLockWait       = 3 * time.Second
	DefaultNotifyTimeout  = 10 * time.Second
)

// maxStatusAttempts bounds the reload-and-retry loop around a lost
// compare-and-swap.  The state graph is at most two edges deep, so a third
// loss can only come from a storage anomaly.
const maxStatusAttempts = 3

// Options configures a BookingService.
type Options struct {
	// PaymentTimeout is the window a BANK_TRANSFER booking has to be paid.
	PaymentTimeout time.Duration
	// LockWait bounds how long CreateReservation waits for each room lock.
	LockWait time.Duration
	// NotifyTimeout bounds a single notification delivery.
	NotifyTimeout time.Duration
	Clock         Clock
	Notifier      Notifier
	Logger        *slog.Logger
}

// BookingService orchestrates reservation creation and every status change.
type BookingService struct {
	store    repository.ReservationStore
	rooms    repository.RoomCatalog
	guard    *RoomGuard
	avail    *AvailabilityChecker
	clock    Clock
	notifier Notifier
	log      *slog.Logger

	paymentTimeout time.Duration
	notifyTimeout  time.Duration
	inflight       sync.WaitGroup
}

// NewBookingService wires a BookingService.  It panics if store or rooms is
// nil.
func NewBookingService(store repository.ReservationStore, rooms repository.RoomCatalog, opts Options) *BookingService {
	if store == nil || rooms == nil {
		panic("service: NewBookingService requires a store and a room catalog")
	}
	if opts.PaymentTimeout <= 0 {
		opts.PaymentTimeout = DefaultPaymentTimeout
	}
	if opts.LockWait <= 0 {
		opts.LockWait = DefaultLockWait
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = DefaultNotifyTimeout
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Notifier == nil {
		opts.Notifier = NopNotifier{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &BookingService{
		store:          store,
		rooms:          rooms,
		guard:          NewRoomGuard(store, opts.LockWait),
		clock:          opts.Clock,
		notifier:       opts.Notifier,
		log:            opts.Logger,
		paymentTimeout: opts.PaymentTimeout,
		notifyTimeout:  opts.NotifyTimeout,
	}
	s.avail = NewAvailabilityChecker(opts.Clock, s.expireByID)
	return s
}

// LineInput is one requested room and stay.
type LineInput struct {
	RoomID   string
	Stay     model.Interval
	Adults   int
	Children int
}

// CreateReservationInput is the request to book one or more rooms.  Prices
// are not part of the input; they come from the room catalog.
type CreateReservationInput struct {
	BranchID      string
	Customer      model.Customer
	PaymentMethod model.PaymentMethod
	Lines         []LineInput
}

// CreateReservation validates and prices the request, then books every
// room in one transaction under the room locks.  The result is RESERVED;
// BANK_TRANSFER bookings carry a payment deadline.
//
// Errors: model.ErrValidation for bad input, model.ErrConflict when any
// room is taken for the requested dates, model.ErrBusy when a room lock
// could not be acquired in time.
func (s *BookingService) CreateReservation(ctx context.Context, in CreateReservationInput) (*model.Reservation, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	res := &model.Reservation{
		ID:            uuid.NewString(),
		BranchID:      in.BranchID,
		Customer:      normaliseCustomer(in.Customer),
		Status:        model.StatusReserved,
		PaymentMethod: in.PaymentMethod,
		CreatedAt:     now,
		UpdatedAt:     now,
		Lines:         make([]model.ReservationLine, 0, len(in.Lines)),
	}
	for i, l := range in.Lines {
		room, err := s.rooms.GetRoom(ctx, l.RoomID)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return nil, fmt.Errorf("%w: line %d: unknown room %s", model.ErrValidation, i+1, l.RoomID)
			}
			return nil, fmt.Errorf("load room %s: %w", l.RoomID, err)
		}
		if room.BranchID != in.BranchID {
			return nil, fmt.Errorf("%w: line %d: room %s does not belong to branch %s", model.ErrValidation, i+1, room.ID, in.BranchID)
		}
		if guests := l.Adults + l.Children; guests > room.Capacity {
			return nil, fmt.Errorf("%w: line %d: %d guests exceed capacity %d of room %s", model.ErrValidation, i+1, guests, room.Capacity, room.ID)
		}
		price := room.NightlyRateCents * int64(l.Stay.Nights())
		res.Lines = append(res.Lines, model.ReservationLine{
			Position:   i + 1,
			RoomID:     room.ID,
			Stay:       l.Stay,
			Adults:     l.Adults,
			Children:   l.Children,
			PriceCents: price,
		})
		res.TotalAmountCents += price
	}
	if in.PaymentMethod.Deferred() {
		deadline := now.Add(s.paymentTimeout)
		res.PaymentTimeoutAt = &deadline
	}

	// Overdue bookings found under the locks are expired once the
	// transaction has released its connection.
	var overdue []string
	err := s.guard.WithRoomLocks(ctx, res.RoomIDs(), func(tx repository.ReservationTx) error {
		for _, l := range res.Lines {
			conflicts, stale, err := s.avail.Check(ctx, tx, l.RoomID, l.Stay, "")
			if err != nil {
				return fmt.Errorf("check availability of room %s: %w", l.RoomID, err)
			}
			overdue = append(overdue, stale...)
			if len(conflicts) > 0 {
				return fmt.Errorf("%w: room %s is booked for %s", model.ErrConflict, l.RoomID, conflicts[0].Stay)
			}
		}
		return tx.Insert(ctx, res)
	})
	s.expireAll(ctx, overdue)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil, fmt.Errorf("%w: %v", model.ErrValidation, err)
		}
		return nil, err
	}

	s.log.Info("reservation created",
		"reservation_id", res.ID, "branch_id", res.BranchID,
		"method", res.PaymentMethod, "rooms", len(res.RoomIDs()), "total_cents", res.TotalAmountCents)
	s.publish(queue.EventReservationCreated, res)
	return res, nil
}

// ConfirmPayment moves a RESERVED booking to CONFIRMED.  Confirming an
// already CONFIRMED booking returns it unchanged.  method, when non-empty,
// must match the method chosen at creation.
//
// Errors: model.ErrNotFound, model.ErrValidation on a method mismatch,
// model.ErrInvalidTransition when the booking is finalised (soft deleted
// included) or its payment window has elapsed.
func (s *BookingService) ConfirmPayment(ctx context.Context, id string, method model.PaymentMethod) (*model.Reservation, error) {
	res, err := s.loadForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if method != "" && method != res.PaymentMethod {
		return nil, fmt.Errorf("%w: reservation %s is paid by %s, not %s", model.ErrValidation, id, res.PaymentMethod, method)
	}
	res, changed, err := s.apply(ctx, res, model.EventConfirmPayment)
	if err != nil {
		return nil, err
	}
	if changed {
		s.log.Info("reservation confirmed", "reservation_id", res.ID)
		s.publish(queue.EventReservationConfirmed, res)
	}
	return res, nil
}

// CancelReservation aborts a booking.  An unpaid RESERVED booking is also
// soft deleted; a CONFIRMED one stays visible for the financial history.
//
// Errors: model.ErrNotFound, model.ErrInvalidTransition when the booking is
// already finalised (soft deleted included).
func (s *BookingService) CancelReservation(ctx context.Context, id string) (*model.Reservation, error) {
	res, err := s.loadForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	res, _, err = s.apply(ctx, res, model.EventCancel)
	if err != nil {
		return nil, err
	}
	s.log.Info("reservation cancelled", "reservation_id", res.ID, "soft_deleted", res.IsDeleted)
	s.publish(queue.EventReservationAborted, res)
	return res, nil
}

// CompleteReservation records that a CONFIRMED stay has concluded.
func (s *BookingService) CompleteReservation(ctx context.Context, id string) (*model.Reservation, error) {
	res, err := s.loadForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	res, _, err = s.apply(ctx, res, model.EventComplete)
	if err != nil {
		return nil, err
	}
	s.log.Info("reservation completed", "reservation_id", res.ID)
	s.publish(queue.EventReservationCompleted, res)
	return res, nil
}

// GetReservation returns a booking by id, soft deleted ones included.  An
// overdue RESERVED booking is expired before it is returned.
func (s *BookingService) GetReservation(ctx context.Context, id string) (*model.Reservation, error) {
	return s.load(ctx, id)
}

// IsAvailable reports whether roomID is free for stay, ignoring the lines
// of excludeID.  The answer is lock free and may be stale by the time the
// caller acts on it.
func (s *BookingService) IsAvailable(ctx context.Context, roomID string, stay model.Interval, excludeID string) (bool, error) {
	if err := stay.Validate(); err != nil {
		return false, err
	}
	if _, err := s.rooms.GetRoom(ctx, roomID); err != nil {
		return false, err
	}
	return s.avail.IsAvailable(ctx, s.store, roomID, stay, excludeID)
}

// SearchAvailability lists the rooms of a branch that can hold guests and
// are free for the whole stay.
func (s *BookingService) SearchAvailability(ctx context.Context, branchID string, stay model.Interval, guests int) ([]model.Room, error) {
	if err := stay.Validate(); err != nil {
		return nil, err
	}
	if guests < 0 {
		return nil, fmt.Errorf("%w: guests must not be negative", model.ErrValidation)
	}
	rooms, err := s.rooms.ListRoomsByBranch(ctx, branchID)
	if err != nil {
		return nil, fmt.Errorf("list rooms of branch %s: %w", branchID, err)
	}
	out := make([]model.Room, 0, len(rooms))
	for _, room := range rooms {
		if room.Capacity < guests {
			continue
		}
		free, err := s.avail.IsAvailable(ctx, s.store, room.ID, stay, "")
		if err != nil {
			return nil, fmt.Errorf("check availability of room %s: %w", room.ID, err)
		}
		if free {
			out = append(out, room)
		}
	}
	return out, nil
}

// ListBranchReservations returns the branch's bookings, newest first.  By
// default only active bookings are listed: ABORTED ones, soft deleted or
// not, are left out.  withHistory lists every booking for audit.
func (s *BookingService) ListBranchReservations(ctx context.Context, branchID string, withHistory bool) ([]model.Reservation, error) {
	list, err := s.store.ListByBranch(ctx, branchID, withHistory)
	if err != nil {
		return nil, fmt.Errorf("list reservations of branch %s: %w", branchID, err)
	}
	now := s.clock.Now()
	out := list[:0]
	for i := range list {
		res := &list[i]
		if !res.IsDeleted && res.PaymentOverdue(now) {
			expired, _, err := s.expire(ctx, res)
			if err != nil {
				s.log.Warn("lazy expiry failed", "reservation_id", res.ID, "error", err)
			} else {
				res = expired
			}
		}
		if !withHistory && res.Status == model.StatusAborted {
			continue
		}
		out = append(out, *res)
	}
	return out, nil
}

// WaitNotifications blocks until every notification started so far has
// been delivered or has timed out.
func (s *BookingService) WaitNotifications() { s.inflight.Wait() }

// load reads a reservation and expires it first if its payment window has
// elapsed.
func (s *BookingService) load(ctx context.Context, id string) (*model.Reservation, error) {
	res, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !res.IsDeleted && res.PaymentOverdue(s.clock.Now()) {
		res, _, err = s.expire(ctx, res)
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

// loadForUpdate is load for the mutating operations.  A soft deleted
// booking stays readable for audit but is finalised: the error matches both
// model.ErrInvalidTransition and model.ErrNotFound.
func (s *BookingService) loadForUpdate(ctx context.Context, id string) (*model.Reservation, error) {
	res, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.IsDeleted {
		return nil, fmt.Errorf("%w: %w: %s was cancelled and deleted", model.ErrInvalidTransition, repository.ErrReservationNotFound, id)
	}
	return res, nil
}

// apply plans ev on res and runs the compare-and-swap.  When another writer
// won the race the reservation is reloaded and the event re-planned against
// its new state.  changed is false when confirming an already CONFIRMED
// booking.
func (s *BookingService) apply(ctx context.Context, res *model.Reservation, ev model.Event) (*model.Reservation, bool, error) {
	for attempt := 1; ; attempt++ {
		if ev == model.EventConfirmPayment && res.Status == model.StatusConfirmed {
			return res, false, nil
		}
		ch, err := res.PlanTransition(ev, s.clock.Now())
		if err != nil {
			return nil, false, fmt.Errorf("reservation %s: %w", res.ID, err)
		}
		won, err := s.store.ApplyStatusChange(ctx, ch)
		if err != nil {
			return nil, false, fmt.Errorf("update reservation %s: %w", res.ID, err)
		}
		if won {
			ch.ApplyTo(res)
			return res, true, nil
		}
		if attempt == maxStatusAttempts {
			return nil, false, fmt.Errorf("%w: reservation %s kept changing under %s", model.ErrBusy, res.ID, ev)
		}
		if res, err = s.loadForUpdate(ctx, res.ID); err != nil {
			return nil, false, err
		}
	}
}

// expire aborts an overdue RESERVED booking.  Losing the race to a
// concurrent confirm, cancel or sweep is not an error: the current state is
// reloaded and returned with won set to false.
func (s *BookingService) expire(ctx context.Context, res *model.Reservation) (*model.Reservation, bool, error) {
	ch, err := res.PlanTransition(model.EventExpire, s.clock.Now())
	if err != nil {
		return res, false, nil
	}
	won, err := s.store.ApplyStatusChange(ctx, ch)
	if err != nil {
		return nil, false, fmt.Errorf("expire reservation %s: %w", res.ID, err)
	}
	if !won {
		cur, err := s.store.GetByID(ctx, res.ID)
		if err != nil {
			return nil, false, err
		}
		return cur, false, nil
	}
	ch.ApplyTo(res)
	s.log.Info("reservation expired", "reservation_id", res.ID)
	s.publish(queue.EventReservationAborted, res)
	return res, true, nil
}

// expireAll runs expireByID once for each distinct id.
func (s *BookingService) expireAll(ctx context.Context, ids []string) {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		s.expireByID(ctx, id)
	}
}

// expireByID is the availability checker's hook.  Failures are only logged:
// the overdue line is already treated as free.
func (s *BookingService) expireByID(ctx context.Context, id string) {
	res, err := s.store.GetByID(ctx, id)
	if err == nil {
		_, _, err = s.expire(ctx, res)
	}
	if err != nil {
		s.log.Warn("lazy expiry failed", "reservation_id", id, "error", err)
	}
}

// publish hands the event to the notifier from a separate goroutine.  The
// payload is built before returning so later changes to res do not leak in.
func (s *BookingService) publish(eventType string, res *model.Reservation) {
	ev := queue.NewReservationEvent(eventType, res, s.clock.Now())
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
		defer cancel()
		if err := s.notifier.Notify(ctx, ev); err != nil {
			s.log.Error("notification failed", "event", ev.Type, "reservation_id", ev.ReservationID, "error", err)
		}
	}()
}

func validateInput(in CreateReservationInput) error {
	if strings.TrimSpace(in.BranchID) == "" {
		return fmt.Errorf("%w: branch_id is required", model.ErrValidation)
	}
	if strings.TrimSpace(in.Customer.Name) == "" {
		return fmt.Errorf("%w: customer name is required", model.ErrValidation)
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(in.Customer.Email)); err != nil {
		return fmt.Errorf("%w: invalid customer email %q", model.ErrValidation, in.Customer.Email)
	}
	if !in.PaymentMethod.Valid() {
		return fmt.Errorf("%w: unsupported payment method %q", model.ErrValidation, in.PaymentMethod)
	}
	if len(in.Lines) == 0 {
		return fmt.Errorf("%w: at least one room is required", model.ErrValidation)
	}
	for i, l := range in.Lines {
		if strings.TrimSpace(l.RoomID) == "" {
			return fmt.Errorf("%w: line %d: room_id is required", model.ErrValidation, i+1)
		}
		if err := l.Stay.Validate(); err != nil {
			return fmt.Errorf("line %d: %w", i+1, err)
		}
		if l.Adults < 1 {
			return fmt.Errorf("%w: line %d: at least one adult is required", model.ErrValidation, i+1)
		}
		if l.Children < 0 {
			return fmt.Errorf("%w: line %d: children must not be negative", model.ErrValidation, i+1)
		}
		for j := 0; j < i; j++ {
			prev := in.Lines[j]
			if prev.RoomID == l.RoomID && prev.Stay.Overlaps(l.Stay) {
				return fmt.Errorf("%w: lines %d and %d book room %s for overlapping dates", model.ErrValidation, j+1, i+1, l.RoomID)
			}
		}
	}
	return nil
}

func normaliseCustomer(c model.Customer) model.Customer {
	return model.Customer{
		Name:  strings.TrimSpace(c.Name),
		Email: strings.ToLower(strings.TrimSpace(c.Email)),
		Phone: strings.TrimSpace(c.Phone),
	}
}

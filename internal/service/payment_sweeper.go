package service

import (
	"context"
	"fmt"
	"time"
)

// PaymentSweeper periodically aborts RESERVED bookings whose payment window
// has elapsed, so rooms are released even if nobody reads them.  It races
// with lazy expiry and confirmations through the same guarded update; a
// lost race is skipped.
type PaymentSweeper struct {
	svc      *BookingService
	interval time.Duration
	batch    int
}

// NewPaymentSweeper returns a sweeper that runs every interval and handles
// at most batch bookings per pass.
func NewPaymentSweeper(svc *BookingService, interval time.Duration, batch int) *PaymentSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if batch <= 0 {
		batch = 100
	}
	return &PaymentSweeper{svc: svc, interval: interval, batch: batch}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (p *PaymentSweeper) Run(ctx context.Context) {
	log := p.svc.log.With("component", "payment_sweeper")
	log.Info("payment sweeper started", "interval", p.interval.String(), "batch", p.batch)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		n, err := p.SweepOnce(ctx)
		if err != nil && ctx.Err() == nil {
			log.Error("sweep failed", "error", err)
		} else if n > 0 {
			log.Info("expired overdue reservations", "count", n)
		}
		select {
		case <-ctx.Done():
			log.Info("payment sweeper stopped")
			return
		case <-ticker.C:
		}
	}
}

// SweepOnce expires one batch of overdue bookings and returns how many this
// call aborted.
func (p *PaymentSweeper) SweepOnce(ctx context.Context) (int, error) {
	overdue, err := p.svc.store.ListOverdue(ctx, p.svc.clock.Now(), p.batch)
	if err != nil {
		return 0, fmt.Errorf("list overdue reservations: %w", err)
	}
	expired := 0
	for i := range overdue {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		_, won, err := p.svc.expire(ctx, &overdue[i])
		if err != nil {
			p.svc.log.Warn("expire failed", "reservation_id", overdue[i].ID, "error", err)
			continue
		}
		if won {
			expired++
		}
	}
	return expired, nil
}

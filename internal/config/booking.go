package config

import "time"

// BookingConfig tunes the reservation engine.
type BookingConfig struct {
	PaymentTimeout time.Duration // window a bank transfer booking has to be paid
	LockWait       time.Duration // bound on waiting for a room lock
	NotifyTimeout  time.Duration // bound on a single notification delivery
	SweepEnabled   bool
	SweepInterval  time.Duration
	SweepBatch     int
}

// LoadBookingConfig reads BOOKING_* and SWEEP_* variables.
func LoadBookingConfig() BookingConfig {
	c := BookingConfig{
		PaymentTimeout: envDur("BOOKING_PAYMENT_TIMEOUT", 30*time.Minute),
		LockWait:       envDur("BOOKING_LOCK_WAIT", 3*time.Second),
		NotifyTimeout:  envDur("BOOKING_NOTIFY_TIMEOUT", 10*time.Second),
		SweepEnabled:   envBool("SWEEP_ENABLED", true),
		SweepInterval:  envDur("SWEEP_INTERVAL", time.Minute),
		SweepBatch:     envInt("SWEEP_BATCH", 100),
	}
	if c.PaymentTimeout <= 0 {
		c.PaymentTimeout = 30 * time.Minute
	}
	if c.LockWait <= 0 {
		c.LockWait = 3 * time.Second
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
	if c.SweepBatch < 1 {
		c.SweepBatch = 100
	}
	return c
}

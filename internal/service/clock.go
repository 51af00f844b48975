package service

import "time"

// Clock supplies the current time.  Payment deadlines and expiry are always
// evaluated against it, never against time.Now directly.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

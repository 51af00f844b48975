package model

import (
	"fmt"
	"time"
)

// DateLayout is the wire and storage format of check-in/check-out dates.
const DateLayout = "2006-01-02"

// Interval is a half-open stay [CheckIn, CheckOut).  Both ends are dates
// normalised to UTC midnight; a guest leaving on day D and another arriving
// on day D do not overlap.
type Interval struct {
	CheckIn  time.Time
	CheckOut time.Time
}

// NewInterval truncates both instants to their UTC calendar date.
func NewInterval(checkIn, checkOut time.Time) Interval {
	return Interval{CheckIn: dateOf(checkIn), CheckOut: dateOf(checkOut)}
}

// ParseInterval parses two YYYY-MM-DD dates and validates the result.
func ParseInterval(checkIn, checkOut string) (Interval, error) {
	in, err := time.Parse(DateLayout, checkIn)
	if err != nil {
		return Interval{}, fmt.Errorf("%w: invalid check_in %q", ErrValidation, checkIn)
	}
	out, err := time.Parse(DateLayout, checkOut)
	if err != nil {
		return Interval{}, fmt.Errorf("%w: invalid check_out %q", ErrValidation, checkOut)
	}
	iv := NewInterval(in, out)
	if err := iv.Validate(); err != nil {
		return Interval{}, err
	}
	return iv, nil
}

// Validate rejects empty and inverted intervals.
func (i Interval) Validate() error {
	if i.CheckIn.IsZero() || i.CheckOut.IsZero() {
		return fmt.Errorf("%w: check_in and check_out are required", ErrValidation)
	}
	if !i.CheckOut.After(i.CheckIn) {
		return fmt.Errorf("%w: check_out must be after check_in", ErrValidation)
	}
	return nil
}

// Overlaps reports whether the two half-open intervals intersect.
func (i Interval) Overlaps(o Interval) bool {
	return i.CheckIn.Before(o.CheckOut) && o.CheckIn.Before(i.CheckOut)
}

// Nights returns the number of nights covered, rounding partial days up.
// The result is never less than one.
func (i Interval) Nights() int {
	d := i.CheckOut.Sub(i.CheckIn)
	n := int(d / (24 * time.Hour))
	if d%(24*time.Hour) != 0 {
		n++
	}
	if n < 1 {
		return 1
	}
	return n
}

func (i Interval) String() string {
	return i.CheckIn.Format(DateLayout) + ".." + i.CheckOut.Format(DateLayout)
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

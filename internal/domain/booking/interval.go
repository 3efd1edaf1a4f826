package booking

import (
	"time"

	"github.com/Kilat-Pet-Delivery/service-parking/internal/pkg/apperror"
)

// MaxIntervalLength caps a single booking at one year.
const MaxIntervalLength = 366 * 24 * time.Hour

// Interval is a half-open time range [Start, End).
type Interval struct {
	start time.Time
	end   time.Time
}

// NewInterval builds an Interval, rejecting start >= end and ranges longer than MaxIntervalLength.
func NewInterval(start, end time.Time) (Interval, error) {
	if start.IsZero() || end.IsZero() {
		return Interval{}, apperror.NewInvalidIntervalError("start and end are required")
	}
	if !start.Before(end) {
		return Interval{}, apperror.NewInvalidIntervalError("start must be before end")
	}
	if end.Sub(start) > MaxIntervalLength {
		return Interval{}, apperror.NewInvalidIntervalError("interval must not exceed 366 days")
	}
	return Interval{start: start.UTC(), end: end.UTC()}, nil
}

// Start returns the inclusive start.
func (i Interval) Start() time.Time { return i.start }

// End returns the exclusive end.
func (i Interval) End() time.Time { return i.end }

// Duration returns End - Start.
func (i Interval) Duration() time.Duration { return i.end.Sub(i.start) }

// Overlaps reports whether two half-open intervals share any instant.
// Touching intervals such as [10:00,11:00) and [11:00,12:00) do not overlap.
func (i Interval) Overlaps(other Interval) bool {
	return i.start.Before(other.end) && i.end.After(other.start)
}

package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	bookingDomain "github.com/Kilat-Pet-Delivery/service-parking/internal/domain/booking"
)

// TriggerResult summarizes one batch run. Err combines every per-booking failure.
type TriggerResult struct {
	Job       string `json:"job"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
	Err       error  `json:"-"`
}

// Errors returns the individual failures for reporting.
func (r TriggerResult) Errors() []string {
	errs := multierr.Errors(r.Err)
	out := make([]string, len(errs))
	for i, err := range errs {
		out[i] = err.Error()
	}
	return out
}

// TimeTrigger advances bookings whose time boundaries have passed. Each batch applies
// the single-booking transition to every element and keeps going past failures.
type TimeTrigger struct {
	bookings  bookingDomain.BookingRepository
	lifecycle *LifecycleService
	logger    *zap.Logger
}

// NewTimeTrigger creates a new TimeTrigger.
func NewTimeTrigger(bookings bookingDomain.BookingRepository, lifecycle *LifecycleService, logger *zap.Logger) *TimeTrigger {
	return &TimeTrigger{
		bookings:  bookings,
		lifecycle: lifecycle,
		logger:    logger,
	}
}

// StartDueBookings moves confirmed bookings whose start is at or before now to in_use.
func (t *TimeTrigger) StartDueBookings(ctx context.Context, now time.Time) TriggerResult {
	due, err := t.bookings.FindDueToStart(ctx, now)
	return t.run(ctx, "start", due, err, func(id uuid.UUID) error {
		_, err := t.lifecycle.startAt(ctx, id, SystemActor, now)
		return err
	})
}

// CompleteDueBookings settles and completes in_use bookings whose end is at or before now.
func (t *TimeTrigger) CompleteDueBookings(ctx context.Context, now time.Time) TriggerResult {
	due, err := t.bookings.FindDueToComplete(ctx, now)
	return t.run(ctx, "complete", due, err, func(id uuid.UUID) error {
		_, err := t.lifecycle.completeAt(ctx, id, SystemActor, now)
		return err
	})
}

// ExpireStaleApprovals expires pending bookings that have waited the full window.
func (t *TimeTrigger) ExpireStaleApprovals(ctx context.Context, now time.Time) TriggerResult {
	cutoff := now.Add(-t.lifecycle.ExpirationWindow())
	stale, err := t.bookings.FindStalePendingApprovals(ctx, cutoff)
	return t.run(ctx, "expire", stale, err, func(id uuid.UUID) error {
		_, err := t.lifecycle.expireAt(ctx, id, SystemActor, now)
		return err
	})
}

func (t *TimeTrigger) run(ctx context.Context, job string, bookings []*bookingDomain.Booking, listErr error, apply func(uuid.UUID) error) TriggerResult {
	result := TriggerResult{Job: job}
	if listErr != nil {
		result.Err = fmt.Errorf("%s: failed to list bookings: %w", job, listErr)
		t.logger.Error("time trigger query failed", zap.String("job", job), zap.Error(listErr))
		return result
	}

	for _, bk := range bookings {
		if ctx.Err() != nil {
			result.Err = multierr.Append(result.Err, ctx.Err())
			break
		}
		if err := apply(bk.ID()); err != nil {
			result.Failed++
			result.Err = multierr.Append(result.Err, fmt.Errorf("booking %s: %w", bk.ID(), err))
			continue
		}
		result.Processed++
	}

	if result.Processed > 0 || result.Failed > 0 {
		t.logger.Info("time trigger finished",
			zap.String("job", job),
			zap.Int("processed", result.Processed),
			zap.Int("failed", result.Failed),
			zap.Error(result.Err),
		)
	}
	return result
}

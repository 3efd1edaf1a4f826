package booking

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/Kilat-Pet-Delivery/service-parking/internal/domain/resource"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/pkg/apperror"
)

const bookingNumberChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

var pricing PricingStrategy = NewHourlyPricingStrategy()

// Booking is the aggregate root for a parking reservation.
type Booking struct {
	id            uuid.UUID
	bookingNumber string
	resourceID    uuid.UUID
	driverID      uuid.UUID
	interval      Interval
	status        BookingStatus

	pendingApprovalSince *time.Time
	orderRef             string

	hourlyRateCents int64
	totalPriceCents int64
	currency        string

	confirmedAt  *time.Time
	startedAt    *time.Time
	completedAt  *time.Time
	cancelledAt  *time.Time
	expiredAt    *time.Time
	cancelReason string

	version   int64
	createdAt time.Time
	updatedAt time.Time
}

// generateBookingNumber creates a booking number in the format "PK-XXXXXX".
func generateBookingNumber() (string, error) {
	result := make([]byte, 6)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(bookingNumberChars))))
		if err != nil {
			return "", fmt.Errorf("failed to generate booking number: %w", err)
		}
		result[i] = bookingNumberChars[n.Int64()]
	}
	return "PK-" + string(result), nil
}

// NewBooking creates a draft booking priced against res. Drafts never block,
// so no availability check runs here.
func NewBooking(res *resource.Resource, driverID uuid.UUID, interval Interval, now time.Time) (*Booking, error) {
	if res == nil || res.ID() == uuid.Nil {
		return nil, apperror.NewValidationError("resource is required")
	}
	if driverID == uuid.Nil {
		return nil, apperror.NewValidationError("driver ID is required")
	}
	if interval.start.IsZero() || !interval.start.Before(interval.end) {
		return nil, apperror.NewInvalidIntervalError("start must be before end")
	}
	if !res.Active() {
		return nil, apperror.NewValidationError("resource is not accepting bookings")
	}

	bookingNumber, err := generateBookingNumber()
	if err != nil {
		return nil, err
	}

	now = now.UTC()
	b := &Booking{
		id:            uuid.New(),
		bookingNumber: bookingNumber,
		resourceID:    res.ID(),
		driverID:      driverID,
		interval:      interval,
		status:        StatusDraft,
		currency:      res.Currency(),
		version:       1,
		createdAt:     now,
		updatedAt:     now,
	}
	if err := b.price(res); err != nil {
		return nil, err
	}
	return b, nil
}

// ReconstructBooking rebuilds a Booking from persistence data (no validation).
func ReconstructBooking(
	id uuid.UUID,
	bookingNumber string,
	resourceID uuid.UUID,
	driverID uuid.UUID,
	start, end time.Time,
	status BookingStatus,
	pendingApprovalSince *time.Time,
	orderRef string,
	hourlyRateCents int64,
	totalPriceCents int64,
	currency string,
	confirmedAt *time.Time,
	startedAt *time.Time,
	completedAt *time.Time,
	cancelledAt *time.Time,
	expiredAt *time.Time,
	cancelReason string,
	version int64,
	createdAt time.Time,
	updatedAt time.Time,
) *Booking {
	return &Booking{
		id:                   id,
		bookingNumber:        bookingNumber,
		resourceID:           resourceID,
		driverID:             driverID,
		interval:             Interval{start: start.UTC(), end: end.UTC()},
		status:               status,
		pendingApprovalSince: pendingApprovalSince,
		orderRef:             orderRef,
		hourlyRateCents:      hourlyRateCents,
		totalPriceCents:      totalPriceCents,
		currency:             currency,
		confirmedAt:          confirmedAt,
		startedAt:            startedAt,
		completedAt:          completedAt,
		cancelledAt:          cancelledAt,
		expiredAt:            expiredAt,
		cancelReason:         cancelReason,
		version:              version,
		createdAt:            createdAt,
		updatedAt:            updatedAt,
	}
}

// --- Getters ---

// ID returns the booking's unique identifier.
func (b *Booking) ID() uuid.UUID { return b.id }

// BookingNumber returns the human-readable booking number.
func (b *Booking) BookingNumber() string { return b.bookingNumber }

// ResourceID returns the booked parking space.
func (b *Booking) ResourceID() uuid.UUID { return b.resourceID }

// DriverID returns the driver who made the booking.
func (b *Booking) DriverID() uuid.UUID { return b.driverID }

// Interval returns the booked time range.
func (b *Booking) Interval() Interval { return b.interval }

// Status returns the current booking status.
func (b *Booking) Status() BookingStatus { return b.status }

// PendingApprovalSince returns when the booking entered pending_approval.
func (b *Booking) PendingApprovalSince() *time.Time { return b.pendingApprovalSince }

// OrderRef returns the external order reference, empty until confirmed.
func (b *Booking) OrderRef() string { return b.orderRef }

// HourlyRateCents returns the rate the current price was computed with.
func (b *Booking) HourlyRateCents() int64 { return b.hourlyRateCents }

// Duration returns the booked duration.
func (b *Booking) Duration() time.Duration { return b.interval.Duration() }

// TotalPriceCents returns the total price in cents.
func (b *Booking) TotalPriceCents() int64 { return b.totalPriceCents }

// Currency returns the currency code.
func (b *Booking) Currency() string { return b.currency }

func (b *Booking) ConfirmedAt() *time.Time { return b.confirmedAt }
func (b *Booking) StartedAt() *time.Time   { return b.startedAt }
func (b *Booking) CompletedAt() *time.Time { return b.completedAt }
func (b *Booking) CancelledAt() *time.Time { return b.cancelledAt }
func (b *Booking) ExpiredAt() *time.Time   { return b.expiredAt }

// CancelReason returns the cancellation reason.
func (b *Booking) CancelReason() string { return b.cancelReason }

// Version returns the entity version for optimistic locking.
func (b *Booking) Version() int64 { return b.version }

// CreatedAt returns the creation timestamp.
func (b *Booking) CreatedAt() time.Time { return b.createdAt }

// UpdatedAt returns the last-updated timestamp.
func (b *Booking) UpdatedAt() time.Time { return b.updatedAt }

// --- Behavior ---

func (b *Booking) transition(target BookingStatus) error {
	if !b.status.CanTransitionTo(target) {
		return apperror.NewInvalidTransitionError(string(b.status), string(target))
	}
	return nil
}

// IsConfirmed reports whether confirm already ran; a repeated confirm is then a no-op.
func (b *Booking) IsConfirmed() bool {
	return b.status == StatusConfirmed && b.orderRef != ""
}

// Confirm moves a draft or approved pending booking to confirmed and records its order.
// The order reference is written once and never replaced.
func (b *Booking) Confirm(orderRef string, now time.Time) error {
	if err := b.transition(StatusConfirmed); err != nil {
		return err
	}
	if orderRef == "" {
		return apperror.NewValidationError("order reference is required")
	}
	if b.orderRef != "" && b.orderRef != orderRef {
		return apperror.NewConflictError("booking already linked to a different order")
	}
	now = now.UTC()
	b.orderRef = orderRef
	b.status = StatusConfirmed
	b.confirmedAt = &now
	b.updatedAt = now
	return nil
}

// RequestApproval moves a draft booking into pending_approval and starts the expiry window.
func (b *Booking) RequestApproval(now time.Time) error {
	if err := b.transition(StatusPendingApproval); err != nil {
		return err
	}
	now = now.UTC()
	b.status = StatusPendingApproval
	b.pendingApprovalSince = &now
	b.updatedAt = now
	return nil
}

// Start moves a confirmed booking to in_use. The caller decides whether the start time has passed.
func (b *Booking) Start(now time.Time) error {
	if err := b.transition(StatusInUse); err != nil {
		return err
	}
	now = now.UTC()
	b.status = StatusInUse
	b.startedAt = &now
	b.updatedAt = now
	return nil
}

// Complete moves an in_use booking to completed. Callers settle first.
func (b *Booking) Complete(now time.Time) error {
	if err := b.transition(StatusCompleted); err != nil {
		return err
	}
	now = now.UTC()
	b.status = StatusCompleted
	b.completedAt = &now
	b.updatedAt = now
	return nil
}

// Cancel moves any non-terminal booking to cancelled.
func (b *Booking) Cancel(reason string, now time.Time) error {
	if err := b.transition(StatusCancelled); err != nil {
		return err
	}
	now = now.UTC()
	b.status = StatusCancelled
	b.cancelReason = reason
	b.cancelledAt = &now
	b.updatedAt = now
	return nil
}

// IsApprovalStale reports whether a pending booking has waited at least window.
func (b *Booking) IsApprovalStale(now time.Time, window time.Duration) bool {
	if b.status != StatusPendingApproval || b.pendingApprovalSince == nil {
		return false
	}
	return now.Sub(*b.pendingApprovalSince) >= window
}

// Expire moves a pending booking to expired once its approval window has elapsed.
func (b *Booking) Expire(now time.Time, window time.Duration) error {
	if err := b.transition(StatusExpired); err != nil {
		return err
	}
	if !b.IsApprovalStale(now, window) {
		return apperror.NewValidationError("approval window has not elapsed")
	}
	now = now.UTC()
	b.status = StatusExpired
	b.expiredAt = &now
	b.updatedAt = now
	return nil
}

// Reschedule replaces the interval of a draft or pending booking and reprices it.
// Pending bookings block their slot, so callers must re-check availability.
func (b *Booking) Reschedule(interval Interval, res *resource.Resource, now time.Time) error {
	if b.status != StatusDraft && b.status != StatusPendingApproval {
		return apperror.NewInvalidTransitionError(string(b.status), "rescheduled")
	}
	if interval.start.IsZero() || !interval.start.Before(interval.end) {
		return apperror.NewInvalidIntervalError("start must be before end")
	}
	previous := b.interval
	b.interval = interval
	if err := b.RecomputePrice(res); err != nil {
		b.interval = previous
		return err
	}
	b.updatedAt = now.UTC()
	return nil
}

// RecomputePrice refreshes rate and total from res. Terminal bookings keep the price
// they ended with.
func (b *Booking) RecomputePrice(res *resource.Resource) error {
	if b.status.IsTerminal() {
		return nil
	}
	return b.price(res)
}

func (b *Booking) price(res *resource.Resource) error {
	if res == nil || res.ID() != b.resourceID {
		return apperror.NewValidationError("resource does not match booking")
	}
	total, err := pricing.Calculate(PricingParams{
		HourlyRateCents: res.HourlyRateCents(),
		Duration:        b.interval.Duration(),
	})
	if err != nil {
		return apperror.NewValidationError(err.Error())
	}
	b.hourlyRateCents = res.HourlyRateCents()
	b.totalPriceCents = total
	if b.currency == "" {
		b.currency = res.Currency()
	}
	return nil
}

// IncrementVersion bumps the version for optimistic locking.
func (b *Booking) IncrementVersion() {
	b.version++
}

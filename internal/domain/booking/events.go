package booking

import (
	"time"

	"github.com/google/uuid"
)

// Lifecycle event types published on the booking topic.
const (
	EventCreated           = "parking.booking.created"
	EventConfirmed         = "parking.booking.confirmed"
	EventApprovalRequested = "parking.booking.approval_requested"
	EventRescheduled       = "parking.booking.rescheduled"
	EventStarted           = "parking.booking.started"
	EventCompleted         = "parking.booking.completed"
	EventSettled           = "parking.booking.settled"
	EventCancelled         = "parking.booking.cancelled"
	EventExpired           = "parking.booking.expired"
)

// Approval workflow event types consumed from the approval topic.
const (
	ApprovalRequested = "parking.approval.requested"
	ApprovalGranted   = "parking.approval.granted"
	ApprovalRejected  = "parking.approval.rejected"
)

// LifecycleEvent is the payload of every booking lifecycle event.
type LifecycleEvent struct {
	BookingID       uuid.UUID `json:"booking_id"`
	BookingNumber   string    `json:"booking_number"`
	ResourceID      uuid.UUID `json:"resource_id"`
	DriverID        uuid.UUID `json:"driver_id"`
	Status          string    `json:"status"`
	StartAt         time.Time `json:"start_at"`
	EndAt           time.Time `json:"end_at"`
	TotalPriceCents int64     `json:"total_price_cents"`
	Currency        string    `json:"currency"`
	OrderRef        string    `json:"order_ref,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// NewLifecycleEvent snapshots b for publishing.
func NewLifecycleEvent(b *Booking, occurredAt time.Time) LifecycleEvent {
	return LifecycleEvent{
		BookingID:       b.id,
		BookingNumber:   b.bookingNumber,
		ResourceID:      b.resourceID,
		DriverID:        b.driverID,
		Status:          string(b.status),
		StartAt:         b.interval.start,
		EndAt:           b.interval.end,
		TotalPriceCents: b.totalPriceCents,
		Currency:        b.currency,
		OrderRef:        b.orderRef,
		Reason:          b.cancelReason,
		OccurredAt:      occurredAt.UTC(),
	}
}

// ApprovalEvent is the payload of approval workflow events.
type ApprovalEvent struct {
	BookingID  uuid.UUID `json:"booking_id"`
	ReviewerID uuid.UUID `json:"reviewer_id,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

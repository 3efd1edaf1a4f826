package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Run marks a booking as settled and stores the references the ledger returned.
// Its existence is the exactly-once guarantee for settlement.
type Run struct {
	BookingID  uuid.UUID `json:"booking_id"`
	OwnerID    uuid.UUID `json:"owner_id"`
	Split      Split     `json:"split"`
	Currency   string    `json:"currency"`
	Captured   bool      `json:"captured"`
	PayableRef string    `json:"payable_ref"`
	JournalRef string    `json:"journal_ref"`
	SettledAt  time.Time `json:"settled_at"`
}

// RunRepository persists settlement runs.
type RunRepository interface {
	// FindByBookingID returns the run for a booking, or a not found error.
	FindByBookingID(ctx context.Context, bookingID uuid.UUID) (*Run, error)

	// Save records a new run. Saving a second run for the same booking fails.
	Save(ctx context.Context, run *Run) error
}

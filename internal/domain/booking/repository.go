package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// BookingRepository defines the persistence contract for booking aggregates.
type BookingRepository interface {
	// FindByID retrieves a booking by its unique identifier.
	FindByID(ctx context.Context, id uuid.UUID) (*Booking, error)

	// FindByNumber retrieves a booking by its human-readable booking number.
	FindByNumber(ctx context.Context, number string) (*Booking, error)

	// FindByDriverID retrieves bookings made by a driver with pagination.
	FindByDriverID(ctx context.Context, driverID uuid.UUID, page, limit int) ([]*Booking, int64, error)

	// FindBlockingByResource returns blocking bookings on a resource that overlap
	// [from, to), ordered by start.
	FindBlockingByResource(ctx context.Context, resourceID uuid.UUID, from, to time.Time) ([]*Booking, error)

	// FindDueToStart returns confirmed bookings whose start is at or before now.
	FindDueToStart(ctx context.Context, now time.Time) ([]*Booking, error)

	// FindDueToComplete returns in_use bookings whose end is at or before now.
	FindDueToComplete(ctx context.Context, now time.Time) ([]*Booking, error)

	// FindStalePendingApprovals returns pending bookings waiting since before cutoff (inclusive).
	FindStalePendingApprovals(ctx context.Context, cutoff time.Time) ([]*Booking, error)

	// ListAll retrieves all bookings with pagination (admin).
	ListAll(ctx context.Context, page, limit int) ([]*Booking, int64, error)

	// CountByStatus returns booking counts grouped by status (admin).
	CountByStatus(ctx context.Context) (map[string]int64, error)

	// Save persists a new booking.
	Save(ctx context.Context, booking *Booking) error

	// Update persists changes to an existing booking with optimistic locking.
	Update(ctx context.Context, booking *Booking) error
}

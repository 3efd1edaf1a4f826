package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	bookingDomain "github.com/Kilat-Pet-Delivery/service-parking/internal/domain/booking"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/pkg/apperror"
)

// exclusionViolation is raised by the no-overlap constraint on blocking bookings.
const exclusionViolation = "23P01"

// BookingModel is the GORM model for the parking_bookings table.
type BookingModel struct {
	ID                   uuid.UUID  `gorm:"type:uuid;primaryKey"`
	BookingNumber        string     `gorm:"uniqueIndex;not null;size:20"`
	ResourceID           uuid.UUID  `gorm:"type:uuid;index:idx_parking_bookings_resource_start;not null"`
	DriverID             uuid.UUID  `gorm:"type:uuid;index;not null"`
	StartAt              time.Time  `gorm:"index:idx_parking_bookings_resource_start;not null"`
	EndAt                time.Time  `gorm:"not null"`
	Status               string     `gorm:"not null;size:30;index"`
	PendingApprovalSince *time.Time `gorm:""`
	OrderRef             *string    `gorm:"size:100"`
	HourlyRateCents      int64      `gorm:"not null"`
	DurationSeconds      int64      `gorm:"not null"`
	TotalPriceCents      int64      `gorm:"not null"`
	Currency             string     `gorm:"not null;size:3;default:'MYR'"`
	ConfirmedAt          *time.Time `gorm:""`
	StartedAt            *time.Time `gorm:""`
	CompletedAt          *time.Time `gorm:""`
	CancelledAt          *time.Time `gorm:""`
	ExpiredAt            *time.Time `gorm:""`
	CancelReason         string     `gorm:"size:500"`
	Version              int64      `gorm:"not null;default:1"`
	CreatedAt            time.Time  `gorm:"not null"`
	UpdatedAt            time.Time  `gorm:"not null"`
}

// TableName returns the table name for the GORM model.
func (BookingModel) TableName() string {
	return "parking_bookings"
}

// GormBookingRepository is the GORM-based implementation of BookingRepository.
type GormBookingRepository struct {
	db *gorm.DB
}

// NewGormBookingRepository creates a new GormBookingRepository.
func NewGormBookingRepository(db *gorm.DB) *GormBookingRepository {
	return &GormBookingRepository{db: db}
}

// FindByID retrieves a booking by its unique identifier.
func (r *GormBookingRepository) FindByID(ctx context.Context, id uuid.UUID) (*bookingDomain.Booking, error) {
	var model BookingModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NewNotFoundError("Booking", id.String())
		}
		return nil, fmt.Errorf("failed to find booking by ID: %w", err)
	}
	return toDomainBooking(&model)
}

// FindByNumber retrieves a booking by its booking number.
func (r *GormBookingRepository) FindByNumber(ctx context.Context, number string) (*bookingDomain.Booking, error) {
	var model BookingModel
	if err := r.db.WithContext(ctx).Where("booking_number = ?", number).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NewNotFoundError("Booking", number)
		}
		return nil, fmt.Errorf("failed to find booking by number: %w", err)
	}
	return toDomainBooking(&model)
}

// FindByDriverID retrieves bookings made by a driver with pagination.
func (r *GormBookingRepository) FindByDriverID(ctx context.Context, driverID uuid.UUID, page, limit int) ([]*bookingDomain.Booking, int64, error) {
	return r.paginate(ctx, r.db.WithContext(ctx).Where("driver_id = ?", driverID), page, limit)
}

// FindBlockingByResource returns blocking bookings on a resource that overlap [from, to), ordered by start.
func (r *GormBookingRepository) FindBlockingByResource(ctx context.Context, resourceID uuid.UUID, from, to time.Time) ([]*bookingDomain.Booking, error) {
	var models []BookingModel
	if err := r.db.WithContext(ctx).
		Where("resource_id = ?", resourceID).
		Where("status IN ?", blockingStatusStrings()).
		Where("start_at < ? AND end_at > ?", to, from).
		Order("start_at ASC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to find blocking bookings: %w", err)
	}
	return toDomainBookings(models)
}

// FindDueToStart returns confirmed bookings whose start is at or before now.
func (r *GormBookingRepository) FindDueToStart(ctx context.Context, now time.Time) ([]*bookingDomain.Booking, error) {
	return r.findWhere(ctx, "status = ? AND start_at <= ?", bookingDomain.StatusConfirmed.String(), now)
}

// FindDueToComplete returns in_use bookings whose end is at or before now.
func (r *GormBookingRepository) FindDueToComplete(ctx context.Context, now time.Time) ([]*bookingDomain.Booking, error) {
	return r.findWhere(ctx, "status = ? AND end_at <= ?", bookingDomain.StatusInUse.String(), now)
}

// FindStalePendingApprovals returns pending bookings waiting since cutoff or earlier.
func (r *GormBookingRepository) FindStalePendingApprovals(ctx context.Context, cutoff time.Time) ([]*bookingDomain.Booking, error) {
	return r.findWhere(ctx, "status = ? AND pending_approval_since <= ?", bookingDomain.StatusPendingApproval.String(), cutoff)
}

func (r *GormBookingRepository) findWhere(ctx context.Context, query string, args ...interface{}) ([]*bookingDomain.Booking, error) {
	var models []BookingModel
	if err := r.db.WithContext(ctx).
		Where(query, args...).
		Order("start_at ASC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to find due bookings: %w", err)
	}
	return toDomainBookings(models)
}

// Save persists a new booking.
func (r *GormBookingRepository) Save(ctx context.Context, bk *bookingDomain.Booking) error {
	model := toBookingModel(bk)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isExclusionViolation(err) {
			return apperror.NewSlotConflictError(nil)
		}
		return fmt.Errorf("failed to save booking: %w", err)
	}
	return nil
}

// Update persists changes to an existing booking with optimistic locking.
func (r *GormBookingRepository) Update(ctx context.Context, bk *bookingDomain.Booking) error {
	model := toBookingModel(bk)

	// Optimistic locking: only update if the version matches (current version - 1 since IncrementVersion was called)
	expectedVersion := bk.Version() - 1
	result := r.db.WithContext(ctx).
		Model(&BookingModel{}).
		Where("id = ? AND version = ?", model.ID, expectedVersion).
		Updates(map[string]interface{}{
			"start_at":               model.StartAt,
			"end_at":                 model.EndAt,
			"status":                 model.Status,
			"pending_approval_since": model.PendingApprovalSince,
			"order_ref":              model.OrderRef,
			"hourly_rate_cents":      model.HourlyRateCents,
			"duration_seconds":       model.DurationSeconds,
			"total_price_cents":      model.TotalPriceCents,
			"currency":               model.Currency,
			"confirmed_at":           model.ConfirmedAt,
			"started_at":             model.StartedAt,
			"completed_at":           model.CompletedAt,
			"cancelled_at":           model.CancelledAt,
			"expired_at":             model.ExpiredAt,
			"cancel_reason":          model.CancelReason,
			"version":                model.Version,
			"updated_at":             model.UpdatedAt,
		})

	if result.Error != nil {
		if isExclusionViolation(result.Error) {
			return apperror.NewSlotConflictError(nil)
		}
		return fmt.Errorf("failed to update booking: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return apperror.NewConflictError("booking was modified by another transaction")
	}

	return nil
}

// ListAll retrieves all bookings with pagination (admin).
func (r *GormBookingRepository) ListAll(ctx context.Context, page, limit int) ([]*bookingDomain.Booking, int64, error) {
	return r.paginate(ctx, r.db.WithContext(ctx), page, limit)
}

// CountByStatus returns booking counts grouped by status (admin).
func (r *GormBookingRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	type statusCount struct {
		Status string
		Count  int64
	}
	var results []statusCount
	if err := r.db.WithContext(ctx).Model(&BookingModel{}).
		Select("status, count(*) as count").
		Group("status").
		Find(&results).Error; err != nil {
		return nil, fmt.Errorf("failed to count by status: %w", err)
	}

	counts := make(map[string]int64)
	for _, sc := range results {
		counts[sc.Status] = sc.Count
	}
	return counts, nil
}

func (r *GormBookingRepository) paginate(ctx context.Context, scope *gorm.DB, page, limit int) ([]*bookingDomain.Booking, int64, error) {
	var total int64
	if err := scope.Session(&gorm.Session{}).Model(&BookingModel{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	var models []BookingModel
	offset := (page - 1) * limit
	if err := scope.Session(&gorm.Session{}).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list bookings: %w", err)
	}

	bookings, err := toDomainBookings(models)
	if err != nil {
		return nil, 0, err
	}
	return bookings, total, nil
}

// --- Conversion Helpers ---

func blockingStatusStrings() []string {
	statuses := bookingDomain.BlockingStatuses()
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = s.String()
	}
	return out
}

func isExclusionViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == exclusionViolation
}

func toBookingModel(bk *bookingDomain.Booking) *BookingModel {
	var orderRef *string
	if ref := bk.OrderRef(); ref != "" {
		orderRef = &ref
	}
	return &BookingModel{
		ID:                   bk.ID(),
		BookingNumber:        bk.BookingNumber(),
		ResourceID:           bk.ResourceID(),
		DriverID:             bk.DriverID(),
		StartAt:              bk.Interval().Start(),
		EndAt:                bk.Interval().End(),
		Status:               bk.Status().String(),
		PendingApprovalSince: bk.PendingApprovalSince(),
		OrderRef:             orderRef,
		HourlyRateCents:      bk.HourlyRateCents(),
		DurationSeconds:      int64(bk.Duration() / time.Second),
		TotalPriceCents:      bk.TotalPriceCents(),
		Currency:             bk.Currency(),
		ConfirmedAt:          bk.ConfirmedAt(),
		StartedAt:            bk.StartedAt(),
		CompletedAt:          bk.CompletedAt(),
		CancelledAt:          bk.CancelledAt(),
		ExpiredAt:            bk.ExpiredAt(),
		CancelReason:         bk.CancelReason(),
		Version:              bk.Version(),
		CreatedAt:            bk.CreatedAt(),
		UpdatedAt:            bk.UpdatedAt(),
	}
}

func toDomainBooking(m *BookingModel) (*bookingDomain.Booking, error) {
	status, err := bookingDomain.ParseBookingStatus(m.Status)
	if err != nil {
		return nil, err
	}

	var orderRef string
	if m.OrderRef != nil {
		orderRef = *m.OrderRef
	}

	return bookingDomain.ReconstructBooking(
		m.ID,
		m.BookingNumber,
		m.ResourceID,
		m.DriverID,
		m.StartAt,
		m.EndAt,
		status,
		m.PendingApprovalSince,
		orderRef,
		m.HourlyRateCents,
		m.TotalPriceCents,
		m.Currency,
		m.ConfirmedAt,
		m.StartedAt,
		m.CompletedAt,
		m.CancelledAt,
		m.ExpiredAt,
		m.CancelReason,
		m.Version,
		m.CreatedAt,
		m.UpdatedAt,
	), nil
}

func toDomainBookings(models []BookingModel) ([]*bookingDomain.Booking, error) {
	bookings := make([]*bookingDomain.Booking, len(models))
	for i := range models {
		bk, err := toDomainBooking(&models[i])
		if err != nil {
			return nil, err
		}
		bookings[i] = bk
	}
	return bookings, nil
}

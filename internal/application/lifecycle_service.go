package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	bookingDomain "github.com/Kilat-Pet-Delivery/service-parking/internal/domain/booking"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/domain/resource"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/domain/settlement"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/pkg/apperror"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/pkg/auth"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/pkg/clock"
)

// CreateBookingRequest holds the data needed to create a draft booking.
type CreateBookingRequest struct {
	ResourceID uuid.UUID `json:"resource_id" binding:"required"`
	StartAt    time.Time `json:"start_at" binding:"required"`
	EndAt      time.Time `json:"end_at" binding:"required"`
}

// RescheduleRequest holds a replacement interval.
type RescheduleRequest struct {
	StartAt time.Time `json:"start_at" binding:"required"`
	EndAt   time.Time `json:"end_at" binding:"required"`
}

// BookingDTO is the response representation of a booking.
type BookingDTO struct {
	ID                   uuid.UUID  `json:"id"`
	BookingNumber        string     `json:"booking_number"`
	ResourceID           uuid.UUID  `json:"resource_id"`
	DriverID             uuid.UUID  `json:"driver_id"`
	Status               string     `json:"status"`
	StartAt              time.Time  `json:"start_at"`
	EndAt                time.Time  `json:"end_at"`
	DurationMinutes      int64      `json:"duration_minutes"`
	HourlyRateCents      int64      `json:"hourly_rate_cents"`
	TotalPriceCents      int64      `json:"total_price_cents"`
	Currency             string     `json:"currency"`
	OrderRef             string     `json:"order_ref,omitempty"`
	PendingApprovalSince *time.Time `json:"pending_approval_since,omitempty"`
	ConfirmedAt          *time.Time `json:"confirmed_at,omitempty"`
	StartedAt            *time.Time `json:"started_at,omitempty"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
	CancelledAt          *time.Time `json:"cancelled_at,omitempty"`
	ExpiredAt            *time.Time `json:"expired_at,omitempty"`
	CancelReason         string     `json:"cancel_reason,omitempty"`
	Version              int64      `json:"version"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// AvailabilityDTO answers whether an interval is free on a resource.
type AvailabilityDTO struct {
	ResourceID  uuid.UUID   `json:"resource_id"`
	StartAt     time.Time   `json:"start_at"`
	EndAt       time.Time   `json:"end_at"`
	Available   bool        `json:"available"`
	ConflictIDs []uuid.UUID `json:"conflicting_booking_ids"`
}

// BookingStatsDTO holds booking statistics for the admin dashboard.
type BookingStatsDTO struct {
	TotalBookings int64            `json:"total_bookings"`
	ByStatus      map[string]int64 `json:"by_status"`
}

// Actor is the caller of a lifecycle operation.
type Actor struct {
	UserID uuid.UUID
	Role   auth.Role
}

// SystemActor is used by the time trigger and event consumers.
var SystemActor = Actor{Role: auth.RoleAdmin}

// LifecycleService is the application service that owns every booking state change.
type LifecycleService struct {
	bookings   bookingDomain.BookingRepository
	resources  resource.ResourceRepository
	orders     OrderAdapter
	settlement *SettlementEngine
	locker     ResourceLocker
	publisher  EventPublisher
	clock      clock.Clock
	expiration time.Duration
	logger     *zap.Logger
}

// NewLifecycleService creates a new LifecycleService.
func NewLifecycleService(
	bookings bookingDomain.BookingRepository,
	resources resource.ResourceRepository,
	orders OrderAdapter,
	settlementEngine *SettlementEngine,
	locker ResourceLocker,
	publisher EventPublisher,
	clk clock.Clock,
	expiration time.Duration,
	logger *zap.Logger,
) (*LifecycleService, error) {
	if expiration <= 0 {
		return nil, apperror.NewConfigError("pending approval expiration must be positive")
	}
	return &LifecycleService{
		bookings:   bookings,
		resources:  resources,
		orders:     orders,
		settlement: settlementEngine,
		locker:     locker,
		publisher:  publisher,
		clock:      clk,
		expiration: expiration,
		logger:     logger,
	}, nil
}

// ExpirationWindow returns how long a booking may wait for approval.
func (s *LifecycleService) ExpirationWindow() time.Duration { return s.expiration }

// CreateBooking creates a draft booking for the driver. Drafts do not block the slot.
func (s *LifecycleService) CreateBooking(ctx context.Context, driverID uuid.UUID, req CreateBookingRequest) (*BookingDTO, error) {
	interval, err := bookingDomain.NewInterval(req.StartAt, req.EndAt)
	if err != nil {
		return nil, err
	}

	res, err := s.resources.FindByID(ctx, req.ResourceID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	bk, err := bookingDomain.NewBooking(res, driverID, interval, now)
	if err != nil {
		return nil, err
	}

	if err := s.bookings.Save(ctx, bk); err != nil {
		return nil, fmt.Errorf("failed to save booking: %w", err)
	}

	s.logger.Info("booking created",
		zap.String("booking_id", bk.ID().String()),
		zap.String("booking_number", bk.BookingNumber()),
		zap.String("resource_id", res.ID().String()),
	)
	s.publishEvent(ctx, bookingDomain.EventCreated, bk, now)

	result := toBookingDTO(bk)
	return &result, nil
}

// GetBooking retrieves a single booking with its price refreshed from the resource rate.
func (s *LifecycleService) GetBooking(ctx context.Context, bookingID uuid.UUID, actor Actor) (*BookingDTO, error) {
	bk, res, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := authorize(bk, res, actor); err != nil {
		return nil, err
	}
	result := toBookingDTO(bk)
	return &result, nil
}

// GetDriverBookings retrieves paginated bookings for a driver.
func (s *LifecycleService) GetDriverBookings(ctx context.Context, driverID uuid.UUID, page, limit int) ([]BookingDTO, int64, error) {
	bookings, total, err := s.bookings.FindByDriverID(ctx, driverID, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list driver bookings: %w", err)
	}
	return s.toDTOs(ctx, bookings), total, nil
}

// Confirm checks availability, creates the external order and confirms the booking.
// A booking that is already confirmed is returned unchanged without calling the order service.
func (s *LifecycleService) Confirm(ctx context.Context, bookingID uuid.UUID, actor Actor) (*BookingDTO, error) {
	return s.transition(ctx, bookingID, actor, func(bk *bookingDomain.Booking, res *resource.Resource, now time.Time) (string, error) {
		if bk.IsConfirmed() {
			return "", nil
		}
		if !bk.Status().CanTransitionTo(bookingDomain.StatusConfirmed) {
			return "", apperror.NewInvalidTransitionError(bk.Status().String(), bookingDomain.StatusConfirmed.String())
		}
		if err := s.checkAvailability(ctx, bk); err != nil {
			return "", err
		}

		req, err := s.orderRequest(bk)
		if err != nil {
			return "", err
		}
		orderRef, err := s.orders.CreateOrder(ctx, req)
		if err != nil {
			return "", fmt.Errorf("create order: %w", err)
		}

		if err := bk.Confirm(orderRef, now); err != nil {
			return "", err
		}
		return bookingDomain.EventConfirmed, nil
	})
}

// RequestApproval moves a draft booking into pending_approval on behalf of the approval workflow.
func (s *LifecycleService) RequestApproval(ctx context.Context, bookingID uuid.UUID, actor Actor) (*BookingDTO, error) {
	return s.transition(ctx, bookingID, actor, func(bk *bookingDomain.Booking, res *resource.Resource, now time.Time) (string, error) {
		if bk.Status() == bookingDomain.StatusPendingApproval {
			return "", nil
		}
		if !bk.Status().CanTransitionTo(bookingDomain.StatusPendingApproval) {
			return "", apperror.NewInvalidTransitionError(bk.Status().String(), bookingDomain.StatusPendingApproval.String())
		}
		if err := s.checkAvailability(ctx, bk); err != nil {
			return "", err
		}
		if err := bk.RequestApproval(now); err != nil {
			return "", err
		}
		return bookingDomain.EventApprovalRequested, nil
	})
}

// Start marks a confirmed booking as in use.
func (s *LifecycleService) Start(ctx context.Context, bookingID uuid.UUID, actor Actor) (*BookingDTO, error) {
	return s.startAt(ctx, bookingID, actor, s.clock.Now())
}

func (s *LifecycleService) startAt(ctx context.Context, bookingID uuid.UUID, actor Actor, at time.Time) (*BookingDTO, error) {
	return s.transitionAt(ctx, bookingID, actor, at, func(bk *bookingDomain.Booking, res *resource.Resource, now time.Time) (string, error) {
		if err := bk.Start(now); err != nil {
			return "", err
		}
		return bookingDomain.EventStarted, nil
	})
}

// Complete settles an in-use booking and marks it completed. The state is committed only
// after settlement succeeds; a completed booking is returned unchanged.
func (s *LifecycleService) Complete(ctx context.Context, bookingID uuid.UUID, actor Actor) (*BookingDTO, error) {
	return s.completeAt(ctx, bookingID, actor, s.clock.Now())
}

func (s *LifecycleService) completeAt(ctx context.Context, bookingID uuid.UUID, actor Actor, at time.Time) (*BookingDTO, error) {
	var run *settlement.Run
	dto, err := s.transitionAt(ctx, bookingID, actor, at, func(bk *bookingDomain.Booking, res *resource.Resource, now time.Time) (string, error) {
		if bk.Status() == bookingDomain.StatusCompleted {
			return "", nil
		}
		if !bk.Status().CanTransitionTo(bookingDomain.StatusCompleted) {
			return "", apperror.NewInvalidTransitionError(bk.Status().String(), bookingDomain.StatusCompleted.String())
		}

		settled, err := s.settlement.Settle(ctx, bk, res)
		if err != nil {
			return "", err
		}
		run = settled

		if err := bk.Complete(now); err != nil {
			return "", err
		}
		return bookingDomain.EventCompleted, nil
	})
	if err != nil {
		return nil, err
	}

	if run != nil {
		s.publish(ctx, bookingDomain.EventSettled, bookingID.String(), run)
	}
	return dto, nil
}

// Cancel cancels a booking that is not yet in a terminal state.
func (s *LifecycleService) Cancel(ctx context.Context, bookingID uuid.UUID, actor Actor, reason string) (*BookingDTO, error) {
	return s.transition(ctx, bookingID, actor, func(bk *bookingDomain.Booking, res *resource.Resource, now time.Time) (string, error) {
		if err := bk.Cancel(reason, now); err != nil {
			return "", err
		}
		return bookingDomain.EventCancelled, nil
	})
}

// Expire moves a pending booking whose approval window elapsed to expired.
func (s *LifecycleService) Expire(ctx context.Context, bookingID uuid.UUID, actor Actor) (*BookingDTO, error) {
	return s.expireAt(ctx, bookingID, actor, s.clock.Now())
}

func (s *LifecycleService) expireAt(ctx context.Context, bookingID uuid.UUID, actor Actor, at time.Time) (*BookingDTO, error) {
	return s.transitionAt(ctx, bookingID, actor, at, func(bk *bookingDomain.Booking, res *resource.Resource, now time.Time) (string, error) {
		if err := bk.Expire(now, s.expiration); err != nil {
			return "", err
		}
		return bookingDomain.EventExpired, nil
	})
}

// Reschedule moves a draft or pending booking to a new interval and reprices it.
// Pending bookings already block their slot, so the new interval is checked first.
func (s *LifecycleService) Reschedule(ctx context.Context, bookingID uuid.UUID, actor Actor, req RescheduleRequest) (*BookingDTO, error) {
	interval, err := bookingDomain.NewInterval(req.StartAt, req.EndAt)
	if err != nil {
		return nil, err
	}

	return s.transition(ctx, bookingID, actor, func(bk *bookingDomain.Booking, res *resource.Resource, now time.Time) (string, error) {
		if err := bk.Reschedule(interval, res, now); err != nil {
			return "", err
		}
		if bk.Status().IsBlocking() {
			if err := s.checkAvailability(ctx, bk); err != nil {
				return "", err
			}
		}
		return bookingDomain.EventRescheduled, nil
	})
}

// Availability reports which blocking bookings overlap [start, end) on a resource.
func (s *LifecycleService) Availability(ctx context.Context, resourceID uuid.UUID, start, end time.Time) (*AvailabilityDTO, error) {
	interval, err := bookingDomain.NewInterval(start, end)
	if err != nil {
		return nil, err
	}
	if _, err := s.resources.FindByID(ctx, resourceID); err != nil {
		return nil, err
	}

	existing, err := s.bookings.FindBlockingByResource(ctx, resourceID, interval.Start(), interval.End())
	if err != nil {
		return nil, fmt.Errorf("failed to load blocking bookings: %w", err)
	}

	index := bookingDomain.NewSlotIndex(resourceID, existing)
	conflicts := index.Overlapping(interval, uuid.Nil)
	ids := make([]uuid.UUID, len(conflicts))
	for i, b := range conflicts {
		ids[i] = b.ID()
	}

	return &AvailabilityDTO{
		ResourceID:  resourceID,
		StartAt:     interval.Start(),
		EndAt:       interval.End(),
		Available:   len(ids) == 0,
		ConflictIDs: ids,
	}, nil
}

// --- Admin methods ---

// ListAllBookings returns a paginated list of all bookings (admin).
func (s *LifecycleService) ListAllBookings(ctx context.Context, page, limit int) ([]BookingDTO, int64, error) {
	bookings, total, err := s.bookings.ListAll(ctx, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list bookings: %w", err)
	}
	return s.toDTOs(ctx, bookings), total, nil
}

// GetBookingStats returns aggregate booking statistics (admin).
func (s *LifecycleService) GetBookingStats(ctx context.Context) (*BookingStatsDTO, error) {
	counts, err := s.bookings.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get booking stats: %w", err)
	}

	var total int64
	for _, c := range counts {
		total += c
	}

	return &BookingStatsDTO{
		TotalBookings: total,
		ByStatus:      counts,
	}, nil
}

// --- Helpers ---

type transitionFunc func(bk *bookingDomain.Booking, res *resource.Resource, now time.Time) (eventType string, err error)

func (s *LifecycleService) transition(ctx context.Context, bookingID uuid.UUID, actor Actor, fn transitionFunc) (*BookingDTO, error) {
	return s.transitionAt(ctx, bookingID, actor, s.clock.Now(), fn)
}

// transitionAt runs fn under the booking's resource lock against a freshly loaded
// booking and commits it when fn reports an event. An empty event type means fn
// found nothing to do and the booking is returned as loaded.
func (s *LifecycleService) transitionAt(ctx context.Context, bookingID uuid.UUID, actor Actor, now time.Time, fn transitionFunc) (*BookingDTO, error) {
	peek, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, peek.ResourceID())
	if err != nil {
		return nil, fmt.Errorf("failed to lock resource: %w", err)
	}
	bk, eventType, err := s.commit(ctx, bookingID, actor, now, fn)
	unlock()
	if err != nil {
		s.logger.Warn("booking transition failed",
			zap.String("booking_id", bookingID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	if eventType != "" {
		s.logger.Info("booking transitioned",
			zap.String("booking_id", bk.ID().String()),
			zap.String("status", bk.Status().String()),
		)
		s.publishEvent(ctx, eventType, bk, now)
	}

	result := toBookingDTO(bk)
	return &result, nil
}

func (s *LifecycleService) commit(ctx context.Context, bookingID uuid.UUID, actor Actor, now time.Time, fn transitionFunc) (*bookingDomain.Booking, string, error) {
	bk, res, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, "", err
	}
	if err := authorize(bk, res, actor); err != nil {
		return nil, "", err
	}

	eventType, err := fn(bk, res, now)
	if err != nil || eventType == "" {
		return bk, "", err
	}

	bk.IncrementVersion()
	if err := s.bookings.Update(ctx, bk); err != nil {
		return nil, "", err
	}
	return bk, eventType, nil
}

// load returns the booking and its resource with the price refreshed from the current rate.
func (s *LifecycleService) load(ctx context.Context, bookingID uuid.UUID) (*bookingDomain.Booking, *resource.Resource, error) {
	bk, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, nil, err
	}
	res, err := s.resources.FindByID(ctx, bk.ResourceID())
	if err != nil {
		return nil, nil, err
	}
	if err := bk.RecomputePrice(res); err != nil {
		return nil, nil, err
	}
	return bk, res, nil
}

func (s *LifecycleService) checkAvailability(ctx context.Context, bk *bookingDomain.Booking) error {
	existing, err := s.bookings.FindBlockingByResource(ctx, bk.ResourceID(), bk.Interval().Start(), bk.Interval().End())
	if err != nil {
		return fmt.Errorf("failed to load blocking bookings: %w", err)
	}
	return bookingDomain.NewSlotIndex(bk.ResourceID(), existing).Check(bk)
}

// orderRequest prices the order as the owner's share plus the platform fee.
func (s *LifecycleService) orderRequest(bk *bookingDomain.Booking) (OrderRequest, error) {
	split, err := s.settlement.Split(bk.TotalPriceCents())
	if err != nil {
		return OrderRequest{}, err
	}
	return OrderRequest{
		Reference: bk.ID().String(),
		DriverID:  bk.DriverID(),
		Currency:  bk.Currency(),
		LineItems: []OrderLineItem{
			{
				ProductKind: ProductService,
				Description: fmt.Sprintf("Parking %s (%s - %s)", bk.BookingNumber(),
					bk.Interval().Start().Format(time.RFC3339), bk.Interval().End().Format(time.RFC3339)),
				UnitPrice: split.OwnerShare,
				Quantity:  1,
			},
			{
				ProductKind: ProductPlatformFee,
				Description: "Platform fee",
				UnitPrice:   split.PlatformFee,
				Quantity:    1,
			},
		},
	}, nil
}

func authorize(bk *bookingDomain.Booking, res *resource.Resource, actor Actor) error {
	switch actor.Role {
	case auth.RoleAdmin:
		return nil
	case auth.RoleDriver:
		if bk.DriverID() == actor.UserID {
			return nil
		}
	case auth.RoleOwner:
		if res.OwnerID() == actor.UserID {
			return nil
		}
	}
	return apperror.NewForbiddenError("booking does not belong to this user")
}

func (s *LifecycleService) toDTOs(ctx context.Context, bookings []*bookingDomain.Booking) []BookingDTO {
	rates := map[uuid.UUID]*resource.Resource{}
	dtos := make([]BookingDTO, len(bookings))
	for i, bk := range bookings {
		if !bk.Status().IsTerminal() {
			res, ok := rates[bk.ResourceID()]
			if !ok {
				found, err := s.resources.FindByID(ctx, bk.ResourceID())
				if err != nil && !errors.Is(err, apperror.ErrNotFound) {
					s.logger.Warn("failed to load resource for pricing",
						zap.String("resource_id", bk.ResourceID().String()),
						zap.Error(err),
					)
				}
				res = found
				rates[bk.ResourceID()] = found
			}
			if res != nil {
				if err := bk.RecomputePrice(res); err != nil {
					s.logger.Warn("failed to reprice booking",
						zap.String("booking_id", bk.ID().String()),
						zap.String("resource_id", bk.ResourceID().String()),
						zap.Error(err),
					)
				}
			}
		}
		dtos[i] = toBookingDTO(bk)
	}
	return dtos
}

func toBookingDTO(bk *bookingDomain.Booking) BookingDTO {
	return BookingDTO{
		ID:                   bk.ID(),
		BookingNumber:        bk.BookingNumber(),
		ResourceID:           bk.ResourceID(),
		DriverID:             bk.DriverID(),
		Status:               bk.Status().String(),
		StartAt:              bk.Interval().Start(),
		EndAt:                bk.Interval().End(),
		DurationMinutes:      int64(bk.Duration() / time.Minute),
		HourlyRateCents:      bk.HourlyRateCents(),
		TotalPriceCents:      bk.TotalPriceCents(),
		Currency:             bk.Currency(),
		OrderRef:             bk.OrderRef(),
		PendingApprovalSince: bk.PendingApprovalSince(),
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

func (s *LifecycleService) publishEvent(ctx context.Context, eventType string, bk *bookingDomain.Booking, now time.Time) {
	s.publish(ctx, eventType, bk.ID().String(), bookingDomain.NewLifecycleEvent(bk, now))
}

func (s *LifecycleService) publish(ctx context.Context, eventType, subject string, data interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, eventType, subject, data); err != nil {
		s.logger.Error("failed to publish event",
			zap.String("event_type", eventType),
			zap.String("subject", subject),
			zap.Error(err),
		)
	}
}

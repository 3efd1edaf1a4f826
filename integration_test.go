//go:build integration

package main_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Kilat-Pet-Delivery/service-parking/internal/application"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/domain/booking"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/domain/settlement"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/lock"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/pkg/apperror"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/pkg/auth"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/repository"
)

// TestParkingIntegration runs every scenario against one set of containers.
func TestParkingIntegration(t *testing.T) {
	infra := setupContainers(t)
	defer infra.Cleanup()

	base := time.Now().UTC().Truncate(time.Hour).Add(24 * time.Hour)

	t.Run("exclusion constraint rejects overlapping blocking bookings", func(t *testing.T) {
		stack := setupParkingStack(t, infra, base)
		defer stack.Cleanup()
		ctx := context.Background()
		res := seedResource(t, stack.Resources, uuid.New(), 1000)
		slot := base.Add(100 * 24 * time.Hour)

		first := confirmedBooking(t, res.ID(), slot, slot.Add(2*time.Hour), stack)
		require.NoError(t, stack.Bookings.Save(ctx, first))

		second := confirmedBooking(t, res.ID(), slot.Add(time.Hour), slot.Add(3*time.Hour), stack)
		err := stack.Bookings.Save(ctx, second)
		assert.True(t, errors.Is(err, apperror.ErrSlotConflict))

		touching := confirmedBooking(t, res.ID(), slot.Add(2*time.Hour), slot.Add(4*time.Hour), stack)
		assert.NoError(t, stack.Bookings.Save(ctx, touching))
	})

	t.Run("resource lock outlives its ttl while held", func(t *testing.T) {
		locker := lock.NewRedisLocker(infra.Redis, 300*time.Millisecond, zap.NewNop())
		resourceID := uuid.New()

		unlock, err := locker.Lock(context.Background(), resourceID)
		require.NoError(t, err)
		time.Sleep(time.Second)

		waitCtx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		_, err = locker.Lock(waitCtx, resourceID)
		cancel()
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		unlock()
		unlock()

		acquireCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		unlockSecond, err := locker.Lock(acquireCtx, resourceID)
		require.NoError(t, err)
		unlockSecond()
	})

	t.Run("lifecycle settles exactly once", func(t *testing.T) {
		stack := setupParkingStack(t, infra, base.Add(-2*time.Hour))
		defer stack.Cleanup()
		ctx := context.Background()
		ownerID := uuid.New()
		driverID := uuid.New()
		res := seedResource(t, stack.Resources, ownerID, 1000)
		driver := application.Actor{UserID: driverID, Role: auth.RoleDriver}

		start := base.Add(10 * 24 * time.Hour)
		end := start.Add(2 * time.Hour)
		created, err := stack.Lifecycle.CreateBooking(ctx, driverID, application.CreateBookingRequest{
			ResourceID: res.ID(), StartAt: start, EndAt: end,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2000), created.TotalPriceCents)

		confirmed, err := stack.Lifecycle.Confirm(ctx, created.ID, driver)
		require.NoError(t, err)
		require.NotEmpty(t, confirmed.OrderRef)

		again, err := stack.Lifecycle.Confirm(ctx, created.ID, driver)
		require.NoError(t, err)
		assert.Equal(t, confirmed.OrderRef, again.OrderRef)

		started := stack.Triggers.StartDueBookings(ctx, start)
		require.NoError(t, started.Err)
		assert.Equal(t, 1, started.Processed)

		completed := stack.Triggers.CompleteDueBookings(ctx, end)
		require.NoError(t, completed.Err)
		assert.Equal(t, 1, completed.Processed)

		rerun := stack.Triggers.CompleteDueBookings(ctx, end.Add(time.Minute))
		assert.Equal(t, 0, rerun.Processed)
		_, err = stack.Lifecycle.Complete(ctx, created.ID, application.SystemActor)
		require.NoError(t, err)

		model := waitForBookingStatus(t, infra.DB, created.ID, "completed", 5*time.Second)
		assert.NotNil(t, model.CompletedAt)
		assert.True(t, stack.Orders.Captured(confirmed.OrderRef))

		var payables int64
		require.NoError(t, infra.DB.Table("ledger_payables").
			Where("reference = ?", settlement.Reference(created.ID)).Count(&payables).Error)
		assert.Equal(t, int64(1), payables)

		var runs []repository.SettlementRunModel
		require.NoError(t, infra.DB.Where("booking_id = ?", created.ID).Find(&runs).Error)
		require.Len(t, runs, 1)
		assert.Equal(t, int64(300), runs[0].PlatformFeeCents)
		assert.Equal(t, int64(1700), runs[0].OwnerShareCents)

		escrow, err := stack.Ledger.AccountBalance(ctx, settlement.AccountEscrow)
		require.NoError(t, err)
		clearing, err := stack.Ledger.AccountBalance(ctx, settlement.AccountClearing)
		require.NoError(t, err)
		revenue, err := stack.Ledger.AccountBalance(ctx, settlement.AccountRevenue)
		require.NoError(t, err)
		assert.Zero(t, escrow+clearing+revenue)

		ce := consumeOneEvent(t, infra.KafkaBrokers, bookingTopic, booking.EventSettled, created.ID.String(), 15*time.Second)
		var run settlement.Run
		require.NoError(t, ce.ParseData(&run))
		assert.Equal(t, int64(2000), run.Split.Total)
	})

	t.Run("approval events drive pending approval", func(t *testing.T) {
		stack := setupParkingStack(t, infra, base)
		defer stack.Cleanup()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		driverID := uuid.New()
		res := seedResource(t, stack.Resources, uuid.New(), 800)

		go func() { _ = stack.Consumer.Start(ctx) }()
		time.Sleep(3 * time.Second)

		start := base.Add(20 * 24 * time.Hour)
		created, err := stack.Lifecycle.CreateBooking(ctx, driverID, application.CreateBookingRequest{
			ResourceID: res.ID(), StartAt: start, EndAt: start.Add(time.Hour),
		})
		require.NoError(t, err)

		publishTestEvent(t, infra.KafkaBrokers, approvalTopic, "service-approvals", booking.ApprovalRequested,
			booking.ApprovalEvent{BookingID: created.ID, OccurredAt: time.Now().UTC()})
		pending := waitForBookingStatus(t, infra.DB, created.ID, "pending_approval", 15*time.Second)
		assert.NotNil(t, pending.PendingApprovalSince)

		publishTestEvent(t, infra.KafkaBrokers, approvalTopic, "service-approvals", booking.ApprovalGranted,
			booking.ApprovalEvent{BookingID: created.ID, ReviewerID: uuid.New(), OccurredAt: time.Now().UTC()})
		confirmed := waitForBookingStatus(t, infra.DB, created.ID, "confirmed", 15*time.Second)
		assert.NotNil(t, confirmed.OrderRef)
	})

	t.Run("stale approvals expire after the window", func(t *testing.T) {
		stack := setupParkingStack(t, infra, base)
		defer stack.Cleanup()
		ctx := context.Background()
		res := seedResource(t, stack.Resources, uuid.New(), 1000)

		start := base.Add(30 * 24 * time.Hour)
		created, err := stack.Lifecycle.CreateBooking(ctx, uuid.New(), application.CreateBookingRequest{
			ResourceID: res.ID(), StartAt: start, EndAt: start.Add(time.Hour),
		})
		require.NoError(t, err)
		_, err = stack.Lifecycle.RequestApproval(ctx, created.ID, application.SystemActor)
		require.NoError(t, err)

		early := stack.Triggers.ExpireStaleApprovals(ctx, base.Add(59*time.Minute))
		assert.Equal(t, 0, early.Processed)

		late := stack.Triggers.ExpireStaleApprovals(ctx, base.Add(61*time.Minute))
		require.NoError(t, late.Err)
		assert.Equal(t, 1, late.Processed)
		waitForBookingStatus(t, infra.DB, created.ID, "expired", 5*time.Second)
	})
}

// confirmedBooking builds a confirmed booking directly in the domain, bypassing the service lock.
func confirmedBooking(t *testing.T, resourceID uuid.UUID, start, end time.Time, stack *parkingStack) *booking.Booking {
	t.Helper()
	res, err := stack.Resources.FindByID(context.Background(), resourceID)
	require.NoError(t, err)
	interval, err := booking.NewInterval(start, end)
	require.NoError(t, err)
	bk, err := booking.NewBooking(res, uuid.New(), interval, stack.Clock.Now())
	require.NoError(t, err)
	require.NoError(t, bk.Confirm("pi_direct_"+bk.ID().String()[:8], stack.Clock.Now()))
	return bk
}

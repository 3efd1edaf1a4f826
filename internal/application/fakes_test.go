package application

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	bookingDomain "github.com/Kilat-Pet-Delivery/service-parking/internal/domain/booking"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/domain/resource"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/domain/settlement"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/lock"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/pkg/apperror"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/pkg/auth"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/pkg/clock"
)

var base = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

// --- in-memory repositories ---

func cloneBooking(b *bookingDomain.Booking) *bookingDomain.Booking {
	return bookingDomain.ReconstructBooking(
		b.ID(), b.BookingNumber(), b.ResourceID(), b.DriverID(),
		b.Interval().Start(), b.Interval().End(), b.Status(),
		b.PendingApprovalSince(), b.OrderRef(), b.HourlyRateCents(), b.TotalPriceCents(), b.Currency(),
		b.ConfirmedAt(), b.StartedAt(), b.CompletedAt(), b.CancelledAt(), b.ExpiredAt(), b.CancelReason(),
		b.Version(), b.CreatedAt(), b.UpdatedAt(),
	)
}

type memBookingRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*bookingDomain.Booking
}

func newMemBookingRepo() *memBookingRepo {
	return &memBookingRepo{rows: map[uuid.UUID]*bookingDomain.Booking{}}
}

func (r *memBookingRepo) get(id uuid.UUID) *bookingDomain.Booking {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneBooking(r.rows[id])
}

func (r *memBookingRepo) FindByID(_ context.Context, id uuid.UUID) (*bookingDomain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.rows[id]
	if !ok {
		return nil, apperror.NewNotFoundError("Booking", id.String())
	}
	return cloneBooking(b), nil
}

func (r *memBookingRepo) FindByNumber(_ context.Context, number string) (*bookingDomain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.rows {
		if b.BookingNumber() == number {
			return cloneBooking(b), nil
		}
	}
	return nil, apperror.NewNotFoundError("Booking", number)
}

func (r *memBookingRepo) filter(keep func(*bookingDomain.Booking) bool) []*bookingDomain.Booking {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*bookingDomain.Booking
	for _, b := range r.rows {
		if keep(b) {
			out = append(out, cloneBooking(b))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Interval().Start().Before(out[j].Interval().Start())
	})
	return out
}

func (r *memBookingRepo) FindByDriverID(_ context.Context, driverID uuid.UUID, page, limit int) ([]*bookingDomain.Booking, int64, error) {
	out := r.filter(func(b *bookingDomain.Booking) bool { return b.DriverID() == driverID })
	return out, int64(len(out)), nil
}

func (r *memBookingRepo) FindBlockingByResource(_ context.Context, resourceID uuid.UUID, from, to time.Time) ([]*bookingDomain.Booking, error) {
	return r.filter(func(b *bookingDomain.Booking) bool {
		return b.ResourceID() == resourceID && b.Status().IsBlocking() &&
			b.Interval().Start().Before(to) && b.Interval().End().After(from)
	}), nil
}

func (r *memBookingRepo) FindDueToStart(_ context.Context, now time.Time) ([]*bookingDomain.Booking, error) {
	return r.filter(func(b *bookingDomain.Booking) bool {
		return b.Status() == bookingDomain.StatusConfirmed && !b.Interval().Start().After(now)
	}), nil
}

func (r *memBookingRepo) FindDueToComplete(_ context.Context, now time.Time) ([]*bookingDomain.Booking, error) {
	return r.filter(func(b *bookingDomain.Booking) bool {
		return b.Status() == bookingDomain.StatusInUse && !b.Interval().End().After(now)
	}), nil
}

func (r *memBookingRepo) FindStalePendingApprovals(_ context.Context, cutoff time.Time) ([]*bookingDomain.Booking, error) {
	return r.filter(func(b *bookingDomain.Booking) bool {
		return b.Status() == bookingDomain.StatusPendingApproval &&
			b.PendingApprovalSince() != nil && !b.PendingApprovalSince().After(cutoff)
	}), nil
}

func (r *memBookingRepo) ListAll(_ context.Context, page, limit int) ([]*bookingDomain.Booking, int64, error) {
	out := r.filter(func(*bookingDomain.Booking) bool { return true })
	return out, int64(len(out)), nil
}

func (r *memBookingRepo) CountByStatus(_ context.Context) (map[string]int64, error) {
	counts := map[string]int64{}
	for _, b := range r.filter(func(*bookingDomain.Booking) bool { return true }) {
		counts[b.Status().String()]++
	}
	return counts, nil
}

func (r *memBookingRepo) Save(_ context.Context, b *bookingDomain.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[b.ID()] = cloneBooking(b)
	return nil
}

func (r *memBookingRepo) Update(_ context.Context, b *bookingDomain.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.rows[b.ID()]
	if !ok {
		return apperror.NewNotFoundError("Booking", b.ID().String())
	}
	if stored.Version() != b.Version()-1 {
		return apperror.NewConflictError("booking was modified concurrently")
	}
	r.rows[b.ID()] = cloneBooking(b)
	return nil
}

type memResourceRepo struct {
	rows map[uuid.UUID]*resource.Resource
}

func (r *memResourceRepo) FindByID(_ context.Context, id uuid.UUID) (*resource.Resource, error) {
	res, ok := r.rows[id]
	if !ok {
		return nil, apperror.NewNotFoundError("Resource", id.String())
	}
	return res, nil
}

type memRunRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*settlement.Run
}

func (r *memRunRepo) FindByBookingID(_ context.Context, bookingID uuid.UUID) (*settlement.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.rows[bookingID]
	if !ok {
		return nil, apperror.NewNotFoundError("SettlementRun", bookingID.String())
	}
	return run, nil
}

func (r *memRunRepo) Save(_ context.Context, run *settlement.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[run.BookingID]; ok {
		return apperror.NewConflictError("settlement run already exists")
	}
	r.rows[run.BookingID] = run
	return nil
}

func (r *memRunRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

// --- mocks ---

type mockOrders struct{ mock.Mock }

func (m *mockOrders) CreateOrder(ctx context.Context, req OrderRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockOrders) CaptureAuthorization(ctx context.Context, orderRef, reference string) (bool, error) {
	args := m.Called(ctx, orderRef, reference)
	return args.Bool(0), args.Error(1)
}

type mockLedger struct{ mock.Mock }

func (m *mockLedger) PostPayable(ctx context.Context, payable settlement.Payable) (string, error) {
	args := m.Called(ctx, payable)
	return args.String(0), args.Error(1)
}

func (m *mockLedger) PostJournalEntry(ctx context.Context, entry settlement.JournalEntry) (string, error) {
	args := m.Called(ctx, entry)
	return args.String(0), args.Error(1)
}

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) Publish(ctx context.Context, eventType, subject string, data interface{}) error {
	args := m.Called(ctx, eventType, subject, data)
	return args.Error(0)
}

// --- fixture ---

type fixture struct {
	svc       *LifecycleService
	trigger   *TimeTrigger
	engine    *SettlementEngine
	bookings  *memBookingRepo
	resources *memResourceRepo
	runs      *memRunRepo
	orders    *mockOrders
	ledger    *mockLedger
	publisher *mockPublisher
	clock     *clock.MockClock
	res       *resource.Resource
	driver    Actor
	logs      *observer.ObservedLogs
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	res := resource.ReconstructResource(uuid.New(), uuid.New(), "Bay 7", 1000, "MYR", true, base, base)
	f := &fixture{
		bookings:  newMemBookingRepo(),
		resources: &memResourceRepo{rows: map[uuid.UUID]*resource.Resource{res.ID(): res}},
		runs:      &memRunRepo{rows: map[uuid.UUID]*settlement.Run{}},
		orders:    &mockOrders{},
		ledger:    &mockLedger{},
		publisher: &mockPublisher{},
		clock:     clock.NewMockClock(base.Add(-24 * time.Hour)),
		res:       res,
		driver:    Actor{UserID: uuid.New(), Role: auth.RoleDriver},
	}
	f.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	core, logs := observer.New(zapcore.WarnLevel)
	f.logs = logs
	logger := zap.New(core)
	engine, err := NewSettlementEngine(f.runs, f.orders, f.ledger, 1500, f.clock, logger)
	require.NoError(t, err)
	f.engine = engine

	svc, err := NewLifecycleService(
		f.bookings,
		f.resources,
		f.orders,
		engine,
		lock.NewLocalLocker(),
		f.publisher,
		f.clock,
		60*time.Minute,
		logger,
	)
	require.NoError(t, err)
	f.svc = svc
	f.trigger = NewTimeTrigger(f.bookings, svc, logger)
	return f
}

func (f *fixture) create(t *testing.T, from, to time.Duration) *BookingDTO {
	t.Helper()
	dto, err := f.svc.CreateBooking(context.Background(), f.driver.UserID, CreateBookingRequest{
		ResourceID: f.res.ID(),
		StartAt:    base.Add(from),
		EndAt:      base.Add(to),
	})
	require.NoError(t, err)
	return dto
}

func (f *fixture) expectOrder(bookingID uuid.UUID, orderRef string) *mock.Call {
	return f.orders.On("CreateOrder", mock.Anything, mock.MatchedBy(func(req OrderRequest) bool {
		return req.Reference == bookingID.String()
	})).Return(orderRef, nil)
}

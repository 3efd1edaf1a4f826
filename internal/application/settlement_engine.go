package application

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	bookingDomain "github.com/Kilat-Pet-Delivery/service-parking/internal/domain/booking"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/domain/resource"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/domain/settlement"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/pkg/apperror"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/pkg/clock"
)

// SettlementEngine splits a completed booking's price and records it with the order
// and ledger services exactly once per booking.
type SettlementEngine struct {
	runs           settlement.RunRepository
	orders         OrderAdapter
	ledger         LedgerAdapter
	feeBasisPoints int64
	clock          clock.Clock
	logger         *zap.Logger
}

// NewSettlementEngine creates a SettlementEngine. feeBasisPoints outside [0, 10000]
// is a configuration error.
func NewSettlementEngine(
	runs settlement.RunRepository,
	orders OrderAdapter,
	ledger LedgerAdapter,
	feeBasisPoints int64,
	clk clock.Clock,
	logger *zap.Logger,
) (*SettlementEngine, error) {
	if feeBasisPoints < 0 || feeBasisPoints > settlement.MaxBasisPoints {
		return nil, apperror.NewConfigError(fmt.Sprintf("platform fee must be within [0, 100] percent, got %d basis points", feeBasisPoints))
	}
	return &SettlementEngine{
		runs:           runs,
		orders:         orders,
		ledger:         ledger,
		feeBasisPoints: feeBasisPoints,
		clock:          clk,
		logger:         logger,
	}, nil
}

// FeeBasisPoints returns the configured platform fee.
func (e *SettlementEngine) FeeBasisPoints() int64 { return e.feeBasisPoints }

// Split applies the platform fee to total.
func (e *SettlementEngine) Split(total int64) (settlement.Split, error) {
	return settlement.SplitTotal(total, e.feeBasisPoints)
}

// Settle captures the booking's payment, posts the owner payable and the balanced
// journal entry, then records the run. A booking that already has a run returns it
// untouched. Each adapter dedupes on the booking reference, so retrying after a
// partial failure never posts twice.
func (e *SettlementEngine) Settle(ctx context.Context, bk *bookingDomain.Booking, res *resource.Resource) (*settlement.Run, error) {
	existing, err := e.runs.FindByBookingID(ctx, bk.ID())
	if err == nil {
		e.logger.Info("booking already settled",
			zap.String("booking_id", bk.ID().String()),
		)
		return existing, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up settlement run: %w", err)
	}

	split, err := e.Split(bk.TotalPriceCents())
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	rec, err := settlement.NewRecord(bk.ID(), res.OwnerID(), bk.BookingNumber(), bk.Currency(), split, now)
	if err != nil {
		return nil, err
	}

	captured := false
	if bk.OrderRef() != "" {
		captured, err = e.orders.CaptureAuthorization(ctx, bk.OrderRef(), bk.ID().String())
		if err != nil {
			return nil, fmt.Errorf("capture payment: %w", err)
		}
	}

	payableRef, err := e.ledger.PostPayable(ctx, rec.Payable)
	if err != nil {
		return nil, fmt.Errorf("post payable: %w", err)
	}

	journalRef, err := e.ledger.PostJournalEntry(ctx, rec.Entry)
	if err != nil {
		return nil, fmt.Errorf("post journal entry: %w", err)
	}

	run := &settlement.Run{
		BookingID:  bk.ID(),
		OwnerID:    res.OwnerID(),
		Split:      split,
		Currency:   bk.Currency(),
		Captured:   captured,
		PayableRef: payableRef,
		JournalRef: journalRef,
		SettledAt:  now,
	}
	if err := e.runs.Save(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to save settlement run: %w", err)
	}

	e.logger.Info("booking settled",
		zap.String("booking_id", bk.ID().String()),
		zap.Int64("total", split.Total),
		zap.Int64("owner_share", split.OwnerShare),
		zap.Int64("platform_fee", split.PlatformFee),
		zap.Bool("captured", captured),
	)
	return run, nil
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Kilat-Pet-Delivery/service-parking/internal/domain/settlement"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/pkg/apperror"
)

// SettlementRunModel is the GORM model for the settlement_runs table.
type SettlementRunModel struct {
	BookingID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	OwnerID          uuid.UUID `gorm:"type:uuid;not null;index"`
	TotalPriceCents  int64     `gorm:"not null"`
	PlatformFeeCents int64     `gorm:"not null"`
	OwnerShareCents  int64     `gorm:"not null"`
	Currency         string    `gorm:"type:varchar(3);not null"`
	Captured         bool      `gorm:"not null"`
	PayableRef       string    `gorm:"type:varchar(100);not null"`
	JournalRef       string    `gorm:"type:varchar(100);not null"`
	SettledAt        time.Time `gorm:"type:timestamptz;not null"`
}

func (SettlementRunModel) TableName() string { return "settlement_runs" }

// GormSettlementRunRepository implements settlement.RunRepository using GORM.
type GormSettlementRunRepository struct {
	db *gorm.DB
}

func NewGormSettlementRunRepository(db *gorm.DB) *GormSettlementRunRepository {
	return &GormSettlementRunRepository{db: db}
}

func (r *GormSettlementRunRepository) FindByBookingID(ctx context.Context, bookingID uuid.UUID) (*settlement.Run, error) {
	var model SettlementRunModel
	if err := r.db.WithContext(ctx).Where("booking_id = ?", bookingID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NewNotFoundError("SettlementRun", bookingID.String())
		}
		return nil, fmt.Errorf("failed to find settlement run: %w", err)
	}
	return &settlement.Run{
		BookingID: model.BookingID,
		OwnerID:   model.OwnerID,
		Split: settlement.Split{
			Total:       model.TotalPriceCents,
			PlatformFee: model.PlatformFeeCents,
			OwnerShare:  model.OwnerShareCents,
		},
		Currency:   model.Currency,
		Captured:   model.Captured,
		PayableRef: model.PayableRef,
		JournalRef: model.JournalRef,
		SettledAt:  model.SettledAt,
	}, nil
}

func (r *GormSettlementRunRepository) Save(ctx context.Context, run *settlement.Run) error {
	model := SettlementRunModel{
		BookingID:        run.BookingID,
		OwnerID:          run.OwnerID,
		TotalPriceCents:  run.Split.Total,
		PlatformFeeCents: run.Split.PlatformFee,
		OwnerShareCents:  run.Split.OwnerShare,
		Currency:         run.Currency,
		Captured:         run.Captured,
		PayableRef:       run.PayableRef,
		JournalRef:       run.JournalRef,
		SettledAt:        run.SettledAt,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperror.NewConflictError("booking already settled")
		}
		return fmt.Errorf("failed to save settlement run: %w", err)
	}
	return nil
}

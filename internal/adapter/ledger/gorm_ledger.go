// Package ledger records owner payables and double-entry journal entries in Postgres.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Kilat-Pet-Delivery/service-parking/internal/domain/settlement"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/pkg/apperror"
)

// PayableModel is the GORM model for the ledger_payables table.
type PayableModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Reference   string    `gorm:"type:varchar(100);uniqueIndex;not null"`
	PayeeID     uuid.UUID `gorm:"type:uuid;index;not null"`
	AmountCents int64     `gorm:"not null"`
	Currency    string    `gorm:"type:varchar(3);not null"`
	Memo        string    `gorm:"type:varchar(500);not null;default:''"`
	PayableDate time.Time `gorm:"type:timestamptz;not null"`
	Status      string    `gorm:"type:varchar(20);not null;default:'open'"`
	CreatedAt   time.Time `gorm:"type:timestamptz;not null"`
}

func (PayableModel) TableName() string { return "ledger_payables" }

// JournalEntryModel is the GORM model for the ledger_journal_entries table.
type JournalEntryModel struct {
	ID        uuid.UUID         `gorm:"type:uuid;primaryKey"`
	Reference string            `gorm:"type:varchar(100);uniqueIndex;not null"`
	Memo      string            `gorm:"type:varchar(500);not null;default:''"`
	EntryDate time.Time         `gorm:"type:timestamptz;not null"`
	CreatedAt time.Time         `gorm:"type:timestamptz;not null"`
	Legs      []JournalLegModel `gorm:"foreignKey:EntryID;constraint:OnDelete:CASCADE"`
}

func (JournalEntryModel) TableName() string { return "ledger_journal_entries" }

// JournalLegModel is the GORM model for the ledger_journal_legs table.
type JournalLegModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	EntryID     uuid.UUID `gorm:"type:uuid;index;not null"`
	Account     string    `gorm:"type:varchar(20);not null"`
	DebitCents  int64     `gorm:"not null;default:0"`
	CreditCents int64     `gorm:"not null;default:0"`
	Position    int       `gorm:"not null"`
}

func (JournalLegModel) TableName() string { return "ledger_journal_legs" }

// Models lists the ledger tables for dev auto-migration.
func Models() []interface{} {
	return []interface{}{&PayableModel{}, &JournalEntryModel{}, &JournalLegModel{}}
}

// GormLedger implements the ledger port on the service database. Each record's
// Reference is unique, so a repeated post returns the ref stored the first time.
type GormLedger struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormLedger creates a GormLedger.
func NewGormLedger(db *gorm.DB, logger *zap.Logger) *GormLedger {
	return &GormLedger{db: db, logger: logger}
}

// PostPayable records an amount owed to a space owner.
func (l *GormLedger) PostPayable(ctx context.Context, p settlement.Payable) (string, error) {
	if p.Reference == "" {
		return "", apperror.NewValidationError("payable reference is required")
	}
	if p.Amount < 0 {
		return "", apperror.NewValidationError("payable amount cannot be negative")
	}

	if ref, found, err := l.findPayable(ctx, p.Reference); err != nil || found {
		return ref, err
	}

	model := PayableModel{
		ID:          uuid.New(),
		Reference:   p.Reference,
		PayeeID:     p.PayeeID,
		AmountCents: p.Amount,
		Currency:    p.Currency,
		Memo:        p.Memo,
		PayableDate: p.Date.UTC(),
		Status:      "open",
		CreatedAt:   time.Now().UTC(),
	}
	if err := l.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			ref, _, ferr := l.findPayable(ctx, p.Reference)
			return ref, ferr
		}
		return "", apperror.NewAdapterUnavailableError("ledger", err)
	}

	l.logger.Info("payable posted",
		zap.String("reference", p.Reference),
		zap.String("payee_id", p.PayeeID.String()),
		zap.Int64("amount", p.Amount),
	)
	return model.ID.String(), nil
}

// PostJournalEntry records a balanced entry and its legs in one transaction.
func (l *GormLedger) PostJournalEntry(ctx context.Context, e settlement.JournalEntry) (string, error) {
	if e.Reference == "" {
		return "", apperror.NewValidationError("journal entry reference is required")
	}
	if err := e.Validate(); err != nil {
		return "", err
	}

	if ref, found, err := l.findEntry(ctx, e.Reference); err != nil || found {
		return ref, err
	}

	entry := JournalEntryModel{
		ID:        uuid.New(),
		Reference: e.Reference,
		Memo:      e.Memo,
		EntryDate: e.Date.UTC(),
		CreatedAt: time.Now().UTC(),
	}
	for i, leg := range e.Legs {
		entry.Legs = append(entry.Legs, JournalLegModel{
			ID:          uuid.New(),
			EntryID:     entry.ID,
			Account:     string(leg.Account),
			DebitCents:  leg.Debit,
			CreditCents: leg.Credit,
			Position:    i,
		})
	}

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&entry).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			ref, _, ferr := l.findEntry(ctx, e.Reference)
			return ref, ferr
		}
		return "", apperror.NewAdapterUnavailableError("ledger", err)
	}

	debits, _ := e.Totals()
	l.logger.Info("journal entry posted",
		zap.String("reference", e.Reference),
		zap.Int("legs", len(e.Legs)),
		zap.Int64("amount", debits),
	)
	return entry.ID.String(), nil
}

// AccountBalance returns debits minus credits for an account. Used by reconciliation
// and tests.
func (l *GormLedger) AccountBalance(ctx context.Context, account settlement.AccountKind) (int64, error) {
	var balance struct{ Total int64 }
	if err := l.db.WithContext(ctx).Model(&JournalLegModel{}).
		Select("COALESCE(SUM(debit_cents - credit_cents), 0) AS total").
		Where("account = ?", string(account)).
		Scan(&balance).Error; err != nil {
		return 0, fmt.Errorf("failed to sum account %s: %w", account, err)
	}
	return balance.Total, nil
}

func (l *GormLedger) findPayable(ctx context.Context, reference string) (string, bool, error) {
	var model PayableModel
	err := l.db.WithContext(ctx).Where("reference = ?", reference).First(&model).Error
	switch {
	case err == nil:
		return model.ID.String(), true, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return "", false, nil
	default:
		return "", false, apperror.NewAdapterUnavailableError("ledger", err)
	}
}

func (l *GormLedger) findEntry(ctx context.Context, reference string) (string, bool, error) {
	var model JournalEntryModel
	err := l.db.WithContext(ctx).Where("reference = ?", reference).First(&model).Error
	switch {
	case err == nil:
		return model.ID.String(), true, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return "", false, nil
	default:
		return "", false, apperror.NewAdapterUnavailableError("ledger", err)
	}
}

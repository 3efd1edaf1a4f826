// Package settlement splits a completed booking's price between the space owner and
// the platform and describes the ledger postings that record it.
package settlement

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Kilat-Pet-Delivery/service-parking/internal/pkg/apperror"
)

// MaxBasisPoints is 100%.
const MaxBasisPoints = 10000

// AccountKind identifies a ledger account.
type AccountKind string

const (
	AccountEscrow   AccountKind = "escrow"
	AccountClearing AccountKind = "clearing"
	AccountRevenue  AccountKind = "revenue"
)

// Leg is one side of a journal entry. Exactly one of Debit and Credit is non-zero.
type Leg struct {
	Account AccountKind `json:"account"`
	Debit   int64       `json:"debit"`
	Credit  int64       `json:"credit"`
}

// JournalEntry is a double-entry posting identified by Reference.
type JournalEntry struct {
	Reference string    `json:"reference"`
	Memo      string    `json:"memo"`
	Date      time.Time `json:"date"`
	Legs      []Leg     `json:"legs"`
}

// Totals returns the summed debits and credits.
func (e JournalEntry) Totals() (debits, credits int64) {
	for _, l := range e.Legs {
		debits += l.Debit
		credits += l.Credit
	}
	return debits, credits
}

// Validate fails with an unbalanced entry error when debits and credits differ.
func (e JournalEntry) Validate() error {
	if len(e.Legs) == 0 {
		return apperror.NewValidationError("journal entry has no legs")
	}
	for _, l := range e.Legs {
		if l.Debit < 0 || l.Credit < 0 {
			return apperror.NewValidationError("journal legs cannot be negative")
		}
	}
	debits, credits := e.Totals()
	if debits != credits {
		return apperror.NewUnbalancedEntryError(debits, credits)
	}
	return nil
}

// Payable is an amount owed to a space owner.
type Payable struct {
	Reference string    `json:"reference"`
	PayeeID   uuid.UUID `json:"payee_id"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	Memo      string    `json:"memo"`
	Date      time.Time `json:"date"`
}

// Split is the division of a total between owner and platform.
type Split struct {
	Total       int64 `json:"total"`
	PlatformFee int64 `json:"platform_fee"`
	OwnerShare  int64 `json:"owner_share"`
}

// SplitTotal computes the platform fee rounded half up and gives the remainder to the
// owner, so OwnerShare+PlatformFee == Total for every input.
func SplitTotal(total, feeBasisPoints int64) (Split, error) {
	if total < 0 {
		return Split{}, apperror.NewValidationError("total cannot be negative")
	}
	if feeBasisPoints < 0 || feeBasisPoints > MaxBasisPoints {
		return Split{}, apperror.NewConfigError(fmt.Sprintf("fee basis points must be within [0, %d], got %d", MaxBasisPoints, feeBasisPoints))
	}
	fee := (total*feeBasisPoints + MaxBasisPoints/2) / MaxBasisPoints
	return Split{Total: total, PlatformFee: fee, OwnerShare: total - fee}, nil
}

// Record is what a settled booking hands to the ledger.
type Record struct {
	BookingID uuid.UUID    `json:"booking_id"`
	OwnerID   uuid.UUID    `json:"owner_id"`
	Currency  string       `json:"currency"`
	Split     Split        `json:"split"`
	Payable   Payable      `json:"payable"`
	Entry     JournalEntry `json:"entry"`
}

// Reference is the idempotency key shared by every posting of a booking.
func Reference(bookingID uuid.UUID) string {
	return "booking-" + bookingID.String()
}

// NewRecord builds the payable and the three-leg journal entry for a booking:
// escrow debit of the total, clearing credit of the owner share, revenue credit of the fee.
func NewRecord(bookingID, ownerID uuid.UUID, bookingNumber, currency string, split Split, date time.Time) (Record, error) {
	ref := Reference(bookingID)
	memo := fmt.Sprintf("Parking booking %s", bookingNumber)
	date = date.UTC()

	rec := Record{
		BookingID: bookingID,
		OwnerID:   ownerID,
		Currency:  currency,
		Split:     split,
		Payable: Payable{
			Reference: ref,
			PayeeID:   ownerID,
			Amount:    split.OwnerShare,
			Currency:  currency,
			Memo:      memo,
			Date:      date,
		},
		Entry: JournalEntry{
			Reference: ref,
			Memo:      memo,
			Date:      date,
			Legs: []Leg{
				{Account: AccountEscrow, Debit: split.Total},
				{Account: AccountClearing, Credit: split.OwnerShare},
				{Account: AccountRevenue, Credit: split.PlatformFee},
			},
		},
	}
	if err := rec.Entry.Validate(); err != nil {
		return Record{}, err
	}
	return rec, nil
}

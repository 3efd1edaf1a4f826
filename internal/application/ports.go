package application

import (
	"context"

	"github.com/google/uuid"

	"github.com/Kilat-Pet-Delivery/service-parking/internal/domain/settlement"
)

// ProductKind classifies an order line.
type ProductKind string

const (
	ProductService     ProductKind = "service"
	ProductPlatformFee ProductKind = "platform_fee"
)

// OrderLineItem is one priced line of an order.
type OrderLineItem struct {
	ProductKind ProductKind `json:"product_kind"`
	Description string      `json:"description"`
	UnitPrice   int64       `json:"unit_price"`
	Quantity    int64       `json:"quantity"`
}

// OrderRequest asks the order service for a payable order. Reference is the
// booking id and doubles as the idempotency key.
type OrderRequest struct {
	Reference string          `json:"reference"`
	DriverID  uuid.UUID       `json:"driver_id"`
	Currency  string          `json:"currency"`
	LineItems []OrderLineItem `json:"line_items"`
}

// Total sums the line items.
func (r OrderRequest) Total() int64 {
	var total int64
	for _, li := range r.LineItems {
		total += li.UnitPrice * li.Quantity
	}
	return total
}

// OrderAdapter turns a price breakdown into an external order.
type OrderAdapter interface {
	// CreateOrder returns the same order reference for repeated calls with one Reference.
	CreateOrder(ctx context.Context, req OrderRequest) (string, error)

	// CaptureAuthorization captures a held payment. It returns false without error when
	// there is nothing to capture.
	CaptureAuthorization(ctx context.Context, orderRef, reference string) (bool, error)
}

// LedgerAdapter records payables and journal entries. Both calls dedupe on the
// record's Reference and return the existing ref on repeat.
type LedgerAdapter interface {
	PostPayable(ctx context.Context, payable settlement.Payable) (string, error)
	PostJournalEntry(ctx context.Context, entry settlement.JournalEntry) (string, error)
}

// EventPublisher publishes lifecycle events keyed by subject.
type EventPublisher interface {
	Publish(ctx context.Context, eventType, subject string, data interface{}) error
}

// ResourceLocker serializes work on a single resource across read, check and commit.
type ResourceLocker interface {
	Lock(ctx context.Context, resourceID uuid.UUID) (unlock func(), err error)
}

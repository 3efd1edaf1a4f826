package order

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Kilat-Pet-Delivery/service-parking/internal/application"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/pkg/apperror"
)

// SandboxAdapter is an in-memory order service used when no Stripe key is
// configured. Orders are authorized on creation and captured once.
type SandboxAdapter struct {
	mu       sync.Mutex
	orders   map[string]*sandboxOrder
	byRef    map[string]string
	logger   *zap.Logger
	sequence int
}

type sandboxOrder struct {
	ref      string
	total    int64
	captured bool
}

// NewSandboxAdapter creates an empty sandbox.
func NewSandboxAdapter(logger *zap.Logger) *SandboxAdapter {
	return &SandboxAdapter{
		orders: make(map[string]*sandboxOrder),
		byRef:  make(map[string]string),
		logger: logger,
	}
}

// CreateOrder returns the existing order for a repeated reference.
func (s *SandboxAdapter) CreateOrder(_ context.Context, req application.OrderRequest) (string, error) {
	if req.Reference == "" {
		return "", apperror.NewValidationError("order reference is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ref, ok := s.byRef[req.Reference]; ok {
		return ref, nil
	}
	s.sequence++
	ref := sandboxRef(s.sequence)
	s.orders[ref] = &sandboxOrder{ref: ref, total: req.Total()}
	s.byRef[req.Reference] = ref

	s.logger.Info("sandbox order created",
		zap.String("booking_id", req.Reference),
		zap.String("order_ref", ref),
		zap.Int64("amount", req.Total()),
	)
	return ref, nil
}

// CaptureAuthorization captures an order the first time it is called for it.
// Unknown orders, such as ones created before a restart, have nothing to capture.
func (s *SandboxAdapter) CaptureAuthorization(_ context.Context, orderRef, reference string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderRef]
	if !ok {
		s.logger.Warn("sandbox order not found, nothing to capture",
			zap.String("order_ref", orderRef),
			zap.String("reference", reference),
		)
		return false, nil
	}
	if o.captured {
		return false, nil
	}
	o.captured = true
	return true, nil
}

// Captured reports whether an order has been captured.
func (s *SandboxAdapter) Captured(orderRef string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderRef]
	return ok && o.captured
}

func sandboxRef(n int) string {
	return fmt.Sprintf("pi_sandbox_%06d", n)
}

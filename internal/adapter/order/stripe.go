// Package order implements the order port on top of Stripe payment intents.
package order

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"go.uber.org/zap"

	"github.com/Kilat-Pet-Delivery/service-parking/internal/application"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/pkg/apperror"
)

const adapterName = "order service"

// freeOrderPrefix marks orders with a zero total. They are never sent to Stripe.
const freeOrderPrefix = "free_"

// paymentIntents is the subset of the Stripe client the adapter uses.
type paymentIntents interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Capture(id string, params *stripe.PaymentIntentCaptureParams) (*stripe.PaymentIntent, error)
}

// StripeAdapter creates manual-capture payment intents for bookings. The order
// reference is the payment intent id.
type StripeAdapter struct {
	intents paymentIntents
	logger  *zap.Logger
}

// NewStripeAdapter creates an adapter using the given secret key.
func NewStripeAdapter(secretKey string, logger *zap.Logger) *StripeAdapter {
	client := &paymentintent.Client{B: stripe.GetBackend(stripe.APIBackend), Key: secretKey}
	return &StripeAdapter{intents: client, logger: logger}
}

func newStripeAdapter(intents paymentIntents, logger *zap.Logger) *StripeAdapter {
	return &StripeAdapter{intents: intents, logger: logger}
}

// CreateOrder authorizes the order total. Stripe dedupes on the idempotency key, so
// a retry with the same reference returns the first intent.
func (a *StripeAdapter) CreateOrder(ctx context.Context, req application.OrderRequest) (string, error) {
	if req.Reference == "" {
		return "", apperror.NewValidationError("order reference is required")
	}
	total := req.Total()
	if total < 0 {
		return "", apperror.NewValidationError("order total must not be negative")
	}
	if total == 0 {
		ref := freeOrderPrefix + req.Reference
		a.logger.Info("free order, no authorization needed",
			zap.String("booking_id", req.Reference),
			zap.String("order_ref", ref),
		)
		return ref, nil
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(total),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		Description:   stripe.String("Parking booking " + req.Reference),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey("order-" + req.Reference)
	params.AddMetadata("booking_id", req.Reference)
	params.AddMetadata("driver_id", req.DriverID.String())
	for _, li := range req.LineItems {
		params.AddMetadata("line_"+string(li.ProductKind), fmt.Sprintf("%d", li.UnitPrice*li.Quantity))
	}

	pi, err := a.intents.New(params)
	if err != nil {
		return "", mapStripeError(err)
	}

	a.logger.Info("order created",
		zap.String("booking_id", req.Reference),
		zap.String("order_ref", pi.ID),
		zap.Int64("amount", total),
	)
	return pi.ID, nil
}

// CaptureAuthorization captures the held amount. Intents that are not awaiting
// capture, including ones already captured or no longer known to Stripe, report false.
func (a *StripeAdapter) CaptureAuthorization(ctx context.Context, orderRef, reference string) (bool, error) {
	if orderRef == "" || strings.HasPrefix(orderRef, freeOrderPrefix) {
		return false, nil
	}

	getParams := &stripe.PaymentIntentParams{}
	getParams.Context = ctx
	pi, err := a.intents.Get(orderRef, getParams)
	if err != nil {
		if isStripeNotFound(err) {
			a.logger.Warn("order not found, nothing to capture",
				zap.String("order_ref", orderRef),
				zap.String("reference", reference),
				zap.Error(err),
			)
			return false, nil
		}
		return false, mapStripeError(err)
	}
	if pi.Status != stripe.PaymentIntentStatusRequiresCapture {
		a.logger.Info("nothing to capture",
			zap.String("order_ref", orderRef),
			zap.String("status", string(pi.Status)),
		)
		return false, nil
	}

	captureParams := &stripe.PaymentIntentCaptureParams{}
	captureParams.Context = ctx
	captureParams.SetIdempotencyKey("capture-" + reference)
	if _, err := a.intents.Capture(orderRef, captureParams); err != nil {
		return false, mapStripeError(err)
	}

	a.logger.Info("authorization captured",
		zap.String("order_ref", orderRef),
		zap.String("reference", reference),
	)
	return true, nil
}

func isStripeNotFound(err error) bool {
	var stripeErr *stripe.Error
	return errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusNotFound
}

// mapStripeError marks server-side and transport failures as retryable.
func mapStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode >= http.StatusInternalServerError || stripeErr.HTTPStatusCode == http.StatusTooManyRequests {
			return apperror.NewAdapterUnavailableError(adapterName, err)
		}
		if stripeErr.HTTPStatusCode == http.StatusNotFound {
			return apperror.NewNotFoundError("Order", stripeErr.Param)
		}
		return apperror.Wrap(apperror.KindValidation, "order rejected: "+stripeErr.Msg, err)
	}
	return apperror.NewAdapterUnavailableError(adapterName, err)
}

package events

import (
	"context"
	"errors"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/Kilat-Pet-Delivery/service-parking/internal/application"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/domain/booking"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/pkg/apperror"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/pkg/kafka"
)

// approvalHandler is the part of the lifecycle service driven by approval events.
type approvalHandler interface {
	RequestApproval(ctx context.Context, bookingID uuid.UUID, actor application.Actor) (*application.BookingDTO, error)
	Confirm(ctx context.Context, bookingID uuid.UUID, actor application.Actor) (*application.BookingDTO, error)
	Cancel(ctx context.Context, bookingID uuid.UUID, actor application.Actor, reason string) (*application.BookingDTO, error)
}

// ApprovalConsumer applies approval workflow decisions to bookings.
type ApprovalConsumer struct {
	consumer *kafka.Consumer
	service  approvalHandler
	logger   *zap.Logger
}

// NewApprovalConsumer creates a consumer on the approval topic.
func NewApprovalConsumer(
	brokers []string,
	groupID, topic string,
	service *application.LifecycleService,
	logger *zap.Logger,
) *ApprovalConsumer {
	return &ApprovalConsumer{
		consumer: kafka.NewConsumer(brokers, groupID, topic, logger),
		service:  service,
		logger:   logger,
	}
}

// Start consumes until ctx is cancelled.
func (c *ApprovalConsumer) Start(ctx context.Context) error {
	return c.consumer.Consume(ctx, c.handleMessage)
}

// Close closes the underlying Kafka consumer.
func (c *ApprovalConsumer) Close() error {
	return c.consumer.Close()
}

func (c *ApprovalConsumer) handleMessage(ctx context.Context, msg kafkago.Message) error {
	ce, err := kafka.ParseCloudEvent(msg.Value)
	if err != nil {
		c.logger.Error("failed to parse cloud event from approval topic",
			zap.Error(err),
			zap.String("raw", string(msg.Value)),
		)
		return nil
	}
	return c.handleEvent(ctx, ce)
}

func (c *ApprovalConsumer) handleEvent(ctx context.Context, ce kafka.CloudEvent) error {
	var evt booking.ApprovalEvent
	if err := ce.ParseData(&evt); err != nil || evt.BookingID == uuid.Nil {
		c.logger.Error("invalid approval event data",
			zap.String("type", ce.Type),
			zap.Error(err),
		)
		return nil
	}

	log := c.logger.With(
		zap.String("type", ce.Type),
		zap.String("booking_id", evt.BookingID.String()),
	)

	var err error
	switch ce.Type {
	case booking.ApprovalRequested:
		_, err = c.service.RequestApproval(ctx, evt.BookingID, application.SystemActor)
	case booking.ApprovalGranted:
		_, err = c.service.Confirm(ctx, evt.BookingID, application.SystemActor)
	case booking.ApprovalRejected:
		reason := evt.Reason
		if reason == "" {
			reason = "approval rejected"
		}
		_, err = c.service.Cancel(ctx, evt.BookingID, application.SystemActor, reason)
	default:
		log.Debug("ignoring unhandled approval event type")
		return nil
	}

	if err != nil {
		if isPermanent(err) {
			log.Warn("approval event not applicable", zap.Error(err))
			return nil
		}
		log.Error("failed to apply approval event", zap.Error(err))
		return err
	}

	log.Info("approval event applied")
	return nil
}

// isPermanent reports errors that a redelivery cannot fix.
func isPermanent(err error) bool {
	return errors.Is(err, apperror.ErrInvalidTransition) ||
		errors.Is(err, apperror.ErrNotFound) ||
		errors.Is(err, apperror.ErrValidation) ||
		errors.Is(err, apperror.ErrSlotConflict)
}

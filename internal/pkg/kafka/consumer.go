package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageHandler processes one message. A failed message is retried in place;
// handlers must return nil for messages that can never succeed.
type MessageHandler func(ctx context.Context, msg kafkago.Message) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Consumer reads a single topic as part of a consumer group.
type Consumer struct {
	reader  messageReader
	logger  *zap.Logger
	backoff func() backoff.BackOff
}

// NewConsumer creates a group consumer for topic.
func NewConsumer(brokers []string, groupID, topic string, logger *zap.Logger) *Consumer {
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafkago.FirstOffset,
	})
	return newConsumer(reader, logger, retryBackoff)
}

func newConsumer(reader messageReader, logger *zap.Logger, policy func() backoff.BackOff) *Consumer {
	return &Consumer{reader: reader, logger: logger, backoff: policy}
}

func retryBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// Consume fetches messages until ctx is cancelled. Each message is handled until
// it succeeds and is committed before the next one is fetched.
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return ctx.Err()
			}
			return fmt.Errorf("failed to fetch message: %w", err)
		}

		if err := c.handle(ctx, handler, msg); err != nil {
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("failed to commit message",
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
		}
	}
}

// handle retries handler on msg until it succeeds or ctx is done.
func (c *Consumer) handle(ctx context.Context, handler MessageHandler, msg kafkago.Message) error {
	op := func() error { return handler(ctx, msg) }
	notify := func(err error, wait time.Duration) {
		c.logger.Error("message handler failed, retrying",
			zap.String("topic", msg.Topic),
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Duration("retry_in", wait),
			zap.Error(err),
		)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(c.backoff(), ctx), notify); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("failed to handle message at offset %d: %w", msg.Offset, err)
	}
	return nil
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

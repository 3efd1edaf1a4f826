// Package events connects the booking lifecycle to Kafka.
package events

import (
	"context"

	"github.com/Kilat-Pet-Delivery/service-parking/internal/pkg/kafka"
)

// Source identifies this service in CloudEvent envelopes.
const Source = "service-parking"

type eventWriter interface {
	PublishEvent(ctx context.Context, topic string, event kafka.CloudEvent) error
}

// KafkaPublisher publishes lifecycle events to the booking topic.
type KafkaPublisher struct {
	writer eventWriter
	topic  string
}

// NewKafkaPublisher creates a publisher writing to topic.
func NewKafkaPublisher(writer eventWriter, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, topic: topic}
}

// Publish wraps data in a CloudEvent keyed by subject.
func (p *KafkaPublisher) Publish(ctx context.Context, eventType, subject string, data interface{}) error {
	ce, err := kafka.NewCloudEvent(Source, eventType, data)
	if err != nil {
		return err
	}
	ce.Subject = subject
	return p.writer.PublishEvent(ctx, p.topic, ce)
}

package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CloudEvent is the CloudEvents 1.0 JSON envelope used on every topic.
type CloudEvent struct {
	SpecVersion     string          `json:"specversion"`
	ID              string          `json:"id"`
	Source          string          `json:"source"`
	Type            string          `json:"type"`
	Subject         string          `json:"subject,omitempty"`
	Time            time.Time       `json:"time"`
	DataContentType string          `json:"datacontenttype"`
	Data            json.RawMessage `json:"data"`
}

// NewCloudEvent wraps data into a new CloudEvent envelope.
func NewCloudEvent(source, eventType string, data interface{}) (CloudEvent, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return CloudEvent{}, fmt.Errorf("failed to marshal event data: %w", err)
	}
	return CloudEvent{
		SpecVersion:     "1.0",
		ID:              uuid.NewString(),
		Source:          source,
		Type:            eventType,
		Time:            time.Now().UTC(),
		DataContentType: "application/json",
		Data:            payload,
	}, nil
}

// ParseCloudEvent decodes a raw message value.
func ParseCloudEvent(raw []byte) (CloudEvent, error) {
	var ce CloudEvent
	if err := json.Unmarshal(raw, &ce); err != nil {
		return CloudEvent{}, fmt.Errorf("failed to parse cloud event: %w", err)
	}
	if ce.Type == "" {
		return CloudEvent{}, fmt.Errorf("cloud event has no type")
	}
	return ce, nil
}

// ParseData decodes the event payload into v.
func (e CloudEvent) ParseData(v interface{}) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("failed to parse cloud event data: %w", err)
	}
	return nil
}

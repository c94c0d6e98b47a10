package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/henriquegoncalvesdev/credipesca/pkg/logger"
)

// Metadata keys. Every metadata entry is also sent as a "meta-<key>" header.
const (
	// MetadataActorID is the authenticated user who caused the event.
	MetadataActorID = "actor_id"
	// MetadataSensitive marks payloads carrying a secret, such as a reset
	// token, that consumers must not persist or log.
	MetadataSensitive = "sensitive"
)

const metadataHeaderPrefix = "meta-"

// Event is the envelope written to every credipesca topic.
type Event struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	AggregateID   string            `json:"aggregate_id"`
	AggregateType string            `json:"aggregate_type"`
	Version       int               `json:"version"`
	Timestamp     time.Time         `json:"timestamp"`
	Source        string            `json:"source"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Data          json.RawMessage   `json:"data"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// NewEvent wraps data in an envelope. The correlation ID and the
// authenticated user carried by ctx are stamped on it.
func NewEvent(ctx context.Context, eventType, aggregateID, aggregateType, source string, data any) (*Event, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	e := &Event{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Version:       1,
		Timestamp:     time.Now().UTC(),
		Source:        source,
		CorrelationID: logger.CorrelationIDFromContext(ctx),
		Data:          payload,
	}
	if actor := logger.UserIDFromContext(ctx); actor != "" {
		e.WithMetadata(MetadataActorID, actor)
	}
	return e, nil
}

// WithMetadata sets a metadata entry.
func (e *Event) WithMetadata(key, value string) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// Sensitive reports whether the payload was marked as carrying a secret.
func (e *Event) Sensitive() bool {
	return e.Metadata[MetadataSensitive] == "true"
}

// headers describes the envelope so consumers can route on it without
// decoding the body.
func (e *Event) headers() []kafka.Header {
	h := []kafka.Header{
		{Key: "event_type", Value: []byte(e.EventType)},
		{Key: "source", Value: []byte(e.Source)},
	}
	if e.CorrelationID != "" {
		h = append(h, kafka.Header{Key: "correlation_id", Value: []byte(e.CorrelationID)})
	}
	for k, v := range e.Metadata {
		h = append(h, kafka.Header{Key: metadataHeaderPrefix + k, Value: []byte(v)})
	}
	return h
}

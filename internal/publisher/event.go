// Package publisher announces freshly written price summaries to downstream
// consumers over NATS JetStream and RabbitMQ.
package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/Checker-Finance/tcg-pricing/pkg/model"
)

const (
	// SubjectPriceUpdated is the NATS subject and AMQP routing key for price events.
	SubjectPriceUpdated = "evt.price.summary.updated.v1"
	// EventPriceUpdated is the envelope event type.
	EventPriceUpdated = "price.summary.updated"
	eventVersion      = "1.0.0"
)

// Envelope is the canonical wrapper every event travels in.
type Envelope struct {
	ID            uuid.UUID       `json:"id"`
	CorrelationID uuid.UUID       `json:"correlation_id"`
	Topic         string          `json:"topic"`
	EventType     string          `json:"event_type"`
	Version       string          `json:"version"`
	Service       string          `json:"service"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       json.RawMessage `json:"payload"`
}

// PriceUpdated is published after a summary row is written.
type PriceUpdated struct {
	RunID   uuid.UUID          `json:"run_id"`
	Game    model.Game         `json:"game"`
	ItemKey string             `json:"item_key"`
	Name    string             `json:"name"`
	Source  string             `json:"source"`
	Summary model.PriceSummary `json:"summary"`
}

// NewEnvelope wraps a PriceUpdated event; the run id doubles as correlation id.
func NewEnvelope(service string, ev PriceUpdated) (*Envelope, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		ID:            uuid.New(),
		CorrelationID: ev.RunID,
		Topic:         SubjectPriceUpdated,
		EventType:     EventPriceUpdated,
		Version:       eventVersion,
		Service:       service,
		Timestamp:     time.Now().UTC(),
		Payload:       data,
	}, nil
}

// Notifier delivers price events on one transport.
type Notifier interface {
	Name() string
	PublishPriceUpdated(ctx context.Context, ev PriceUpdated) error
	Close() error
}

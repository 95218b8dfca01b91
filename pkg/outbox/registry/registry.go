// Package registry knows which outbox events may be published, where they go
// and how their payloads decode.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/corporatepranks/storefront-backend/pkg/config"
	"github.com/corporatepranks/storefront-backend/pkg/db/models"
	"github.com/corporatepranks/storefront-backend/pkg/enums"
	"github.com/corporatepranks/storefront-backend/pkg/outbox"
	"github.com/corporatepranks/storefront-backend/pkg/outbox/payloads"
)

// Route is the publishing rule for one event type.
type Route struct {
	EventType  enums.OutboxEventType
	Topic      string
	Aggregates []enums.OutboxAggregateType
	decode     func(json.RawMessage) (any, error)
}

// ResolvedEvent is a validated outbox row ready to publish.
type ResolvedEvent struct {
	Descriptor Route
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks a row the relay should dead-letter instead of retrying.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable outbox error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func permanent(format string, args ...any) error {
	return NonRetryableError{Err: fmt.Errorf(format, args...)}
}

// EventRegistry resolves outbox rows against the known routes.
type EventRegistry struct {
	routes map[enums.OutboxEventType]Route
}

var orderAggregates = []enums.OutboxAggregateType{
	enums.AggregatePhysicalOrder,
	enums.AggregateDigitalOrder,
	enums.AggregateSubscriptionOrder,
}

// NewEventRegistry sends all order events to the domain topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topic := strings.TrimSpace(cfg.DomainTopic)
	if topic == "" {
		return nil, errors.New("pubsub domain topic is required")
	}
	return &EventRegistry{routes: map[enums.OutboxEventType]Route{
		enums.EventOrderRecorded: {
			EventType:  enums.EventOrderRecorded,
			Topic:      topic,
			Aggregates: orderAggregates,
			decode:     decodeAs[payloads.OrderRecordedEvent],
		},
		enums.EventOrderStatusChanged: {
			EventType:  enums.EventOrderStatusChanged,
			Topic:      topic,
			Aggregates: orderAggregates,
			decode:     decodeAs[payloads.OrderStatusChangedEvent],
		},
	}}, nil
}

// Topics lists the distinct destination topics.
func (r *EventRegistry) Topics() []string {
	var topics []string
	for _, route := range r.routes {
		if !slices.Contains(topics, route.Topic) {
			topics = append(topics, route.Topic)
		}
	}
	slices.Sort(topics)
	return topics
}

// Resolve checks the row's event type, aggregate and envelope and decodes the
// payload. Every failure is a NonRetryableError since retrying the same row
// cannot fix it.
func (r *EventRegistry) Resolve(row models.OutboxEvent) (*ResolvedEvent, error) {
	route, ok := r.routes[row.EventType]
	if !ok {
		return nil, permanent("unsupported event type %s", row.EventType)
	}
	if !slices.Contains(route.Aggregates, row.AggregateType) {
		return nil, permanent("aggregate %s cannot emit %s", row.AggregateType, row.EventType)
	}
	if row.AggregateID == uuid.Nil {
		return nil, permanent("event %s has no aggregate id", row.ID)
	}

	var env outbox.PayloadEnvelope
	if err := json.Unmarshal(row.Payload, &env); err != nil {
		return nil, permanent("decode envelope: %w", err)
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, permanent("%s envelope has no data", row.EventType)
	}
	payload, err := route.decode(data)
	if err != nil {
		return nil, permanent("decode %s: %w", row.EventType, err)
	}
	return &ResolvedEvent{Descriptor: route, Envelope: env, Payload: payload}, nil
}

func decodeAs[T any](raw json.RawMessage) (any, error) {
	v := new(T)
	if err := json.Unmarshal(raw, v); err != nil {
		return nil, err
	}
	return v, nil
}

// Package worker drains the purchase subscription into the analytics warehouse.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/corporatepranks/storefront-backend/internal/analytics"
	"github.com/corporatepranks/storefront-backend/pkg/logger"
)

// consumerName scopes dedupe keys so other consumers of the topic keep their own marks.
const consumerName = "analytics"

// Handler stores one decoded purchase.
type Handler interface {
	Handle(ctx context.Context, purchase analytics.Purchase) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, purchase analytics.Purchase) error

func (fn HandlerFunc) Handle(ctx context.Context, purchase analytics.Purchase) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, purchase)
}

// Dedupe marks event IDs as seen. *outbox/idempotency.Manager satisfies it.
type Dedupe interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

type verdict int

const (
	ack verdict = iota
	// nack redelivers the message.
	nack
)

// Service receives purchase messages. Malformed messages are acked and
// dropped, storage failures are nacked for redelivery.
type Service struct {
	sub     *gcppubsub.Subscriber
	handler Handler
	dedupe  Dedupe
	logg    *logger.Logger
}

func NewService(sub *gcppubsub.Subscriber, handler Handler, dedupe Dedupe, logg *logger.Logger) (*Service, error) {
	switch {
	case sub == nil:
		return nil, errors.New("purchase subscription is required")
	case handler == nil:
		return nil, errors.New("purchase handler is required")
	case dedupe == nil:
		return nil, errors.New("dedupe store is required")
	case logg == nil:
		return nil, errors.New("logger is required")
	}
	return &Service{sub: sub, handler: handler, dedupe: dedupe, logg: logg}, nil
}

// Run blocks until ctx is canceled or the subscription fails.
func (s *Service) Run(ctx context.Context) error {
	return s.sub.Receive(ctx, func(msgCtx context.Context, msg *gcppubsub.Message) {
		if s.process(msgCtx, msg) == nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (s *Service) process(ctx context.Context, msg *gcppubsub.Message) verdict {
	ctx = s.logg.WithField(ctx, "message_id", msg.ID)

	purchase, err := decodePurchase(msg)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "reason", err.Error()), "analytics.message_dropped")
		return ack
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"event_id":       purchase.EventID.String(),
		"transaction_id": purchase.TransactionID,
		"provider":       string(purchase.Provider),
	})

	seen, err := s.dedupe.CheckAndMarkProcessed(ctx, consumerName, purchase.EventID)
	if err != nil {
		s.logg.Error(ctx, "analytics.dedupe_failed", err)
		return nack
	}
	if seen {
		s.logg.Debug(ctx, "analytics.duplicate_skipped")
		return ack
	}

	if err := s.handler.Handle(ctx, purchase); err != nil {
		s.logg.Error(ctx, "analytics.store_failed", err)
		// unmark so the redelivery is not skipped as a duplicate
		if delErr := s.dedupe.Delete(ctx, consumerName, purchase.EventID); delErr != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", delErr.Error()), "analytics.dedupe_release_failed")
		}
		return nack
	}
	s.logg.Info(ctx, "analytics.purchase_stored")
	return ack
}

// decodePurchase validates the envelope and body of a purchase message. The
// event id falls back to the message attribute and the occurrence time to the
// publish time.
func decodePurchase(msg *gcppubsub.Message) (analytics.Purchase, error) {
	var p analytics.Purchase
	if kind := strings.TrimSpace(msg.Attributes[analytics.AttrEventType]); kind != analytics.EventTypePurchase {
		return p, fmt.Errorf("unsupported event_type %q", kind)
	}
	if err := json.Unmarshal(msg.Data, &p); err != nil {
		return p, fmt.Errorf("decode purchase: %w", err)
	}

	if p.EventID == uuid.Nil {
		id, err := uuid.Parse(strings.TrimSpace(msg.Attributes["event_id"]))
		if err != nil {
			return p, fmt.Errorf("event_id: %w", err)
		}
		p.EventID = id
	}
	if strings.TrimSpace(p.TransactionID) == "" {
		return p, errors.New("transaction_id missing")
	}
	if p.OccurredAt.IsZero() {
		p.OccurredAt = msg.PublishTime
	}
	p.OccurredAt = p.OccurredAt.UTC()
	return p, nil
}

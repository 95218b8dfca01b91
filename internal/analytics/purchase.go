// Package analytics ships purchase events from checkout to Pub/Sub and from
// Pub/Sub into BigQuery.
package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/corporatepranks/storefront-backend/internal/orders"
	"github.com/corporatepranks/storefront-backend/pkg/enums"
	"github.com/corporatepranks/storefront-backend/pkg/logger"
	"github.com/corporatepranks/storefront-backend/pkg/redis"
)

const (
	purchaseGuardScope   = "purchase_event"
	defaultGuardTTL      = 30 * 24 * time.Hour
	defaultPublishBudget = 5 * time.Second

	// AttrEventType is set on every message published by the tracker.
	AttrEventType = "event_type"
	// EventTypePurchase is the only event type on the purchase topic.
	EventTypePurchase = "purchase"
)

// Item is one purchased line.
type Item struct {
	ProductID string          `json:"product_id,omitempty"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

// Purchase is the analytics event sent once per provider transaction.
type Purchase struct {
	EventID       uuid.UUID             `json:"event_id"`
	TransactionID string                `json:"transaction_id"`
	Provider      enums.PaymentProvider `json:"provider"`
	Flow          string                `json:"flow"`
	Currency      string                `json:"currency"`
	TotalAmount   decimal.Decimal       `json:"total_amount"`
	Items         []Item                `json:"items"`
	OccurredAt    time.Time             `json:"occurred_at"`
}

// FromOrder builds the purchase event of a recorded order.
func FromOrder(in orders.RecordInput, flow string) Purchase {
	items := make([]Item, 0, len(in.Items))
	for _, it := range in.Items {
		item := Item{Name: it.Name, Price: it.UnitPrice, Quantity: it.Quantity}
		if it.ProductID != nil {
			item.ProductID = it.ProductID.String()
		}
		items = append(items, item)
	}
	return Purchase{
		TransactionID: in.TransactionID,
		Provider:      in.Provider,
		Flow:          flow,
		Currency:      in.Currency,
		TotalAmount:   in.AmountPaid,
		Items:         items,
	}
}

// Publisher sends one encoded message to the purchase topic.
type Publisher interface {
	Publish(ctx context.Context, data []byte, attrs map[string]string) error
}

// TrackerOptions configures a Tracker.
type TrackerOptions struct {
	GuardTTL       time.Duration
	PublishTimeout time.Duration
}

// Tracker publishes purchase events at most once per provider transaction.
// Purchase never blocks the caller and never returns an error.
type Tracker struct {
	guard   redis.IdempotencyStore
	pub     Publisher
	logg    *logger.Logger
	ttl     time.Duration
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewTracker(guard redis.IdempotencyStore, pub Publisher, logg *logger.Logger, opts TrackerOptions) (*Tracker, error) {
	if guard == nil {
		return nil, errors.New("idempotency store required")
	}
	if pub == nil {
		return nil, errors.New("purchase publisher required")
	}
	if opts.GuardTTL <= 0 {
		opts.GuardTTL = defaultGuardTTL
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = defaultPublishBudget
	}
	return &Tracker{
		guard:   guard,
		pub:     pub,
		logg:    logg,
		ttl:     opts.GuardTTL,
		timeout: opts.PublishTimeout,
	}, nil
}

// Purchase sends p in the background on a context detached from ctx.
func (t *Tracker) Purchase(ctx context.Context, p Purchase) {
	if t == nil {
		return
	}
	if p.TransactionID == "" {
		t.logg.Warn(ctx, "purchase event without transaction id dropped")
		return
	}
	if p.EventID == uuid.Nil {
		p.EventID = uuid.New()
	}
	if p.OccurredAt.IsZero() {
		p.OccurredAt = time.Now().UTC()
	}

	detached := context.WithoutCancel(ctx)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		sendCtx, cancel := context.WithTimeout(detached, t.timeout)
		defer cancel()
		if err := t.send(sendCtx, p); err != nil {
			logCtx := t.logg.WithFields(detached, map[string]any{
				"transaction_id": p.TransactionID,
				"provider":       p.Provider,
			})
			t.logg.Error(logCtx, "purchase event not sent", err)
		}
	}()
}

// Wait blocks until every in-flight publish has finished.
func (t *Tracker) Wait() {
	if t == nil {
		return
	}
	t.wg.Wait()
}

func (t *Tracker) send(ctx context.Context, p Purchase) error {
	key := t.guard.IdempotencyKey(purchaseGuardScope, fmt.Sprintf("%s:%s", p.Provider, p.TransactionID))
	claimed, err := t.guard.SetNX(ctx, key, p.EventID.String(), t.ttl)
	if err != nil {
		return fmt.Errorf("claim purchase guard: %w", err)
	}
	if !claimed {
		return nil
	}

	data, err := json.Marshal(p)
	if err != nil {
		_ = t.guard.Del(ctx, key)
		return fmt.Errorf("encode purchase event: %w", err)
	}
	attrs := map[string]string{
		AttrEventType:    EventTypePurchase,
		"event_id":       p.EventID.String(),
		"transaction_id": p.TransactionID,
		"provider":       string(p.Provider),
	}
	if err := t.pub.Publish(ctx, data, attrs); err != nil {
		// Release the claim so a later attempt for the same transaction can publish.
		_ = t.guard.Del(ctx, key)
		return fmt.Errorf("publish purchase event: %w", err)
	}
	return nil
}

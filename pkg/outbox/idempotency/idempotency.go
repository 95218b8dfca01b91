// Package idempotency remembers which events each consumer already handled,
// so at-least-once deliveries are applied once.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Store is the Redis surface the manager needs. *pkg/redis.Client satisfies it.
type Store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Manager marks <consumer, event> pairs for ttl under
// cp:idempotency:consumed:<consumer>:<event_id>.
type Manager struct {
	store Store
	ttl   time.Duration
}

// NewManager accepts a zero ttl, which keeps marks forever.
func NewManager(store Store, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency: store is required")
	}
	if ttl < 0 {
		return nil, errors.New("idempotency: ttl cannot be negative")
	}
	return &Manager{store: store, ttl: ttl}, nil
}

// CheckAndMarkProcessed marks the event and reports whether it was already marked.
func (m *Manager) CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return false, err
	}
	fresh, err := m.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), m.ttl)
	if err != nil {
		return false, err
	}
	return !fresh, nil
}

// Delete drops the mark so a redelivery is handled again.
func (m *Manager) Delete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) key(consumer string, eventID uuid.UUID) (string, error) {
	if consumer == "" || eventID == uuid.Nil {
		return "", errors.New("idempotency: consumer and event id are required")
	}
	return m.store.IdempotencyKey("consumed:"+consumer, eventID.String()), nil
}

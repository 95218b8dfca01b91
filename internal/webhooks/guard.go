// Package webhooks holds what the provider webhook handlers share: the
// delivery dedup guard and the capture/failure sink they report into.
package webhooks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/corporatepranks/storefront-backend/internal/orders"
	"github.com/corporatepranks/storefront-backend/internal/reconcile"
	pkgerrors "github.com/corporatepranks/storefront-backend/pkg/errors"
	"github.com/corporatepranks/storefront-backend/pkg/redis"
)

// DefaultGuardTTL covers the longest provider retry window.
const DefaultGuardTTL = 72 * time.Hour

// Recorder is satisfied by *reconcile.Service.
type Recorder interface {
	RecordCapture(ctx context.Context, c reconcile.Capture) (*orders.Recorded, error)
	RecordFailure(ctx context.Context, f reconcile.Failure) error
}

// IdempotencyGuard marks delivered event ids so provider retries are acked
// without reprocessing.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	if ttl == 0 {
		ttl = DefaultGuardTTL
	}
	return &IdempotencyGuard{store: store, ttl: ttl, scope: "webhook:" + scope}, nil
}

// CheckAndMark reports true when eventID was already seen.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	set, err := g.store.SetNX(ctx, g.store.IdempotencyKey(g.scope, eventID), "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set idempotency key: %w", err)
	}
	return !set, nil
}

// Delete releases eventID so the provider's next retry is processed.
func (g *IdempotencyGuard) Delete(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	return g.store.Del(ctx, g.store.IdempotencyKey(g.scope, eventID))
}

// IgnoreUnknown drops CodeNotFound so events for sessions this deployment
// never minted are acked instead of retried forever.
func IgnoreUnknown(err error) error {
	if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return nil
	}
	return err
}

package draft

import (
	"context"
	"encoding/json"
	"time"

	pkgerrors "github.com/corporatepranks/storefront-backend/pkg/errors"
	"github.com/corporatepranks/storefront-backend/pkg/logger"
	"github.com/corporatepranks/storefront-backend/pkg/redis"
)

// RedisStore keeps each draft as a JSON string with no expiry.
type RedisStore struct {
	kv   redis.KeyValueStore
	logg *logger.Logger
	now  func() time.Time
}

func NewRedisStore(kv redis.KeyValueStore, logg *logger.Logger) (*RedisStore, error) {
	if kv == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "redis store required")
	}
	return &RedisStore{kv: kv, logg: logg, now: time.Now}, nil
}

func (s *RedisStore) Save(ctx context.Context, owner, funnel string, order *Order) error {
	if err := ValidateSlot(owner, funnel); err != nil {
		return err
	}
	if err := order.Validate(); err != nil {
		return err
	}
	stamped := *order
	stamped.SavedAt = s.now().UTC()
	payload, err := json.Marshal(stamped)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode draft order")
	}
	if err := s.kv.Set(ctx, s.kv.DraftKey(funnel, owner), payload, 0); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save draft order")
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, owner, funnel string) (*Order, error) {
	if err := ValidateSlot(owner, funnel); err != nil {
		return nil, err
	}
	raw, err := s.kv.Get(ctx, s.kv.DraftKey(funnel, owner))
	if err != nil {
		if redis.IsNil(err) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load draft order")
	}
	return decode(ctx, s.logg, funnel, []byte(raw)), nil
}

func (s *RedisStore) Clear(ctx context.Context, owner, funnel string) error {
	if err := ValidateSlot(owner, funnel); err != nil {
		return err
	}
	if err := s.kv.Del(ctx, s.kv.DraftKey(funnel, owner)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear draft order")
	}
	return nil
}

// decode returns nil for anything that is not a usable draft.
func decode(ctx context.Context, logg *logger.Logger, funnel string, raw []byte) *Order {
	var order Order
	if err := json.Unmarshal(raw, &order); err != nil {
		logg.Warn(logg.WithField(ctx, "funnel", funnel), "discarding malformed draft order: "+err.Error())
		return nil
	}
	if err := order.Validate(); err != nil {
		logg.Warn(logg.WithField(ctx, "funnel", funnel), "discarding invalid draft order: "+err.Error())
		return nil
	}
	return &order
}

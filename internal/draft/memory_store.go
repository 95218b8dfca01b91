package draft

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	pkgerrors "github.com/corporatepranks/storefront-backend/pkg/errors"
	"github.com/corporatepranks/storefront-backend/pkg/logger"
)

// MemoryStore is an in-process Store for local development without redis.
type MemoryStore struct {
	mu    sync.Mutex
	slots map[string][]byte
	logg  *logger.Logger
	now   func() time.Time
}

func NewMemoryStore(logg *logger.Logger) *MemoryStore {
	return &MemoryStore{slots: map[string][]byte{}, logg: logg, now: time.Now}
}

func slotKey(owner, funnel string) string {
	return funnel + ":" + owner
}

func (s *MemoryStore) Save(_ context.Context, owner, funnel string, order *Order) error {
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
	s.mu.Lock()
	s.slots[slotKey(owner, funnel)] = payload
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, owner, funnel string) (*Order, error) {
	if err := ValidateSlot(owner, funnel); err != nil {
		return nil, err
	}
	s.mu.Lock()
	raw, ok := s.slots[slotKey(owner, funnel)]
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return decode(ctx, s.logg, funnel, raw), nil
}

func (s *MemoryStore) Clear(_ context.Context, owner, funnel string) error {
	if err := ValidateSlot(owner, funnel); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.slots, slotKey(owner, funnel))
	s.mu.Unlock()
	return nil
}

// Put stores raw bytes in a slot, bypassing validation.
func (s *MemoryStore) Put(owner, funnel string, raw []byte) {
	s.mu.Lock()
	s.slots[slotKey(owner, funnel)] = raw
	s.mu.Unlock()
}

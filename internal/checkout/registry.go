package checkout

import (
	"sync"
	"time"

	pkgerrors "github.com/corporatepranks/storefront-backend/pkg/errors"
)

// Registry holds the live checkout instances of this process. A page reload
// starts a new instance, so nothing here needs to survive a restart.
type Registry struct {
	mu    sync.RWMutex
	items map[string]*Checkout
}

func NewRegistry() *Registry {
	return &Registry{items: make(map[string]*Checkout)}
}

func (r *Registry) put(c *Checkout) {
	r.mu.Lock()
	r.items[c.id] = c
	r.mu.Unlock()
}

func (r *Registry) get(id string) (*Checkout, error) {
	r.mu.RLock()
	c, ok := r.items[id]
	r.mu.RUnlock()
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout not found")
	}
	return c, nil
}

// Len returns the number of live instances.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Sweep drops instances not touched since now-ttl. Instances with a provider
// call in flight are kept.
func (r *Registry) Sweep(now time.Time, ttl time.Duration) int {
	cutoff := now.Add(-ttl)
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, c := range r.items {
		c.mu.Lock()
		stale := c.lastSeen.Before(cutoff) && !c.inFlight
		c.mu.Unlock()
		if stale {
			delete(r.items, id)
			removed++
		}
	}
	return removed
}

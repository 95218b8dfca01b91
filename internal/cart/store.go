package cart

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/corporatepranks/storefront-backend/pkg/errors"
	"github.com/corporatepranks/storefront-backend/pkg/logger"
)

// Remote is the authoritative cart of one user.
type Remote interface {
	Fetch(ctx context.Context) ([]Item, error)
	Add(ctx context.Context, productID uuid.UUID) ([]Item, error)
	Remove(ctx context.Context, itemID uuid.UUID) ([]Item, error)
	SetQuantity(ctx context.Context, itemID uuid.UUID, qty int) ([]Item, error)
	Clear(ctx context.Context) error
}

type boundRemote struct {
	svc    Service
	userID uuid.UUID
}

// BindRemote scopes svc to one user.
func BindRemote(svc Service, userID uuid.UUID) Remote {
	return &boundRemote{svc: svc, userID: userID}
}

func (b *boundRemote) Fetch(ctx context.Context) ([]Item, error) {
	return b.svc.Items(ctx, b.userID)
}

func (b *boundRemote) Add(ctx context.Context, productID uuid.UUID) ([]Item, error) {
	return viewItems(b.svc.Add(ctx, b.userID, productID))
}

func (b *boundRemote) Remove(ctx context.Context, itemID uuid.UUID) ([]Item, error) {
	return viewItems(b.svc.Remove(ctx, b.userID, itemID))
}

func (b *boundRemote) SetQuantity(ctx context.Context, itemID uuid.UUID, qty int) ([]Item, error) {
	return viewItems(b.svc.SetQuantity(ctx, b.userID, itemID, qty))
}

func (b *boundRemote) Clear(ctx context.Context) error {
	return b.svc.Clear(ctx, b.userID)
}

func viewItems(view *View, err error) ([]Item, error) {
	if err != nil {
		return nil, err
	}
	return view.Items, nil
}

// ProductRef is what the store needs to show a product it has not synced yet.
type ProductRef struct {
	ID       uuid.UUID
	Name     string
	Price    decimal.Decimal
	ImageURL string
}

// Store is an optimistic local cart. Every mutation is applied locally, then reconciled with the
// remote. When the remote rejects a mutation the store resyncs and returns the remote error.
type Store struct {
	mu     sync.Mutex
	remote Remote
	logg   *logger.Logger
	items  []Item
}

func NewStore(remote Remote, logg *logger.Logger) *Store {
	return &Store{remote: remote, logg: logg}
}

// Items returns a copy of the local lines.
func (s *Store) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out
}

// TotalPrice is derived from the current lines on every call.
func (s *Store) TotalPrice() decimal.Decimal {
	return TotalPrice(s.Items())
}

// Resync replaces the local lines with the remote ones.
func (s *Store) Resync(ctx context.Context) error {
	items, err := s.remote.Fetch(ctx)
	if err != nil {
		return err
	}
	s.replace(items)
	return nil
}

func (s *Store) Add(ctx context.Context, product ProductRef) error {
	s.apply(func(items []Item) []Item {
		for i := range items {
			if items[i].ProductID == product.ID {
				items[i].Quantity++
				return items
			}
		}
		return append(items, Item{
			ProductID: product.ID,
			Name:      product.Name,
			Price:     product.Price,
			ImageURL:  product.ImageURL,
			Quantity:  1,
		})
	})
	return s.reconcile(ctx, func(ctx context.Context) ([]Item, error) {
		return s.remote.Add(ctx, product.ID)
	})
}

func (s *Store) Remove(ctx context.Context, itemID uuid.UUID) error {
	s.apply(func(items []Item) []Item {
		out := items[:0]
		for _, item := range items {
			if item.ID != itemID {
				out = append(out, item)
			}
		}
		return out
	})
	return s.reconcile(ctx, func(ctx context.Context) ([]Item, error) {
		return s.remote.Remove(ctx, itemID)
	})
}

func (s *Store) SetQuantity(ctx context.Context, itemID uuid.UUID, qty int) error {
	if qty < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	s.apply(func(items []Item) []Item {
		for i := range items {
			if items[i].ID == itemID {
				items[i].Quantity = qty
			}
		}
		return items
	})
	return s.reconcile(ctx, func(ctx context.Context) ([]Item, error) {
		return s.remote.SetQuantity(ctx, itemID, qty)
	})
}

func (s *Store) Clear(ctx context.Context) error {
	s.apply(func([]Item) []Item { return nil })
	return s.reconcile(ctx, func(ctx context.Context) ([]Item, error) {
		return nil, s.remote.Clear(ctx)
	})
}

func (s *Store) apply(mutate func([]Item) []Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	working := make([]Item, len(s.items))
	copy(working, s.items)
	s.items = mutate(working)
}

func (s *Store) reconcile(ctx context.Context, call func(context.Context) ([]Item, error)) error {
	items, err := call(ctx)
	if err != nil {
		if syncErr := s.Resync(ctx); syncErr != nil {
			s.logg.Error(ctx, "cart resync failed", syncErr)
		}
		return err
	}
	s.replace(items)
	return nil
}

func (s *Store) replace(items []Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append([]Item(nil), items...)
}

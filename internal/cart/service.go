package cart

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/corporatepranks/storefront-backend/pkg/db/models"
	"github.com/corporatepranks/storefront-backend/pkg/enums"
	pkgerrors "github.com/corporatepranks/storefront-backend/pkg/errors"
)

// Item is a cart line joined with the live product fields.
type Item struct {
	ID        uuid.UUID       `json:"id"`
	ProductID uuid.UUID       `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	ImageURL  string          `json:"image_url,omitempty"`
	Quantity  int             `json:"quantity"`
}

// LineTotal is price x quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// TotalPrice sums price x quantity over items.
func TotalPrice(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// View is the cart as the API returns it.
type View struct {
	Items      []Item          `json:"items"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

func newView(items []Item) *View {
	if items == nil {
		items = []Item{}
	}
	return &View{Items: items, TotalPrice: TotalPrice(items)}
}

type productLoader interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

// Service is the remote side of the cart.
type Service interface {
	Add(ctx context.Context, userID, productID uuid.UUID) (*View, error)
	Remove(ctx context.Context, userID, itemID uuid.UUID) (*View, error)
	SetQuantity(ctx context.Context, userID, itemID uuid.UUID, qty int) (*View, error)
	Clear(ctx context.Context, userID uuid.UUID) error
	Items(ctx context.Context, userID uuid.UUID) ([]Item, error)
	View(ctx context.Context, userID uuid.UUID) (*View, error)
}

type service struct {
	repo     *Repository
	products productLoader
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo *Repository, products productLoader) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart repository required")
	}
	if products == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "product loader required")
	}
	return &service{repo: repo, products: products}, nil
}

func (s *service) Add(ctx context.Context, userID, productID uuid.UUID) (*View, error) {
	product, err := s.products.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !product.Published {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	if product.ProductType != enums.ProductTypePhysical {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "only physical products can be added to the cart")
	}
	if err := s.repo.Increment(ctx, userID, productID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add cart item")
	}
	return s.View(ctx, userID)
}

func (s *service) Remove(ctx context.Context, userID, itemID uuid.UUID) (*View, error) {
	found, err := s.repo.Delete(ctx, userID, itemID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove cart item")
	}
	if !found {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}
	return s.View(ctx, userID)
}

func (s *service) SetQuantity(ctx context.Context, userID, itemID uuid.UUID, qty int) (*View, error) {
	if qty < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1").
			WithDetails(map[string]any{"quantity": qty})
	}
	found, err := s.repo.SetQuantity(ctx, userID, itemID, qty)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
	}
	if !found {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}
	return s.View(ctx, userID)
}

func (s *service) Clear(ctx context.Context, userID uuid.UUID) error {
	if err := s.repo.DeleteByUser(ctx, userID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	return nil
}

func (s *service) Items(ctx context.Context, userID uuid.UUID) ([]Item, error) {
	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	items := make([]Item, 0, len(rows))
	for _, row := range rows {
		if row.Product == nil {
			continue
		}
		items = append(items, Item{
			ID:        row.ID,
			ProductID: row.ProductID,
			Name:      row.Product.Name,
			Price:     row.Product.Price,
			ImageURL:  row.Product.ImageURL,
			Quantity:  row.Quantity,
		})
	}
	return items, nil
}

func (s *service) View(ctx context.Context, userID uuid.UUID) (*View, error) {
	items, err := s.Items(ctx, userID)
	if err != nil {
		return nil, err
	}
	return newView(items), nil
}

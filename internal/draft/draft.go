package draft

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/corporatepranks/storefront-backend/pkg/enums"
	pkgerrors "github.com/corporatepranks/storefront-backend/pkg/errors"
)

var funnelPattern = regexp.MustCompile(`^[a-z0-9-]{1,64}$`)

// Order is the pending purchase a landing page hands to its checkout.
type Order struct {
	ProductID      *uuid.UUID        `json:"product_id,omitempty"`
	ProductName    string            `json:"product_name" validate:"required,max=200"`
	ProductType    enums.ProductType `json:"product_type,omitempty"`
	Variants       map[string]string `json:"variants,omitempty"`
	UnitPrice      decimal.Decimal   `json:"unit_price"`
	Quantity       int               `json:"quantity" validate:"min=1,max=100"`
	TotalPrice     decimal.Decimal   `json:"total_price"`
	CompareAtPrice *decimal.Decimal  `json:"compare_at_price,omitempty"`
	Customization  map[string]string `json:"customization,omitempty"`
	ImageURL       string            `json:"image_url,omitempty"`
	SavedAt        time.Time         `json:"saved_at"`
}

// Kind returns the product type, defaulting to physical.
func (o *Order) Kind() enums.ProductType {
	if o == nil || !o.ProductType.IsValid() {
		return enums.ProductTypePhysical
	}
	return o.ProductType
}

// Validate checks the fields a checkout depends on.
func (o *Order) Validate() error {
	if o == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "draft order is required")
	}
	if strings.TrimSpace(o.ProductName) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "product name is required")
	}
	if o.Quantity < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	if !o.TotalPrice.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "total price must be positive")
	}
	if o.UnitPrice.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unit price must not be negative")
	}
	if o.ProductType != "" && !o.ProductType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid product type")
	}
	return nil
}

// Store holds at most one draft per owner and funnel. Save overwrites; Load returns nil when the
// slot is empty or unreadable.
type Store interface {
	Save(ctx context.Context, owner, funnel string, order *Order) error
	Load(ctx context.Context, owner, funnel string) (*Order, error)
	Clear(ctx context.Context, owner, funnel string) error
}

// ValidateSlot checks the owner and funnel that address a slot.
func ValidateSlot(owner, funnel string) error {
	if strings.TrimSpace(owner) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "draft owner is required")
	}
	if !funnelPattern.MatchString(funnel) {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid funnel name")
	}
	return nil
}

package types

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderItem is one line of a recorded order, stored in the items jsonb column.
type OrderItem struct {
	ProductID     *uuid.UUID        `json:"product_id,omitempty"`
	Name          string            `json:"name"`
	Quantity      int               `json:"quantity"`
	UnitPrice     decimal.Decimal   `json:"unit_price"`
	Variants      map[string]string `json:"variants,omitempty"`
	Customization map[string]string `json:"customization,omitempty"`
}

// LineTotal is UnitPrice x Quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// OrderItems is the jsonb payload of an order row.
type OrderItems []OrderItem

// Subtotal sums every line total.
func (items OrderItems) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total
}

package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/corporatepranks/storefront-backend/pkg/enums"
	"github.com/corporatepranks/storefront-backend/pkg/types"
)

// OrderRecordedEvent is emitted when a paid checkout is written to one of the order tables.
type OrderRecordedEvent struct {
	OrderID       uuid.UUID             `json:"orderId"`
	OrderKind     enums.ProductType     `json:"orderKind"`
	UserID        *uuid.UUID            `json:"userId,omitempty"`
	CheckoutID    string                `json:"checkoutId,omitempty"`
	Provider      enums.PaymentProvider `json:"provider"`
	TransactionID string                `json:"transactionId"`
	Status        enums.OrderStatus     `json:"status"`
	AmountPaid    decimal.Decimal       `json:"amountPaid"`
	Currency      string                `json:"currency"`
	Email         string                `json:"email,omitempty"`
	Items         types.OrderItems      `json:"items"`
}

// OrderStatusChangedEvent is emitted by admin status updates.
type OrderStatusChangedEvent struct {
	OrderID   uuid.UUID         `json:"orderId"`
	OrderKind enums.ProductType `json:"orderKind"`
	From      enums.OrderStatus `json:"from"`
	To        enums.OrderStatus `json:"to"`
	ChangedAt time.Time         `json:"changedAt"`
}

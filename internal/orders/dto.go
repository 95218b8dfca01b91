package orders

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/corporatepranks/storefront-backend/pkg/db/models"
	"github.com/corporatepranks/storefront-backend/pkg/enums"
	pkgerrors "github.com/corporatepranks/storefront-backend/pkg/errors"
	"github.com/corporatepranks/storefront-backend/pkg/types"
)

// Contact is the buyer data collected by the checkout form.
type Contact struct {
	Name         string     `json:"name,omitempty"`
	Email        string     `json:"email,omitempty"`
	Phone        string     `json:"phone,omitempty"`
	Address      string     `json:"address,omitempty"`
	City         string     `json:"city,omitempty"`
	PostalCode   string     `json:"postal_code,omitempty"`
	DeliveryDate *time.Time `json:"delivery_date,omitempty"`
}

// RecordInput describes a paid checkout. It is also the snapshot persisted on
// payment_sessions, so the provider fields may be empty until capture.
type RecordInput struct {
	Kind          enums.ProductType     `json:"kind"`
	UserID        *uuid.UUID            `json:"user_id,omitempty"`
	CheckoutID    string                `json:"checkout_id"`
	Contact       Contact               `json:"contact"`
	Items         types.OrderItems      `json:"items"`
	AmountPaid    decimal.Decimal       `json:"amount_paid"`
	Shipping      decimal.Decimal       `json:"shipping"`
	Currency      string                `json:"currency"`
	Provider      enums.PaymentProvider `json:"provider"`
	TransactionID string                `json:"transaction_id,omitempty"`
	ProductID     *uuid.UUID            `json:"product_id,omitempty"`
	ContentURL    string                `json:"content_url,omitempty"`
	Interval      string                `json:"interval,omitempty"`
}

// Validate checks the fields every order table requires.
func (in RecordInput) Validate() error {
	var missing []string
	if !in.Kind.IsValid() {
		missing = append(missing, "kind")
	}
	if !in.Provider.IsValid() {
		missing = append(missing, "provider")
	}
	if strings.TrimSpace(in.TransactionID) == "" {
		missing = append(missing, "transaction_id")
	}
	if !in.AmountPaid.IsPositive() {
		missing = append(missing, "amount_paid")
	}
	if strings.TrimSpace(in.Currency) == "" {
		missing = append(missing, "currency")
	}
	if len(in.Items) == 0 {
		missing = append(missing, "items")
	}
	if len(missing) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order input is incomplete").
			WithDetails(map[string]any{"invalid_fields": missing})
	}
	return nil
}

// Recorded is the outcome of Writer.Record. Duplicate means the provider
// transaction had already been written and the existing row is returned.
type Recorded struct {
	ID        uuid.UUID         `json:"id"`
	Kind      enums.ProductType `json:"kind"`
	Status    enums.OrderStatus `json:"status"`
	Duplicate bool              `json:"duplicate"`
}

// OrderDTO is the admin view of any order table row.
type OrderDTO struct {
	ID              uuid.UUID             `json:"id"`
	Kind            enums.ProductType     `json:"kind"`
	Status          enums.OrderStatus     `json:"status"`
	UserID          *uuid.UUID            `json:"user_id,omitempty"`
	CustomerName    string                `json:"customer_name"`
	Email           string                `json:"email"`
	Phone           string                `json:"phone,omitempty"`
	Items           types.OrderItems      `json:"items"`
	AmountPaid      decimal.Decimal       `json:"amount_paid"`
	Currency        string                `json:"currency"`
	Provider        enums.PaymentProvider `json:"payment_provider"`
	TransactionID   string                `json:"provider_transaction_id"`
	ShippingAddress string                `json:"shipping_address,omitempty"`
	City            string                `json:"city,omitempty"`
	PostalCode      string                `json:"postal_code,omitempty"`
	DeliveryDate    *time.Time            `json:"delivery_date,omitempty"`
	ShippingAmount  *decimal.Decimal      `json:"shipping_amount,omitempty"`
	ProductID       *uuid.UUID            `json:"product_id,omitempty"`
	ContentURL      string                `json:"content_url,omitempty"`
	DeliveredAt     *time.Time            `json:"delivered_at,omitempty"`
	Interval        string                `json:"interval,omitempty"`
	StartsAt        *time.Time            `json:"starts_at,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
}

// ListResult is one admin page of orders.
type ListResult struct {
	Orders     []OrderDTO `json:"orders"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

func baseDTO(kind enums.ProductType, b models.OrderBase) OrderDTO {
	return OrderDTO{
		ID:            b.ID,
		Kind:          kind,
		Status:        b.Status,
		UserID:        b.UserID,
		CustomerName:  b.CustomerName,
		Email:         b.Email,
		Phone:         b.Phone,
		Items:         b.Items,
		AmountPaid:    b.AmountPaid,
		Currency:      b.Currency,
		Provider:      b.PaymentProvider,
		TransactionID: b.ProviderTransactionID,
		CreatedAt:     b.CreatedAt,
	}
}

func physicalDTO(o models.PhysicalOrder) OrderDTO {
	dto := baseDTO(enums.ProductTypePhysical, o.OrderBase)
	dto.ShippingAddress = o.ShippingAddress
	dto.City = o.City
	dto.PostalCode = o.PostalCode
	dto.DeliveryDate = o.DeliveryDate
	shipping := o.ShippingAmount
	dto.ShippingAmount = &shipping
	return dto
}

func digitalDTO(o models.DigitalOrder) OrderDTO {
	dto := baseDTO(enums.ProductTypeDigital, o.OrderBase)
	dto.ProductID = o.ProductID
	dto.ContentURL = o.ContentURL
	dto.DeliveredAt = o.DeliveredAt
	return dto
}

func subscriptionDTO(o models.SubscriptionOrder) OrderDTO {
	dto := baseDTO(enums.ProductTypeSubscription, o.OrderBase)
	dto.ProductID = o.ProductID
	dto.ShippingAddress = o.ShippingAddress
	dto.Interval = o.Interval
	dto.StartsAt = o.StartsAt
	return dto
}

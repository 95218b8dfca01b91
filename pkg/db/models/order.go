package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/corporatepranks/storefront-backend/pkg/enums"
	"github.com/corporatepranks/storefront-backend/pkg/types"
)

// OrderBase holds the columns shared by the three order tables. Every table
// carries a unique (payment_provider, provider_transaction_id) pair.
type OrderBase struct {
	ID                    uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	UserID                *uuid.UUID            `gorm:"column:user_id;type:uuid"`
	CheckoutID            string                `gorm:"column:checkout_id"`
	CustomerName          string                `gorm:"column:customer_name"`
	Email                 string                `gorm:"column:email"`
	Phone                 string                `gorm:"column:phone"`
	Items                 types.OrderItems      `gorm:"column:items;type:jsonb;serializer:json;not null"`
	AmountPaid            decimal.Decimal       `gorm:"column:amount_paid;type:numeric(12,2);not null"`
	Currency              string                `gorm:"column:currency;not null"`
	PaymentProvider       enums.PaymentProvider `gorm:"column:payment_provider;not null;index:,unique,composite:provider_txn"`
	ProviderTransactionID string                `gorm:"column:provider_transaction_id;not null;index:,unique,composite:provider_txn"`
	Status                enums.OrderStatus     `gorm:"column:status;not null"`
	CreatedAt             time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

// PhysicalOrder ships goods to an address on a chosen delivery date.
type PhysicalOrder struct {
	OrderBase       `gorm:"embedded"`
	ShippingAddress string          `gorm:"column:shipping_address"`
	City            string          `gorm:"column:city"`
	PostalCode      string          `gorm:"column:postal_code"`
	DeliveryDate    *time.Time      `gorm:"column:delivery_date;type:date"`
	ShippingAmount  decimal.Decimal `gorm:"column:shipping_amount;type:numeric(12,2);not null;default:0"`
}

func (PhysicalOrder) TableName() string { return "physical_orders" }

// DigitalOrder is fulfilled at write time by serving ContentURL.
type DigitalOrder struct {
	OrderBase   `gorm:"embedded"`
	ProductID   *uuid.UUID `gorm:"column:product_id;type:uuid"`
	ContentURL  string     `gorm:"column:content_url"`
	DeliveredAt *time.Time `gorm:"column:delivered_at"`
}

func (DigitalOrder) TableName() string { return "digital_orders" }

// SubscriptionOrder starts a recurring prank box awaiting manual fulfillment.
type SubscriptionOrder struct {
	OrderBase       `gorm:"embedded"`
	ProductID       *uuid.UUID `gorm:"column:product_id;type:uuid"`
	ShippingAddress string     `gorm:"column:shipping_address"`
	Interval        string     `gorm:"column:interval"`
	StartsAt        *time.Time `gorm:"column:starts_at"`
}

func (SubscriptionOrder) TableName() string { return "subscription_orders" }

package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/corporatepranks/storefront-backend/pkg/enums"
)

// PaymentSession records every provider session minted by a checkout together
// with the order snapshot needed to write the order without the buyer present.
type PaymentSession struct {
	ID                uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	Provider          enums.PaymentProvider      `gorm:"column:provider;not null;uniqueIndex:payment_sessions_provider_session_key"`
	ProviderSessionID string                     `gorm:"column:provider_session_id;not null;uniqueIndex:payment_sessions_provider_session_key"`
	CheckoutID        string                     `gorm:"column:checkout_id;not null"`
	Flow              string                     `gorm:"column:flow;not null"`
	Amount            decimal.Decimal            `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency          string                     `gorm:"column:currency;not null"`
	Snapshot          json.RawMessage            `gorm:"column:snapshot;type:jsonb;not null"`
	Status            enums.PaymentSessionStatus `gorm:"column:status;not null"`
	TransactionID     *string                    `gorm:"column:transaction_id"`
	LastError         *string                    `gorm:"column:last_error"`
	CreatedAt         time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
}

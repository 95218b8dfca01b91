package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/corporatepranks/storefront-backend/pkg/enums"
)

// Product is a catalog entry. Prices are read live by carts and checkouts.
type Product struct {
	ID             uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	Slug           string            `gorm:"column:slug;not null;uniqueIndex"`
	Name           string            `gorm:"column:name;not null"`
	Description    string            `gorm:"column:description"`
	ProductType    enums.ProductType `gorm:"column:product_type;not null"`
	Price          decimal.Decimal   `gorm:"column:price;type:numeric(12,2);not null"`
	CompareAtPrice *decimal.Decimal  `gorm:"column:compare_at_price;type:numeric(12,2)"`
	ImageURL       string            `gorm:"column:image_url"`
	ContentURL     string            `gorm:"column:content_url"`
	Published      bool              `gorm:"column:published;not null;default:false"`
	CreatedAt      time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

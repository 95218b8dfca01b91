package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/corporatepranks/storefront-backend/pkg/enums"
)

// Profile holds buyer identity for an authenticated user. The id matches the token subject.
type Profile struct {
	ID        uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	Email     string            `gorm:"column:email;not null"`
	FullName  string            `gorm:"column:full_name"`
	Phone     string            `gorm:"column:phone"`
	Role      enums.ProfileRole `gorm:"column:role;not null;default:'customer'"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

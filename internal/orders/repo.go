package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/corporatepranks/storefront-backend/internal/repo"
	"github.com/corporatepranks/storefront-backend/pkg/db/models"
	"github.com/corporatepranks/storefront-backend/pkg/enums"
	"github.com/corporatepranks/storefront-backend/pkg/pagination"
)

// Repository persists rows in the three order tables.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, row any) error
	FindByTransaction(ctx context.Context, kind enums.ProductType, provider enums.PaymentProvider, transactionID string) (*models.OrderBase, error)
	FindForUpdate(ctx context.Context, kind enums.ProductType, id uuid.UUID) (*models.OrderBase, error)
	UpdateStatus(ctx context.Context, kind enums.ProductType, id uuid.UUID, status enums.OrderStatus) error
	List(ctx context.Context, kind enums.ProductType, limit int, cursor *pagination.Cursor) ([]OrderDTO, error)
}

type repository struct {
	repo.Base
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

// TableFor returns the order table for a product type.
func TableFor(kind enums.ProductType) (string, error) {
	switch kind {
	case enums.ProductTypePhysical:
		return models.PhysicalOrder{}.TableName(), nil
	case enums.ProductTypeDigital:
		return models.DigitalOrder{}.TableName(), nil
	case enums.ProductTypeSubscription:
		return models.SubscriptionOrder{}.TableName(), nil
	default:
		return "", fmt.Errorf("unknown order kind %q", kind)
	}
}

func (r *repository) Insert(ctx context.Context, row any) error {
	switch row.(type) {
	case *models.PhysicalOrder, *models.DigitalOrder, *models.SubscriptionOrder:
	default:
		return fmt.Errorf("unsupported order row %T", row)
	}
	return r.DB(ctx).Create(row).Error
}

// FindByTransaction returns nil, nil when the transaction has no order yet.
func (r *repository) FindByTransaction(ctx context.Context, kind enums.ProductType, provider enums.PaymentProvider, transactionID string) (*models.OrderBase, error) {
	table, err := TableFor(kind)
	if err != nil {
		return nil, err
	}
	var base models.OrderBase
	err = r.DB(ctx).Table(table).
		Where("payment_provider = ? AND provider_transaction_id = ?", provider, transactionID).
		Take(&base).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &base, nil
}

func (r *repository) FindForUpdate(ctx context.Context, kind enums.ProductType, id uuid.UUID) (*models.OrderBase, error) {
	table, err := TableFor(kind)
	if err != nil {
		return nil, err
	}
	var base models.OrderBase
	err = r.DB(ctx).Table(table).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&base).Error
	if err != nil {
		return nil, err
	}
	return &base, nil
}

func (r *repository) UpdateStatus(ctx context.Context, kind enums.ProductType, id uuid.UUID, status enums.OrderStatus) error {
	table, err := TableFor(kind)
	if err != nil {
		return err
	}
	return r.DB(ctx).Table(table).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"updated_at": time.Now().UTC(),
		}).Error
}

// List pages through one order table, newest first.
func (r *repository) List(ctx context.Context, kind enums.ProductType, limit int, cursor *pagination.Cursor) ([]OrderDTO, error) {
	q := r.DB(ctx)
	if cursor != nil {
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	q = q.Order("created_at DESC").Order("id DESC").Limit(limit)

	switch kind {
	case enums.ProductTypePhysical:
		var rows []models.PhysicalOrder
		if err := q.Find(&rows).Error; err != nil {
			return nil, err
		}
		out := make([]OrderDTO, 0, len(rows))
		for _, row := range rows {
			out = append(out, physicalDTO(row))
		}
		return out, nil
	case enums.ProductTypeDigital:
		var rows []models.DigitalOrder
		if err := q.Find(&rows).Error; err != nil {
			return nil, err
		}
		out := make([]OrderDTO, 0, len(rows))
		for _, row := range rows {
			out = append(out, digitalDTO(row))
		}
		return out, nil
	case enums.ProductTypeSubscription:
		var rows []models.SubscriptionOrder
		if err := q.Find(&rows).Error; err != nil {
			return nil, err
		}
		out := make([]OrderDTO, 0, len(rows))
		for _, row := range rows {
			out = append(out, subscriptionDTO(row))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown order kind %q", kind)
	}
}

package products

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/corporatepranks/storefront-backend/internal/repo"
	"github.com/corporatepranks/storefront-backend/pkg/db/models"
	"github.com/corporatepranks/storefront-backend/pkg/pagination"
)

// Repository reads the catalog.
type Repository struct {
	repo.Base
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// FindByID loads a product regardless of its published flag.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var p models.Product
	if err := r.DB(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// FindPublishedBySlug loads a published product by slug.
func (r *Repository) FindPublishedBySlug(ctx context.Context, slug string) (*models.Product, error) {
	var p models.Product
	if err := r.DB(ctx).Where("slug = ? AND published = ?", slug, true).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPublished pages through published products, newest first.
func (r *Repository) ListPublished(ctx context.Context, limit int, cursor *pagination.Cursor) ([]models.Product, error) {
	q := r.DB(ctx).Where("published = ?", true)
	if cursor != nil {
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	var rows []models.Product
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Create inserts a product. Used by seeding and tests; catalog authoring is out of band.
func (r *Repository) Create(ctx context.Context, p *models.Product) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	return r.DB(ctx).Create(p).Error
}

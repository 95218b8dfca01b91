// Package paymentsessions persists every provider session a checkout mints,
// together with the order snapshot reconciliation needs.
package paymentsessions

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/corporatepranks/storefront-backend/internal/repo"
	"github.com/corporatepranks/storefront-backend/pkg/db/models"
	"github.com/corporatepranks/storefront-backend/pkg/enums"
)

// Repository reads and writes payment_sessions.
type Repository struct {
	repo.Base
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

func (r *Repository) Create(ctx context.Context, s *models.PaymentSession) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Status == "" {
		s.Status = enums.PaymentSessionInitiated
	}
	return r.DB(ctx).Create(s).Error
}

// FindByProviderSession returns nil, nil when no row exists.
func (r *Repository) FindByProviderSession(ctx context.Context, provider enums.PaymentProvider, sessionID string) (*models.PaymentSession, error) {
	var s models.PaymentSession
	err := r.DB(ctx).
		Where("provider = ? AND provider_session_id = ?", provider, sessionID).
		Take(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Transition moves a session to next when its current status allows it.
// The returned bool is false when the row was missing or already past next.
func (r *Repository) Transition(ctx context.Context, provider enums.PaymentProvider, sessionID string, next enums.PaymentSessionStatus, transactionID string, lastErr error) (bool, error) {
	from := next.PreviousStatuses()
	if len(from) == 0 {
		return false, errors.New("no transition into " + string(next))
	}
	updates := map[string]any{
		"status":     next,
		"updated_at": time.Now().UTC(),
	}
	if transactionID != "" {
		updates["transaction_id"] = transactionID
	}
	if lastErr != nil {
		updates["last_error"] = lastErr.Error()
	}
	res := r.DB(ctx).Model(&models.PaymentSession{}).
		Where("provider = ? AND provider_session_id = ?", provider, sessionID).
		Where("status IN ?", from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpdateSnapshot replaces the order snapshot of a session that has not been recorded yet.
func (r *Repository) UpdateSnapshot(ctx context.Context, provider enums.PaymentProvider, sessionID string, snapshot json.RawMessage) error {
	return r.DB(ctx).Model(&models.PaymentSession{}).
		Where("provider = ? AND provider_session_id = ?", provider, sessionID).
		Where("status <> ?", enums.PaymentSessionRecorded).
		Updates(map[string]any{
			"snapshot":   snapshot,
			"updated_at": time.Now().UTC(),
		}).Error
}

// ListByStatus returns up to limit sessions in status last touched before olderThan.
func (r *Repository) ListByStatus(ctx context.Context, status enums.PaymentSessionStatus, olderThan time.Time, limit int) ([]models.PaymentSession, error) {
	var rows []models.PaymentSession
	err := r.DB(ctx).
		Where("status = ? AND updated_at < ?", status, olderThan).
		Order("updated_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

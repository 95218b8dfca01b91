// Package reconcile writes orders for payments the checkout could not record
// itself: captures reported by provider webhooks and sessions left captured
// after an order write failure.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/corporatepranks/storefront-backend/internal/analytics"
	"github.com/corporatepranks/storefront-backend/internal/orders"
	"github.com/corporatepranks/storefront-backend/pkg/db/models"
	"github.com/corporatepranks/storefront-backend/pkg/enums"
	pkgerrors "github.com/corporatepranks/storefront-backend/pkg/errors"
	"github.com/corporatepranks/storefront-backend/pkg/logger"
)

const (
	defaultBatchSize = 50
	defaultMinAge    = 2 * time.Minute
)

type sessionRepository interface {
	FindByProviderSession(ctx context.Context, provider enums.PaymentProvider, sessionID string) (*models.PaymentSession, error)
	Transition(ctx context.Context, provider enums.PaymentProvider, sessionID string, next enums.PaymentSessionStatus, transactionID string, lastErr error) (bool, error)
	ListByStatus(ctx context.Context, status enums.PaymentSessionStatus, olderThan time.Time, limit int) ([]models.PaymentSession, error)
}

type orderWriter interface {
	Record(ctx context.Context, in orders.RecordInput) (*orders.Recorded, error)
}

type purchaseTracker interface {
	Purchase(ctx context.Context, p analytics.Purchase)
}

// Capture is a provider-reported successful charge.
type Capture struct {
	Provider      enums.PaymentProvider
	SessionID     string
	TransactionID string
	AmountPaid    decimal.Decimal
}

// Failure is a provider-reported decline or cancellation of a session.
type Failure struct {
	Provider  enums.PaymentProvider
	SessionID string
	Cancelled bool
	Reason    string
}

// Summary reports one retry pass.
type Summary struct {
	Scanned  int
	Recorded int
	Failed   int
}

type ServiceParams struct {
	Sessions  sessionRepository
	Orders    orderWriter
	Tracker   purchaseTracker
	Logger    *logger.Logger
	BatchSize int
	MinAge    time.Duration
}

type Service struct {
	sessions  sessionRepository
	orders    orderWriter
	tracker   purchaseTracker
	logg      *logger.Logger
	batchSize int
	minAge    time.Duration
	now       func() time.Time
}

func NewService(p ServiceParams) (*Service, error) {
	if p.Sessions == nil {
		return nil, errors.New("payment session repository required")
	}
	if p.Orders == nil {
		return nil, errors.New("order writer required")
	}
	s := &Service{
		sessions:  p.Sessions,
		orders:    p.Orders,
		tracker:   p.Tracker,
		logg:      p.Logger,
		batchSize: p.BatchSize,
		minAge:    p.MinAge,
		now:       time.Now,
	}
	if s.batchSize <= 0 {
		s.batchSize = defaultBatchSize
	}
	if s.minAge <= 0 {
		s.minAge = defaultMinAge
	}
	return s, nil
}

// RecordCapture writes the order of a captured session. Sessions already
// recorded are left alone; unknown sessions return CodeNotFound.
func (s *Service) RecordCapture(ctx context.Context, c Capture) (*orders.Recorded, error) {
	if !c.Provider.IsValid() || strings.TrimSpace(c.SessionID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider and session id are required")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"payment_provider": string(c.Provider),
		"session_id":       c.SessionID,
	})
	row, err := s.sessions.FindByProviderSession(ctx, c.Provider, c.SessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment session")
	}
	if row == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment session not found")
	}
	if row.Status == enums.PaymentSessionRecorded {
		s.logg.Debug(ctx, "payment session already recorded")
		return nil, nil
	}
	return s.record(ctx, row, c)
}

// RecordFailure marks a session failed or cancelled. Recorded sessions are not touched.
func (s *Service) RecordFailure(ctx context.Context, f Failure) error {
	next := enums.PaymentSessionFailed
	if f.Cancelled {
		next = enums.PaymentSessionCancelled
	}
	var reason error
	if f.Reason != "" {
		reason = errors.New(f.Reason)
	}
	moved, err := s.sessions.Transition(ctx, f.Provider, f.SessionID, next, "", reason)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment session")
	}
	if !moved {
		s.logg.Debug(s.logg.WithField(ctx, "session_id", f.SessionID), "payment session not moved")
	}
	return nil
}

// RetryCaptured re-records sessions left captured for longer than the minimum age.
func (s *Service) RetryCaptured(ctx context.Context) (Summary, error) {
	var summary Summary
	rows, err := s.sessions.ListByStatus(ctx, enums.PaymentSessionCaptured, s.now().Add(-s.minAge), s.batchSize)
	if err != nil {
		return summary, fmt.Errorf("list captured sessions: %w", err)
	}
	var errs error
	for i := range rows {
		row := rows[i]
		summary.Scanned++
		c := Capture{Provider: row.Provider, SessionID: row.ProviderSessionID}
		if row.TransactionID != nil {
			c.TransactionID = *row.TransactionID
		}
		rowCtx := s.logg.WithFields(ctx, map[string]any{
			"payment_provider": string(row.Provider),
			"session_id":       row.ProviderSessionID,
		})
		if _, err := s.record(rowCtx, &row, c); err != nil {
			summary.Failed++
			errs = multierr.Append(errs, fmt.Errorf("session %s: %w", row.ProviderSessionID, err))
			continue
		}
		summary.Recorded++
	}
	return summary, errs
}

func (s *Service) record(ctx context.Context, row *models.PaymentSession, c Capture) (*orders.Recorded, error) {
	var in orders.RecordInput
	if err := json.Unmarshal(row.Snapshot, &in); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode order snapshot")
	}
	in.Provider = row.Provider
	in.TransactionID = c.TransactionID
	if in.TransactionID == "" && row.TransactionID != nil {
		in.TransactionID = *row.TransactionID
	}
	if in.TransactionID == "" {
		in.TransactionID = row.ProviderSessionID
	}
	if c.AmountPaid.IsPositive() {
		in.AmountPaid = c.AmountPaid
	}
	if in.Currency == "" {
		in.Currency = row.Currency
	}
	if in.CheckoutID == "" {
		in.CheckoutID = row.CheckoutID
	}

	rec, err := s.orders.Record(ctx, in)
	if err != nil {
		s.logg.Error(ctx, "reconcile order write failed", err)
		if _, terr := s.sessions.Transition(ctx, row.Provider, row.ProviderSessionID, enums.PaymentSessionCaptured, in.TransactionID, err); terr != nil {
			s.logg.Error(ctx, "payment session transition failed", terr)
		}
		return nil, err
	}
	if _, err := s.sessions.Transition(ctx, row.Provider, row.ProviderSessionID, enums.PaymentSessionRecorded, in.TransactionID, nil); err != nil {
		s.logg.Error(ctx, "payment session transition failed", err)
	}
	if s.tracker != nil {
		s.tracker.Purchase(ctx, analytics.FromOrder(in, row.Flow))
	}
	if !rec.Duplicate {
		s.logg.Info(s.logg.WithField(ctx, "order_id", rec.ID.String()), "order recorded by reconciliation")
	}
	return rec, nil
}

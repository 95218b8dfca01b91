package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/corporatepranks/storefront-backend/pkg/db"
	"github.com/corporatepranks/storefront-backend/pkg/db/models"
	"github.com/corporatepranks/storefront-backend/pkg/enums"
	pkgerrors "github.com/corporatepranks/storefront-backend/pkg/errors"
	"github.com/corporatepranks/storefront-backend/pkg/logger"
	"github.com/corporatepranks/storefront-backend/pkg/outbox"
	"github.com/corporatepranks/storefront-backend/pkg/outbox/payloads"
	"github.com/corporatepranks/storefront-backend/pkg/pagination"
)

const defaultSubscriptionInterval = "monthly"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Writer records paid checkouts and serves the admin order views.
type Writer struct {
	repo   Repository
	tx     txRunner
	outbox outbox.Emitter
	logg   *logger.Logger
	now    func() time.Time
}

// NewWriter builds an order writer with the required dependencies.
func NewWriter(repo Repository, tx txRunner, emitter outbox.Emitter, logg *logger.Logger) (*Writer, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &Writer{
		repo:   repo,
		tx:     tx,
		outbox: emitter,
		logg:   logg,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Record writes the order row for in.Kind and queues order_recorded in the
// same transaction. Writing the same provider transaction twice returns the
// first row with Duplicate set.
func (w *Writer) Record(ctx context.Context, in RecordInput) (*Recorded, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	in.Currency = strings.ToLower(strings.TrimSpace(in.Currency))
	in.TransactionID = strings.TrimSpace(in.TransactionID)

	now := w.now()
	row, base := newRow(in, uuid.New(), now)

	err := w.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := w.repo.WithTx(tx).Insert(ctx, row); err != nil {
			return err
		}
		return w.outbox.Emit(ctx, tx, outbox.Event{
			Type:        enums.EventOrderRecorded,
			Aggregate:   enums.AggregateForProductType(in.Kind),
			AggregateID: base.ID,
			Actor:       actorFor(in.UserID),
			Data: payloads.OrderRecordedEvent{
				OrderID:       base.ID,
				OrderKind:     in.Kind,
				UserID:        in.UserID,
				CheckoutID:    in.CheckoutID,
				Provider:      in.Provider,
				TransactionID: in.TransactionID,
				Status:        base.Status,
				AmountPaid:    in.AmountPaid,
				Currency:      in.Currency,
				Email:         in.Contact.Email,
				Items:         in.Items,
			},
			Schema:     1,
			OccurredAt: now,
		})
	})
	if err != nil {
		if isDuplicateTransaction(err, in.Kind) {
			return w.existing(ctx, in)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record order")
	}

	if w.logg != nil {
		logCtx := w.logg.WithFields(ctx, map[string]any{
			"order_id":       base.ID.String(),
			"order_kind":     in.Kind,
			"provider":       in.Provider,
			"transaction_id": in.TransactionID,
		})
		w.logg.Info(logCtx, "order recorded")
	}
	return &Recorded{ID: base.ID, Kind: in.Kind, Status: base.Status}, nil
}

func (w *Writer) existing(ctx context.Context, in RecordInput) (*Recorded, error) {
	found, err := w.repo.FindByTransaction(ctx, in.Kind, in.Provider, in.TransactionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load existing order")
	}
	if found == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order already recorded under another kind")
	}
	if w.logg != nil {
		logCtx := w.logg.WithFields(ctx, map[string]any{
			"order_id":       found.ID.String(),
			"provider":       in.Provider,
			"transaction_id": in.TransactionID,
		})
		w.logg.Info(logCtx, "order already recorded")
	}
	return &Recorded{ID: found.ID, Kind: in.Kind, Status: found.Status, Duplicate: true}, nil
}

// FindByTransaction returns the recorded order for a provider transaction, or nil.
func (w *Writer) FindByTransaction(ctx context.Context, kind enums.ProductType, provider enums.PaymentProvider, transactionID string) (*Recorded, error) {
	if !kind.IsValid() || !provider.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order kind or provider")
	}
	found, err := w.repo.FindByTransaction(ctx, kind, provider, transactionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find order")
	}
	if found == nil {
		return nil, nil
	}
	return &Recorded{ID: found.ID, Kind: kind, Status: found.Status}, nil
}

// UpdateStatus moves an order forward (Pending -> Paid -> Completed) and
// queues order_status_changed.
func (w *Writer) UpdateStatus(ctx context.Context, kind enums.ProductType, id uuid.UUID, next enums.OrderStatus, actor *outbox.ActorRef) (*Recorded, error) {
	if !kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order kind")
	}
	if !next.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}

	var result *Recorded
	err := w.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := w.repo.WithTx(tx)
		current, err := txRepo.FindForUpdate(ctx, kind, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
		}
		if !current.Status.CanTransitionTo(next) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order cannot move from %s to %s", current.Status, next))
		}
		if err := txRepo.UpdateStatus(ctx, kind, id, next); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order status")
		}
		if err := w.outbox.Emit(ctx, tx, outbox.Event{
			Type:        enums.EventOrderStatusChanged,
			Aggregate:   enums.AggregateForProductType(kind),
			AggregateID: id,
			Actor:       actor,
			Data: payloads.OrderStatusChangedEvent{
				OrderID:   id,
				OrderKind: kind,
				From:      current.Status,
				To:        next,
				ChangedAt: w.now(),
			},
			Schema: 1,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit status change")
		}
		result = &Recorded{ID: id, Kind: kind, Status: next}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// List pages through the orders of one kind for the admin view.
func (w *Writer) List(ctx context.Context, kind enums.ProductType, params pagination.Params) (*ListResult, error) {
	if !kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order kind")
	}
	after, err := params.After()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := w.repo.List(ctx, kind, params.Fetch(), after)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	result := &ListResult{}
	result.Orders, result.NextCursor = pagination.Cut(rows, params, func(o OrderDTO) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	return result, nil
}

func newRow(in RecordInput, id uuid.UUID, now time.Time) (any, *models.OrderBase) {
	base := models.OrderBase{
		ID:                    id,
		UserID:                in.UserID,
		CheckoutID:            in.CheckoutID,
		CustomerName:          strings.TrimSpace(in.Contact.Name),
		Email:                 strings.TrimSpace(in.Contact.Email),
		Phone:                 strings.TrimSpace(in.Contact.Phone),
		Items:                 in.Items,
		AmountPaid:            in.AmountPaid.Round(2),
		Currency:              in.Currency,
		PaymentProvider:       in.Provider,
		ProviderTransactionID: in.TransactionID,
		Status:                in.Kind.InitialOrderStatus(),
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	switch in.Kind {
	case enums.ProductTypeDigital:
		row := &models.DigitalOrder{
			OrderBase:   base,
			ProductID:   in.ProductID,
			ContentURL:  in.ContentURL,
			DeliveredAt: &now,
		}
		return row, &row.OrderBase
	case enums.ProductTypeSubscription:
		interval := strings.TrimSpace(in.Interval)
		if interval == "" {
			interval = defaultSubscriptionInterval
		}
		row := &models.SubscriptionOrder{
			OrderBase:       base,
			ProductID:       in.ProductID,
			ShippingAddress: joinAddress(in.Contact),
			Interval:        interval,
			StartsAt:        &now,
		}
		return row, &row.OrderBase
	default:
		row := &models.PhysicalOrder{
			OrderBase:       base,
			ShippingAddress: strings.TrimSpace(in.Contact.Address),
			City:            strings.TrimSpace(in.Contact.City),
			PostalCode:      strings.TrimSpace(in.Contact.PostalCode),
			DeliveryDate:    in.Contact.DeliveryDate,
			ShippingAmount:  in.Shipping.Round(2),
		}
		return row, &row.OrderBase
	}
}

func joinAddress(c Contact) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{c.Address, c.City, c.PostalCode} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

func actorFor(userID *uuid.UUID) *outbox.ActorRef {
	if userID == nil {
		return &outbox.ActorRef{Role: "guest"}
	}
	return &outbox.ActorRef{UserID: userID, Role: "customer"}
}

func isDuplicateTransaction(err error, kind enums.ProductType) bool {
	table, tableErr := TableFor(kind)
	if tableErr != nil {
		return false
	}
	return dbpkg.IsUniqueViolation(err, table+"_provider_txn_key") ||
		dbpkg.IsUniqueViolation(err, table+".provider_transaction_id")
}

package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/corporatepranks/storefront-backend/pkg/db"
	"github.com/corporatepranks/storefront-backend/pkg/db/models"
	"github.com/corporatepranks/storefront-backend/pkg/enums"
	pkgerrors "github.com/corporatepranks/storefront-backend/pkg/errors"
	"github.com/corporatepranks/storefront-backend/pkg/outbox"
	"github.com/corporatepranks/storefront-backend/pkg/outbox/payloads"
	"github.com/corporatepranks/storefront-backend/pkg/pagination"
	"github.com/corporatepranks/storefront-backend/pkg/types"
)

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&models.PhysicalOrder{},
		&models.DigitalOrder{},
		&models.SubscriptionOrder{},
		&models.OutboxEvent{},
	))
	return conn
}

func newTestWriter(t *testing.T, conn *gorm.DB) *Writer {
	t.Helper()
	w, err := NewWriter(NewRepository(conn), db.FromConn(conn), outbox.NewService(outbox.NewRepository(conn), nil), nil)
	require.NoError(t, err)
	return w
}

func physicalInput(txn string) RecordInput {
	delivery := time.Date(2026, 10, 30, 0, 0, 0, 0, time.UTC)
	return RecordInput{
		Kind:       enums.ProductTypePhysical,
		CheckoutID: "chk-1",
		Contact: Contact{
			Name:         "Pat Prankster",
			Email:        "pat@example.com",
			Phone:        "555-0100",
			Address:      "1 Rubber Chicken Way",
			City:         "Springfield",
			PostalCode:   "12345",
			DeliveryDate: &delivery,
		},
		Items: types.OrderItems{
			{Name: "Whoopee Cushion", Quantity: 2, UnitPrice: decimal.RequireFromString("12.50")},
			{Name: "Fake Spider", Quantity: 1, UnitPrice: decimal.RequireFromString("10.00")},
		},
		AmountPaid:    decimal.RequireFromString("35.00"),
		Currency:      "USD",
		Provider:      enums.PaymentProviderPayPal,
		TransactionID: txn,
	}
}

func outboxRows(t *testing.T, conn *gorm.DB) []models.OutboxEvent {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, conn.Order("created_at ASC").Find(&rows).Error)
	return rows
}

func TestRecordPhysicalOrderEmitsOutbox(t *testing.T) {
	conn := setupOrdersTestDB(t)
	w := newTestWriter(t, conn)

	rec, err := w.Record(context.Background(), physicalInput("CAP-1"))
	require.NoError(t, err)
	require.False(t, rec.Duplicate)
	require.Equal(t, enums.OrderStatusPaid, rec.Status)

	var row models.PhysicalOrder
	require.NoError(t, conn.First(&row, "id = ?", rec.ID).Error)
	assert.Equal(t, "usd", row.Currency)
	assert.Equal(t, "Springfield", row.City)
	assert.Len(t, row.Items, 2)
	assert.True(t, row.AmountPaid.Equal(decimal.RequireFromString("35.00")))

	events := outboxRows(t, conn)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventOrderRecorded, events[0].EventType)
	assert.Equal(t, enums.AggregatePhysicalOrder, events[0].AggregateType)
	assert.Equal(t, rec.ID, events[0].AggregateID)

	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(events[0].Payload, &envelope))
	var payload payloads.OrderRecordedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &payload))
	assert.Equal(t, "CAP-1", payload.TransactionID)
}

func TestRecordDuplicateTransactionReturnsExisting(t *testing.T) {
	conn := setupOrdersTestDB(t)
	w := newTestWriter(t, conn)
	ctx := context.Background()

	first, err := w.Record(ctx, physicalInput("CAP-2"))
	require.NoError(t, err)

	second, err := w.Record(ctx, physicalInput("CAP-2"))
	require.NoError(t, err)
	require.True(t, second.Duplicate)
	require.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, conn.Model(&models.PhysicalOrder{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
	require.Len(t, outboxRows(t, conn), 1)
}

func TestRecordSameTransactionDifferentProvider(t *testing.T) {
	conn := setupOrdersTestDB(t)
	w := newTestWriter(t, conn)
	ctx := context.Background()

	_, err := w.Record(ctx, physicalInput("TXN-9"))
	require.NoError(t, err)

	in := physicalInput("TXN-9")
	in.Provider = enums.PaymentProviderSquare
	rec, err := w.Record(ctx, in)
	require.NoError(t, err)
	require.False(t, rec.Duplicate)
}

func TestRecordDigitalStampsDelivery(t *testing.T) {
	conn := setupOrdersTestDB(t)
	w := newTestWriter(t, conn)
	fixed := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return fixed }
	productID := uuid.New()

	rec, err := w.Record(context.Background(), RecordInput{
		Kind:          enums.ProductTypeDigital,
		Contact:       Contact{Name: "Sam", Email: "sam@example.com"},
		Items:         types.OrderItems{{ProductID: &productID, Name: "Prank Call Script Pack", Quantity: 1, UnitPrice: decimal.RequireFromString("4.99")}},
		AmountPaid:    decimal.RequireFromString("4.99"),
		Currency:      "usd",
		Provider:      enums.PaymentProviderPayPal,
		TransactionID: "CAP-DIGI",
		ProductID:     &productID,
		ContentURL:    "https://cdn.example.com/scripts.pdf",
	})
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusCompleted, rec.Status)

	var row models.DigitalOrder
	require.NoError(t, conn.First(&row, "id = ?", rec.ID).Error)
	require.NotNil(t, row.DeliveredAt)
	assert.True(t, row.DeliveredAt.Equal(fixed))
	assert.Equal(t, "https://cdn.example.com/scripts.pdf", row.ContentURL)
}

func TestRecordSubscriptionDefaultsInterval(t *testing.T) {
	conn := setupOrdersTestDB(t)
	w := newTestWriter(t, conn)

	in := physicalInput("pi_sub")
	in.Kind = enums.ProductTypeSubscription
	in.Provider = enums.PaymentProviderStripe
	rec, err := w.Record(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusPending, rec.Status)

	var row models.SubscriptionOrder
	require.NoError(t, conn.First(&row, "id = ?", rec.ID).Error)
	assert.Equal(t, "monthly", row.Interval)
	assert.Equal(t, "1 Rubber Chicken Way, Springfield, 12345", row.ShippingAddress)
	assert.NotNil(t, row.StartsAt)

	events := outboxRows(t, conn)
	require.Len(t, events, 1)
	assert.Equal(t, enums.AggregateSubscriptionOrder, events[0].AggregateType)
}

func TestRecordValidation(t *testing.T) {
	conn := setupOrdersTestDB(t)
	w := newTestWriter(t, conn)

	cases := map[string]func(*RecordInput){
		"missing transaction": func(in *RecordInput) { in.TransactionID = "  " },
		"zero amount":         func(in *RecordInput) { in.AmountPaid = decimal.Zero },
		"unknown provider":    func(in *RecordInput) { in.Provider = "venmo" },
		"no items":            func(in *RecordInput) { in.Items = nil },
		"unknown kind":        func(in *RecordInput) { in.Kind = "gift" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := physicalInput("CAP-V")
			mutate(&in)
			_, err := w.Record(context.Background(), in)
			require.Error(t, err)
			require.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
		})
	}
	require.Empty(t, outboxRows(t, conn))
}

type failingEmitter struct{}

func (failingEmitter) Emit(context.Context, *gorm.DB, outbox.Event) error {
	return errors.New("outbox unavailable")
}

func TestRecordRollsBackWhenOutboxFails(t *testing.T) {
	conn := setupOrdersTestDB(t)
	w, err := NewWriter(NewRepository(conn), db.FromConn(conn), failingEmitter{}, nil)
	require.NoError(t, err)

	_, err = w.Record(context.Background(), physicalInput("CAP-RB"))
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeInternal, pkgerrors.CodeOf(err))

	var count int64
	require.NoError(t, conn.Model(&models.PhysicalOrder{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestUpdateStatusForwardOnly(t *testing.T) {
	conn := setupOrdersTestDB(t)
	w := newTestWriter(t, conn)
	ctx := context.Background()

	in := physicalInput("pi_status")
	in.Kind = enums.ProductTypeSubscription
	in.Provider = enums.PaymentProviderStripe
	rec, err := w.Record(ctx, in)
	require.NoError(t, err)

	updated, err := w.UpdateStatus(ctx, enums.ProductTypeSubscription, rec.ID, enums.OrderStatusPaid, nil)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusPaid, updated.Status)

	_, err = w.UpdateStatus(ctx, enums.ProductTypeSubscription, rec.ID, enums.OrderStatusPending, nil)
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))

	_, err = w.UpdateStatus(ctx, enums.ProductTypeSubscription, rec.ID, enums.OrderStatusPaid, nil)
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))

	_, err = w.UpdateStatus(ctx, enums.ProductTypeSubscription, uuid.New(), enums.OrderStatusCompleted, nil)
	require.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))

	events := outboxRows(t, conn)
	require.Len(t, events, 2)
	assert.Equal(t, enums.EventOrderStatusChanged, events[1].EventType)
}

func TestListPaginatesNewestFirst(t *testing.T) {
	conn := setupOrdersTestDB(t)
	w := newTestWriter(t, conn)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Hour)
		w.now = func() time.Time { return at }
		_, err := w.Record(ctx, physicalInput(fmt.Sprintf("CAP-L%d", i)))
		require.NoError(t, err)
	}

	page, err := w.List(ctx, enums.ProductTypePhysical, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Orders, 2)
	require.Equal(t, "CAP-L2", page.Orders[0].TransactionID)
	require.NotNil(t, page.Orders[0].ShippingAmount)
	require.NotEmpty(t, page.NextCursor)

	next, err := w.List(ctx, enums.ProductTypePhysical, pagination.Params{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, next.Orders, 1)
	require.Equal(t, "CAP-L0", next.Orders[0].TransactionID)
	require.Empty(t, next.NextCursor)
}

func TestFindByTransaction(t *testing.T) {
	conn := setupOrdersTestDB(t)
	w := newTestWriter(t, conn)
	ctx := context.Background()

	rec, err := w.Record(ctx, physicalInput("CAP-F"))
	require.NoError(t, err)

	found, err := w.FindByTransaction(ctx, enums.ProductTypePhysical, enums.PaymentProviderPayPal, "CAP-F")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, rec.ID, found.ID)

	missing, err := w.FindByTransaction(ctx, enums.ProductTypePhysical, enums.PaymentProviderPayPal, "CAP-X")
	require.NoError(t, err)
	require.Nil(t, missing)
}

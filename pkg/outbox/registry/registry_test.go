package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/corporatepranks/storefront-backend/pkg/config"
	"github.com/corporatepranks/storefront-backend/pkg/db/models"
	"github.com/corporatepranks/storefront-backend/pkg/enums"
	"github.com/corporatepranks/storefront-backend/pkg/outbox"
	"github.com/corporatepranks/storefront-backend/pkg/outbox/payloads"
)

const testTopic = "orders-domain"

func testRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{DomainTopic: testTopic})
	require.NoError(t, err)
	return reg
}

func envelope(t *testing.T, data string) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    "6b1f8c5e-0f7d-4d0a-9a44-1c52b2f3e001",
		OccurredAt: time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC),
		Data:       json.RawMessage(data),
	})
	require.NoError(t, err)
	return raw
}

func TestResolveOrderRecorded(t *testing.T) {
	orderID := uuid.New()
	data, err := json.Marshal(payloads.OrderRecordedEvent{
		OrderID:       orderID,
		OrderKind:     enums.ProductTypeDigital,
		Provider:      enums.PaymentProviderPayPal,
		TransactionID: "5O190127TN364715T",
		Status:        enums.OrderStatusCompleted,
		AmountPaid:    decimal.RequireFromString("19.99"),
		Currency:      "usd",
	})
	require.NoError(t, err)

	resolved, err := testRegistry(t).Resolve(models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderRecorded,
		AggregateType: enums.AggregateDigitalOrder,
		AggregateID:   orderID,
		Payload:       envelope(t, string(data)),
	})
	require.NoError(t, err)
	require.Equal(t, testTopic, resolved.Descriptor.Topic)
	require.Equal(t, 1, resolved.Envelope.Version)

	got, ok := resolved.Payload.(*payloads.OrderRecordedEvent)
	require.True(t, ok, "payload type %T", resolved.Payload)
	require.Equal(t, orderID, got.OrderID)
	require.True(t, got.AmountPaid.Equal(decimal.RequireFromString("19.99")))
}

func TestResolveStatusChanged(t *testing.T) {
	resolved, err := testRegistry(t).Resolve(models.OutboxEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateSubscriptionOrder,
		AggregateID:   uuid.New(),
		Payload:       envelope(t, `{"from":"Pending","to":"Paid"}`),
	})
	require.NoError(t, err)
	got := resolved.Payload.(*payloads.OrderStatusChangedEvent)
	require.Equal(t, enums.OrderStatusPending, got.From)
	require.Equal(t, enums.OrderStatusPaid, got.To)
}

func TestResolveRejectsPermanently(t *testing.T) {
	valid := func() models.OutboxEvent {
		return models.OutboxEvent{
			EventType:     enums.EventOrderRecorded,
			AggregateType: enums.AggregatePhysicalOrder,
			AggregateID:   uuid.New(),
			Payload:       envelope(t, `{}`),
		}
	}
	cases := map[string]func(*models.OutboxEvent){
		"unknown event type": func(e *models.OutboxEvent) { e.EventType = "order_refunded" },
		"foreign aggregate":  func(e *models.OutboxEvent) { e.AggregateType = "cart" },
		"no aggregate id":    func(e *models.OutboxEvent) { e.AggregateID = uuid.Nil },
		"null data":          func(e *models.OutboxEvent) { e.Payload = envelope(t, "null") },
		"truncated envelope": func(e *models.OutboxEvent) { e.Payload = json.RawMessage(`{"data":`) },
		"wrong data shape":   func(e *models.OutboxEvent) { e.Payload = envelope(t, `{"amountPaid":{}}`) },
	}
	reg := testRegistry(t)
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			row := valid()
			mutate(&row)
			_, err := reg.Resolve(row)
			var perm NonRetryableError
			require.True(t, errors.As(err, &perm), "got %v", err)
		})
	}
}

func TestRegistryTopics(t *testing.T) {
	require.Equal(t, []string{testTopic}, testRegistry(t).Topics())

	_, err := NewEventRegistry(config.PubSubConfig{DomainTopic: "  "})
	require.Error(t, err)
}

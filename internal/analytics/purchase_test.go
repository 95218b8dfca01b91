package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/corporatepranks/storefront-backend/pkg/enums"
)

type fakeGuard struct {
	mu   sync.Mutex
	keys map[string]string
}

func newFakeGuard() *fakeGuard { return &fakeGuard{keys: map[string]string{}} }

func (g *fakeGuard) Get(_ context.Context, key string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.keys[key], nil
}

func (g *fakeGuard) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.keys[key]; ok {
		return false, nil
	}
	g.keys[key] = value.(string)
	return true, nil
}

func (g *fakeGuard) IdempotencyKey(scope, id string) string {
	return "cp:idempotency:" + scope + ":" + id
}

func (g *fakeGuard) Del(_ context.Context, keys ...string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, k := range keys {
		delete(g.keys, k)
	}
	return nil
}

type fakePublisher struct {
	mu       sync.Mutex
	messages [][]byte
	attrs    []map[string]string
	err      error
}

func (p *fakePublisher) Publish(ctx context.Context, data []byte, attrs map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, data)
	p.attrs = append(p.attrs, attrs)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}

func samplePurchase() Purchase {
	return Purchase{
		TransactionID: "pi_123",
		Provider:      enums.PaymentProviderStripe,
		Flow:          "funnel",
		Currency:      "usd",
		TotalAmount:   decimal.RequireFromString("24.99"),
		Items:         []Item{{Name: "Desk Bell", Price: decimal.RequireFromString("20"), Quantity: 1}},
	}
}

func TestTrackerPublishesOncePerTransaction(t *testing.T) {
	guard := newFakeGuard()
	pub := &fakePublisher{}
	tracker, err := NewTracker(guard, pub, nil, TrackerOptions{})
	require.NoError(t, err)

	tracker.Purchase(context.Background(), samplePurchase())
	tracker.Wait()
	tracker.Purchase(context.Background(), samplePurchase())
	tracker.Wait()

	require.Equal(t, 1, pub.count())
	require.Equal(t, EventTypePurchase, pub.attrs[0][AttrEventType])
	require.Equal(t, "pi_123", pub.attrs[0]["transaction_id"])

	var decoded Purchase
	require.NoError(t, json.Unmarshal(pub.messages[0], &decoded))
	require.NotEmpty(t, decoded.EventID)
	require.False(t, decoded.OccurredAt.IsZero())
	require.True(t, decoded.TotalAmount.Equal(decimal.RequireFromString("24.99")))
}

func TestTrackerDistinguishesProviders(t *testing.T) {
	pub := &fakePublisher{}
	tracker, err := NewTracker(newFakeGuard(), pub, nil, TrackerOptions{})
	require.NoError(t, err)

	p := samplePurchase()
	tracker.Purchase(context.Background(), p)
	p.Provider = enums.PaymentProviderPayPal
	tracker.Purchase(context.Background(), p)
	tracker.Wait()

	require.Equal(t, 2, pub.count())
}

func TestTrackerReleasesGuardOnPublishFailure(t *testing.T) {
	guard := newFakeGuard()
	pub := &fakePublisher{err: errors.New("topic unavailable")}
	tracker, err := NewTracker(guard, pub, nil, TrackerOptions{})
	require.NoError(t, err)

	tracker.Purchase(context.Background(), samplePurchase())
	tracker.Wait()
	require.Zero(t, pub.count())
	require.Empty(t, guard.keys)

	pub.err = nil
	tracker.Purchase(context.Background(), samplePurchase())
	tracker.Wait()
	require.Equal(t, 1, pub.count())
}

func TestTrackerSurvivesCallerCancellation(t *testing.T) {
	pub := &fakePublisher{}
	tracker, err := NewTracker(newFakeGuard(), pub, nil, TrackerOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tracker.Purchase(ctx, samplePurchase())
	tracker.Wait()

	require.Equal(t, 1, pub.count())
}

func TestTrackerDropsEventsWithoutTransaction(t *testing.T) {
	pub := &fakePublisher{}
	tracker, err := NewTracker(newFakeGuard(), pub, nil, TrackerOptions{})
	require.NoError(t, err)

	p := samplePurchase()
	p.TransactionID = ""
	tracker.Purchase(context.Background(), p)
	tracker.Wait()

	require.Zero(t, pub.count())
}

func TestNewTrackerValidation(t *testing.T) {
	_, err := NewTracker(nil, &fakePublisher{}, nil, TrackerOptions{})
	require.Error(t, err)
	_, err = NewTracker(newFakeGuard(), nil, nil, TrackerOptions{})
	require.Error(t, err)
}

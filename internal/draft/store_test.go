package draft

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/corporatepranks/storefront-backend/pkg/errors"
	"github.com/corporatepranks/storefront-backend/pkg/redis"
)

type fakeKV struct {
	data   map[string]string
	getErr error
}

func newFakeKV() *fakeKV { return &fakeKV{data: map[string]string{}} }

func (f *fakeKV) Get(_ context.Context, key string) (string, error) {
	if f.getErr != nil {
		return "", f.getErr
	}
	v, ok := f.data[key]
	if !ok {
		return "", redis.ErrNil
	}
	return v, nil
}

func (f *fakeKV) Set(_ context.Context, key string, value any, _ time.Duration) error {
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	default:
		return errors.New("unsupported value")
	}
	return nil
}

func (f *fakeKV) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeKV) DraftKey(funnel, owner string) string {
	return "cp:draft:" + funnel + ":" + owner
}

func sampleOrder(name string, qty int, total string) *Order {
	return &Order{
		ProductName: name,
		Quantity:    qty,
		UnitPrice:   decimal.RequireFromString("17.50"),
		TotalPrice:  decimal.RequireFromString(total),
		Variants:    map[string]string{"scent": "fresh cut grass"},
	}
}

func stores(t *testing.T) map[string]Store {
	t.Helper()
	rs, err := NewRedisStore(newFakeKV(), nil)
	require.NoError(t, err)
	return map[string]Store{
		"redis":  rs,
		"memory": NewMemoryStore(nil),
	}
}

func TestSecondSaveReplacesFirst(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Save(ctx, "client-1", "fart-spray", sampleOrder("First", 1, "17.50")))
			require.NoError(t, store.Save(ctx, "client-1", "fart-spray", sampleOrder("Second", 2, "34.99")))

			got, err := store.Load(ctx, "client-1", "fart-spray")
			require.NoError(t, err)
			require.NotNil(t, got)
			require.Equal(t, "Second", got.ProductName)
			require.Equal(t, 2, got.Quantity)
			require.False(t, got.SavedAt.IsZero())
		})
	}
}

func TestFunnelsAndOwnersAreIsolated(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Save(ctx, "client-1", "fart-spray", sampleOrder("Spray", 1, "17.50")))
			require.NoError(t, store.Save(ctx, "client-1", "desk-alarm", sampleOrder("Alarm", 1, "9.99")))

			got, err := store.Load(ctx, "client-1", "desk-alarm")
			require.NoError(t, err)
			require.Equal(t, "Alarm", got.ProductName)

			other, err := store.Load(ctx, "client-2", "fart-spray")
			require.NoError(t, err)
			require.Nil(t, other)
		})
	}
}

func TestLoadMissingAndClear(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			got, err := store.Load(ctx, "client-1", "fart-spray")
			require.NoError(t, err)
			require.Nil(t, got)

			require.NoError(t, store.Save(ctx, "client-1", "fart-spray", sampleOrder("Spray", 1, "17.50")))
			require.NoError(t, store.Clear(ctx, "client-1", "fart-spray"))
			got, err = store.Load(ctx, "client-1", "fart-spray")
			require.NoError(t, err)
			require.Nil(t, got)
		})
	}
}

func TestLoadMalformedReturnsNil(t *testing.T) {
	kv := newFakeKV()
	kv.data[kv.DraftKey("fart-spray", "client-1")] = "{not json"
	rs, _ := NewRedisStore(kv, nil)
	got, err := rs.Load(context.Background(), "client-1", "fart-spray")
	require.NoError(t, err)
	require.Nil(t, got)

	mem := NewMemoryStore(nil)
	mem.Put("client-1", "fart-spray", []byte(`{"product_name":"","quantity":0}`))
	got, err = mem.Load(context.Background(), "client-1", "fart-spray")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestRedisLoadSurfacesTransportErrors(t *testing.T) {
	kv := newFakeKV()
	kv.getErr = errors.New("connection refused")
	rs, _ := NewRedisStore(kv, nil)
	_, err := rs.Load(context.Background(), "client-1", "fart-spray")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestSaveValidation(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()

	err := store.Save(ctx, "client-1", "Bad Funnel", sampleOrder("x", 1, "1"))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	err = store.Save(ctx, "", "fart-spray", sampleOrder("x", 1, "1"))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	err = store.Save(ctx, "client-1", "fart-spray", sampleOrder("x", 0, "1"))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	err = store.Save(ctx, "client-1", "fart-spray", sampleOrder("x", 1, "0"))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestKindDefaultsToPhysical(t *testing.T) {
	var o *Order
	require.Equal(t, "physical", string(o.Kind()))
	require.Equal(t, "subscription", string((&Order{ProductType: "subscription"}).Kind()))
}

package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/corporatepranks/storefront-backend/pkg/config"
	pkgredis "github.com/corporatepranks/storefront-backend/pkg/redis"
)

func newManager(t *testing.T, ttl time.Duration) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := pkgredis.New(context.Background(), config.RedisConfig{URL: "redis://" + mr.Addr()}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	m, err := NewManager(client, ttl)
	require.NoError(t, err)
	return m, mr
}

func TestCheckAndMarkProcessed(t *testing.T) {
	ctx := context.Background()
	m, mr := newManager(t, 24*time.Hour)
	id := uuid.MustParse("3d6f4e2a-9b1c-4c8e-8f00-5a7d2b1e9c44")

	seen, err := m.CheckAndMarkProcessed(ctx, "analytics", id)
	require.NoError(t, err)
	require.False(t, seen)

	key := "cp:idempotency:consumed:analytics:" + id.String()
	require.True(t, mr.Exists(key))
	require.Equal(t, 24*time.Hour, mr.TTL(key))

	seen, err = m.CheckAndMarkProcessed(ctx, "analytics", id)
	require.NoError(t, err)
	require.True(t, seen)

	// consumers are isolated
	seen, err = m.CheckAndMarkProcessed(ctx, "search-indexer", id)
	require.NoError(t, err)
	require.False(t, seen)
}

func TestDeleteAllowsReprocessing(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t, time.Hour)
	id := uuid.New()

	_, err := m.CheckAndMarkProcessed(ctx, "analytics", id)
	require.NoError(t, err)
	require.NoError(t, m.Delete(ctx, "analytics", id))

	seen, err := m.CheckAndMarkProcessed(ctx, "analytics", id)
	require.NoError(t, err)
	require.False(t, seen)
}

func TestMarksExpire(t *testing.T) {
	ctx := context.Background()
	m, mr := newManager(t, time.Minute)
	id := uuid.New()

	_, err := m.CheckAndMarkProcessed(ctx, "analytics", id)
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)

	seen, err := m.CheckAndMarkProcessed(ctx, "analytics", id)
	require.NoError(t, err)
	require.False(t, seen)
}

func TestValidation(t *testing.T) {
	_, err := NewManager(nil, time.Hour)
	require.Error(t, err)

	m, _ := newManager(t, time.Hour)
	_, err = NewManager(m.store, -time.Second)
	require.Error(t, err)

	_, err = m.CheckAndMarkProcessed(context.Background(), "", uuid.New())
	require.Error(t, err)
	require.Error(t, m.Delete(context.Background(), "analytics", uuid.Nil))
}

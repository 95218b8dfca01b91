package webhooks

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/corporatepranks/storefront-backend/internal/webhooks"
	"github.com/corporatepranks/storefront-backend/pkg/config"
	pkgredis "github.com/corporatepranks/storefront-backend/pkg/redis"
)

var errHandler = errors.New("handler failed")

// newGuard backs the delivery guard with an in-process redis.
func newGuard(t *testing.T, scope string) (*webhooks.IdempotencyGuard, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := pkgredis.New(context.Background(), config.RedisConfig{URL: "redis://" + mr.Addr()}, nil)
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	guard, err := webhooks.NewIdempotencyGuard(client, time.Minute, scope)
	if err != nil {
		t.Fatalf("guard: %v", err)
	}
	return guard, mr
}

func deliverRequest(h http.Handler, path string, payload []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type countingService struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingService) handle() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.err
}

func (c *countingService) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

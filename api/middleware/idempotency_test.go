package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/corporatepranks/storefront-backend/pkg/errors"
)

type fakeStore struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	f.data[key] = str
	f.ttls[key] = ttl
	return true, nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	str, _ := value.(string)
	f.data[key] = str
	f.ttls[key] = ttl
	return nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func countingHandler(calls *int, status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = fmt.Fprintf(w, `{"call":%d,"echo":%q}`, *calls, string(body))
	})
}

func paymentRequest(body, key string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/abc/submit", strings.NewReader(body))
	req.Header.Set(ClientIDHeader, "client-12345678")
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	return req
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, PaymentIdempotency, nil)(countingHandler(&calls, http.StatusCreated))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, paymentRequest(`{"a":1}`, "key-1"))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, paymentRequest(`{"a":1}`, "key-1"))

	if calls != 1 {
		t.Fatalf("expected handler once, got %d", calls)
	}
	if second.Code != http.StatusCreated {
		t.Fatalf("expected replayed 201 got %d", second.Code)
	}
	if second.Body.String() != first.Body.String() {
		t.Fatalf("replayed body mismatch: %q vs %q", second.Body.String(), first.Body.String())
	}
	if second.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatalf("expected replay header")
	}
	for _, ttl := range store.ttls {
		if ttl != PaymentIdempotency.TTL {
			t.Fatalf("completed record should keep ttl %v, got %v", PaymentIdempotency.TTL, ttl)
		}
	}
}

func TestIdempotencyRejectsInFlightDuplicate(t *testing.T) {
	store := newFakeStore()
	var handler http.Handler
	inner := 0
	var nested *httptest.ResponseRecorder
	handler = Idempotency(store, PaymentIdempotency, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner++
		if inner == 1 {
			nested = httptest.NewRecorder()
			handler.ServeHTTP(nested, paymentRequest(`{"a":1}`, "key-1"))
		}
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), paymentRequest(`{"a":1}`, "key-1"))

	if inner != 1 {
		t.Fatalf("duplicate should not reach the handler, calls=%d", inner)
	}
	if nested.Code != http.StatusConflict {
		t.Fatalf("expected 409 for in-flight duplicate got %d", nested.Code)
	}
	if !strings.Contains(nested.Body.String(), "in progress") {
		t.Fatalf("unexpected body %s", nested.Body.String())
	}
}

func TestIdempotencyRejectsDifferentBody(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, PaymentIdempotency, nil)(countingHandler(&calls, http.StatusOK))

	handler.ServeHTTP(httptest.NewRecorder(), paymentRequest(`{"a":1}`, "key-1"))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, paymentRequest(`{"a":2}`, "key-1"))

	if calls != 1 {
		t.Fatalf("expected handler once, got %d", calls)
	}
	meta := pkgerrors.MetadataFor(pkgerrors.CodeIdempotency)
	if resp.Code != meta.HTTPStatus {
		t.Fatalf("expected %d got %d", meta.HTTPStatus, resp.Code)
	}
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Error.Code != string(pkgerrors.CodeIdempotency) {
		t.Fatalf("expected idempotency code got %q", payload.Error.Code)
	}
}

func TestIdempotencyRequiredKey(t *testing.T) {
	calls := 0
	handler := Idempotency(newFakeStore(), PaymentIdempotency, nil)(countingHandler(&calls, http.StatusOK))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, paymentRequest(`{}`, ""))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if calls != 0 {
		t.Fatalf("handler should not run")
	}
}

func TestIdempotencyOptionalKeyPassesThrough(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, DefaultIdempotency, nil)(countingHandler(&calls, http.StatusOK))

	handler.ServeHTTP(httptest.NewRecorder(), paymentRequest(`{}`, ""))
	handler.ServeHTTP(httptest.NewRecorder(), paymentRequest(`{}`, ""))
	if calls != 2 {
		t.Fatalf("expected two calls got %d", calls)
	}
	if len(store.data) != 0 {
		t.Fatalf("nothing should be stored without a key")
	}
}

func TestIdempotencySkipsServerErrors(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, PaymentIdempotency, nil)(countingHandler(&calls, http.StatusServiceUnavailable))

	handler.ServeHTTP(httptest.NewRecorder(), paymentRequest(`{}`, "key-1"))
	handler.ServeHTTP(httptest.NewRecorder(), paymentRequest(`{}`, "key-1"))
	if calls != 2 {
		t.Fatalf("5xx should not be replayed, calls=%d", calls)
	}
	if len(store.data) != 0 {
		t.Fatalf("5xx should release the claim, got %v", store.data)
	}
}

func TestIdempotencyScopesByOwner(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, PaymentIdempotency, nil)(countingHandler(&calls, http.StatusOK))

	handler.ServeHTTP(httptest.NewRecorder(), paymentRequest(`{}`, "key-1"))
	other := paymentRequest(`{}`, "key-1")
	other.Header.Set(ClientIDHeader, "client-87654321")
	handler.ServeHTTP(httptest.NewRecorder(), other)

	if calls != 2 {
		t.Fatalf("different owners must not share keys, calls=%d", calls)
	}
}

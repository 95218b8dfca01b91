package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/corporatepranks/storefront-backend/api/controllers"
	"github.com/corporatepranks/storefront-backend/internal/checkout"
	"github.com/corporatepranks/storefront-backend/internal/draft"
	"github.com/corporatepranks/storefront-backend/internal/orders"
	pkgauth "github.com/corporatepranks/storefront-backend/pkg/auth"
	"github.com/corporatepranks/storefront-backend/pkg/config"
	"github.com/corporatepranks/storefront-backend/pkg/enums"
	"github.com/corporatepranks/storefront-backend/pkg/logger"
	"github.com/corporatepranks/storefront-backend/pkg/outbox"
	"github.com/corporatepranks/storefront-backend/pkg/pagination"
	pkgredis "github.com/corporatepranks/storefront-backend/pkg/redis"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type fakeKV struct {
	mu      sync.Mutex
	values  map[string]string
	windows map[string]int64
}

func newFakeKV() *fakeKV {
	return &fakeKV{values: map[string]string{}, windows: map[string]int64{}}
}

func (f *fakeKV) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	if !ok {
		return "", pkgredis.ErrNil
	}
	return v, nil
}

func (f *fakeKV) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	switch v := value.(type) {
	case string:
		f.values[key] = v
	case []byte:
		f.values[key] = string(v)
	default:
		raw, _ := json.Marshal(v)
		f.values[key] = string(raw)
	}
	return true, nil
}

func (f *fakeKV) Set(_ context.Context, key string, value any, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key], _ = value.(string)
	return nil
}

func (f *fakeKV) IdempotencyKey(scope, id string) string { return "cp:idempotency:" + scope + ":" + id }

func (f *fakeKV) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.values, k)
	}
	return nil
}

func (f *fakeKV) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.windows[scope]++
	return f.windows[scope] <= limit, f.windows[scope], nil
}

type stubCheckout struct{ starts int }

func (s *stubCheckout) view(id string) (*checkout.View, error) {
	return &checkout.View{ID: id, State: checkout.StateAwaitingElementReady}, nil
}

func (s *stubCheckout) Start(context.Context, checkout.StartInput) (*checkout.View, error) {
	s.starts++
	return s.view(uuid.NewString())
}
func (s *stubCheckout) Get(_ context.Context, id string) (*checkout.View, error) { return s.view(id) }
func (s *stubCheckout) UpdateForm(_ context.Context, id string, _ map[string]string) (*checkout.View, error) {
	return s.view(id)
}
func (s *stubCheckout) PrepareSession(_ context.Context, id string) (*checkout.View, error) {
	return s.view(id)
}
func (s *stubCheckout) ElementReady(_ context.Context, id string) (*checkout.View, error) {
	return s.view(id)
}
func (s *stubCheckout) CreateOrder(_ context.Context, id string) (*checkout.View, error) {
	return s.view(id)
}
func (s *stubCheckout) Submit(_ context.Context, id string, _ checkout.SubmitInput) (*checkout.View, error) {
	return s.view(id)
}
func (s *stubCheckout) Cancel(_ context.Context, id string) (*checkout.View, error) {
	return s.view(id)
}
func (s *stubCheckout) ReportError(_ context.Context, id, _ string) (*checkout.View, error) {
	return s.view(id)
}

type stubOrders struct{ listed bool }

func (s *stubOrders) List(context.Context, enums.ProductType, pagination.Params) (*orders.ListResult, error) {
	s.listed = true
	return &orders.ListResult{}, nil
}

func (s *stubOrders) UpdateStatus(_ context.Context, kind enums.ProductType, id uuid.UUID, next enums.OrderStatus, _ *outbox.ActorRef) (*orders.Recorded, error) {
	return &orders.Recorded{ID: id, Kind: kind, Status: next}, nil
}

var testJWT = config.JWTConfig{Secret: "router-secret", Issuer: "corporatepranks-test"}

func testRouter(t *testing.T, deps Dependencies) http.Handler {
	t.Helper()
	cfg := &config.Config{
		App:       config.AppConfig{Env: "dev", Port: "8080", CORSOrigins: "*"},
		JWT:       testJWT,
		RateLimit: config.RateLimitConfig{Window: time.Minute, IPLimit: 2},
	}
	cfg.GCS.MaxUploadMB = 1
	deps.Config = cfg
	deps.Logger = logger.New(logger.Options{ServiceName: "router-test", Output: io.Discard})
	if deps.Store == nil {
		deps.Store = newFakeKV()
	}
	if deps.Drafts == nil {
		deps.Drafts = draft.NewMemoryStore(deps.Logger)
	}
	return NewRouter(deps)
}

func bearer(t *testing.T, role enums.ProfileRole) string {
	t.Helper()
	token, err := pkgauth.MintAccessToken(testJWT, time.Now(), time.Hour, pkgauth.AccessTokenPayload{
		UserID: uuid.New(),
		Role:   role,
	})
	require.NoError(t, err)
	return "Bearer " + token
}

func TestHealthLive(t *testing.T) {
	router := testRouter(t, Dependencies{})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	require.NotEmpty(t, resp.Header().Get("X-Request-Id"))
}

func TestHealthReadyReportsFailingDependency(t *testing.T) {
	router := testRouter(t, Dependencies{Pingers: map[string]controllers.Pinger{
		"db":    stubPinger{},
		"redis": stubPinger{err: context.DeadlineExceeded},
	}})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	admin := &stubOrders{}
	router := testRouter(t, Dependencies{Orders: admin})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders/physical", nil))
	require.Equal(t, http.StatusUnauthorized, resp.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders/physical", nil)
	req.Header.Set("Authorization", bearer(t, enums.ProfileRoleCustomer))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusForbidden, resp.Code)
	require.False(t, admin.listed)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders/physical", nil)
	req.Header.Set("Authorization", bearer(t, enums.ProfileRoleAdmin))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	require.True(t, admin.listed)
}

func TestCartRequiresAuth(t *testing.T) {
	router := testRouter(t, Dependencies{})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))
	require.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestCheckoutStartIsRateLimited(t *testing.T) {
	svc := &stubCheckout{}
	router := testRouter(t, Dependencies{Checkout: svc})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{"flow":"digital","product_id":"`+uuid.NewString()+`"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Client-Id", "client-abcdef12")
		req.RemoteAddr = "203.0.113.7:4000"
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		codes = append(codes, resp.Code)
	}
	require.Equal(t, []int{http.StatusCreated, http.StatusCreated, http.StatusTooManyRequests}, codes)
	require.Equal(t, 2, svc.starts)
}

func TestWebhookRoutesSkippedWithoutProviders(t *testing.T) {
	router := testRouter(t, Dependencies{})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", strings.NewReader("{}")))
	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestPayPalClientIDUnavailableWithoutClient(t *testing.T) {
	router := testRouter(t, Dependencies{})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/payments/paypal/client-id", nil))
	require.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type memoryLimiter struct {
	counts map[string]int64
	err    error
}

func (m *memoryLimiter) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	if m.err != nil {
		return false, 0, m.err
	}
	if m.counts == nil {
		m.counts = map[string]int64{}
	}
	m.counts[scope]++
	return m.counts[scope] <= limit, m.counts[scope], nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func checkoutRequest(ip, client string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
	req.RemoteAddr = ip + ":1234"
	if client != "" {
		req.Header.Set(ClientIDHeader, client)
	}
	return req
}

func TestRateLimitBlocksOwnerOverLimit(t *testing.T) {
	limiter := &memoryLimiter{}
	policy := RateLimitPolicy{Name: "checkout", Window: time.Minute, IPLimit: 10, OwnerLimit: 2}
	handler := RateLimit(policy, limiter, nil)(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, checkoutRequest("10.0.0.1", "client-aaaaaaaa"))
		codes = append(codes, resp.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes %v", codes)
	}

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, checkoutRequest("10.0.0.1", "client-bbbbbbbb"))
	if resp.Code != http.StatusOK {
		t.Fatalf("other owner should pass, got %d", resp.Code)
	}
}

func TestRateLimitBlocksIPOverLimit(t *testing.T) {
	limiter := &memoryLimiter{}
	policy := RateLimitPolicy{Name: "checkout", Window: time.Minute, IPLimit: 1}
	handler := RateLimit(policy, limiter, nil)(okHandler())

	handler.ServeHTTP(httptest.NewRecorder(), checkoutRequest("10.0.0.2", ""))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, checkoutRequest("10.0.0.2", ""))
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", resp.Code)
	}
	if limiter.counts["checkout:ip:10.0.0.2"] != 2 {
		t.Fatalf("unexpected counters %v", limiter.counts)
	}
}

func TestRateLimitFailsClosedOnLimiterError(t *testing.T) {
	limiter := &memoryLimiter{err: errors.New("redis down")}
	policy := RateLimitPolicy{Name: "checkout", Window: time.Minute, IPLimit: 1}
	handler := RateLimit(policy, limiter, nil)(okHandler())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, checkoutRequest("10.0.0.3", ""))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
}

func TestRateLimitDisabledPolicyPassesThrough(t *testing.T) {
	handler := RateLimit(RateLimitPolicy{}, &memoryLimiter{}, nil)(okHandler())
	for i := 0; i < 5; i++ {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, checkoutRequest("10.0.0.4", ""))
		if resp.Code != http.StatusOK {
			t.Fatalf("expected 200 got %d", resp.Code)
		}
	}
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	req := checkoutRequest("10.0.0.5", "")
	req.Header.Set("X-Forwarded-For", " 203.0.113.9 , 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.9" {
		t.Fatalf("unexpected ip %q", got)
	}
}

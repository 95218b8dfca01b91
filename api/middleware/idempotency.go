package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/corporatepranks/storefront-backend/api/responses"
	pkgerrors "github.com/corporatepranks/storefront-backend/pkg/errors"
	"github.com/corporatepranks/storefront-backend/pkg/logger"
	pkgredis "github.com/corporatepranks/storefront-backend/pkg/redis"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"

	// claimTTL bounds how long a crashed request can hold a key.
	claimTTL = 2 * time.Minute
)

// ReplayStore is the key/value surface the idempotency middleware needs.
type ReplayStore interface {
	pkgredis.IdempotencyStore
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// IdempotencyPolicy configures replay for one route.
type IdempotencyPolicy struct {
	TTL time.Duration
	// Required rejects requests without an Idempotency-Key header.
	Required bool
}

var (
	// PaymentIdempotency guards calls that move money.
	PaymentIdempotency = IdempotencyPolicy{TTL: 7 * 24 * time.Hour, Required: true}
	// DefaultIdempotency replays only when the client sends a key.
	DefaultIdempotency = IdempotencyPolicy{TTL: 24 * time.Hour}
)

const (
	statePending  = "pending"
	stateComplete = "complete"
)

type storedResponse struct {
	State       string `json:"state"`
	RequestHash string `json:"request_hash"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Idempotency claims the key before the handler runs and stores the response
// afterwards. Retries with the same body get the stored response, retries
// racing the first request get a conflict. Attach it per route with chi's With.
func Idempotency(store ReplayStore, policy IdempotencyPolicy, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		rp := &replayer{store: store, policy: policy, logg: logg, next: next}
		return http.HandlerFunc(rp.serve)
	}
}

type replayer struct {
	store  ReplayStore
	policy IdempotencyPolicy
	logg   *logger.Logger
	next   http.Handler
}

func (rp *replayer) serve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	if clientKey == "" {
		if rp.policy.Required {
			responses.WriteError(ctx, rp.logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
			return
		}
		rp.next.ServeHTTP(w, r)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		responses.WriteError(ctx, rp.logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	sum := sha256.Sum256(body)
	hash := hex.EncodeToString(sum[:])
	key := rp.store.IdempotencyKey(buildScope(r), clientKey)

	claimed, err := rp.claim(ctx, key, hash)
	if err != nil {
		responses.WriteError(ctx, rp.logg, w, err)
		return
	}
	if !claimed {
		rp.replay(ctx, w, key, hash)
		return
	}

	rec := &responseCapture{ResponseWriter: w}
	rp.next.ServeHTTP(rec, r)
	rp.complete(ctx, key, hash, rec)
}

func (rp *replayer) claim(ctx context.Context, key, hash string) (bool, error) {
	pending, err := json.Marshal(storedResponse{State: statePending, RequestHash: hash})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode idempotency claim")
	}
	ok, err := rp.store.SetNX(ctx, key, string(pending), claimTTL)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key")
	}
	return ok, nil
}

func (rp *replayer) replay(ctx context.Context, w http.ResponseWriter, key, hash string) {
	raw, err := rp.store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		// claim expired between SetNX and Get
		responses.WriteError(ctx, rp.logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotent request still in progress"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, rp.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotency record"))
		return
	}

	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		responses.WriteError(ctx, rp.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	switch {
	case stored.RequestHash != hash:
		responses.WriteError(ctx, rp.logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case stored.State != stateComplete:
		responses.WriteError(ctx, rp.logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotent request still in progress"))
	default:
		if stored.ContentType != "" {
			w.Header().Set("Content-Type", stored.ContentType)
		}
		w.Header().Set(replayedHeader, "true")
		w.WriteHeader(stored.Status)
		_, _ = w.Write(stored.Body)
	}
}

// complete stores the handler's response. 5xx releases the key so the client
// can retry with it.
func (rp *replayer) complete(ctx context.Context, key, hash string, rec *responseCapture) {
	status := rec.status
	if status == 0 {
		status = http.StatusOK
	}
	if status >= http.StatusInternalServerError {
		if err := rp.store.Del(ctx, key); err != nil {
			rp.logg.Error(ctx, "idempotency.release_failed", err)
		}
		return
	}

	payload, err := json.Marshal(storedResponse{
		State:       stateComplete,
		RequestHash: hash,
		Status:      status,
		ContentType: rec.Header().Get("Content-Type"),
		Body:        rec.body.Bytes(),
	})
	if err == nil {
		err = rp.store.Set(ctx, key, string(payload), rp.policy.TTL)
	}
	if err != nil {
		rp.logg.Error(ctx, "idempotency.store_failed", err)
	}
}

func buildScope(r *http.Request) string {
	owner := UserIDFromContext(r.Context())
	if owner == "" {
		owner = ClientIDFromRequest(r)
	}
	return owner + "|" + r.Method + "|" + r.URL.Path
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strings"
)

type contextKey string

const (
	ctxUserID contextKey = "user_id"
	ctxRole   contextKey = "actor_role"
)

// ClientIDHeader carries the browser-generated id that owns drafts and
// anonymous checkouts.
const ClientIDHeader = "X-Client-Id"

var clientIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{8,128}$`)

func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxUserID).(string); ok {
		return v
	}
	return ""
}

func RoleFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(string); ok {
		return v
	}
	return ""
}

// WithUserID injects the user identifier into the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxUserID, userID)
}

// WithRole injects the caller's role into the context.
func WithRole(ctx context.Context, role string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxRole, role)
}

// ClientIDFromRequest returns the X-Client-Id header when well formed.
func ClientIDFromRequest(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get(ClientIDHeader))
	if !clientIDPattern.MatchString(raw) {
		return ""
	}
	return raw
}

// OwnerFromRequest is the client id, falling back to the authenticated user.
func OwnerFromRequest(r *http.Request) string {
	if id := ClientIDFromRequest(r); id != "" {
		return id
	}
	if uid := UserIDFromContext(r.Context()); uid != "" {
		return "user-" + uid
	}
	return ""
}

package middleware

import (
	"net/http"
	"regexp"

	"github.com/google/uuid"

	"github.com/corporatepranks/storefront-backend/pkg/logger"
)

const RequestIDHeader = "X-Request-Id"

var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// RequestID echoes a well formed inbound id or mints one, and tags the
// request logger with it plus the storefront client id when present.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get(RequestIDHeader)
			if !requestIDPattern.MatchString(reqID) {
				reqID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, reqID)

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithRequestID(ctx, reqID)
				if clientID := ClientIDFromRequest(r); clientID != "" {
					ctx = logg.WithField(ctx, "client_id", clientID)
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

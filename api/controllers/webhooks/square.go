package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/corporatepranks/storefront-backend/api/responses"
	squarewebhook "github.com/corporatepranks/storefront-backend/internal/webhooks/square"
	pkgerrors "github.com/corporatepranks/storefront-backend/pkg/errors"
	"github.com/corporatepranks/storefront-backend/pkg/logger"
	"github.com/corporatepranks/storefront-backend/pkg/square"
)

type SquareWebhookService interface {
	HandleEvent(ctx context.Context, event *squarewebhook.SquareWebhookEvent) error
}

// squareVerifier is satisfied by *pkg/square.Client.
type squareVerifier interface {
	VerifySignature(payload []byte, header string) bool
}

// SquareWebhook handles payment events for the hosted checkout.
func SquareWebhook(svc SquareWebhookService, verifier squareVerifier, guard deliveryGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		switch {
		case svc == nil:
			unavailable(ctx, logg, w, "webhook service")
			return
		case verifier == nil:
			unavailable(ctx, logg, w, "square client")
			return
		case guard == nil:
			unavailable(ctx, logg, w, "idempotency guard")
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get(square.SignatureHeader)
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "square signature missing"))
			return
		}
		if !verifier.VerifySignature(payload, sigHeader) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid square signature"))
			return
		}

		var event squarewebhook.SquareWebhookEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode event"))
			return
		}

		eventID := strings.TrimSpace(event.EventID)
		if eventID == "" {
			eventID = event.Data.ID
		}
		deliver(ctx, w, logg, guard, "square", eventID, func() error {
			return svc.HandleEvent(ctx, &event)
		})
	}
}

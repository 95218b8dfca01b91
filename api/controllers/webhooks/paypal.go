package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/corporatepranks/storefront-backend/api/responses"
	pkgerrors "github.com/corporatepranks/storefront-backend/pkg/errors"
	"github.com/corporatepranks/storefront-backend/pkg/logger"
	"github.com/corporatepranks/storefront-backend/pkg/paypal"
)

type PayPalWebhookService interface {
	HandleEvent(ctx context.Context, event *paypal.WebhookEvent) error
}

// paypalVerifier is satisfied by *pkg/paypal.Client.
type paypalVerifier interface {
	VerifyWebhookSignature(ctx context.Context, headers http.Header, event json.RawMessage) (bool, error)
}

// PayPalWebhook handles capture events for the redirect checkout. PayPal
// verifies its own signatures, so a verification call precedes processing.
func PayPalWebhook(svc PayPalWebhookService, verifier paypalVerifier, guard deliveryGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		switch {
		case svc == nil:
			unavailable(ctx, logg, w, "webhook service")
			return
		case verifier == nil:
			unavailable(ctx, logg, w, "paypal client")
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
		if !json.Valid(payload) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "event body is not json"))
			return
		}

		ok, err := verifier.VerifyWebhookSignature(ctx, r.Header, payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "verify paypal signature"))
			return
		}
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid paypal signature"))
			return
		}

		var event paypal.WebhookEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode event"))
			return
		}

		deliver(ctx, w, logg, guard, "paypal", event.ID, func() error {
			return svc.HandleEvent(ctx, &event)
		})
	}
}

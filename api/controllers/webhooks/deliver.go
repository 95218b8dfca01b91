package webhooks

import (
	"context"
	"net/http"

	"github.com/corporatepranks/storefront-backend/api/responses"
	pkgerrors "github.com/corporatepranks/storefront-backend/pkg/errors"
	"github.com/corporatepranks/storefront-backend/pkg/logger"
)

type deliveryGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// deliver runs handle once per event id. A failed handle releases the id so
// the provider's retry is processed.
func deliver(ctx context.Context, w http.ResponseWriter, logg *logger.Logger, guard deliveryGuard, provider, eventID string, handle func() error) {
	if eventID == "" {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "event id missing"))
		return
	}
	ctx = logg.WithFields(ctx, map[string]any{"payment_provider": provider, "event_id": eventID})

	alreadyProcessed, err := guard.CheckAndMark(ctx, eventID)
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
		return
	}
	if alreadyProcessed {
		logg.Debug(ctx, "webhook event already processed")
		responses.WriteSuccess(w, nil)
		return
	}

	if err := handle(); err != nil {
		if derr := guard.Delete(ctx, eventID); derr != nil {
			logg.Error(ctx, "release webhook idempotency key failed", derr)
		}
		responses.WriteError(ctx, logg, w, err)
		return
	}

	logg.Info(ctx, "webhook event processed")
	responses.WriteSuccess(w, nil)
}

func unavailable(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, what string) {
	responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, what+" unavailable"))
}

package stripewebhook

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"

	"github.com/corporatepranks/storefront-backend/internal/reconcile"
	"github.com/corporatepranks/storefront-backend/internal/webhooks"
	"github.com/corporatepranks/storefront-backend/pkg/enums"
	pkgerrors "github.com/corporatepranks/storefront-backend/pkg/errors"
	"github.com/corporatepranks/storefront-backend/pkg/logger"
)

type ServiceParams struct {
	Recorder webhooks.Recorder
	Logger   *logger.Logger
}

type Service struct {
	recorder webhooks.Recorder
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Recorder == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "capture recorder required")
	}
	return &Service{recorder: params.Recorder, logg: params.Logger}, nil
}

// HandleEvent applies PaymentIntent outcomes. The intent id is both the
// checkout session id and the transaction id.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		pi, err := decodeIntent(event)
		if err != nil {
			return err
		}
		_, err = s.recorder.RecordCapture(ctx, reconcile.Capture{
			Provider:      enums.PaymentProviderStripe,
			SessionID:     pi.ID,
			TransactionID: pi.ID,
			AmountPaid:    decimal.New(pi.AmountReceived, -2),
		})
		return webhooks.IgnoreUnknown(err)
	case stripe.EventTypePaymentIntentPaymentFailed, stripe.EventTypePaymentIntentCanceled:
		pi, err := decodeIntent(event)
		if err != nil {
			return err
		}
		failure := reconcile.Failure{
			Provider:  enums.PaymentProviderStripe,
			SessionID: pi.ID,
			Cancelled: event.Type == stripe.EventTypePaymentIntentCanceled,
		}
		if pi.LastPaymentError != nil {
			failure.Reason = pi.LastPaymentError.Msg
		}
		return s.recorder.RecordFailure(ctx, failure)
	default:
		s.logg.Debug(s.logg.WithField(ctx, "event_type", string(event.Type)), "stripe event ignored")
		return nil
	}
}

func decodeIntent(event *stripe.Event) (*stripe.PaymentIntent, error) {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent")
	}
	if pi.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id missing")
	}
	return &pi, nil
}

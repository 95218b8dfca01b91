package paypalwebhook

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/corporatepranks/storefront-backend/internal/reconcile"
	"github.com/corporatepranks/storefront-backend/internal/webhooks"
	"github.com/corporatepranks/storefront-backend/pkg/enums"
	pkgerrors "github.com/corporatepranks/storefront-backend/pkg/errors"
	"github.com/corporatepranks/storefront-backend/pkg/logger"
	"github.com/corporatepranks/storefront-backend/pkg/paypal"
)

const (
	eventCaptureCompleted = "PAYMENT.CAPTURE.COMPLETED"
	eventCaptureDenied    = "PAYMENT.CAPTURE.DENIED"
	eventCaptureDeclined  = "PAYMENT.CAPTURE.DECLINED"
	eventOrderVoided      = "CHECKOUT.ORDER.VOIDED"
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

// HandleEvent applies capture outcomes. The PayPal order id is the checkout
// session id; the capture id is the transaction id.
func (s *Service) HandleEvent(ctx context.Context, event *paypal.WebhookEvent) error {
	if event == nil || len(event.Resource) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "paypal event resource required")
	}

	switch strings.ToUpper(event.EventType) {
	case eventCaptureCompleted:
		capture, err := decodeCapture(event)
		if err != nil {
			return err
		}
		_, err = s.recorder.RecordCapture(ctx, reconcile.Capture{
			Provider:      enums.PaymentProviderPayPal,
			SessionID:     capture.SupplementaryData.RelatedIDs.OrderID,
			TransactionID: capture.ID,
			AmountPaid:    captureAmount(capture),
		})
		return webhooks.IgnoreUnknown(err)
	case eventCaptureDenied, eventCaptureDeclined:
		capture, err := decodeCapture(event)
		if err != nil {
			return err
		}
		return s.recorder.RecordFailure(ctx, reconcile.Failure{
			Provider:  enums.PaymentProviderPayPal,
			SessionID: capture.SupplementaryData.RelatedIDs.OrderID,
			Reason:    "paypal capture " + strings.ToLower(capture.Status),
		})
	case eventOrderVoided:
		var order struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(event.Resource, &order); err != nil || order.ID == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "paypal order id missing")
		}
		return s.recorder.RecordFailure(ctx, reconcile.Failure{
			Provider:  enums.PaymentProviderPayPal,
			SessionID: order.ID,
			Cancelled: true,
		})
	default:
		s.logg.Debug(s.logg.WithField(ctx, "event_type", event.EventType), "paypal event ignored")
		return nil
	}
}

func decodeCapture(event *paypal.WebhookEvent) (*paypal.CaptureResource, error) {
	var capture paypal.CaptureResource
	if err := json.Unmarshal(event.Resource, &capture); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode capture resource")
	}
	if capture.ID == "" || capture.SupplementaryData.RelatedIDs.OrderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "capture or order id missing")
	}
	return &capture, nil
}

func captureAmount(c *paypal.CaptureResource) decimal.Decimal {
	amount, err := decimal.NewFromString(c.Amount.Value)
	if err != nil {
		return decimal.Zero
	}
	return amount
}

package squarewebhook

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

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

type SquareWebhookEvent struct {
	EventID string            `json:"event_id"`
	Type    string            `json:"type"`
	Data    SquareWebhookData `json:"data"`
}

type SquareWebhookData struct {
	Type   string              `json:"type"`
	ID     string              `json:"id"`
	Object SquareWebhookObject `json:"object"`
}

type SquareWebhookObject struct {
	Payment *SquarePayment `json:"payment"`
}

// SquarePayment is the subset of a Square payment the webhook needs.
// ReferenceID carries the checkout session id set at creation.
type SquarePayment struct {
	ID          string       `json:"id"`
	Status      string       `json:"status"`
	ReferenceID string       `json:"reference_id"`
	AmountMoney *SquareMoney `json:"amount_money"`
	TotalMoney  *SquareMoney `json:"total_money"`
}

type SquareMoney struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// HandleEvent processes payment.created and payment.updated deliveries.
func (s *Service) HandleEvent(ctx context.Context, event *SquareWebhookEvent) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "square event required")
	}

	switch strings.ToLower(event.Type) {
	case "payment.created", "payment.updated":
		payment := event.Data.Object.Payment
		if payment == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "payment payload missing")
		}
		if payment.ReferenceID == "" {
			s.logg.Debug(s.logg.WithField(ctx, "payment_id", payment.ID), "square payment without reference ignored")
			return nil
		}
		return s.applyPayment(ctx, payment)
	default:
		return nil
	}
}

func (s *Service) applyPayment(ctx context.Context, payment *SquarePayment) error {
	switch strings.ToUpper(payment.Status) {
	case "COMPLETED":
		_, err := s.recorder.RecordCapture(ctx, reconcile.Capture{
			Provider:      enums.PaymentProviderSquare,
			SessionID:     payment.ReferenceID,
			TransactionID: payment.ID,
			AmountPaid:    paidAmount(payment),
		})
		return webhooks.IgnoreUnknown(err)
	case "FAILED", "CANCELED":
		return s.recorder.RecordFailure(ctx, reconcile.Failure{
			Provider:  enums.PaymentProviderSquare,
			SessionID: payment.ReferenceID,
			Cancelled: strings.EqualFold(payment.Status, "CANCELED"),
			Reason:    "square payment " + strings.ToLower(payment.Status),
		})
	default:
		// APPROVED and PENDING settle later in another payment.updated.
		return nil
	}
}

func paidAmount(p *SquarePayment) decimal.Decimal {
	money := p.TotalMoney
	if money == nil {
		money = p.AmountMoney
	}
	if money == nil {
		return decimal.Zero
	}
	return decimal.New(money.Amount, -2)
}

package payments

import (
	"context"
	"strings"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"

	"github.com/corporatepranks/storefront-backend/pkg/enums"
	pkgerrors "github.com/corporatepranks/storefront-backend/pkg/errors"
	"github.com/corporatepranks/storefront-backend/pkg/square"
)

type squarePayments interface {
	CreatePayment(ctx context.Context, params square.PaymentCreateParams) (*sq.Payment, error)
	LocationID() string
}

// SquareProvider drives the Square Web Payments card form. The session id doubles as the
// idempotency key and payment reference; the location id is handed to the form as its secret.
type SquareProvider struct {
	payments squarePayments
}

func NewSquareProvider(payments squarePayments) (*SquareProvider, error) {
	if payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "square client required")
	}
	return &SquareProvider{payments: payments}, nil
}

func (p *SquareProvider) Name() enums.PaymentProvider { return enums.PaymentProviderSquare }

func (p *SquareProvider) Kind() Kind { return KindHosted }

func (p *SquareProvider) InitiateSession(_ context.Context, req SessionRequest) (*Session, error) {
	if err := validateSessionRequest(req); err != nil {
		return nil, err
	}
	return &Session{
		ID:           uuid.NewString(),
		ClientSecret: p.payments.LocationID(),
		Amount:       req.Amount,
		Currency:     req.Currency,
	}, nil
}

func (p *SquareProvider) Confirm(ctx context.Context, req ConfirmRequest) (*Result, error) {
	if req.SessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	if strings.TrimSpace(req.PaymentMethod) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "card token is required")
	}
	payment, err := p.payments.CreatePayment(ctx, square.PaymentCreateParams{
		AmountCents:    amountCents(req.Amount),
		Currency:       req.Currency,
		SourceID:       req.PaymentMethod,
		IdempotencyKey: req.SessionID,
		ReferenceID:    req.SessionID,
		BuyerEmail:     req.BuyerEmail,
	})
	if err != nil {
		if res, ok := declined(err); ok {
			return res, nil
		}
		return nil, err
	}
	return squareResult(payment, req), nil
}

// Cancel is local; an unconfirmed Square session never reached the provider.
func (p *SquareProvider) Cancel(context.Context, string) error {
	return nil
}

func squareResult(payment *sq.Payment, req ConfirmRequest) *Result {
	status := ""
	if payment.GetStatus() != nil {
		status = *payment.GetStatus()
	}
	res := &Result{ProviderStatus: status, AmountPaid: req.Amount}
	if payment.GetID() != nil {
		res.TransactionID = *payment.GetID()
	}
	if money := payment.GetAmountMoney(); money != nil && money.GetAmount() != nil {
		res.AmountPaid = fromCents(*money.GetAmount())
	}
	switch status {
	case "COMPLETED", "APPROVED":
		res.Outcome = OutcomeSucceeded
	case "CANCELED":
		res.Outcome = OutcomeCancelled
		res.Message = "payment was cancelled"
	default:
		res.Outcome = OutcomeFailed
		res.Message = "payment was not completed (" + strings.ToLower(status) + ")"
	}
	return res
}

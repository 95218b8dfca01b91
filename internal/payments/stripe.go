package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/corporatepranks/storefront-backend/pkg/enums"
	pkgerrors "github.com/corporatepranks/storefront-backend/pkg/errors"
	"github.com/corporatepranks/storefront-backend/pkg/logger"
	pkgstripe "github.com/corporatepranks/storefront-backend/pkg/stripe"
)

// StripeProvider drives the hosted card element through PaymentIntents.
type StripeProvider struct {
	intents pkgstripe.PaymentIntents
	logg    *logger.Logger
}

func NewStripeProvider(intents pkgstripe.PaymentIntents, logg *logger.Logger) (*StripeProvider, error) {
	if intents == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe payment intents required")
	}
	return &StripeProvider{intents: intents, logg: logg}, nil
}

func (p *StripeProvider) Name() enums.PaymentProvider { return enums.PaymentProviderStripe }

func (p *StripeProvider) Kind() Kind { return KindHosted }

// InitiateSession creates a PaymentIntent. The idempotency key pins one intent per checkout,
// amount and attempt.
func (p *StripeProvider) InitiateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	if err := validateSessionRequest(req); err != nil {
		return nil, err
	}
	cents := amountCents(req.Amount)
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(cents),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if req.BuyerEmail != "" {
		params.ReceiptEmail = stripe.String(req.BuyerEmail)
	}
	params.AddMetadata("checkout_id", req.CheckoutID)
	params.AddMetadata("flow", req.Flow)
	if req.UserID != "" {
		params.AddMetadata("user_id", req.UserID)
	}
	if req.BuyerEmail != "" {
		params.AddMetadata("email", req.BuyerEmail)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.SetIdempotencyKey(fmt.Sprintf("checkout:%s:%d:%d", req.CheckoutID, cents, req.Attempt))

	pi, err := p.intents.Create(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "could not start payment session")
	}
	return &Session{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       req.Amount,
		Currency:     req.Currency,
	}, nil
}

// Confirm confirms the intent with a payment method when one is supplied. Without one the client
// already confirmed through the element and the intent is only retrieved.
func (p *StripeProvider) Confirm(ctx context.Context, req ConfirmRequest) (*Result, error) {
	if req.SessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}

	var (
		pi  *stripe.PaymentIntent
		err error
	)
	if req.Resume {
		// the earlier confirm may have landed; confirm again only if it did not
		pi, err = p.intents.Get(ctx, req.SessionID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "could not load payment")
		}
		if !awaitingConfirm(pi.Status) || req.PaymentMethod == "" {
			return intentResult(pi), nil
		}
	}
	if req.PaymentMethod != "" {
		params := &stripe.PaymentIntentConfirmParams{PaymentMethod: stripe.String(req.PaymentMethod)}
		if req.ReturnURL != "" {
			params.ReturnURL = stripe.String(req.ReturnURL)
		}
		pi, err = p.intents.Confirm(ctx, req.SessionID, params)
	} else {
		pi, err = p.intents.Get(ctx, req.SessionID)
	}
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
			p.logg.Warn(ctx, fmt.Sprintf("stripe card declined: %s", stripeErr.Code))
			return &Result{Outcome: OutcomeFailed, ProviderStatus: string(stripeErr.Code), Message: stripeErr.Msg}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "could not confirm payment")
	}
	return intentResult(pi), nil
}

func (p *StripeProvider) Cancel(ctx context.Context, sessionID string) error {
	if _, err := p.intents.Cancel(ctx, sessionID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "could not cancel payment session")
	}
	return nil
}

func awaitingConfirm(status stripe.PaymentIntentStatus) bool {
	return status == stripe.PaymentIntentStatusRequiresPaymentMethod ||
		status == stripe.PaymentIntentStatusRequiresConfirmation
}

func intentResult(pi *stripe.PaymentIntent) *Result {
	res := &Result{
		TransactionID:  pi.ID,
		ProviderStatus: string(pi.Status),
	}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded, stripe.PaymentIntentStatusRequiresCapture:
		res.Outcome = OutcomeSucceeded
		received := pi.AmountReceived
		if received == 0 {
			received = pi.Amount
		}
		res.AmountPaid = fromCents(received)
	case stripe.PaymentIntentStatusCanceled:
		res.Outcome = OutcomeCancelled
		res.Message = "payment was cancelled"
	default:
		res.Outcome = OutcomeFailed
		if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
			res.Message = pi.LastPaymentError.Msg
		} else {
			res.Message = fmt.Sprintf("payment was not completed (%s)", pi.Status)
		}
	}
	return res
}

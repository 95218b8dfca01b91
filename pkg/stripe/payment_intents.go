package stripe

import (
	"context"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"
)

// PaymentIntents is the subset of the PaymentIntent API the checkout flows use.
type PaymentIntents interface {
	Create(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(ctx context.Context, id string) (*stripe.PaymentIntent, error)
	Confirm(ctx context.Context, id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error)
	Cancel(ctx context.Context, id string) (*stripe.PaymentIntent, error)
}

type paymentIntentsWrapper struct{}

// NewPaymentIntents returns the live PaymentIntent API. The client must be initialized first
// so the package-level key is set.
func NewPaymentIntents(api *Client) PaymentIntents {
	if api == nil {
		return nil
	}
	return paymentIntentsWrapper{}
}

func (paymentIntentsWrapper) Create(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if params != nil {
		params.Context = ctx
	}
	return paymentintent.New(params)
}

func (paymentIntentsWrapper) Get(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	return paymentintent.Get(id, params)
}

func (paymentIntentsWrapper) Confirm(ctx context.Context, id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error) {
	if params == nil {
		params = &stripe.PaymentIntentConfirmParams{}
	}
	params.Context = ctx
	return paymentintent.Confirm(id, params)
}

func (paymentIntentsWrapper) Cancel(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonAbandoned)),
	}
	params.Context = ctx
	return paymentintent.Cancel(id, params)
}

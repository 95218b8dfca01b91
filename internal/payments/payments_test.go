package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	sq "github.com/square/square-go-sdk"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/corporatepranks/storefront-backend/pkg/errors"
	"github.com/corporatepranks/storefront-backend/pkg/paypal"
	"github.com/corporatepranks/storefront-backend/pkg/square"
)

type fakeIntents struct {
	created    []*stripe.PaymentIntentParams
	createResp *stripe.PaymentIntent
	getResp    *stripe.PaymentIntent
	confirmErr error
	confirmed  []string
	cancelled  []string
}

func (f *fakeIntents) Create(_ context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	f.created = append(f.created, params)
	return f.createResp, nil
}

func (f *fakeIntents) Get(_ context.Context, id string) (*stripe.PaymentIntent, error) {
	return f.getResp, nil
}

func (f *fakeIntents) Confirm(_ context.Context, id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error) {
	f.confirmed = append(f.confirmed, stripe.StringValue(params.PaymentMethod))
	if f.confirmErr != nil {
		return nil, f.confirmErr
	}
	return f.getResp, nil
}

func (f *fakeIntents) Cancel(_ context.Context, id string) (*stripe.PaymentIntent, error) {
	f.cancelled = append(f.cancelled, id)
	return &stripe.PaymentIntent{ID: id, Status: stripe.PaymentIntentStatusCanceled}, nil
}

func TestStripeInitiateSession(t *testing.T) {
	intents := &fakeIntents{createResp: &stripe.PaymentIntent{ID: "pi_1", ClientSecret: "pi_1_secret"}}
	p, err := NewStripeProvider(intents, nil)
	require.NoError(t, err)

	sess, err := p.InitiateSession(context.Background(), SessionRequest{
		CheckoutID: "chk-1",
		Flow:       "funnel",
		Amount:     decimal.RequireFromString("24.99"),
		Currency:   "USD",
		BuyerEmail: "a@b.co",
	})
	require.NoError(t, err)
	require.Equal(t, "pi_1", sess.ID)
	require.Equal(t, "pi_1_secret", sess.ClientSecret)

	require.Len(t, intents.created, 1)
	params := intents.created[0]
	require.Equal(t, int64(2499), *params.Amount)
	require.Equal(t, "usd", *params.Currency)
	require.Equal(t, "checkout:chk-1:2499:0", *params.IdempotencyKey)
	require.Equal(t, "chk-1", params.Metadata["checkout_id"])
	require.Equal(t, "a@b.co", params.Metadata["email"])
}

func TestStripeIdempotencyKeyTracksAttempt(t *testing.T) {
	intents := &fakeIntents{createResp: &stripe.PaymentIntent{ID: "pi_1"}}
	p, _ := NewStripeProvider(intents, nil)
	req := SessionRequest{CheckoutID: "chk-1", Amount: decimal.RequireFromString("20"), Currency: "usd"}

	for attempt := range 3 {
		req.Attempt = attempt
		_, err := p.InitiateSession(context.Background(), req)
		require.NoError(t, err)
	}
	keys := make([]string, 0, len(intents.created))
	for _, params := range intents.created {
		keys = append(keys, *params.IdempotencyKey)
	}
	require.Equal(t, []string{"checkout:chk-1:2000:0", "checkout:chk-1:2000:1", "checkout:chk-1:2000:2"}, keys)
}

func TestStripeResumeChecksIntentBeforeConfirming(t *testing.T) {
	t.Run("already paid", func(t *testing.T) {
		intents := &fakeIntents{getResp: &stripe.PaymentIntent{ID: "pi_1", Status: stripe.PaymentIntentStatusSucceeded, Amount: 2000}}
		p, _ := NewStripeProvider(intents, nil)
		res, err := p.Confirm(context.Background(), ConfirmRequest{SessionID: "pi_1", PaymentMethod: "pm_card", Resume: true})
		require.NoError(t, err)
		require.Equal(t, OutcomeSucceeded, res.Outcome)
		require.Empty(t, intents.confirmed)
	})

	t.Run("never confirmed", func(t *testing.T) {
		intents := &fakeIntents{getResp: &stripe.PaymentIntent{ID: "pi_1", Status: stripe.PaymentIntentStatusRequiresPaymentMethod}}
		p, _ := NewStripeProvider(intents, nil)
		_, err := p.Confirm(context.Background(), ConfirmRequest{SessionID: "pi_1", PaymentMethod: "pm_card", Resume: true})
		require.NoError(t, err)
		require.Equal(t, []string{"pm_card"}, intents.confirmed)
	})
}

func TestStripeInitiateSessionRejectsZeroAmount(t *testing.T) {
	intents := &fakeIntents{}
	p, _ := NewStripeProvider(intents, nil)
	_, err := p.InitiateSession(context.Background(), SessionRequest{CheckoutID: "c", Amount: decimal.Zero, Currency: "usd"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	require.Empty(t, intents.created)
}

func TestStripeConfirmStatusMapping(t *testing.T) {
	cases := []struct {
		name    string
		intent  *stripe.PaymentIntent
		outcome Outcome
		message string
	}{
		{"succeeded", &stripe.PaymentIntent{ID: "pi_1", Status: stripe.PaymentIntentStatusSucceeded, AmountReceived: 1498}, OutcomeSucceeded, ""},
		{"requires capture", &stripe.PaymentIntent{ID: "pi_1", Status: stripe.PaymentIntentStatusRequiresCapture, Amount: 1498}, OutcomeSucceeded, ""},
		{"canceled", &stripe.PaymentIntent{ID: "pi_1", Status: stripe.PaymentIntentStatusCanceled}, OutcomeCancelled, "payment was cancelled"},
		{"failed", &stripe.PaymentIntent{
			ID:               "pi_1",
			Status:           stripe.PaymentIntentStatusRequiresPaymentMethod,
			LastPaymentError: &stripe.Error{Msg: "Your card has insufficient funds."},
		}, OutcomeFailed, "Your card has insufficient funds."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, _ := NewStripeProvider(&fakeIntents{getResp: tc.intent}, nil)
			res, err := p.Confirm(context.Background(), ConfirmRequest{SessionID: "pi_1"})
			require.NoError(t, err)
			require.Equal(t, tc.outcome, res.Outcome)
			require.Equal(t, tc.message, res.Message)
			require.Equal(t, "pi_1", res.TransactionID)
			if tc.outcome == OutcomeSucceeded {
				require.Equal(t, "14.98", res.AmountPaid.StringFixed(2))
			}
		})
	}
}

func TestStripeConfirmCardErrorIsVerbatimDecline(t *testing.T) {
	intents := &fakeIntents{confirmErr: &stripe.Error{
		Type: stripe.ErrorTypeCard,
		Code: stripe.ErrorCodeCardDeclined,
		Msg:  "Your card was declined.",
	}}
	p, _ := NewStripeProvider(intents, nil)

	res, err := p.Confirm(context.Background(), ConfirmRequest{SessionID: "pi_1", PaymentMethod: "pm_card"})
	require.NoError(t, err)
	require.Equal(t, OutcomeFailed, res.Outcome)
	require.Equal(t, "Your card was declined.", res.Message)
	require.Equal(t, []string{"pm_card"}, intents.confirmed)
}

func TestStripeConfirmTransportErrorIsDependency(t *testing.T) {
	intents := &fakeIntents{confirmErr: errors.New("connection reset")}
	p, _ := NewStripeProvider(intents, nil)
	_, err := p.Confirm(context.Background(), ConfirmRequest{SessionID: "pi_1", PaymentMethod: "pm"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

type fakeOrders struct {
	createParams []paypal.CreateOrderParams
	captureResp  *paypal.Order
	captureErr   error
}

func (f *fakeOrders) CreateOrder(_ context.Context, params paypal.CreateOrderParams) (*paypal.Order, error) {
	f.createParams = append(f.createParams, params)
	return &paypal.Order{ID: "ORDER-" + params.RequestID[:4], Status: paypal.StatusCreated}, nil
}

func (f *fakeOrders) CaptureOrder(_ context.Context, orderID, requestID string) (*paypal.Order, error) {
	return f.captureResp, f.captureErr
}

func TestPayPalInitiateMintsFreshOrders(t *testing.T) {
	orders := &fakeOrders{}
	p, _ := NewPayPalProvider(orders)
	req := SessionRequest{CheckoutID: "chk-1", Flow: "cart", Amount: decimal.RequireFromString("12.5"), Currency: "usd"}

	_, err := p.InitiateSession(context.Background(), req)
	require.NoError(t, err)
	_, err = p.InitiateSession(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, orders.createParams, 2)
	require.NotEqual(t, orders.createParams[0].RequestID, orders.createParams[1].RequestID)
	require.Equal(t, "USD", orders.createParams[0].Currency)
	require.Equal(t, "chk-1", orders.createParams[0].CustomID)
}

func TestPayPalConfirmUsesCaptureID(t *testing.T) {
	orders := &fakeOrders{captureResp: &paypal.Order{
		ID:     "ORDER-1",
		Status: paypal.StatusCompleted,
		PurchaseUnits: []paypal.PurchaseUnit{{Payments: &paypal.Payments{Captures: []paypal.Capture{{
			ID: "CAP-1", Status: "COMPLETED", Amount: paypal.Money{CurrencyCode: "USD", Value: "12.50"},
		}}}}},
	}}
	p, _ := NewPayPalProvider(orders)

	res, err := p.Confirm(context.Background(), ConfirmRequest{SessionID: "ORDER-1"})
	require.NoError(t, err)
	require.Equal(t, OutcomeSucceeded, res.Outcome)
	require.Equal(t, "CAP-1", res.TransactionID)
	require.Equal(t, "12.5", res.AmountPaid.String())
}

func TestPayPalConfirmFallsBackToOrderID(t *testing.T) {
	orders := &fakeOrders{captureResp: &paypal.Order{ID: "ORDER-2", Status: paypal.StatusCompleted}}
	p, _ := NewPayPalProvider(orders)
	res, err := p.Confirm(context.Background(), ConfirmRequest{SessionID: "ORDER-2", Amount: decimal.NewFromInt(5)})
	require.NoError(t, err)
	require.Equal(t, "ORDER-2", res.TransactionID)
	require.True(t, res.AmountPaid.Equal(decimal.NewFromInt(5)))
}

func TestPayPalConfirmDecline(t *testing.T) {
	decline := pkgerrors.Wrap(pkgerrors.CodeDeclined, &paypal.DeclineError{Issue: "INSTRUMENT_DECLINED", Message: "The instrument presented was declined."}, "The instrument presented was declined.")
	p, _ := NewPayPalProvider(&fakeOrders{captureErr: decline})

	res, err := p.Confirm(context.Background(), ConfirmRequest{SessionID: "ORDER-3"})
	require.NoError(t, err)
	require.Equal(t, OutcomeFailed, res.Outcome)
	require.Equal(t, "The instrument presented was declined.", res.Message)
}

func TestPayPalConfirmNotCompleted(t *testing.T) {
	p, _ := NewPayPalProvider(&fakeOrders{captureResp: &paypal.Order{ID: "ORDER-4", Status: paypal.StatusApproved}})
	res, err := p.Confirm(context.Background(), ConfirmRequest{SessionID: "ORDER-4"})
	require.NoError(t, err)
	require.Equal(t, OutcomeFailed, res.Outcome)
}

type fakeSquare struct {
	params  []square.PaymentCreateParams
	payment *sq.Payment
	err     error
}

func (f *fakeSquare) CreatePayment(_ context.Context, params square.PaymentCreateParams) (*sq.Payment, error) {
	f.params = append(f.params, params)
	return f.payment, f.err
}

func (f *fakeSquare) LocationID() string { return "LOC-1" }

func strPtr(s string) *string { return &s }

func TestSquareSessionAndConfirm(t *testing.T) {
	amount := int64(1998)
	fake := &fakeSquare{payment: &sq.Payment{
		ID:          strPtr("PAY-1"),
		Status:      strPtr("COMPLETED"),
		AmountMoney: &sq.Money{Amount: &amount},
	}}
	p, _ := NewSquareProvider(fake)

	sess, err := p.InitiateSession(context.Background(), SessionRequest{CheckoutID: "c", Amount: decimal.RequireFromString("19.98"), Currency: "usd"})
	require.NoError(t, err)
	require.Equal(t, "LOC-1", sess.ClientSecret)
	require.NotEmpty(t, sess.ID)

	res, err := p.Confirm(context.Background(), ConfirmRequest{SessionID: sess.ID, PaymentMethod: "cnon:ok", Amount: sess.Amount, Currency: "usd"})
	require.NoError(t, err)
	require.Equal(t, OutcomeSucceeded, res.Outcome)
	require.Equal(t, "PAY-1", res.TransactionID)
	require.Equal(t, "19.98", res.AmountPaid.StringFixed(2))

	require.Len(t, fake.params, 1)
	require.Equal(t, sess.ID, fake.params[0].IdempotencyKey)
	require.Equal(t, sess.ID, fake.params[0].ReferenceID)
	require.Equal(t, int64(1998), fake.params[0].AmountCents)
}

func TestSquareConfirmDecline(t *testing.T) {
	fake := &fakeSquare{err: pkgerrors.Wrap(pkgerrors.CodeDeclined, errors.New("402"), "Card declined.")}
	p, _ := NewSquareProvider(fake)
	res, err := p.Confirm(context.Background(), ConfirmRequest{SessionID: "s", PaymentMethod: "cnon:bad", Amount: decimal.NewFromInt(1), Currency: "usd"})
	require.NoError(t, err)
	require.Equal(t, OutcomeFailed, res.Outcome)
	require.Equal(t, "Card declined.", res.Message)
}

func TestSquareConfirmRequiresToken(t *testing.T) {
	p, _ := NewSquareProvider(&fakeSquare{})
	_, err := p.Confirm(context.Background(), ConfirmRequest{SessionID: "s"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

type recordingObserver struct {
	sessions int
	ops      []string
}

func (r *recordingObserver) SessionInitiated(string) { r.sessions++ }

func (r *recordingObserver) ObserveProviderCall(provider, op string, _ time.Duration) {
	r.ops = append(r.ops, provider+":"+op)
}

func TestInstrumentRecordsCalls(t *testing.T) {
	obs := &recordingObserver{}
	p := Instrument(mustPayPal(t, &fakeOrders{captureResp: &paypal.Order{ID: "O", Status: paypal.StatusCompleted}}), obs)

	_, err := p.InitiateSession(context.Background(), SessionRequest{CheckoutID: "c", Amount: decimal.NewFromInt(3), Currency: "usd"})
	require.NoError(t, err)
	_, err = p.Confirm(context.Background(), ConfirmRequest{SessionID: "O"})
	require.NoError(t, err)

	require.Equal(t, 1, obs.sessions)
	require.Equal(t, []string{"paypal:initiate", "paypal:confirm"}, obs.ops)
	require.Equal(t, KindRedirect, p.Kind())
}

func TestSelectHosted(t *testing.T) {
	s, _ := NewStripeProvider(&fakeIntents{}, nil)
	q, _ := NewSquareProvider(&fakeSquare{})

	got, err := SelectHosted("square", s, q)
	require.NoError(t, err)
	require.Equal(t, q, got)

	got, err = SelectHosted("", s, q)
	require.NoError(t, err)
	require.Equal(t, s, got)

	_, err = SelectHosted("adyen", s, q)
	require.Error(t, err)

	_, err = Providers{}.For(KindHosted)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func mustPayPal(t *testing.T, orders paypalOrders) *PayPalProvider {
	t.Helper()
	p, err := NewPayPalProvider(orders)
	require.NoError(t, err)
	return p
}

package payments

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/corporatepranks/storefront-backend/pkg/enums"
	pkgerrors "github.com/corporatepranks/storefront-backend/pkg/errors"
)

// Kind tells the checkout which widget family a provider drives.
type Kind string

const (
	// KindHosted providers render an embedded card element backed by a session created up front.
	KindHosted Kind = "hosted"
	// KindRedirect providers mint an order when the buyer clicks and approve it in a popup.
	KindRedirect Kind = "redirect"
)

type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// SessionRequest carries what a provider needs to mint a session for one checkout.
type SessionRequest struct {
	CheckoutID  string
	Flow        string
	Amount      decimal.Decimal
	Currency    string
	BuyerEmail  string
	UserID      string
	Description string
	Metadata    map[string]string
	// Attempt is bumped by the checkout each time it discards a session, so a
	// replacement at the same amount is not answered with the discarded one.
	Attempt int
}

// Session is the provider handle returned to the widget.
type Session struct {
	ID           string          `json:"session_id"`
	ClientSecret string          `json:"client_secret,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
}

type ConfirmRequest struct {
	SessionID     string
	CheckoutID    string
	PaymentMethod string
	Amount        decimal.Decimal
	Currency      string
	BuyerEmail    string
	ReturnURL     string
	// Resume is set when an earlier confirm of the same session ended without a verdict.
	Resume bool
}

// Result is the provider's verdict on a confirmation. Declines are results, not errors.
type Result struct {
	Outcome        Outcome
	TransactionID  string
	AmountPaid     decimal.Decimal
	ProviderStatus string
	Message        string
}

// Provider is the capability interface the checkout orchestrator depends on.
type Provider interface {
	Name() enums.PaymentProvider
	Kind() Kind
	InitiateSession(ctx context.Context, req SessionRequest) (*Session, error)
	Confirm(ctx context.Context, req ConfirmRequest) (*Result, error)
	Cancel(ctx context.Context, sessionID string) error
}

// CallObserver receives provider call timings.
type CallObserver interface {
	SessionInitiated(provider string)
	ObserveProviderCall(provider, op string, d time.Duration)
}

func amountCents(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func fromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

func validateSessionRequest(req SessionRequest) error {
	if req.CheckoutID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "checkout id is required")
	}
	if !req.Amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if req.Currency == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "currency is required")
	}
	return nil
}

// declined turns a provider decline error into a failed Result with the provider text verbatim.
func declined(err error) (*Result, bool) {
	if !pkgerrors.IsCode(err, pkgerrors.CodeDeclined) {
		return nil, false
	}
	msg := err.Error()
	if typed := pkgerrors.As(err); typed != nil {
		msg = typed.Message()
	}
	return &Result{Outcome: OutcomeFailed, Message: msg}, true
}

package payments

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/corporatepranks/storefront-backend/pkg/enums"
	pkgerrors "github.com/corporatepranks/storefront-backend/pkg/errors"
	"github.com/corporatepranks/storefront-backend/pkg/paypal"
)

type paypalOrders interface {
	CreateOrder(ctx context.Context, params paypal.CreateOrderParams) (*paypal.Order, error)
	CaptureOrder(ctx context.Context, orderID, requestID string) (*paypal.Order, error)
}

// PayPalProvider drives the redirect button: an order per click, captured on approval.
type PayPalProvider struct {
	orders paypalOrders
}

func NewPayPalProvider(orders paypalOrders) (*PayPalProvider, error) {
	if orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "paypal client required")
	}
	return &PayPalProvider{orders: orders}, nil
}

func (p *PayPalProvider) Name() enums.PaymentProvider { return enums.PaymentProviderPayPal }

func (p *PayPalProvider) Kind() Kind { return KindRedirect }

// InitiateSession mints a fresh PayPal order. Every call is a new order.
func (p *PayPalProvider) InitiateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	if err := validateSessionRequest(req); err != nil {
		return nil, err
	}
	order, err := p.orders.CreateOrder(ctx, paypal.CreateOrderParams{
		Amount:      req.Amount,
		Currency:    strings.ToUpper(req.Currency),
		ReferenceID: req.Flow,
		CustomID:    req.CheckoutID,
		Description: req.Description,
		RequestID:   uuid.NewString(),
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "could not create paypal order")
	}
	return &Session{ID: order.ID, Amount: req.Amount, Currency: req.Currency}, nil
}

// Confirm captures the approved order. The transaction id is the capture id, or the order id when
// PayPal returns no capture.
func (p *PayPalProvider) Confirm(ctx context.Context, req ConfirmRequest) (*Result, error) {
	if req.SessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "paypal order id is required")
	}
	order, err := p.orders.CaptureOrder(ctx, req.SessionID, "capture-"+req.SessionID)
	if err != nil {
		if res, ok := declined(err); ok {
			return res, nil
		}
		return nil, err
	}

	res := &Result{TransactionID: order.ID, ProviderStatus: order.Status, AmountPaid: req.Amount}
	capture := order.FirstCapture()
	if capture != nil {
		res.TransactionID = capture.ID
		if amt, err := decimal.NewFromString(capture.Amount.Value); err == nil {
			res.AmountPaid = amt
		}
	}
	switch {
	case order.Status != paypal.StatusCompleted:
		res.Outcome = OutcomeFailed
		res.Message = "paypal order was not completed (" + order.Status + ")"
	case capture != nil && capture.Status != "" && capture.Status != paypal.StatusCompleted && capture.Status != "PENDING":
		res.Outcome = OutcomeFailed
		res.ProviderStatus = capture.Status
		res.Message = "paypal capture " + strings.ToLower(capture.Status)
	default:
		res.Outcome = OutcomeSucceeded
	}
	return res, nil
}

// Cancel is local. Unapproved PayPal orders expire on their own.
func (p *PayPalProvider) Cancel(context.Context, string) error {
	return nil
}

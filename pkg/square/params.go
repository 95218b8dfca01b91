package square

import (
	"strings"

	sq "github.com/square/square-go-sdk"
)

const defaultCurrency = sq.Currency("USD")

// PaymentCreateParams is one card charge. Empty optional fields are left off
// the request.
type PaymentCreateParams struct {
	AmountCents int64
	Currency    string
	LocationID  string
	CustomerID  string
	// SourceID is the card nonce from the Web Payments SDK.
	SourceID       string
	IdempotencyKey string
	Note           string
	// ReferenceID links the payment back to the checkout session.
	ReferenceID string
	BuyerEmail  string
}

func (p PaymentCreateParams) toSquareRequest(idempotencyKey string) *sq.CreatePaymentRequest {
	autocomplete := true
	req := &sq.CreatePaymentRequest{
		IdempotencyKey:    idempotencyKey,
		SourceID:          p.SourceID,
		Autocomplete:      &autocomplete,
		LocationID:        optional(p.LocationID),
		CustomerID:        optional(p.CustomerID),
		BuyerEmailAddress: optional(p.BuyerEmail),
		Note:              optional(p.Note),
		ReferenceID:       optional(p.ReferenceID),
	}
	if p.AmountCents > 0 {
		amount := p.AmountCents
		req.AmountMoney = &sq.Money{Amount: &amount, Currency: currency(p.Currency)}
	}
	return req
}

func optional(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}

func currency(code string) *sq.Currency {
	c := sq.Currency(strings.ToUpper(strings.TrimSpace(code)))
	if c == "" {
		c = defaultCurrency
	}
	return &c
}

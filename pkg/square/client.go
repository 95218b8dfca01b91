package square

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"
	sqclient "github.com/square/square-go-sdk/client"
	sqcore "github.com/square/square-go-sdk/core"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/corporatepranks/storefront-backend/pkg/config"
	pkgerrors "github.com/corporatepranks/storefront-backend/pkg/errors"
	"github.com/corporatepranks/storefront-backend/pkg/logger"
)

const (
	Sandbox    = "sandbox"
	Production = "production"
)

var hosts = map[string]string{
	Sandbox:    "https://connect.squareupsandbox.com",
	Production: "https://connect.squareup.com",
}

// ErrMissingSetting is wrapped by NewClient for every absent credential.
var ErrMissingSetting = errors.New("square setting missing")

// Client charges card nonces produced by the Square Web Payments SDK.
type Client struct {
	payments      paymentsAPI
	locationID    string
	environment   string
	webhookSecret string
	webhookURL    string
	logg          *logger.Logger
}

type paymentsAPI interface {
	Create(ctx context.Context, req *sq.CreatePaymentRequest, opts ...sqoption.RequestOption) (*sq.CreatePaymentResponse, error)
}

func NewClient(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errors.New("square: logger is required")
	}
	env := strings.ToLower(strings.TrimSpace(cfg.Env))
	if env == "" {
		env = Sandbox
	}
	host, ok := hosts[env]
	if !ok {
		return nil, fmt.Errorf("square: unknown environment %q", cfg.Env)
	}

	settings := []struct{ name, value string }{
		{"access token", cfg.AccessToken},
		{"webhook signature key", cfg.WebhookSecret},
		{"location id", cfg.LocationID},
	}
	for _, s := range settings {
		if strings.TrimSpace(s.value) == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingSetting, s.name)
		}
	}

	sdk := sqclient.NewClient(
		sqoption.WithBaseURL(host),
		sqoption.WithToken(strings.TrimSpace(cfg.AccessToken)),
	)
	c := &Client{
		payments:      sdk.Payments,
		locationID:    strings.TrimSpace(cfg.LocationID),
		environment:   env,
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		webhookURL:    strings.TrimSpace(cfg.WebhookURL),
		logg:          logg,
	}
	logg.Info(logg.WithField(ctx, "square_env", env), "square client ready")
	return c, nil
}

func (c *Client) LocationID() string {
	if c == nil {
		return ""
	}
	return c.locationID
}

func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// CreatePayment charges params.SourceID. An empty location falls back to the
// configured one and an empty idempotency key is generated.
func (c *Client) CreatePayment(ctx context.Context, params PaymentCreateParams) (*sq.Payment, error) {
	if strings.TrimSpace(params.LocationID) == "" {
		params.LocationID = c.locationID
	}
	key := strings.TrimSpace(params.IdempotencyKey)
	if key == "" {
		key = idempotencyKey(params.ReferenceID)
	}

	ctx = c.logg.WithFields(ctx, map[string]any{
		"square_op":    "payments.create",
		"reference_id": params.ReferenceID,
		"amount_cents": params.AmountCents,
	})
	resp, err := c.payments.Create(ctx, params.toSquareRequest(key))
	if err != nil {
		mapped := classify(err, "create payment")
		c.logg.Error(ctx, "square call failed", mapped)
		return nil, mapped
	}

	payment := resp.GetPayment()
	c.logg.Info(c.logg.WithFields(ctx, map[string]any{
		"payment_id":     deref(payment.GetID()),
		"payment_status": deref(payment.GetStatus()),
	}), "square payment created")
	return payment, nil
}

func idempotencyKey(reference string) string {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return "cp-" + uuid.NewString()
	}
	return fmt.Sprintf("cp-%s-%s", reference, uuid.NewString()[:8])
}

var statusCodes = map[int]pkgerrors.Code{
	http.StatusBadRequest:          pkgerrors.CodeValidation,
	http.StatusUnauthorized:        pkgerrors.CodeUnauthorized,
	http.StatusPaymentRequired:     pkgerrors.CodeDeclined,
	http.StatusForbidden:           pkgerrors.CodeForbidden,
	http.StatusNotFound:            pkgerrors.CodeNotFound,
	http.StatusConflict:            pkgerrors.CodeConflict,
	http.StatusUnprocessableEntity: pkgerrors.CodeStateConflict,
	http.StatusTooManyRequests:     pkgerrors.CodeRateLimit,
}

func codeForStatus(status int) pkgerrors.Code {
	if code, ok := statusCodes[status]; ok {
		return code
	}
	if status >= 400 && status < 500 {
		return pkgerrors.CodeValidation
	}
	return pkgerrors.CodeDependency
}

// classify converts SDK failures into domain errors. Card problems keep
// Square's detail so the buyer sees why the charge was refused.
func classify(err error, op string) error {
	var apiErr *sqcore.APIError
	if !errors.As(err, &apiErr) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "square "+op+" unavailable")
	}
	for _, detail := range apiErrors(apiErr) {
		switch {
		case detail == nil:
		case detail.Code == sq.ErrorCodeIdempotencyKeyReused:
			return pkgerrors.Wrap(pkgerrors.CodeIdempotency, err, "square rejected a reused idempotency key")
		case detail.Category == sq.ErrorCategoryAuthenticationError:
			return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "square credentials rejected")
		case detail.Category == sq.ErrorCategoryPaymentMethodError:
			msg := strings.TrimSpace(deref(detail.Detail))
			if msg == "" {
				msg = string(detail.Code)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDeclined, err, msg)
		}
	}
	return pkgerrors.Wrap(codeForStatus(apiErr.StatusCode), err, "square "+op+" failed")
}

func apiErrors(apiErr *sqcore.APIError) []*sq.Error {
	inner := apiErr.Unwrap()
	if inner == nil {
		return nil
	}
	var body struct {
		Errors []*sq.Error `json:"errors"`
	}
	if json.Unmarshal([]byte(strings.TrimSpace(inner.Error())), &body) != nil {
		return nil
	}
	return body.Errors
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/corporatepranks/storefront-backend/pkg/config"
	pkgerrors "github.com/corporatepranks/storefront-backend/pkg/errors"
	"github.com/corporatepranks/storefront-backend/pkg/logger"
)

const (
	sandboxEnv = "sandbox"
	liveEnv    = "live"

	sandboxBaseURL = "https://api-m.sandbox.paypal.com"
	liveBaseURL    = "https://api-m.paypal.com"

	tokenPath      = "/v1/oauth2/token"
	defaultTimeout = 15 * time.Second
	maxErrorBody   = 4096
)

var hosts = map[string]string{sandboxEnv: sandboxBaseURL, liveEnv: liveBaseURL}

// Client talks to the PayPal Orders v2 REST API. Requests are authorized by an
// oauth2 client-credentials transport that caches the bearer token.
type Client struct {
	api         *http.Client
	baseURL     string
	clientID    string
	webhookID   string
	environment string
	logg        *logger.Logger
}

type settings struct {
	baseURL string
	base    *http.Client
}

// Option customizes the client, mainly for tests.
type Option func(*settings)

// WithBaseURL overrides the API host.
func WithBaseURL(base string) Option {
	return func(s *settings) { s.baseURL = strings.TrimRight(base, "/") }
}

// WithHTTPClient swaps the underlying transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *settings) {
		if hc != nil {
			s.base = hc
		}
	}
}

// NewClient validates credentials and builds a client for the configured environment.
func NewClient(ctx context.Context, cfg config.PayPalConfig, logg *logger.Logger, opts ...Option) (*Client, error) {
	env := cfg.Environment()
	host, ok := hosts[env]
	if !ok {
		return nil, fmt.Errorf("paypal: environment must be %q or %q, got %q", sandboxEnv, liveEnv, env)
	}
	clientID, secret := strings.TrimSpace(cfg.ClientID), strings.TrimSpace(cfg.ClientSecret)
	if clientID == "" || secret == "" {
		return nil, errors.New("paypal: client id and secret are required")
	}

	s := settings{baseURL: host, base: &http.Client{Timeout: defaultTimeout}}
	for _, opt := range opts {
		opt(&s)
	}

	creds := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: secret,
		TokenURL:     s.baseURL + tokenPath,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	// token refreshes outlive the constructor's context
	tokenCtx := context.WithValue(context.WithoutCancel(ctx), oauth2.HTTPClient, s.base)
	api := oauth2.NewClient(tokenCtx, creds.TokenSource(tokenCtx))
	api.Timeout = s.base.Timeout

	c := &Client{
		api:         api,
		baseURL:     s.baseURL,
		clientID:    clientID,
		webhookID:   strings.TrimSpace(cfg.WebhookID),
		environment: env,
		logg:        logg,
	}
	logg.Info(logg.WithProvider(ctx, "paypal"), fmt.Sprintf("paypal.ready (%s)", env))
	return c, nil
}

// ClientID is the public id the buttons script is bootstrapped with.
func (c *Client) ClientID() string {
	if c == nil {
		return ""
	}
	return c.clientID
}

// Environment reports sandbox or live.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// CreateOrder mints a CAPTURE-intent order for a single purchase unit.
func (c *Client) CreateOrder(ctx context.Context, params CreateOrderParams) (*Order, error) {
	if err := params.validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid paypal order")
	}
	unit := purchaseUnitRequest{
		ReferenceID: params.ReferenceID,
		CustomID:    params.CustomID,
		Description: params.Description,
		Amount:      Money{CurrencyCode: strings.ToUpper(params.Currency), Value: params.Amount.StringFixed(2)},
	}

	var order Order
	err := c.call(ctx, request{op: "create_order", path: "/v2/checkout/orders", requestID: params.RequestID,
		in: createOrderRequest{Intent: "CAPTURE", PurchaseUnits: []purchaseUnitRequest{unit}}}, &order)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// CaptureOrder captures an approved order. Declines come back as *DeclineError.
func (c *Client) CaptureOrder(ctx context.Context, orderID, requestID string) (*Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "paypal order id is required")
	}
	var order Order
	err := c.call(ctx, request{op: "capture_order", path: "/v2/checkout/orders/" + url.PathEscape(orderID) + "/capture",
		requestID: requestID, in: struct{}{}}, &order)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// VerifyWebhookSignature asks PayPal to validate a webhook delivery.
func (c *Client) VerifyWebhookSignature(ctx context.Context, headers http.Header, event json.RawMessage) (bool, error) {
	if c.webhookID == "" {
		return false, pkgerrors.New(pkgerrors.CodeInternal, "paypal webhook id not configured")
	}
	body := verifyWebhookRequest{
		AuthAlgo:         headers.Get("Paypal-Auth-Algo"),
		CertURL:          headers.Get("Paypal-Cert-Url"),
		TransmissionID:   headers.Get("Paypal-Transmission-Id"),
		TransmissionSig:  headers.Get("Paypal-Transmission-Sig"),
		TransmissionTime: headers.Get("Paypal-Transmission-Time"),
		WebhookID:        c.webhookID,
		WebhookEvent:     event,
	}
	if body.TransmissionID == "" || body.TransmissionSig == "" {
		return false, nil
	}
	var resp verifyWebhookResponse
	if err := c.call(ctx, request{op: "verify_webhook", path: "/v1/notifications/verify-webhook-signature", in: body}, &resp); err != nil {
		return false, err
	}
	return strings.EqualFold(resp.VerificationStatus, "SUCCESS"), nil
}

type request struct {
	op        string
	path      string
	requestID string
	in        any
}

// call POSTs r.in as JSON and decodes a 2xx body into out.
func (c *Client) call(ctx context.Context, r request, out any) error {
	payload, err := json.Marshal(r.in)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode paypal request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+r.path, bytes.NewReader(payload))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build paypal request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Prefer", "return=representation")
	if r.requestID != "" {
		req.Header.Set("PayPal-Request-Id", r.requestID)
	}

	start := time.Now()
	resp, err := c.api.Do(req)
	ctx = c.logg.WithFields(ctx, map[string]any{"paypal_op": r.op, "elapsed_ms": time.Since(start).Milliseconds()})
	if err != nil {
		var authErr *oauth2.RetrieveError
		if errors.As(err, &authErr) {
			c.logg.Error(ctx, "paypal.auth_failed", err)
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "paypal authentication failed")
		}
		c.logg.Error(ctx, "paypal.request_failed", err)
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "paypal request failed")
	}
	defer func() { _ = resp.Body.Close() }()
	c.logg.Debug(c.logg.WithField(ctx, "http_status", resp.StatusCode), "paypal.request_done")

	if resp.StatusCode >= http.StatusMultipleChoices {
		return mapAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode paypal response")
	}
	return nil
}

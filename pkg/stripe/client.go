// Package stripe configures stripe-go for the PaymentIntent checkout and
// verifies its webhooks.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/corporatepranks/storefront-backend/pkg/config"
	"github.com/corporatepranks/storefront-backend/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"
)

// keyPrefixes are the secret and restricted key prefixes valid per environment.
var keyPrefixes = map[string][]string{
	testEnv: {"sk_test_", "rk_test_"},
	liveEnv: {"sk_live_", "rk_live_"},
}

var (
	errAPIKeyRequired   = errors.New("stripe: api key is required")
	errSecretRequired   = errors.New("stripe: webhook secret is required")
	errInvalidStripeEnv = fmt.Errorf("stripe: environment must be %q or %q", testEnv, liveEnv)
)

// Client carries the webhook secret and environment. stripe-go reads the API
// key from the package-level stripe.Key, which NewClient sets.
type Client struct {
	environment   string
	signingSecret string
}

func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env, err := normalizeEnv(cfg.Env)
	if err != nil {
		return nil, err
	}
	key, secret := strings.TrimSpace(cfg.APIKey), strings.TrimSpace(cfg.Secret)
	switch {
	case key == "":
		return nil, errAPIKeyRequired
	case secret == "":
		return nil, errSecretRequired
	}
	if err := validateAPIKey(env, key); err != nil {
		return nil, err
	}

	stripe.Key = key
	stripe.SetAppInfo(&stripe.AppInfo{Name: "corporatepranks-storefront"})
	logg.Info(logg.WithProvider(ctx, "stripe"), "stripe.ready ("+env+")")
	return &Client{environment: env, signingSecret: secret}, nil
}

func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

func normalizeEnv(raw string) (string, error) {
	env := strings.ToLower(strings.TrimSpace(raw))
	if env == "" {
		return testEnv, nil
	}
	if _, ok := keyPrefixes[env]; !ok {
		return "", errInvalidStripeEnv
	}
	return env, nil
}

func validateAPIKey(env, key string) error {
	prefixes, ok := keyPrefixes[env]
	if !ok {
		return errInvalidStripeEnv
	}
	for _, p := range prefixes {
		if strings.HasPrefix(key, p) {
			return nil
		}
	}
	return fmt.Errorf("stripe: %s mode needs a key starting with %s", env, strings.Join(prefixes, " or "))
}

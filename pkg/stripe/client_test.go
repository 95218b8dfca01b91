package stripe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corporatepranks/storefront-backend/pkg/config"
)

func TestNormalizeEnv(t *testing.T) {
	env, err := normalizeEnv("")
	require.NoError(t, err)
	require.Equal(t, testEnv, env)

	env, err = normalizeEnv(" LIVE ")
	require.NoError(t, err)
	require.Equal(t, liveEnv, env)

	_, err = normalizeEnv("staging")
	require.ErrorIs(t, err, errInvalidStripeEnv)
}

func TestValidateAPIKey(t *testing.T) {
	require.NoError(t, validateAPIKey(testEnv, "sk_test_123"))
	require.NoError(t, validateAPIKey(testEnv, "rk_test_123"))
	require.Error(t, validateAPIKey(testEnv, "sk_live_123"))
	require.NoError(t, validateAPIKey(liveEnv, "sk_live_123"))
	require.Error(t, validateAPIKey(liveEnv, "sk_test_123"))
}

func TestNewClientRequiresSecrets(t *testing.T) {
	_, err := NewClient(context.Background(), config.StripeConfig{Secret: "whsec"}, nil)
	require.ErrorIs(t, err, errAPIKeyRequired)

	_, err = NewClient(context.Background(), config.StripeConfig{APIKey: "sk_test_1"}, nil)
	require.ErrorIs(t, err, errSecretRequired)

	c, err := NewClient(context.Background(), config.StripeConfig{APIKey: "sk_test_1", Secret: "whsec_1"}, nil)
	require.NoError(t, err)
	require.Equal(t, testEnv, c.Environment())
	require.Equal(t, "whsec_1", c.SigningSecret())
	require.NotNil(t, NewPaymentIntents(c))
	require.Nil(t, NewPaymentIntents(nil))
}

// Package auth verifies the HS256 access tokens issued by the identity
// service. Guests carry no token.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/corporatepranks/storefront-backend/pkg/config"
	"github.com/corporatepranks/storefront-backend/pkg/enums"
)

var (
	signingMethod = jwt.SigningMethodHS256

	errNoSecret = errors.New("auth: jwt secret is not configured")
	errNoIssuer = errors.New("auth: jwt issuer is not configured")
)

// MintAccessToken signs a token valid for ttl from now. Production tokens
// come from the identity service; this serves tests and local tooling.
func MintAccessToken(cfg config.JWTConfig, now time.Time, ttl time.Duration, p AccessTokenPayload) (string, error) {
	switch {
	case cfg.Secret == "":
		return "", errNoSecret
	case cfg.Issuer == "":
		return "", errNoIssuer
	case ttl <= 0:
		return "", fmt.Errorf("auth: ttl must be positive, got %s", ttl)
	case !p.Role.IsValid():
		return "", fmt.Errorf("auth: unknown role %q", p.Role)
	}
	id := p.JTI
	if id == "" {
		id = uuid.NewString()
	}
	token := jwt.NewWithClaims(signingMethod, AccessTokenClaims{
		UserID: p.UserID,
		Role:   p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Issuer:    cfg.Issuer,
			Subject:   p.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString([]byte(cfg.Secret))
}

// ParseAccessToken checks signature, issuer and expiry. Tokens without a role
// are customers.
func ParseAccessToken(cfg config.JWTConfig, raw string) (*AccessTokenClaims, error) {
	if cfg.Secret == "" {
		return nil, errNoSecret
	}
	claims := &AccessTokenClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
	)
	if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	}); err != nil {
		return nil, err
	}
	if claims.UserID == uuid.Nil {
		return nil, errors.New("auth: token has no user_id")
	}
	if claims.Role == "" {
		claims.Role = enums.ProfileRoleCustomer
	}
	return claims, nil
}

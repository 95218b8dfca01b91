// Package gcp resolves Google Cloud credentials from config for the BigQuery,
// Pub/Sub and Cloud Storage clients.
package gcp

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"

	"github.com/corporatepranks/storefront-backend/pkg/config"
)

// ClientOptions picks inline JSON over a credentials file. With neither set
// the SDKs fall back to application default credentials.
func ClientOptions(cfg config.GCPConfig) []option.ClientOption {
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(cfg.CredentialsJSON))}
	case strings.TrimSpace(cfg.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(cfg.ApplicationCredentials)}
	default:
		return nil
	}
}

// TokenSource resolves the same credentials as ClientOptions for callers that
// speak plain HTTP to a Google API.
func TokenSource(ctx context.Context, cfg config.GCPConfig, scopes ...string) (oauth2.TokenSource, error) {
	raw := []byte(strings.TrimSpace(cfg.CredentialsJSON))
	if len(raw) == 0 && strings.TrimSpace(cfg.ApplicationCredentials) != "" {
		b, err := os.ReadFile(cfg.ApplicationCredentials)
		if err != nil {
			return nil, fmt.Errorf("read gcp credentials file: %w", err)
		}
		raw = b
	}
	if len(raw) == 0 {
		ts, err := google.DefaultTokenSource(ctx, scopes...)
		if err != nil {
			return nil, fmt.Errorf("gcp default credentials: %w", err)
		}
		return ts, nil
	}
	creds, err := google.CredentialsFromJSON(ctx, raw, scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse gcp credentials: %w", err)
	}
	return creds.TokenSource, nil
}

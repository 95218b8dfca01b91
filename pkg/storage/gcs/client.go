package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/corporatepranks/storefront-backend/pkg/config"
	gcpauth "github.com/corporatepranks/storefront-backend/pkg/gcp"
	"github.com/corporatepranks/storefront-backend/pkg/logger"
)

const (
	storageScope   = "https://www.googleapis.com/auth/devstorage.read_write"
	defaultAPIBase = "https://storage.googleapis.com"
	requestTimeout = 30 * time.Second
	pingTimeout    = 5 * time.Second
	maxPathLength  = 512
	fallbackLimit  = 10 << 20
)

var (
	// ErrInvalidPath is returned for empty, absolute or traversing object paths.
	ErrInvalidPath = errors.New("invalid object path")
	// ErrTooLarge is returned when an upload exceeds the configured limit.
	ErrTooLarge = errors.New("upload exceeds size limit")
)

// Client uploads admin assets (product images, blog covers) to one bucket
// through the GCS JSON API.
type Client struct {
	http          *http.Client
	bucket        string
	publicBaseURL string
	apiBase       string
	maxBytes      int64
	logg          *logger.Logger
}

// NewClient authenticates with the configured service account, or application
// default credentials when none is set, and checks the bucket is reachable.
func NewClient(ctx context.Context, cfg config.GCSConfig, gcp config.GCPConfig, logg *logger.Logger) (*Client, error) {
	bucket := strings.TrimSpace(cfg.BucketName)
	if bucket == "" {
		return nil, errors.New("gcs bucket name is required")
	}

	ts, err := gcpauth.TokenSource(ctx, gcp, storageScope)
	if err != nil {
		return nil, err
	}
	httpClient := oauth2.NewClient(ctx, ts)
	httpClient.Timeout = requestTimeout

	c := &Client{
		http:          httpClient,
		bucket:        bucket,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		apiBase:       defaultAPIBase,
		maxBytes:      int64(cfg.MaxUploadMB) << 20,
		logg:          logg,
	}
	if err := c.Ping(ctx); err != nil {
		return nil, fmt.Errorf("gcs bucket %s unreachable: %w", bucket, err)
	}
	logg.Info(logg.WithField(ctx, "bucket", bucket), "gcs client ready")
	return c, nil
}

func (c *Client) Close() error { return nil }

// Ping lists at most one object to prove the credentials can read the bucket.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.http == nil {
		return errors.New("gcs client not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/storage/v1/b/%s/o?maxResults=1", c.base(), url.PathEscape(c.bucket))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	return c.do(ctx, req, "list")
}

// ValidatePath normalizes an object path. Paths must be relative and may not
// contain "..", backslashes or empty segments.
func ValidatePath(objectPath string) (string, error) {
	p := strings.TrimSpace(objectPath)
	if p == "" || len(p) > maxPathLength || strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return "", ErrInvalidPath
	}
	for _, segment := range strings.Split(p, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return "", ErrInvalidPath
		}
	}
	return p, nil
}

// Upload writes body to objectPath in the bucket and returns its public URL.
// Bodies larger than the configured limit are rejected before anything is sent.
func (c *Client) Upload(ctx context.Context, objectPath, contentType string, body io.Reader) (string, error) {
	if c == nil || c.http == nil {
		return "", errors.New("gcs client not initialized")
	}
	objectPath, err := ValidatePath(objectPath)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(contentType) == "" {
		contentType = "application/octet-stream"
	}

	limit := c.maxBytes
	if limit <= 0 {
		limit = fallbackLimit
	}
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return "", ErrTooLarge
	}

	endpoint := fmt.Sprintf("%s/upload/storage/v1/b/%s/o?uploadType=media&name=%s",
		c.base(), url.PathEscape(c.bucket), url.QueryEscape(objectPath))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = int64(len(data))

	if err := c.do(ctx, req, "upload"); err != nil {
		return "", err
	}
	publicURL := c.PublicURL(objectPath)
	c.logg.Info(c.logg.WithFields(ctx, map[string]any{
		"object": objectPath,
		"bytes":  len(data),
	}), "gcs object uploaded")
	return publicURL, nil
}

// PublicURL is where an uploaded object is served from.
func (c *Client) PublicURL(objectPath string) string {
	base := c.publicBaseURL
	if base == "" {
		base = defaultAPIBase
	}
	segments := strings.Split(objectPath, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return base + "/" + url.PathEscape(c.bucket) + "/" + strings.Join(segments, "/")
}

func (c *Client) do(ctx context.Context, req *http.Request, op string) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gcs %s: %w", op, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logg.Warn(c.logg.WithField(ctx, "op", op), "gcs response body close failed")
		}
	}()
	if resp.StatusCode/100 == 2 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if msg := strings.TrimSpace(string(detail)); msg != "" {
		return fmt.Errorf("gcs %s: %s: %s", op, resp.Status, msg)
	}
	return fmt.Errorf("gcs %s: %s", op, resp.Status)
}

func (c *Client) base() string {
	if c.apiBase == "" {
		return defaultAPIBase
	}
	return c.apiBase
}

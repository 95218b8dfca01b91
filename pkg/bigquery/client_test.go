package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"google.golang.org/api/googleapi"

	"github.com/corporatepranks/storefront-backend/pkg/config"
)

func TestAPIStatus(t *testing.T) {
	wrapped := fmt.Errorf("metadata: %w", &googleapi.Error{Code: http.StatusNotFound})
	if !notFound(wrapped) {
		t.Fatal("expected wrapped 404 to be not found")
	}
	if !conflict(&googleapi.Error{Code: http.StatusConflict}) {
		t.Fatal("expected 409 to be conflict")
	}
	if notFound(errors.New("plain")) || apiStatus(nil) != 0 {
		t.Fatal("plain errors carry no status")
	}
}

func TestNewClientValidation(t *testing.T) {
	ctx := context.Background()
	if _, err := NewClient(ctx, config.GCPConfig{}, config.BigQueryConfig{Dataset: "d"}, nil); err == nil {
		t.Fatal("expected project error")
	}
	if _, err := NewClient(ctx, config.GCPConfig{ProjectID: "p"}, config.BigQueryConfig{Dataset: " "}, nil); err == nil {
		t.Fatal("expected dataset error")
	}
}

func TestUnconnectedClient(t *testing.T) {
	var c *Client
	ctx := context.Background()
	if err := c.Ping(ctx); err == nil {
		t.Fatal("expected ping error")
	}
	if err := c.EnsureTable(ctx, "t", nil, ""); err == nil {
		t.Fatal("expected ensure error")
	}
	if err := c.InsertRows(ctx, "t", []any{1}); err == nil {
		t.Fatal("expected insert error")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

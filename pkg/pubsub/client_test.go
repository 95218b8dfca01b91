package pubsub

import (
	"context"
	"errors"
	"strings"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestResource(t *testing.T) {
	c := &Client{project: "pranks-prod"}
	cases := []struct {
		kind, id, want string
	}{
		{"topics", "purchase-events", "projects/pranks-prod/topics/purchase-events"},
		{"topics", " domain-events ", "projects/pranks-prod/topics/domain-events"},
		{"topics", "projects/other/topics/t1", "projects/other/topics/t1"},
		{"subscriptions", "projects/other/topics/t1", "projects/pranks-prod/subscriptions/projects/other/topics/t1"},
		{"subscriptions", "analytics", "projects/pranks-prod/subscriptions/analytics"},
		{"topics", "", ""},
	}
	for _, tc := range cases {
		if got := c.resource(tc.kind, tc.id); got != tc.want {
			t.Fatalf("resource(%q, %q) = %q, want %q", tc.kind, tc.id, got, tc.want)
		}
	}
	if got := (&Client{}).resource("topics", "t"); got != "" {
		t.Fatalf("expected empty name without project, got %q", got)
	}
}

func TestDescribe(t *testing.T) {
	if err := describe("topic", "t", nil); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	err := describe("topic", "t", status.Error(codes.NotFound, "gone"))
	if err == nil || !strings.Contains(err.Error(), "does not exist") {
		t.Fatalf("expected not found message, got %v", err)
	}
	cause := status.Error(codes.PermissionDenied, "nope")
	if err := describe("subscription", "s", cause); !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
}

func TestNilClient(t *testing.T) {
	var c *Client
	if c.Publisher("t") != nil || c.PurchaseSubscription() != nil {
		t.Fatal("nil client returned handles")
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Fatal("expected ping error")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

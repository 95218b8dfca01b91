package enums

import (
	"strings"
	"testing"
)

func TestOrderStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to OrderStatus
		want     bool
	}{
		{OrderStatusPending, OrderStatusPaid, true},
		{OrderStatusPaid, OrderStatusCompleted, true},
		{OrderStatusPending, OrderStatusCompleted, true},
		{OrderStatusCompleted, OrderStatusPaid, false},
		{OrderStatusPaid, OrderStatusPaid, false},
		{OrderStatus("Lost"), OrderStatusPaid, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Fatalf("%s -> %s: expected %v got %v", tc.from, tc.to, tc.want, got)
		}
	}
}

func TestProductTypeInitialStatus(t *testing.T) {
	if ProductTypePhysical.InitialOrderStatus() != OrderStatusPaid {
		t.Fatalf("physical orders start Paid")
	}
	if ProductTypeDigital.InitialOrderStatus() != OrderStatusCompleted {
		t.Fatalf("digital orders start Completed")
	}
	if ProductTypeSubscription.InitialOrderStatus() != OrderStatusPending {
		t.Fatalf("subscription orders start Pending")
	}
}

func TestParseHelpers(t *testing.T) {
	if _, err := ParsePaymentProvider("paypal"); err != nil {
		t.Fatalf("expected paypal to parse: %v", err)
	}
	if _, err := ParsePaymentProvider("venmo"); err == nil {
		t.Fatal("expected unknown provider to fail")
	}
	if _, err := ParseOrderStatus("Paid"); err != nil {
		t.Fatalf("expected Paid to parse: %v", err)
	}
	if _, err := ParseOrderStatus("paid"); err == nil {
		t.Fatal("order status parsing is case sensitive")
	}
	if AggregateForProductType(ProductTypeDigital) != AggregateDigitalOrder {
		t.Fatal("unexpected aggregate for digital")
	}
	if _, err := ParseProfileRole("admin"); err != nil {
		t.Fatalf("expected admin role: %v", err)
	}
}

func TestParseCurrency(t *testing.T) {
	for _, raw := range []string{"usd", "USD", " gbp "} {
		c, err := ParseCurrency(raw)
		if err != nil {
			t.Fatalf("%q: %v", raw, err)
		}
		if c.Lower() != strings.ToLower(strings.TrimSpace(raw)) {
			t.Fatalf("%q lowered to %q", raw, c.Lower())
		}
	}
	for _, raw := range []string{"BTC", "ETH", ""} {
		if _, err := ParseCurrency(raw); err == nil {
			t.Fatalf("expected %q to be rejected", raw)
		}
	}
}

package checkout

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/corporatepranks/storefront-backend/pkg/errors"
)

var fixedNow = time.Date(2026, 10, 18, 15, 0, 0, 0, time.UTC)

func TestCartGateFlipsWhenPhoneFilled(t *testing.T) {
	fields := map[string]string{
		FieldPhone:        "",
		FieldAddress:      "123 Main St",
		FieldDeliveryDate: "2026-10-20",
	}
	res := CartGate().EvaluateAt(fields, fixedNow)
	if res.Valid {
		t.Fatalf("expected invalid with empty phone")
	}
	if len(res.Missing) != 1 || res.Missing[0] != FieldPhone {
		t.Fatalf("expected phone missing, got %v", res.Missing)
	}

	fields[FieldPhone] = "555-0100"
	res = CartGate().EvaluateAt(fields, fixedNow)
	if !res.Valid {
		t.Fatalf("expected valid form, got %+v", res)
	}
}

func TestWhitespaceCountsAsMissing(t *testing.T) {
	res := DigitalGate().EvaluateAt(map[string]string{FieldName: "   ", FieldEmail: "a@b.co"}, fixedNow)
	if res.Valid || len(res.Missing) != 1 || res.Missing[0] != FieldName {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestEveryRequiredFieldBlocksTheGate(t *testing.T) {
	full := map[string]string{
		FieldFullName:   "Milton Waddams",
		FieldEmail:      "milton@initech.example",
		FieldAddress:    "1 Basement Way",
		FieldCity:       "Austin",
		FieldPostalCode: "73301",
	}
	if !FunnelGate().EvaluateAt(full, fixedNow).Valid {
		t.Fatalf("expected full form to be valid")
	}
	for _, field := range FunnelGate().Required {
		fields := map[string]string{}
		for k, v := range full {
			fields[k] = v
		}
		fields[field] = ""
		if FunnelGate().EvaluateAt(fields, fixedNow).Valid {
			t.Fatalf("form valid with %s empty", field)
		}
	}
}

func TestDeliveryDateConditions(t *testing.T) {
	cases := map[string]bool{
		"2026-10-18": true,
		"2026-11-01": true,
		"2026-10-17": false,
		"10/20/2026": false,
	}
	for date, want := range cases {
		res := CartGate().EvaluateAt(map[string]string{
			FieldPhone:        "555-0100",
			FieldAddress:      "123 Main St",
			FieldDeliveryDate: date,
		}, fixedNow)
		if res.Valid != want {
			t.Fatalf("date %s: expected valid=%v, got %+v", date, want, res)
		}
	}
}

func TestEmailCondition(t *testing.T) {
	res := DigitalGate().EvaluateAt(map[string]string{FieldName: "Bob", FieldEmail: "bob.example"}, fixedNow)
	if res.Valid || len(res.Invalid) != 1 || res.Invalid[0].Field != FieldEmail {
		t.Fatalf("expected invalid email, got %+v", res)
	}
}

func TestResultErr(t *testing.T) {
	if err := (Result{Valid: true}).Err(); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	err := CartGate().EvaluateAt(map[string]string{}, fixedNow).Err()
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := typed.Details().(map[string]any)
	if !ok {
		t.Fatalf("expected details map")
	}
	missing, _ := details["missing_fields"].([]string)
	if len(missing) != 3 {
		t.Fatalf("expected 3 missing fields, got %v", missing)
	}
}

func TestFunnelTotal(t *testing.T) {
	fee := decimal.RequireFromString("4.99")
	if got := FunnelTotal(decimal.RequireFromString("34.99"), 2, 2, fee); got.StringFixed(2) != "34.99" {
		t.Fatalf("expected free shipping at qty 2, got %s", got)
	}
	if got := FunnelTotal(decimal.RequireFromString("17.50"), 1, 2, fee); got.StringFixed(2) != "22.49" {
		t.Fatalf("expected 22.49, got %s", got)
	}
}

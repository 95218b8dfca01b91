package checkout

import (
	"strings"
	"time"

	pkgerrors "github.com/corporatepranks/storefront-backend/pkg/errors"
)

// Form field names shared by the checkout gates.
const (
	FieldName         = "name"
	FieldFullName     = "full_name"
	FieldEmail        = "email"
	FieldPhone        = "phone"
	FieldAddress      = "address"
	FieldCity         = "city"
	FieldPostalCode   = "postal_code"
	FieldDeliveryDate = "delivery_date"
)

// DeliveryDateLayout is the accepted delivery date format.
const DeliveryDateLayout = "2006-01-02"

// Condition is an extra rule evaluated after the required fields.
type Condition struct {
	Field   string
	Message string
	Check   func(fields map[string]string, now time.Time) bool
}

// Gate decides whether a payment widget may mount for a form.
type Gate struct {
	Required   []string
	Conditions []Condition
}

// InvalidField names a field that is present but fails a condition.
type InvalidField struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Result struct {
	Valid   bool           `json:"valid"`
	Missing []string       `json:"missing_fields,omitempty"`
	Invalid []InvalidField `json:"invalid_fields,omitempty"`
}

// Err returns a validation error describing the result, or nil when the form is valid.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "checkout form is incomplete").WithDetails(map[string]any{
		"missing_fields": r.Missing,
		"invalid_fields": r.Invalid,
	})
}

// Evaluate checks fields against the gate at the current time.
func (g Gate) Evaluate(fields map[string]string) Result {
	return g.EvaluateAt(fields, time.Now())
}

// EvaluateAt is Evaluate with an explicit clock. A field is present when it is non-empty after
// trimming; conditions only run on present fields.
func (g Gate) EvaluateAt(fields map[string]string, now time.Time) Result {
	res := Result{Valid: true}
	present := map[string]bool{}
	for _, name := range g.Required {
		if strings.TrimSpace(fields[name]) == "" {
			res.Missing = append(res.Missing, name)
			continue
		}
		present[name] = true
	}
	for _, cond := range g.Conditions {
		if cond.Field != "" && !present[cond.Field] && strings.TrimSpace(fields[cond.Field]) == "" {
			continue
		}
		if !cond.Check(fields, now) {
			res.Invalid = append(res.Invalid, InvalidField{Field: cond.Field, Message: cond.Message})
		}
	}
	res.Valid = len(res.Missing) == 0 && len(res.Invalid) == 0
	return res
}

// CartGate guards the cart checkout: phone, address and a delivery date that is today or later.
func CartGate() Gate {
	return Gate{
		Required: []string{FieldPhone, FieldAddress, FieldDeliveryDate},
		Conditions: []Condition{{
			Field:   FieldDeliveryDate,
			Message: "delivery date must be a future date (YYYY-MM-DD)",
			Check:   deliveryDateNotPast,
		}},
	}
}

// DigitalGate guards the single-product digital checkout.
func DigitalGate() Gate {
	return Gate{
		Required: []string{FieldName, FieldEmail},
		Conditions: []Condition{{
			Field:   FieldEmail,
			Message: "email must contain @",
			Check:   emailHasAt,
		}},
	}
}

// FunnelGate guards the landing-page funnel checkout.
func FunnelGate() Gate {
	return Gate{
		Required: []string{FieldFullName, FieldEmail, FieldAddress, FieldCity, FieldPostalCode},
		Conditions: []Condition{{
			Field:   FieldEmail,
			Message: "email must contain @",
			Check:   emailHasAt,
		}},
	}
}

func emailHasAt(fields map[string]string, _ time.Time) bool {
	return strings.Contains(fields[FieldEmail], "@")
}

func deliveryDateNotPast(fields map[string]string, now time.Time) bool {
	day, err := time.Parse(DeliveryDateLayout, strings.TrimSpace(fields[FieldDeliveryDate]))
	if err != nil {
		return false
	}
	y, m, d := now.UTC().Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return !day.Before(today)
}

package webhooks

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"
)

const (
	stripeSecret = "whsec_test"
	stripePath   = "/api/v1/webhooks/stripe"
)

type fakeStripeWebhookService struct {
	countingService
	lastType stripe.EventType
}

func (f *fakeStripeWebhookService) HandleEvent(_ context.Context, event *stripe.Event) error {
	f.lastType = event.Type
	return f.handle()
}

type stripeSecretVerifier struct{}

func (stripeSecretVerifier) ConstructEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	return webhook.ConstructEvent(payload, sigHeader, stripeSecret)
}

// signedStripeEvent returns a payment_intent.succeeded delivery and a valid
// Stripe-Signature header for it.
func signedStripeEvent(t *testing.T) ([]byte, map[string]string) {
	t.Helper()
	intent, err := json.Marshal(&stripe.PaymentIntent{ID: "pi_" + uuid.NewString(), AmountReceived: 1999})
	if err != nil {
		t.Fatalf("marshal intent: %v", err)
	}
	payload, err := json.Marshal(&stripe.Event{
		ID:         "evt_" + uuid.NewString(),
		Type:       stripe.EventTypePaymentIntentSucceeded,
		Object:     "event",
		APIVersion: stripe.APIVersion,
		Data:       &stripe.EventData{Raw: intent},
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    stripeSecret,
		Timestamp: time.Now(),
	})
	return payload, map[string]string{"Stripe-Signature": signed.Header}
}

func TestStripeWebhookProcessesOnce(t *testing.T) {
	payload, headers := signedStripeEvent(t)
	svc := &fakeStripeWebhookService{}
	guard, _ := newGuard(t, "stripe")
	h := StripeWebhook(svc, stripeSecretVerifier{}, guard, nil)

	for i := range 2 {
		if rec := deliverRequest(h, stripePath, payload, headers); rec.Code != http.StatusOK {
			t.Fatalf("delivery %d: status %d (%s)", i, rec.Code, rec.Body.String())
		}
	}
	if svc.count() != 1 {
		t.Fatalf("service calls = %d, want 1", svc.count())
	}
	if svc.lastType != stripe.EventTypePaymentIntentSucceeded {
		t.Fatalf("event type = %q", svc.lastType)
	}
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	payload, _ := signedStripeEvent(t)
	svc := &fakeStripeWebhookService{}
	guard, _ := newGuard(t, "stripe")
	h := StripeWebhook(svc, stripeSecretVerifier{}, guard, nil)

	rec := deliverRequest(h, stripePath, payload, map[string]string{"Stripe-Signature": "t=1,v1=invalid"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if svc.count() != 0 {
		t.Fatal("service ran for an unverified delivery")
	}
}

func TestStripeWebhookFailureAllowsRedelivery(t *testing.T) {
	payload, headers := signedStripeEvent(t)
	svc := &fakeStripeWebhookService{}
	svc.err = errHandler
	guard, mr := newGuard(t, "stripe")
	h := StripeWebhook(svc, stripeSecretVerifier{}, guard, nil)

	if rec := deliverRequest(h, stripePath, payload, headers); rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if keys := mr.Keys(); len(keys) != 0 {
		t.Fatalf("delivery mark not released: %v", keys)
	}

	svc.err = nil
	if rec := deliverRequest(h, stripePath, payload, headers); rec.Code != http.StatusOK {
		t.Fatalf("redelivery status = %d", rec.Code)
	}
	if svc.count() != 2 {
		t.Fatalf("service calls = %d, want 2", svc.count())
	}
}

func TestStripeWebhookUnconfigured(t *testing.T) {
	rec := deliverRequest(StripeWebhook(nil, nil, nil, nil), stripePath, nil, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

package stripewebhook

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stripe/stripe-go/v84"

	"github.com/corporatepranks/storefront-backend/internal/orders"
	"github.com/corporatepranks/storefront-backend/internal/reconcile"
	pkgerrors "github.com/corporatepranks/storefront-backend/pkg/errors"
)

func TestService_PaymentIntentSucceededRecordsCapture(t *testing.T) {
	rec := &stubRecorder{}
	service := newTestService(t, rec)

	event := intentEvent(t, stripe.EventTypePaymentIntentSucceeded, &stripe.PaymentIntent{ID: "pi_123", AmountReceived: 2499})
	if err := service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(rec.captures) != 1 {
		t.Fatalf("expected one capture, got %d", len(rec.captures))
	}
	got := rec.captures[0]
	if got.SessionID != "pi_123" || got.TransactionID != "pi_123" {
		t.Fatalf("unexpected ids: %+v", got)
	}
	if got.AmountPaid.String() != "24.99" {
		t.Fatalf("expected 24.99, got %s", got.AmountPaid)
	}
}

func TestService_UnknownIntentIsAcked(t *testing.T) {
	rec := &stubRecorder{captureErr: pkgerrors.New(pkgerrors.CodeNotFound, "payment session not found")}
	service := newTestService(t, rec)

	event := intentEvent(t, stripe.EventTypePaymentIntentSucceeded, &stripe.PaymentIntent{ID: "pi_other"})
	if err := service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("expected ack, got %v", err)
	}
}

func TestService_CaptureWriteErrorIsReturned(t *testing.T) {
	rec := &stubRecorder{captureErr: pkgerrors.New(pkgerrors.CodeDependency, "db down")}
	service := newTestService(t, rec)

	event := intentEvent(t, stripe.EventTypePaymentIntentSucceeded, &stripe.PaymentIntent{ID: "pi_1"})
	if err := service.HandleEvent(context.Background(), event); err == nil {
		t.Fatalf("expected error so stripe retries")
	}
}

func TestService_PaymentFailedAndCanceled(t *testing.T) {
	rec := &stubRecorder{}
	service := newTestService(t, rec)

	failed := intentEvent(t, stripe.EventTypePaymentIntentPaymentFailed, &stripe.PaymentIntent{
		ID:               "pi_f",
		LastPaymentError: &stripe.Error{Msg: "Your card was declined."},
	})
	canceled := intentEvent(t, stripe.EventTypePaymentIntentCanceled, &stripe.PaymentIntent{ID: "pi_c"})
	for _, event := range []*stripe.Event{failed, canceled} {
		if err := service.HandleEvent(context.Background(), event); err != nil {
			t.Fatalf("handle event: %v", err)
		}
	}
	if len(rec.failures) != 2 {
		t.Fatalf("expected two failures, got %d", len(rec.failures))
	}
	if rec.failures[0].Cancelled || rec.failures[0].Reason != "Your card was declined." {
		t.Fatalf("unexpected failure: %+v", rec.failures[0])
	}
	if !rec.failures[1].Cancelled {
		t.Fatalf("expected cancellation")
	}
}

func TestService_IgnoresOtherEvents(t *testing.T) {
	rec := &stubRecorder{}
	service := newTestService(t, rec)

	event := &stripe.Event{Type: stripe.EventTypeChargeRefunded, Data: &stripe.EventData{Raw: json.RawMessage(`{}`)}}
	if err := service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(rec.captures)+len(rec.failures) != 0 {
		t.Fatalf("expected no calls")
	}
}

func TestService_RejectsMissingData(t *testing.T) {
	service := newTestService(t, &stubRecorder{})
	if err := service.HandleEvent(context.Background(), &stripe.Event{}); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func newTestService(t *testing.T, rec *stubRecorder) *Service {
	t.Helper()
	service, err := NewService(ServiceParams{Recorder: rec})
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}
	return service
}

func intentEvent(t *testing.T, typ stripe.EventType, pi *stripe.PaymentIntent) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(pi)
	if err != nil {
		t.Fatalf("marshal intent: %v", err)
	}
	return &stripe.Event{Type: typ, Data: &stripe.EventData{Raw: raw}}
}

type stubRecorder struct {
	captures   []reconcile.Capture
	failures   []reconcile.Failure
	captureErr error
}

func (s *stubRecorder) RecordCapture(_ context.Context, c reconcile.Capture) (*orders.Recorded, error) {
	s.captures = append(s.captures, c)
	if s.captureErr != nil {
		return nil, s.captureErr
	}
	return &orders.Recorded{}, nil
}

func (s *stubRecorder) RecordFailure(_ context.Context, f reconcile.Failure) error {
	s.failures = append(s.failures, f)
	return nil
}

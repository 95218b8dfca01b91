package checkout

import "testing"

func TestStateTransitions(t *testing.T) {
	allowed := []struct{ from, to State }{
		{StateIdle, StateAwaitingElementReady},
		{StateAwaitingElementReady, StateIdle},
		{StateAwaitingElementReady, StateSubmitting},
		{StateAwaitingElementReady, StateCancelled},
		{StateSubmitting, StateSucceeded},
		{StateSubmitting, StateFailed},
		{StateSubmitting, StateCancelled},
		{StateFailed, StateAwaitingElementReady},
		{StateCancelled, StateAwaitingElementReady},
	}
	for _, tc := range allowed {
		if !tc.from.CanTransitionTo(tc.to) {
			t.Fatalf("expected %s -> %s to be allowed", tc.from, tc.to)
		}
	}

	denied := []struct{ from, to State }{
		{StateIdle, StateSubmitting},
		{StateIdle, StateSucceeded},
		{StateSubmitting, StateIdle},
		{StateFailed, StateSubmitting},
		{StateSucceeded, StateAwaitingElementReady},
		{StateSucceeded, StateIdle},
	}
	for _, tc := range denied {
		if tc.from.CanTransitionTo(tc.to) {
			t.Fatalf("expected %s -> %s to be rejected", tc.from, tc.to)
		}
	}

	if !StateSucceeded.Terminal() {
		t.Fatalf("succeeded must be terminal")
	}
	if StateFailed.Terminal() {
		t.Fatalf("failed is not terminal")
	}
}

package enums

import "fmt"

// PaymentSessionStatus tracks a provider session from initiation to a recorded order.
type PaymentSessionStatus string

const (
	PaymentSessionInitiated PaymentSessionStatus = "initiated"
	// PaymentSessionCaptured means the provider charged the buyer but no order row exists yet.
	PaymentSessionCaptured  PaymentSessionStatus = "captured"
	PaymentSessionRecorded  PaymentSessionStatus = "recorded"
	PaymentSessionCancelled PaymentSessionStatus = "cancelled"
	PaymentSessionFailed    PaymentSessionStatus = "failed"
)

var validPaymentSessionStatuses = []PaymentSessionStatus{
	PaymentSessionInitiated,
	PaymentSessionCaptured,
	PaymentSessionRecorded,
	PaymentSessionCancelled,
	PaymentSessionFailed,
}

// String implements fmt.Stringer.
func (p PaymentSessionStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentSessionStatus.
func (p PaymentSessionStatus) IsValid() bool {
	for _, candidate := range validPaymentSessionStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentSessionStatus converts raw input into a PaymentSessionStatus.
func ParsePaymentSessionStatus(value string) (PaymentSessionStatus, error) {
	for _, candidate := range validPaymentSessionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment session status %q", value)
}

// PreviousStatuses lists the statuses a session may move to p from.
// Recorded is terminal.
func (p PaymentSessionStatus) PreviousStatuses() []PaymentSessionStatus {
	switch p {
	case PaymentSessionCaptured:
		return []PaymentSessionStatus{PaymentSessionInitiated, PaymentSessionFailed}
	case PaymentSessionRecorded:
		return []PaymentSessionStatus{PaymentSessionInitiated, PaymentSessionCaptured, PaymentSessionFailed}
	case PaymentSessionCancelled, PaymentSessionFailed:
		return []PaymentSessionStatus{PaymentSessionInitiated, PaymentSessionFailed}
	default:
		return nil
	}
}

package paypal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	pkgerrors "github.com/corporatepranks/storefront-backend/pkg/errors"
)

var declineIssues = map[string]struct{}{
	"INSTRUMENT_DECLINED":                     {},
	"PAYER_ACTION_REQUIRED":                   {},
	"TRANSACTION_REFUSED":                     {},
	"PAYER_CANNOT_PAY":                        {},
	"ORDER_NOT_APPROVED":                      {},
	"MAX_NUMBER_OF_PAYMENT_ATTEMPTS_EXCEEDED": {},
}

// DeclineError is a buyer-facing refusal from PayPal. Message is shown verbatim.
type DeclineError struct {
	Issue   string
	Message string
}

func (e *DeclineError) Error() string {
	return fmt.Sprintf("paypal declined (%s): %s", e.Issue, e.Message)
}

// AsDecline extracts a DeclineError from err.
func AsDecline(err error) (*DeclineError, bool) {
	var decline *DeclineError
	if errors.As(err, &decline) {
		return decline, true
	}
	return nil, false
}

type apiError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	DebugID string `json:"debug_id"`
	Details []struct {
		Issue       string `json:"issue"`
		Description string `json:"description"`
	} `json:"details"`
}

func mapAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var parsed apiError
	_ = json.Unmarshal(body, &parsed)

	for _, detail := range parsed.Details {
		if _, ok := declineIssues[detail.Issue]; ok {
			msg := strings.TrimSpace(detail.Description)
			if msg == "" {
				msg = parsed.Message
			}
			return pkgerrors.Wrap(pkgerrors.CodeDeclined, &DeclineError{Issue: detail.Issue, Message: msg}, msg)
		}
	}

	message := strings.TrimSpace(parsed.Message)
	if message == "" {
		message = strings.TrimSpace(string(body))
	}
	cause := fmt.Errorf("paypal %s: %s (debug_id=%s)", resp.Status, message, parsed.DebugID)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "paypal credentials rejected")
	case resp.StatusCode == http.StatusNotFound:
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, cause, "paypal order not found")
	case resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusBadRequest:
		return pkgerrors.Wrap(pkgerrors.CodeValidation, cause, "paypal rejected the request")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "paypal unavailable")
	}
}

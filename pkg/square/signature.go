package square

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// SignatureHeader carries Square's webhook HMAC.
const SignatureHeader = "X-Square-Hmacsha256-Signature"

// VerifySignature checks the base64 HMAC-SHA256 of notification URL + body.
func (c *Client) VerifySignature(payload []byte, header string) bool {
	if c == nil {
		return false
	}
	return verifySignature(c.webhookSecret, c.webhookURL, payload, header)
}

func verifySignature(secret, notificationURL string, payload []byte, header string) bool {
	if header == "" || secret == "" {
		return false
	}
	expected := Sign(secret, notificationURL, payload)
	return hmac.Equal([]byte(expected), []byte(header))
}

// Sign computes the signature Square would send for payload.
func Sign(secret, notificationURL string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(notificationURL))
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

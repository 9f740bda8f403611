// Package signature authenticates gateway notifications.
package signature

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

// TransactionTimeLayout is the wall-clock layout gateways use for transaction_time.
const TransactionTimeLayout = "2006-01-02 15:04:05"

var ErrInvalidTransactionTime = errors.New("invalid_transaction_time")

// Compute returns the hex SHA-512 digest of orderID+statusCode+grossAmount+secret.
func Compute(orderID, statusCode, grossAmount, secret string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + secret))
	return hex.EncodeToString(sum[:])
}

// Verify reports whether received matches the expected digest. Missing inputs never verify.
func Verify(orderID, statusCode, grossAmount, received, secret string) bool {
	if secret == "" || orderID == "" || statusCode == "" || grossAmount == "" {
		return false
	}
	received = strings.ToLower(strings.TrimSpace(received))
	if received == "" {
		return false
	}
	expected := Compute(orderID, statusCode, grossAmount, secret)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(received)) == 1
}

// ParseTransactionTime accepts the gateway layout in loc, or RFC 3339.
func ParseTransactionTime(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, ErrInvalidTransactionTime
	}
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.ParseInLocation(TransactionTimeLayout, raw, loc); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, ErrInvalidTransactionTime
}

// Fresh reports whether occurredAt lies within window before now. Future
// timestamps are accepted to tolerate clock skew.
func Fresh(occurredAt, now time.Time, window time.Duration) bool {
	if occurredAt.IsZero() || window <= 0 {
		return false
	}
	return now.Sub(occurredAt) <= window
}

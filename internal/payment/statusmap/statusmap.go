// Package statusmap translates gateway transaction statuses into internal ones.
package statusmap

import (
	"strings"

	"github.com/smallbiznis/guildpass/internal/payment/domain"
)

var table = map[string]domain.TransactionStatus{
	"settlement":     domain.TransactionStatusSuccess,
	"capture":        domain.TransactionStatusSuccess,
	"pending":        domain.TransactionStatusPending,
	"authorize":      domain.TransactionStatusPending,
	"deny":           domain.TransactionStatusFailed,
	"cancel":         domain.TransactionStatusFailed,
	"expire":         domain.TransactionStatusFailed,
	"failure":        domain.TransactionStatusFailed,
	"refund":         domain.TransactionStatusRefunded,
	"partial_refund": domain.TransactionStatusRefunded,
}

// Map returns the internal status for gatewayStatus and whether it is known.
func Map(gatewayStatus string) (domain.TransactionStatus, bool) {
	status, ok := table[strings.ToLower(strings.TrimSpace(gatewayStatus))]
	return status, ok
}

// IsCancellation reports whether a failed gateway status means the buyer or
// the gateway abandoned the attempt, as opposed to the payment being declined.
func IsCancellation(gatewayStatus string) bool {
	switch strings.ToLower(strings.TrimSpace(gatewayStatus)) {
	case "cancel", "expire":
		return true
	default:
		return false
	}
}

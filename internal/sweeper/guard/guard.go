// Package guard holds the pure checks the sweeper runs before it moves a
// subscription on its own initiative.
package guard

import (
	"errors"
	"time"

	paymentdomain "github.com/smallbiznis/guildpass/internal/payment/domain"
	subscriptiondomain "github.com/smallbiznis/guildpass/internal/subscription/domain"
)

var (
	ErrSubscriptionNotPending = errors.New("subscription_not_pending")
	ErrSubscriptionNotActive  = errors.New("subscription_not_active")
	ErrNotYetAbandoned        = errors.New("subscription_not_yet_abandoned")
	ErrNotYetLapsed           = errors.New("subscription_not_yet_lapsed")
	ErrGatewaySettled         = errors.New("gateway_reports_settled")
)

// Action is what the sweeper does with an abandoned checkout.
type Action string

const (
	ActionSkip    Action = "skip"
	ActionRestore Action = "restore"
	ActionCancel  Action = "cancel"
)

// EnsureAbandoned checks sub is still Pending and untouched since cutoff.
func EnsureAbandoned(sub subscriptiondomain.Subscription, cutoff time.Time) error {
	if sub.Status != subscriptiondomain.SubscriptionStatusPending {
		return ErrSubscriptionNotPending
	}
	if sub.UpdatedAt.After(cutoff) {
		return ErrNotYetAbandoned
	}
	return nil
}

// EnsureLapsed checks sub is Active with an expiry at or before now.
// Lifetime subscriptions never lapse.
func EnsureLapsed(sub subscriptiondomain.Subscription, now time.Time) error {
	if sub.Status != subscriptiondomain.SubscriptionStatusActive {
		return ErrSubscriptionNotActive
	}
	if sub.ExpiryDate == nil || sub.ExpiryDate.After(now) {
		return ErrNotYetLapsed
	}
	return nil
}

// DecideAbandoned picks the fate of an abandoned Pending subscription.
// gatewayStatus is the mapped status the gateway reports for the latest
// order, with known false when the lookup failed or returned nothing usable.
//
// A settled payment is left for the webhook. A renewal whose paid window has
// not run out falls back to Active; a started subscription without an expiry
// is lifetime and always falls back. Everything else is cancelled.
func DecideAbandoned(sub subscriptiondomain.Subscription, gatewayStatus paymentdomain.TransactionStatus, known bool, now time.Time) (Action, error) {
	if known && gatewayStatus == paymentdomain.TransactionStatusSuccess {
		return ActionSkip, ErrGatewaySettled
	}
	if sub.StartDate != nil && (sub.ExpiryDate == nil || sub.ExpiryDate.After(now)) {
		return ActionRestore, nil
	}
	return ActionCancel, nil
}

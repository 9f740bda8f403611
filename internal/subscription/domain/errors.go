package domain

import "errors"

var (
	ErrInvalidSubscription  = errors.New("invalid_subscription")
	ErrInvalidTier          = errors.New("invalid_tier")
	ErrInvalidMember        = errors.New("invalid_member")
	ErrInvalidTransition    = errors.New("invalid_transition")
	ErrInvalidTargetStatus  = errors.New("invalid_target_status")
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrTierNotFound         = errors.New("tier_not_found")
	ErrMemberNotFound       = errors.New("member_not_found")
	// ErrConcurrentTransition means the row left the expected status between read and write.
	ErrConcurrentTransition = errors.New("concurrent_transition")
	ErrGatewayUnavailable   = errors.New("gateway_unavailable")
)

// ErrCheckoutConflict is returned when two checkouts for the same subscription
// race inside the same second and collide on the order id.
var ErrCheckoutConflict = errors.New("checkout_conflict")

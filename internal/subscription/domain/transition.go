package domain

import "fmt"

var allowedTransitions = map[SubscriptionStatus][]SubscriptionStatus{
	SubscriptionStatusPending:   {SubscriptionStatusActive, SubscriptionStatusCancelled, SubscriptionStatusFailed},
	SubscriptionStatusActive:    {SubscriptionStatusExpired, SubscriptionStatusCancelled, SubscriptionStatusPending},
	SubscriptionStatusExpired:   {SubscriptionStatusPending},
	SubscriptionStatusCancelled: {SubscriptionStatusPending},
	SubscriptionStatusFailed:    {SubscriptionStatusPending},
}

// IsValid reports whether s is one of the known lifecycle states.
func (s SubscriptionStatus) IsValid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// CanTransition reports whether from -> to is in the lifecycle table.
// Self transitions are never allowed.
func CanTransition(from, to SubscriptionStatus) bool {
	for _, target := range allowedTransitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// TransitionError names a rejected transition. It matches ErrInvalidTransition.
type TransitionError struct {
	From SubscriptionStatus
	To   SubscriptionStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", ErrInvalidTransition.Error(), e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// ValidateTransition returns a *TransitionError when from -> to is not allowed.
func ValidateTransition(from, to SubscriptionStatus) error {
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

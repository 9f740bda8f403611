package webhook

import (
	"errors"
	"fmt"
)

// Kind classifies how a delivery ended.
type Kind string

const (
	KindRejectedInput       Kind = "rejected_input"
	KindUnverified          Kind = "unverified"
	KindUnrecognized        Kind = "unrecognized"
	KindInvalidTransition   Kind = "invalid_transition"
	KindCollaboratorFailure Kind = "collaborator_failure"
	KindStorageFailure      Kind = "storage_failure"
)

var (
	ErrMissingSignature = errors.New("missing_signature")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrStaleEvent       = errors.New("stale_event")
)

// Error is returned for deliveries the gateway must see as failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("webhook %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("webhook %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or "" when err is not a *Error.
func KindOf(err error) Kind {
	var werr *Error
	if errors.As(err, &werr) {
		return werr.Kind
	}
	return ""
}

func rejected(op string, err error) error {
	return &Error{Kind: KindRejectedInput, Op: op, Err: err}
}

func unverified(op string, err error) error {
	return &Error{Kind: KindUnverified, Op: op, Err: err}
}

func storageFailure(op string, err error) error {
	return &Error{Kind: KindStorageFailure, Op: op, Err: err}
}

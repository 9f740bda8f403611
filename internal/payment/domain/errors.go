package domain

import "errors"

var (
	ErrInvalidPayload     = errors.New("invalid_payload")
	ErrInvalidOrderID     = errors.New("invalid_order_id")
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrTransactionMissing = errors.New("transaction_not_found")
)

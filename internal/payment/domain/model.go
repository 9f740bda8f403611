package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type TransactionStatus string

const (
	TransactionStatusPending  TransactionStatus = "PENDING"
	TransactionStatusSuccess  TransactionStatus = "SUCCESS"
	TransactionStatusFailed   TransactionStatus = "FAILED"
	TransactionStatusRefunded TransactionStatus = "REFUNDED"
)

// IsTerminal reports whether no further gateway status is expected to change the outcome.
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case TransactionStatusSuccess, TransactionStatusFailed, TransactionStatusRefunded:
		return true
	default:
		return false
	}
}

// CanAdvanceTo reports whether a gateway report of next may overwrite s.
// Reports that would move a settled attempt backwards are stale; only a
// refund follows a success.
func (s TransactionStatus) CanAdvanceTo(next TransactionStatus) bool {
	if s == next {
		return false
	}
	switch s {
	case TransactionStatusPending:
		return true
	case TransactionStatusSuccess:
		return next == TransactionStatusRefunded
	case TransactionStatusFailed:
		return next == TransactionStatusSuccess
	default:
		return false
	}
}

// Transaction is one gateway payment attempt for a subscription.
type Transaction struct {
	ID                   snowflake.ID      `json:"id" gorm:"primaryKey"`
	SubscriptionID       snowflake.ID      `json:"subscription_id" gorm:"not null;index"`
	GatewayOrderID       string            `json:"gateway_order_id" gorm:"type:text;not null;uniqueIndex"`
	Amount               decimal.Decimal   `json:"amount" gorm:"type:numeric(18,2);not null"`
	Currency             string            `json:"currency" gorm:"type:text;not null"`
	Status               TransactionStatus `json:"status" gorm:"type:text;not null"`
	GatewayTransactionID *string           `json:"gateway_transaction_id,omitempty"`
	PaymentDate          *time.Time        `json:"payment_date,omitempty"`
	CreatedAt            time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt            time.Time         `json:"updated_at" gorm:"not null"`
}

func (Transaction) TableName() string { return "transactions" }

// StatusUpdate moves a transaction, identified by order id, to Status. When
// From is set the row must still hold it.
type StatusUpdate struct {
	GatewayOrderID       string
	From                 TransactionStatus
	Status               TransactionStatus
	GatewayTransactionID *string
	PaymentDate          *time.Time
	UpdatedAt            time.Time
}

// WebhookEvent is the append-only ledger row for one inbound delivery.
type WebhookEvent struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	GatewayOrderID  string         `json:"gateway_order_id" gorm:"type:text;not null;index"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	Signature       string         `json:"signature" gorm:"type:text;not null"`
	Verified        bool           `json:"verified" gorm:"not null"`
	Processed       bool           `json:"processed" gorm:"not null"`
	ProcessingError *string        `json:"processing_error,omitempty"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at,omitempty"`
}

func (WebhookEvent) TableName() string { return "webhook_events" }

// WebhookPayload is the gateway notification body.
type WebhookPayload struct {
	OrderID           string `json:"order_id" validate:"required,max=64"`
	StatusCode        string `json:"status_code" validate:"required,numeric"`
	GrossAmount       string `json:"gross_amount" validate:"required,numeric"`
	TransactionStatus string `json:"transaction_status" validate:"required"`
	TransactionID     string `json:"transaction_id" validate:"required"`
	TransactionTime   string `json:"transaction_time" validate:"required"`
	PaymentDate       string `json:"payment_date,omitempty"`
	SignatureKey      string `json:"signature_key,omitempty"`
}

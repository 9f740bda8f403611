// Package domain contains the subscription lifecycle model and its state machine.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// SubscriptionStatus represents lifecycle states for a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusPending   SubscriptionStatus = "PENDING"
	SubscriptionStatusActive    SubscriptionStatus = "ACTIVE"
	SubscriptionStatusFailed    SubscriptionStatus = "FAILED"
	SubscriptionStatusCancelled SubscriptionStatus = "CANCELLED"
	SubscriptionStatusExpired   SubscriptionStatus = "EXPIRED"
)

// Subscription is one member's access grant to one tier on one server.
type Subscription struct {
	ID                snowflake.ID        `json:"id" gorm:"primaryKey"`
	MemberID          snowflake.ID        `json:"member_id" gorm:"not null;index"`
	ServerID          snowflake.ID        `json:"server_id" gorm:"not null;index"`
	TierID            snowflake.ID        `json:"tier_id" gorm:"not null;index"`
	Status            SubscriptionStatus  `json:"status" gorm:"type:text;not null"`
	StartDate         *time.Time          `json:"start_date,omitempty"`
	ExpiryDate        *time.Time          `json:"expiry_date,omitempty"`
	LastPaymentAmount decimal.NullDecimal `json:"last_payment_amount" gorm:"type:numeric(18,2)"`
	LastPaymentDate   *time.Time          `json:"last_payment_date,omitempty"`
	CancelledAt       *time.Time          `json:"cancelled_at,omitempty"`
	CreatedAt         time.Time           `json:"created_at" gorm:"not null"`
	UpdatedAt         time.Time           `json:"updated_at" gorm:"not null"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

type Tier struct {
	ID            snowflake.ID    `json:"id"`
	ServerID      snowflake.ID    `json:"server_id"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	Currency      string          `json:"currency"`
	DurationDays  *int            `json:"duration_days,omitempty"`
	DiscordRoleID string          `json:"discord_role_id"`
}

type Server struct {
	ID             snowflake.ID `json:"id"`
	DiscordGuildID string       `json:"discord_guild_id"`
	Name           string       `json:"name"`
}

type Member struct {
	ID            snowflake.ID `json:"id"`
	DiscordUserID string       `json:"discord_user_id"`
	Email         *string      `json:"email,omitempty"`
}

// SubscriptionDetail bundles a subscription with the rows entitlement work needs.
type SubscriptionDetail struct {
	Subscription Subscription `json:"subscription"`
	Tier         Tier         `json:"tier"`
	Server       Server       `json:"server"`
	Member       Member       `json:"member"`
}

// TransitionInput carries the payment facts recorded when entering Active.
type TransitionInput struct {
	PaymentAmount decimal.NullDecimal
	PaymentDate   *time.Time
	Reason        string
	// Restore re-enters Active without touching payment or expiry fields.
	// Used when an abandoned renewal falls back to the window already paid for.
	Restore bool
}

// TransitionResult reports the applied change. Superseded lists other Active
// subscriptions of the same member and server that were cancelled to make room.
type TransitionResult struct {
	Subscription Subscription
	From         SubscriptionStatus
	Superseded   []Subscription
}

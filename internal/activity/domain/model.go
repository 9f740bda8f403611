package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type ActorType string

const (
	ActorTypeSystem      ActorType = "system"
	ActorTypeServerOwner ActorType = "server_owner"
)

const (
	ActionRoleGranted            = "role_granted"
	ActionRoleAssignmentFailed   = "role_assignment_failed"
	ActionRoleRevoked            = "role_revoked"
	ActionRoleRemovalFailed      = "role_removal_failed"
	ActionSubscriptionActivated  = "subscription_activated"
	ActionSubscriptionRefunded   = "subscription_refunded"
	ActionSubscriptionFailed     = "subscription_failed"
	ActionSubscriptionCancelled  = "subscription_cancelled"
	ActionSubscriptionExpired    = "subscription_expired"
	ActionSubscriptionSuperseded = "subscription_superseded"
	ActionNotificationFailed     = "notification_failed"
	ActionManualResync           = "manual_resync"
	ActionRenewalAbandoned       = "renewal_abandoned"
)

// Entry is one append-only record of an entitlement side effect.
type Entry struct {
	ID             snowflake.ID      `json:"id" gorm:"primaryKey"`
	SubscriptionID snowflake.ID      `json:"subscription_id" gorm:"not null;index"`
	ActorType      ActorType         `json:"actor_type" gorm:"type:text;not null"`
	ActorID        *string           `json:"actor_id,omitempty"`
	Action         string            `json:"action" gorm:"type:text;not null"`
	Details        datatypes.JSONMap `json:"details" gorm:"type:jsonb;not null"`
	CreatedAt      time.Time         `json:"created_at" gorm:"not null"`
}

func (Entry) TableName() string { return "activity_logs" }

type Cursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	SubscriptionID snowflake.ID
	Action         string
	Cursor         *Cursor
	Limit          int
}

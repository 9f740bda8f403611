package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type TransactionRepository interface {
	Insert(ctx context.Context, db *gorm.DB, tx *Transaction) error
	FindByOrderID(ctx context.Context, db *gorm.DB, orderID string) (*Transaction, error)
	FindLatestBySubscriptionID(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) (*Transaction, error)
	// UpdateStatus applies update only when the stored status differs from the
	// target and reports whether a row changed.
	UpdateStatus(ctx context.Context, db *gorm.DB, update StatusUpdate) (bool, error)
}

type WebhookEventRepository interface {
	Insert(ctx context.Context, db *gorm.DB, event *WebhookEvent) error
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, note *string, processedAt time.Time) error
	ListByOrderID(ctx context.Context, db *gorm.DB, orderID string) ([]WebhookEvent, error)
}

package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindDetail(ctx context.Context, db *gorm.DB, id snowflake.ID) (*SubscriptionDetail, error)
	FindLatestForTier(ctx context.Context, db *gorm.DB, memberID, tierID snowflake.ID) (*Subscription, error)
	ListByMemberServer(ctx context.Context, db *gorm.DB, memberID, serverID snowflake.ID, status SubscriptionStatus) ([]Subscription, error)
	// UpdateLifecycle writes the lifecycle columns of subscription only while
	// the stored status still equals expected.
	UpdateLifecycle(ctx context.Context, db *gorm.DB, subscription *Subscription, expected SubscriptionStatus) (bool, error)
	ListByStatusUpdatedBefore(ctx context.Context, db *gorm.DB, status SubscriptionStatus, before time.Time, limit int) ([]Subscription, error)
	ListActiveExpiredBefore(ctx context.Context, db *gorm.DB, at time.Time, limit int) ([]Subscription, error)
	FindTier(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Tier, error)
	FindMember(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Member, error)
}

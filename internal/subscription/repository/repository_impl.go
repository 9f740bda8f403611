package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/guildpass/internal/subscription/domain"
	pkgdb "github.com/smallbiznis/guildpass/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const activeMemberServerIndex = "ux_subscriptions_active_member_server"

const subscriptionColumns = `id, member_id, server_id, tier_id, status, start_date, expiry_date,
	last_payment_amount, last_payment_date, cancelled_at, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, subscription *domain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		subscription.ID,
		subscription.MemberID,
		subscription.ServerID,
		subscription.TierID,
		subscription.Status,
		subscription.StartDate,
		subscription.ExpiryDate,
		subscription.LastPaymentAmount,
		subscription.LastPaymentDate,
		subscription.CancelledAt,
		subscription.CreatedAt,
		subscription.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Subscription, error) {
	var item domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE id = ?
		LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

type detailRow struct {
	domain.Subscription
	TierName          string
	TierPrice         decimal.Decimal
	TierCurrency      string
	TierDurationDays  *int
	TierDiscordRoleID string
	ServerGuildID     string
	ServerName        string
	MemberDiscordID   string
	MemberEmail       *string
}

func (r *repo) FindDetail(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.SubscriptionDetail, error) {
	var row detailRow
	err := db.WithContext(ctx).Raw(
		`SELECT s.id, s.member_id, s.server_id, s.tier_id, s.status, s.start_date, s.expiry_date,
			s.last_payment_amount, s.last_payment_date, s.cancelled_at, s.created_at, s.updated_at,
			t.name AS tier_name,
			t.price AS tier_price,
			t.currency AS tier_currency,
			t.duration_days AS tier_duration_days,
			t.discord_role_id AS tier_discord_role_id,
			sv.discord_guild_id AS server_guild_id,
			sv.name AS server_name,
			m.discord_user_id AS member_discord_id,
			m.email AS member_email
		FROM subscriptions s
		JOIN tiers t ON t.id = s.tier_id
		JOIN servers sv ON sv.id = s.server_id
		JOIN members m ON m.id = s.member_id
		WHERE s.id = ?
		LIMIT 1`,
		id,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}

	return &domain.SubscriptionDetail{
		Subscription: row.Subscription,
		Tier: domain.Tier{
			ID:            row.TierID,
			ServerID:      row.ServerID,
			Name:          row.TierName,
			Price:         row.TierPrice,
			Currency:      row.TierCurrency,
			DurationDays:  row.TierDurationDays,
			DiscordRoleID: row.TierDiscordRoleID,
		},
		Server: domain.Server{
			ID:             row.ServerID,
			DiscordGuildID: row.ServerGuildID,
			Name:           row.ServerName,
		},
		Member: domain.Member{
			ID:            row.MemberID,
			DiscordUserID: row.MemberDiscordID,
			Email:         row.MemberEmail,
		},
	}, nil
}

func (r *repo) FindLatestForTier(ctx context.Context, db *gorm.DB, memberID, tierID snowflake.ID) (*domain.Subscription, error) {
	var item domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE member_id = ? AND tier_id = ?
		ORDER BY updated_at DESC, id DESC
		LIMIT 1`,
		memberID,
		tierID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListByMemberServer(ctx context.Context, db *gorm.DB, memberID, serverID snowflake.ID, status domain.SubscriptionStatus) ([]domain.Subscription, error) {
	var items []domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE member_id = ? AND server_id = ? AND status = ?
		ORDER BY id ASC`,
		memberID,
		serverID,
		status,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpdateLifecycle(ctx context.Context, db *gorm.DB, subscription *domain.Subscription, expected domain.SubscriptionStatus) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		SET status = ?,
			start_date = ?,
			expiry_date = ?,
			last_payment_amount = ?,
			last_payment_date = ?,
			cancelled_at = ?,
			updated_at = ?
		WHERE id = ? AND status = ?`,
		subscription.Status,
		subscription.StartDate,
		subscription.ExpiryDate,
		subscription.LastPaymentAmount,
		subscription.LastPaymentDate,
		subscription.CancelledAt,
		subscription.UpdatedAt,
		subscription.ID,
		expected,
	)
	if res.Error != nil {
		// another subscription of the member won the one-active slot first
		if subscription.Status == domain.SubscriptionStatusActive &&
			pkgdb.IsDuplicateOn(res.Error, activeMemberServerIndex, "subscriptions.member_id") {
			return false, domain.ErrConcurrentTransition
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListByStatusUpdatedBefore(ctx context.Context, db *gorm.DB, status domain.SubscriptionStatus, before time.Time, limit int) ([]domain.Subscription, error) {
	var items []domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE status = ? AND updated_at < ?
		ORDER BY updated_at ASC, id ASC
		LIMIT ?`,
		status,
		before,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListActiveExpiredBefore(ctx context.Context, db *gorm.DB, at time.Time, limit int) ([]domain.Subscription, error) {
	var items []domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE status = ? AND expiry_date IS NOT NULL AND expiry_date <= ?
		ORDER BY expiry_date ASC, id ASC
		LIMIT ?`,
		domain.SubscriptionStatusActive,
		at,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindTier(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Tier, error) {
	var item domain.Tier
	err := db.WithContext(ctx).Raw(
		`SELECT id, server_id, name, price, currency, duration_days, discord_role_id
		FROM tiers
		WHERE id = ?
		LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindMember(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Member, error) {
	var item domain.Member
	err := db.WithContext(ctx).Raw(
		`SELECT id, discord_user_id, email
		FROM members
		WHERE id = ?
		LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

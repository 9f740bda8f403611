package dbtest

import (
	"testing"
	"time"

	"gorm.io/gorm"
)

// Tier describes the context rows a subscription hangs off.
type Tier struct {
	ServerID      int64
	GuildID       string
	MemberID      int64
	DiscordUserID string
	Email         string
	TierID        int64
	Price         string
	DurationDays  *int
	DiscordRoleID string
}

// SeedTier inserts the server, member and tier rows described by f.
func SeedTier(t testing.TB, db *gorm.DB, f Tier) {
	t.Helper()

	var email any
	if f.Email != "" {
		email = f.Email
	}
	stmts := []struct {
		sql  string
		args []any
	}{
		{`INSERT INTO servers (id, discord_guild_id, name) VALUES (?, ?, ?)`, []any{f.ServerID, f.GuildID, "guild " + f.GuildID}},
		{`INSERT INTO members (id, discord_user_id, email) VALUES (?, ?, ?)`, []any{f.MemberID, f.DiscordUserID, email}},
		{`INSERT INTO tiers (id, server_id, name, price, currency, duration_days, discord_role_id) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			[]any{f.TierID, f.ServerID, "Supporter", f.Price, "IDR", f.DurationDays, f.DiscordRoleID}},
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt.sql, stmt.args...).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

// SeedSubscription inserts a subscription row directly, bypassing the state machine.
func SeedSubscription(t testing.TB, db *gorm.DB, id, memberID, serverID, tierID int64, status string, updatedAt time.Time) {
	t.Helper()

	err := db.Exec(
		`INSERT INTO subscriptions (id, member_id, server_id, tier_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, memberID, serverID, tierID, status, updatedAt, updatedAt,
	).Error
	if err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
}

// SeedTransaction inserts a transaction row for subscriptionID.
func SeedTransaction(t testing.TB, db *gorm.DB, id, subscriptionID int64, orderID, amount, status string, at time.Time) {
	t.Helper()

	err := db.Exec(
		`INSERT INTO transactions (id, subscription_id, gateway_order_id, amount, currency, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'IDR', ?, ?, ?)`,
		id, subscriptionID, orderID, amount, status, at, at,
	).Error
	if err != nil {
		t.Fatalf("seed transaction: %v", err)
	}
}

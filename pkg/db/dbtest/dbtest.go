// Package dbtest opens throwaway in-memory SQLite databases carrying the
// production schema for package tests.
package dbtest

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var seq atomic.Int64

var schema = []string{
	`CREATE TABLE servers (
		id BIGINT PRIMARY KEY,
		discord_guild_id TEXT NOT NULL,
		name TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE members (
		id BIGINT PRIMARY KEY,
		discord_user_id TEXT NOT NULL,
		email TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE tiers (
		id BIGINT PRIMARY KEY,
		server_id BIGINT NOT NULL,
		name TEXT NOT NULL,
		price NUMERIC NOT NULL,
		currency TEXT NOT NULL DEFAULT 'IDR',
		duration_days INT,
		discord_role_id TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE subscriptions (
		id BIGINT PRIMARY KEY,
		member_id BIGINT NOT NULL,
		server_id BIGINT NOT NULL,
		tier_id BIGINT NOT NULL,
		status TEXT NOT NULL,
		start_date DATETIME,
		expiry_date DATETIME,
		last_payment_amount NUMERIC,
		last_payment_date DATETIME,
		cancelled_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_subscriptions_active_member_server ON subscriptions(member_id, server_id) WHERE status = 'ACTIVE'`,
	`CREATE TABLE transactions (
		id BIGINT PRIMARY KEY,
		subscription_id BIGINT NOT NULL,
		gateway_order_id TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		gateway_transaction_id TEXT,
		payment_date DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_transactions_gateway_order_id ON transactions(gateway_order_id)`,
	`CREATE TABLE webhook_events (
		id BIGINT PRIMARY KEY,
		gateway_order_id TEXT NOT NULL DEFAULT '',
		payload TEXT NOT NULL,
		signature TEXT NOT NULL DEFAULT '',
		verified BOOLEAN NOT NULL DEFAULT FALSE,
		processed BOOLEAN NOT NULL DEFAULT FALSE,
		processing_error TEXT,
		received_at DATETIME NOT NULL,
		processed_at DATETIME
	)`,
	`CREATE TABLE activity_logs (
		id BIGINT PRIMARY KEY,
		subscription_id BIGINT NOT NULL,
		actor_type TEXT NOT NULL,
		actor_id TEXT,
		action TEXT NOT NULL,
		details TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL
	)`,
}

// Open returns an isolated in-memory database with the full schema applied.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:guildpass_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), seq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// a single connection keeps the shared-cache database alive and serializes writers
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return db
}

// Count returns the number of rows in table matching where.
func Count(t testing.TB, db *gorm.DB, table, where string, args ...any) int64 {
	t.Helper()

	var count int64
	query := db.Table(table)
	if where != "" {
		query = query.Where(where, args...)
	}
	if err := query.Count(&count).Error; err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return count
}

package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/guildpass/internal/activity"
	"github.com/smallbiznis/guildpass/internal/clock"
	"github.com/smallbiznis/guildpass/internal/config"
	"github.com/smallbiznis/guildpass/internal/entitlement"
	"github.com/smallbiznis/guildpass/internal/migration"
	"github.com/smallbiznis/guildpass/internal/notification"
	"github.com/smallbiznis/guildpass/internal/observability"
	"github.com/smallbiznis/guildpass/internal/payment"
	"github.com/smallbiznis/guildpass/internal/providers"
	"github.com/smallbiznis/guildpass/internal/ratelimit"
	"github.com/smallbiznis/guildpass/internal/server"
	"github.com/smallbiznis/guildpass/internal/subscription"
	"github.com/smallbiznis/guildpass/internal/sweeper"
	"github.com/smallbiznis/guildpass/internal/webhook"
	"github.com/smallbiznis/guildpass/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		ratelimit.Module,
		providers.Module,

		// Functional Domains
		activity.Module,
		payment.Module,
		subscription.Module,
		entitlement.Module,
		notification.Module,
		webhook.Module,

		// Sweeper loop runs in-process unless SWEEPER_ENABLED=false
		sweeper.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/guildpass/internal/activity"
	"github.com/smallbiznis/guildpass/internal/clock"
	"github.com/smallbiznis/guildpass/internal/config"
	"github.com/smallbiznis/guildpass/internal/entitlement"
	"github.com/smallbiznis/guildpass/internal/notification"
	"github.com/smallbiznis/guildpass/internal/observability"
	"github.com/smallbiznis/guildpass/internal/payment"
	"github.com/smallbiznis/guildpass/internal/providers"
	"github.com/smallbiznis/guildpass/internal/ratelimit"
	"github.com/smallbiznis/guildpass/internal/subscription"
	"github.com/smallbiznis/guildpass/internal/sweeper"
	"github.com/smallbiznis/guildpass/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		ratelimit.Module,
		providers.Module,

		// Domain services required by the sweeper
		activity.Module,
		payment.Module,
		subscription.Module,
		entitlement.Module,
		notification.Module,

		// No server module! The loop always runs here.
		fx.Decorate(func(cfg config.Config) config.Config {
			cfg.SweeperEnabled = true
			return cfg
		}),
		sweeper.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}

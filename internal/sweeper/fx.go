package sweeper

import (
	"context"

	"github.com/smallbiznis/guildpass/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("sweeper",
	fx.Provide(New),
	fx.Invoke(StartSweeper),
)

// StartSweeper runs the sweep loop for the lifetime of the app when
// SWEEPER_ENABLED is set.
func StartSweeper(lc fx.Lifecycle, cfg config.Config, sw *Sweeper, log *zap.Logger) {
	if !cfg.SweeperEnabled {
		log.Info("sweeper loop disabled")
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go sw.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}

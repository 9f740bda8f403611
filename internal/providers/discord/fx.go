package discord

import "go.uber.org/fx"

var Module = fx.Module("providers.discord",
	fx.Provide(New),
)

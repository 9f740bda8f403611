package providers

import (
	"github.com/smallbiznis/guildpass/internal/providers/discord"
	"github.com/smallbiznis/guildpass/internal/providers/email"
	"github.com/smallbiznis/guildpass/internal/providers/gateway"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	discord.Module,
	email.Module,
	gateway.Module,
)

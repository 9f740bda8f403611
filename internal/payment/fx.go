package payment

import (
	"github.com/smallbiznis/guildpass/internal/payment/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.repository",
	fx.Provide(repository.ProvideTransactions),
	fx.Provide(repository.ProvideWebhookEvents),
)

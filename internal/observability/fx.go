package observability

import (
	"github.com/smallbiznis/guildpass/internal/observability/logger"
	"github.com/smallbiznis/guildpass/internal/observability/metrics"
	"github.com/smallbiznis/guildpass/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		FromAppConfig,
		Config.Logger,
		Config.Tracing,
		Config.Metrics,
		logger.New,
		tracing.NewProvider,
		metrics.NewProvider,
		metrics.NewHTTPMetrics,
	),
	// the tracer provider has no consumers but must be installed globally
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
)

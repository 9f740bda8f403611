package observability

import (
	"strings"

	"github.com/smallbiznis/guildpass/internal/config"
	"github.com/smallbiznis/guildpass/internal/observability/logger"
	"github.com/smallbiznis/guildpass/internal/observability/metrics"
	"github.com/smallbiznis/guildpass/internal/observability/tracing"
)

// Routes whose spans are kept regardless of the sampling ratio.
var paymentRoutes = []string{
	"/webhooks/payment",
	"/api/checkout",
	"/internal/sweeps/run",
}

// Config is the observability view of the application config.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
	AlwaysSamplePaths    []string
}

func FromAppConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "guildpass"
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          strings.TrimSpace(cfg.Environment),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             cfg.Telemetry.LogLevel,
		LogFormat:            cfg.Telemetry.LogFormat,
		OtelEnabled:          cfg.Telemetry.OtelEnabled,
		OtelExporterEndpoint: strings.TrimSpace(cfg.OTLPEndpoint),
		OtelExporterProtocol: cfg.OTLPProtocol,
		OtelSamplingRatio:    cfg.Telemetry.SamplingRatio,
		AlwaysSamplePaths:    append([]string(nil), paymentRoutes...),
	}
}

func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func (c Config) Logger() logger.Config {
	return logger.Config{
		ServiceName:         c.ServiceName,
		Environment:         c.Environment,
		Version:             c.Version,
		Level:               c.LogLevel,
		Format:              c.LogFormat,
		Debug:               c.Debug(),
		IncludeCaller:       true,
		IncludeStackOnError: c.Debug(),
	}
}

func (c Config) Tracing() tracing.Config {
	return tracing.Config{
		Enabled:           c.OtelEnabled,
		ServiceName:       c.ServiceName,
		ServiceVersion:    c.Version,
		Environment:       c.Environment,
		ExporterEndpoint:  c.OtelExporterEndpoint,
		ExporterProtocol:  c.OtelExporterProtocol,
		SamplingRatio:     c.OtelSamplingRatio,
		AlwaysSamplePaths: c.AlwaysSamplePaths,
	}
}

func (c Config) Metrics() metrics.Config {
	return metrics.Config{
		Enabled:          c.OtelEnabled,
		ExporterEndpoint: c.OtelExporterEndpoint,
		ExporterProtocol: c.OtelExporterProtocol,
		ServiceName:      c.ServiceName,
		Environment:      c.Environment,
	}
}

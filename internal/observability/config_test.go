package observability

import (
	"testing"

	"github.com/smallbiznis/guildpass/internal/config"
)

func TestFromAppConfig(t *testing.T) {
	cfg := FromAppConfig(config.Config{
		Environment:  "production",
		OTLPEndpoint: " collector:4317 ",
		OTLPProtocol: "grpc",
		Telemetry: config.TelemetryConfig{
			LogLevel:      "info",
			OtelEnabled:   true,
			SamplingRatio: 0.25,
		},
	})
	if cfg.ServiceName != "guildpass" {
		t.Fatalf("expected default service name, got %q", cfg.ServiceName)
	}
	if cfg.Debug() {
		t.Fatalf("production at info level should not be debug")
	}

	tc := cfg.Tracing()
	if !tc.Enabled || tc.ExporterEndpoint != "collector:4317" || tc.SamplingRatio != 0.25 {
		t.Fatalf("unexpected tracing config: %+v", tc)
	}
	found := false
	for _, path := range tc.AlwaysSamplePaths {
		if path == "/webhooks/payment" {
			found = true
		}
	}
	if !found {
		t.Fatalf("webhook route must always be sampled: %v", tc.AlwaysSamplePaths)
	}
	if !cfg.Metrics().Enabled {
		t.Fatalf("metrics follow the otel switch")
	}
}

func TestConfigDebugInDevelopment(t *testing.T) {
	cfg := Config{Environment: "development", LogLevel: "info"}
	if !cfg.Debug() || !cfg.Logger().IncludeStackOnError {
		t.Fatalf("expected debug logging in development")
	}
}

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string
	OTLPProtocol string
	Telemetry    TelemetryConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisURL string

	Gateway GatewayConfig
	Discord DiscordConfig
	SMTP    SMTPConfig
	Webhook WebhookConfig
	Retry   RetryConfig

	// SweeperEnabled runs the expiry sweeper inside the HTTP process.
	SweeperEnabled bool
	// SweeperTriggerToken guards the manual sweep and resync endpoints.
	// Empty leaves them open.
	SweeperTriggerToken string
}

type TelemetryConfig struct {
	LogLevel      string
	LogFormat     string
	OtelEnabled   bool
	SamplingRatio float64
}

type GatewayConfig struct {
	ServerKey   string
	Environment string
	Timeout     time.Duration
}

type DiscordConfig struct {
	BotToken string
	Timeout  time.Duration
}

type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
}

type WebhookConfig struct {
	FreshnessWindow time.Duration
	// TimeZone is the location gateway transaction_time values are written in.
	TimeZone string
}

type RetryConfig struct {
	Attempts int
	Step     time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("DEPLOYMENT_ENV", getenv("ENVIRONMENT", "development"))
	protocol := getenv("OTEL_EXPORTER_OTLP_PROTOCOL", getenv("OTLP_PROTOCOL", "grpc"))
	if traces := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL")); traces != "" {
		protocol = traces
	}

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "guildpass"),
		AppVersion:   getenv("SERVICE_VERSION", getenv("APP_VERSION", "0.1.0")),
		Environment:  environment,
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint: getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317")),
		OTLPProtocol: strings.ToLower(strings.TrimSpace(protocol)),
		Telemetry: TelemetryConfig{
			LogLevel:      strings.ToLower(getenv("LOG_LEVEL", "info")),
			LogFormat:     strings.ToLower(getenv("LOG_FORMAT", "json")),
			OtelEnabled:   getenvBool("OTEL_ENABLED", environment == "production"),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "guildpass"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		RedisURL:          strings.TrimSpace(getenv("REDIS_URL", "")),
		Gateway: GatewayConfig{
			ServerKey:   strings.TrimSpace(getenv("GATEWAY_SERVER_KEY", "")),
			Environment: strings.ToLower(getenv("GATEWAY_ENVIRONMENT", "sandbox")),
			Timeout:     getenvDuration("GATEWAY_TIMEOUT", 10*time.Second),
		},
		Discord: DiscordConfig{
			BotToken: strings.TrimSpace(getenv("DISCORD_BOT_TOKEN", "")),
			Timeout:  getenvDuration("DISCORD_TIMEOUT", 5*time.Second),
		},
		SMTP: SMTPConfig{
			Host:      getenv("SMTP_HOST", ""),
			Port:      getenvInt("SMTP_PORT", 587),
			Username:  getenv("SMTP_USERNAME", ""),
			Password:  getenv("SMTP_PASSWORD", ""),
			FromEmail: getenv("SMTP_FROM_EMAIL", "noreply@guildpass.local"),
			FromName:  getenv("SMTP_FROM_NAME", "GuildPass"),
		},
		Webhook: WebhookConfig{
			FreshnessWindow: getenvDuration("WEBHOOK_FRESHNESS_WINDOW", 24*time.Hour),
			TimeZone:        getenv("WEBHOOK_TIME_ZONE", "Asia/Jakarta"),
		},
		Retry: RetryConfig{
			Attempts: getenvInt("COLLABORATOR_RETRY_ATTEMPTS", 3),
			Step:     getenvDuration("COLLABORATOR_RETRY_STEP", 500*time.Millisecond),
		},
		SweeperEnabled:      getenvBool("SWEEPER_ENABLED", true),
		SweeperTriggerToken: strings.TrimSpace(getenv("SWEEPER_TRIGGER_TOKEN", "")),
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

// WebhookLocation resolves Webhook.TimeZone, falling back to UTC.
func (c Config) WebhookLocation() *time.Location {
	loc, err := time.LoadLocation(strings.TrimSpace(c.Webhook.TimeZone))
	if err != nil {
		return time.UTC
	}
	return loc
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed < 0 || parsed > 1 {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

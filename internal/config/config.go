// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends selectable via STORE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP API listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCHealthAddr is the address of the gRPC health server; empty disables it.
	GRPCHealthAddr string `mapstructure:"GRPC_HEALTH_ADDR"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// StoreBackend selects where devices, sessions and challenges live: memory, postgres or redis.
	StoreBackend string `mapstructure:"STORE_BACKEND"`
	// DatabaseURL is the Postgres DSN. Required for the postgres backend; also used for audit logs when set.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisURL is the Redis URL (redis://host:6379/0). Required for the redis backend.
	RedisURL string `mapstructure:"REDIS_URL"`
	// RedisKeyPrefix namespaces every Redis key written by the engine.
	RedisKeyPrefix string `mapstructure:"REDIS_KEY_PREFIX"`

	// MaxSessions is the number of concurrently active sessions allowed per user (>= 1).
	MaxSessions int `mapstructure:"MAX_SESSIONS"`
	// SessionTTLRaw is the session lifetime (e.g. "24h").
	SessionTTLRaw string `mapstructure:"SESSION_TTL"`
	// ChallengeTTLRaw is the OTP challenge lifetime (e.g. "5m").
	ChallengeTTLRaw string `mapstructure:"CHALLENGE_TTL"`
	// ChallengeMaxAttempts is the number of wrong codes tolerated per challenge.
	ChallengeMaxAttempts int `mapstructure:"CHALLENGE_MAX_ATTEMPTS"`
	// OTPDigits is the OTP length (4–10).
	OTPDigits int `mapstructure:"OTP_DIGITS"`
	// ChallengeReaperIntervalRaw enables periodic purge of expired challenges (e.g. "10m"); empty or "0" disables.
	ChallengeReaperIntervalRaw string `mapstructure:"CHALLENGE_REAPER_INTERVAL"`
	// OTPReturnToClient when true keeps issued codes in memory for GET /v1/dev/otp/{id}. Refused when Env is production.
	OTPReturnToClient bool `mapstructure:"OTP_RETURN_TO_CLIENT"`
	// RiskPolicyFile optionally overrides the built-in Rego risk policy.
	RiskPolicyFile string `mapstructure:"RISK_POLICY_FILE"`
	// GeoCountryHeader is the request header carrying the ISO country code set by the edge (e.g. CF-IPCountry).
	GeoCountryHeader string `mapstructure:"GEO_COUNTRY_HEADER"`
	// GeoStaticTable maps CIDRs to countries ("10.0.0.0/8=IN,192.0.2.0/24=US") when no header is present.
	GeoStaticTable string `mapstructure:"GEO_STATIC_TABLE"`

	// AdminAPIKey guards /v1/admin routes; empty disables them.
	AdminAPIKey string `mapstructure:"ADMIN_API_KEY"`
	// ServiceAPIKey is the X-Service-Key the upstream auth service presents on /v1/login and
	// the session list and terminate routes; empty rejects those requests.
	ServiceAPIKey string `mapstructure:"SERVICE_API_KEY"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file; used with JWT_PUBLIC_KEY.
	// When both are empty session tokens are not issued.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim of session tokens.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim of session tokens.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`

	// SMTP settings for the email OTP sender. SMTPHost empty disables email delivery.
	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom     string `mapstructure:"SMTP_FROM"`
	SMTPTLS      bool   `mapstructure:"SMTP_TLS"`

	// SMSLocalAPIKey is the API key for SMS Local. Empty disables SMS delivery.
	SMSLocalAPIKey string `mapstructure:"SMS_LOCAL_API_KEY"`
	// SMSLocalSender is the optional sender ID for SMS Local.
	SMSLocalSender string `mapstructure:"SMS_LOCAL_SENDER"`
	// SMSLocalBaseURL is the SMS Local API base URL.
	SMSLocalBaseURL string `mapstructure:"SMS_LOCAL_BASE_URL"`

	// Telemetry (optional). When Kafka brokers are set, login events are produced to Kafka.
	// TelemetryKafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	TelemetryKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// TelemetryKafkaTopic is the Kafka topic for login events.
	TelemetryKafkaTopic string `mapstructure:"TELEMETRY_KAFKA_TOPIC"`
	// OTLPEndpoint is the OTLP gRPC collector endpoint; empty disables OpenTelemetry export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure disables TLS to the collector.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// Worker-only: Loki URL for the telemetry worker to push logs (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// KafkaGroupID is the consumer group ID for the telemetry worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_HEALTH_ADDR", ":9090")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE_BACKEND", BackendMemory)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_KEY_PREFIX", "st")
	v.SetDefault("MAX_SESSIONS", 1)
	v.SetDefault("SESSION_TTL", "24h")
	v.SetDefault("CHALLENGE_TTL", "5m")
	v.SetDefault("CHALLENGE_MAX_ATTEMPTS", 5)
	v.SetDefault("OTP_DIGITS", 6)
	v.SetDefault("CHALLENGE_REAPER_INTERVAL", "")
	v.SetDefault("OTP_RETURN_TO_CLIENT", false)
	v.SetDefault("RISK_POLICY_FILE", "")
	v.SetDefault("GEO_COUNTRY_HEADER", "CF-IPCountry")
	v.SetDefault("GEO_STATIC_TABLE", "")
	v.SetDefault("ADMIN_API_KEY", "")
	v.SetDefault("SERVICE_API_KEY", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "session-trust")
	v.SetDefault("JWT_AUDIENCE", "session-trust-api")
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "")
	v.SetDefault("SMTP_TLS", true)
	v.SetDefault("SMS_LOCAL_API_KEY", "")
	v.SetDefault("SMS_LOCAL_SENDER", "")
	v.SetDefault("SMS_LOCAL_BASE_URL", "https://app.smslocal.in/api/smsapi")
	v.SetDefault("TELEMETRY_KAFKA_TOPIC", "session-trust-events")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", true)
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "session-trust-worker")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	switch cfg.StoreBackend {
	case BackendMemory:
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("config: DATABASE_URL must be set when STORE_BACKEND=postgres")
		}
	case BackendRedis:
		if cfg.RedisURL == "" {
			return nil, errors.New("config: REDIS_URL must be set when STORE_BACKEND=redis")
		}
	default:
		return nil, fmt.Errorf("config: STORE_BACKEND must be memory, postgres or redis, got %q", cfg.StoreBackend)
	}

	if cfg.OTPReturnToClient && cfg.Env == "production" {
		return nil, errors.New("config: OTP_RETURN_TO_CLIENT must not be true when APP_ENV=production")
	}

	if cfg.MaxSessions < 1 {
		return nil, errors.New("config: MAX_SESSIONS must be at least 1")
	}
	if cfg.ChallengeMaxAttempts < 1 {
		return nil, errors.New("config: CHALLENGE_MAX_ATTEMPTS must be at least 1")
	}
	if cfg.OTPDigits < 4 || cfg.OTPDigits > 10 {
		return nil, errors.New("config: OTP_DIGITS must be between 4 and 10")
	}
	if (cfg.JWTPrivateKey == "") != (cfg.JWTPublicKey == "") {
		return nil, errors.New("config: JWT_PRIVATE_KEY and JWT_PUBLIC_KEY must be set together")
	}

	return &cfg, nil
}

// SessionTTL parses SessionTTLRaw. Returns 24h if unset or invalid.
func (c *Config) SessionTTL() time.Duration {
	d, err := time.ParseDuration(c.SessionTTLRaw)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// ChallengeTTL parses ChallengeTTLRaw. Returns 5m if unset or invalid.
func (c *Config) ChallengeTTL() time.Duration {
	d, err := time.ParseDuration(c.ChallengeTTLRaw)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// ChallengeReaperInterval parses ChallengeReaperIntervalRaw. Returns 0 (disabled) if unset or invalid.
func (c *Config) ChallengeReaperInterval() time.Duration {
	d, err := time.ParseDuration(c.ChallengeReaperIntervalRaw)
	if err != nil || d <= 0 {
		return 0
	}
	return d
}

// SlogLevel maps LogLevel to a slog.Level; unknown values map to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// TelemetryKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if event production is enabled (non-empty list) and to create the producer.
func (c *Config) TelemetryKafkaBrokersList() []string {
	if c == nil || c.TelemetryKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.TelemetryKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// EmailEnabled reports whether SMTP delivery is configured.
func (c *Config) EmailEnabled() bool {
	return c.SMTPHost != "" && c.SMTPFrom != ""
}

// SMSEnabled reports whether SMS Local delivery is configured.
func (c *Config) SMSEnabled() bool {
	return c.SMSLocalAPIKey != ""
}

// TokensEnabled reports whether session tokens are signed on admission.
func (c *Config) TokensEnabled() bool {
	return c.JWTPrivateKey != "" && c.JWTPublicKey != ""
}

package config

import (
	"log/slog"
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load returned nil config")
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8080")
	}
	if cfg.GRPCHealthAddr != ":9090" {
		t.Errorf("GRPCHealthAddr = %q, want %q", cfg.GRPCHealthAddr, ":9090")
	}
	if cfg.StoreBackend != BackendMemory {
		t.Errorf("StoreBackend = %q, want %q", cfg.StoreBackend, BackendMemory)
	}
	if cfg.MaxSessions != 1 {
		t.Errorf("MaxSessions = %d, want 1", cfg.MaxSessions)
	}
	if cfg.ChallengeMaxAttempts != 5 {
		t.Errorf("ChallengeMaxAttempts = %d, want 5", cfg.ChallengeMaxAttempts)
	}
	if cfg.OTPDigits != 6 {
		t.Errorf("OTPDigits = %d, want 6", cfg.OTPDigits)
	}
	if cfg.ChallengeTTL() != 5*time.Minute {
		t.Errorf("ChallengeTTL = %v, want 5m", cfg.ChallengeTTL())
	}
	if cfg.SessionTTL() != 24*time.Hour {
		t.Errorf("SessionTTL = %v, want 24h", cfg.SessionTTL())
	}
	if cfg.ChallengeReaperInterval() != 0 {
		t.Errorf("ChallengeReaperInterval = %v, want 0", cfg.ChallengeReaperInterval())
	}
	if cfg.GeoCountryHeader != "CF-IPCountry" {
		t.Errorf("GeoCountryHeader = %q, want CF-IPCountry", cfg.GeoCountryHeader)
	}
	if cfg.SMSLocalBaseURL != "https://app.smslocal.in/api/smsapi" {
		t.Errorf("SMSLocalBaseURL = %q, want default", cfg.SMSLocalBaseURL)
	}
	if cfg.OTPReturnToClient {
		t.Error("OTPReturnToClient should default to false")
	}
	if cfg.TokensEnabled() {
		t.Error("TokensEnabled should be false without keys")
	}
	if cfg.EmailEnabled() || cfg.SMSEnabled() {
		t.Error("notification channels should be disabled by default")
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("HTTP_ADDR", ":9999")
	os.Setenv("MAX_SESSIONS", "3")
	os.Setenv("CHALLENGE_TTL", "90s")
	os.Setenv("OTP_DIGITS", "8")
	os.Setenv("SERVICE_API_KEY", "svc")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9999" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":9999")
	}
	if cfg.MaxSessions != 3 {
		t.Errorf("MaxSessions = %d, want 3", cfg.MaxSessions)
	}
	if cfg.ChallengeTTL() != 90*time.Second {
		t.Errorf("ChallengeTTL = %v, want 90s", cfg.ChallengeTTL())
	}
	if cfg.OTPDigits != 8 {
		t.Errorf("OTPDigits = %d, want 8", cfg.OTPDigits)
	}
	if cfg.ServiceAPIKey != "svc" {
		t.Errorf("ServiceAPIKey = %q, want svc", cfg.ServiceAPIKey)
	}
}

func TestLoad_StoreBackend(t *testing.T) {
	testCases := []struct {
		name    string
		env     map[string]string
		wantErr bool
	}{
		{"memory", map[string]string{"STORE_BACKEND": "memory"}, false},
		{"postgres without dsn", map[string]string{"STORE_BACKEND": "postgres"}, true},
		{"postgres with dsn", map[string]string{"STORE_BACKEND": "postgres", "DATABASE_URL": "postgres://localhost/st"}, false},
		{"redis without url", map[string]string{"STORE_BACKEND": "redis"}, true},
		{"redis with url", map[string]string{"STORE_BACKEND": "redis", "REDIS_URL": "redis://localhost:6379/0"}, false},
		{"unknown", map[string]string{"STORE_BACKEND": "mongo"}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tc.env {
				os.Setenv(k, v)
			}
			_, err := Load()
			if tc.wantErr && err == nil {
				t.Fatal("Load should return error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("Load: %v", err)
			}
		})
	}
}

func TestLoad_Limits(t *testing.T) {
	testCases := []struct {
		name  string
		key   string
		value string
	}{
		{"max sessions zero", "MAX_SESSIONS", "0"},
		{"max attempts zero", "CHALLENGE_MAX_ATTEMPTS", "0"},
		{"otp too short", "OTP_DIGITS", "3"},
		{"otp too long", "OTP_DIGITS", "11"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			os.Clearenv()
			os.Setenv(tc.key, tc.value)
			cfg, err := Load()
			if err == nil {
				t.Fatalf("Load should return error for %s=%s", tc.key, tc.value)
			}
			if cfg != nil {
				t.Error("Load should return nil config on error")
			}
		})
	}
}

func TestLoad_OTPReturnToClientProduction(t *testing.T) {
	os.Clearenv()
	os.Setenv("OTP_RETURN_TO_CLIENT", "true")
	os.Setenv("APP_ENV", "production")

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load should return error when OTP_RETURN_TO_CLIENT=true and APP_ENV=production")
	}
	if cfg != nil {
		t.Error("Load should return nil config on error")
	}
	if err.Error() != "config: OTP_RETURN_TO_CLIENT must not be true when APP_ENV=production" {
		t.Errorf("error = %q, want production message", err.Error())
	}
}

func TestLoad_OTPReturnToClientDevelopment(t *testing.T) {
	os.Clearenv()
	os.Setenv("OTP_RETURN_TO_CLIENT", "true")
	os.Setenv("APP_ENV", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.OTPReturnToClient {
		t.Error("OTPReturnToClient should be true")
	}
}

func TestLoad_JWTKeysMustBePaired(t *testing.T) {
	os.Clearenv()
	os.Setenv("JWT_PRIVATE_KEY", "/tmp/key.pem")

	if _, err := Load(); err == nil {
		t.Fatal("Load should return error when only JWT_PRIVATE_KEY is set")
	}
}

func TestSessionTTL_InvalidDuration(t *testing.T) {
	for _, raw := range []string{"invalid", "0", "-1h"} {
		cfg := &Config{SessionTTLRaw: raw}
		if got := cfg.SessionTTL(); got != 24*time.Hour {
			t.Errorf("SessionTTL(%q) = %v, want 24h (default)", raw, got)
		}
	}
}

func TestChallengeTTL_InvalidDuration(t *testing.T) {
	for _, raw := range []string{"invalid", "0", "-5m"} {
		cfg := &Config{ChallengeTTLRaw: raw}
		if got := cfg.ChallengeTTL(); got != 5*time.Minute {
			t.Errorf("ChallengeTTL(%q) = %v, want 5m (default)", raw, got)
		}
	}
}

func TestChallengeReaperInterval(t *testing.T) {
	cfg := &Config{ChallengeReaperIntervalRaw: "10m"}
	if got := cfg.ChallengeReaperInterval(); got != 10*time.Minute {
		t.Errorf("ChallengeReaperInterval = %v, want 10m", got)
	}
	cfg.ChallengeReaperIntervalRaw = "nope"
	if got := cfg.ChallengeReaperInterval(); got != 0 {
		t.Errorf("ChallengeReaperInterval = %v, want 0", got)
	}
}

func TestSlogLevel(t *testing.T) {
	testCases := []struct {
		raw  string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tc := range testCases {
		cfg := &Config{LogLevel: tc.raw}
		if got := cfg.SlogLevel(); got != tc.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestTelemetryKafkaBrokersList(t *testing.T) {
	var nilCfg *Config
	if nilCfg.TelemetryKafkaBrokersList() != nil {
		t.Error("nil config should return nil brokers")
	}
	cfg := &Config{TelemetryKafkaBrokers: " a:9092, ,b:9092 "}
	got := cfg.TelemetryKafkaBrokersList()
	if len(got) != 2 || got[0] != "a:9092" || got[1] != "b:9092" {
		t.Errorf("TelemetryKafkaBrokersList = %v, want [a:9092 b:9092]", got)
	}
}

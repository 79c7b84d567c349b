package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig(env string) Config {
	return Config{
		App:      AppConfig{Env: env, Port: 8080, ServiceDomain: "bridge.example.com"},
		DB:       DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "merxus"},
		Redis:    RedisConfig{Host: "localhost", Port: 6379},
		Auth:     AuthConfig{JWTSecret: "secret"},
		Realtime: RealtimeConfig{APIKey: "sk-test"},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"APP_ENV", "SERVICE_DOMAIN", "OPENAI_API_KEY", "JWT_SECRET"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in error: %v", want, err)
		}
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validConfig("production")
	c.Auth.JWTIssuer = "merxus"
	c.Auth.JWTAudience = "bridge"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_LocalAppliesDefaults(t *testing.T) {
	c := validConfig("local")
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Realtime.URL != "wss://api.openai.com/v1/realtime" {
		t.Fatalf("unexpected realtime url default %q", c.Realtime.URL)
	}
	if c.Realtime.BetaHeader != "realtime=v1" {
		t.Fatalf("unexpected beta header default %q", c.Realtime.BetaHeader)
	}
	if c.Bridge.ConnectTimeout != 10*time.Second || c.Bridge.IdleTimeout != 30*time.Second {
		t.Fatalf("unexpected bridge timeouts: %+v", c.Bridge)
	}
	if c.Bridge.QueueSize != 64 || c.Bridge.MaxMalformedFrames != 20 {
		t.Fatalf("unexpected bridge limits: %+v", c.Bridge)
	}
	if c.Tenant.CacheTTL != 5*time.Minute {
		t.Fatalf("unexpected cache ttl %v", c.Tenant.CacheTTL)
	}
}

func TestValidate_RejectsSchemeInServiceDomain(t *testing.T) {
	c := validConfig("local")
	c.App.ServiceDomain = "https://bridge.example.com"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for service domain with scheme")
	}
}

func TestValidate_SignatureNeedsAuthToken(t *testing.T) {
	c := validConfig("local")
	c.Twilio.ValidateSignature = true
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error when signature validation has no auth token")
	}
}

func TestLoad_ReadsEnv(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("SERVICE_DOMAIN", "bridge.example.com")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("DB_USER", "u")
	t.Setenv("DB_NAME", "merxus")
	t.Setenv("REDIS_HOST", "redis")
	t.Setenv("REDIS_PORT", "6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("OPENAI_API_KEY", "sk")
	t.Setenv("BRIDGE_IDLE_TIMEOUT", "45s")
	t.Setenv("TENANT_MAX_CONCURRENT_CALLS", "3")
	t.Setenv("TWILIO_VALIDATE_SIGNATURE", "false")

	c, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.HTTPAddr() != ":9090" {
		t.Fatalf("unexpected addr %q", c.HTTPAddr())
	}
	if c.Bridge.IdleTimeout != 45*time.Second {
		t.Fatalf("expected idle timeout from env, got %v", c.Bridge.IdleTimeout)
	}
	if c.Tenant.MaxConcurrentCalls != 3 {
		t.Fatalf("expected call cap 3, got %d", c.Tenant.MaxConcurrentCalls)
	}
	if c.RedisAddr() != "redis:6379" {
		t.Fatalf("unexpected redis addr %q", c.RedisAddr())
	}
	if c.Redis.DB != 2 {
		t.Fatalf("expected redis db 2, got %d", c.Redis.DB)
	}
}

func TestValidate_RejectsNegativeRedisDB(t *testing.T) {
	c := validConfig("local")
	c.Redis.DB = -1
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for negative REDIS_DB")
	}
}

func TestLoad_RejectsNonIntegerQueueSize(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("REDIS_PORT", "6379")
	t.Setenv("BRIDGE_QUEUE_SIZE", "lots")

	if _, err := Load(); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestValidate_RejectsUnknownLogLevel(t *testing.T) {
	c := validConfig("local")
	c.App.LogLevel = "verbose"
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "LOG_LEVEL") {
		t.Fatalf("expected LOG_LEVEL error, got %v", err)
	}
	c.App.LogLevel = "warn"
	if err := c.Validate(); err != nil {
		t.Fatalf("expected warn accepted, got %v", err)
	}
}

func TestLoad_RejectsNonBooleanFlags(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("REDIS_PORT", "6379")
	t.Setenv("TWILIO_VALIDATE_SIGNATURE", "yes")
	t.Setenv("STREAM_TOKEN_REQUIRED", "on")

	_, err := Load()
	if err == nil {
		t.Fatalf("expected parse error for non-boolean flags")
	}
	for _, want := range []string{"TWILIO_VALIDATE_SIGNATURE", "STREAM_TOKEN_REQUIRED"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in error: %v", want, err)
		}
	}
}

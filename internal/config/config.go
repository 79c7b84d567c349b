package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the bridge process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Twilio   TwilioConfig
	Realtime RealtimeConfig
	Bridge   BridgeConfig
	Tenant   TenantConfig
}

type AppConfig struct {
	Env  string
	Port int

	// LogLevel overrides the env-derived level: debug, info, warn or error.
	LogLevel string

	// ServiceDomain is the public host the carrier dials back for media streams.
	ServiceDomain string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	// DB selects the logical database; shared clusters give the bridge its own.
	DB int
}

type AuthConfig struct {
	JWTSecret      string
	JWTIssuer      string
	JWTAudience    string
	AccessTokenTTL time.Duration

	// StreamTokenTTL bounds how long a handshake-issued stream token stays valid.
	StreamTokenTTL time.Duration
	// StreamTokenRequired rejects media connections without a valid token.
	StreamTokenRequired bool
}

type TwilioConfig struct {
	AccountSID        string
	AuthToken         string
	ValidateSignature bool
}

// CallControlEnabled reports whether REST credentials are present.
func (t TwilioConfig) CallControlEnabled() bool {
	return t.AccountSID != "" && t.AuthToken != ""
}

type RealtimeConfig struct {
	APIKey     string
	URL        string
	BetaHeader string
}

type BridgeConfig struct {
	ConnectTimeout     time.Duration
	IdleTimeout        time.Duration
	WriteTimeout       time.Duration
	QueueSize          int
	MaxMalformedFrames int
}

type TenantConfig struct {
	CacheTTL time.Duration
	// MaxConcurrentCalls caps live sessions per tenant; 0 disables the cap.
	MaxConcurrentCalls int
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}
	c.App.ServiceDomain = strings.TrimSpace(os.Getenv("SERVICE_DOMAIN"))
	c.App.LogLevel = strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL")))

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	{
		n, err := optionalInt("REDIS_DB")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.DB = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate() based on env.
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")
	c.Auth.StreamTokenTTL = mustDuration("STREAM_TOKEN_TTL")
	{
		b, err := optionalBool("STREAM_TOKEN_REQUIRED")
		parseErrs = appendBoolErr(parseErrs, err)
		c.Auth.StreamTokenRequired = b
	}

	c.Twilio.AccountSID = strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID"))
	c.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	{
		b, err := optionalBool("TWILIO_VALIDATE_SIGNATURE")
		parseErrs = appendBoolErr(parseErrs, err)
		c.Twilio.ValidateSignature = b
	}

	c.Realtime.APIKey = os.Getenv("OPENAI_API_KEY")
	c.Realtime.URL = strings.TrimSpace(os.Getenv("REALTIME_URL"))
	c.Realtime.BetaHeader = strings.TrimSpace(os.Getenv("REALTIME_BETA_HEADER"))

	c.Bridge.ConnectTimeout = mustDuration("BRIDGE_CONNECT_TIMEOUT")
	c.Bridge.IdleTimeout = mustDuration("BRIDGE_IDLE_TIMEOUT")
	c.Bridge.WriteTimeout = mustDuration("BRIDGE_WRITE_TIMEOUT")
	{
		n, err := optionalInt("BRIDGE_QUEUE_SIZE")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Bridge.QueueSize = n
	}
	{
		n, err := optionalInt("BRIDGE_MAX_MALFORMED_FRAMES")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Bridge.MaxMalformedFrames = n
	}

	c.Tenant.CacheTTL = mustDuration("TENANT_CACHE_TTL")
	{
		n, err := optionalInt("TENANT_MAX_CONCURRENT_CALLS")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Tenant.MaxConcurrentCalls = n
	}

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required values and fills defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	switch c.App.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error, got %q", c.App.LogLevel))
	}
	if c.App.ServiceDomain == "" {
		errs = append(errs, errors.New("SERVICE_DOMAIN is required"))
	} else if strings.Contains(c.App.ServiceDomain, "://") || strings.Contains(c.App.ServiceDomain, "/") {
		errs = append(errs, fmt.Errorf("SERVICE_DOMAIN must be a bare host, got %q", c.App.ServiceDomain))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}
	if c.Redis.DB < 0 {
		errs = append(errs, fmt.Errorf("REDIS_DB must be >= 0, got %d", c.Redis.DB))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.StreamTokenTTL <= 0 {
		// Carrier dials back within seconds of the handshake.
		c.Auth.StreamTokenTTL = 2 * time.Minute
	}

	if c.Twilio.ValidateSignature && c.Twilio.AuthToken == "" {
		errs = append(errs, errors.New("TWILIO_AUTH_TOKEN is required when TWILIO_VALIDATE_SIGNATURE is set"))
	}

	if c.Realtime.APIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required"))
	}
	if c.Realtime.URL == "" {
		c.Realtime.URL = "wss://api.openai.com/v1/realtime"
	} else if u, err := url.Parse(c.Realtime.URL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		errs = append(errs, fmt.Errorf("REALTIME_URL must be a ws:// or wss:// url, got %q", c.Realtime.URL))
	}
	if c.Realtime.BetaHeader == "" {
		c.Realtime.BetaHeader = "realtime=v1"
	}

	if c.Bridge.ConnectTimeout <= 0 {
		c.Bridge.ConnectTimeout = 10 * time.Second
	}
	if c.Bridge.IdleTimeout <= 0 {
		c.Bridge.IdleTimeout = 30 * time.Second
	}
	if c.Bridge.WriteTimeout <= 0 {
		c.Bridge.WriteTimeout = 5 * time.Second
	}
	if c.Bridge.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("BRIDGE_QUEUE_SIZE must not be negative, got %d", c.Bridge.QueueSize))
	} else if c.Bridge.QueueSize == 0 {
		c.Bridge.QueueSize = 64
	}
	if c.Bridge.MaxMalformedFrames < 0 {
		errs = append(errs, fmt.Errorf("BRIDGE_MAX_MALFORMED_FRAMES must not be negative, got %d", c.Bridge.MaxMalformedFrames))
	} else if c.Bridge.MaxMalformedFrames == 0 {
		c.Bridge.MaxMalformedFrames = 20
	}

	if c.Tenant.CacheTTL <= 0 {
		c.Tenant.CacheTTL = 5 * time.Minute
	}
	if c.Tenant.MaxConcurrentCalls < 0 {
		errs = append(errs, fmt.Errorf("TENANT_MAX_CONCURRENT_CALLS must not be negative, got %d", c.Tenant.MaxConcurrentCalls))
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalInt(key string) (int, error) {
	if strings.TrimSpace(os.Getenv(key)) == "" {
		return 0, nil
	}
	return mustInt(key)
}

// optionalBool is false when unset. Anything strconv.ParseBool rejects is an
// error rather than a silent false.
func optionalBool(key string) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, v)
	}
	return b, nil
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func appendBoolErr(errs []error, err error) []error {
	if err != nil {
		errs = append(errs, err)
	}
	return errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}

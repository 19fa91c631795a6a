// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"net/netip"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the public HTTP API listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// AdminAddr serves /metrics; it should not be exposed publicly.
	AdminAddr string `mapstructure:"ADMIN_ADDR"`
	// GRPCHealthAddr serves the gRPC health protocol for orchestrators.
	GRPCHealthAddr string `mapstructure:"GRPC_HEALTH_ADDR"`
	// DatabaseURL is the Postgres DSN. Empty selects in-memory stores (not allowed in production).
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// DBQueryTimeout bounds a single store operation (e.g. "5s").
	DBQueryTimeout string `mapstructure:"DB_QUERY_TIMEOUT"`
	// AutoMigrate applies embedded migrations at startup when true.
	AutoMigrate bool `mapstructure:"AUTO_MIGRATE"`

	// JWTAccessPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file for access tokens.
	JWTAccessPrivateKey string `mapstructure:"JWT_ACCESS_PRIVATE_KEY"`
	// JWTAccessPublicKey is the PEM-encoded public key or path to file for access tokens.
	JWTAccessPublicKey string `mapstructure:"JWT_ACCESS_PUBLIC_KEY"`
	// JWTRefreshPrivateKey signs refresh tokens; it must differ from the access key.
	JWTRefreshPrivateKey string `mapstructure:"JWT_REFRESH_PRIVATE_KEY"`
	// JWTRefreshPublicKey verifies refresh tokens.
	JWTRefreshPublicKey string `mapstructure:"JWT_REFRESH_PUBLIC_KEY"`
	// JWTIssuer is the iss claim (e.g. "opsgate-auth").
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim (e.g. "opsgate-api").
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "168h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// RefreshReuseRevokesAll revokes every session of an operator when a rotated refresh token is replayed.
	RefreshReuseRevokesAll bool `mapstructure:"REFRESH_REUSE_REVOKES_ALL"`
	// SweepInterval is how often expired refresh records and stale counters are removed.
	SweepInterval string `mapstructure:"SWEEP_INTERVAL"`

	RateGeneralLimit     int    `mapstructure:"RATE_GENERAL_LIMIT"`
	RateGeneralWindow    string `mapstructure:"RATE_GENERAL_WINDOW"`
	RateAuthLimit        int    `mapstructure:"RATE_AUTH_LIMIT"`
	RateAuthWindow       string `mapstructure:"RATE_AUTH_WINDOW"`
	RatePrivilegedLimit  int    `mapstructure:"RATE_PRIVILEGED_LIMIT"`
	RatePrivilegedWindow string `mapstructure:"RATE_PRIVILEGED_WINDOW"`
	// RateAuthDelayAfter is the number of auth attempts per window served without delay.
	RateAuthDelayAfter int `mapstructure:"RATE_AUTH_DELAY_AFTER"`
	// RateAuthDelayStep is added to the response delay for each auth attempt past RateAuthDelayAfter.
	RateAuthDelayStep string `mapstructure:"RATE_AUTH_DELAY_STEP"`
	// RateAuthDelayMax caps the auth response delay.
	RateAuthDelayMax string `mapstructure:"RATE_AUTH_DELAY_MAX"`
	// RateLimitRedisURL selects Redis-backed admission counters (e.g. redis://localhost:6379/0).
	RateLimitRedisURL string `mapstructure:"RATE_LIMIT_REDIS_URL"`
	// TrustedProxies is a comma-separated list of IPs or CIDRs whose forwarding headers are honored.
	TrustedProxies string `mapstructure:"TRUSTED_PROXIES"`

	// OTLPEndpoint is the OTLP gRPC collector (e.g. localhost:4317). Empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// AuditKafkaBrokers is a comma-separated list of Kafka brokers for the audit stream mirror.
	AuditKafkaBrokers string `mapstructure:"AUDIT_KAFKA_BROKERS"`
	// AuditKafkaTopic is the topic audit events are mirrored to.
	AuditKafkaTopic string `mapstructure:"AUDIT_KAFKA_TOPIC"`

	// DevOperatorEmail and DevOperatorSecret provision one operator at startup when running on in-memory stores.
	// Ignored in production and with DATABASE_URL set; use cmd/seed there.
	DevOperatorEmail  string `mapstructure:"DEV_OPERATOR_EMAIL"`
	DevOperatorSecret string `mapstructure:"DEV_OPERATOR_SECRET"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// LogFormat is json or text.
	LogFormat string `mapstructure:"LOG_FORMAT"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
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
	v.SetDefault("ADMIN_ADDR", ":9090")
	v.SetDefault("GRPC_HEALTH_ADDR", ":9091")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DB_QUERY_TIMEOUT", "5s")
	v.SetDefault("AUTO_MIGRATE", false)
	v.SetDefault("JWT_ACCESS_PRIVATE_KEY", "")
	v.SetDefault("JWT_ACCESS_PUBLIC_KEY", "")
	v.SetDefault("JWT_REFRESH_PRIVATE_KEY", "")
	v.SetDefault("JWT_REFRESH_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "opsgate-auth")
	v.SetDefault("JWT_AUDIENCE", "opsgate-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "168h") // 7d
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("REFRESH_REUSE_REVOKES_ALL", false)
	v.SetDefault("SWEEP_INTERVAL", "10m")
	v.SetDefault("RATE_GENERAL_LIMIT", 100)
	v.SetDefault("RATE_GENERAL_WINDOW", "15m")
	v.SetDefault("RATE_AUTH_LIMIT", 10)
	v.SetDefault("RATE_AUTH_WINDOW", "15m")
	v.SetDefault("RATE_PRIVILEGED_LIMIT", 200)
	v.SetDefault("RATE_PRIVILEGED_WINDOW", "15m")
	v.SetDefault("RATE_AUTH_DELAY_AFTER", 3)
	v.SetDefault("RATE_AUTH_DELAY_STEP", "500ms")
	v.SetDefault("RATE_AUTH_DELAY_MAX", "20s")
	v.SetDefault("RATE_LIMIT_REDIS_URL", "")
	v.SetDefault("TRUSTED_PROXIES", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("AUDIT_KAFKA_BROKERS", "")
	v.SetDefault("AUDIT_KAFKA_TOPIC", "opsgate-audit")
	v.SetDefault("DEV_OPERATOR_EMAIL", "")
	v.SetDefault("DEV_OPERATOR_SECRET", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field ranges and cross-field rules. Load calls it; tests may call it directly.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = 12
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if c.IsProduction() && c.DatabaseURL == "" {
		return errors.New("config: DATABASE_URL is required when APP_ENV=production")
	}
	if c.IsProduction() && !c.HasSigningKeys() {
		return errors.New("config: JWT access and refresh key pairs are required when APP_ENV=production")
	}
	if c.JWTAccessPrivateKey != "" && c.JWTAccessPrivateKey == c.JWTRefreshPrivateKey {
		return errors.New("config: JWT_ACCESS_PRIVATE_KEY and JWT_REFRESH_PRIVATE_KEY must differ")
	}
	for name, limit := range map[string]int{
		"RATE_GENERAL_LIMIT":    c.RateGeneralLimit,
		"RATE_AUTH_LIMIT":       c.RateAuthLimit,
		"RATE_PRIVILEGED_LIMIT": c.RatePrivilegedLimit,
	} {
		if limit <= 0 {
			return errors.New("config: " + name + " must be positive")
		}
	}
	if _, err := c.TrustedProxyPrefixes(); err != nil {
		return err
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "production")
}

// HasSigningKeys reports whether both token classes have a configured key pair.
func (c *Config) HasSigningKeys() bool {
	return c.JWTAccessPrivateKey != "" && c.JWTAccessPublicKey != "" &&
		c.JWTRefreshPrivateKey != "" && c.JWTRefreshPublicKey != ""
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parseDuration(c.JWTAccessTTL, 15*time.Minute)
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return parseDuration(c.JWTRefreshTTL, 168*time.Hour)
}

// QueryTimeout parses DBQueryTimeout. Returns 5s if unset or invalid.
func (c *Config) QueryTimeout() time.Duration {
	return parseDuration(c.DBQueryTimeout, 5*time.Second)
}

// SweepEvery parses SweepInterval. Returns 10m if unset or invalid.
func (c *Config) SweepEvery() time.Duration {
	return parseDuration(c.SweepInterval, 10*time.Minute)
}

// RateBudget is a request budget per fixed window.
type RateBudget struct {
	Limit  int
	Window time.Duration
}

// GeneralBudget returns the budget for unauthenticated general traffic.
func (c *Config) GeneralBudget() RateBudget {
	return RateBudget{Limit: c.RateGeneralLimit, Window: parseDuration(c.RateGeneralWindow, 15*time.Minute)}
}

// AuthBudget returns the budget for login and refresh attempts.
func (c *Config) AuthBudget() RateBudget {
	return RateBudget{Limit: c.RateAuthLimit, Window: parseDuration(c.RateAuthWindow, 15*time.Minute)}
}

// PrivilegedBudget returns the budget for authenticated operator traffic.
func (c *Config) PrivilegedBudget() RateBudget {
	return RateBudget{Limit: c.RatePrivilegedLimit, Window: parseDuration(c.RatePrivilegedWindow, 15*time.Minute)}
}

// AuthDelayStep parses RateAuthDelayStep. Returns 500ms if unset or invalid; "0s" disables slow-down.
func (c *Config) AuthDelayStep() time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(c.RateAuthDelayStep))
	if err != nil || d < 0 {
		return 500 * time.Millisecond
	}
	return d
}

// AuthDelayMax parses RateAuthDelayMax. Returns 20s if unset or invalid.
func (c *Config) AuthDelayMax() time.Duration {
	return parseDuration(c.RateAuthDelayMax, 20*time.Second)
}

// TrustedProxyPrefixes parses TrustedProxies into prefixes. Bare addresses become single-host prefixes.
func (c *Config) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, raw := range splitList(c.TrustedProxies) {
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, errors.New("config: invalid TRUSTED_PROXIES entry " + raw)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, errors.New("config: invalid TRUSTED_PROXIES entry " + raw)
		}
		out = append(out, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	return out, nil
}

// AuditKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// An empty list disables the Kafka audit mirror.
func (c *Config) AuditKafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.AuditKafkaBrokers)
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

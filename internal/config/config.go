// Package config reads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"pinboard.dev/internal/obs"
)

// developmentSecret signs tokens for a local, in-memory development run only.
const developmentSecret = "pinboard-development-secret"

// Config contains runtime configuration values.
type Config struct {
	Environment        string
	HTTPAddr           string
	GRPCAddr           string
	DatabaseURL        string
	MigrationsDir      string
	MigrateOnStart     bool
	BaseURL            string
	AuthSecret         string
	EmailFrom          string
	SMTPAddr           string
	SMTPUsername       string
	SMTPPassword       string
	ResendAPIKey       string
	RedisURL           string
	TokenTTL           time.Duration
	SessionTTL         time.Duration
	InviteTTL          time.Duration
	SigninRateLimit    int
	SigninRateWindow   time.Duration
	PurgeInterval      time.Duration
	CORSAllowedOrigins []string
	TrustedProxies     []netip.Prefix
	ShutdownTimeout    time.Duration
}

// Load reads configuration from environment variables. APP_ENV defaults to
// production; development defaults apply only when it is set explicitly.
func Load() (Config, error) {
	cfg := Config{
		Environment:        GetString("APP_ENV", "production"),
		HTTPAddr:           GetString("HTTP_ADDR", ":8080"),
		GRPCAddr:           GetString("GRPC_ADDR", ":9090"),
		DatabaseURL:        GetString("PINBOARD_PG_DSN", ""),
		MigrationsDir:      GetString("MIGRATIONS_DIR", ""),
		MigrateOnStart:     GetBool("MIGRATE_ON_START", false),
		BaseURL:            strings.TrimRight(GetString("PINBOARD_BASE_URL", "http://localhost:8080"), "/"),
		AuthSecret:         GetString("PINBOARD_AUTH_SECRET", ""),
		EmailFrom:          GetString("EMAIL_FROM", "Pinboard <no-reply@pinboard.local>"),
		SMTPAddr:           GetString("SMTP_ADDR", ""),
		SMTPUsername:       GetString("SMTP_USERNAME", ""),
		SMTPPassword:       GetString("SMTP_PASSWORD", ""),
		ResendAPIKey:       GetString("RESEND_API_KEY", ""),
		RedisURL:           GetString("REDIS_URL", ""),
		TokenTTL:           GetDuration("VERIFICATION_TOKEN_TTL", 24*time.Hour),
		SessionTTL:         GetDuration("SESSION_TTL", 30*24*time.Hour),
		InviteTTL:          GetDuration("INVITE_TTL", 7*24*time.Hour),
		SigninRateLimit:    GetInt("SIGNIN_RATE_LIMIT", 5),
		SigninRateWindow:   GetDuration("SIGNIN_RATE_WINDOW", time.Minute),
		PurgeInterval:      GetDuration("PURGE_INTERVAL", time.Hour),
		CORSAllowedOrigins: getList("CORS_ALLOWED_ORIGINS", nil),
		ShutdownTimeout:    GetDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}

	proxies, err := parsePrefixes(getList("TRUSTED_PROXIES", nil))
	if err != nil {
		return Config{}, fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}
	cfg.TrustedProxies = proxies

	u, err := url.Parse(cfg.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Config{}, fmt.Errorf("PINBOARD_BASE_URL must be an absolute http(s) URL, got %q", cfg.BaseURL)
	}
	if cfg.AuthSecret == "" {
		switch {
		case !cfg.IsDevelopment():
			return Config{}, errors.New("PINBOARD_AUTH_SECRET is required")
		case cfg.DatabaseURL != "" || cfg.SecureCookies():
			return Config{}, errors.New("PINBOARD_AUTH_SECRET is required when PINBOARD_PG_DSN or an https PINBOARD_BASE_URL is set")
		}
		cfg.AuthSecret = developmentSecret
		obs.Logger().Warn("PINBOARD_AUTH_SECRET not set, using the public development secret; sessions and invitations are forgeable",
			zap.String("environment", cfg.Environment))
	}
	if cfg.AuthSecret == developmentSecret && (cfg.DatabaseURL != "" || cfg.SecureCookies()) {
		return Config{}, errors.New("the development secret cannot be used with PINBOARD_PG_DSN or an https PINBOARD_BASE_URL")
	}
	if cfg.TokenTTL <= 0 || cfg.SessionTTL <= 0 || cfg.InviteTTL <= 0 {
		return Config{}, errors.New("token, session and invite TTLs must be positive")
	}
	return cfg, nil
}

// IsDevelopment reports whether the process runs in a local environment.
func (c Config) IsDevelopment() bool {
	switch strings.ToLower(c.Environment) {
	case "", "dev", "development", "local", "test":
		return true
	}
	return false
}

// SecureCookies reports whether session cookies should carry the Secure flag.
func (c Config) SecureCookies() bool {
	return strings.HasPrefix(c.BaseURL, "https://")
}

// GetString retrieves an environment variable or returns a fallback when unset.
func GetString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return fallback
}

// GetInt retrieves an environment variable as integer or returns fallback.
func GetInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			invalid(key, err)
			return fallback
		}
		return parsed
	}
	return fallback
}

// GetBool retrieves an environment variable as bool or returns fallback.
func GetBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			invalid(key, err)
			return fallback
		}
		return parsed
	}
	return fallback
}

// GetDuration parses a Go duration ("15m", "24h") or returns fallback.
func GetDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := time.ParseDuration(strings.TrimSpace(value))
		if err != nil {
			invalid(key, err)
			return fallback
		}
		return parsed
	}
	return fallback
}

func getList(key string, def []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

// parsePrefixes accepts CIDRs and bare addresses.
func parsePrefixes(values []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(values))
	for _, v := range values {
		if strings.Contains(v, "/") {
			p, err := netip.ParsePrefix(v)
			if err != nil {
				return nil, err
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(v)
		if err != nil {
			return nil, err
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

func invalid(key string, err error) {
	obs.Logger().Warn("invalid config value, using default", zap.String("key", key), zap.Error(err))
}

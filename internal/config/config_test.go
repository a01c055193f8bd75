package config

import (
	"net/netip"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsInDevelopment(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("PINBOARD_AUTH_SECRET", "")
	t.Setenv("PINBOARD_PG_DSN", "")
	t.Setenv("PINBOARD_BASE_URL", "http://localhost:8080")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddr)
	require.Equal(t, 24*time.Hour, cfg.TokenTTL)
	require.Equal(t, 30*24*time.Hour, cfg.SessionTTL)
	require.Equal(t, developmentSecret, cfg.AuthSecret)
	require.False(t, cfg.SecureCookies())
}

func TestLoadRequiresSecretInProduction(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("PINBOARD_AUTH_SECRET", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadDefaultsToProduction(t *testing.T) {
	t.Setenv("APP_ENV", "")
	require.NoError(t, os.Unsetenv("APP_ENV"))
	t.Setenv("PINBOARD_AUTH_SECRET", "s3cret")
	t.Setenv("PINBOARD_PG_DSN", "")
	t.Setenv("PINBOARD_BASE_URL", "http://localhost:8080")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "production", cfg.Environment)
	require.False(t, cfg.IsDevelopment())
}

func TestLoadRefusesDevelopmentSecretForRealDeployments(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"unset environment", map[string]string{
			"PINBOARD_BASE_URL": "https://board.example",
			"PINBOARD_PG_DSN":   "postgres://pinboard@db/pinboard",
		}},
		{"development with dsn", map[string]string{
			"APP_ENV":           "development",
			"PINBOARD_BASE_URL": "http://localhost:8080",
			"PINBOARD_PG_DSN":   "postgres://pinboard@db/pinboard",
		}},
		{"development with https", map[string]string{
			"APP_ENV":           "development",
			"PINBOARD_BASE_URL": "https://board.example",
		}},
		{"explicit development secret", map[string]string{
			"APP_ENV":              "development",
			"PINBOARD_AUTH_SECRET": developmentSecret,
			"PINBOARD_PG_DSN":      "postgres://pinboard@db/pinboard",
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("APP_ENV", "")
			require.NoError(t, os.Unsetenv("APP_ENV"))
			t.Setenv("PINBOARD_AUTH_SECRET", "")
			t.Setenv("PINBOARD_PG_DSN", "")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			cfg, err := Load()
			require.Error(t, err)
			require.NotEqual(t, developmentSecret, cfg.AuthSecret)
		})
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("PINBOARD_AUTH_SECRET", "s3cret")
	t.Setenv("PINBOARD_BASE_URL", "https://board.example/")
	t.Setenv("VERIFICATION_TOKEN_TTL", "15m")
	t.Setenv("SIGNIN_RATE_LIMIT", "not-a-number")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "https://board.example", cfg.BaseURL)
	require.Equal(t, 15*time.Minute, cfg.TokenTTL)
	require.Equal(t, 5, cfg.SigninRateLimit)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	require.True(t, cfg.SecureCookies())
	require.False(t, cfg.IsDevelopment())
}

func TestLoadRejectsRelativeBaseURL(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("PINBOARD_BASE_URL", "/relative")

	_, err := Load()
	require.Error(t, err)
}

func TestGetBool(t *testing.T) {
	t.Setenv("FLAG_ON", "true")
	t.Setenv("FLAG_BAD", "maybe")
	require.True(t, GetBool("FLAG_ON", false))
	require.True(t, GetBool("FLAG_BAD", true))
	require.False(t, GetBool("FLAG_UNSET_FOR_TEST", false))
}

func TestLoadTrustedProxies(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("PINBOARD_AUTH_SECRET", "s3cret")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.0.2.1")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("192.0.2.1/32"),
	}, cfg.TrustedProxies)

	t.Setenv("TRUSTED_PROXIES", "not-an-ip")
	_, err = Load()
	require.Error(t, err)
}

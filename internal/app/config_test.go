package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Addr:           "0.0.0.0:8080",
		Storage:        StorageMemory,
		IdempotencyTTL: time.Hour,
		RateLimit:      RateLimitConfig{Max: 100, Window: time.Minute},
	}
}

func TestConfigValidate(t *testing.T) {
	for _, tt := range []struct {
		name   string
		modify func(c *Config)
		errMsg string
	}{
		{name: "Memory", modify: func(*Config) {}},
		{
			name: "Postgres",
			modify: func(c *Config) {
				c.Storage = StoragePostgres
				c.DatabaseURL = "postgres://localhost/kart"
			},
		},
		{
			name:   "PostgresWithoutURL",
			modify: func(c *Config) { c.Storage = StoragePostgres },
			errMsg: "database URL is required",
		},
		{
			name:   "UnknownStorage",
			modify: func(c *Config) { c.Storage = "sqlite" },
			errMsg: `unknown storage "sqlite"`,
		},
		{
			name:   "ZeroTTL",
			modify: func(c *Config) { c.IdempotencyTTL = 0 },
			errMsg: "idempotency TTL",
		},
		{
			name:   "ZeroRateLimit",
			modify: func(c *Config) { c.RateLimit.Max = 0 },
			errMsg: "rate limit",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.modify(&c)
			err := c.Validate()
			if tt.errMsg == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestApplyPlatformDefaults(t *testing.T) {
	env := map[string]string{
		"DATABASE_URL": "postgres://platform/db",
		"REDIS_URL":    "redis://platform:6379/0",
		"PORT":         "9090",
	}
	getenv := func(k string) string { return env[k] }

	t.Run("FillsEmpty", func(t *testing.T) {
		c := validConfig()
		c.applyPlatformDefaults(getenv)
		assert.Equal(t, "postgres://platform/db", c.DatabaseURL)
		assert.Equal(t, "redis://platform:6379/0", c.RedisURL)
		assert.Equal(t, "0.0.0.0:9090", c.Addr)
	})
	t.Run("KeepsExplicit", func(t *testing.T) {
		c := validConfig()
		c.Addr = "127.0.0.1:8000"
		c.DatabaseURL = "postgres://explicit/db"
		c.RedisURL = "redis://explicit:6379/1"
		c.applyPlatformDefaults(getenv)
		assert.Equal(t, "postgres://explicit/db", c.DatabaseURL)
		assert.Equal(t, "redis://explicit:6379/1", c.RedisURL)
		assert.Equal(t, "127.0.0.1:8000", c.Addr)
	})
}

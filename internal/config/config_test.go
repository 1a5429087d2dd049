package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("UPSTREAM_BASE_URL", "http://accounts.local/api")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://accounts.local/api", cfg.Upstream.BaseURL)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Equal(t, 7*24*time.Hour, cfg.Store.TTL)
	assert.Equal(t, 60, cfg.Flow.ResendSeconds())
	assert.Equal(t, 30*time.Second, cfg.Flow.RefreshLeeway)
	assert.Equal(t, "bm_sid", cfg.Server.SessionCookie)
	assert.Equal(t, 30*time.Minute, cfg.Server.IdleTimeout)
	assert.Equal(t, 10000, cfg.Server.MaxSessions)
	assert.Equal(t, 20, cfg.RateLimit.Limit)
	assert.True(t, cfg.RateLimit.Enabled)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("UPSTREAM_BASE_URL", "http://accounts.local/api")
	t.Setenv("STORE_DRIVER", "REDIS")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("RESEND_COOLDOWN", "90s")
	t.Setenv("RATE_LIMIT", "5")
	t.Setenv("RATE_LIMIT_WINDOW", "30s")
	t.Setenv("PORT", ":9090")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreRedis, cfg.Store.Driver)
	assert.Equal(t, "cache:6380", cfg.Redis.Addr())
	assert.Equal(t, 90, cfg.Flow.ResendSeconds())
	assert.Equal(t, 5, cfg.RateLimit.Limit)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, ":9090", cfg.Server.Address())
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.env")
	content := "UPSTREAM_BASE_URL=http://from-file/api\nSTORE_DRIVER=postgres\nDB_NAME=bm_test\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Cleanup(func() {
		for _, key := range []string{"UPSTREAM_BASE_URL", "STORE_DRIVER", "DB_NAME"} {
			_ = os.Unsetenv(key)
		}
	})

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://from-file/api", cfg.Upstream.BaseURL)
	assert.Equal(t, StorePostgres, cfg.Store.Driver)
	assert.Equal(t, "bm_test", cfg.Database.DBName)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing upstream",
			env:     map[string]string{"UPSTREAM_BASE_URL": ""},
			wantErr: "UPSTREAM_BASE_URL",
		},
		{
			name:    "unknown driver",
			env:     map[string]string{"UPSTREAM_BASE_URL": "http://x", "STORE_DRIVER": "mongo"},
			wantErr: "STORE_DRIVER",
		},
		{
			name:    "short cooldown",
			env:     map[string]string{"UPSTREAM_BASE_URL": "http://x", "RESEND_COOLDOWN": "500ms"},
			wantErr: "RESEND_COOLDOWN",
		},
		{
			name:    "wildcard origin",
			env:     map[string]string{"UPSTREAM_BASE_URL": "http://x", "ALLOW_ORIGINS": "*"},
			wantErr: "ALLOW_ORIGINS",
		},
		{
			name:    "bad duration",
			env:     map[string]string{"UPSTREAM_BASE_URL": "http://x", "SESSION_IDLE_TIMEOUT": "soon"},
			wantErr: "parse config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestServerConfig_Address(t *testing.T) {
	assert.Equal(t, ":8080", ServerConfig{Port: "8080"}.Address())
	assert.Equal(t, ":3000", ServerConfig{Port: ":3000"}.Address())
}

package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tajious/bmconsole/internal/config"
	"github.com/tajious/bmconsole/internal/logging"
	"github.com/tajious/bmconsole/internal/models"
)

// tokenStoreContract runs the behaviour every TokenStore implementation
// shares against a freshly built, empty store.
func tokenStoreContract(t *testing.T, newStore func(t *testing.T) TokenStore) {
	ctx := context.Background()

	t.Run("empty store reads as absent", func(t *testing.T) {
		store := newStore(t)
		got := store.Read(ctx)
		assert.Equal(t, models.Tokens{}, got)
		assert.False(t, got.Authenticated())
	})

	t.Run("write then read", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Write(ctx, "A1", "R1", models.RoleStaff))

		got := store.Read(ctx)
		assert.Equal(t, models.Tokens{Access: "A1", Refresh: "R1", Role: models.RoleStaff}, got)
		assert.True(t, got.Authenticated())
	})

	t.Run("write replaces all slots", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Write(ctx, "A1", "R1", models.RoleStaff))
		require.NoError(t, store.Write(ctx, "A2", "R2", models.RoleRenter))

		assert.Equal(t, models.Tokens{Access: "A2", Refresh: "R2", Role: models.RoleRenter}, store.Read(ctx))
	})

	t.Run("update access keeps refresh and role", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Write(ctx, "A1", "R1", models.RoleRenter))
		require.NoError(t, store.UpdateAccess(ctx, "A9"))

		assert.Equal(t, models.Tokens{Access: "A9", Refresh: "R1", Role: models.RoleRenter}, store.Read(ctx))
	})

	t.Run("update access without a session", func(t *testing.T) {
		store := newStore(t)
		assert.ErrorIs(t, store.UpdateAccess(ctx, "A9"), ErrNoSession)
		assert.Equal(t, models.Tokens{}, store.Read(ctx))
	})

	t.Run("clear empties every slot", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Write(ctx, "A1", "R1", models.RoleStaff))
		require.NoError(t, store.Clear(ctx))

		assert.Equal(t, models.Tokens{}, store.Read(ctx))
	})

	t.Run("clear is idempotent", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Clear(ctx))
		require.NoError(t, store.Clear(ctx))
	})

	t.Run("unknown role reads as absent", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Write(ctx, "A1", "R1", models.Role("admin")))

		got := store.Read(ctx)
		assert.Equal(t, "A1", got.Access)
		assert.Equal(t, models.Role(""), got.Role)
	})
}

func TestMemoryTokenStore(t *testing.T) {
	tokenStoreContract(t, func(t *testing.T) TokenStore {
		return NewMemoryTokenStore()
	})
}

func TestMemoryBackend_NamespacesAreIsolated(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()

	a := backend.Store("a")
	b := backend.Store("b")
	require.NoError(t, a.Write(ctx, "A1", "R1", models.RoleStaff))

	assert.True(t, a.Read(ctx).Authenticated())
	assert.False(t, b.Read(ctx).Authenticated())

	require.NoError(t, b.Clear(ctx))
	assert.True(t, a.Read(ctx).Authenticated())
}

func newMiniredisBackend(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *RedisBackend) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewRedisBackend(client, ttl, logging.Discard())
}

func TestRedisTokenStore(t *testing.T) {
	tokenStoreContract(t, func(t *testing.T) TokenStore {
		_, backend := newMiniredisBackend(t, time.Hour)
		return backend.Store("sid-1")
	})
}

func TestRedisTokenStore_KeysAndTTL(t *testing.T) {
	ctx := context.Background()
	mr, backend := newMiniredisBackend(t, time.Hour)
	store := backend.Store("sid-1")

	require.NoError(t, store.Write(ctx, "A1", "R1", models.RoleStaff))

	access, err := mr.Get("bm:console:sid-1:access")
	require.NoError(t, err)
	assert.Equal(t, "A1", access)
	role, err := mr.Get("bm:console:sid-1:role")
	require.NoError(t, err)
	assert.Equal(t, "staff", role)
	assert.Equal(t, time.Hour, mr.TTL("bm:console:sid-1:refresh"))

	mr.FastForward(2 * time.Hour)
	assert.Equal(t, models.Tokens{}, store.Read(ctx))
}

func TestRedisTokenStore_UpdateAccessRestartsExpiry(t *testing.T) {
	ctx := context.Background()
	mr, backend := newMiniredisBackend(t, time.Hour)
	store := backend.Store("sid-1")

	require.NoError(t, store.Write(ctx, "A1", "R1", models.RoleRenter))
	mr.FastForward(50 * time.Minute)

	require.NoError(t, store.UpdateAccess(ctx, "A2"))
	for _, slot := range []string{"access", "refresh", "role"} {
		assert.Equal(t, time.Hour, mr.TTL("bm:console:sid-1:"+slot), slot)
	}

	mr.FastForward(20 * time.Minute)
	assert.Equal(t, models.Tokens{Access: "A2", Refresh: "R1", Role: models.RoleRenter}, store.Read(ctx))

	mr.FastForward(time.Hour)
	assert.Equal(t, models.Tokens{}, store.Read(ctx))
	assert.ErrorIs(t, store.UpdateAccess(ctx, "A3"), ErrNoSession)
}

func TestRedisTokenStore_ReadFailureIsAbsent(t *testing.T) {
	ctx := context.Background()
	mr, backend := newMiniredisBackend(t, 0)
	store := backend.Store("sid-1")
	require.NoError(t, store.Write(ctx, "A1", "R1", models.RoleStaff))

	mr.Close()

	assert.Equal(t, models.Tokens{}, store.Read(ctx))
	assert.Error(t, store.Write(ctx, "A2", "R2", models.RoleStaff))
}

func TestFileTokenStore(t *testing.T) {
	tokenStoreContract(t, func(t *testing.T) TokenStore {
		return NewFileTokenStore(filepath.Join(t.TempDir(), "bm", "session.yaml"), logging.Discard())
	})
}

func TestFileTokenStore_CorruptFileIsAbsent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.yaml")
	require.NoError(t, os.WriteFile(path, []byte("access: [unterminated"), 0o600))

	store := NewFileTokenStore(path, logging.Discard())
	assert.Equal(t, models.Tokens{}, store.Read(ctx))

	require.NoError(t, store.Write(ctx, "A1", "R1", models.RoleRenter))
	assert.Equal(t, models.Tokens{Access: "A1", Refresh: "R1", Role: models.RoleRenter}, store.Read(ctx))
}

func TestFileTokenStore_Permissions(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "bm", "session.yaml")
	store := NewFileTokenStore(path, logging.Discard())

	require.NoError(t, store.Write(ctx, "A1", "R1", models.RoleStaff))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestDefaultFilePath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")

	path, err := DefaultFilePath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/tmp/xdg", "bm", "session.yaml"), path)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	logger := logging.Discard()

	t.Run("memory", func(t *testing.T) {
		backend, err := Open(ctx, &config.Config{Store: config.StoreConfig{Driver: config.StoreMemory}}, nil, logger)
		require.NoError(t, err)
		assert.IsType(t, &MemoryBackend{}, backend)
	})

	t.Run("redis without client", func(t *testing.T) {
		_, err := Open(ctx, &config.Config{Store: config.StoreConfig{Driver: config.StoreRedis}}, nil, logger)
		assert.Error(t, err)
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()

		backend, err := Open(ctx, &config.Config{Store: config.StoreConfig{Driver: config.StoreRedis}}, client, logger)
		require.NoError(t, err)
		assert.IsType(t, &RedisBackend{}, backend)
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, err := Open(ctx, &config.Config{Store: config.StoreConfig{Driver: "etcd"}}, nil, logger)
		assert.ErrorIs(t, err, ErrUnknownDriver)
	})
}

func TestBuildDSN(t *testing.T) {
	dsn := BuildDSN(config.DatabaseConfig{
		Host:     "db",
		Port:     "5432",
		User:     "bm",
		Password: "secret",
		DBName:   "console",
		SSLMode:  "disable",
	})
	assert.Equal(t, "host=db port=5432 user=bm password=secret dbname=console sslmode=disable", dsn)
}

package middleware

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tajious/bmconsole/internal/config"
	"github.com/tajious/bmconsole/internal/logging"
)

func newLimitedApp(store RateLimitStore, cfg config.RateLimitConfig) *fiber.App {
	limiter := NewRateLimiter(store, cfg, logging.Discard())
	app := fiber.New()
	app.Post("/api/login/identity", limiter.RateLimit("login"), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func postLogin(t *testing.T, app *fiber.App) int {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/api/login/identity", nil))
	require.NoError(t, err)
	return resp.StatusCode
}

func TestRateLimiter_MemoryStore(t *testing.T) {
	app := newLimitedApp(NewMemoryStore(), config.RateLimitConfig{Enabled: true, Limit: 2, Window: time.Minute})

	assert.Equal(t, fiber.StatusOK, postLogin(t, app))
	assert.Equal(t, fiber.StatusOK, postLogin(t, app))

	resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/api/login/identity", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get(fiber.HeaderRetryAfter))
}

func TestRateLimiter_Disabled(t *testing.T) {
	app := newLimitedApp(NewMemoryStore(), config.RateLimitConfig{Enabled: false, Limit: 1, Window: time.Minute})

	for i := 0; i < 3; i++ {
		assert.Equal(t, fiber.StatusOK, postLogin(t, app))
	}
}

func TestMemoryStore_WindowExpires(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	count, ttl, err := store.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, time.Minute, ttl)

	now = now.Add(20 * time.Second)
	count, ttl, _ = store.Increment(ctx, "k", time.Minute)
	assert.Equal(t, 2, count)
	assert.Equal(t, 40*time.Second, ttl)

	now = now.Add(time.Minute)
	count, _, _ = store.Increment(ctx, "k", time.Minute)
	assert.Equal(t, 1, count)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisStore(client)
	ctx := context.Background()

	count, ttl, err := store.Increment(ctx, "rate_limit:login:10.0.0.1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, time.Minute, ttl)
	assert.Equal(t, time.Minute, mr.TTL("rate_limit:login:10.0.0.1"))

	count, _, err = store.Increment(ctx, "rate_limit:login:10.0.0.1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	mr.FastForward(2 * time.Minute)
	count, _, err = store.Increment(ctx, "rate_limit:login:10.0.0.1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRateLimiter_StoreFailureFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	app := newLimitedApp(NewRedisStore(client), config.RateLimitConfig{Enabled: true, Limit: 1, Window: time.Minute})
	assert.Equal(t, fiber.StatusOK, postLogin(t, app))
	assert.Equal(t, fiber.StatusOK, postLogin(t, app))
}

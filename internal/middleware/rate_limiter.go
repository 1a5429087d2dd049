package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/tajious/bmconsole/internal/config"
)

// RateLimitStore counts hits per key within a fixed window. Increment
// returns the count including this hit and the time left in the window.
type RateLimitStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (int, time.Duration, error)
}

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}

	if count == 1 {
		if err := s.client.Expire(ctx, key, window).Err(); err != nil {
			return 0, 0, err
		}
		return 1, window, nil
	}

	ttl, err := s.client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}
	if ttl < 0 {
		// The expiry was lost; start the window over.
		if err := s.client.Expire(ctx, key, window).Err(); err != nil {
			return 0, 0, err
		}
		ttl = window
	}
	return int(count), ttl, nil
}

type MemoryStore struct {
	mu    sync.Mutex
	store map[string]*RateLimitEntry
	now   func() time.Time
}

type RateLimitEntry struct {
	Count     int
	ExpiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		store: make(map[string]*RateLimitEntry),
		now:   time.Now,
	}
}

func (s *MemoryStore) Increment(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, entry := range s.store {
		if !now.Before(entry.ExpiresAt) {
			delete(s.store, k)
		}
	}

	entry, exists := s.store[key]
	if !exists {
		entry = &RateLimitEntry{
			Count:     0,
			ExpiresAt: now.Add(window),
		}
		s.store[key] = entry
	}

	entry.Count++
	return entry.Count, entry.ExpiresAt.Sub(now), nil
}

type RateLimiter struct {
	store  RateLimitStore
	cfg    config.RateLimitConfig
	logger *slog.Logger
}

func NewRateLimiter(store RateLimitStore, cfg config.RateLimitConfig, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		store:  store,
		cfg:    cfg,
		logger: logger,
	}
}

// RateLimit limits requests per client IP within scope. A failing counter
// store lets requests through.
func (r *RateLimiter) RateLimit(scope string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !r.cfg.Enabled {
			return c.Next()
		}

		ip := c.IP()
		if ip == "" {
			ip = c.Context().RemoteIP().String()
		}
		key := fmt.Sprintf("rate_limit:%s:%s", scope, ip)

		count, ttl, err := r.store.Increment(c.UserContext(), key, r.cfg.Window)
		if err != nil {
			r.logger.Warn("rate limit store unavailable", "key", key, "error", err)
			return c.Next()
		}

		if count > r.cfg.Limit {
			retry := int(math.Ceil(ttl.Seconds()))
			if retry < 1 {
				retry = 1
			}
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retry))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests from this IP",
			})
		}

		c.Set("X-RateLimit-Remaining", strconv.Itoa(r.cfg.Limit-count))
		return c.Next()
	}
}

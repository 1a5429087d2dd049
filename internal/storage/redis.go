package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tajious/bmconsole/internal/config"
	"github.com/tajious/bmconsole/internal/models"
)

const keyPrefix = "bm:console:"

// NewRedisClient configures a Redis client and verifies connectivity.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

type RedisBackend struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisBackend stores each session under three keys that expire after ttl.
// A zero ttl keeps them until cleared.
func NewRedisBackend(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisBackend {
	return &RedisBackend{client: client, ttl: ttl, logger: logger}
}

func (b *RedisBackend) Store(namespace string) TokenStore {
	base := keyPrefix + namespace + ":"
	return &RedisTokenStore{
		client:     b.client,
		ttl:        b.ttl,
		logger:     b.logger,
		accessKey:  base + "access",
		refreshKey: base + "refresh",
		roleKey:    base + "role",
	}
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}

type RedisTokenStore struct {
	client     *redis.Client
	ttl        time.Duration
	logger     *slog.Logger
	accessKey  string
	refreshKey string
	roleKey    string
}

func (s *RedisTokenStore) Read(ctx context.Context) models.Tokens {
	// MGET is a single command, so a concurrent MULTI/EXEC write is never
	// observed half applied.
	values, err := s.client.MGet(ctx, s.accessKey, s.refreshKey, s.roleKey).Result()
	if err != nil {
		s.logger.Warn("read session tokens", "key", s.accessKey, "error", err)
		return models.Tokens{}
	}

	return sanitize(models.Tokens{
		Access:  slotString(values, 0),
		Refresh: slotString(values, 1),
		Role:    models.Role(slotString(values, 2)),
	})
}

func (s *RedisTokenStore) Write(ctx context.Context, access, refresh string, role models.Role) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.accessKey, access, s.ttl)
		pipe.Set(ctx, s.refreshKey, refresh, s.ttl)
		pipe.Set(ctx, s.roleKey, string(role), s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("write session tokens: %w", err)
	}
	return nil
}

// UpdateAccess replaces the access token and restarts the expiry of all three
// keys together, so the refresh token and role never expire ahead of it.
func (s *RedisTokenStore) UpdateAccess(ctx context.Context, access string) error {
	var set *redis.StatusCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		set = pipe.SetArgs(ctx, s.accessKey, access, redis.SetArgs{Mode: "XX", TTL: s.ttl})
		if s.ttl > 0 {
			pipe.Expire(ctx, s.refreshKey, s.ttl)
			pipe.Expire(ctx, s.roleKey, s.ttl)
		}
		return nil
	})
	if errors.Is(set.Err(), redis.Nil) {
		return ErrNoSession
	}
	if err != nil {
		return fmt.Errorf("update access token: %w", err)
	}
	return nil
}

func (s *RedisTokenStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.accessKey, s.refreshKey, s.roleKey).Err(); err != nil {
		return fmt.Errorf("clear session tokens: %w", err)
	}
	return nil
}

func slotString(values []interface{}, i int) string {
	if i >= len(values) {
		return ""
	}
	v, _ := values[i].(string)
	return v
}

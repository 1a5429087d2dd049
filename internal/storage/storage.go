package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/tajious/bmconsole/internal/config"
	"github.com/tajious/bmconsole/internal/models"
)

var (
	ErrNoSession     = errors.New("no stored session")
	ErrUnknownDriver = errors.New("unknown store driver")
)

// TokenStore holds the access token, refresh token and role of one console
// session. Read never fails: a missing or unreadable slot comes back empty,
// and absence is the logged-out signal.
type TokenStore interface {
	Read(ctx context.Context) models.Tokens
	Write(ctx context.Context, access, refresh string, role models.Role) error
	// UpdateAccess replaces only the access token of an existing session.
	UpdateAccess(ctx context.Context, access string) error
	Clear(ctx context.Context) error
}

// Backend hands out token stores scoped to a namespace, one per browser
// session.
type Backend interface {
	Store(namespace string) TokenStore
	Close() error
}

// Open builds the backend selected by cfg.Store.Driver. The redis client is
// only used by the redis driver and may be nil otherwise.
func Open(ctx context.Context, cfg *config.Config, client *redis.Client, logger *slog.Logger) (Backend, error) {
	switch cfg.Store.Driver {
	case config.StoreMemory:
		return NewMemoryBackend(), nil
	case config.StoreRedis:
		if client == nil {
			return nil, errors.New("redis store requires a redis client")
		}
		return NewRedisBackend(client, cfg.Store.TTL, logger), nil
	case config.StorePostgres:
		backend, err := NewPostgresBackend(ctx, BuildDSN(cfg.Database), logger)
		if err != nil {
			return nil, err
		}
		return backend, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Store.Driver)
}

// sanitize drops slot values that cannot be trusted. A role that is not one
// the accounts service issues reads as absent.
func sanitize(t models.Tokens) models.Tokens {
	if t.Role != "" && !t.Role.Valid() {
		t.Role = ""
	}
	return t
}

func BuildDSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.DBName,
		cfg.SSLMode,
	)
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tajious/bmconsole/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// tokenRow keeps the three slots of a session in one row, so a write is a
// single upsert.
type tokenRow struct {
	Namespace string `gorm:"primaryKey;size:64"`
	Access    string `gorm:"not null"`
	Refresh   string `gorm:"not null"`
	Role      string `gorm:"size:16"`
	UpdatedAt time.Time
}

func (tokenRow) TableName() string {
	return "console_tokens"
}

type PostgresBackend struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewPostgresBackend(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresBackend, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.WithContext(ctx).AutoMigrate(&tokenRow{}); err != nil {
		return nil, fmt.Errorf("migrate console_tokens: %w", err)
	}

	return newPostgresBackend(db, logger), nil
}

func newPostgresBackend(db *gorm.DB, logger *slog.Logger) *PostgresBackend {
	return &PostgresBackend{db: db, logger: logger}
}

func (b *PostgresBackend) Store(namespace string) TokenStore {
	return &PostgresTokenStore{db: b.db, namespace: namespace, logger: b.logger}
}

func (b *PostgresBackend) Close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type PostgresTokenStore struct {
	db        *gorm.DB
	namespace string
	logger    *slog.Logger
}

func (s *PostgresTokenStore) Read(ctx context.Context) models.Tokens {
	var row tokenRow
	err := s.db.WithContext(ctx).Where("namespace = ?", s.namespace).Take(&row).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Warn("read session tokens", "namespace", s.namespace, "error", err)
		}
		return models.Tokens{}
	}

	return sanitize(models.Tokens{
		Access:  row.Access,
		Refresh: row.Refresh,
		Role:    models.Role(row.Role),
	})
}

func (s *PostgresTokenStore) Write(ctx context.Context, access, refresh string, role models.Role) error {
	row := tokenRow{
		Namespace: s.namespace,
		Access:    access,
		Refresh:   refresh,
		Role:      string(role),
		UpdatedAt: time.Now(),
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "namespace"}},
		DoUpdates: clause.AssignmentColumns([]string{"access", "refresh", "role", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("write session tokens: %w", err)
	}
	return nil
}

func (s *PostgresTokenStore) UpdateAccess(ctx context.Context, access string) error {
	result := s.db.WithContext(ctx).Model(&tokenRow{}).
		Where("namespace = ?", s.namespace).
		Updates(map[string]interface{}{"access": access, "updated_at": time.Now()})
	if result.Error != nil {
		return fmt.Errorf("update access token: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNoSession
	}
	return nil
}

func (s *PostgresTokenStore) Clear(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Where("namespace = ?", s.namespace).Delete(&tokenRow{}).Error; err != nil {
		return fmt.Errorf("clear session tokens: %w", err)
	}
	return nil
}

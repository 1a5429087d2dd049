package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tajious/bmconsole/internal/logging"
	"github.com/tajious/bmconsole/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockPostgres(t *testing.T) (TokenStore, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	return newPostgresBackend(db, logging.Discard()).Store("sid-1"), mock
}

var tokenColumns = []string{"namespace", "access", "refresh", "role", "updated_at"}

func TestPostgresTokenStore_Read(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		store, mock := newMockPostgres(t)
		mock.ExpectQuery(`SELECT \* FROM "console_tokens" WHERE namespace = \$1`).
			WillReturnRows(sqlmock.NewRows(tokenColumns).AddRow("sid-1", "A1", "R1", "renter", time.Now()))

		assert.Equal(t, models.Tokens{Access: "A1", Refresh: "R1", Role: models.RoleRenter}, store.Read(ctx))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing row", func(t *testing.T) {
		store, mock := newMockPostgres(t)
		mock.ExpectQuery(`SELECT \* FROM "console_tokens"`).
			WillReturnRows(sqlmock.NewRows(tokenColumns))

		assert.Equal(t, models.Tokens{}, store.Read(ctx))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query error", func(t *testing.T) {
		store, mock := newMockPostgres(t)
		mock.ExpectQuery(`SELECT \* FROM "console_tokens"`).
			WillReturnError(errors.New("connection reset"))

		assert.Equal(t, models.Tokens{}, store.Read(ctx))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown role", func(t *testing.T) {
		store, mock := newMockPostgres(t)
		mock.ExpectQuery(`SELECT \* FROM "console_tokens"`).
			WillReturnRows(sqlmock.NewRows(tokenColumns).AddRow("sid-1", "A1", "R1", "owner", time.Now()))

		got := store.Read(ctx)
		assert.Equal(t, "A1", got.Access)
		assert.Empty(t, got.Role)
	})
}

func TestPostgresTokenStore_Write(t *testing.T) {
	ctx := context.Background()

	t.Run("upsert", func(t *testing.T) {
		store, mock := newMockPostgres(t)
		mock.ExpectExec(`INSERT INTO "console_tokens" .* ON CONFLICT \("namespace"\) DO UPDATE SET`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.Write(ctx, "A1", "R1", models.RoleStaff))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure", func(t *testing.T) {
		store, mock := newMockPostgres(t)
		mock.ExpectExec(`INSERT INTO "console_tokens"`).
			WillReturnError(errors.New("disk full"))

		assert.Error(t, store.Write(ctx, "A1", "R1", models.RoleStaff))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresTokenStore_UpdateAccess(t *testing.T) {
	ctx := context.Background()

	t.Run("existing session", func(t *testing.T) {
		store, mock := newMockPostgres(t)
		mock.ExpectExec(`UPDATE "console_tokens" SET .*"access"=\$1`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.UpdateAccess(ctx, "A9"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no session", func(t *testing.T) {
		store, mock := newMockPostgres(t)
		mock.ExpectExec(`UPDATE "console_tokens"`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, store.UpdateAccess(ctx, "A9"), ErrNoSession)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresTokenStore_Clear(t *testing.T) {
	ctx := context.Background()
	store, mock := newMockPostgres(t)
	mock.ExpectExec(`DELETE FROM "console_tokens" WHERE namespace = \$1`).
		WithArgs("sid-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Clear(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

package repository

import (
	"testing"

	"docket/internal/database"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := database.GormConfig()
	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), cfg)
	require.NoError(t, err)

	return gormDB, mock
}

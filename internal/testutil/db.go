// Package testutil provides shared database fixtures and test doubles for package tests.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"docket/internal/database"
	"docket/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// NewDB opens a private in-memory SQLite database with the full schema. The pool is capped at one
// connection so every statement sees the same memory database; callers must run statements inside a
// transaction through that transaction's handle.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:docket_test_%d?mode=memory&cache=shared&_busy_timeout=5000", dbSeq.Add(1))
	cfg := database.GormConfig()
	cfg.Logger = database.NewGormLogger(logger.Silent)

	db, err := gorm.Open(sqlite.Open(dsn), cfg)
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.AutoMigrate(db))
	return db
}

// CreateUser inserts a user with the given role and qualifications.
func CreateUser(t testing.TB, db *gorm.DB, role models.Role, qc, pm bool) *models.User {
	t.Helper()
	n := dbSeq.Add(1)
	u := &models.User{
		Username: fmt.Sprintf("user_%d", n),
		Email:    fmt.Sprintf("user_%d@docket.test", n),
		Password: "not-a-real-hash",
		Role:     role,
		IsQC:     qc,
		IsPM:     pm,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

// CreateProject inserts a project with the given code prefix.
func CreateProject(t testing.TB, db *gorm.DB, prefix string) *models.Project {
	t.Helper()
	p := &models.Project{CodePrefix: prefix, Title: prefix + " project"}
	require.NoError(t, db.Create(p).Error)
	return p
}

// CreateItem inserts an item directly, bypassing the approval workflow.
func CreateItem(t testing.TB, db *gorm.DB, projectID uint, parentID *uint, fullID string) *models.Item {
	t.Helper()
	now := time.Now()
	it := &models.Item{
		FullID:      fullID,
		Title:       "Item " + fullID,
		ProjectID:   projectID,
		ParentID:    parentID,
		PublishedAt: &now,
	}
	require.NoError(t, db.Create(it).Error)
	return it
}

package database

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"testing/fstest"

	"docket/internal/config"
	"docket/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), GormConfig())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestConfigurePool(t *testing.T) {
	db := openSQLite(t)
	cfg := &config.Config{DBMaxOpenConns: 10, DBMaxIdleConns: 5, DBConnMaxLifetimeMinutes: 15}
	require.NoError(t, configurePool(db, cfg))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 10, sqlDB.Stats().MaxOpenConnections)
}

func TestPersistentModels_CoversWorkflowTables(t *testing.T) {
	var sawApproval, sawRevision bool
	for _, model := range PersistentModels() {
		switch model.(type) {
		case *models.QCDocumentApproval:
			sawApproval = true
		case *models.QCDocumentRevision:
			sawRevision = true
		}
	}
	assert.True(t, sawApproval)
	assert.True(t, sawRevision)
}

func TestAutoMigrate_UniqueFullIDTranslatesToDuplicateKey(t *testing.T) {
	db := openSQLite(t)
	require.NoError(t, AutoMigrate(db))

	project := models.Project{CodePrefix: "NUM", Title: "Numbering"}
	require.NoError(t, db.Create(&project).Error)
	require.NoError(t, db.Create(&models.Item{FullID: "NUM-1", Title: "a", ProjectID: project.ID}).Error)

	err := db.Create(&models.Item{FullID: "NUM-1", Title: "b", ProjectID: project.ID}).Error
	require.Error(t, err)
	assert.True(t, IsDuplicateKey(err))
	assert.False(t, IsPostgres(db))
}

func TestIsDuplicateKey(t *testing.T) {
	assert.True(t, IsDuplicateKey(gorm.ErrDuplicatedKey))
	assert.True(t, IsDuplicateKey(fmt.Errorf("wrap: %w", gorm.ErrDuplicatedKey)))
	assert.True(t, IsDuplicateKey(errors.New(`ERROR: duplicate key value violates unique constraint "idx_items_full_id" (SQLSTATE 23505)`)))
	assert.False(t, IsDuplicateKey(errors.New("connection refused")))
	assert.False(t, IsDuplicateKey(nil))
}

func TestEmbeddedMigrations(t *testing.T) {
	m, err := EmbeddedMigrator(nil)
	require.NoError(t, err)
	all := m.Migrations()
	require.NotEmpty(t, all)
	assert.Equal(t, "000001_init", all[0].String())
	assert.Contains(t, all[0].Up, "idx_items_full_id")
	assert.NotEmpty(t, all[0].Down)
}

func TestLoadMigrations_SortsAndRequiresDown(t *testing.T) {
	fsys := fstest.MapFS{
		"m/000002_second.up.sql":   {Data: []byte("SELECT 2;")},
		"m/000002_second.down.sql": {Data: []byte("SELECT -2;")},
		"m/000001_first.up.sql":    {Data: []byte("SELECT 1;")},
		"m/000001_first.down.sql":  {Data: []byte("SELECT -1;")},
		"m/README.md":              {Data: []byte("ignored")},
	}
	loaded, err := LoadMigrations(fsys, "m")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "000001_first", loaded[0].String())
	assert.Equal(t, "000002_second", loaded[1].String())

	delete(fsys, "m/000001_first.down.sql")
	_, err = LoadMigrations(fsys, "m")
	assert.Error(t, err)

	fsys["m/000001_first.down.sql"] = &fstest.MapFile{Data: []byte("SELECT -1;")}
	fsys["m/000003_Bad Name.up.sql"] = &fstest.MapFile{Data: []byte("SELECT 3;")}
	_, err = LoadMigrations(fsys, "m")
	assert.Error(t, err)
}

func TestMigrator_UpAndDown(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()
	set := []Migration{
		{Version: 1, Name: "widgets", Up: "CREATE TABLE widgets (id INTEGER PRIMARY KEY)", Down: "DROP TABLE widgets"},
		{Version: 2, Name: "gadgets", Up: "CREATE TABLE gadgets (id INTEGER PRIMARY KEY)", Down: "DROP TABLE gadgets"},
	}
	m := NewMigrator(db, set)

	applied, err := m.Applied(ctx)
	require.NoError(t, err)
	assert.Empty(t, applied)

	n, err := m.Up(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, db.Migrator().HasTable("gadgets"))

	n, err = m.Up(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, m.Down(ctx, 2))
	assert.False(t, db.Migrator().HasTable("gadgets"))
	applied, err = m.Applied(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, applied)

	assert.Error(t, m.Down(ctx, 2), "already reverted")
	assert.Error(t, m.Down(ctx, 9), "unknown version")

	pending, err := m.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 2, pending[0].Version)
}

func TestMigrator_FailedScriptLeavesNoRecord(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()
	m := NewMigrator(db, []Migration{
		{Version: 1, Name: "broken", Up: "CREATE TABLE", Down: "SELECT 1"},
	})

	_, err := m.Up(ctx)
	require.Error(t, err)
	applied, err := m.Applied(ctx)
	require.NoError(t, err)
	assert.Empty(t, applied)
}

func TestCheckApplied(t *testing.T) {
	set := []Migration{{Version: 1}, {Version: 2}}
	assert.NoError(t, checkApplied(nil, set))
	assert.NoError(t, checkApplied([]int{1, 2}, set))

	err := checkApplied([]int{1, 7}, set)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "000007")
}

func TestPlanSchema(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.Config
		sql, auto bool
		wantErr   bool
	}{
		{"hybrid dev", config.Config{DBSchemaMode: "hybrid", Env: "development"}, true, true, false},
		{"hybrid prod", config.Config{DBSchemaMode: "", Env: "production"}, true, false, false},
		{"sql", config.Config{DBSchemaMode: "sql", Env: "development"}, true, false, false},
		{"auto prod refused", config.Config{DBSchemaMode: "auto", Env: "production"}, false, false, true},
		{"auto prod allowed", config.Config{DBSchemaMode: "auto", Env: "production", DBAutoMigrateAllowDestructive: true}, false, true, false},
		{"unknown", config.Config{DBSchemaMode: "yolo"}, false, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			plan, err := PlanSchema(&cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.sql, plan.Migrations)
			assert.Equal(t, tt.auto, plan.AutoMigrate)
		})
	}
}

func TestGetSchemaStatus_AutoSkipsMigrations(t *testing.T) {
	db := openSQLite(t)
	status, err := GetSchemaStatus(context.Background(), db, &config.Config{DBSchemaMode: "auto", Env: "development"})
	require.NoError(t, err)
	assert.Equal(t, SchemaModeAuto, status.Mode)
	assert.True(t, status.AutoMigrate)
	assert.Empty(t, status.Pending)
}

package service

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"docket/internal/database"
	"docket/internal/models"
	"docket/internal/testutil"
)

func TestNextFullID(t *testing.T) {
	tests := []struct {
		name     string
		prefix   string
		siblings []string
		want     string
	}{
		{"first root", "NUM-", nil, "NUM-1"},
		{"after existing", "NUM-", []string{"NUM-1", "NUM-2"}, "NUM-3"},
		{"gap is not refilled", "NUM-", []string{"NUM-1", "NUM-3"}, "NUM-4"},
		{"numeric not lexical", "X-", []string{"X-2", "X-10", "X-9"}, "X-11"},
		{"malformed suffixes ignored", "NUM-", []string{"NUM-2", "NUM-abc", "NUM-3x", "NUM-", "NUM-1-1"}, "NUM-3"},
		{"other prefixes ignored", "NUM-1-", []string{"NUM-2-5", "NUM-1-1"}, "NUM-1-2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextFullID(tt.prefix, tt.siblings))
		})
	}
}

func TestAllocationKey(t *testing.T) {
	parent := uint(9)
	assert.Equal(t, "alloc:3:root", AllocationKey(3, nil))
	assert.Equal(t, "alloc:3:9", AllocationKey(3, &parent))
}

func TestLockGroup(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	pg, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), database.GormConfig())
	require.NoError(t, err)

	ctx := context.Background()
	item := uint(7)
	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_xact_lock(hashtext($1))`)).
		WithArgs("alloc:3:7").
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, LockGroup(ctx, pg, 3, &item))
	assert.NoError(t, mock.ExpectationsWereMet())

	// SQLite serializes writers on its own.
	assert.NoError(t, LockGroup(ctx, testutil.NewDB(t), 3, &item))
}

func TestAllocator_LockReleasesIdleKeys(t *testing.T) {
	a := NewAllocator()
	unlock := a.Lock(1, nil)
	a.mu.Lock()
	assert.Len(t, a.keys, 1)
	a.mu.Unlock()

	unlock()
	a.mu.Lock()
	assert.Empty(t, a.keys)
	a.mu.Unlock()
}

func TestAllocator_HierarchicalNumbering(t *testing.T) {
	f := newFixture(t)
	p := testutil.CreateProject(t, f.db, "NUM")

	first := f.create(p.ID, nil, "first root")
	second := f.create(p.ID, nil, "second root")
	child1 := f.create(p.ID, &first.ID, "first child")
	child2 := f.create(p.ID, &first.ID, "second child")
	grandchild := f.create(p.ID, &child1.ID, "grandchild")

	assert.Equal(t, "NUM-1", first.FullID)
	assert.Equal(t, "NUM-2", second.FullID)
	assert.Equal(t, "NUM-1-1", child1.FullID)
	assert.Equal(t, "NUM-1-2", child2.FullID)
	assert.Equal(t, "NUM-1-1-1", grandchild.FullID)
}

func TestAllocator_GapsArePreserved(t *testing.T) {
	f := newFixture(t)
	p := testutil.CreateProject(t, f.db, "GAP")

	f.create(p.ID, nil, "one")
	two := f.create(p.ID, nil, "two")
	f.create(p.ID, nil, "three")

	cr, err := f.changes.Submit(context.Background(), f.editor.Actor(), SubmitInput{Type: models.ChangeDelete, ItemID: &two.ID})
	require.NoError(t, err)
	_, err = f.approval.Approve(context.Background(), f.inspector.Actor(), cr.ID)
	require.NoError(t, err)

	next := f.create(p.ID, nil, "four")
	assert.Equal(t, "GAP-4", next.FullID)
}

func TestAllocator_RejectsMissingOrForeignParent(t *testing.T) {
	f := newFixture(t)
	p := testutil.CreateProject(t, f.db, "PAR")
	other := testutil.CreateProject(t, f.db, "OTH")
	foreign := testutil.CreateItem(t, f.db, other.ID, nil, "OTH-1")

	ctx := context.Background()
	alloc := NewAllocator()

	_, err := alloc.Allocate(ctx, f.db, p.ID, &foreign.ID)
	assert.True(t, models.IsCode(err, models.CodeNotFound))

	missing := uint(9999)
	_, err = alloc.Allocate(ctx, f.db, p.ID, &missing)
	assert.True(t, models.IsCode(err, models.CodeNotFound))

	_, err = alloc.Allocate(ctx, f.db, 9999, nil)
	assert.True(t, models.IsCode(err, models.CodeNotFound))
}

func TestAllocator_ConcurrentApprovalsNeverCollide(t *testing.T) {
	f := newFixture(t)
	p := testutil.CreateProject(t, f.db, "CON")
	parent := f.create(p.ID, nil, "parent")

	const n = 8
	requests := make([]*models.ChangeRequest, n)
	for i := range requests {
		requests[i] = f.submitCreate(p.ID, &parent.ID, fmt.Sprintf("child %d", i))
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, cr := range requests {
		wg.Add(1)
		go func(id uint) {
			defer wg.Done()
			if _, err := f.approval.Approve(context.Background(), f.inspector.Actor(), id); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(cr.ID)
	}
	wg.Wait()
	require.Empty(t, errs)

	var ids []string
	require.NoError(t, f.db.Model(&models.Item{}).Where("parent_id = ?", parent.ID).Pluck("full_id", &ids).Error)
	require.Len(t, ids, n)

	want := make([]string, n)
	for i := range want {
		want[i] = fmt.Sprintf("CON-1-%d", i+1)
	}
	assert.ElementsMatch(t, want, ids)
}

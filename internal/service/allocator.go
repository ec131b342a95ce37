package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"gorm.io/gorm"

	"docket/internal/database"
	"docket/internal/itemtree"
	"docket/internal/models"
)

// Allocator hands out hierarchical item identifiers. A new identifier is the sibling prefix
// followed by one more than the largest numeric suffix among existing siblings, deleted ones
// included, so gaps are never refilled.
//
// Callers hold Lock for the allocation key across allocate, insert and commit. On postgres,
// Allocate additionally takes a transaction-scoped advisory lock so separate processes serialize
// too; the unique index on items.full_id is the last line.
type Allocator struct {
	mu   sync.Mutex
	keys map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewAllocator returns an allocator with no held keys.
func NewAllocator() *Allocator {
	return &Allocator{keys: make(map[string]*keyLock)}
}

// AllocationKey identifies the sibling group (projectID, parentID).
func AllocationKey(projectID uint, parentID *uint) string {
	if parentID == nil {
		return fmt.Sprintf("alloc:%d:root", projectID)
	}
	return fmt.Sprintf("alloc:%d:%d", projectID, *parentID)
}

// Lock serializes allocations for one sibling group within this process and returns the unlock func.
func (a *Allocator) Lock(projectID uint, parentID *uint) func() {
	key := AllocationKey(projectID, parentID)

	a.mu.Lock()
	kl, ok := a.keys[key]
	if !ok {
		kl = &keyLock{}
		a.keys[key] = kl
	}
	kl.refs++
	a.mu.Unlock()

	kl.mu.Lock()
	return func() {
		kl.mu.Unlock()
		a.mu.Lock()
		kl.refs--
		if kl.refs == 0 {
			delete(a.keys, key)
		}
		a.mu.Unlock()
	}
}

// Allocate computes the next identifier for (projectID, parentID) inside tx.
func (a *Allocator) Allocate(ctx context.Context, tx *gorm.DB, projectID uint, parentID *uint) (string, error) {
	st := newStores(tx)

	project, err := st.projects.GetByID(ctx, projectID)
	if err != nil {
		return "", err
	}

	prefix := project.CodePrefix + itemtree.Separator
	if parentID != nil {
		// The row lock orders this allocation against a concurrent delete of the parent.
		parent, err := st.items.GetForUpdate(ctx, *parentID)
		if err != nil {
			return "", err
		}
		if parent.IsDeleted || parent.ProjectID != projectID {
			return "", models.NewNotFoundError("Parent item", *parentID)
		}
		prefix = parent.FullID + itemtree.Separator
	}

	if err := LockGroup(ctx, tx, projectID, parentID); err != nil {
		return "", err
	}

	siblings, err := st.items.ListSiblingFullIDs(ctx, projectID, parentID)
	if err != nil {
		return "", err
	}
	return NextFullID(prefix, siblings), nil
}

// LockGroup takes the transaction-scoped advisory lock for the sibling group on postgres. It is a
// no-op elsewhere.
func LockGroup(ctx context.Context, tx *gorm.DB, projectID uint, parentID *uint) error {
	if !database.IsPostgres(tx) {
		return nil
	}
	if err := tx.WithContext(ctx).
		Exec("SELECT pg_advisory_xact_lock(hashtext(?))", AllocationKey(projectID, parentID)).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// NextFullID returns prefix followed by one more than the largest well-formed numeric suffix
// among siblings. Malformed suffixes are ignored.
func NextFullID(prefix string, siblings []string) string {
	highest := 0
	for _, id := range siblings {
		if !strings.HasPrefix(id, prefix) {
			continue
		}
		suffix := id[len(prefix):]
		if suffix == "" || strings.IndexFunc(suffix, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
			continue
		}
		n, err := strconv.Atoi(suffix)
		if err != nil {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	return prefix + strconv.Itoa(highest+1)
}

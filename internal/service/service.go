// Package service implements the document workflow: hierarchical identifier allocation, the
// change-request approval engine, QC/PM sign-off, and the supporting project, item, relation,
// data-file and notification operations.
package service

import (
	"context"

	"gorm.io/gorm"

	"docket/internal/docgen"
	"docket/internal/models"
	"docket/internal/repository"
)

// ViewCache stores rendered read models. Implementations must tolerate a missing backend.
type ViewCache interface {
	ProjectTree(ctx context.Context, projectID uint) ([]byte, bool)
	StoreProjectTree(ctx context.Context, projectID uint, data []byte)
	Item(ctx context.Context, itemID uint) ([]byte, bool)
	StoreItem(ctx context.Context, itemID uint, data []byte)
	InvalidateProject(ctx context.Context, projectID uint)
	InvalidateItem(ctx context.Context, itemIDs ...uint)
}

// SearchIndex keeps the item search index current and answers queries.
type SearchIndex interface {
	IndexItem(ctx context.Context, item models.Item)
	RemoveItem(ctx context.Context, itemID uint)
	Search(ctx context.Context, query string, projectID *uint) ([]models.Item, error)
}

// Notifier delivers a notification. Delivery is best effort and never fails the caller.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification)
}

// Collaborators are the side-effect sinks the workflow calls after a transaction commits.
// Nil fields get no-op (or database-backed) defaults.
type Collaborators struct {
	Cache    ViewCache
	Search   SearchIndex
	Docs     docgen.Generator
	Notifier Notifier
}

func (c Collaborators) withDefaults(db *gorm.DB) Collaborators {
	if c.Cache == nil {
		c.Cache = nopCache{}
	}
	if c.Search == nil {
		c.Search = dbSearch{items: repository.NewItemRepository(db)}
	}
	if c.Docs == nil {
		c.Docs = docgen.Nop{}
	}
	if c.Notifier == nil {
		c.Notifier = nopNotifier{}
	}
	return c
}

type nopCache struct{}

func (nopCache) ProjectTree(context.Context, uint) ([]byte, bool) { return nil, false }
func (nopCache) StoreProjectTree(context.Context, uint, []byte)   {}
func (nopCache) Item(context.Context, uint) ([]byte, bool)        { return nil, false }
func (nopCache) StoreItem(context.Context, uint, []byte)          {}
func (nopCache) InvalidateProject(context.Context, uint)          {}
func (nopCache) InvalidateItem(context.Context, ...uint)          {}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, models.Notification) {}

// dbSearch answers queries straight from the items table and keeps no index.
type dbSearch struct {
	items repository.ItemRepository
}

func (dbSearch) IndexItem(context.Context, models.Item) {}
func (dbSearch) RemoveItem(context.Context, uint)       {}

func (s dbSearch) Search(ctx context.Context, query string, projectID *uint) ([]models.Item, error) {
	return s.items.SearchByText(ctx, query, projectID, 50)
}

// stores bundles the repositories bound to one database handle, usually a transaction.
type stores struct {
	users         repository.UserRepository
	projects      repository.ProjectRepository
	items         repository.ItemRepository
	changes       repository.ChangeRequestRepository
	history       repository.ItemHistoryRepository
	qc            repository.QCApprovalRepository
	notifications repository.NotificationRepository
	datafiles     repository.DataFileRepository
}

func newStores(db *gorm.DB) stores {
	return stores{
		users:         repository.NewUserRepository(db),
		projects:      repository.NewProjectRepository(db),
		items:         repository.NewItemRepository(db),
		changes:       repository.NewChangeRequestRepository(db),
		history:       repository.NewItemHistoryRepository(db),
		qc:            repository.NewQCApprovalRepository(db),
		notifications: repository.NewNotificationRepository(db),
		datafiles:     repository.NewDataFileRepository(db),
	}
}

func uintPtr(v uint) *uint { return &v }

// Package search answers item full-text queries from Meilisearch when it is configured and healthy,
// falling back to a database LIKE scan otherwise.
package search

import (
	"context"
	"strings"

	"docket/internal/middleware"
	"docket/internal/models"
	"docket/internal/repository"
)

// DefaultLimit caps the number of search hits returned.
const DefaultLimit = 50

// Service is the item search facade.
type Service struct {
	meili *Meili
	items repository.ItemRepository
}

// NewService creates a search service. meili may be nil when Meilisearch is not configured.
func NewService(meili *Meili, items repository.ItemRepository) *Service {
	return &Service{meili: meili, items: items}
}

func (s *Service) indexing() bool {
	return s.meili != nil && s.meili.Healthy()
}

// IndexItem pushes item to the index in the background. Deleted items are removed instead.
func (s *Service) IndexItem(ctx context.Context, item models.Item) {
	if !s.indexing() {
		return
	}
	if item.IsDeleted {
		s.RemoveItem(ctx, item.ID)
		return
	}
	doc := Document{ID: item.ID, FullID: item.FullID, Title: item.Title, Content: item.Content, ProjectID: item.ProjectID}
	go func() {
		if err := s.meili.Index(doc); err != nil {
			middleware.Logger.WarnContext(ctx, "search: index item failed", "item_id", doc.ID, "error", err)
		}
	}()
}

// RemoveItem drops an item from the index in the background.
func (s *Service) RemoveItem(ctx context.Context, id uint) {
	if !s.indexing() {
		return
	}
	go func() {
		if err := s.meili.Delete(id); err != nil {
			middleware.Logger.WarnContext(ctx, "search: remove item failed", "item_id", id, "error", err)
		}
	}()
}

// Reindex loads every non-deleted item of the given projects into the index.
func (s *Service) Reindex(ctx context.Context, projectIDs []uint) error {
	if !s.indexing() {
		return nil
	}
	var docs []Document
	for _, pid := range projectIDs {
		items, err := s.items.ListByProject(ctx, pid)
		if err != nil {
			return err
		}
		for _, it := range items {
			docs = append(docs, Document{ID: it.ID, FullID: it.FullID, Title: it.Title, Content: it.Content, ProjectID: it.ProjectID})
		}
	}
	return s.meili.IndexBatch(docs)
}

// Search returns non-deleted items matching query, optionally scoped to a project.
func (s *Service) Search(ctx context.Context, query string, projectID *uint) ([]models.Item, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.Item{}, nil
	}

	if s.indexing() {
		ids, err := s.meili.Search(query, projectID, DefaultLimit)
		if err == nil {
			return s.load(ctx, ids)
		}
		middleware.Logger.WarnContext(ctx, "search: meilisearch error, falling back to database", "error", err)
	}
	return s.items.SearchByText(ctx, query, projectID, DefaultLimit)
}

// load resolves ids in order, skipping items deleted since they were indexed.
func (s *Service) load(ctx context.Context, ids []uint) ([]models.Item, error) {
	out := make([]models.Item, 0, len(ids))
	for _, id := range ids {
		it, err := s.items.GetActiveByID(ctx, id)
		if err != nil {
			if models.IsCode(err, models.CodeNotFound) || models.IsCode(err, models.CodeTargetMissing) {
				continue
			}
			return nil, err
		}
		out = append(out, *it)
	}
	return out, nil
}

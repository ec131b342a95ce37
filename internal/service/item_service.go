package service

import (
	"context"
	"encoding/json"
	"strings"

	"gorm.io/gorm"

	"docket/internal/itemtree"
	"docket/internal/middleware"
	"docket/internal/models"
)

// ItemService serves read models of the item tree. Writes go through change requests.
type ItemService struct {
	db     *gorm.DB
	cache  ViewCache
	search SearchIndex
}

func NewItemService(db *gorm.DB, collab Collaborators) *ItemService {
	collab = collab.withDefaults(db)
	return &ItemService{db: db, cache: collab.Cache, search: collab.Search}
}

// Tree returns the JSON encoded forest of the project's live items.
func (s *ItemService) Tree(ctx context.Context, projectID uint) (json.RawMessage, error) {
	if cached, ok := s.cache.ProjectTree(ctx, projectID); ok {
		return cached, nil
	}

	st := newStores(s.db)
	if _, err := st.projects.GetByID(ctx, projectID); err != nil {
		return nil, err
	}
	items, err := st.items.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	flat := make([]itemtree.Flat, 0, len(items))
	for _, it := range items {
		flat = append(flat, itemtree.Flat{ID: it.ID, FullID: it.FullID, Title: it.Title, ParentID: it.ParentID})
	}
	data, err := json.Marshal(itemtree.Build(flat))
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	s.cache.StoreProjectTree(ctx, projectID, data)
	return data, nil
}

// Get returns a live item with its related items.
func (s *ItemService) Get(ctx context.Context, id uint) (*models.Item, error) {
	if cached, ok := s.cache.Item(ctx, id); ok {
		var item models.Item
		if err := json.Unmarshal(cached, &item); err == nil {
			return &item, nil
		}
	}

	st := newStores(s.db)
	item, err := st.items.GetActiveByID(ctx, id)
	if err != nil {
		return nil, err
	}
	item.Related, err = st.items.ListRelated(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(item); err == nil {
		s.cache.StoreItem(ctx, id, data)
	} else {
		middleware.Logger.WarnContext(ctx, "failed to encode item view", "item_id", id, "error", err)
	}
	return item, nil
}

// Lookup resolves a live item by its fullId. The item's project is loaded alongside.
func (s *ItemService) Lookup(ctx context.Context, fullID string) (*models.Item, error) {
	fullID = strings.TrimSpace(fullID)
	if fullID == "" {
		return nil, models.NewValidationError("fullId is required")
	}
	return newStores(s.db).items.GetByFullID(ctx, fullID)
}

// Search matches live items by fullId, title or content, optionally within one project.
func (s *ItemService) Search(ctx context.Context, query string, projectID *uint) ([]models.Item, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, models.NewValidationError("query is required")
	}
	return s.search.Search(ctx, query, projectID)
}

// History returns every applied version of an item, newest first.
func (s *ItemService) History(ctx context.Context, itemID uint) ([]models.ItemHistory, error) {
	st := newStores(s.db)
	if _, err := st.items.GetByID(ctx, itemID); err != nil {
		return nil, err
	}
	return st.history.ListByItem(ctx, itemID)
}

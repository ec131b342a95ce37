package service

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"docket/internal/models"
)

// RelationService edits the symmetric related-items graph outside the approval flow.
type RelationService struct {
	db    *gorm.DB
	cache ViewCache
}

func NewRelationService(db *gorm.DB, collab Collaborators) *RelationService {
	return &RelationService{db: db, cache: collab.withDefaults(db).Cache}
}

// AddRelated links sourceID and the item addressed by targetFullID in both directions.
func (s *RelationService) AddRelated(ctx context.Context, actor models.Actor, sourceID uint, targetFullID string) (*models.Item, error) {
	if !actor.CanSubmit() {
		return nil, models.NewUnauthorizedError("Your role cannot edit related items")
	}
	targetFullID = strings.TrimSpace(targetFullID)
	if targetFullID == "" {
		return nil, models.NewValidationError("target fullId is required")
	}

	var target *models.Item
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		st := newStores(tx)
		source, err := st.items.GetActiveByID(ctx, sourceID)
		if err != nil {
			return err
		}
		target, err = st.items.GetByFullID(ctx, targetFullID)
		if err != nil {
			return err
		}
		if target.ID == source.ID {
			return models.NewValidationError("an item cannot be related to itself")
		}
		related, err := st.items.IsRelated(ctx, source.ID, target.ID)
		if err != nil {
			return err
		}
		if related {
			return models.NewValidationError("items are already related")
		}
		return st.items.Relate(ctx, source.ID, target.ID)
	})
	if err != nil {
		return nil, err
	}
	s.cache.InvalidateItem(ctx, sourceID, target.ID)
	return target, nil
}

// RemoveRelated unlinks both directions.
func (s *RelationService) RemoveRelated(ctx context.Context, actor models.Actor, sourceID, targetID uint) error {
	if !actor.CanSubmit() {
		return models.NewUnauthorizedError("Your role cannot edit related items")
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		st := newStores(tx)
		if _, err := st.items.GetByID(ctx, sourceID); err != nil {
			return err
		}
		if _, err := st.items.GetByID(ctx, targetID); err != nil {
			return err
		}
		return st.items.Unrelate(ctx, sourceID, targetID)
	})
	if err != nil {
		return err
	}
	s.cache.InvalidateItem(ctx, sourceID, targetID)
	return nil
}

func (s *RelationService) ListRelated(ctx context.Context, itemID uint) ([]models.Item, error) {
	return newStores(s.db).items.ListRelated(ctx, itemID)
}

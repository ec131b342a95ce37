package repository

import (
	"context"
	"strings"
	"time"

	"docket/internal/database"
	"docket/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ItemRepository defines the interface for item and related-item data operations
type ItemRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Item, error)
	GetForUpdate(ctx context.Context, id uint) (*models.Item, error)
	GetActiveByID(ctx context.Context, id uint) (*models.Item, error)
	GetByFullID(ctx context.Context, fullID string) (*models.Item, error)
	ListByProject(ctx context.Context, projectID uint) ([]models.Item, error)
	ListSiblingFullIDs(ctx context.Context, projectID uint, parentID *uint) ([]string, error)
	CountActiveChildren(ctx context.Context, itemID uint) (int64, error)
	Create(ctx context.Context, item *models.Item) error
	UpdateContent(ctx context.Context, id uint, title, content string, attachments *models.Attachments) error
	SoftDelete(ctx context.Context, id uint) error
	SearchByText(ctx context.Context, query string, projectID *uint, limit int) ([]models.Item, error)

	Relate(ctx context.Context, a, b uint) error
	Unrelate(ctx context.Context, a, b uint) error
	IsRelated(ctx context.Context, a, b uint) (bool, error)
	ListRelated(ctx context.Context, itemID uint) ([]models.Item, error)
}

type itemRepository struct {
	db *gorm.DB
}

// NewItemRepository creates a new item repository
func NewItemRepository(db *gorm.DB) ItemRepository {
	return &itemRepository{db: db}
}

// GetByID returns the item whether or not it is soft-deleted.
func (r *itemRepository) GetByID(ctx context.Context, id uint) (*models.Item, error) {
	var item models.Item
	if err := r.db.WithContext(ctx).First(&item, id).Error; err != nil {
		return nil, lookupError(err, "Item", id)
	}
	return &item, nil
}

// GetForUpdate reads the item, deleted or not, under a row lock. Call it inside a transaction.
func (r *itemRepository) GetForUpdate(ctx context.Context, id uint) (*models.Item, error) {
	var item models.Item
	if err := forUpdate(r.db.WithContext(ctx)).First(&item, id).Error; err != nil {
		return nil, lookupError(err, "Item", id)
	}
	return &item, nil
}

func (r *itemRepository) GetActiveByID(ctx context.Context, id uint) (*models.Item, error) {
	var item models.Item
	if err := r.db.WithContext(ctx).Where("is_deleted = ?", false).First(&item, id).Error; err != nil {
		return nil, lookupError(err, "Item", id)
	}
	return &item, nil
}

func (r *itemRepository) GetByFullID(ctx context.Context, fullID string) (*models.Item, error) {
	var item models.Item
	if err := r.db.WithContext(ctx).Preload("Project").
		Where("full_id = ? AND is_deleted = ?", fullID, false).
		First(&item).Error; err != nil {
		return nil, lookupError(err, "Item", fullID)
	}
	return &item, nil
}

// ListByProject returns the project's non-deleted items.
func (r *itemRepository) ListByProject(ctx context.Context, projectID uint) ([]models.Item, error) {
	var items []models.Item
	if err := r.db.WithContext(ctx).
		Where("project_id = ? AND is_deleted = ?", projectID, false).
		Order("id ASC").
		Find(&items).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return items, nil
}

// ListSiblingFullIDs returns every fullId under (projectID, parentID), deleted items included so
// their numbers are never handed out again.
func (r *itemRepository) ListSiblingFullIDs(ctx context.Context, projectID uint, parentID *uint) ([]string, error) {
	q := r.db.WithContext(ctx).Model(&models.Item{}).Where("project_id = ?", projectID)
	if parentID == nil {
		q = q.Where("parent_id IS NULL")
	} else {
		q = q.Where("parent_id = ?", *parentID)
	}

	var ids []string
	if err := q.Pluck("full_id", &ids).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return ids, nil
}

func (r *itemRepository) CountActiveChildren(ctx context.Context, itemID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Item{}).
		Where("parent_id = ? AND is_deleted = ?", itemID, false).
		Count(&count).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return count, nil
}

// Create inserts the item. A fullId collision surfaces as ALLOCATION_CONFLICT.
func (r *itemRepository) Create(ctx context.Context, item *models.Item) error {
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		if database.IsDuplicateKey(err) {
			return models.NewAllocationConflictError(item.FullID, err)
		}
		return models.NewInternalError(err)
	}
	return nil
}

// UpdateContent overwrites title and content, and attachments when non-nil.
func (r *itemRepository) UpdateContent(ctx context.Context, id uint, title, content string, attachments *models.Attachments) error {
	updates := map[string]interface{}{
		"title":      title,
		"content":    content,
		"updated_at": time.Now(),
	}
	if attachments != nil {
		updates["attachments"] = *attachments
	}

	res := r.db.WithContext(ctx).Model(&models.Item{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewTargetMissingError(id)
	}
	return nil
}

func (r *itemRepository) SoftDelete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Model(&models.Item{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Updates(map[string]interface{}{"is_deleted": true, "updated_at": time.Now()})
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewTargetMissingError(id)
	}
	return nil
}

// SearchByText is the database fallback for full-text search over non-deleted items.
func (r *itemRepository) SearchByText(ctx context.Context, query string, projectID *uint, limit int) ([]models.Item, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"

	q := r.db.WithContext(ctx).
		Where("is_deleted = ?", false).
		Where("LOWER(full_id) LIKE ? OR LOWER(title) LIKE ? OR LOWER(content) LIKE ?", pattern, pattern, pattern)
	if projectID != nil {
		q = q.Where("project_id = ?", *projectID)
	}

	var items []models.Item
	if err := q.Order("full_id ASC").Limit(limit).Find(&items).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return items, nil
}

// Relate writes both directions of the edge. Existing rows are left untouched.
func (r *itemRepository) Relate(ctx context.Context, a, b uint) error {
	now := time.Now()
	edges := []models.ItemRelation{
		{ItemID: a, RelatedID: b, CreatedAt: now},
		{ItemID: b, RelatedID: a, CreatedAt: now},
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&edges).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// Unrelate removes both directions of the edge.
func (r *itemRepository) Unrelate(ctx context.Context, a, b uint) error {
	if err := r.db.WithContext(ctx).
		Where("(item_id = ? AND related_id = ?) OR (item_id = ? AND related_id = ?)", a, b, b, a).
		Delete(&models.ItemRelation{}).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *itemRepository) IsRelated(ctx context.Context, a, b uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.ItemRelation{}).
		Where("item_id = ? AND related_id = ?", a, b).
		Count(&count).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

// ListRelated returns the non-deleted items related to itemID.
func (r *itemRepository) ListRelated(ctx context.Context, itemID uint) ([]models.Item, error) {
	var items []models.Item
	if err := r.db.WithContext(ctx).
		Joins("JOIN item_relations ir ON ir.related_id = items.id").
		Where("ir.item_id = ? AND items.is_deleted = ?", itemID, false).
		Order("items.full_id ASC").
		Find(&items).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return items, nil
}

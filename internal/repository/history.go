package repository

import (
	"context"

	"docket/internal/models"

	"gorm.io/gorm"
)

// ItemHistoryRepository defines the interface for item version data operations
type ItemHistoryRepository interface {
	Create(ctx context.Context, h *models.ItemHistory) error
	GetByID(ctx context.Context, id uint) (*models.ItemHistory, error)
	ListByItem(ctx context.Context, itemID uint) ([]models.ItemHistory, error)
	NextVersion(ctx context.Context, itemID uint) (int, error)
	SetDocumentPath(ctx context.Context, id uint, path string) error
}

type itemHistoryRepository struct {
	db *gorm.DB
}

// NewItemHistoryRepository creates a new item history repository
func NewItemHistoryRepository(db *gorm.DB) ItemHistoryRepository {
	return &itemHistoryRepository{db: db}
}

// Create stores h, assigning the next version number for its item when Version is zero.
func (r *itemHistoryRepository) Create(ctx context.Context, h *models.ItemHistory) error {
	if h.Version == 0 {
		v, err := r.NextVersion(ctx, h.ItemID)
		if err != nil {
			return err
		}
		h.Version = v
	}
	if err := r.db.WithContext(ctx).Create(h).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *itemHistoryRepository) GetByID(ctx context.Context, id uint) (*models.ItemHistory, error) {
	var h models.ItemHistory
	if err := r.db.WithContext(ctx).Preload("SubmittedBy").First(&h, id).Error; err != nil {
		return nil, lookupError(err, "ItemHistory", id)
	}
	return &h, nil
}

// ListByItem returns an item's versions, newest first.
func (r *itemHistoryRepository) ListByItem(ctx context.Context, itemID uint) ([]models.ItemHistory, error) {
	var out []models.ItemHistory
	if err := r.db.WithContext(ctx).Preload("SubmittedBy").
		Where("item_id = ?", itemID).
		Order("version DESC").
		Find(&out).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return out, nil
}

func (r *itemHistoryRepository) NextVersion(ctx context.Context, itemID uint) (int, error) {
	var current int
	if err := r.db.WithContext(ctx).Model(&models.ItemHistory{}).
		Where("item_id = ?", itemID).
		Select("COALESCE(MAX(version), 0)").
		Scan(&current).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return current + 1, nil
}

func (r *itemHistoryRepository) SetDocumentPath(ctx context.Context, id uint, path string) error {
	res := r.db.WithContext(ctx).Model(&models.ItemHistory{}).Where("id = ?", id).Update("iso_doc_path", path)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("ItemHistory", id)
	}
	return nil
}

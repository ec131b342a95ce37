package repository

import (
	"context"

	"docket/internal/models"

	"gorm.io/gorm"
)

// DataFileRepository defines the interface for data file metadata operations
type DataFileRepository interface {
	Create(ctx context.Context, f *models.DataFile) error
	GetByID(ctx context.Context, id uint) (*models.DataFile, error)
	List(ctx context.Context, year int) ([]models.DataFile, error)
	Delete(ctx context.Context, id uint) error
}

type dataFileRepository struct {
	db *gorm.DB
}

// NewDataFileRepository creates a new data file repository
func NewDataFileRepository(db *gorm.DB) DataFileRepository {
	return &dataFileRepository{db: db}
}

func (r *dataFileRepository) Create(ctx context.Context, f *models.DataFile) error {
	if err := r.db.WithContext(ctx).Create(f).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *dataFileRepository) GetByID(ctx context.Context, id uint) (*models.DataFile, error) {
	var f models.DataFile
	if err := r.db.WithContext(ctx).Preload("UploadedBy").First(&f, id).Error; err != nil {
		return nil, lookupError(err, "DataFile", id)
	}
	return &f, nil
}

// List returns files newest first, restricted to year when it is non-zero.
func (r *dataFileRepository) List(ctx context.Context, year int) ([]models.DataFile, error) {
	q := r.db.WithContext(ctx).Preload("UploadedBy")
	if year != 0 {
		q = q.Where("data_year = ?", year)
	}
	var out []models.DataFile
	if err := q.Order("created_at DESC").Order("id DESC").Find(&out).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return out, nil
}

func (r *dataFileRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.DataFile{}, id)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("DataFile", id)
	}
	return nil
}

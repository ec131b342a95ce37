package repository

import (
	"context"

	"docket/internal/database"
	"docket/internal/models"

	"gorm.io/gorm"
)

// ProjectRepository defines the interface for project data operations
type ProjectRepository interface {
	Create(ctx context.Context, project *models.Project) error
	GetByID(ctx context.Context, id uint) (*models.Project, error)
	List(ctx context.Context) ([]models.Project, error)
	UpdateDetails(ctx context.Context, id uint, title, description string) error
	Delete(ctx context.Context, id uint) error
	CountItems(ctx context.Context, projectID uint) (int64, error)
	ActiveItemCounts(ctx context.Context) (map[uint]int64, error)
}

type projectRepository struct {
	db *gorm.DB
}

// NewProjectRepository creates a new project repository
func NewProjectRepository(db *gorm.DB) ProjectRepository {
	return &projectRepository{db: db}
}

func (r *projectRepository) Create(ctx context.Context, project *models.Project) error {
	if err := r.db.WithContext(ctx).Create(project).Error; err != nil {
		if database.IsDuplicateKey(err) {
			return models.NewDuplicateCodePrefixError(project.CodePrefix)
		}
		return models.NewInternalError(err)
	}
	return nil
}

func (r *projectRepository) GetByID(ctx context.Context, id uint) (*models.Project, error) {
	var project models.Project
	if err := r.db.WithContext(ctx).First(&project, id).Error; err != nil {
		return nil, lookupError(err, "Project", id)
	}
	return &project, nil
}

func (r *projectRepository) List(ctx context.Context) ([]models.Project, error) {
	var projects []models.Project
	if err := r.db.WithContext(ctx).Order("code_prefix ASC").Find(&projects).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return projects, nil
}

// UpdateDetails changes title and description. The code prefix is immutable.
func (r *projectRepository) UpdateDetails(ctx context.Context, id uint, title, description string) error {
	res := r.db.WithContext(ctx).Model(&models.Project{}).Where("id = ?", id).
		Updates(map[string]interface{}{"title": title, "description": description})
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Project", id)
	}
	return nil
}

func (r *projectRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.Project{}, id)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Project", id)
	}
	return nil
}

// CountItems counts every item of the project, soft-deleted ones included.
func (r *projectRepository) CountItems(ctx context.Context, projectID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Item{}).Where("project_id = ?", projectID).Count(&count).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return count, nil
}

// ActiveItemCounts returns the number of non-deleted items per project.
func (r *projectRepository) ActiveItemCounts(ctx context.Context) (map[uint]int64, error) {
	type row struct {
		ProjectID uint
		Count     int64
	}
	var rows []row
	if err := r.db.WithContext(ctx).Model(&models.Item{}).
		Select("project_id, COUNT(*) AS count").
		Where("is_deleted = ?", false).
		Group("project_id").
		Scan(&rows).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	out := make(map[uint]int64, len(rows))
	for _, r := range rows {
		out[r.ProjectID] = r.Count
	}
	return out, nil
}

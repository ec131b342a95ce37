package service

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"docket/internal/models"
)

// ProjectService manages projects and their code prefixes.
type ProjectService struct {
	db    *gorm.DB
	cache ViewCache
}

func NewProjectService(db *gorm.DB, collab Collaborators) *ProjectService {
	return &ProjectService{db: db, cache: collab.withDefaults(db).Cache}
}

// Create registers a project. The code prefix is normalised to upper case and must be unique.
func (s *ProjectService) Create(ctx context.Context, actor models.Actor, title, description, codePrefix string) (*models.Project, error) {
	if actor.Role == models.RoleViewer || !actor.Role.Valid() {
		return nil, models.NewUnauthorizedError("Your role cannot create projects")
	}
	title = strings.TrimSpace(title)
	codePrefix = strings.ToUpper(strings.TrimSpace(codePrefix))
	if title == "" {
		return nil, models.NewValidationError("title is required")
	}
	if !models.ValidCodePrefix(codePrefix) {
		return nil, models.NewValidationError("codePrefix must be uppercase letters and digits")
	}

	p := &models.Project{Title: title, Description: description, CodePrefix: codePrefix}
	if err := newStores(s.db).projects.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Update changes title and description.
func (s *ProjectService) Update(ctx context.Context, actor models.Actor, id uint, title, description string) (*models.Project, error) {
	if actor.Role == models.RoleViewer || !actor.Role.Valid() {
		return nil, models.NewUnauthorizedError("Your role cannot edit projects")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, models.NewValidationError("title is required")
	}
	st := newStores(s.db)
	if err := st.projects.UpdateDetails(ctx, id, title, description); err != nil {
		return nil, err
	}
	s.cache.InvalidateProject(ctx, id)
	return st.projects.GetByID(ctx, id)
}

// Delete removes a project that owns no items, deleted ones included.
func (s *ProjectService) Delete(ctx context.Context, actor models.Actor, id uint) error {
	if !actor.IsAdmin() {
		return models.NewUnauthorizedError("Only admins can delete projects")
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		st := newStores(tx)
		p, err := st.projects.GetByID(ctx, id)
		if err != nil {
			return err
		}
		n, err := st.projects.CountItems(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return models.NewHasChildrenError(p.CodePrefix, n)
		}
		return st.projects.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.cache.InvalidateProject(ctx, id)
	return nil
}

// List returns every project with its live item count.
func (s *ProjectService) List(ctx context.Context) ([]models.Project, error) {
	st := newStores(s.db)
	projects, err := st.projects.List(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := st.projects.ActiveItemCounts(ctx)
	if err != nil {
		return nil, err
	}
	for i := range projects {
		projects[i].ItemCount = counts[projects[i].ID]
	}
	return projects, nil
}

func (s *ProjectService) Get(ctx context.Context, id uint) (*models.Project, error) {
	return newStores(s.db).projects.GetByID(ctx, id)
}

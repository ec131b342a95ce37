// Package seed populates a database with demo projects, item trees and review backlog. Every item
// goes through the real submit and approve workflow so identifiers, history and QC records are
// exactly what the API would produce. Intended for development and testing only.
package seed

import (
	"context"
	"fmt"
	"time"

	"docket/internal/database"
	"docket/internal/middleware"
	"docket/internal/models"
	"docket/internal/repository"
	"docket/internal/service"

	"gorm.io/gorm"
)

// Options controls how much data the seeder produces.
type Options struct {
	Projects        int
	ItemsPerProject int
	// MaxDepth bounds the tree depth; 1 keeps every item at the project root.
	MaxDepth int
	// Pending and Rejected are change requests left in review per project.
	Pending  int
	Rejected int
	// SignOffEvery completes QC and PM sign-off for every n-th approval; 0 leaves all at PENDING_QC.
	SignOffEvery int
	// RandSeed makes output repeatable when non-zero.
	RandSeed int64
	// SkipBcrypt stores the password unhashed. Such accounts cannot log in; tests only.
	SkipBcrypt bool
}

// DefaultOptions is a small but complete demo data set.
func DefaultOptions() Options {
	return Options{
		Projects:        3,
		ItemsPerProject: 12,
		MaxDepth:        3,
		Pending:         2,
		Rejected:        1,
		SignOffEvery:    3,
	}
}

// Crew is one account per role the workflow distinguishes.
type Crew struct {
	Admin     *models.User
	Inspector *models.User
	QC        *models.User
	PM        *models.User
	Editor    *models.User
	Viewer    *models.User
}

// Summary counts what a run created.
type Summary struct {
	Users     int
	Projects  int
	Items     int
	Pending   int
	Rejected  int
	Completed int
}

// Seeder drives the workflow services to generate data.
type Seeder struct {
	db      *gorm.DB
	opts    Options
	factory *Factory
	users   repository.UserRepository

	projects  *service.ProjectService
	changes   *service.ChangeRequestService
	approvals *service.ApprovalService
	qc        *service.QCService
}

// NewSeeder returns a seeder bound to db. Side effects (cache, search, documents, notifications)
// use the workflow's no-op defaults.
func NewSeeder(db *gorm.DB, opts Options) (*Seeder, error) {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 1
	}
	factory, err := NewFactory(opts.RandSeed, opts.SkipBcrypt)
	if err != nil {
		return nil, err
	}
	collab := service.Collaborators{}
	return &Seeder{
		db:        db,
		opts:      opts,
		factory:   factory,
		users:     repository.NewUserRepository(db),
		projects:  service.NewProjectService(db, collab),
		changes:   service.NewChangeRequestService(db),
		approvals: service.NewApprovalService(db, service.NewAllocator(), collab),
		qc:        service.NewQCService(db, collab),
	}, nil
}

// ClearAll deletes every workflow row, children before parents.
func (s *Seeder) ClearAll(ctx context.Context) error {
	all := database.PersistentModels()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := len(all) - 1; i >= 0; i-- {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped().Delete(all[i]).Error; err != nil {
				return fmt.Errorf("clear %T: %w", all[i], err)
			}
		}
		return nil
	})
}

// Run seeds the crew, then every project with its tree and backlog.
func (s *Seeder) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	sum := &Summary{}

	crew, created, err := s.SeedCrew(ctx)
	if err != nil {
		return nil, err
	}
	sum.Users = created

	for i := 0; i < s.opts.Projects; i++ {
		project, err := s.SeedProject(ctx, crew)
		if err != nil {
			return nil, err
		}
		sum.Projects++

		items, err := s.SeedTree(ctx, crew, project)
		if err != nil {
			return nil, err
		}
		sum.Items += len(items)

		pending, rejected, err := s.SeedBacklog(ctx, crew, items)
		if err != nil {
			return nil, err
		}
		sum.Pending += pending
		sum.Rejected += rejected
	}

	completed, err := s.SignOff(ctx, crew)
	if err != nil {
		return nil, err
	}
	sum.Completed = completed

	middleware.Logger.Info("seed complete",
		"users", sum.Users, "projects", sum.Projects, "items", sum.Items,
		"pending", sum.Pending, "rejected", sum.Rejected, "completed", sum.Completed,
		"duration", time.Since(start).String())
	return sum, nil
}

// SeedCrew creates the role accounts, reusing any that already exist by username. It returns the
// crew and how many accounts were new.
func (s *Seeder) SeedCrew(ctx context.Context) (*Crew, int, error) {
	created := 0
	get := func(username string, role models.Role, qc, pm bool) (*models.User, error) {
		u, err := s.users.GetByUsername(ctx, username)
		if err == nil {
			return u, nil
		}
		if !models.IsCode(err, models.CodeNotFound) {
			return nil, err
		}
		u = s.factory.BuildUser(username, role, qc, pm)
		if err := s.users.Create(ctx, u); err != nil {
			return nil, fmt.Errorf("create %s: %w", username, err)
		}
		created++
		return u, nil
	}

	var crew Crew
	var err error
	steps := []struct {
		dst      **models.User
		username string
		role     models.Role
		qc, pm   bool
	}{
		{&crew.Admin, "admin", models.RoleAdmin, true, true},
		{&crew.Inspector, "inspector", models.RoleInspector, false, false},
		{&crew.QC, "qc", models.RoleInspector, true, false},
		{&crew.PM, "pm", models.RoleInspector, false, true},
		{&crew.Editor, "editor", models.RoleEditor, false, false},
		{&crew.Viewer, "viewer", models.RoleViewer, false, false},
	}
	for _, st := range steps {
		if *st.dst, err = get(st.username, st.role, st.qc, st.pm); err != nil {
			return nil, 0, err
		}
	}
	return &crew, created, nil
}

// SeedProject creates a project under a fresh random code prefix.
func (s *Seeder) SeedProject(ctx context.Context, crew *Crew) (*models.Project, error) {
	const attempts = 10
	for i := 0; i < attempts; i++ {
		p, err := s.projects.Create(ctx, crew.Admin.Actor(), s.factory.ProjectTitle(), s.factory.ProjectDescription(), s.factory.CodePrefix(3))
		if models.IsCode(err, models.CodeDuplicateCodePrefix) {
			continue
		}
		return p, err
	}
	return nil, fmt.Errorf("no free code prefix after %d attempts", attempts)
}

// SeedTree proposes and approves ItemsPerProject items, attaching each under a random existing item
// whose depth allows it, or at the root.
func (s *Seeder) SeedTree(ctx context.Context, crew *Crew, project *models.Project) ([]models.Item, error) {
	items := make([]models.Item, 0, s.opts.ItemsPerProject)
	depth := make(map[uint]int)

	for i := 0; i < s.opts.ItemsPerProject; i++ {
		var parentID *uint
		if len(items) > 0 && s.factory.Intn(3) > 0 {
			candidate := items[s.factory.Intn(len(items))]
			if depth[candidate.ID] < s.opts.MaxDepth {
				parentID = &candidate.ID
			}
		}

		var related []uint
		if len(items) > 1 && s.factory.Intn(4) == 0 {
			related = []uint{items[s.factory.Intn(len(items))].ID}
		}

		item, err := s.publish(ctx, crew, project.ID, parentID, s.factory.CreatePayload(related...))
		if err != nil {
			return nil, err
		}
		depth[item.ID] = 1
		if parentID != nil {
			depth[item.ID] = depth[*parentID] + 1
		}
		items = append(items, *item)
	}
	return items, nil
}

// publish runs one CREATE request through submit and approve and returns the new item.
func (s *Seeder) publish(ctx context.Context, crew *Crew, projectID uint, parentID *uint, p models.CreatePayload) (*models.Item, error) {
	cr, err := s.changes.Submit(ctx, crew.Editor.Actor(), service.SubmitInput{
		Type:      models.ChangeCreate,
		Payload:   p,
		ProjectID: projectID,
		ParentID:  parentID,
	})
	if err != nil {
		return nil, fmt.Errorf("submit item: %w", err)
	}
	approved, err := s.approvals.Approve(ctx, crew.Inspector.Actor(), cr.ID)
	if err != nil {
		return nil, fmt.Errorf("approve change request %d: %w", cr.ID, err)
	}
	if approved.ItemID == nil {
		return nil, fmt.Errorf("approved change request %d has no item", cr.ID)
	}

	var item models.Item
	if err := s.db.WithContext(ctx).First(&item, *approved.ItemID).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// SeedBacklog leaves Pending update requests open and Rejected requests rejected against items.
func (s *Seeder) SeedBacklog(ctx context.Context, crew *Crew, items []models.Item) (pending, rejected int, err error) {
	if len(items) == 0 {
		return 0, 0, nil
	}
	submit := func() (*models.ChangeRequest, error) {
		target := items[s.factory.Intn(len(items))]
		itemID := target.ID
		return s.changes.Submit(ctx, crew.Editor.Actor(), service.SubmitInput{
			Type:      models.ChangeUpdate,
			Payload:   s.factory.UpdatePayload(target),
			ProjectID: target.ProjectID,
			ItemID:    &itemID,
		})
	}

	for i := 0; i < s.opts.Pending; i++ {
		if _, err := submit(); err != nil {
			return pending, rejected, fmt.Errorf("submit pending update: %w", err)
		}
		pending++
	}
	for i := 0; i < s.opts.Rejected; i++ {
		cr, err := submit()
		if err != nil {
			return pending, rejected, fmt.Errorf("submit update: %w", err)
		}
		if _, err := s.approvals.Reject(ctx, crew.Inspector.Actor(), cr.ID, s.factory.Note()); err != nil {
			return pending, rejected, fmt.Errorf("reject change request %d: %w", cr.ID, err)
		}
		rejected++
	}
	return pending, rejected, nil
}

// SignOff completes QC and PM review for every SignOffEvery-th approval waiting on QC.
func (s *Seeder) SignOff(ctx context.Context, crew *Crew) (int, error) {
	if s.opts.SignOffEvery <= 0 {
		return 0, nil
	}
	waiting, err := s.qc.ListPendingQC(ctx)
	if err != nil {
		return 0, err
	}

	completed := 0
	for i, a := range waiting {
		if i%s.opts.SignOffEvery != 0 {
			continue
		}
		if _, err := s.qc.ApproveAsQC(ctx, crew.QC.Actor(), a.ID, ""); err != nil {
			return completed, fmt.Errorf("qc approve %d: %w", a.ID, err)
		}
		if _, err := s.qc.ApproveAsPM(ctx, crew.PM.Actor(), a.ID, ""); err != nil {
			return completed, fmt.Errorf("pm approve %d: %w", a.ID, err)
		}
		completed++
	}
	return completed, nil
}

package repository

import (
	"context"
	"fmt"
	"time"

	"docket/internal/models"

	"gorm.io/gorm"
)

// ChangeRequestRepository defines the interface for change-request data operations
type ChangeRequestRepository interface {
	Create(ctx context.Context, cr *models.ChangeRequest) error
	GetByID(ctx context.Context, id uint) (*models.ChangeRequest, error)
	GetForUpdate(ctx context.Context, id uint) (*models.ChangeRequest, error)
	Transition(ctx context.Context, id uint, from, to models.ChangeStatus, review *Review) error
	AttachItem(ctx context.Context, id, itemID uint) error
	ListPending(ctx context.Context) ([]models.ChangeRequest, error)
	ListRejectedBySubmitter(ctx context.Context, userID uint) ([]models.ChangeRequest, error)
}

// Review records who moved a request out of PENDING and why.
type Review struct {
	ReviewerID uint
	Note       string
	At         time.Time
}

type changeRequestRepository struct {
	db *gorm.DB
}

// NewChangeRequestRepository creates a new change-request repository
func NewChangeRequestRepository(db *gorm.DB) ChangeRequestRepository {
	return &changeRequestRepository{db: db}
}

func (r *changeRequestRepository) Create(ctx context.Context, cr *models.ChangeRequest) error {
	if err := r.db.WithContext(ctx).Create(cr).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *changeRequestRepository) GetByID(ctx context.Context, id uint) (*models.ChangeRequest, error) {
	var cr models.ChangeRequest
	if err := r.db.WithContext(ctx).
		Preload("SubmittedBy").
		Preload("ReviewedBy").
		Preload("TargetProject").
		Preload("Item").
		First(&cr, id).Error; err != nil {
		return nil, lookupError(err, "ChangeRequest", id)
	}
	return &cr, nil
}

// GetForUpdate reads the request under a row lock. Call it inside a transaction.
func (r *changeRequestRepository) GetForUpdate(ctx context.Context, id uint) (*models.ChangeRequest, error) {
	var cr models.ChangeRequest
	if err := forUpdate(r.db.WithContext(ctx)).First(&cr, id).Error; err != nil {
		return nil, lookupError(err, "ChangeRequest", id)
	}
	return &cr, nil
}

// Transition moves the request from one status to another. It fails with INVALID_STATE when the
// row is no longer in the expected status, which makes concurrent reviews of one request lose cleanly.
func (r *changeRequestRepository) Transition(ctx context.Context, id uint, from, to models.ChangeStatus, review *Review) error {
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now(),
	}
	if review != nil {
		updates["reviewed_by_id"] = review.ReviewerID
		updates["reviewed_at"] = review.At
		updates["review_note"] = review.Note
	}

	res := r.db.WithContext(ctx).Model(&models.ChangeRequest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewInvalidStateError(fmt.Sprintf("change request %d is not %s", id, from))
	}
	return nil
}

// AttachItem records the item a CREATE request produced.
func (r *changeRequestRepository) AttachItem(ctx context.Context, id, itemID uint) error {
	if err := r.db.WithContext(ctx).Model(&models.ChangeRequest{}).
		Where("id = ?", id).
		Update("item_id", itemID).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// ListPending returns pending requests oldest first.
func (r *changeRequestRepository) ListPending(ctx context.Context) ([]models.ChangeRequest, error) {
	var out []models.ChangeRequest
	if err := r.db.WithContext(ctx).
		Preload("SubmittedBy").
		Preload("TargetProject").
		Preload("Item").
		Where("status = ?", models.ChangePending).
		Order("created_at ASC").Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return out, nil
}

// ListRejectedBySubmitter returns the user's rejected requests, newest first.
func (r *changeRequestRepository) ListRejectedBySubmitter(ctx context.Context, userID uint) ([]models.ChangeRequest, error) {
	var out []models.ChangeRequest
	if err := r.db.WithContext(ctx).
		Preload("ReviewedBy").
		Preload("TargetProject").
		Preload("Item").
		Where("submitted_by_id = ? AND status = ?", userID, models.ChangeRejected).
		Order("created_at DESC").Order("id DESC").
		Find(&out).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return out, nil
}

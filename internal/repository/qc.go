package repository

import (
	"context"
	"fmt"
	"time"

	"docket/internal/models"

	"gorm.io/gorm"
)

// QCApprovalRepository defines the interface for QC/PM approval and revision data operations
type QCApprovalRepository interface {
	Create(ctx context.Context, a *models.QCDocumentApproval) error
	GetByID(ctx context.Context, id uint) (*models.QCDocumentApproval, error)
	GetForUpdate(ctx context.Context, id uint) (*models.QCDocumentApproval, error)
	GetByItemHistory(ctx context.Context, itemHistoryID uint) (*models.QCDocumentApproval, error)
	FindRevisionRequiredForItem(ctx context.Context, itemID uint) (*models.QCDocumentApproval, error)
	Transition(ctx context.Context, id uint, from models.QCStatus, updates map[string]interface{}) error
	ListByStatuses(ctx context.Context, statuses ...models.QCStatus) ([]models.QCDocumentApproval, error)
	ListBySubmitterAndStatus(ctx context.Context, userID uint, status models.QCStatus) ([]models.QCDocumentApproval, error)
	CountByStatuses(ctx context.Context, statuses ...models.QCStatus) (int64, error)

	CreateRevision(ctx context.Context, rev *models.QCDocumentRevision) error
	CountRevisions(ctx context.Context, approvalID uint) (int64, error)
	ListOpenRevisions(ctx context.Context, approvalID uint) ([]models.QCDocumentRevision, error)
	ResolveRevision(ctx context.Context, revisionID, itemHistoryID uint, at time.Time) error
	ListRevisions(ctx context.Context, approvalID uint) ([]models.QCDocumentRevision, error)
}

type qcApprovalRepository struct {
	db *gorm.DB
}

// NewQCApprovalRepository creates a new QC approval repository
func NewQCApprovalRepository(db *gorm.DB) QCApprovalRepository {
	return &qcApprovalRepository{db: db}
}

func (r *qcApprovalRepository) withDetails(db *gorm.DB) *gorm.DB {
	return db.
		Preload("ItemHistory").
		Preload("ItemHistory.SubmittedBy").
		Preload("QCApprovedBy").
		Preload("PMApprovedBy")
}

func (r *qcApprovalRepository) Create(ctx context.Context, a *models.QCDocumentApproval) error {
	if err := r.db.WithContext(ctx).Create(a).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// GetByID loads the approval with its item history, approvers and revisions.
func (r *qcApprovalRepository) GetByID(ctx context.Context, id uint) (*models.QCDocumentApproval, error) {
	var a models.QCDocumentApproval
	if err := r.withDetails(r.db.WithContext(ctx)).
		Preload("Revisions", func(db *gorm.DB) *gorm.DB {
			return db.Order("revision_number DESC")
		}).
		Preload("Revisions.RequestedBy").
		First(&a, id).Error; err != nil {
		return nil, lookupError(err, "QCDocumentApproval", id)
	}
	return &a, nil
}

// GetForUpdate reads the bare approval row under a row lock. Call it inside a transaction.
func (r *qcApprovalRepository) GetForUpdate(ctx context.Context, id uint) (*models.QCDocumentApproval, error) {
	var a models.QCDocumentApproval
	if err := forUpdate(r.db.WithContext(ctx)).First(&a, id).Error; err != nil {
		return nil, lookupError(err, "QCDocumentApproval", id)
	}
	return &a, nil
}

func (r *qcApprovalRepository) GetByItemHistory(ctx context.Context, itemHistoryID uint) (*models.QCDocumentApproval, error) {
	var a models.QCDocumentApproval
	if err := r.db.WithContext(ctx).Where("item_history_id = ?", itemHistoryID).First(&a).Error; err != nil {
		return nil, lookupError(err, "QCDocumentApproval", fmt.Sprintf("item_history_id=%d", itemHistoryID))
	}
	return &a, nil
}

// FindRevisionRequiredForItem returns the item's approval currently awaiting a revision, or nil.
func (r *qcApprovalRepository) FindRevisionRequiredForItem(ctx context.Context, itemID uint) (*models.QCDocumentApproval, error) {
	var out []models.QCDocumentApproval
	if err := r.db.WithContext(ctx).
		Joins("JOIN item_histories ih ON ih.id = qc_document_approvals.item_history_id").
		Where("ih.item_id = ? AND qc_document_approvals.status = ?", itemID, models.QCRevisionRequired).
		Order("qc_document_approvals.id DESC").
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return &out[0], nil
}

// Transition applies updates only while the approval is still in status from.
func (r *qcApprovalRepository) Transition(ctx context.Context, id uint, from models.QCStatus, updates map[string]interface{}) error {
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	res := r.db.WithContext(ctx).Model(&models.QCDocumentApproval{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewInvalidStateError(fmt.Sprintf("approval %d is no longer %s", id, from))
	}
	return nil
}

// ListByStatuses returns approvals in any of statuses, newest first.
func (r *qcApprovalRepository) ListByStatuses(ctx context.Context, statuses ...models.QCStatus) ([]models.QCDocumentApproval, error) {
	if len(statuses) == 0 {
		return []models.QCDocumentApproval{}, nil
	}
	var out []models.QCDocumentApproval
	if err := r.withDetails(r.db.WithContext(ctx)).
		Where("status IN ?", statuses).
		Order("created_at DESC").Order("id DESC").
		Find(&out).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return out, nil
}

// ListBySubmitterAndStatus returns approvals whose item version was submitted by userID.
func (r *qcApprovalRepository) ListBySubmitterAndStatus(ctx context.Context, userID uint, status models.QCStatus) ([]models.QCDocumentApproval, error) {
	var out []models.QCDocumentApproval
	if err := r.withDetails(r.db.WithContext(ctx)).
		Joins("JOIN item_histories ih ON ih.id = qc_document_approvals.item_history_id").
		Where("ih.submitted_by_id = ? AND qc_document_approvals.status = ?", userID, status).
		Preload("Revisions", func(db *gorm.DB) *gorm.DB {
			return db.Where("resolved_at IS NULL")
		}).
		Order("qc_document_approvals.created_at DESC").
		Find(&out).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return out, nil
}

func (r *qcApprovalRepository) CountByStatuses(ctx context.Context, statuses ...models.QCStatus) (int64, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.QCDocumentApproval{}).
		Where("status IN ?", statuses).
		Count(&count).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return count, nil
}

func (r *qcApprovalRepository) CreateRevision(ctx context.Context, rev *models.QCDocumentRevision) error {
	if err := r.db.WithContext(ctx).Create(rev).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *qcApprovalRepository) CountRevisions(ctx context.Context, approvalID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.QCDocumentRevision{}).
		Where("approval_id = ?", approvalID).
		Count(&count).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return count, nil
}

// ListOpenRevisions returns unresolved revisions, newest first.
func (r *qcApprovalRepository) ListOpenRevisions(ctx context.Context, approvalID uint) ([]models.QCDocumentRevision, error) {
	var out []models.QCDocumentRevision
	if err := r.db.WithContext(ctx).
		Where("approval_id = ? AND resolved_at IS NULL", approvalID).
		Order("revision_number DESC").
		Find(&out).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return out, nil
}

func (r *qcApprovalRepository) ResolveRevision(ctx context.Context, revisionID, itemHistoryID uint, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.QCDocumentRevision{}).
		Where("id = ? AND resolved_at IS NULL", revisionID).
		Updates(map[string]interface{}{
			"resolved_at":              at,
			"resolved_item_history_id": itemHistoryID,
		})
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewInvalidStateError(fmt.Sprintf("revision %d is already resolved", revisionID))
	}
	return nil
}

// ListRevisions returns every revision of an approval in request order.
func (r *qcApprovalRepository) ListRevisions(ctx context.Context, approvalID uint) ([]models.QCDocumentRevision, error) {
	var out []models.QCDocumentRevision
	if err := r.db.WithContext(ctx).Preload("RequestedBy").
		Where("approval_id = ?", approvalID).
		Order("revision_number ASC").
		Find(&out).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return out, nil
}

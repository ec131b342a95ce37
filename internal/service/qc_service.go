package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"docket/internal/models"
	"docket/internal/observability"
)

// QCService runs the document sign-off state machine:
//
//	PENDING_QC -> PENDING_PM -> COMPLETED
//	PENDING_QC | PENDING_PM -> REVISION_REQUIRED -> PENDING_QC
//
// Resubmission always returns to PENDING_QC, whichever stage asked for the revision.
type QCService struct {
	db     *gorm.DB
	collab Collaborators
	docs   documentRenderer
	now    func() time.Time
}

// NewQCService returns the sign-off workflow.
func NewQCService(db *gorm.DB, collab Collaborators) *QCService {
	collab = collab.withDefaults(db)
	return &QCService{
		db:     db,
		collab: collab,
		docs:   documentRenderer{db: db, docs: collab.Docs},
		now:    time.Now,
	}
}

func approvalNote(note string) string {
	if strings.TrimSpace(note) == "" {
		return models.DefaultApprovalNote
	}
	return strings.TrimSpace(note)
}

func (s *QCService) transition(ctx context.Context, id uint, fn func(st stores, a *models.QCDocumentApproval) (models.QCStatus, map[string]interface{}, error)) (from models.QCStatus, err error) {
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		st := newStores(tx)
		a, err := st.qc.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		from = a.Status
		to, updates, err := fn(st, a)
		if err != nil {
			return err
		}
		updates["status"] = to
		return st.qc.Transition(ctx, id, from, updates)
	})
	return from, err
}

// ApproveAsQC records the QC sign-off and moves the approval to PENDING_PM.
func (s *QCService) ApproveAsQC(ctx context.Context, actor models.Actor, id uint, note string) (_ *models.QCDocumentApproval, err error) {
	ctx, span := observability.StartSpan(ctx, "qc.approve_qc", attribute.Int64("qc_approval.id", int64(id)))
	defer func() { span.End(err) }()

	if !actor.QCQualified {
		return nil, models.NewUnauthorizedError("QC qualification required")
	}

	_, err = s.transition(ctx, id, func(_ stores, a *models.QCDocumentApproval) (models.QCStatus, map[string]interface{}, error) {
		if a.Status != models.QCPendingQC {
			return "", nil, models.NewInvalidStateError(fmt.Sprintf("approval %d is %s, not PENDING_QC", id, a.Status))
		}
		return models.QCPendingPM, map[string]interface{}{
			"qc_approved_by_id": actor.UserID,
			"qc_approved_at":    s.now(),
			"qc_note":           approvalNote(note),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	observability.QCTransitions.WithLabelValues(string(models.QCPendingQC), string(models.QCPendingPM)).Inc()

	a, err := newStores(s.db).qc.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.docs.render(ctx, "qc", currentHistoryID(a), a)
	return a, nil
}

// ApproveAsPM records the PM sign-off, completes the approval and notifies the submitter.
func (s *QCService) ApproveAsPM(ctx context.Context, actor models.Actor, id uint, note string) (_ *models.QCDocumentApproval, err error) {
	ctx, span := observability.StartSpan(ctx, "qc.approve_pm", attribute.Int64("qc_approval.id", int64(id)))
	defer func() { span.End(err) }()

	if !actor.PMQualified {
		return nil, models.NewUnauthorizedError("PM qualification required")
	}

	_, err = s.transition(ctx, id, func(_ stores, a *models.QCDocumentApproval) (models.QCStatus, map[string]interface{}, error) {
		if a.Status != models.QCPendingPM {
			return "", nil, models.NewInvalidStateError(fmt.Sprintf("approval %d is %s, not PENDING_PM", id, a.Status))
		}
		return models.QCCompleted, map[string]interface{}{
			"pm_approved_by_id": actor.UserID,
			"pm_approved_at":    s.now(),
			"pm_note":           approvalNote(note),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	observability.QCTransitions.WithLabelValues(string(models.QCPendingPM), string(models.QCCompleted)).Inc()

	a, err := newStores(s.db).qc.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	historyID := currentHistoryID(a)
	s.docs.render(ctx, "pm", historyID, a)

	if h := a.ItemHistory; h != nil {
		s.collab.Notifier.Notify(ctx, models.Notification{
			UserID:        h.SubmittedByID,
			Type:          models.NotificationCompleted,
			Title:         "品質文件審核完成",
			Message:       fmt.Sprintf("%s %s - 已完成 PM 核定", h.ItemFullID, h.ItemTitle),
			Link:          fmt.Sprintf("/qc/approvals/%d", a.ID),
			QCApprovalID:  uintPtr(a.ID),
			ItemHistoryID: uintPtr(historyID),
		})
	}
	return a, nil
}

// Reject opens a revision request against the approval at whichever stage it is waiting in.
func (s *QCService) Reject(ctx context.Context, actor models.Actor, id uint, note string) (_ *models.QCDocumentApproval, err error) {
	ctx, span := observability.StartSpan(ctx, "qc.reject", attribute.Int64("qc_approval.id", int64(id)))
	defer func() { span.End(err) }()

	note = strings.TrimSpace(note)
	if note == "" {
		return nil, models.NewValidationError("a revision note is required")
	}

	from, err := s.transition(ctx, id, func(st stores, a *models.QCDocumentApproval) (models.QCStatus, map[string]interface{}, error) {
		var noteField string
		switch a.Status {
		case models.QCPendingQC:
			if !actor.QCQualified {
				return "", nil, models.NewUnauthorizedError("QC qualification required")
			}
			noteField = "qc_note"
		case models.QCPendingPM:
			if !actor.PMQualified {
				return "", nil, models.NewUnauthorizedError("PM qualification required")
			}
			noteField = "pm_note"
		default:
			return "", nil, models.NewInvalidStateError(fmt.Sprintf("approval %d is %s and cannot be rejected", id, a.Status))
		}

		existing, err := st.qc.CountRevisions(ctx, a.ID)
		if err != nil {
			return "", nil, err
		}
		rev := &models.QCDocumentRevision{
			ApprovalID:     a.ID,
			RevisionNumber: int(existing) + 1,
			RequestedByID:  actor.UserID,
			RequestNote:    note,
			RequestedAt:    s.now(),
		}
		if err := st.qc.CreateRevision(ctx, rev); err != nil {
			return "", nil, err
		}
		return models.QCRevisionRequired, map[string]interface{}{noteField: note}, nil
	})
	if err != nil {
		return nil, err
	}
	observability.QCTransitions.WithLabelValues(string(from), string(models.QCRevisionRequired)).Inc()

	a, err := newStores(s.db).qc.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if h := a.ItemHistory; h != nil {
		s.collab.Notifier.Notify(ctx, models.Notification{
			UserID:        h.SubmittedByID,
			Type:          models.NotificationRevisionRequest,
			Title:         "品質文件需要修改",
			Message:       fmt.Sprintf("%s %s - %s", h.ItemFullID, h.ItemTitle, note),
			Link:          fmt.Sprintf("/qc/approvals/%d", a.ID),
			QCApprovalID:  uintPtr(a.ID),
			ItemHistoryID: uintPtr(h.ID),
		})
	}
	return a, nil
}

// ResubmitForReview resolves the open revision with newHistoryID and sends the approval back to
// PENDING_QC with every previous sign-off cleared.
func (s *QCService) ResubmitForReview(ctx context.Context, actor models.Actor, id, newHistoryID uint) (_ *models.QCDocumentApproval, err error) {
	ctx, span := observability.StartSpan(ctx, "qc.resubmit",
		attribute.Int64("qc_approval.id", int64(id)),
		attribute.Int64("item_history.id", int64(newHistoryID)))
	defer func() { span.End(err) }()

	_, err = s.transition(ctx, id, func(st stores, a *models.QCDocumentApproval) (models.QCStatus, map[string]interface{}, error) {
		if a.Status != models.QCRevisionRequired {
			return "", nil, models.NewInvalidStateError(fmt.Sprintf("approval %d is %s, not REVISION_REQUIRED", id, a.Status))
		}

		original, err := st.history.GetByID(ctx, a.ItemHistoryID)
		if err != nil {
			return "", nil, err
		}
		if !actor.Owns(original.SubmittedByID) {
			return "", nil, models.NewUnauthorizedError("only the submitter can resubmit this document")
		}
		next, err := st.history.GetByID(ctx, newHistoryID)
		if err != nil {
			return "", nil, err
		}
		if next.ItemID != original.ItemID {
			return "", nil, models.NewValidationError(fmt.Sprintf(
				"history %d belongs to item %d, not item %d under review", next.ID, next.ItemID, original.ItemID))
		}

		open, err := st.qc.ListOpenRevisions(ctx, a.ID)
		if err != nil {
			return "", nil, err
		}
		if len(open) != 1 {
			return "", nil, models.NewNoPendingRevisionError(a.ID)
		}
		if err := st.qc.ResolveRevision(ctx, open[0].ID, newHistoryID, s.now()); err != nil {
			return "", nil, err
		}

		return models.QCPendingQC, map[string]interface{}{
			"qc_approved_by_id": nil,
			"qc_approved_at":    nil,
			"qc_note":           nil,
			"pm_approved_by_id": nil,
			"pm_approved_at":    nil,
			"pm_note":           nil,
			"revision_count":    gorm.Expr("revision_count + 1"),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	observability.QCTransitions.WithLabelValues(string(models.QCRevisionRequired), string(models.QCPendingQC)).Inc()

	s.docs.render(ctx, "resubmit", newHistoryID, nil)
	return newStores(s.db).qc.GetByID(ctx, id)
}

// currentHistoryID is the content version under review: the one that resolved the latest
// revision, or the approval's original version when there has been none.
func currentHistoryID(a *models.QCDocumentApproval) uint {
	best, bestNumber := a.ItemHistoryID, 0
	for _, r := range a.Revisions {
		if r.ResolvedItemHistoryID != nil && r.RevisionNumber > bestNumber {
			best, bestNumber = *r.ResolvedItemHistoryID, r.RevisionNumber
		}
	}
	return best
}

// Get returns an approval with its revisions.
func (s *QCService) Get(ctx context.Context, id uint) (*models.QCDocumentApproval, error) {
	return newStores(s.db).qc.GetByID(ctx, id)
}

func (s *QCService) ListPendingQC(ctx context.Context) ([]models.QCDocumentApproval, error) {
	return newStores(s.db).qc.ListByStatuses(ctx, models.QCPendingQC)
}

func (s *QCService) ListPendingPM(ctx context.Context) ([]models.QCDocumentApproval, error) {
	return newStores(s.db).qc.ListByStatuses(ctx, models.QCPendingPM)
}

// reviewerStatuses are the stages the actor can act on.
func reviewerStatuses(actor models.Actor) []models.QCStatus {
	var out []models.QCStatus
	if actor.QCQualified || actor.IsAdmin() {
		out = append(out, models.QCPendingQC)
	}
	if actor.PMQualified || actor.IsAdmin() {
		out = append(out, models.QCPendingPM)
	}
	return out
}

// ListForReviewer returns the approvals waiting on a stage the actor is qualified for.
func (s *QCService) ListForReviewer(ctx context.Context, actor models.Actor) ([]models.QCDocumentApproval, error) {
	return newStores(s.db).qc.ListByStatuses(ctx, reviewerStatuses(actor)...)
}

// PendingCount counts what ListForReviewer would return.
func (s *QCService) PendingCount(ctx context.Context, actor models.Actor) (int64, error) {
	return newStores(s.db).qc.CountByStatuses(ctx, reviewerStatuses(actor)...)
}

// ListRevisionRequired returns the actor's own documents sent back for revision.
func (s *QCService) ListRevisionRequired(ctx context.Context, actor models.Actor) ([]models.QCDocumentApproval, error) {
	return newStores(s.db).qc.ListBySubmitterAndStatus(ctx, actor.UserID, models.QCRevisionRequired)
}

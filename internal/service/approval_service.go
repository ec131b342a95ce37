package service

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"docket/internal/middleware"
	"docket/internal/models"
	"docket/internal/observability"
	"docket/internal/repository"
)

// maxApplyAttempts bounds retries of a CREATE approval that lost an identifier race.
const maxApplyAttempts = 3

// ApprovalService applies or rejects pending change requests. Each approval is one transaction:
// the tree mutation, the item history version, the QC approval and the status flip commit together
// or not at all.
type ApprovalService struct {
	db     *gorm.DB
	alloc  *Allocator
	collab Collaborators
	docs   documentRenderer
	now    func() time.Time

	// afterApply runs inside the transaction after the mutation and before the status write.
	afterApply func(tx *gorm.DB, cr *models.ChangeRequest) error
}

// NewApprovalService returns an approval engine. alloc must be shared by every service that creates items.
func NewApprovalService(db *gorm.DB, alloc *Allocator, collab Collaborators) *ApprovalService {
	collab = collab.withDefaults(db)
	return &ApprovalService{
		db:     db,
		alloc:  alloc,
		collab: collab,
		docs:   documentRenderer{db: db, docs: collab.Docs},
		now:    time.Now,
	}
}

// applied is what a committed approval hands to the post-commit side effects.
type applied struct {
	cr        *models.ChangeRequest
	item      models.Item
	historyID uint
	related   []uint
}

// Approve applies request id to the item tree and marks it APPROVED.
func (s *ApprovalService) Approve(ctx context.Context, actor models.Actor, id uint) (_ *models.ChangeRequest, err error) {
	ctx, span := observability.StartSpan(ctx, "approval.approve", attribute.Int64("change_request.id", int64(id)))
	defer func() { span.End(err) }()

	if !actor.CanReview() {
		return nil, models.NewUnauthorizedError("Only admins and inspectors can approve change requests")
	}

	st := newStores(s.db)
	cr, err := st.changes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cr.Status != models.ChangePending {
		return nil, models.NewInvalidStateError(fmt.Sprintf("change request %d is %s, not PENDING", id, cr.Status))
	}
	span.SetAttributes(attribute.String("change_request.type", string(cr.Type)))

	start := time.Now()
	var res *applied
	if cr.Type == models.ChangeCreate {
		unlock := s.alloc.Lock(cr.TargetProjectID, cr.TargetParentID)
		for attempt := 1; ; attempt++ {
			res, err = s.applyOnce(ctx, actor, id)
			if err == nil || !models.IsCode(err, models.CodeAllocationConflict) || attempt >= maxApplyAttempts {
				break
			}
			observability.AllocationRetries.Inc()
			middleware.Logger.WarnContext(ctx, "identifier allocation conflict, retrying",
				"change_request_id", id, "attempt", attempt, "error", err)
		}
		unlock()
	} else if cr.Type == models.ChangeDelete && cr.ItemID != nil {
		// Deleting an item races with creating its children; share their sibling-group key.
		unlock := s.alloc.Lock(cr.TargetProjectID, cr.ItemID)
		res, err = s.applyOnce(ctx, actor, id)
		unlock()
	} else {
		res, err = s.applyOnce(ctx, actor, id)
	}
	observability.ApprovalDuration.WithLabelValues(string(cr.Type)).Observe(time.Since(start).Seconds())

	if err != nil {
		observability.ChangeRequestsTotal.WithLabelValues(string(cr.Type), "failed").Inc()
		return nil, err
	}
	observability.ChangeRequestsTotal.WithLabelValues(string(cr.Type), "approved").Inc()

	s.afterCommit(ctx, res)
	return st.changes.GetByID(ctx, id)
}

func (s *ApprovalService) applyOnce(ctx context.Context, actor models.Actor, id uint) (*applied, error) {
	var res *applied
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		st := newStores(tx)

		cr, err := st.changes.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if cr.Status != models.ChangePending {
			return models.NewInvalidStateError(fmt.Sprintf("change request %d is %s, not PENDING", id, cr.Status))
		}

		payload, err := cr.Decode()
		if err != nil {
			return err
		}

		now := s.now()
		res = &applied{cr: cr}
		switch p := payload.(type) {
		case models.CreatePayload:
			err = s.applyCreate(ctx, tx, st, cr, p, now, res)
		case models.UpdatePayload:
			err = s.applyUpdate(ctx, st, cr, p, res)
		case models.DeletePayload:
			err = s.applyDelete(ctx, tx, st, cr, res)
		default:
			err = models.NewValidationError(fmt.Sprintf("unsupported payload %T", payload))
		}
		if err != nil {
			return err
		}

		h := &models.ItemHistory{
			ItemID:          res.item.ID,
			ItemFullID:      res.item.FullID,
			ItemTitle:       res.item.Title,
			ItemContent:     res.item.Content,
			ProjectID:       res.item.ProjectID,
			ChangeType:      cr.Type,
			ChangeRequestID: uintPtr(cr.ID),
			SubmittedByID:   cr.SubmittedByID,
			ReviewedByID:    uintPtr(actor.UserID),
		}
		if err := st.history.Create(ctx, h); err != nil {
			return err
		}
		res.historyID = h.ID

		// An item already in a revision loop keeps its approval; the new version resolves it.
		waiting, err := st.qc.FindRevisionRequiredForItem(ctx, res.item.ID)
		if err != nil {
			return err
		}
		if waiting == nil {
			if err := st.qc.Create(ctx, &models.QCDocumentApproval{ItemHistoryID: h.ID, Status: models.QCPendingQC}); err != nil {
				return err
			}
		}

		if s.afterApply != nil {
			if err := s.afterApply(tx, cr); err != nil {
				return err
			}
		}

		return st.changes.Transition(ctx, id, models.ChangePending, models.ChangeApproved,
			&repository.Review{ReviewerID: actor.UserID, At: now})
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *ApprovalService) applyCreate(ctx context.Context, tx *gorm.DB, st stores, cr *models.ChangeRequest, p models.CreatePayload, now time.Time, res *applied) error {
	fullID, err := s.alloc.Allocate(ctx, tx, cr.TargetProjectID, cr.TargetParentID)
	if err != nil {
		return err
	}

	item := &models.Item{
		FullID:      fullID,
		Title:       p.Title,
		Content:     p.Content,
		Attachments: models.Attachments(p.Attachments),
		ProjectID:   cr.TargetProjectID,
		ParentID:    cr.TargetParentID,
		PublishedAt: &now,
	}
	if err := st.items.Create(ctx, item); err != nil {
		return err
	}

	for _, rid := range p.RelatedItemIDs {
		if rid == item.ID {
			continue
		}
		target, err := st.items.GetByID(ctx, rid)
		if models.IsCode(err, models.CodeNotFound) || (err == nil && target.IsDeleted) {
			middleware.Logger.WarnContext(ctx, "skipping related item that no longer exists",
				"change_request_id", cr.ID, "related_item_id", rid)
			continue
		}
		if err != nil {
			return err
		}
		if err := st.items.Relate(ctx, item.ID, rid); err != nil {
			return err
		}
		res.related = append(res.related, rid)
	}

	if err := st.changes.AttachItem(ctx, cr.ID, item.ID); err != nil {
		return err
	}
	res.item = *item
	return nil
}

// targetItem loads and row-locks the live item an UPDATE or DELETE request points at, so two
// approvals against one item apply one after the other.
func targetItem(ctx context.Context, st stores, cr *models.ChangeRequest) (*models.Item, error) {
	if cr.ItemID == nil {
		return nil, models.NewTargetMissingError("<none>")
	}
	item, err := st.items.GetForUpdate(ctx, *cr.ItemID)
	if models.IsCode(err, models.CodeNotFound) {
		return nil, models.NewTargetMissingError(*cr.ItemID)
	}
	if err != nil {
		return nil, err
	}
	if item.IsDeleted {
		return nil, models.NewTargetMissingError(*cr.ItemID)
	}
	return item, nil
}

func (s *ApprovalService) applyUpdate(ctx context.Context, st stores, cr *models.ChangeRequest, p models.UpdatePayload, res *applied) error {
	item, err := targetItem(ctx, st, cr)
	if err != nil {
		return err
	}

	var attachments *models.Attachments
	if p.Attachments != nil {
		a := models.Attachments(*p.Attachments)
		attachments = &a
	}
	if err := st.items.UpdateContent(ctx, item.ID, p.Title, p.Content, attachments); err != nil {
		return err
	}

	updated, err := st.items.GetByID(ctx, item.ID)
	if err != nil {
		return err
	}
	res.item = *updated
	res.related, err = relatedIDs(ctx, st, item.ID)
	return err
}

func (s *ApprovalService) applyDelete(ctx context.Context, tx *gorm.DB, st stores, cr *models.ChangeRequest, res *applied) error {
	item, err := targetItem(ctx, st, cr)
	if err != nil {
		return err
	}
	if err := LockGroup(ctx, tx, item.ProjectID, &item.ID); err != nil {
		return err
	}

	children, err := st.items.CountActiveChildren(ctx, item.ID)
	if err != nil {
		return err
	}
	if children > 0 {
		return models.NewHasChildrenError(item.FullID, children)
	}
	if err := st.items.SoftDelete(ctx, item.ID); err != nil {
		return err
	}

	item.IsDeleted = true
	res.item = *item
	res.related, err = relatedIDs(ctx, st, item.ID)
	return err
}

func relatedIDs(ctx context.Context, st stores, itemID uint) ([]uint, error) {
	related, err := st.items.ListRelated(ctx, itemID)
	if err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(related))
	for _, r := range related {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

func (s *ApprovalService) afterCommit(ctx context.Context, res *applied) {
	s.collab.Cache.InvalidateProject(ctx, res.item.ProjectID)
	s.collab.Cache.InvalidateItem(ctx, append([]uint{res.item.ID}, res.related...)...)
	s.collab.Search.IndexItem(ctx, res.item)

	s.docs.render(ctx, "initial", res.historyID, nil)

	s.collab.Notifier.Notify(ctx, models.Notification{
		UserID:          res.cr.SubmittedByID,
		Type:            models.NotificationChangeApproved,
		Title:           "變更申請已核准",
		Message:         fmt.Sprintf("%s %s", res.item.FullID, res.item.Title),
		Link:            fmt.Sprintf("/items/%d", res.item.ID),
		ChangeRequestID: uintPtr(res.cr.ID),
		ItemHistoryID:   uintPtr(res.historyID),
	})
}

// Reject marks request id REJECTED with note. The item tree is untouched.
func (s *ApprovalService) Reject(ctx context.Context, actor models.Actor, id uint, note string) (_ *models.ChangeRequest, err error) {
	ctx, span := observability.StartSpan(ctx, "approval.reject", attribute.Int64("change_request.id", int64(id)))
	defer func() { span.End(err) }()

	if !actor.CanReview() {
		return nil, models.NewUnauthorizedError("Only admins and inspectors can reject change requests")
	}

	var cr *models.ChangeRequest
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		st := newStores(tx)
		var err error
		cr, err = st.changes.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if cr.Status != models.ChangePending {
			return models.NewInvalidStateError(fmt.Sprintf("change request %d is %s, not PENDING", id, cr.Status))
		}
		return st.changes.Transition(ctx, id, models.ChangePending, models.ChangeRejected,
			&repository.Review{ReviewerID: actor.UserID, Note: note, At: s.now()})
	})
	if err != nil {
		return nil, err
	}
	observability.ChangeRequestsTotal.WithLabelValues(string(cr.Type), "rejected").Inc()

	message := fmt.Sprintf("%s 申請已退回", cr.Type)
	if note != "" {
		message += ": " + note
	}
	s.collab.Notifier.Notify(ctx, models.Notification{
		UserID:          cr.SubmittedByID,
		Type:            models.NotificationChangeRejected,
		Title:           "變更申請已退回",
		Message:         message,
		Link:            fmt.Sprintf("/change-requests/rejected/%d", cr.ID),
		ChangeRequestID: uintPtr(cr.ID),
	})

	return newStores(s.db).changes.GetByID(ctx, id)
}

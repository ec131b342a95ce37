package service

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"docket/internal/middleware"
	"docket/internal/models"
	"docket/internal/observability"
)

// SubmitInput is a proposed change. ProjectID and ParentID address CREATE requests; ItemID
// addresses UPDATE and DELETE. ResubmitOf names a rejected request this one supersedes.
type SubmitInput struct {
	Type       models.ChangeType
	Payload    models.Payload
	ProjectID  uint
	ParentID   *uint
	ItemID     *uint
	ResubmitOf *uint
}

// ChangeRequestService is the queue of proposed item mutations.
type ChangeRequestService struct {
	db *gorm.DB
}

func NewChangeRequestService(db *gorm.DB) *ChangeRequestService {
	return &ChangeRequestService{db: db}
}

// Submit validates in and stores it as a PENDING request.
func (s *ChangeRequestService) Submit(ctx context.Context, actor models.Actor, in SubmitInput) (*models.ChangeRequest, error) {
	if !actor.CanSubmit() {
		return nil, models.NewUnauthorizedError("Your role cannot submit change requests")
	}
	if !in.Type.Valid() {
		return nil, models.NewValidationError(fmt.Sprintf("unknown change type %q", in.Type))
	}
	if in.Payload == nil && in.Type == models.ChangeDelete {
		in.Payload = models.DeletePayload{}
	}
	if in.Payload == nil {
		return nil, models.NewValidationError("payload is required")
	}
	if in.Payload.ChangeType() != in.Type {
		return nil, models.NewValidationError(fmt.Sprintf("payload for %s does not match request type %s", in.Payload.ChangeType(), in.Type))
	}
	data, err := models.EncodePayload(in.Payload)
	if err != nil {
		return nil, err
	}

	cr := &models.ChangeRequest{
		Type:              in.Type,
		Status:            models.ChangePending,
		Data:              data,
		SubmittedByID:     actor.UserID,
		ResubmittedFromID: in.ResubmitOf,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		st := newStores(tx)
		if err := s.resolveTarget(ctx, st, in, cr); err != nil {
			return err
		}
		if in.ResubmitOf != nil {
			if err := s.resubmit(ctx, st, actor, *in.ResubmitOf); err != nil {
				return err
			}
		}
		return st.changes.Create(ctx, cr)
	})
	if err != nil {
		return nil, err
	}
	observability.ChangeRequestsTotal.WithLabelValues(string(cr.Type), "submitted").Inc()

	if in.ResubmitOf != nil {
		s.clearNotifications(ctx, actor, *in.ResubmitOf)
	}
	return newStores(s.db).changes.GetByID(ctx, cr.ID)
}

// resolveTarget checks the request's target exists and fills its project, parent and item columns.
func (s *ChangeRequestService) resolveTarget(ctx context.Context, st stores, in SubmitInput, cr *models.ChangeRequest) error {
	if in.Type == models.ChangeCreate {
		if in.ProjectID == 0 {
			return models.NewValidationError("projectId is required")
		}
		if _, err := st.projects.GetByID(ctx, in.ProjectID); err != nil {
			return err
		}
		if in.ParentID != nil {
			parent, err := st.items.GetByID(ctx, *in.ParentID)
			if err != nil {
				return err
			}
			if parent.IsDeleted || parent.ProjectID != in.ProjectID {
				return models.NewNotFoundError("Item", *in.ParentID)
			}
		}
		cr.TargetProjectID = in.ProjectID
		cr.TargetParentID = in.ParentID
		return nil
	}

	if in.ItemID == nil {
		return models.NewValidationError("itemId is required")
	}
	item, err := st.items.GetActiveByID(ctx, *in.ItemID)
	if err != nil {
		return err
	}
	if in.Type == models.ChangeDelete {
		children, err := st.items.CountActiveChildren(ctx, item.ID)
		if err != nil {
			return err
		}
		if children > 0 {
			return models.NewHasChildrenError(item.FullID, children)
		}
	}
	cr.TargetProjectID = item.ProjectID
	cr.TargetParentID = item.ParentID
	cr.ItemID = uintPtr(item.ID)
	return nil
}

func (s *ChangeRequestService) resubmit(ctx context.Context, st stores, actor models.Actor, id uint) error {
	prev, err := st.changes.GetForUpdate(ctx, id)
	if err != nil {
		return err
	}
	if !actor.Owns(prev.SubmittedByID) {
		return models.NewUnauthorizedError("You can only resubmit your own change requests")
	}
	if prev.Status != models.ChangeRejected {
		return models.NewInvalidStateError(fmt.Sprintf("change request %d is %s, not REJECTED", id, prev.Status))
	}
	return st.changes.Transition(ctx, id, models.ChangeRejected, models.ChangeResubmitted, nil)
}

func (s *ChangeRequestService) clearNotifications(ctx context.Context, actor models.Actor, id uint) {
	if err := newStores(s.db).notifications.MarkReadByChangeRequest(ctx, actor.UserID, id); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to mark change request notifications read",
			"change_request_id", id, "error", err)
	}
}

// ListPending returns the review queue, oldest first. Callers who cannot review see nothing.
func (s *ChangeRequestService) ListPending(ctx context.Context, actor models.Actor) ([]models.ChangeRequest, error) {
	if !actor.CanReview() {
		return []models.ChangeRequest{}, nil
	}
	return newStores(s.db).changes.ListPending(ctx)
}

// MarkResubmitted hides a rejected request from the submitter's queue.
func (s *ChangeRequestService) MarkResubmitted(ctx context.Context, actor models.Actor, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.resubmit(ctx, newStores(tx), actor, id)
	})
	if err != nil {
		return err
	}
	s.clearNotifications(ctx, actor, id)
	return nil
}

// ListRejected returns the caller's rejected requests, newest first.
func (s *ChangeRequestService) ListRejected(ctx context.Context, actor models.Actor) ([]models.ChangeRequest, error) {
	return newStores(s.db).changes.ListRejectedBySubmitter(ctx, actor.UserID)
}

// GetRejectedDetail returns one rejected request visible to the caller.
func (s *ChangeRequestService) GetRejectedDetail(ctx context.Context, actor models.Actor, id uint) (*models.ChangeRequest, error) {
	cr, err := newStores(s.db).changes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Owns(cr.SubmittedByID) {
		return nil, models.NewUnauthorizedError("You can only view your own change requests")
	}
	if cr.Status != models.ChangeRejected {
		return nil, models.NewNotFoundError("Rejected change request", id)
	}
	return cr, nil
}

package server

import (
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"

	"docket/internal/models"
	"docket/internal/service"
)

// ChangeRequestBody is the body of POST /change-requests. Payload is the untagged body of the
// variant named by Type.
type ChangeRequestBody struct {
	Type       models.ChangeType `json:"type"`
	Payload    json.RawMessage   `json:"payload"`
	ProjectID  uint              `json:"project_id"`
	ParentID   *uint             `json:"parent_id"`
	ItemID     *uint             `json:"item_id"`
	ResubmitOf *uint             `json:"resubmit_of"`
}

// ReviewRequest carries an optional reviewer note.
type ReviewRequest struct {
	Note string `json:"note"`
}

// SubmitChangeRequest queues a proposed item mutation for review
// @Summary Submit change request
// @Tags change-requests
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body ChangeRequestBody true "Change request"
// @Success 201 {object} models.ChangeRequest
// @Failure 400 {object} models.ErrorResponse
// @Router /change-requests [post]
func (s *Server) SubmitChangeRequest(c *fiber.Ctx) error {
	var req ChangeRequestBody
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	req.Type = models.ChangeType(strings.ToUpper(strings.TrimSpace(string(req.Type))))

	in := service.SubmitInput{
		Type:       req.Type,
		ProjectID:  req.ProjectID,
		ParentID:   req.ParentID,
		ItemID:     req.ItemID,
		ResubmitOf: req.ResubmitOf,
	}
	if len(req.Payload) > 0 && string(req.Payload) != "null" {
		payload, err := models.ParsePayload(req.Type, req.Payload)
		if err != nil {
			return respondError(c, err)
		}
		in.Payload = payload
	}

	cr, err := s.changes.Submit(c.UserContext(), actorFrom(c), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(cr)
}

// ListRejectedChangeRequests returns the caller's rejected requests
// @Summary Rejected change requests
// @Tags change-requests
// @Security BearerAuth
// @Produce json
// @Success 200 {array} models.ChangeRequest
// @Router /change-requests/rejected [get]
func (s *Server) ListRejectedChangeRequests(c *fiber.Ctx) error {
	list, err := s.changes.ListRejected(c.UserContext(), actorFrom(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(list)
}

// GetRejectedChangeRequest returns one of the caller's rejected requests
// @Summary Rejected change request detail
// @Tags change-requests
// @Security BearerAuth
// @Produce json
// @Param id path int true "Change request ID"
// @Success 200 {object} models.ChangeRequest
// @Router /change-requests/rejected/{id} [get]
func (s *Server) GetRejectedChangeRequest(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	cr, err := s.changes.GetRejectedDetail(c.UserContext(), actorFrom(c), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(cr)
}

// MarkChangeRequestResubmitted hides a rejected request from the caller's queue
// @Summary Mark rejected request handled
// @Tags change-requests
// @Security BearerAuth
// @Param id path int true "Change request ID"
// @Success 204
// @Router /change-requests/{id}/resubmitted [post]
func (s *Server) MarkChangeRequestResubmitted(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.changes.MarkResubmitted(c.UserContext(), actorFrom(c), id); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListPendingChangeRequests returns the review queue, oldest first
// @Summary Pending change requests
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Success 200 {array} models.ChangeRequest
// @Router /admin/change-requests [get]
func (s *Server) ListPendingChangeRequests(c *fiber.Ctx) error {
	list, err := s.changes.ListPending(c.UserContext(), actorFrom(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(list)
}

// ApproveChangeRequest applies a pending request to the item tree
// @Summary Approve change request
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Param id path int true "Change request ID"
// @Success 200 {object} models.ChangeRequest
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /admin/change-requests/{id}/approve [post]
func (s *Server) ApproveChangeRequest(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	cr, err := s.approvals.Approve(c.UserContext(), actorFrom(c), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(cr)
}

// RejectChangeRequest rejects a pending request with an optional note
// @Summary Reject change request
// @Tags admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "Change request ID"
// @Param request body ReviewRequest false "Note"
// @Success 200 {object} models.ChangeRequest
// @Router /admin/change-requests/{id}/reject [post]
func (s *Server) RejectChangeRequest(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req ReviewRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("Invalid request body"))
		}
	}
	cr, err := s.approvals.Reject(c.UserContext(), actorFrom(c), id, strings.TrimSpace(req.Note))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(cr)
}

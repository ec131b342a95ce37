package server

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"docket/internal/models"
)

// ResubmitRequest names the item history entry that answers the open revision request.
type ResubmitRequest struct {
	ItemHistoryID uint `json:"item_history_id"`
}

func parseNote(c *fiber.Ctx) (string, error) {
	var req ReviewRequest
	if len(c.Body()) == 0 {
		return "", nil
	}
	if err := c.BodyParser(&req); err != nil {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
		return "", errResponseWritten
	}
	return strings.TrimSpace(req.Note), nil
}

// ListQCApprovals returns the approvals waiting on the caller's sign-off
// @Summary QC approvals for the caller
// @Tags qc
// @Security BearerAuth
// @Produce json
// @Success 200 {array} models.QCDocumentApproval
// @Router /qc/approvals [get]
func (s *Server) ListQCApprovals(c *fiber.Ctx) error {
	list, err := s.qc.ListForReviewer(c.UserContext(), actorFrom(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(list)
}

// ListPendingQC returns approvals waiting on QC sign-off
// @Summary Pending QC approvals
// @Tags qc
// @Security BearerAuth
// @Produce json
// @Success 200 {array} models.QCDocumentApproval
// @Router /qc/approvals/pending-qc [get]
func (s *Server) ListPendingQC(c *fiber.Ctx) error {
	list, err := s.qc.ListPendingQC(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(list)
}

// ListPendingPM returns approvals waiting on PM sign-off
// @Summary Pending PM approvals
// @Tags qc
// @Security BearerAuth
// @Produce json
// @Success 200 {array} models.QCDocumentApproval
// @Router /qc/approvals/pending-pm [get]
func (s *Server) ListPendingPM(c *fiber.Ctx) error {
	list, err := s.qc.ListPendingPM(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(list)
}

// CountPendingQC returns how many approvals wait on the caller
// @Summary Pending approval count
// @Tags qc
// @Security BearerAuth
// @Produce json
// @Success 200 {object} map[string]int64
// @Router /qc/approvals/count [get]
func (s *Server) CountPendingQC(c *fiber.Ctx) error {
	n, err := s.qc.PendingCount(c.UserContext(), actorFrom(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"count": n})
}

// ListRevisionRequired returns approvals sent back for revision on the caller's submissions
// @Summary Approvals needing revision
// @Tags qc
// @Security BearerAuth
// @Produce json
// @Success 200 {array} models.QCDocumentApproval
// @Router /qc/approvals/revisions [get]
func (s *Server) ListRevisionRequired(c *fiber.Ctx) error {
	list, err := s.qc.ListRevisionRequired(c.UserContext(), actorFrom(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(list)
}

// GetQCApproval returns one approval with its revisions
// @Summary Get QC approval
// @Tags qc
// @Security BearerAuth
// @Produce json
// @Param id path int true "Approval ID"
// @Success 200 {object} models.QCDocumentApproval
// @Router /qc/approvals/{id} [get]
func (s *Server) GetQCApproval(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	a, err := s.qc.Get(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(a)
}

// ApproveQC records the QC sign-off
// @Summary QC sign-off
// @Tags qc
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "Approval ID"
// @Param request body ReviewRequest false "Note"
// @Success 200 {object} models.QCDocumentApproval
// @Router /qc/approvals/{id}/approve-qc [post]
func (s *Server) ApproveQC(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	note, err := parseNote(c)
	if err != nil {
		return nil
	}
	a, err := s.qc.ApproveAsQC(c.UserContext(), actorFrom(c), id, note)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(a)
}

// ApprovePM records the PM sign-off and completes the approval
// @Summary PM sign-off
// @Tags qc
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "Approval ID"
// @Param request body ReviewRequest false "Note"
// @Success 200 {object} models.QCDocumentApproval
// @Router /qc/approvals/{id}/approve-pm [post]
func (s *Server) ApprovePM(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	note, err := parseNote(c)
	if err != nil {
		return nil
	}
	a, err := s.qc.ApproveAsPM(c.UserContext(), actorFrom(c), id, note)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(a)
}

// RejectQC sends an approval back for revision. The note is required.
// @Summary Request revision
// @Tags qc
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "Approval ID"
// @Param request body ReviewRequest true "Note"
// @Success 200 {object} models.QCDocumentApproval
// @Router /qc/approvals/{id}/reject [post]
func (s *Server) RejectQC(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	note, err := parseNote(c)
	if err != nil {
		return nil
	}
	a, err := s.qc.Reject(c.UserContext(), actorFrom(c), id, note)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(a)
}

// ResubmitQC answers the open revision request with a new item history entry
// @Summary Resubmit for review
// @Tags qc
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "Approval ID"
// @Param request body ResubmitRequest true "Revision"
// @Success 200 {object} models.QCDocumentApproval
// @Router /qc/approvals/{id}/resubmit [post]
func (s *Server) ResubmitQC(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req ResubmitRequest
	if err := c.BodyParser(&req); err != nil || req.ItemHistoryID == 0 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("item_history_id is required"))
	}
	a, err := s.qc.ResubmitForReview(c.UserContext(), actorFrom(c), id, req.ItemHistoryID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(a)
}

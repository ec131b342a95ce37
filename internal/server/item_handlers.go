package server

import (
	"github.com/gofiber/fiber/v2"

	"docket/internal/models"
)

// RelatedItemRequest names the item to relate by its full identifier.
type RelatedItemRequest struct {
	FullID string `json:"full_id"`
}

// GetItem returns a live item with its related items
// @Summary Get item
// @Tags items
// @Security BearerAuth
// @Produce json
// @Param id path int true "Item ID"
// @Success 200 {object} models.Item
// @Router /items/{id} [get]
func (s *Server) GetItem(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	item, err := s.items.Get(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(item)
}

// LookupItem resolves an item by its full identifier
// @Summary Look up item by full ID
// @Tags items
// @Security BearerAuth
// @Produce json
// @Param fullId query string true "Full ID, e.g. KSS-1-2"
// @Success 200 {object} models.Item
// @Router /items/lookup [get]
func (s *Server) LookupItem(c *fiber.Ctx) error {
	item, err := s.items.Lookup(c.UserContext(), c.Query("fullId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(item)
}

// SearchItems matches items by full ID, title or content
// @Summary Search items
// @Tags items
// @Security BearerAuth
// @Produce json
// @Param q query string true "Query"
// @Param projectId query int false "Restrict to a project"
// @Success 200 {array} models.Item
// @Router /items/search [get]
func (s *Server) SearchItems(c *fiber.Ctx) error {
	projectID, err := optionalUintQuery(c, "projectId")
	if err != nil {
		return nil
	}
	items, err := s.items.Search(c.UserContext(), c.Query("q"), projectID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(items)
}

// GetItemHistory returns the applied versions of an item, newest first
// @Summary Item history
// @Tags items
// @Security BearerAuth
// @Produce json
// @Param id path int true "Item ID"
// @Success 200 {array} models.ItemHistory
// @Router /items/{id}/history [get]
func (s *Server) GetItemHistory(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	history, err := s.items.History(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(history)
}

// ListRelatedItems returns the live items related to an item
// @Summary List related items
// @Tags items
// @Security BearerAuth
// @Produce json
// @Param id path int true "Item ID"
// @Success 200 {array} models.Item
// @Router /items/{id}/related [get]
func (s *Server) ListRelatedItems(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	related, err := s.relations.ListRelated(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(related)
}

// AddRelatedItem links two items symmetrically
// @Summary Relate items
// @Tags items
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "Item ID"
// @Param request body RelatedItemRequest true "Target"
// @Success 201 {object} models.Item
// @Router /items/{id}/related [post]
func (s *Server) AddRelatedItem(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req RelatedItemRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	target, err := s.relations.AddRelated(c.UserContext(), actorFrom(c), id, req.FullID)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(target)
}

// RemoveRelatedItem unlinks two items
// @Summary Unrelate items
// @Tags items
// @Security BearerAuth
// @Param id path int true "Item ID"
// @Param targetId path int true "Related item ID"
// @Success 204
// @Router /items/{id}/related/{targetId} [delete]
func (s *Server) RemoveRelatedItem(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	targetID, err := s.parseID(c, "targetId")
	if err != nil {
		return nil
	}
	if err := s.relations.RemoveRelated(c.UserContext(), actorFrom(c), id, targetID); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

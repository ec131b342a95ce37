package server

import (
	"github.com/gofiber/fiber/v2"

	"docket/internal/models"
)

// ProjectRequest is the body of project create and update calls. CodePrefix is ignored on update.
type ProjectRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	CodePrefix  string `json:"code_prefix"`
}

// ListProjects returns every project with its live item count
// @Summary List projects
// @Tags projects
// @Security BearerAuth
// @Produce json
// @Success 200 {array} models.Project
// @Router /projects [get]
func (s *Server) ListProjects(c *fiber.Ctx) error {
	projects, err := s.projects.List(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(projects)
}

// CreateProject registers a new project
// @Summary Create project
// @Tags projects
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body ProjectRequest true "Project"
// @Success 201 {object} models.Project
// @Failure 409 {object} models.ErrorResponse
// @Router /projects [post]
func (s *Server) CreateProject(c *fiber.Ctx) error {
	var req ProjectRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	p, err := s.projects.Create(c.UserContext(), actorFrom(c), req.Title, req.Description, req.CodePrefix)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(p)
}

// GetProject returns one project
// @Summary Get project
// @Tags projects
// @Security BearerAuth
// @Produce json
// @Param id path int true "Project ID"
// @Success 200 {object} models.Project
// @Router /projects/{id} [get]
func (s *Server) GetProject(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	p, err := s.projects.Get(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(p)
}

// UpdateProject changes a project's title and description
// @Summary Update project
// @Tags projects
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "Project ID"
// @Param request body ProjectRequest true "Project"
// @Success 200 {object} models.Project
// @Router /projects/{id} [put]
func (s *Server) UpdateProject(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req ProjectRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	p, err := s.projects.Update(c.UserContext(), actorFrom(c), id, req.Title, req.Description)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(p)
}

// DeleteProject removes a project that owns no items
// @Summary Delete project
// @Tags projects
// @Security BearerAuth
// @Param id path int true "Project ID"
// @Success 204
// @Failure 409 {object} models.ErrorResponse
// @Router /projects/{id} [delete]
func (s *Server) DeleteProject(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.projects.Delete(c.UserContext(), actorFrom(c), id); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetProjectTree returns the project's live items as a nested tree
// @Summary Project item tree
// @Tags projects
// @Security BearerAuth
// @Produce json
// @Param id path int true "Project ID"
// @Success 200 {array} itemtree.Node
// @Router /projects/{id}/tree [get]
func (s *Server) GetProjectTree(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	tree, err := s.items.Tree(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(tree)
}

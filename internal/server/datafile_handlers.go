package server

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"docket/internal/models"
	"docket/internal/service"
)

// UploadDataFile stores a multipart upload (field "file") under a data year and code
// @Summary Upload data file
// @Tags datafiles
// @Security BearerAuth
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "File"
// @Param data_year formData int true "Data year"
// @Param data_code formData string false "Data code"
// @Success 201 {object} models.DataFile
// @Failure 400 {object} models.ErrorResponse
// @Router /datafiles [post]
func (s *Server) UploadDataFile(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("a file is required"))
	}
	year, err := strconv.Atoi(strings.TrimSpace(c.FormValue("data_year")))
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("data_year must be a number"))
	}

	body, err := fh.Open()
	if err != nil {
		return respondError(c, models.NewInternalError(err))
	}
	defer func() { _ = body.Close() }()

	f, err := s.datafiles.Upload(c.UserContext(), actorFrom(c), service.UploadInput{
		FileName: fh.Filename,
		MimeType: fh.Header.Get(fiber.HeaderContentType),
		DataYear: year,
		DataCode: c.FormValue("data_code"),
		Size:     fh.Size,
		Body:     body,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(f)
}

// ListDataFiles returns data files newest first, optionally for one year
// @Summary List data files
// @Tags datafiles
// @Security BearerAuth
// @Produce json
// @Param year query int false "Data year"
// @Success 200 {array} models.DataFile
// @Router /datafiles [get]
func (s *Server) ListDataFiles(c *fiber.Ctx) error {
	year := c.QueryInt("year", 0)
	if year < 0 {
		year = 0
	}
	list, err := s.datafiles.List(c.UserContext(), year)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(list)
}

// DownloadDataFile streams a stored data file
// @Summary Download data file
// @Tags datafiles
// @Security BearerAuth
// @Produce octet-stream
// @Param id path int true "Data file ID"
// @Success 200 {file} binary
// @Router /datafiles/{id}/download [get]
func (s *Server) DownloadDataFile(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	f, body, err := s.datafiles.Open(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}

	contentType := f.MimeType
	if contentType == "" {
		contentType = fiber.MIMEOctetStream
	}
	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename*=UTF-8''%s`, url.PathEscape(f.FileName)))
	return c.SendStream(body, int(f.FileSize))
}

// DeleteDataFile removes a data file and its stored content
// @Summary Delete data file
// @Tags datafiles
// @Security BearerAuth
// @Param id path int true "Data file ID"
// @Success 204
// @Router /datafiles/{id} [delete]
func (s *Server) DeleteDataFile(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.datafiles.Delete(c.UserContext(), actorFrom(c), id); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

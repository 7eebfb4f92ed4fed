package server

import (
	"errors"
	"log/slog"

	"folio/internal/middleware"
	"folio/internal/models"
	"folio/internal/service"

	"github.com/gofiber/fiber/v2"
)

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper. Handlers must return nil (not this error) to avoid
// Fiber's ErrorHandler overwriting the response.
var errResponseWritten = errors.New("response already written")

// Pagination holds parsed page/limit query parameters.
type Pagination struct {
	Page  int
	Limit int
}

// parsePagination extracts page and limit query parameters. Out of range
// values are clamped.
func parsePagination(c *fiber.Ctx) Pagination {
	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	limit := c.QueryInt("limit", service.DefaultPageSize)
	if limit <= 0 {
		limit = service.DefaultPageSize
	}
	if limit > service.MaxPageSize {
		limit = service.MaxPageSize
	}
	return Pagination{Page: page, Limit: limit}
}

// parseID extracts the :id route parameter as a positive uint.
// On failure it writes a 400 JSON response and returns errResponseWritten.
// Callers should check: if err != nil { return nil }
func (s *Server) parseID(c *fiber.Ctx) (uint, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		_ = models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Invalid ID"))
		return 0, errResponseWritten
	}
	return uint(id), nil
}

// statusFor maps an error to the HTTP status of its AppError code.
func statusFor(err error) int {
	switch models.ErrorCode(err) {
	case models.CodeNotFound:
		return fiber.StatusNotFound
	case models.CodeForbidden:
		return fiber.StatusForbidden
	case models.CodeUnauthorized:
		return fiber.StatusUnauthorized
	case models.CodeValidation:
		return fiber.StatusBadRequest
	case models.CodeInvalidTransition, models.CodeConflict:
		return fiber.StatusConflict
	case models.CodePartialCascade:
		return fiber.StatusMultiStatus
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError writes err with the status statusFor picks. Errors that are not
// AppErrors are logged and hidden behind a generic internal error.
func respondError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status == fiber.StatusInternalServerError {
		middleware.Logger.ErrorContext(c.UserContext(), "request failed",
			slog.String("path", c.Path()),
			slog.String("error", err.Error()),
		)
		var appErr *models.AppError
		if !errors.As(err, &appErr) {
			err = models.NewInternalError(err)
		}
	}
	return models.RespondWithError(c, status, err)
}

// respondCascade answers a cascade request. A partial cascade is still a
// response with a body: the report says which documents were left behind.
func respondCascade(c *fiber.Ctx, report *models.CascadeReport, err error) error {
	if errors.Is(err, models.ErrPartialCascade) && report != nil {
		return c.Status(fiber.StatusMultiStatus).JSON(fiber.Map{
			"error":  models.ErrPartialCascade.Message,
			"code":   models.CodePartialCascade,
			"report": report,
		})
	}
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(report)
}

package server

import (
	"folio/internal/middleware"
	"folio/internal/models"
	"folio/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetModerationQueue handles GET /api/admin/posts?status=pending
func (s *Server) GetModerationQueue(c *fiber.Ctx) error {
	page := parsePagination(c)
	result, err := s.moderationService.Queue(c.UserContext(), middleware.PrincipalFrom(c),
		models.PostStatus(c.Query("status")), page.Page, page.Limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

// ApprovePost handles POST /api/admin/posts/:id/approve
func (s *Server) ApprovePost(c *fiber.Ctx) error {
	postID, err := s.parseID(c)
	if err != nil {
		return nil
	}
	post, err := s.moderationService.ApprovePost(c.UserContext(), middleware.PrincipalFrom(c), postID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(post)
}

// RejectPost handles POST /api/admin/posts/:id/reject
func (s *Server) RejectPost(c *fiber.Ctx) error {
	postID, err := s.parseID(c)
	if err != nil {
		return nil
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	post, err := s.moderationService.RejectPost(c.UserContext(), middleware.PrincipalFrom(c), postID, req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(post)
}

// AdminDeletePost handles DELETE /api/admin/posts/:id
func (s *Server) AdminDeletePost(c *fiber.Ctx) error {
	postID, err := s.parseID(c)
	if err != nil {
		return nil
	}
	report, err := s.cascadeService.AdminDeletePost(c.UserContext(), middleware.PrincipalFrom(c), postID)
	return respondCascade(c, report, err)
}

// DeactivateUser handles POST /api/admin/users/:id/deactivate
func (s *Server) DeactivateUser(c *fiber.Ctx) error {
	userID, err := s.parseID(c)
	if err != nil {
		return nil
	}
	report, err := s.cascadeService.DeactivateAccount(c.UserContext(), middleware.PrincipalFrom(c), userID)
	return respondCascade(c, report, err)
}

// ReconcilePost handles POST /api/admin/posts/:id/reconcile
func (s *Server) ReconcilePost(c *fiber.Ctx) error {
	postID, err := s.parseID(c)
	if err != nil {
		return nil
	}
	drift, err := s.reconciler.ReconcilePost(c.UserContext(), middleware.PrincipalFrom(c), postID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(drift)
}

// ReconcileAll handles POST /api/admin/reconcile
func (s *Server) ReconcileAll(c *fiber.Ctx) error {
	summary, err := s.reconciler.ReconcileAll(c.UserContext(), service.TriggerManual)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(summary)
}

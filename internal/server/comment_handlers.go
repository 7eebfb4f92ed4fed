package server

import (
	"folio/internal/middleware"
	"folio/internal/models"
	"folio/internal/service"

	"github.com/gofiber/fiber/v2"
)

type createCommentRequest struct {
	Content     string `json:"content"`
	ParentID    *uint  `json:"parent_id"`
	ClientToken string `json:"client_token"`
}

// CreateComment handles POST /api/posts/:id/comments. The Idempotency-Key
// header is accepted in place of client_token.
func (s *Server) CreateComment(c *fiber.Ctx) error {
	postID, err := s.parseID(c)
	if err != nil {
		return nil
	}

	var req createCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	if req.ClientToken == "" {
		req.ClientToken = c.Get("Idempotency-Key")
	}

	comment, err := s.commentService.CreateComment(c.UserContext(), middleware.PrincipalFrom(c), service.CreateCommentInput{
		PostID:      postID,
		Content:     req.Content,
		ParentID:    req.ParentID,
		ClientToken: req.ClientToken,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(comment)
}

// GetComments handles GET /api/posts/:id/comments
func (s *Server) GetComments(c *fiber.Ctx) error {
	postID, err := s.parseID(c)
	if err != nil {
		return nil
	}
	page := parsePagination(c)

	result, err := s.commentService.ListComments(c.UserContext(), middleware.PrincipalFrom(c), service.ListCommentsInput{
		PostID: postID,
		Sort:   models.ParseCommentSort(c.Query("sort")),
		Page:   page.Page,
		Limit:  page.Limit,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

// UpdateComment handles PUT /api/comments/:id
func (s *Server) UpdateComment(c *fiber.Ctx) error {
	commentID, err := s.parseID(c)
	if err != nil {
		return nil
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	comment, err := s.commentService.UpdateComment(c.UserContext(), middleware.PrincipalFrom(c), commentID, req.Content)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(comment)
}

// DeleteComment handles DELETE /api/comments/:id
func (s *Server) DeleteComment(c *fiber.Ctx) error {
	commentID, err := s.parseID(c)
	if err != nil {
		return nil
	}
	if err := s.commentService.SoftDeleteComment(c.UserContext(), middleware.PrincipalFrom(c), commentID); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// LikeComment handles POST /api/comments/:id/like
func (s *Server) LikeComment(c *fiber.Ctx) error {
	commentID, err := s.parseID(c)
	if err != nil {
		return nil
	}
	res, err := s.commentService.ToggleLike(c.UserContext(), middleware.PrincipalFrom(c), commentID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

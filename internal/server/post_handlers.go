package server

import (
	"folio/internal/middleware"
	"folio/internal/models"
	"folio/internal/service"

	"github.com/gofiber/fiber/v2"
)

type createPostRequest struct {
	Title      string   `json:"title"`
	Body       string   `json:"body"`
	Excerpt    string   `json:"excerpt"`
	CoverImage string   `json:"cover_image"`
	Category   string   `json:"category"`
	Tags       []string `json:"tags"`
}

// updatePostRequest distinguishes absent fields (nil) from empty ones.
type updatePostRequest struct {
	Title      *string   `json:"title"`
	Body       *string   `json:"body"`
	Excerpt    *string   `json:"excerpt"`
	CoverImage *string   `json:"cover_image"`
	Category   *string   `json:"category"`
	Tags       *[]string `json:"tags"`
}

func (r updatePostRequest) edit() models.PostEdit {
	e := models.PostEdit{
		Title:      r.Title,
		Body:       r.Body,
		Excerpt:    r.Excerpt,
		CoverImage: r.CoverImage,
	}
	if r.Category != nil {
		cat := models.Category(*r.Category)
		e.Category = &cat
	}
	if r.Tags != nil {
		e.Tags = *r.Tags
		e.SetTags = true
	}
	return e
}

// CreatePost handles POST /api/posts
func (s *Server) CreatePost(c *fiber.Ctx) error {
	var req createPostRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	post, err := s.postService.CreatePost(c.UserContext(), middleware.PrincipalFrom(c), service.CreatePostInput{
		Title:      req.Title,
		Body:       req.Body,
		Excerpt:    req.Excerpt,
		CoverImage: req.CoverImage,
		Category:   models.Category(req.Category),
		Tags:       req.Tags,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

// UpdatePost handles PUT /api/posts/:id
func (s *Server) UpdatePost(c *fiber.Ctx) error {
	postID, err := s.parseID(c)
	if err != nil {
		return nil
	}

	var req updatePostRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	post, err := s.postService.EditPost(c.UserContext(), middleware.PrincipalFrom(c), postID, req.edit())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(post)
}

// DeletePost handles DELETE /api/posts/:id
func (s *Server) DeletePost(c *fiber.Ctx) error {
	postID, err := s.parseID(c)
	if err != nil {
		return nil
	}
	if err := s.postService.SoftDeletePost(c.UserContext(), middleware.PrincipalFrom(c), postID); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetPosts handles GET /api/posts
func (s *Server) GetPosts(c *fiber.Ctx) error {
	page := parsePagination(c)
	filter := models.PostFilter{
		Category: models.Category(c.Query("category")),
		Search:   c.Query("q"),
	}
	if author := c.QueryInt("author", 0); author > 0 {
		filter.AuthorID = uint(author)
	}

	result, err := s.postService.ListPublishedPosts(c.UserContext(), middleware.PrincipalFrom(c), service.ListPostsInput{
		Filter: filter,
		Sort:   models.ParsePostSort(c.Query("sort")),
		Page:   page.Page,
		Limit:  page.Limit,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

// GetPostBySlug handles GET /api/posts/slug/:slug
func (s *Server) GetPostBySlug(c *fiber.Ctx) error {
	post, err := s.postService.GetPostBySlug(c.UserContext(), middleware.PrincipalFrom(c), c.Params("slug"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(post)
}

// LikePost handles POST /api/posts/:id/like.
// It toggles: a second call removes the like.
func (s *Server) LikePost(c *fiber.Ctx) error {
	postID, err := s.parseID(c)
	if err != nil {
		return nil
	}
	res, err := s.postService.ToggleLike(c.UserContext(), middleware.PrincipalFrom(c), postID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

// GetMyPosts handles GET /api/users/me/posts
func (s *Server) GetMyPosts(c *fiber.Ctx) error {
	page := parsePagination(c)
	result, err := s.postService.ListMyPosts(c.UserContext(), middleware.PrincipalFrom(c),
		models.PostStatus(c.Query("status")), page.Page, page.Limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

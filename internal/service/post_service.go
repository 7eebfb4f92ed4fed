package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"folio/internal/cache"
	"folio/internal/middleware"
	"folio/internal/models"
	"folio/internal/notifications"
	"folio/internal/observability"
	"folio/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

// maxSlugAttempts bounds the retries after a slug collision.
const maxSlugAttempts = 3

// PostService owns post authoring, reading and likes.
type PostService struct {
	store     *repository.Store
	listCache *cache.PostListCache
	events    EventPublisher
	now       clock
}

// CreatePostInput is the author-supplied content of a new post.
type CreatePostInput struct {
	Title      string
	Body       string
	Excerpt    string
	CoverImage string
	Category   models.Category
	Tags       []string
}

// ListPostsInput selects a page of the public listing.
type ListPostsInput struct {
	Filter models.PostFilter
	Sort   models.PostSort
	Page   int
	Limit  int
}

// NewPostService returns a PostService. listCache and events may be nil.
func NewPostService(store *repository.Store, listCache *cache.PostListCache, events EventPublisher) *PostService {
	return &PostService{
		store:     store,
		listCache: listCache,
		events:    events,
		now:       systemClock,
	}
}

// CreatePost stores a new pending post for the principal.
func (s *PostService) CreatePost(ctx context.Context, author models.Principal, in CreatePostInput) (*models.Post, error) {
	if err := requireAuthenticated(author); err != nil {
		return nil, err
	}
	draft := models.PostDraft{
		Title:      strings.TrimSpace(in.Title),
		Body:       in.Body,
		Excerpt:    strings.TrimSpace(in.Excerpt),
		CoverImage: strings.TrimSpace(in.CoverImage),
		Category:   in.Category,
		Tags:       in.Tags,
	}
	if err := validateDraft(draft); err != nil {
		return nil, err
	}

	span, ctx := observability.NewSpan(ctx, "PostService.CreatePost", attribute.Int("author_id", int(author.ID)))
	defer span.End()

	now := s.now()
	post := models.NewPost(author.ID, draft, now)
	var err error
	for attempt := 0; attempt <= maxSlugAttempts; attempt++ {
		post.Slug = models.SlugFor(post.Title, now, attempt)
		err = s.store.Posts.Create(ctx, post)
		if !errors.Is(err, repository.ErrSlugTaken) {
			break
		}
	}
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	observability.PostTransitions.WithLabelValues("submit").Inc()
	middleware.Logger.InfoContext(ctx, "Post submitted",
		slog.Uint64("post_id", uint64(post.ID)),
		slog.String("slug", post.Slug),
	)
	publish(ctx, s.events, notifications.Event{
		Type:    notifications.EventPostSubmitted,
		ActorID: author.ID,
		PostID:  post.ID,
		UserID:  author.ID,
	})
	return s.store.Posts.GetByID(ctx, post.ID)
}

// EditPost applies an author's partial update. A title or body change sends a
// published or rejected post back to pending.
func (s *PostService) EditPost(ctx context.Context, author models.Principal, postID uint, edit models.PostEdit) (*models.Post, error) {
	if err := requireAuthenticated(author); err != nil {
		return nil, err
	}
	if edit.Title != nil {
		t := strings.TrimSpace(*edit.Title)
		edit.Title = &t
	}
	if err := validateEdit(edit); err != nil {
		return nil, err
	}

	span, ctx := observability.NewSpan(ctx, "PostService.EditPost", attribute.Int("post_id", int(postID)))
	defer span.End()

	var (
		before  models.PostStatus
		demoted bool
	)
	err := s.store.Tx(ctx, func(tx *repository.Store) error {
		post, err := tx.Posts.LockActiveByID(ctx, postID)
		if err != nil {
			return err
		}
		if post.UserID != author.ID {
			return models.NewForbiddenError("You can only edit your own posts")
		}
		before = post.Status
		oldSlug := post.Slug
		demoted = post.ApplyEdit(edit) && before != models.PostStatusPending
		if post.Slug != oldSlug {
			if err := claimSlug(ctx, tx.Posts, post); err != nil {
				return err
			}
		}
		post.UpdatedAt = s.now()
		return tx.Posts.SaveContent(ctx, post)
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	if demoted {
		observability.PostTransitions.WithLabelValues("resubmit").Inc()
		middleware.Logger.InfoContext(ctx, "Post returned to review",
			slog.Uint64("post_id", uint64(postID)),
			slog.String("from", string(before)),
		)
		publish(ctx, s.events, notifications.Event{
			Type:       notifications.EventPostSubmitted,
			ActorID:    author.ID,
			PostID:     postID,
			UserID:     author.ID,
			Attributes: map[string]string{"from": string(before)},
		})
	}
	if before == models.PostStatusPublished {
		s.listCache.Invalidate(ctx)
	}
	return s.store.Posts.GetByID(ctx, postID)
}

// claimSlug picks the first free slug for post's title, using the same
// suffixes CreatePost retries with.
func claimSlug(ctx context.Context, posts repository.PostRepository, post *models.Post) error {
	for attempt := 0; attempt <= maxSlugAttempts; attempt++ {
		slug := models.SlugFor(post.Title, post.CreatedAt, attempt)
		taken, err := posts.SlugInUse(ctx, slug, post.ID)
		if err != nil {
			return err
		}
		if !taken {
			post.Slug = slug
			return nil
		}
	}
	return repository.ErrSlugTaken
}

// SoftDeletePost hides the author's own post. Comments are left in place.
func (s *PostService) SoftDeletePost(ctx context.Context, author models.Principal, postID uint) error {
	if err := requireAuthenticated(author); err != nil {
		return err
	}
	post, err := s.store.Posts.GetActiveByID(ctx, postID)
	if err != nil {
		return err
	}
	if post.UserID != author.ID {
		return models.NewForbiddenError("You can only delete your own posts")
	}
	flipped, err := s.store.Posts.MarkDeleted(ctx, postID, s.now())
	if err != nil {
		return err
	}
	if !flipped {
		return models.ErrPostNotFound
	}

	observability.PostTransitions.WithLabelValues("delete").Inc()
	if post.Status == models.PostStatusPublished {
		s.listCache.Invalidate(ctx)
	}
	publish(ctx, s.events, notifications.Event{
		Type:    notifications.EventPostDeleted,
		ActorID: author.ID,
		PostID:  postID,
		UserID:  post.UserID,
	})
	return nil
}

// ListPublishedPosts returns a page of published posts. Pages are served from
// the list cache when one is configured; liked flags are per viewer and never
// cached.
func (s *PostService) ListPublishedPosts(ctx context.Context, viewer models.Principal, in ListPostsInput) (*models.PostPage, error) {
	page, limit := normalizePage(in.Page, in.Limit)
	if in.Filter.Category != "" {
		if err := validateCategory(in.Filter.Category); err != nil {
			return nil, err
		}
	}
	in.Filter.Search = strings.TrimSpace(in.Filter.Search)
	key := cache.PostListKey{Filter: in.Filter, Sort: in.Sort, Page: page, Limit: limit}

	result, err := s.listCache.GetOrLoad(ctx, key, func(ctx context.Context) (*models.PostPage, error) {
		posts, total, err := s.store.Posts.ListPublished(ctx, in.Filter, in.Sort, page, limit)
		if err != nil {
			return nil, err
		}
		return &models.PostPage{Posts: posts, Total: total, Page: page, Limit: limit}, nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.markLikedPosts(ctx, viewer, result.Posts); err != nil {
		return nil, err
	}
	return result, nil
}

// GetPostBySlug returns a post the viewer may read and counts the view. Authors
// reading their own post do not add views.
func (s *PostService) GetPostBySlug(ctx context.Context, viewer models.Principal, slug string) (*models.Post, error) {
	post, err := s.store.Posts.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !post.VisibleTo(viewer) {
		return nil, models.ErrPostNotFound
	}
	if viewer.ID != post.UserID {
		if err := s.store.Posts.IncrementViews(ctx, post.ID); err != nil {
			return nil, err
		}
		post.Views++
	}
	if err := s.markLikedPosts(ctx, viewer, []*models.Post{post}); err != nil {
		return nil, err
	}
	return post, nil
}

// ListMyPosts returns the principal's own posts in any status.
func (s *PostService) ListMyPosts(ctx context.Context, author models.Principal, status models.PostStatus, page, limit int) (*models.PostPage, error) {
	if err := requireAuthenticated(author); err != nil {
		return nil, err
	}
	if status != "" && !status.IsValid() {
		return nil, models.NewValidationError("Invalid status filter")
	}
	page, limit = normalizePage(page, limit)
	posts, total, err := s.store.Posts.ListByAuthor(ctx, author.ID, status, page, limit)
	if err != nil {
		return nil, err
	}
	return &models.PostPage{Posts: posts, Total: total, Page: page, Limit: limit}, nil
}

// ToggleLike flips the principal's like on a post.
func (s *PostService) ToggleLike(ctx context.Context, p models.Principal, postID uint) (models.LikeResult, error) {
	if err := requireAuthenticated(p); err != nil {
		return models.LikeResult{}, err
	}
	res, err := s.store.Posts.ToggleLike(ctx, postID, p.ID)
	if err != nil {
		return models.LikeResult{}, err
	}
	observability.LikeToggles.WithLabelValues("post", likeAction(res)).Inc()
	return res, nil
}

func (s *PostService) markLikedPosts(ctx context.Context, viewer models.Principal, posts []*models.Post) error {
	if viewer.IsAnonymous() || len(posts) == 0 {
		return nil
	}
	ids := make([]uint, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	liked, err := s.store.Posts.LikedPostIDs(ctx, viewer.ID, ids)
	if err != nil {
		return err
	}
	markLiked(posts, func(p *models.Post) uint { return p.ID }, liked, func(p *models.Post) { p.Liked = true })
	return nil
}

func likeAction(res models.LikeResult) string {
	if res.IsLiked {
		return "like"
	}
	return "unlike"
}

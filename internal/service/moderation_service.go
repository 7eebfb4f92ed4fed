package service

import (
	"context"
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

// ModerationService drives admin review of submitted posts.
type ModerationService struct {
	store     *repository.Store
	listCache *cache.PostListCache
	events    EventPublisher
	now       clock
}

// NewModerationService returns a new ModerationService.
func NewModerationService(store *repository.Store, listCache *cache.PostListCache, events EventPublisher) *ModerationService {
	return &ModerationService{
		store:     store,
		listCache: listCache,
		events:    events,
		now:       systemClock,
	}
}

// ApprovePost publishes a pending or rejected post.
func (s *ModerationService) ApprovePost(ctx context.Context, admin models.Principal, postID uint) (*models.Post, error) {
	if err := requireAdmin(admin); err != nil {
		return nil, err
	}
	span, ctx := observability.NewSpan(ctx, "ModerationService.ApprovePost", attribute.Int("post_id", int(postID)))
	defer span.End()

	var authorID uint
	err := s.store.Tx(ctx, func(tx *repository.Store) error {
		post, err := tx.Posts.LockActiveByID(ctx, postID)
		if err != nil {
			return err
		}
		if err := post.Approve(s.now()); err != nil {
			return err
		}
		authorID = post.UserID
		return tx.Posts.SaveContent(ctx, post)
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	observability.PostTransitions.WithLabelValues("approve").Inc()
	middleware.Logger.InfoContext(ctx, "Post approved",
		slog.Uint64("post_id", uint64(postID)),
		slog.Uint64("admin_id", uint64(admin.ID)),
	)
	s.listCache.Invalidate(ctx)
	publish(ctx, s.events, notifications.Event{
		Type:    notifications.EventPostApproved,
		ActorID: admin.ID,
		PostID:  postID,
		UserID:  authorID,
	})
	return s.store.Posts.GetByID(ctx, postID)
}

// RejectPost moves a post in any state to rejected with a reason the author
// can read.
func (s *ModerationService) RejectPost(ctx context.Context, admin models.Principal, postID uint, reason string) (*models.Post, error) {
	if err := requireAdmin(admin); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if err := validateReason(reason); err != nil {
		return nil, err
	}
	span, ctx := observability.NewSpan(ctx, "ModerationService.RejectPost", attribute.Int("post_id", int(postID)))
	defer span.End()

	var (
		authorID     uint
		wasPublished bool
	)
	err := s.store.Tx(ctx, func(tx *repository.Store) error {
		post, err := tx.Posts.LockActiveByID(ctx, postID)
		if err != nil {
			return err
		}
		wasPublished = post.Status == models.PostStatusPublished
		if err := post.Reject(reason); err != nil {
			return err
		}
		authorID = post.UserID
		return tx.Posts.SaveContent(ctx, post)
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	observability.PostTransitions.WithLabelValues("reject").Inc()
	middleware.Logger.InfoContext(ctx, "Post rejected",
		slog.Uint64("post_id", uint64(postID)),
		slog.Uint64("admin_id", uint64(admin.ID)),
		slog.Bool("was_published", wasPublished),
	)
	if wasPublished {
		s.listCache.Invalidate(ctx)
	}
	publish(ctx, s.events, notifications.Event{
		Type:       notifications.EventPostRejected,
		ActorID:    admin.ID,
		PostID:     postID,
		UserID:     authorID,
		Attributes: map[string]string{"reason": reason},
	})
	return s.store.Posts.GetByID(ctx, postID)
}

// Queue lists non-deleted posts in the given status, oldest first. An empty
// status means pending.
func (s *ModerationService) Queue(ctx context.Context, admin models.Principal, status models.PostStatus, page, limit int) (*models.PostPage, error) {
	if err := requireAdmin(admin); err != nil {
		return nil, err
	}
	if status == "" {
		status = models.PostStatusPending
	}
	if !status.IsValid() {
		return nil, models.NewValidationError("Invalid status filter")
	}
	page, limit = normalizePage(page, limit)
	posts, total, err := s.store.Posts.ListByStatus(ctx, status, page, limit)
	if err != nil {
		return nil, err
	}
	return &models.PostPage{Posts: posts, Total: total, Page: page, Limit: limit}, nil
}

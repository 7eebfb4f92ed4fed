package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"folio/internal/middleware"
	"folio/internal/models"
	"folio/internal/notifications"
	"folio/internal/observability"
	"folio/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

// CommentService owns the two-level comment threads under posts.
type CommentService struct {
	store  *repository.Store
	events EventPublisher
	now    clock
}

// CreateCommentInput is a new comment or reply. ClientToken, when set, makes
// retries of the same submission return the original comment.
type CreateCommentInput struct {
	PostID      uint
	Content     string
	ParentID    *uint
	ClientToken string
}

// ListCommentsInput selects a page of top-level comments.
type ListCommentsInput struct {
	PostID uint
	Sort   models.CommentSort
	Page   int
	Limit  int
}

// NewCommentService creates a new CommentService.
func NewCommentService(store *repository.Store, events EventPublisher) *CommentService {
	return &CommentService{store: store, events: events, now: systemClock}
}

// CreateComment adds a comment to a published post and bumps its
// comments_count in the same transaction.
func (s *CommentService) CreateComment(ctx context.Context, author models.Principal, in CreateCommentInput) (*models.Comment, error) {
	if err := requireAuthenticated(author); err != nil {
		return nil, err
	}
	in.Content = strings.TrimSpace(in.Content)
	in.ClientToken = strings.TrimSpace(in.ClientToken)
	if err := validateCommentContent(in.Content); err != nil {
		return nil, err
	}
	if runeLen(in.ClientToken) > maxClientToken {
		return nil, models.NewValidationError("Client token too long")
	}

	if in.ClientToken != "" {
		existing, err := s.store.Comments.FindByClientToken(ctx, author.ID, in.ClientToken)
		if err == nil {
			if existing.PostID != in.PostID || !sameParent(existing.ParentID, in.ParentID) {
				return nil, models.NewConflictError("Client token already used for another comment", nil)
			}
			return existing, nil
		}
		if !errors.Is(err, models.ErrCommentNotFound) {
			return nil, err
		}
	}

	span, ctx := observability.NewSpan(ctx, "CommentService.CreateComment", attribute.Int("post_id", int(in.PostID)))
	defer span.End()

	comment := &models.Comment{
		PostID:  in.PostID,
		UserID:  author.ID,
		Content: in.Content,
	}
	if in.ClientToken != "" {
		token := in.ClientToken
		comment.ClientToken = &token
	}

	err := s.store.Tx(ctx, func(tx *repository.Store) error {
		post, err := tx.Posts.LockActiveByID(ctx, in.PostID)
		if err != nil {
			return err
		}
		if post.Status != models.PostStatusPublished {
			return models.ErrPostNotPublished
		}
		if in.ParentID != nil {
			parent, err := tx.Comments.GetByID(ctx, *in.ParentID)
			if errors.Is(err, models.ErrCommentNotFound) || (err == nil && parent.PostID != in.PostID) {
				return models.ErrParentNotFound
			}
			if err != nil {
				return err
			}
			if parent.IsReply() {
				return models.ErrNestedReply
			}
			comment.ParentID = &parent.ID
			comment.Depth = 1
		}
		if err := tx.Comments.Create(ctx, comment); err != nil {
			return err
		}
		return tx.Posts.AdjustCommentsCount(ctx, in.PostID, 1)
	})
	if errors.Is(err, repository.ErrClientTokenTaken) {
		// a concurrent retry won the insert
		return s.store.Comments.FindByClientToken(ctx, author.ID, in.ClientToken)
	}
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	middleware.Logger.InfoContext(ctx, "Comment created",
		slog.Uint64("comment_id", uint64(comment.ID)),
		slog.Uint64("post_id", uint64(in.PostID)),
	)
	publish(ctx, s.events, notifications.Event{
		Type:      notifications.EventCommentCreated,
		ActorID:   author.ID,
		PostID:    in.PostID,
		CommentID: comment.ID,
		UserID:    author.ID,
	})
	return s.store.Comments.GetByID(ctx, comment.ID)
}

// ListComments returns a page of live top-level comments on a post the viewer
// can see, each with its live replies in insertion order.
func (s *CommentService) ListComments(ctx context.Context, viewer models.Principal, in ListCommentsInput) (*models.CommentPage, error) {
	post, err := s.store.Posts.GetActiveByID(ctx, in.PostID)
	if err != nil {
		return nil, err
	}
	if !post.VisibleTo(viewer) {
		return nil, models.ErrPostNotFound
	}

	page, limit := normalizePage(in.Page, in.Limit)
	top, total, err := s.store.Comments.ListTopLevel(ctx, in.PostID, in.Sort, page, limit)
	if err != nil {
		return nil, err
	}

	parentIDs := make([]uint, len(top))
	byID := make(map[uint]*models.Comment, len(top))
	for i, c := range top {
		parentIDs[i] = c.ID
		byID[c.ID] = c
	}
	replies, err := s.store.Comments.ListReplies(ctx, parentIDs)
	if err != nil {
		return nil, err
	}

	visible := append(make([]*models.Comment, 0, len(top)+len(replies)), top...)
	for _, r := range replies {
		parent := byID[*r.ParentID]
		parent.Replies = append(parent.Replies, r.ID)
		if !r.IsDeleted {
			parent.ReplyComments = append(parent.ReplyComments, r)
			visible = append(visible, r)
		}
	}

	if !viewer.IsAnonymous() && len(visible) > 0 {
		ids := make([]uint, len(visible))
		for i, c := range visible {
			ids[i] = c.ID
		}
		liked, err := s.store.Comments.LikedCommentIDs(ctx, viewer.ID, ids)
		if err != nil {
			return nil, err
		}
		markLiked(visible, func(c *models.Comment) uint { return c.ID }, liked, func(c *models.Comment) { c.Liked = true })
	}

	return &models.CommentPage{Comments: top, Total: total, Page: page, Limit: limit}, nil
}

// UpdateComment replaces the content of the author's own live comment.
func (s *CommentService) UpdateComment(ctx context.Context, author models.Principal, commentID uint, content string) (*models.Comment, error) {
	if err := requireAuthenticated(author); err != nil {
		return nil, err
	}
	comment, err := s.liveComment(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if comment.UserID != author.ID {
		return nil, models.NewForbiddenError("You can only edit your own comments")
	}
	if _, err := s.store.Posts.GetActiveByID(ctx, comment.PostID); err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	if err := validateCommentContent(content); err != nil {
		return nil, err
	}
	if err := s.store.Comments.UpdateContent(ctx, commentID, content); err != nil {
		return nil, err
	}
	return s.store.Comments.GetByID(ctx, commentID)
}

// SoftDeleteComment tombstones a comment. The post's comments_count drops only
// when this call performed the deletion.
func (s *CommentService) SoftDeleteComment(ctx context.Context, p models.Principal, commentID uint) error {
	if err := requireAuthenticated(p); err != nil {
		return err
	}
	comment, err := s.liveComment(ctx, commentID)
	if err != nil {
		return err
	}
	if !p.CanModify(comment.UserID) {
		return models.NewForbiddenError("You can only delete your own comments")
	}

	err = s.store.Tx(ctx, func(tx *repository.Store) error {
		flipped, err := tx.Comments.Tombstone(ctx, commentID, s.now())
		if err != nil {
			return err
		}
		if !flipped {
			return models.ErrCommentNotFound
		}
		return tx.Posts.AdjustCommentsCount(ctx, comment.PostID, -1)
	})
	if err != nil {
		return err
	}

	middleware.Logger.InfoContext(ctx, "Comment deleted",
		slog.Uint64("comment_id", uint64(commentID)),
		slog.Uint64("actor_id", uint64(p.ID)),
	)
	publish(ctx, s.events, notifications.Event{
		Type:      notifications.EventCommentDeleted,
		ActorID:   p.ID,
		PostID:    comment.PostID,
		CommentID: commentID,
		UserID:    comment.UserID,
	})
	return nil
}

// ToggleLike flips the principal's like on a live comment.
func (s *CommentService) ToggleLike(ctx context.Context, p models.Principal, commentID uint) (models.LikeResult, error) {
	if err := requireAuthenticated(p); err != nil {
		return models.LikeResult{}, err
	}
	res, err := s.store.Comments.ToggleLike(ctx, commentID, p.ID)
	if err != nil {
		return models.LikeResult{}, err
	}
	observability.LikeToggles.WithLabelValues("comment", likeAction(res)).Inc()
	return res, nil
}

func (s *CommentService) liveComment(ctx context.Context, id uint) (*models.Comment, error) {
	comment, err := s.store.Comments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if comment.IsDeleted {
		return nil, models.ErrCommentNotFound
	}
	return comment, nil
}

func sameParent(a, b *uint) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

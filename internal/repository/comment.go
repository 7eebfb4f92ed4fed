package repository

import (
	"context"
	"fmt"
	"time"

	"folio/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrClientTokenTaken is returned by Create when the author already used the
// client token for another comment.
var ErrClientTokenTaken = models.NewConflictError("Comment already submitted", nil)

// CommentRepository defines interface for comment operations
type CommentRepository interface {
	Create(ctx context.Context, comment *models.Comment) error
	// GetByID returns the comment whether or not it is soft deleted.
	GetByID(ctx context.Context, id uint) (*models.Comment, error)
	FindByClientToken(ctx context.Context, userID uint, token string) (*models.Comment, error)
	ListTopLevel(ctx context.Context, postID uint, sort models.CommentSort, page, limit int) ([]*models.Comment, int64, error)
	// ListReplies returns every reply under the given parents in insertion
	// order, tombstones included.
	ListReplies(ctx context.Context, parentIDs []uint) ([]*models.Comment, error)
	ListActiveIDsByPost(ctx context.Context, postID uint) ([]uint, error)
	ListActiveByAuthor(ctx context.Context, authorID uint) ([]*models.Comment, error)
	UpdateContent(ctx context.Context, id uint, content string) error
	Tombstone(ctx context.Context, id uint, now time.Time) (bool, error)
	ToggleLike(ctx context.Context, commentID, userID uint) (models.LikeResult, error)
	LikedCommentIDs(ctx context.Context, userID uint, commentIDs []uint) ([]uint, error)
}

type commentRepository struct {
	db *gorm.DB
}

// NewCommentRepository creates a new CommentRepository
func NewCommentRepository(db *gorm.DB) CommentRepository {
	return &commentRepository{db: db}
}

func (r *commentRepository) Create(ctx context.Context, comment *models.Comment) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(comment).Error; err != nil {
		if comment.ClientToken != nil && isUniqueViolation(err) {
			return ErrClientTokenTaken
		}
		return fmt.Errorf("create comment: %w", err)
	}
	return nil
}

func (r *commentRepository) GetByID(ctx context.Context, id uint) (*models.Comment, error) {
	var comment models.Comment
	if err := r.db.WithContext(ctx).Preload("Author").First(&comment, id).Error; err != nil {
		return nil, notFound(err, models.ErrCommentNotFound)
	}
	return &comment, nil
}

func (r *commentRepository) FindByClientToken(ctx context.Context, userID uint, token string) (*models.Comment, error) {
	var comment models.Comment
	err := r.db.WithContext(ctx).
		Preload("Author").
		Where("user_id = ? AND client_token = ?", userID, token).
		First(&comment).Error
	if err != nil {
		return nil, notFound(err, models.ErrCommentNotFound)
	}
	return &comment, nil
}

func (r *commentRepository) ListTopLevel(
	ctx context.Context,
	postID uint,
	sort models.CommentSort,
	page, limit int,
) ([]*models.Comment, int64, error) {
	q := r.db.WithContext(ctx).
		Model(&models.Comment{}).
		Scopes(Active).
		Where("post_id = ? AND parent_id IS NULL", postID).
		Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count comments: %w", err)
	}
	comments := make([]*models.Comment, 0, limit)
	if total == 0 {
		return comments, 0, nil
	}

	switch sort {
	case models.CommentSortOldest:
		q = q.Order("created_at ASC").Order("id ASC")
	case models.CommentSortTop:
		q = q.Order("likes_count DESC").Order("id DESC")
	default:
		q = q.Order("created_at DESC").Order("id DESC")
	}
	if err := q.Scopes(Paginate(page, limit)).Preload("Author").Find(&comments).Error; err != nil {
		return nil, 0, fmt.Errorf("list comments: %w", err)
	}
	return comments, total, nil
}

func (r *commentRepository) ListReplies(ctx context.Context, parentIDs []uint) ([]*models.Comment, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	var replies []*models.Comment
	err := r.db.WithContext(ctx).
		Preload("Author").
		Where("parent_id IN ?", parentIDs).
		Order("id ASC").
		Find(&replies).Error
	return replies, err
}

func (r *commentRepository) ListActiveIDsByPost(ctx context.Context, postID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).
		Model(&models.Comment{}).
		Scopes(Active).
		Where("post_id = ?", postID).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

func (r *commentRepository) ListActiveByAuthor(ctx context.Context, authorID uint) ([]*models.Comment, error) {
	var comments []*models.Comment
	err := r.db.WithContext(ctx).
		Scopes(Active).
		Select("id", "post_id", "user_id", "parent_id").
		Where("user_id = ?", authorID).
		Order("id ASC").
		Find(&comments).Error
	return comments, err
}

func (r *commentRepository) UpdateContent(ctx context.Context, id uint, content string) error {
	res := r.db.WithContext(ctx).
		Model(&models.Comment{}).
		Scopes(Active).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"content":   content,
			"is_edited": true,
		})
	if res.Error != nil {
		return fmt.Errorf("update comment %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrCommentNotFound
	}
	return nil
}

// Tombstone soft deletes a live comment, replacing its content with the
// placeholder. It reports whether this call flipped the flag.
func (r *commentRepository) Tombstone(ctx context.Context, id uint, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Comment{}).
		Where("id = ? AND is_deleted = ?", id, false).
		UpdateColumns(map[string]interface{}{
			"is_deleted": true,
			"deleted_at": now,
			"content":    models.DeletedPlaceholder,
			"updated_at": now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("delete comment %d: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ToggleLike flips the user's membership in the comment's like set under the
// comment's row lock and rewrites likes_count from the set size. The owning
// post follows the post like rules: deleted posts take no likes at all and
// only published posts take new ones.
func (r *commentRepository) ToggleLike(ctx context.Context, commentID, userID uint) (models.LikeResult, error) {
	var result models.LikeResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var comment models.Comment
		if err := tx.Scopes(forUpdate, Active).Select("id", "post_id").First(&comment, commentID).Error; err != nil {
			return notFound(err, models.ErrCommentNotFound)
		}
		var post models.Post
		if err := tx.Scopes(Active).Select("id", "status").First(&post, comment.PostID).Error; err != nil {
			return notFound(err, models.ErrPostNotFound)
		}

		removed := tx.Where("comment_id = ? AND user_id = ?", commentID, userID).Delete(&models.CommentLike{})
		if removed.Error != nil {
			return removed.Error
		}
		if removed.RowsAffected == 0 {
			if post.Status != models.PostStatusPublished {
				return models.ErrPostNotPublished
			}
			like := models.CommentLike{CommentID: commentID, UserID: userID}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&like).Error; err != nil {
				return err
			}
			result.IsLiked = true
		}

		var n int64
		if err := tx.Model(&models.CommentLike{}).Where("comment_id = ?", commentID).Count(&n).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Comment{}).Where("id = ?", commentID).UpdateColumn("likes_count", n).Error; err != nil {
			return err
		}
		result.LikesCount = int(n)
		return nil
	})
	return result, err
}

func (r *commentRepository) LikedCommentIDs(ctx context.Context, userID uint, commentIDs []uint) ([]uint, error) {
	if userID == 0 || len(commentIDs) == 0 {
		return nil, nil
	}
	var liked []uint
	err := r.db.WithContext(ctx).
		Model(&models.CommentLike{}).
		Where("user_id = ? AND comment_id IN ?", userID, commentIDs).
		Pluck("comment_id", &liked).Error
	return liked, err
}

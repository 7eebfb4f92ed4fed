package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"folio/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrSlugTaken is returned by Create when another post already owns the slug.
var ErrSlugTaken = models.NewConflictError("Slug already exists", nil)

// PostRepository defines the interface for post data operations
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	// GetByID returns the post whether or not it is soft deleted.
	GetByID(ctx context.Context, id uint) (*models.Post, error)
	GetActiveByID(ctx context.Context, id uint) (*models.Post, error)
	GetBySlug(ctx context.Context, slug string) (*models.Post, error)
	// LockActiveByID loads a non-deleted post and holds its row lock for the
	// rest of the surrounding transaction.
	LockActiveByID(ctx context.Context, id uint) (*models.Post, error)
	SaveContent(ctx context.Context, post *models.Post) error
	SlugInUse(ctx context.Context, slug string, exceptID uint) (bool, error)
	ListPublished(ctx context.Context, filter models.PostFilter, sort models.PostSort, page, limit int) ([]*models.Post, int64, error)
	ListByAuthor(ctx context.Context, authorID uint, status models.PostStatus, page, limit int) ([]*models.Post, int64, error)
	ListByStatus(ctx context.Context, status models.PostStatus, page, limit int) ([]*models.Post, int64, error)
	ListIDsByAuthor(ctx context.Context, authorID uint) ([]uint, error)
	ListIDs(ctx context.Context, afterID uint, limit int) ([]uint, error)
	IncrementViews(ctx context.Context, id uint) error
	AdjustCommentsCount(ctx context.Context, id uint, delta int) error
	MarkDeleted(ctx context.Context, id uint, now time.Time) (bool, error)
	ToggleLike(ctx context.Context, postID, userID uint) (models.LikeResult, error)
	LikedPostIDs(ctx context.Context, userID uint, postIDs []uint) ([]uint, error)
	Reconcile(ctx context.Context, id uint) (models.CounterDrift, error)
}

type postRepository struct {
	db *gorm.DB
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(post).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrSlugTaken
		}
		return fmt.Errorf("create post: %w", err)
	}
	return nil
}

func (r *postRepository) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	if err := r.db.WithContext(ctx).Preload("Author").First(&post, id).Error; err != nil {
		return nil, notFound(err, models.ErrPostNotFound)
	}
	return &post, nil
}

func (r *postRepository) GetActiveByID(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	if err := r.db.WithContext(ctx).Scopes(Active).Preload("Author").First(&post, id).Error; err != nil {
		return nil, notFound(err, models.ErrPostNotFound)
	}
	return &post, nil
}

func (r *postRepository) GetBySlug(ctx context.Context, slug string) (*models.Post, error) {
	var post models.Post
	err := r.db.WithContext(ctx).
		Scopes(Active).
		Preload("Author").
		Where("slug = ?", slug).
		First(&post).Error
	if err != nil {
		return nil, notFound(err, models.ErrPostNotFound)
	}
	return &post, nil
}

func (r *postRepository) LockActiveByID(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	if err := r.db.WithContext(ctx).Scopes(forUpdate, Active).First(&post, id).Error; err != nil {
		return nil, notFound(err, models.ErrPostNotFound)
	}
	return &post, nil
}

// SlugInUse reports whether a post other than exceptID owns slug. Deleted
// posts keep their slugs.
func (r *postRepository) SlugInUse(ctx context.Context, slug string, exceptID uint) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.Post{}).
		Where("slug = ? AND id <> ?", slug, exceptID).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("check slug: %w", err)
	}
	return n > 0, nil
}

// SaveContent persists the author-editable and lifecycle columns. Counters
// are never written from an in-memory copy.
func (r *postRepository) SaveContent(ctx context.Context, post *models.Post) error {
	err := r.db.WithContext(ctx).
		Model(post).
		Omit(clause.Associations).
		Select("title", "slug", "body", "excerpt", "cover_image", "category", "tags",
			"status", "published_at", "rejection_reason", "read_time", "updated_at").
		Updates(post).Error
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlugTaken
		}
		return fmt.Errorf("save post %d: %w", post.ID, err)
	}
	return nil
}

func applySort(db *gorm.DB, sort models.PostSort) *gorm.DB {
	switch sort {
	case models.PostSortOldest:
		return db.Order("published_at ASC").Order("id ASC")
	case models.PostSortPopular:
		return db.Order("likes_count DESC").Order("published_at DESC").Order("id DESC")
	case models.PostSortMostRead:
		return db.Order("views DESC").Order("published_at DESC").Order("id DESC")
	default:
		return db.Order("published_at DESC").Order("id DESC")
	}
}

func (r *postRepository) ListPublished(
	ctx context.Context,
	filter models.PostFilter,
	sort models.PostSort,
	page, limit int,
) ([]*models.Post, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Post{}).Scopes(PubliclyVisible)
	if filter.Category != "" {
		q = q.Where("category = ?", filter.Category)
	}
	if filter.AuthorID != 0 {
		q = q.Where("user_id = ?", filter.AuthorID)
	}
	if term := strings.TrimSpace(filter.Search); term != "" {
		pattern := "%" + strings.ToLower(term) + "%"
		q = q.Where("LOWER(title) LIKE ? OR LOWER(excerpt) LIKE ?", pattern, pattern)
	}
	return r.page(q.Session(&gorm.Session{}), func(db *gorm.DB) *gorm.DB { return applySort(db, sort) }, page, limit)
}

func (r *postRepository) ListByAuthor(
	ctx context.Context,
	authorID uint,
	status models.PostStatus,
	page, limit int,
) ([]*models.Post, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Post{}).Scopes(Active).Where("user_id = ?", authorID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	return r.page(q.Session(&gorm.Session{}), func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at DESC").Order("id DESC")
	}, page, limit)
}

// ListByStatus returns the oldest submissions first so the moderation queue
// drains in order.
func (r *postRepository) ListByStatus(
	ctx context.Context,
	status models.PostStatus,
	page, limit int,
) ([]*models.Post, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Post{}).Scopes(Active).Where("status = ?", status)
	return r.page(q.Session(&gorm.Session{}), func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at ASC").Order("id ASC")
	}, page, limit)
}

func (r *postRepository) page(
	q *gorm.DB,
	order func(*gorm.DB) *gorm.DB,
	page, limit int,
) ([]*models.Post, int64, error) {
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count posts: %w", err)
	}
	posts := make([]*models.Post, 0, limit)
	if total == 0 {
		return posts, 0, nil
	}
	if err := q.Scopes(order, Paginate(page, limit)).Preload("Author").Find(&posts).Error; err != nil {
		return nil, 0, fmt.Errorf("list posts: %w", err)
	}
	return posts, total, nil
}

func (r *postRepository) ListIDsByAuthor(ctx context.Context, authorID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).
		Model(&models.Post{}).
		Scopes(Active).
		Where("user_id = ?", authorID).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// ListIDs walks every post id in ascending order, deleted posts included.
func (r *postRepository) ListIDs(ctx context.Context, afterID uint, limit int) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).
		Model(&models.Post{}).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

func (r *postRepository) IncrementViews(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).
		Model(&models.Post{}).
		Where("id = ?", id).
		UpdateColumn("views", gorm.Expr("views + 1")).Error
}

// AdjustCommentsCount applies delta as a single UPDATE. Decrements never take
// the tally below zero.
func (r *postRepository) AdjustCommentsCount(ctx context.Context, id uint, delta int) error {
	q := r.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", id)
	if delta < 0 {
		q = q.Where("comments_count >= ?", -delta)
	}
	return q.UpdateColumn("comments_count", gorm.Expr("comments_count + ?", delta)).Error
}

// MarkDeleted flips is_deleted for a live post. It reports false when the post
// was already deleted.
func (r *postRepository) MarkDeleted(ctx context.Context, id uint, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Post{}).
		Where("id = ? AND is_deleted = ?", id, false).
		UpdateColumns(map[string]interface{}{
			"is_deleted": true,
			"deleted_at": now,
			"updated_at": now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("delete post %d: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ToggleLike flips the user's membership in the post's like set and rewrites
// likes_count from the set size, all under the post's row lock.
func (r *postRepository) ToggleLike(ctx context.Context, postID, userID uint) (models.LikeResult, error) {
	var result models.LikeResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var post models.Post
		if err := tx.Scopes(forUpdate, Active).Select("id", "status").First(&post, postID).Error; err != nil {
			return notFound(err, models.ErrPostNotFound)
		}

		removed := tx.Where("post_id = ? AND user_id = ?", postID, userID).Delete(&models.PostLike{})
		if removed.Error != nil {
			return removed.Error
		}
		if removed.RowsAffected == 0 {
			if post.Status != models.PostStatusPublished {
				return models.ErrPostNotPublished
			}
			like := models.PostLike{PostID: postID, UserID: userID}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&like).Error; err != nil {
				return err
			}
			result.IsLiked = true
		}

		var n int64
		if err := tx.Model(&models.PostLike{}).Where("post_id = ?", postID).Count(&n).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Post{}).Where("id = ?", postID).UpdateColumn("likes_count", n).Error; err != nil {
			return err
		}
		result.LikesCount = int(n)
		return nil
	})
	return result, err
}

func (r *postRepository) LikedPostIDs(ctx context.Context, userID uint, postIDs []uint) ([]uint, error) {
	if userID == 0 || len(postIDs) == 0 {
		return nil, nil
	}
	var liked []uint
	err := r.db.WithContext(ctx).
		Model(&models.PostLike{}).
		Where("user_id = ? AND post_id IN ?", userID, postIDs).
		Pluck("post_id", &liked).Error
	return liked, err
}

// Reconcile recomputes the post's cached counters, and the like counters of
// its comments, from the source tables.
func (r *postRepository) Reconcile(ctx context.Context, id uint) (models.CounterDrift, error) {
	drift := models.CounterDrift{PostID: id}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var post models.Post
		if err := tx.Scopes(forUpdate).Select("id", "likes_count", "comments_count").First(&post, id).Error; err != nil {
			return notFound(err, models.ErrPostNotFound)
		}
		drift.LikesBefore = post.LikesCount
		drift.CommentsBefore = post.CommentsCount

		var likes, comments int64
		if err := tx.Model(&models.PostLike{}).Where("post_id = ?", id).Count(&likes).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Comment{}).Scopes(Active).Where("post_id = ?", id).Count(&comments).Error; err != nil {
			return err
		}
		drift.LikesAfter = int(likes)
		drift.CommentsAfter = int(comments)

		if drift.LikesBefore != drift.LikesAfter || drift.CommentsBefore != drift.CommentsAfter {
			err := tx.Model(&models.Post{}).Where("id = ?", id).UpdateColumns(map[string]interface{}{
				"likes_count":    likes,
				"comments_count": comments,
			}).Error
			if err != nil {
				return err
			}
		}

		fixed := tx.Exec(`UPDATE comments SET likes_count = (
				SELECT COUNT(*) FROM comment_likes WHERE comment_likes.comment_id = comments.id
			) WHERE post_id = ? AND likes_count <> (
				SELECT COUNT(*) FROM comment_likes WHERE comment_likes.comment_id = comments.id
			)`, id)
		if fixed.Error != nil {
			return fixed.Error
		}
		drift.CommentLikesFixed = int(fixed.RowsAffected)
		return nil
	})
	return drift, err
}

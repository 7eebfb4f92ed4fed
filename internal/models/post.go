package models

import (
	"time"
)

// PostStatus is the moderation state of a post.
type PostStatus string

const (
	PostStatusPending   PostStatus = "pending"
	PostStatusPublished PostStatus = "published"
	PostStatusRejected  PostStatus = "rejected"
)

// IsValid reports whether s is a known status.
func (s PostStatus) IsValid() bool {
	switch s {
	case PostStatusPending, PostStatusPublished, PostStatusRejected:
		return true
	}
	return false
}

// Category is the fixed topic enumeration for posts.
type Category string

const (
	CategoryTechnology Category = "technology"
	CategoryLifestyle  Category = "lifestyle"
	CategoryTravel     Category = "travel"
	CategoryFood       Category = "food"
	CategoryBusiness   Category = "business"
	CategoryHealth     Category = "health"
	CategoryOther      Category = "other"
)

// Categories lists every accepted category.
var Categories = []Category{
	CategoryTechnology,
	CategoryLifestyle,
	CategoryTravel,
	CategoryFood,
	CategoryBusiness,
	CategoryHealth,
	CategoryOther,
}

// IsValid reports whether c is one of Categories.
func (c Category) IsValid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Post represents an authored article moving through the moderation workflow.
type Post struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Slug            string     `gorm:"uniqueIndex;not null;size:200" json:"slug"`
	Title           string     `gorm:"not null;size:150" json:"title"`
	Body            string     `gorm:"type:text;not null" json:"body"`
	Excerpt         string     `gorm:"size:300" json:"excerpt"`
	CoverImage      string     `json:"cover_image,omitempty"`
	Category        Category   `gorm:"type:varchar(20);not null;index" json:"category"`
	Tags            []string   `gorm:"type:json;serializer:json" json:"tags"`
	UserID          uint       `gorm:"not null;index" json:"author_id"`
	Author          *User      `gorm:"foreignKey:UserID" json:"author,omitempty"`
	Status          PostStatus `gorm:"type:varchar(10);not null;index" json:"status"`
	PublishedAt     *time.Time `json:"published_at"`
	RejectionReason string     `gorm:"size:500" json:"rejection_reason,omitempty"`
	Views           int64      `gorm:"not null;default:0" json:"views"`
	LikesCount      int        `gorm:"not null;default:0" json:"likes_count"`
	CommentsCount   int        `gorm:"not null;default:0" json:"comments_count"`
	ReadTime        int        `gorm:"not null;default:0" json:"read_time"`
	IsDeleted       bool       `gorm:"not null;default:false;index" json:"is_deleted"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
	// Liked indicates whether the requesting principal liked this post (computed)
	Liked     bool      `gorm:"-" json:"liked"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsPubliclyVisible reports whether anonymous readers may see the post.
func (p *Post) IsPubliclyVisible() bool {
	return !p.IsDeleted && p.Status == PostStatusPublished
}

// VisibleTo reports whether the principal may read the post.
func (p *Post) VisibleTo(viewer Principal) bool {
	if p.IsDeleted {
		return false
	}
	if p.Status == PostStatusPublished {
		return true
	}
	return !viewer.IsAnonymous() && viewer.CanModify(p.UserID)
}

// Approve moves a pending or rejected post to published.
func (p *Post) Approve(now time.Time) error {
	if p.Status == PostStatusPublished {
		return ErrAlreadyPublished
	}
	p.Status = PostStatusPublished
	p.PublishedAt = &now
	p.RejectionReason = ""
	return nil
}

// Reject moves a post in any state to rejected with the given reason.
func (p *Post) Reject(reason string) error {
	if reason == "" {
		return NewValidationError("Rejection reason is required")
	}
	p.Status = PostStatusRejected
	p.RejectionReason = reason
	p.PublishedAt = nil
	return nil
}

// ResetForReview returns a post to pending after a substantive content change.
// Published posts lose their publication; rejected posts are resubmitted.
// It reports whether the status changed.
func (p *Post) ResetForReview() bool {
	switch p.Status {
	case PostStatusPublished, PostStatusRejected:
		p.Status = PostStatusPending
		p.PublishedAt = nil
		p.RejectionReason = ""
		return true
	}
	return false
}

// MarkDeleted flags the post as soft deleted, keeping its status.
func (p *Post) MarkDeleted(now time.Time) {
	p.IsDeleted = true
	p.DeletedAt = &now
}

// PostLike is one member of a post's like set.
type PostLike struct {
	PostID    uint      `gorm:"primaryKey;autoIncrement:false" json:"post_id"`
	UserID    uint      `gorm:"primaryKey;autoIncrement:false;index" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// LikeResult is the outcome of a like toggle.
type LikeResult struct {
	LikesCount int  `json:"likes_count"`
	IsLiked    bool `json:"is_liked"`
}

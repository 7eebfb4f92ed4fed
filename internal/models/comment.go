package models

import "time"

// Comment limits and placeholder text.
const (
	MaxCommentLength   = 1000
	DeletedPlaceholder = "[This comment has been deleted]"
)

// Comment represents a top-level comment or a one-level reply on a post.
type Comment struct {
	ID       uint  `gorm:"primaryKey" json:"id"`
	PostID   uint  `gorm:"not null;index" json:"post_id"`
	UserID   uint  `gorm:"not null;index;uniqueIndex:idx_comment_client_token,priority:1" json:"author_id"`
	Author   *User `gorm:"foreignKey:UserID" json:"author,omitempty"`
	ParentID *uint `gorm:"index" json:"parent_id"`
	// Depth is 0 for top-level comments and 1 for replies
	Depth       int        `gorm:"not null;default:0" json:"depth"`
	Content     string     `gorm:"type:text;not null" json:"content"`
	IsEdited    bool       `gorm:"not null;default:false" json:"is_edited"`
	LikesCount  int        `gorm:"not null;default:0" json:"likes_count"`
	IsDeleted   bool       `gorm:"not null;default:false;index" json:"is_deleted"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
	ClientToken *string    `gorm:"size:64;uniqueIndex:idx_comment_client_token,priority:2" json:"-"`

	// Replies lists child comment ids in insertion order, tombstones included.
	Replies []uint `gorm:"-" json:"replies,omitempty"`
	// ReplyComments holds the visible replies in thread listings.
	ReplyComments []*Comment `gorm:"-" json:"reply_comments,omitempty"`
	Liked         bool       `gorm:"-" json:"liked"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsReply reports whether the comment hangs off a parent.
func (c *Comment) IsReply() bool {
	return c.ParentID != nil
}

// Tombstone soft deletes the comment in memory, keeping its id and linkage.
func (c *Comment) Tombstone(now time.Time) {
	c.IsDeleted = true
	c.DeletedAt = &now
	c.Content = DeletedPlaceholder
}

// CommentLike is one member of a comment's like set.
type CommentLike struct {
	CommentID uint      `gorm:"primaryKey;autoIncrement:false" json:"comment_id"`
	UserID    uint      `gorm:"primaryKey;autoIncrement:false;index" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// CommentSort names an ordering for top-level comments.
type CommentSort string

const (
	CommentSortNewest CommentSort = "newest"
	CommentSortOldest CommentSort = "oldest"
	CommentSortTop    CommentSort = "top"
)

// ParseCommentSort maps a query value to a CommentSort, defaulting to newest.
func ParseCommentSort(v string) CommentSort {
	switch CommentSort(v) {
	case CommentSortOldest, CommentSortTop:
		return CommentSort(v)
	}
	return CommentSortNewest
}

// CommentPage is a page of top-level comments with their replies attached.
type CommentPage struct {
	Comments []*Comment `json:"comments"`
	Total    int64      `json:"total"`
	Page     int        `json:"page"`
	Limit    int        `json:"limit"`
}

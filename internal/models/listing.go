package models

// PostSort names an ordering for post listings.
type PostSort string

const (
	PostSortNewest   PostSort = "newest"
	PostSortOldest   PostSort = "oldest"
	PostSortPopular  PostSort = "popular"
	PostSortMostRead PostSort = "views"
)

// ParsePostSort maps a query value to a PostSort, defaulting to newest.
func ParsePostSort(v string) PostSort {
	switch PostSort(v) {
	case PostSortOldest, PostSortPopular, PostSortMostRead:
		return PostSort(v)
	}
	return PostSortNewest
}

// PostFilter narrows the published post listing.
type PostFilter struct {
	Category Category
	AuthorID uint
	Search   string
}

// PostPage is one page of a post listing.
type PostPage struct {
	Posts []*Post `json:"posts"`
	Total int64   `json:"total"`
	Page  int     `json:"page"`
	Limit int     `json:"limit"`
}

// CascadeFailure records one document a cascade could not update.
type CascadeFailure struct {
	Kind  string `json:"kind"`
	ID    uint   `json:"id"`
	Error string `json:"error"`
}

// CascadeReport summarises a best-effort cascade. Documents listed as
// affected were updated; failures were left untouched and are not retried.
type CascadeReport struct {
	PostsDeleted    []uint           `json:"posts_deleted"`
	CommentsDeleted []uint           `json:"comments_deleted"`
	Failures        []CascadeFailure `json:"failures,omitempty"`
}

// Partial reports whether any document failed to cascade.
func (r *CascadeReport) Partial() bool {
	return len(r.Failures) > 0
}

// CounterDrift describes a post whose cached counters disagreed with the
// source tables before reconciliation.
type CounterDrift struct {
	PostID            uint `json:"post_id"`
	LikesBefore       int  `json:"likes_before"`
	LikesAfter        int  `json:"likes_after"`
	CommentsBefore    int  `json:"comments_before"`
	CommentsAfter     int  `json:"comments_after"`
	CommentLikesFixed int  `json:"comment_likes_fixed"`
}

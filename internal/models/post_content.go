package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/gosimple/slug"
)

// Content limits for posts.
const (
	MaxTitleLength     = 150
	MinBodyLength      = 50
	MaxTags            = 10
	MaxTagLength       = 30
	MaxReasonLength    = 500
	ExcerptLength      = 150
	ExcerptMarker      = "..."
	WordsPerMinute     = 200
	maxSlugBaseLength  = 80
	fallbackSlugPrefix = "post"
)

// SlugFor builds the URL-safe slug for a title. The suffix is derived from
// the post's creation time; attempt > 0 appends a disambiguator for retries
// after a unique index collision.
func SlugFor(title string, createdAt time.Time, attempt int) string {
	base := slug.Make(title)
	if len(base) > maxSlugBaseLength {
		base = strings.TrimRight(base[:maxSlugBaseLength], "-")
	}
	if base == "" {
		base = fallbackSlugPrefix
	}
	s := fmt.Sprintf("%s-%d", base, createdAt.UnixMilli())
	if attempt > 0 {
		s = fmt.Sprintf("%s-%d", s, attempt)
	}
	return s
}

// DeriveExcerpt returns the first ExcerptLength characters of body followed by
// ExcerptMarker, or body itself when it is short enough.
func DeriveExcerpt(body string) string {
	runes := []rune(body)
	if len(runes) <= ExcerptLength {
		return body
	}
	return string(runes[:ExcerptLength]) + ExcerptMarker
}

// ComputeReadTime returns the reading time in minutes for body.
func ComputeReadTime(body string) int {
	words := len(strings.Fields(body))
	if words == 0 {
		return 1
	}
	return (words + WordsPerMinute - 1) / WordsPerMinute
}

// NormalizeTags trims tags and drops empty entries while keeping order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// PostDraft carries validated author input for a new post.
type PostDraft struct {
	Title      string
	Body       string
	Excerpt    string
	CoverImage string
	Category   Category
	Tags       []string
}

// NewPost builds a pending post for the author with all derived fields set.
func NewPost(authorID uint, d PostDraft, now time.Time) *Post {
	p := &Post{
		Title:      d.Title,
		Body:       d.Body,
		Excerpt:    d.Excerpt,
		CoverImage: d.CoverImage,
		Category:   d.Category,
		Tags:       NormalizeTags(d.Tags),
		UserID:     authorID,
		Status:     PostStatusPending,
		CreatedAt:  now,
	}
	if p.Excerpt == "" {
		p.Excerpt = DeriveExcerpt(p.Body)
	}
	p.ReadTime = ComputeReadTime(p.Body)
	p.Slug = SlugFor(p.Title, now, 0)
	return p
}

// PostEdit is a partial update; nil fields are left unchanged.
type PostEdit struct {
	Title      *string
	Body       *string
	Excerpt    *string
	CoverImage *string
	Category   *Category
	Tags       []string
	SetTags    bool
}

// ApplyEdit applies e to p, re-deriving the slug and read time as needed. An
// existing excerpt is kept; an empty one is derived from the body. A title or
// body change sends the post back to review, and ApplyEdit reports whether one
// happened.
func (p *Post) ApplyEdit(e PostEdit) bool {
	substantive := false

	if e.Title != nil && *e.Title != p.Title {
		p.Title = *e.Title
		p.Slug = SlugFor(p.Title, p.CreatedAt, 0)
		substantive = true
	}
	if e.Body != nil && *e.Body != p.Body {
		p.Body = *e.Body
		p.ReadTime = ComputeReadTime(p.Body)
		substantive = true
	}
	if e.Excerpt != nil {
		p.Excerpt = *e.Excerpt
	}
	if p.Excerpt == "" {
		p.Excerpt = DeriveExcerpt(p.Body)
	}
	if e.CoverImage != nil {
		p.CoverImage = *e.CoverImage
	}
	if e.Category != nil {
		p.Category = *e.Category
	}
	if e.SetTags {
		p.Tags = NormalizeTags(e.Tags)
	}

	if substantive {
		p.ResetForReview()
	}
	return substantive
}

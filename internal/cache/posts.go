package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"folio/internal/middleware"
	"folio/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	postListGenerationKey = "folio:posts:list:gen"
	postListCacheName     = "post_list"
)

// PostListCache caches pages of the public post listing. Entries are keyed
// by a generation number so one INCR invalidates every cached page.
type PostListCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPostListCache returns a cache backed by rdb. A nil client disables caching.
func NewPostListCache(rdb *redis.Client, ttl time.Duration) *PostListCache {
	return &PostListCache{rdb: rdb, ttl: ttl}
}

// PostListKey identifies one cached page.
type PostListKey struct {
	Filter models.PostFilter
	Sort   models.PostSort
	Page   int
	Limit  int
}

func (k PostListKey) digest() string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%s|%d|%s|%s|%d|%d",
		k.Filter.Category, k.Filter.AuthorID, k.Filter.Search, k.Sort, k.Page, k.Limit)))
	return hex.EncodeToString(sum[:])
}

func (c *PostListCache) generation(ctx context.Context) (int64, error) {
	gen, err := c.rdb.Get(ctx, postListGenerationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// GetOrLoad returns the cached page for key or loads and caches it.
func (c *PostListCache) GetOrLoad(ctx context.Context, key PostListKey, load func(context.Context) (*models.PostPage, error)) (*models.PostPage, error) {
	if c == nil || c.rdb == nil {
		return load(ctx)
	}
	gen, err := c.generation(ctx)
	if err != nil {
		middleware.Logger.WarnContext(ctx, "post list generation unavailable", slog.String("error", err.Error()))
		return load(ctx)
	}
	redisKey := fmt.Sprintf("folio:posts:list:%d:%s", gen, key.digest())
	return Aside(ctx, c.rdb, postListCacheName, redisKey, c.ttl, load)
}

// Invalidate drops every cached page by moving to a new generation.
func (c *PostListCache) Invalidate(ctx context.Context) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Incr(ctx, postListGenerationKey).Err(); err != nil {
		middleware.Logger.WarnContext(ctx, "post list invalidation failed", slog.String("error", err.Error()))
	}
}

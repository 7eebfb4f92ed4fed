package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"folio/internal/middleware"
	"folio/internal/observability"

	"github.com/redis/go-redis/v9"
)

// Aside returns the JSON value cached under key, or calls load and caches its
// result for ttl. Redis failures degrade to calling load directly.
func Aside[T any](ctx context.Context, rdb *redis.Client, name, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	if rdb == nil {
		return load(ctx)
	}

	raw, err := rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached T
		if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
			observability.CacheRequests.WithLabelValues(name, "hit").Inc()
			return cached, nil
		}
		observability.CacheRequests.WithLabelValues(name, "error").Inc()
	case errors.Is(err, redis.Nil):
		observability.CacheRequests.WithLabelValues(name, "miss").Inc()
	default:
		observability.CacheRequests.WithLabelValues(name, "error").Inc()
		middleware.Logger.WarnContext(ctx, "cache read failed", slog.String("key", key), slog.String("error", err.Error()))
	}

	value, err := load(ctx)
	if err != nil {
		return value, err
	}

	if payload, jsonErr := json.Marshal(value); jsonErr == nil {
		if setErr := rdb.Set(ctx, key, payload, ttl).Err(); setErr != nil {
			middleware.Logger.WarnContext(ctx, "cache write failed", slog.String("key", key), slog.String("error", setErr.Error()))
		}
	}
	return value, nil
}

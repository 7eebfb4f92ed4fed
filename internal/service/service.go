// Package service implements the content lifecycle: moderation, comment
// threads, engagement counters and cascades.
package service

import (
	"context"
	"log/slog"
	"time"
	"unicode/utf8"

	"folio/internal/middleware"
	"folio/internal/models"
	"folio/internal/notifications"
)

// Pagination bounds shared by every listing.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// EventPublisher receives lifecycle events. Delivery is best effort.
type EventPublisher interface {
	Publish(ctx context.Context, evt notifications.Event) error
}

func publish(ctx context.Context, events EventPublisher, evt notifications.Event) {
	if events == nil {
		return
	}
	if err := events.Publish(ctx, evt); err != nil {
		middleware.Logger.WarnContext(ctx, "Failed to publish event",
			slog.String("type", string(evt.Type)),
			slog.String("error", err.Error()),
		)
	}
}

// normalizePage clamps page and limit to the accepted window.
func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return page, limit
}

func requireAdmin(p models.Principal) error {
	if err := requireAuthenticated(p); err != nil {
		return err
	}
	if !p.IsAdmin() {
		return models.NewForbiddenError("Admin privileges required")
	}
	return nil
}

func requireAuthenticated(p models.Principal) error {
	if p.IsAnonymous() || !p.IsActive {
		return models.NewUnauthorizedError("Authentication required")
	}
	return nil
}

func markLiked[T any](items []T, id func(T) uint, liked []uint, set func(T)) {
	if len(liked) == 0 {
		return
	}
	likedSet := make(map[uint]struct{}, len(liked))
	for _, l := range liked {
		likedSet[l] = struct{}{}
	}
	for _, item := range items {
		if _, ok := likedSet[id(item)]; ok {
			set(item)
		}
	}
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

type clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}

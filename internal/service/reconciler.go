package service

import (
	"context"
	"log/slog"

	"folio/internal/middleware"
	"folio/internal/models"
	"folio/internal/observability"
	"folio/internal/repository"
)

const reconcileBatchSize = 200

// Reconcile triggers.
const (
	TriggerManual   = "manual"
	TriggerPeriodic = "periodic"
)

// ReconcileSummary describes one pass over every post.
type ReconcileSummary struct {
	Scanned int                   `json:"scanned"`
	Drifted []models.CounterDrift `json:"drifted"`
	Failed  []uint                `json:"failed,omitempty"`
}

// Reconciler recomputes denormalized counters from their source tables.
type Reconciler struct {
	posts repository.PostRepository
}

// NewReconciler returns a Reconciler over posts.
func NewReconciler(posts repository.PostRepository) *Reconciler {
	return &Reconciler{posts: posts}
}

// ReconcilePost fixes one post's counters on an admin's request.
func (r *Reconciler) ReconcilePost(ctx context.Context, admin models.Principal, postID uint) (models.CounterDrift, error) {
	if err := requireAdmin(admin); err != nil {
		return models.CounterDrift{}, err
	}
	drift, err := r.posts.Reconcile(ctx, postID)
	if err != nil {
		return models.CounterDrift{}, err
	}
	recordDrift(drift)
	return drift, nil
}

// ReconcileAll walks every post in id order. A post that fails is logged and
// skipped; the pass only fails when the walk itself does.
func (r *Reconciler) ReconcileAll(ctx context.Context, trigger string) (*ReconcileSummary, error) {
	summary := &ReconcileSummary{Drifted: []models.CounterDrift{}}
	var after uint
	for {
		ids, err := r.posts.ListIDs(ctx, after, reconcileBatchSize)
		if err != nil {
			observability.ReconcileRuns.WithLabelValues(trigger, "error").Inc()
			return summary, err
		}
		for _, id := range ids {
			drift, err := r.posts.Reconcile(ctx, id)
			summary.Scanned++
			if err != nil {
				summary.Failed = append(summary.Failed, id)
				middleware.Logger.WarnContext(ctx, "Reconcile failed",
					slog.Uint64("post_id", uint64(id)),
					slog.String("error", err.Error()),
				)
				continue
			}
			if recordDrift(drift) {
				summary.Drifted = append(summary.Drifted, drift)
			}
		}
		if len(ids) < reconcileBatchSize {
			break
		}
		after = ids[len(ids)-1]
	}

	result := "ok"
	if len(summary.Failed) > 0 {
		result = "partial"
	}
	observability.ReconcileRuns.WithLabelValues(trigger, result).Inc()
	middleware.Logger.InfoContext(ctx, "Reconcile pass finished",
		slog.String("trigger", trigger),
		slog.Int("scanned", summary.Scanned),
		slog.Int("drifted", len(summary.Drifted)),
		slog.Int("failed", len(summary.Failed)),
	)
	return summary, nil
}

// recordDrift counts corrected counters and reports whether any were off.
func recordDrift(d models.CounterDrift) bool {
	drifted := false
	if d.LikesBefore != d.LikesAfter {
		observability.CounterDrift.WithLabelValues("likes_count").Inc()
		drifted = true
	}
	if d.CommentsBefore != d.CommentsAfter {
		observability.CounterDrift.WithLabelValues("comments_count").Inc()
		drifted = true
	}
	if d.CommentLikesFixed > 0 {
		observability.CounterDrift.WithLabelValues("comment_likes_count").Add(float64(d.CommentLikesFixed))
		drifted = true
	}
	return drifted
}

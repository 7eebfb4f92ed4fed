package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"folio/internal/cache"
	"folio/internal/middleware"
	"folio/internal/models"
	"folio/internal/notifications"
	"folio/internal/observability"
	"folio/internal/repository"

	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultCascadeConcurrency bounds cascade fan-out when none is configured.
const DefaultCascadeConcurrency = 4

const (
	kindPost     = "post"
	kindComment  = "comment"
	kindCounters = "post_counters"
)

// CascadeService runs the admin operations that touch many documents. Each
// document is updated on its own; a failure is reported and never rolls back
// the documents already updated.
type CascadeService struct {
	store       *repository.Store
	listCache   *cache.PostListCache
	events      EventPublisher
	concurrency int
	now         clock
}

// NewCascadeService returns a CascadeService running at most concurrency
// document updates at a time.
func NewCascadeService(store *repository.Store, listCache *cache.PostListCache, events EventPublisher, concurrency int) *CascadeService {
	if concurrency < 1 {
		concurrency = DefaultCascadeConcurrency
	}
	return &CascadeService{
		store:       store,
		listCache:   listCache,
		events:      events,
		concurrency: concurrency,
		now:         systemClock,
	}
}

type cascadeTask struct {
	kind string
	id   uint
	run  func(context.Context) error
}

type cascadeOutcome struct {
	kind string
	id   uint
	err  error
}

// fanOut runs every task with bounded concurrency and folds the outcomes into
// report, ordered by kind and id.
func (s *CascadeService) fanOut(ctx context.Context, name string, tasks []cascadeTask, report *models.CascadeReport) {
	p := pool.NewWithResults[cascadeOutcome]().WithMaxGoroutines(s.concurrency)
	for _, task := range tasks {
		task := task
		p.Go(func() cascadeOutcome {
			if err := ctx.Err(); err != nil {
				return cascadeOutcome{kind: task.kind, id: task.id, err: err}
			}
			return cascadeOutcome{kind: task.kind, id: task.id, err: task.run(ctx)}
		})
	}
	outcomes := p.Wait()
	sort.Slice(outcomes, func(i, j int) bool {
		if outcomes[i].kind != outcomes[j].kind {
			return outcomes[i].kind > outcomes[j].kind
		}
		return outcomes[i].id < outcomes[j].id
	})

	for _, o := range outcomes {
		result := "ok"
		if o.err != nil {
			result = "failed"
			report.Failures = append(report.Failures, models.CascadeFailure{Kind: o.kind, ID: o.id, Error: o.err.Error()})
			middleware.Logger.WarnContext(ctx, "Cascade step failed",
				slog.String("cascade", name),
				slog.String("kind", o.kind),
				slog.Uint64("id", uint64(o.id)),
				slog.String("error", o.err.Error()),
			)
		} else if o.kind == kindPost {
			report.PostsDeleted = append(report.PostsDeleted, o.id)
		} else {
			report.CommentsDeleted = append(report.CommentsDeleted, o.id)
		}
		observability.CascadeDocuments.WithLabelValues(name, o.kind, result).Inc()
	}
}

func (s *CascadeService) deletePostTask(id uint) cascadeTask {
	return cascadeTask{kind: kindPost, id: id, run: func(ctx context.Context) error {
		// already deleted counts as done
		_, err := s.store.Posts.MarkDeleted(ctx, id, s.now())
		return err
	}}
}

func (s *CascadeService) deleteCommentTask(id uint) cascadeTask {
	return cascadeTask{kind: kindComment, id: id, run: func(ctx context.Context) error {
		_, err := s.store.Comments.Tombstone(ctx, id, s.now())
		return err
	}}
}

// AdminDeletePost removes a post and every live comment on it, then
// recomputes the post's counters. It works on posts the author already
// deleted.
func (s *CascadeService) AdminDeletePost(ctx context.Context, admin models.Principal, postID uint) (*models.CascadeReport, error) {
	if err := requireAdmin(admin); err != nil {
		return nil, err
	}
	post, err := s.store.Posts.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}

	span, ctx := observability.NewSpan(ctx, "CascadeService.AdminDeletePost", attribute.Int("post_id", int(postID)))
	defer span.End()

	report := &models.CascadeReport{}
	if _, err := s.store.Posts.MarkDeleted(ctx, postID, s.now()); err != nil {
		span.SetError(err)
		return nil, err
	}
	report.PostsDeleted = append(report.PostsDeleted, postID)
	observability.CascadeDocuments.WithLabelValues("admin_delete_post", kindPost, "ok").Inc()

	commentIDs, err := s.store.Comments.ListActiveIDsByPost(ctx, postID)
	if err != nil {
		report.Failures = append(report.Failures, models.CascadeFailure{Kind: kindComment, ID: postID, Error: fmt.Sprintf("list comments: %v", err)})
	} else {
		tasks := make([]cascadeTask, 0, len(commentIDs))
		for _, id := range commentIDs {
			tasks = append(tasks, s.deleteCommentTask(id))
		}
		s.fanOut(ctx, "admin_delete_post", tasks, report)
	}

	if _, err := s.store.Posts.Reconcile(ctx, postID); err != nil {
		report.Failures = append(report.Failures, models.CascadeFailure{Kind: kindCounters, ID: postID, Error: err.Error()})
	}

	if post.Status == models.PostStatusPublished {
		s.listCache.Invalidate(ctx)
	}
	middleware.Logger.InfoContext(ctx, "Admin deleted post",
		slog.Uint64("post_id", uint64(postID)),
		slog.Uint64("admin_id", uint64(admin.ID)),
		slog.Int("comments_deleted", len(report.CommentsDeleted)),
		slog.Int("failures", len(report.Failures)),
	)
	publish(ctx, s.events, notifications.Event{
		Type:       notifications.EventPostDeleted,
		ActorID:    admin.ID,
		PostID:     postID,
		UserID:     post.UserID,
		Attributes: map[string]string{"comments_deleted": strconv.Itoa(len(report.CommentsDeleted))},
	})
	return s.finish(span, report)
}

// DeactivateAccount marks a user inactive and deletes every post and comment
// they authored. Counters on other authors' posts are left to reconciliation.
// Running it again retries documents that failed before.
func (s *CascadeService) DeactivateAccount(ctx context.Context, admin models.Principal, userID uint) (*models.CascadeReport, error) {
	if err := requireAdmin(admin); err != nil {
		return nil, err
	}
	if userID == admin.ID {
		return nil, models.NewValidationError("You cannot deactivate your own account")
	}
	if _, err := s.store.Users.GetByID(ctx, userID); err != nil {
		return nil, err
	}

	span, ctx := observability.NewSpan(ctx, "CascadeService.DeactivateAccount", attribute.Int("user_id", int(userID)))
	defer span.End()

	if _, err := s.store.Users.Deactivate(ctx, userID, s.now()); err != nil {
		span.SetError(err)
		return nil, err
	}

	report := &models.CascadeReport{}
	var tasks []cascadeTask
	postIDs, err := s.store.Posts.ListIDsByAuthor(ctx, userID)
	if err != nil {
		report.Failures = append(report.Failures, models.CascadeFailure{Kind: kindPost, ID: userID, Error: fmt.Sprintf("list posts: %v", err)})
	}
	for _, id := range postIDs {
		tasks = append(tasks, s.deletePostTask(id))
	}
	comments, err := s.store.Comments.ListActiveByAuthor(ctx, userID)
	if err != nil {
		report.Failures = append(report.Failures, models.CascadeFailure{Kind: kindComment, ID: userID, Error: fmt.Sprintf("list comments: %v", err)})
	}
	for _, c := range comments {
		tasks = append(tasks, s.deleteCommentTask(c.ID))
	}
	s.fanOut(ctx, "deactivate_account", tasks, report)

	s.listCache.Invalidate(ctx)
	middleware.Logger.InfoContext(ctx, "Account deactivated",
		slog.Uint64("user_id", uint64(userID)),
		slog.Uint64("admin_id", uint64(admin.ID)),
		slog.Int("posts_deleted", len(report.PostsDeleted)),
		slog.Int("comments_deleted", len(report.CommentsDeleted)),
		slog.Int("failures", len(report.Failures)),
	)
	publish(ctx, s.events, notifications.Event{
		Type:    notifications.EventAccountDeactivated,
		ActorID: admin.ID,
		UserID:  userID,
	})
	return s.finish(span, report)
}

func (s *CascadeService) finish(span *observability.Span, report *models.CascadeReport) (*models.CascadeReport, error) {
	if report.Partial() {
		span.SetError(models.ErrPartialCascade)
		return report, models.ErrPartialCascade
	}
	return report, nil
}

package service

import (
	"context"
	"fmt"
	"testing"

	"folio/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconciler_ReconcilePost(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	author := env.user(t, "author")
	reader := env.user(t, "reader")
	post := env.publishedPost(t, author, "Drifting")

	c, err := env.comments.CreateComment(ctx, reader, CreateCommentInput{PostID: post.ID, Content: "hi"})
	require.NoError(t, err)
	_, err = env.comments.ToggleLike(ctx, author, c.ID)
	require.NoError(t, err)
	_, err = env.posts.ToggleLike(ctx, reader, post.ID)
	require.NoError(t, err)

	require.NoError(t, env.db.Model(&models.Post{}).Where("id = ?", post.ID).
		UpdateColumns(map[string]interface{}{"likes_count": 9, "comments_count": 0}).Error)
	require.NoError(t, env.db.Model(&models.Comment{}).Where("id = ?", c.ID).UpdateColumn("likes_count", 5).Error)

	_, err = env.reconciler.ReconcilePost(ctx, reader, post.ID)
	assertCode(t, err, models.CodeForbidden)

	drift, err := env.reconciler.ReconcilePost(ctx, env.admin, post.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CounterDrift{
		PostID:            post.ID,
		LikesBefore:       9,
		LikesAfter:        1,
		CommentsBefore:    0,
		CommentsAfter:     1,
		CommentLikesFixed: 1,
	}, drift)

	got := env.reload(t, post.ID)
	assert.Equal(t, 1, got.LikesCount)
	assert.Equal(t, 1, got.CommentsCount)
	comment, err := env.store.Comments.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, comment.LikesCount)

	_, err = env.reconciler.ReconcilePost(ctx, env.admin, 555)
	assert.ErrorIs(t, err, models.ErrPostNotFound)
}

func TestReconciler_ReconcileAll(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	author := env.user(t, "author")

	var posts []*models.Post
	for i := 0; i < 5; i++ {
		posts = append(posts, env.publishedPost(t, author, fmt.Sprintf("Post %d", i)))
	}
	require.NoError(t, env.db.Model(&models.Post{}).Where("id IN ?", []uint{posts[1].ID, posts[3].ID}).
		UpdateColumn("likes_count", 2).Error)

	summary, err := env.reconciler.ReconcileAll(ctx, TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Scanned)
	assert.Empty(t, summary.Failed)
	require.Len(t, summary.Drifted, 2)
	assert.Equal(t, posts[1].ID, summary.Drifted[0].PostID)
	assert.Equal(t, posts[3].ID, summary.Drifted[1].PostID)

	again, err := env.reconciler.ReconcileAll(ctx, TriggerPeriodic)
	require.NoError(t, err)
	assert.Empty(t, again.Drifted, "a clean database reports no drift")
}

func TestRecordDrift(t *testing.T) {
	assert.False(t, recordDrift(models.CounterDrift{LikesBefore: 1, LikesAfter: 1}))
	assert.True(t, recordDrift(models.CounterDrift{CommentsBefore: 2, CommentsAfter: 1}))
	assert.True(t, recordDrift(models.CounterDrift{CommentLikesFixed: 3}))
}

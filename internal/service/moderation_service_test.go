package service

import (
	"context"
	"strings"
	"testing"

	"folio/internal/models"
	"folio/internal/notifications"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModerationService_ApprovePost(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	author := env.user(t, "author")

	post, err := env.posts.CreatePost(ctx, author, validInput("Needs review"))
	require.NoError(t, err)

	t.Run("non admin forbidden", func(t *testing.T) {
		_, err := env.moderation.ApprovePost(ctx, author, post.ID)
		assertCode(t, err, models.CodeForbidden)
		assert.Equal(t, models.PostStatusPending, env.reload(t, post.ID).Status)
	})

	t.Run("pending to published", func(t *testing.T) {
		got, err := env.moderation.ApprovePost(ctx, env.admin, post.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PostStatusPublished, got.Status)
		assert.NotNil(t, got.PublishedAt)
		assert.Contains(t, env.events.types(), notifications.EventPostApproved)
	})

	t.Run("already published", func(t *testing.T) {
		_, err := env.moderation.ApprovePost(ctx, env.admin, post.ID)
		assert.ErrorIs(t, err, models.ErrAlreadyPublished)
	})

	t.Run("rejected to published clears reason", func(t *testing.T) {
		_, err := env.moderation.RejectPost(ctx, env.admin, post.ID, "needs sources")
		require.NoError(t, err)
		got, err := env.moderation.ApprovePost(ctx, env.admin, post.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PostStatusPublished, got.Status)
		assert.Empty(t, got.RejectionReason)
	})

	t.Run("missing post", func(t *testing.T) {
		_, err := env.moderation.ApprovePost(ctx, env.admin, 9999)
		assert.ErrorIs(t, err, models.ErrPostNotFound)
	})
}

func TestModerationService_RejectPost(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	author := env.user(t, "author")

	t.Run("reason required", func(t *testing.T) {
		post, err := env.posts.CreatePost(ctx, author, validInput("No reason"))
		require.NoError(t, err)
		_, err = env.moderation.RejectPost(ctx, env.admin, post.ID, "  ")
		assertCode(t, err, models.CodeValidation)
		_, err = env.moderation.RejectPost(ctx, env.admin, post.ID, strings.Repeat("r", models.MaxReasonLength+1))
		assertCode(t, err, models.CodeValidation)
	})

	t.Run("published post loses publication", func(t *testing.T) {
		post := env.publishedPost(t, author, "Was live")
		got, err := env.moderation.RejectPost(ctx, env.admin, post.ID, " plagiarised ")
		require.NoError(t, err)
		assert.Equal(t, models.PostStatusRejected, got.Status)
		assert.Nil(t, got.PublishedAt)
		assert.Equal(t, "plagiarised", got.RejectionReason)

		_, err = env.posts.GetPostBySlug(ctx, models.Principal{}, got.Slug)
		assert.ErrorIs(t, err, models.ErrPostNotFound)
		mine, err := env.posts.GetPostBySlug(ctx, author, got.Slug)
		require.NoError(t, err)
		assert.Equal(t, "plagiarised", mine.RejectionReason)
	})

	t.Run("rejecting again replaces reason", func(t *testing.T) {
		post, err := env.posts.CreatePost(ctx, author, validInput("Twice"))
		require.NoError(t, err)
		_, err = env.moderation.RejectPost(ctx, env.admin, post.ID, "first")
		require.NoError(t, err)
		got, err := env.moderation.RejectPost(ctx, env.admin, post.ID, "second")
		require.NoError(t, err)
		assert.Equal(t, "second", got.RejectionReason)
	})

	t.Run("deleted post", func(t *testing.T) {
		post, err := env.posts.CreatePost(ctx, author, validInput("Gone"))
		require.NoError(t, err)
		require.NoError(t, env.posts.SoftDeletePost(ctx, author, post.ID))
		_, err = env.moderation.RejectPost(ctx, env.admin, post.ID, "spam")
		assert.ErrorIs(t, err, models.ErrPostNotFound)
	})
}

func TestModerationService_Queue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	author := env.user(t, "author")

	first, err := env.posts.CreatePost(ctx, author, validInput("First in line"))
	require.NoError(t, err)
	second, err := env.posts.CreatePost(ctx, author, validInput("Second in line"))
	require.NoError(t, err)
	env.publishedPost(t, author, "Already out")
	rejected, err := env.posts.CreatePost(ctx, author, validInput("Turned down"))
	require.NoError(t, err)
	_, err = env.moderation.RejectPost(ctx, env.admin, rejected.ID, "nope")
	require.NoError(t, err)

	pending, err := env.moderation.Queue(ctx, env.admin, "", 1, 10)
	require.NoError(t, err)
	require.EqualValues(t, 2, pending.Total)
	assert.Equal(t, first.ID, pending.Posts[0].ID)
	assert.Equal(t, second.ID, pending.Posts[1].ID)

	rej, err := env.moderation.Queue(ctx, env.admin, models.PostStatusRejected, 1, 10)
	require.NoError(t, err)
	require.EqualValues(t, 1, rej.Total)
	assert.Equal(t, rejected.ID, rej.Posts[0].ID)

	_, err = env.moderation.Queue(ctx, env.admin, "draft", 1, 10)
	assertCode(t, err, models.CodeValidation)
	_, err = env.moderation.Queue(ctx, author, "", 1, 10)
	assertCode(t, err, models.CodeForbidden)
}

package service

import (
	"context"
	"testing"

	"folio/internal/models"
	"folio/internal/notifications"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCascadeService_AdminDeletePost(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	author := env.user(t, "author")
	reader := env.user(t, "reader")
	post := env.publishedPost(t, author, "Doomed")

	top, err := env.comments.CreateComment(ctx, reader, CreateCommentInput{PostID: post.ID, Content: "top"})
	require.NoError(t, err)
	reply, err := env.comments.CreateComment(ctx, author, CreateCommentInput{PostID: post.ID, Content: "reply", ParentID: uintPtr(top.ID)})
	require.NoError(t, err)
	gone, err := env.comments.CreateComment(ctx, reader, CreateCommentInput{PostID: post.ID, Content: "already gone"})
	require.NoError(t, err)
	require.NoError(t, env.comments.SoftDeleteComment(ctx, reader, gone.ID))
	_, err = env.posts.ToggleLike(ctx, reader, post.ID)
	require.NoError(t, err)

	t.Run("requires admin", func(t *testing.T) {
		_, err := env.cascade.AdminDeletePost(ctx, author, post.ID)
		assertCode(t, err, models.CodeForbidden)
		assert.False(t, env.reload(t, post.ID).IsDeleted)
	})

	t.Run("deletes post and live comments", func(t *testing.T) {
		report, err := env.cascade.AdminDeletePost(ctx, env.admin, post.ID)
		require.NoError(t, err)
		assert.Equal(t, []uint{post.ID}, report.PostsDeleted)
		assert.Equal(t, []uint{top.ID, reply.ID}, report.CommentsDeleted)
		assert.Empty(t, report.Failures)

		got := env.reload(t, post.ID)
		assert.True(t, got.IsDeleted)
		assert.Zero(t, got.CommentsCount)
		assert.Equal(t, 1, got.LikesCount)

		ids, err := env.store.Comments.ListActiveIDsByPost(ctx, post.ID)
		require.NoError(t, err)
		assert.Empty(t, ids)
		assert.Contains(t, env.events.types(), notifications.EventPostDeleted)
	})

	t.Run("missing post", func(t *testing.T) {
		_, err := env.cascade.AdminDeletePost(ctx, env.admin, 31337)
		assert.ErrorIs(t, err, models.ErrPostNotFound)
	})
}

func TestCascadeService_AdminDeletePost_AfterAuthorDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	author := env.user(t, "author")
	reader := env.user(t, "reader")
	post := env.publishedPost(t, author, "Half gone")

	c, err := env.comments.CreateComment(ctx, reader, CreateCommentInput{PostID: post.ID, Content: "orphaned"})
	require.NoError(t, err)
	require.NoError(t, env.posts.SoftDeletePost(ctx, author, post.ID))

	report, err := env.cascade.AdminDeletePost(ctx, env.admin, post.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{c.ID}, report.CommentsDeleted)
	assert.Zero(t, env.reload(t, post.ID).CommentsCount)
}

func TestCascadeService_AdminDeletePost_PartialFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	author := env.user(t, "author")
	reader := env.user(t, "reader")
	post := env.publishedPost(t, author, "Stubborn")

	var ids []uint
	for _, content := range []string{"one", "two", "three"} {
		c, err := env.comments.CreateComment(ctx, reader, CreateCommentInput{PostID: post.ID, Content: content})
		require.NoError(t, err)
		ids = append(ids, c.ID)
	}
	restore := failUpdatesOf(t, env.db, "comments", ids[1])

	report, err := env.cascade.AdminDeletePost(ctx, env.admin, post.ID)
	assert.ErrorIs(t, err, models.ErrPartialCascade)
	require.NotNil(t, report)
	assert.Equal(t, []uint{post.ID}, report.PostsDeleted)
	assert.Equal(t, []uint{ids[0], ids[2]}, report.CommentsDeleted)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "comment", report.Failures[0].Kind)
	assert.Equal(t, ids[1], report.Failures[0].ID)

	// the documents already updated stay updated
	got := env.reload(t, post.ID)
	assert.True(t, got.IsDeleted)
	assert.Equal(t, 1, got.CommentsCount)
	live, err := env.store.Comments.ListActiveIDsByPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{ids[1]}, live)

	restore()
	report, err = env.cascade.AdminDeletePost(ctx, env.admin, post.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{ids[1]}, report.CommentsDeleted)
	assert.Zero(t, env.reload(t, post.ID).CommentsCount)
}

func TestCascadeService_DeactivateAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	target := env.user(t, "troll")
	author := env.user(t, "author")
	bystander := env.user(t, "bystander")

	trollPost := env.publishedPost(t, target, "Troll post")
	trollDraft, err := env.posts.CreatePost(ctx, target, validInput("Troll draft"))
	require.NoError(t, err)
	other := env.publishedPost(t, author, "Innocent post")

	c1, err := env.comments.CreateComment(ctx, target, CreateCommentInput{PostID: other.ID, Content: "bad take"})
	require.NoError(t, err)
	c2, err := env.comments.CreateComment(ctx, target, CreateCommentInput{PostID: other.ID, Content: "worse take"})
	require.NoError(t, err)
	kept, err := env.comments.CreateComment(ctx, bystander, CreateCommentInput{PostID: other.ID, Content: "calm take"})
	require.NoError(t, err)
	onTroll, err := env.comments.CreateComment(ctx, bystander, CreateCommentInput{PostID: trollPost.ID, Content: "replying to troll"})
	require.NoError(t, err)

	t.Run("guards", func(t *testing.T) {
		_, err := env.cascade.DeactivateAccount(ctx, author, target.ID)
		assertCode(t, err, models.CodeForbidden)
		_, err = env.cascade.DeactivateAccount(ctx, env.admin, env.admin.ID)
		assertCode(t, err, models.CodeValidation)
		_, err = env.cascade.DeactivateAccount(ctx, env.admin, 777)
		assert.ErrorIs(t, err, models.ErrUserNotFound)
	})

	t.Run("deletes everything the user authored", func(t *testing.T) {
		report, err := env.cascade.DeactivateAccount(ctx, env.admin, target.ID)
		require.NoError(t, err)
		assert.Equal(t, []uint{trollPost.ID, trollDraft.ID}, report.PostsDeleted)
		assert.Equal(t, []uint{c1.ID, c2.ID}, report.CommentsDeleted)

		user, err := env.store.Users.GetByID(ctx, target.ID)
		require.NoError(t, err)
		assert.False(t, user.IsActive)
		assert.NotNil(t, user.DeactivatedAt)

		assert.True(t, env.reload(t, trollPost.ID).IsDeleted)
		assert.True(t, env.reload(t, trollDraft.ID).IsDeleted)

		// other people's comments on the user's posts are untouched
		c, err := env.store.Comments.GetByID(ctx, onTroll.ID)
		require.NoError(t, err)
		assert.False(t, c.IsDeleted)

		live, err := env.store.Comments.ListActiveIDsByPost(ctx, other.ID)
		require.NoError(t, err)
		assert.Equal(t, []uint{kept.ID}, live)
		assert.Contains(t, env.events.types(), notifications.EventAccountDeactivated)
	})

	t.Run("counters on other posts wait for reconciliation", func(t *testing.T) {
		assert.Equal(t, 3, env.reload(t, other.ID).CommentsCount)
		drift, err := env.reconciler.ReconcilePost(ctx, env.admin, other.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, drift.CommentsBefore)
		assert.Equal(t, 1, drift.CommentsAfter)
		assert.Equal(t, 1, env.reload(t, other.ID).CommentsCount)
	})

	t.Run("rerun is a no-op", func(t *testing.T) {
		report, err := env.cascade.DeactivateAccount(ctx, env.admin, target.ID)
		require.NoError(t, err)
		assert.Empty(t, report.PostsDeleted)
		assert.Empty(t, report.CommentsDeleted)
	})
}

func TestCascadeService_DeactivateAccount_RetriesFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	target := env.user(t, "target")
	first := env.publishedPost(t, target, "First")
	second := env.publishedPost(t, target, "Second")

	restore := failUpdatesOf(t, env.db, "posts", second.ID)
	report, err := env.cascade.DeactivateAccount(ctx, env.admin, target.ID)
	assert.ErrorIs(t, err, models.ErrPartialCascade)
	assert.Equal(t, []uint{first.ID}, report.PostsDeleted)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, models.CascadeFailure{Kind: "post", ID: second.ID, Error: report.Failures[0].Error}, report.Failures[0])
	assert.False(t, env.reload(t, second.ID).IsDeleted)

	restore()
	report, err = env.cascade.DeactivateAccount(ctx, env.admin, target.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{second.ID}, report.PostsDeleted)
	assert.True(t, env.reload(t, second.ID).IsDeleted)
}

package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"folio/internal/models"
	"folio/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostRepository_Create_SlugTaken(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()
	author := testutil.CreateUser(t, db, "author", models.RoleUser)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	draft := models.PostDraft{Title: "Same Title", Body: "body", Category: models.CategoryFood}

	require.NoError(t, repo.Create(ctx, models.NewPost(author.ID, draft, now)))
	err := repo.Create(ctx, models.NewPost(author.ID, draft, now))
	assert.ErrorIs(t, err, ErrSlugTaken)
	assert.Equal(t, models.CodeConflict, models.ErrorCode(err))
}

func TestPostRepository_Visibility(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()
	author := testutil.CreateUser(t, db, "author", models.RoleUser)

	live := testutil.CreatePost(t, db, author.ID, "Live", models.PostStatusPublished)
	pending := testutil.CreatePost(t, db, author.ID, "Waiting", models.PostStatusPending)
	gone := testutil.CreatePost(t, db, author.ID, "Gone", models.PostStatusPublished)

	flipped, err := repo.MarkDeleted(ctx, gone.ID, time.Now())
	require.NoError(t, err)
	assert.True(t, flipped)
	flipped, err = repo.MarkDeleted(ctx, gone.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, flipped, "second delete is a no-op")

	_, err = repo.GetBySlug(ctx, gone.Slug)
	assert.ErrorIs(t, err, models.ErrPostNotFound)
	_, err = repo.GetActiveByID(ctx, gone.ID)
	assert.ErrorIs(t, err, models.ErrPostNotFound)

	raw, err := repo.GetByID(ctx, gone.ID)
	require.NoError(t, err)
	assert.True(t, raw.IsDeleted)
	assert.Equal(t, models.PostStatusPublished, raw.Status, "status survives deletion")

	got, err := repo.GetBySlug(ctx, pending.Slug)
	require.NoError(t, err)
	assert.Equal(t, pending.ID, got.ID)
	require.NotNil(t, got.Author)
	assert.Equal(t, "author", got.Author.Username)

	posts, total, err := repo.ListPublished(ctx, models.PostFilter{}, models.PostSortNewest, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, posts, 1)
	assert.Equal(t, live.ID, posts[0].ID)

	queue, total, err := repo.ListByStatus(ctx, models.PostStatusPending, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, pending.ID, queue[0].ID)

	mine, total, err := repo.ListByAuthor(ctx, author.ID, "", 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, mine, 2)

	ids, err := repo.ListIDsByAuthor(ctx, author.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{live.ID, pending.ID}, ids)
}

func TestPostRepository_ListPublished_FilterSortPaginate(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()
	alice := testutil.CreateUser(t, db, "alice", models.RoleUser)
	bob := testutil.CreateUser(t, db, "bob", models.RoleUser)

	var posts []*models.Post
	for i := 0; i < 5; i++ {
		author := alice
		if i%2 == 1 {
			author = bob
		}
		p := testutil.CreatePost(t, db, author.ID, fmt.Sprintf("Gardening notes %d", i), models.PostStatusPublished)
		published := time.Date(2026, 1, 1+i, 0, 0, 0, 0, time.UTC)
		require.NoError(t, db.Model(p).UpdateColumns(map[string]interface{}{
			"published_at": published,
			"views":        int64(10 * (5 - i)),
			"likes_count":  i % 3,
		}).Error)
		posts = append(posts, p)
	}
	other := testutil.CreatePost(t, db, alice.ID, "Cooking", models.PostStatusPublished)
	require.NoError(t, db.Model(other).UpdateColumn("category", models.CategoryFood).Error)

	t.Run("newest first with paging", func(t *testing.T) {
		page1, total, err := repo.ListPublished(ctx, models.PostFilter{Category: models.CategoryTechnology}, models.PostSortNewest, 1, 2)
		require.NoError(t, err)
		assert.EqualValues(t, 5, total)
		require.Len(t, page1, 2)
		assert.Equal(t, posts[4].ID, page1[0].ID)
		assert.Equal(t, posts[3].ID, page1[1].ID)

		page3, _, err := repo.ListPublished(ctx, models.PostFilter{Category: models.CategoryTechnology}, models.PostSortNewest, 3, 2)
		require.NoError(t, err)
		require.Len(t, page3, 1)
		assert.Equal(t, posts[0].ID, page3[0].ID)
	})

	t.Run("oldest", func(t *testing.T) {
		got, _, err := repo.ListPublished(ctx, models.PostFilter{Category: models.CategoryTechnology}, models.PostSortOldest, 1, 1)
		require.NoError(t, err)
		assert.Equal(t, posts[0].ID, got[0].ID)
	})

	t.Run("most read", func(t *testing.T) {
		got, _, err := repo.ListPublished(ctx, models.PostFilter{}, models.PostSortMostRead, 1, 1)
		require.NoError(t, err)
		assert.Equal(t, posts[0].ID, got[0].ID)
	})

	t.Run("popular breaks ties by recency", func(t *testing.T) {
		got, _, err := repo.ListPublished(ctx, models.PostFilter{Category: models.CategoryTechnology}, models.PostSortPopular, 1, 2)
		require.NoError(t, err)
		assert.Equal(t, posts[2].ID, got[0].ID)
		assert.Equal(t, posts[4].ID, got[1].ID)
	})

	t.Run("author filter", func(t *testing.T) {
		_, total, err := repo.ListPublished(ctx, models.PostFilter{AuthorID: bob.ID}, models.PostSortNewest, 1, 10)
		require.NoError(t, err)
		assert.EqualValues(t, 2, total)
	})

	t.Run("search is case insensitive", func(t *testing.T) {
		got, total, err := repo.ListPublished(ctx, models.PostFilter{Search: "COOKING"}, models.PostSortNewest, 1, 10)
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
		assert.Equal(t, other.ID, got[0].ID)
	})

	t.Run("empty page", func(t *testing.T) {
		got, total, err := repo.ListPublished(ctx, models.PostFilter{Category: models.CategoryHealth}, models.PostSortNewest, 1, 10)
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})
}

func TestPostRepository_SaveContent_KeepsCounters(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()
	author := testutil.CreateUser(t, db, "author", models.RoleUser)
	post := testutil.CreatePost(t, db, author.ID, "Original", models.PostStatusPublished)

	stale, err := repo.GetByID(ctx, post.ID)
	require.NoError(t, err)
	require.NoError(t, repo.AdjustCommentsCount(ctx, post.ID, 1))
	require.NoError(t, repo.IncrementViews(ctx, post.ID))

	title := "Rewritten"
	require.True(t, stale.ApplyEdit(models.PostEdit{Title: &title}))
	require.NoError(t, repo.SaveContent(ctx, stale))

	got, err := repo.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "Rewritten", got.Title)
	assert.Equal(t, models.PostStatusPending, got.Status)
	assert.Nil(t, got.PublishedAt)
	assert.Equal(t, 1, got.CommentsCount)
	assert.EqualValues(t, 1, got.Views)
}

func TestPostRepository_AdjustCommentsCount_NeverNegative(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()
	author := testutil.CreateUser(t, db, "author", models.RoleUser)
	post := testutil.CreatePost(t, db, author.ID, "Counted", models.PostStatusPublished)

	require.NoError(t, repo.AdjustCommentsCount(ctx, post.ID, 1))
	require.NoError(t, repo.AdjustCommentsCount(ctx, post.ID, -1))
	require.NoError(t, repo.AdjustCommentsCount(ctx, post.ID, -1))

	got, err := repo.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Zero(t, got.CommentsCount)
}

func TestPostRepository_ToggleLike(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()
	author := testutil.CreateUser(t, db, "author", models.RoleUser)
	reader := testutil.CreateUser(t, db, "reader", models.RoleUser)
	post := testutil.CreatePost(t, db, author.ID, "Likeable", models.PostStatusPublished)

	res, err := repo.ToggleLike(ctx, post.ID, reader.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LikeResult{LikesCount: 1, IsLiked: true}, res)

	liked, err := repo.LikedPostIDs(ctx, reader.ID, []uint{post.ID})
	require.NoError(t, err)
	assert.Equal(t, []uint{post.ID}, liked)

	res, err = repo.ToggleLike(ctx, post.ID, reader.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LikeResult{LikesCount: 0, IsLiked: false}, res)

	t.Run("pending post refuses new likes", func(t *testing.T) {
		pending := testutil.CreatePost(t, db, author.ID, "Pending", models.PostStatusPending)
		_, err := repo.ToggleLike(ctx, pending.ID, reader.ID)
		assert.ErrorIs(t, err, models.ErrPostNotPublished)
	})

	t.Run("existing like can be removed after demotion", func(t *testing.T) {
		demoted := testutil.CreatePost(t, db, author.ID, "Demoted", models.PostStatusPublished)
		_, err := repo.ToggleLike(ctx, demoted.ID, reader.ID)
		require.NoError(t, err)
		require.NoError(t, db.Model(demoted).UpdateColumn("status", models.PostStatusPending).Error)

		res, err := repo.ToggleLike(ctx, demoted.ID, reader.ID)
		require.NoError(t, err)
		assert.False(t, res.IsLiked)
		assert.Zero(t, res.LikesCount)
	})

	t.Run("deleted post is not found", func(t *testing.T) {
		deleted := testutil.CreatePost(t, db, author.ID, "Deleted", models.PostStatusPublished)
		_, err := repo.MarkDeleted(ctx, deleted.ID, time.Now())
		require.NoError(t, err)
		_, err = repo.ToggleLike(ctx, deleted.ID, reader.ID)
		assert.ErrorIs(t, err, models.ErrPostNotFound)
	})
}

func TestPostRepository_ToggleLike_Concurrent(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()
	author := testutil.CreateUser(t, db, "author", models.RoleUser)
	post := testutil.CreatePost(t, db, author.ID, "Hot", models.PostStatusPublished)

	const users = 12
	var readers []*models.User
	for i := 0; i < users; i++ {
		readers = append(readers, testutil.CreateUser(t, db, fmt.Sprintf("reader%d", i), models.RoleUser))
	}

	// even readers toggle twice, odd readers once
	var wg sync.WaitGroup
	for i, u := range readers {
		toggles := 1
		if i%2 == 0 {
			toggles = 2
		}
		wg.Add(1)
		go func(userID uint, n int) {
			defer wg.Done()
			for j := 0; j < n; j++ {
				_, err := repo.ToggleLike(ctx, post.ID, userID)
				assert.NoError(t, err)
			}
		}(u.ID, toggles)
	}
	wg.Wait()

	var members int64
	require.NoError(t, db.Model(&models.PostLike{}).Where("post_id = ?", post.ID).Count(&members).Error)
	got, err := repo.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.EqualValues(t, users/2, members)
	assert.EqualValues(t, members, got.LikesCount)
}

func TestPostRepository_Reconcile(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewPostRepository(db)
	comments := NewCommentRepository(db)
	ctx := context.Background()
	author := testutil.CreateUser(t, db, "author", models.RoleUser)
	reader := testutil.CreateUser(t, db, "reader", models.RoleUser)
	post := testutil.CreatePost(t, db, author.ID, "Drifted", models.PostStatusPublished)

	c := &models.Comment{PostID: post.ID, UserID: reader.ID, Content: "hi"}
	require.NoError(t, comments.Create(ctx, c))
	require.NoError(t, db.Create(&models.PostLike{PostID: post.ID, UserID: reader.ID}).Error)
	require.NoError(t, db.Create(&models.CommentLike{CommentID: c.ID, UserID: author.ID}).Error)
	require.NoError(t, db.Model(post).UpdateColumns(map[string]interface{}{"likes_count": 9, "comments_count": 4}).Error)

	drift, err := repo.Reconcile(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CounterDrift{
		PostID:            post.ID,
		LikesBefore:       9,
		LikesAfter:        1,
		CommentsBefore:    4,
		CommentsAfter:     1,
		CommentLikesFixed: 1,
	}, drift)

	got, err := repo.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.LikesCount)
	assert.Equal(t, 1, got.CommentsCount)

	again, err := repo.Reconcile(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, again.LikesBefore, again.LikesAfter)
	assert.Zero(t, again.CommentLikesFixed)

	_, err = repo.Reconcile(ctx, 9999)
	assert.ErrorIs(t, err, models.ErrPostNotFound)

	ids, err := repo.ListIDs(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint{post.ID}, ids)
}

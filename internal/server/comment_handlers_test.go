package server

import (
	"fmt"
	"net/http"
	"testing"

	"folio/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateComment_Handler(t *testing.T) {
	ts := newTestServer(t)
	author := ts.user(t, "writer")
	reader := ts.user(t, "reader")
	post := ts.createPublished(t, author, "Discuss")
	path := fmt.Sprintf("/api/posts/%d/comments", post.ID)

	status, raw := ts.do(t, http.MethodPost, path, ts.token(t, reader), map[string]any{"content": "First!"})
	require.Equal(t, http.StatusCreated, status, string(raw))
	top := decode[models.Comment](t, raw)
	assert.Equal(t, 0, top.Depth)
	assert.Nil(t, top.ParentID)

	t.Run("reply", func(t *testing.T) {
		status, raw := ts.do(t, http.MethodPost, path, ts.token(t, author),
			map[string]any{"content": "Thanks", "parent_id": top.ID})
		require.Equal(t, http.StatusCreated, status, string(raw))
		reply := decode[models.Comment](t, raw)
		assert.Equal(t, 1, reply.Depth)
		require.NotNil(t, reply.ParentID)
		assert.Equal(t, top.ID, *reply.ParentID)

		status, _ = ts.do(t, http.MethodPost, path, ts.token(t, reader),
			map[string]any{"content": "Too deep", "parent_id": reply.ID})
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("idempotency key", func(t *testing.T) {
		body := map[string]any{"content": "Sent twice"}
		status, raw := ts.do(t, http.MethodPost, path, ts.token(t, reader), body, "Idempotency-Key", "retry-1")
		require.Equal(t, http.StatusCreated, status, string(raw))
		first := decode[models.Comment](t, raw)

		status, raw = ts.do(t, http.MethodPost, path, ts.token(t, reader), body, "Idempotency-Key", "retry-1")
		require.Equal(t, http.StatusCreated, status, string(raw))
		assert.Equal(t, first.ID, decode[models.Comment](t, raw).ID)
	})

	t.Run("empty content", func(t *testing.T) {
		status, _ := ts.do(t, http.MethodPost, path, ts.token(t, reader), map[string]any{"content": "   "})
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("anonymous", func(t *testing.T) {
		status, _ := ts.do(t, http.MethodPost, path, "", map[string]any{"content": "hi"})
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	// first, reply, and the deduplicated comment
	var stored models.Post
	require.NoError(t, ts.db.First(&stored, post.ID).Error)
	assert.Equal(t, 3, stored.CommentsCount)
}

func TestCreateComment_PendingPost(t *testing.T) {
	ts := newTestServer(t)
	author := ts.user(t, "writer")
	status, raw := ts.do(t, http.MethodPost, "/api/posts", ts.token(t, author), newPostBody("Unapproved"))
	require.Equal(t, http.StatusCreated, status)
	post := decode[models.Post](t, raw)

	status, _ = ts.do(t, http.MethodPost, fmt.Sprintf("/api/posts/%d/comments", post.ID), ts.token(t, author),
		map[string]any{"content": "Talking to myself"})
	assert.Equal(t, http.StatusConflict, status)
}

func TestCommentThread_Handlers(t *testing.T) {
	ts := newTestServer(t)
	author := ts.user(t, "writer")
	reader := ts.user(t, "reader")
	post := ts.createPublished(t, author, "Threads")
	path := fmt.Sprintf("/api/posts/%d/comments", post.ID)

	status, raw := ts.do(t, http.MethodPost, path, ts.token(t, reader), map[string]any{"content": "Question?"})
	require.Equal(t, http.StatusCreated, status)
	question := decode[models.Comment](t, raw)

	status, raw = ts.do(t, http.MethodPost, path, ts.token(t, author),
		map[string]any{"content": "Answer.", "parent_id": question.ID})
	require.Equal(t, http.StatusCreated, status)
	answer := decode[models.Comment](t, raw)

	status, raw = ts.do(t, http.MethodPost, fmt.Sprintf("/api/comments/%d/like", answer.ID), ts.token(t, reader), nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	assert.True(t, decode[models.LikeResult](t, raw).IsLiked)

	status, raw = ts.do(t, http.MethodGet, path, ts.token(t, reader), nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	page := decode[models.CommentPage](t, raw)
	assert.Equal(t, int64(1), page.Total)
	require.Len(t, page.Comments, 1)
	require.Len(t, page.Comments[0].ReplyComments, 1)
	assert.Equal(t, answer.ID, page.Comments[0].ReplyComments[0].ID)
	assert.True(t, page.Comments[0].ReplyComments[0].Liked)

	status, raw = ts.do(t, http.MethodPut, fmt.Sprintf("/api/comments/%d", answer.ID), ts.token(t, author),
		map[string]any{"content": "Better answer."})
	require.Equal(t, http.StatusOK, status, string(raw))
	edited := decode[models.Comment](t, raw)
	assert.True(t, edited.IsEdited)
	assert.Equal(t, "Better answer.", edited.Content)

	status, _ = ts.do(t, http.MethodPut, fmt.Sprintf("/api/comments/%d", answer.ID), ts.token(t, reader),
		map[string]any{"content": "Not mine"})
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = ts.do(t, http.MethodDelete, fmt.Sprintf("/api/comments/%d", answer.ID), ts.token(t, author), nil)
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = ts.do(t, http.MethodDelete, fmt.Sprintf("/api/comments/%d", answer.ID), ts.token(t, author), nil)
	assert.Equal(t, http.StatusNotFound, status)

	// The tombstone stays referenced by its parent but is not rendered.
	status, raw = ts.do(t, http.MethodGet, path, "", nil)
	require.Equal(t, http.StatusOK, status)
	page = decode[models.CommentPage](t, raw)
	require.Len(t, page.Comments, 1)
	assert.Equal(t, []uint{answer.ID}, page.Comments[0].Replies)
	assert.Empty(t, page.Comments[0].ReplyComments)
}

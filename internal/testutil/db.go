// Package testutil provides shared fixtures for backend tests.
package testutil

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"folio/internal/config"
	"folio/internal/database"
	"folio/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var dbSeq atomic.Int64

// NewTestDB opens a private in-memory SQLite database with the full schema.
// Each call gets its own database, closed when the test ends.
func NewTestDB(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	cfg := &config.Config{
		Env:      "test",
		DBDriver: "sqlite",
		DBPath:   fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, dbSeq.Add(1)),
	}
	db, err := database.ConnectWithOptions(cfg, database.ConnectOptions{ApplySchema: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

// CreateUser inserts an active user with the given role.
func CreateUser(t testing.TB, db *gorm.DB, username string, role models.Role) *models.User {
	t.Helper()
	user := &models.User{Username: username, Role: role, IsActive: true}
	require.NoError(t, db.Create(user).Error)
	return user
}

// CreatePost inserts a post authored by authorID in the given status.
func CreatePost(t testing.TB, db *gorm.DB, authorID uint, title string, status models.PostStatus) *models.Post {
	t.Helper()
	now := time.Now().UTC()
	post := models.NewPost(authorID, models.PostDraft{
		Title:    title,
		Body:     strings.Repeat("Body text for "+title+". ", 5),
		Category: models.CategoryTechnology,
	}, now)
	if status == models.PostStatusPublished {
		require.NoError(t, post.Approve(now))
	} else if status == models.PostStatusRejected {
		require.NoError(t, post.Reject("needs work"))
	}
	require.NoError(t, db.Omit("Author").Create(post).Error)
	return post
}

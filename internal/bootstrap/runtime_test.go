package bootstrap

import (
	"context"
	"fmt"
	"testing"

	"folio/internal/config"
	"folio/internal/database"
	"folio/internal/models"
	"folio/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureDevAdmin(t *testing.T) {
	ctx := context.Background()

	t.Run("promotes in development", func(t *testing.T) {
		db := testutil.NewTestDB(t)
		existing := testutil.CreateUser(t, db, "root", models.RoleUser)

		cfg := &config.Config{Env: "development", DevAdminUsername: " root "}
		require.NoError(t, ensureDevAdmin(ctx, cfg, db))

		var u models.User
		require.NoError(t, db.First(&u, existing.ID).Error)
		assert.Equal(t, models.RoleAdmin, u.Role)
	})

	t.Run("creates when missing", func(t *testing.T) {
		db := testutil.NewTestDB(t)
		cfg := &config.Config{Env: "development", DevAdminUsername: "root"}
		require.NoError(t, ensureDevAdmin(ctx, cfg, db))

		var u models.User
		require.NoError(t, db.Where("username = ?", "root").First(&u).Error)
		assert.Equal(t, models.RoleAdmin, u.Role)
		assert.True(t, u.IsActive)
	})

	t.Run("ignored outside development", func(t *testing.T) {
		db := testutil.NewTestDB(t)
		cfg := &config.Config{Env: "production", DevAdminUsername: "root"}
		require.NoError(t, ensureDevAdmin(ctx, cfg, db))

		var n int64
		require.NoError(t, db.Model(&models.User{}).Count(&n).Error)
		assert.Zero(t, n)
	})
}

func TestInitRuntime_SeedsDemoOnce(t *testing.T) {
	cfg := &config.Config{
		Env:      "test",
		DBDriver: "sqlite",
		DBPath:   fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
	}

	db, rdb, err := InitRuntime(cfg, Options{SeedDemo: true, SkipRedis: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	assert.Nil(t, rdb)

	var first int64
	require.NoError(t, db.Model(&models.Post{}).Count(&first).Error)
	assert.Equal(t, int64(4), first)

	// the shared in-memory database outlives the second connection
	again, _, err := InitRuntime(cfg, Options{SeedDemo: true, SkipRedis: true})
	require.NoError(t, err)
	require.NoError(t, database.Close(again))

	var second int64
	require.NoError(t, db.Model(&models.Post{}).Count(&second).Error)
	assert.Equal(t, first, second)
}

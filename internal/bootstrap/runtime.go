// Package bootstrap wires the process-level dependencies shared by the
// server and the command line tools.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"folio/internal/cache"
	"folio/internal/config"
	"folio/internal/database"
	"folio/internal/middleware"
	"folio/internal/models"
	"folio/internal/repository"
	"folio/internal/seed"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// SeedDemo applies the bundled demo fixtures when the database has no posts.
	SeedDemo bool
	// SkipRedis leaves the Redis client nil without trying to connect.
	SkipRedis bool
}

// InitRuntime connects to the database and, unless skipped, Redis. Redis is
// optional: a failed connection is logged and a nil client returned.
func InitRuntime(cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	ctx := context.Background()

	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	var rdb *redis.Client
	if !opts.SkipRedis {
		rdb, err = cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			middleware.Logger.Warn("Redis unavailable, continuing without it", slog.String("error", err.Error()))
			rdb = nil
		}
	}

	if err := ensureDevAdmin(ctx, cfg, db); err != nil {
		return nil, nil, fmt.Errorf("failed to bootstrap development admin: %w", err)
	}

	if opts.SeedDemo {
		if err := seedDemoIfEmpty(ctx, db); err != nil {
			return nil, nil, fmt.Errorf("failed to seed demo data: %w", err)
		}
	}

	return db, rdb, nil
}

// ensureDevAdmin makes cfg.DevAdminUsername an active admin. It only runs in
// development.
func ensureDevAdmin(ctx context.Context, cfg *config.Config, db *gorm.DB) error {
	if cfg == nil || db == nil {
		return nil
	}
	username := strings.TrimSpace(cfg.DevAdminUsername)
	if !strings.EqualFold(cfg.Env, "development") || username == "" {
		return nil
	}

	u, err := seed.EnsureUser(ctx, repository.NewUserRepository(db), username, models.RoleAdmin)
	if err != nil {
		return err
	}
	middleware.Logger.Info("Development admin ensured",
		slog.String("username", u.Username),
		slog.Uint64("user_id", uint64(u.ID)),
	)
	return nil
}

func seedDemoIfEmpty(ctx context.Context, db *gorm.DB) error {
	var posts int64
	if err := db.WithContext(ctx).Model(&models.Post{}).Count(&posts).Error; err != nil {
		return err
	}
	if posts > 0 {
		return nil
	}
	fx, err := seed.DemoFixtures()
	if err != nil {
		return err
	}
	_, err = seed.NewSeeder(db).ApplyFixtures(ctx, fx)
	return err
}

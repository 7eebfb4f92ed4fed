package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"folio/internal/config"
	"folio/internal/middleware"

	"gorm.io/gorm"
)

// Schema modes. Hybrid runs the SQL migrations and, outside production-like
// environments, AutoMigrate on top.
const (
	SchemaModeHybrid = "hybrid"
	SchemaModeSQL    = "sql"
	SchemaModeAuto   = "auto"
)

// SchemaPlan is what ApplySchema does for one configuration.
type SchemaPlan struct {
	Mode    string
	RunSQL  bool
	RunAuto bool
	// Destructive is set when AutoMigrate was explicitly allowed in a
	// production-like environment.
	Destructive bool
}

// SchemaStatus is a SchemaPlan plus the migration history it would act on.
type SchemaStatus struct {
	SchemaPlan
	Environment string
	Applied     []AppliedMigration
	Pending     []Migration
}

// PlanSchema resolves DB_SCHEMA_MODE for the environment and driver. SQLite
// always uses AutoMigrate because the embedded migrations are PostgreSQL DDL.
func PlanSchema(cfg *config.Config) (SchemaPlan, error) {
	if driverName(cfg) == "sqlite" {
		return SchemaPlan{Mode: SchemaModeAuto, RunAuto: true}, nil
	}

	prodLike := false
	switch strings.ToLower(strings.TrimSpace(cfg.Env)) {
	case "production", "prod", "staging", "stage":
		prodLike = true
	}

	plan := SchemaPlan{Mode: strings.ToLower(strings.TrimSpace(cfg.DBSchemaMode))}
	if plan.Mode == "" {
		plan.Mode = SchemaModeHybrid
	}
	switch plan.Mode {
	case SchemaModeSQL:
		plan.RunSQL = true
	case SchemaModeHybrid:
		plan.RunSQL = true
		plan.RunAuto = !prodLike
	case SchemaModeAuto:
		if prodLike && !cfg.DBAutoMigrateAllowDestructive {
			return SchemaPlan{}, fmt.Errorf("refusing DB_SCHEMA_MODE=auto in %q without DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE=true", cfg.Env)
		}
		plan.RunAuto = true
		plan.Destructive = prodLike
	default:
		return SchemaPlan{}, fmt.Errorf("unsupported DB_SCHEMA_MODE %q", plan.Mode)
	}
	return plan, nil
}

// ApplySchema brings the schema up to date following PlanSchema.
func ApplySchema(ctx context.Context, db *gorm.DB, cfg *config.Config) error {
	plan, err := PlanSchema(cfg)
	if err != nil {
		return err
	}

	if plan.RunSQL {
		n, err := NewMigrator(db, Migrations()).Up(ctx)
		if err != nil {
			return fmt.Errorf("run sql migrations: %w", err)
		}
		if n > 0 {
			middleware.Logger.InfoContext(ctx, "SQL migrations applied", slog.Int("count", n))
		}
	}

	if plan.RunAuto {
		if plan.Destructive {
			middleware.Logger.WarnContext(ctx, "AutoMigrate is running in a production-like environment", slog.String("env", cfg.Env))
		}
		if err := db.WithContext(ctx).AutoMigrate(PersistentModels()...); err != nil {
			return fmt.Errorf("auto-migrate: %w", err)
		}
	}
	return nil
}

// GetSchemaStatus reports the plan for cfg with applied and pending SQL
// migrations.
func GetSchemaStatus(ctx context.Context, db *gorm.DB, cfg *config.Config) (*SchemaStatus, error) {
	plan, err := PlanSchema(cfg)
	if err != nil {
		return nil, err
	}
	status := &SchemaStatus{SchemaPlan: plan, Environment: cfg.Env}
	if !plan.RunSQL {
		return status, nil
	}

	set := Migrations()
	status.Applied, err = NewMigrator(db, set).Applied(ctx)
	if err != nil {
		return nil, err
	}
	status.Pending = set.Pending(status.Applied)
	return status, nil
}

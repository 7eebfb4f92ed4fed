package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"folio/internal/middleware"

	"gorm.io/gorm"
)

// AppliedMigration is one row of the schema_migrations history.
type AppliedMigration struct {
	Version   int       `gorm:"primaryKey;autoIncrement:false"`
	Name      string    `gorm:"size:255;not null"`
	Checksum  string    `gorm:"size:64;not null"`
	AppliedAt time.Time `gorm:"not null"`
}

func (AppliedMigration) TableName() string {
	return "schema_migrations"
}

const createSchemaMigrations = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version BIGINT PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	checksum VARCHAR(64) NOT NULL DEFAULT '',
	applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// Migrator runs a MigrationSet against a database and keeps the history in
// schema_migrations.
type Migrator struct {
	db  *gorm.DB
	set MigrationSet
	now func() time.Time
}

// NewMigrator returns a Migrator for set.
func NewMigrator(db *gorm.DB, set MigrationSet) *Migrator {
	return &Migrator{
		db:  db,
		set: set,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Applied returns the recorded history in version order. A database that
// never ran a migration has no history.
func (m *Migrator) Applied(ctx context.Context) ([]AppliedMigration, error) {
	db := m.db.WithContext(ctx)
	if !db.Migrator().HasTable(&AppliedMigration{}) {
		return nil, nil
	}
	var rows []AppliedMigration
	if err := db.Order("version").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	return rows, nil
}

// Up applies every pending migration, each in its own transaction, and
// returns how many ran. It refuses to start when the recorded history does
// not belong to this set.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	if err := m.db.WithContext(ctx).Exec(createSchemaMigrations).Error; err != nil {
		return 0, fmt.Errorf("create schema_migrations: %w", err)
	}
	applied, err := m.Applied(ctx)
	if err != nil {
		return 0, err
	}
	if err := m.verify(applied); err != nil {
		return 0, err
	}

	pending := m.set.Pending(applied)
	for i, mig := range pending {
		err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Exec(mig.Up).Error; err != nil {
				return fmt.Errorf("apply %s: %w", mig, err)
			}
			row := AppliedMigration{Version: mig.Version, Name: mig.Name, Checksum: mig.Checksum, AppliedAt: m.now()}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("record %s: %w", mig, err)
			}
			return nil
		})
		if err != nil {
			return i, err
		}
		middleware.Logger.InfoContext(ctx, "Migration applied", slog.String("migration", mig.String()))
	}
	return len(pending), nil
}

// Down reverts version. Only the most recently applied migration can be
// reverted, so later scripts never run on a schema they were not written for.
func (m *Migrator) Down(ctx context.Context, version int) error {
	mig, ok := m.set.Find(version)
	if !ok {
		return fmt.Errorf("migration %06d is not part of this build", version)
	}
	applied, err := m.Applied(ctx)
	if err != nil {
		return err
	}
	if len(applied) == 0 || applied[len(applied)-1].Version != version {
		return fmt.Errorf("migration %s is not the latest applied migration", mig)
	}

	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(mig.Down).Error; err != nil {
			return fmt.Errorf("revert %s: %w", mig, err)
		}
		return tx.Delete(&AppliedMigration{}, "version = ?", version).Error
	})
	if err != nil {
		return err
	}
	middleware.Logger.InfoContext(ctx, "Migration reverted", slog.String("migration", mig.String()))
	return nil
}

// verify checks that every recorded version exists in the set with the same
// up script it was applied with.
func (m *Migrator) verify(applied []AppliedMigration) error {
	var unknown, edited []string
	for _, a := range applied {
		mig, ok := m.set.Find(a.Version)
		switch {
		case !ok:
			unknown = append(unknown, fmt.Sprintf("%06d", a.Version))
		case a.Checksum != "" && a.Checksum != mig.Checksum:
			edited = append(edited, mig.String())
		}
	}

	var problems []string
	if len(unknown) > 0 {
		problems = append(problems, "unknown versions "+strings.Join(unknown, ", "))
	}
	if len(edited) > 0 {
		problems = append(problems, "edited after apply "+strings.Join(edited, ", "))
	}
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("schema_migrations does not match this build: %s", strings.Join(problems, "; "))
}

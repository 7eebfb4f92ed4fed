package database

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
)

// Migration is one versioned pair of SQL scripts. Checksum is the SHA-256 of
// Up and is recorded when the migration is applied.
type Migration struct {
	Version  int
	Name     string
	Up       string
	Down     string
	Checksum string
}

func (m Migration) String() string {
	return fmt.Sprintf("%06d_%s", m.Version, m.Name)
}

// MigrationSet is a list of migrations ordered by version.
type MigrationSet []Migration

//go:embed migrations/*.sql
var migrationFiles embed.FS

var migrationFileName = regexp.MustCompile(`^(\d{6})_([a-z0-9_]+)\.(up|down)\.sql$`)

var embeddedMigrations = mustLoadMigrations(migrationFiles, "migrations")

// Migrations returns the migrations compiled into the binary.
func Migrations() MigrationSet {
	return embeddedMigrations
}

func mustLoadMigrations(fsys fs.FS, dir string) MigrationSet {
	set, err := LoadMigrations(fsys, dir)
	if err != nil {
		panic(fmt.Sprintf("embedded migrations: %v", err))
	}
	return set
}

// LoadMigrations reads NNNNNN_name.up.sql and NNNNNN_name.down.sql files from
// dir. Every version needs both scripts under the same name.
func LoadMigrations(fsys fs.FS, dir string) (MigrationSet, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	byVersion := make(map[int]*Migration)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := migrationFileName.FindStringSubmatch(entry.Name())
		if match == nil {
			return nil, fmt.Errorf("unexpected file %s in %s", entry.Name(), dir)
		}
		version, err := strconv.Atoi(match[1])
		if err != nil {
			return nil, fmt.Errorf("version of %s: %w", entry.Name(), err)
		}
		body, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}

		m, ok := byVersion[version]
		if !ok {
			m = &Migration{Version: version, Name: match[2]}
			byVersion[version] = m
		} else if m.Name != match[2] {
			return nil, fmt.Errorf("version %06d is claimed by %s and %s", version, m.Name, match[2])
		}
		if match[3] == "up" {
			m.Up = string(body)
		} else {
			m.Down = string(body)
		}
	}

	set := make(MigrationSet, 0, len(byVersion))
	for _, m := range byVersion {
		if m.Up == "" || m.Down == "" {
			return nil, fmt.Errorf("migration %s needs both an up and a down script", m)
		}
		sum := sha256.Sum256([]byte(m.Up))
		m.Checksum = hex.EncodeToString(sum[:])
		set = append(set, *m)
	}
	sort.Slice(set, func(i, j int) bool { return set[i].Version < set[j].Version })
	return set, nil
}

// Find returns the migration with the given version.
func (s MigrationSet) Find(version int) (Migration, bool) {
	i := sort.Search(len(s), func(i int) bool { return s[i].Version >= version })
	if i < len(s) && s[i].Version == version {
		return s[i], true
	}
	return Migration{}, false
}

// Pending returns the migrations missing from applied, in version order.
func (s MigrationSet) Pending(applied []AppliedMigration) []Migration {
	done := make(map[int]bool, len(applied))
	for _, a := range applied {
		done[a.Version] = true
	}
	var pending []Migration
	for _, m := range s {
		if !done[m.Version] {
			pending = append(pending, m)
		}
	}
	return pending
}

// Package repository implements the data access layer for posts, comments and users.
package repository

import (
	"context"
	"errors"
	"strings"

	"folio/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store groups the repositories that share one connection or transaction.
type Store struct {
	db       *gorm.DB
	Posts    PostRepository
	Comments CommentRepository
	Users    UserRepository
}

// NewStore wires every repository onto db.
func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:       db,
		Posts:    NewPostRepository(db),
		Comments: NewCommentRepository(db),
		Users:    NewUserRepository(db),
	}
}

// DB returns the handle the store was built on.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Tx runs fn against a store bound to a single transaction. The transaction
// commits when fn returns nil and rolls back otherwise.
func (s *Store) Tx(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}

// Active excludes soft-deleted rows.
func Active(db *gorm.DB) *gorm.DB {
	return db.Where("is_deleted = ?", false)
}

// PubliclyVisible restricts posts to what anonymous readers may see.
func PubliclyVisible(db *gorm.DB) *gorm.DB {
	return Active(db).Where("status = ?", models.PostStatusPublished)
}

// Paginate applies a 1-based page window.
func Paginate(page, limit int) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if page < 1 {
			page = 1
		}
		return db.Offset((page - 1) * limit).Limit(limit)
	}
}

// forUpdate takes a row lock where the dialect supports it. SQLite serialises
// writers on its own.
func forUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector.Name() == "postgres" {
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return db
}

// isUniqueViolation reports whether err is a unique constraint violation.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func notFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}

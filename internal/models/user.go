// Package models contains data structures for the application's domain models.
package models

import "time"

// Role is the privilege level of a principal.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is the persisted account record backing a principal. Credentials live
// with the identity provider, not here.
type User struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	Username      string     `gorm:"uniqueIndex;not null;size:50" json:"username"`
	Role          Role       `gorm:"type:varchar(10);not null;default:'user'" json:"role"`
	IsActive      bool       `gorm:"not null" json:"is_active"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Principal is the already-authenticated actor of an operation.
type Principal struct {
	ID       uint
	Role     Role
	IsActive bool
}

// PrincipalFromUser builds the principal view of a user record.
func PrincipalFromUser(u *User) Principal {
	return Principal{ID: u.ID, Role: u.Role, IsActive: u.IsActive}
}

// IsAdmin reports whether the principal holds moderator privileges.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// IsAnonymous reports whether no principal is attached.
func (p Principal) IsAnonymous() bool {
	return p.ID == 0
}

// CanModify reports whether p owns the record authored by authorID or is an admin.
func (p Principal) CanModify(authorID uint) bool {
	return p.ID == authorID || p.IsAdmin()
}

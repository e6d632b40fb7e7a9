package types

import (
	"database/sql/driver"
	"time"

	"github.com/lib/pq"
)

// Permission is a named capability checked by the authorization middleware.
type Permission string

// Permissions recognized by the system.
const (
	PermissionCreateBooks  Permission = "create_books"
	PermissionModifyBooks  Permission = "modify_books"
	PermissionDisableBooks Permission = "disable_books"
	PermissionModifyUsers  Permission = "modify_users"
	PermissionDisableUsers Permission = "disable_users"
)

// PermissionList is the set of permissions held by a user. It is stored
// as a Postgres text[] column.
type PermissionList []Permission

// Has reports whether the list contains the given permission.
func (p PermissionList) Has(perm Permission) bool {
	for _, held := range p {
		if held == perm {
			return true
		}
	}
	return false
}

// HasAll reports whether the list contains every given permission.
func (p PermissionList) HasAll(perms ...Permission) bool {
	for _, perm := range perms {
		if !p.Has(perm) {
			return false
		}
	}
	return true
}

// Scan implements sql.Scanner for a text[] column.
func (p *PermissionList) Scan(src any) error {
	var arr pq.StringArray
	if err := arr.Scan(src); err != nil {
		return err
	}
	perms := make(PermissionList, len(arr))
	for i, s := range arr {
		perms[i] = Permission(s)
	}
	*p = perms
	return nil
}

// Value implements driver.Valuer for a text[] column.
func (p PermissionList) Value() (driver.Value, error) {
	arr := make(pq.StringArray, len(p))
	for i, perm := range p {
		arr[i] = string(perm)
	}
	return arr.Value()
}

// User represents an account in the system.
// It contains identity, permission, and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Email is the user's email address. It is unique among all users
	// and doubles as the login name.
	Email string `json:"email" db:"email"`

	// Name is the user's display or full name.
	Name string `json:"name" db:"name"`

	// Permissions is the set of named capabilities granted to the user.
	// New accounts start with an empty set.
	Permissions PermissionList `json:"permissions" db:"permissions"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// IsActive is cleared instead of deleting the record (soft delete).
	// Inactive users cannot log in.
	IsActive bool `json:"isActive" db:"is_active"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Package repository persists users and refresh token chains in MySQL.
// Sentinel errors let the service layer tell storage outcomes apart without
// inspecting driver errors.
package repository

import "errors"

var (
	// ErrNotFound is returned when no row matches the lookup.
	ErrNotFound = errors.New("not found")

	// ErrEmailExists is returned when a user with the same email exists.
	ErrEmailExists = errors.New("email already exists")

	// ErrNotActive is returned by a rotation whose predecessor was already
	// revoked or rotated by a concurrent request.
	ErrNotActive = errors.New("refresh token is not active")
)

// mysqlDuplicateEntry is MySQL error ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

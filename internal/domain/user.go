package domain

import "time"

// User is the account record owned by user management. Authentication only reads it,
// apart from password changes.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

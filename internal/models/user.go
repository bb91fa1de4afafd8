package models

import "time"

// Role grants access to user or administrator operations.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// User represents a user in the system
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"` // Not serialized
	FirstName    string    `json:"firstname"`
	LastName     string    `json:"lastname"`
	Role         Role      `json:"role"`
	Enabled      bool      `json:"enabled"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HolderName is the name embossed on the user's cards.
func (u User) HolderName() string {
	return u.FirstName + " " + u.LastName
}

// Principal is the authenticated caller of an operation.
type Principal struct {
	UserID   int64
	Username string
	Role     Role
}

// IsAdmin reports whether the caller holds the administrator role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

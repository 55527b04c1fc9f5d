package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is the portal role attached to an account
type Role string

const (
	RoleAdmin     Role = "Admin"
	RoleProfessor Role = "Professor"
	RoleStudent   Role = "Student"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleProfessor, RoleStudent:
		return true
	}
	return false
}

// User represents a portal account
type User struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// NewUser creates a new user with a generated UUID
func NewUser(name, email string, role Role) *User {
	return &User{
		ID:        uuid.New(),
		Name:      name,
		Email:     email,
		Role:      role,
		CreatedAt: time.Now(),
	}
}

// DisplayName returns the name shown next to messages, falling back to the anonymous label
func (u *User) DisplayName() string {
	if u == nil || u.Name == "" {
		return AnonymousSender
	}
	return u.Name
}

// HasRole returns true if the user holds one of the given roles
func (u *User) HasRole(roles ...Role) bool {
	if u == nil {
		return false
	}
	for _, r := range roles {
		if u.Role == r {
			return true
		}
	}
	return false
}

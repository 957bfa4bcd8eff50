package user

import (
	"time"

	"github.com/google/uuid"
)

// Role is the account-level role, distinct from per-event permission
// grants. Admins may list all accounts; everything event-scoped is decided
// by event grants alone.
type Role string

const (
	RoleAdmin Role = "Admin"
	RoleUser  Role = "User"
)

type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	Active       bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
}

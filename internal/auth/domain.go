package auth

import (
	"time"

	"github.com/ductline/ductline/internal/rbac"
)

// User represents an authenticated user account.
type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	Role         rbac.Role
	Status       rbac.Status
	CreatedAt    time.Time
}

// RegisterInput is the self-registration payload.
type RegisterInput struct {
	Email        string
	Password     string
	Name         string
	Phone        string
	Position     string
	SectorID     *int64
	DepartmentID *int64
}

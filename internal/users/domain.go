package users

import (
	"fmt"
	"time"

	"github.com/ductline/ductline/internal/rbac"
	"github.com/ductline/ductline/internal/shared"
)

var (
	// ErrHasAssociatedRecords blocks deleting a user still referenced by BOQs or committees.
	ErrHasAssociatedRecords = fmt.Errorf("users: user has associated records: %w", shared.ErrConflict)
	// ErrEmailTaken indicates the email is already registered.
	ErrEmailTaken = fmt.Errorf("users: email already registered: %w", shared.ErrConflict)
	// ErrInvalidOrg indicates a department that does not belong to the chosen sector.
	ErrInvalidOrg = fmt.Errorf("users: department does not belong to sector: %w", shared.ErrValidation)
	// ErrWrongPassword indicates the current password did not match.
	ErrWrongPassword = fmt.Errorf("users: current password is incorrect: %w", shared.ErrValidation)
)

// User represents a user account.
type User struct {
	ID             int64
	Email          string
	Name           string
	Phone          string
	Position       string
	Role           rbac.Role
	Status         rbac.Status
	SectorID       *int64
	DepartmentID   *int64
	SectorName     string
	DepartmentName string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Principal returns the policy view of the user.
func (u User) Principal() *rbac.User {
	return &rbac.User{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		Role:         u.Role,
		Status:       u.Status,
		SectorID:     u.SectorID,
		DepartmentID: u.DepartmentID,
	}
}

// Sector groups departments.
type Sector struct {
	ID   int64
	Name string
}

// Department belongs to one sector.
type Department struct {
	ID       int64
	SectorID int64
	Name     string
}

// ListFilters narrows the admin user listing.
type ListFilters struct {
	Role         rbac.Role
	Status       rbac.Status
	SectorID     int64
	DepartmentID int64
	Search       string
}

// CreateInput is the admin payload for a new account.
type CreateInput struct {
	Email        string
	Password     string
	Name         string
	Phone        string
	Position     string
	Role         rbac.Role
	Status       rbac.Status
	SectorID     *int64
	DepartmentID *int64
}

// AdminUpdateInput changes role, status and organisation.
type AdminUpdateInput struct {
	Name         string
	Role         rbac.Role
	Status       rbac.Status
	SectorID     *int64
	DepartmentID *int64
}

// ProfileInput holds the fields a user may change on their own account.
type ProfileInput struct {
	Name     string
	Phone    string
	Position string
}

// NewUser is the persisted shape of a new account.
type NewUser struct {
	Email        string
	PasswordHash string
	Name         string
	Phone        string
	Position     string
	Role         rbac.Role
	Status       rbac.Status
	SectorID     *int64
	DepartmentID *int64
}

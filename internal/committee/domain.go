// Package committee manages the review committee attached to a BOQ.
package committee

import (
	"fmt"
	"time"

	"github.com/ductline/ductline/internal/shared"
)

// Role is a member's function on the committee.
type Role string

const (
	RoleChair     Role = "chair"
	RoleMember    Role = "member"
	RoleSecretary Role = "secretary"
)

// Roles lists committee roles in display order.
func Roles() []Role {
	return []Role{RoleChair, RoleMember, RoleSecretary}
}

// Valid reports whether r is a known committee role.
func (r Role) Valid() bool {
	return r == RoleChair || r == RoleMember || r == RoleSecretary
}

var (
	// ErrAlreadyMember indicates the user already sits on the committee.
	ErrAlreadyMember = fmt.Errorf("committee: user already assigned: %w", shared.ErrConflict)
	// ErrChairTaken indicates the committee already has a chair.
	ErrChairTaken = fmt.Errorf("committee: chair already assigned: %w", shared.ErrConflict)
)

// Member is one committee seat.
type Member struct {
	ID         int64
	BOQID      int64
	UserID     int64
	UserName   string
	UserEmail  string
	Role       Role
	AssignedBy int64
	CreatedAt  time.Time
}

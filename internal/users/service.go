package users

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/ductline/ductline/internal/rbac"
	"github.com/ductline/ductline/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context, filters ListFilters) ([]User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	CreateUser(ctx context.Context, u NewUser) (int64, error)
	UpdateAdmin(ctx context.Context, id int64, in AdminUpdateInput) error
	UpdateProfile(ctx context.Context, id int64, in ProfileInput) error
	PasswordHash(ctx context.Context, id int64) (string, error)
	SetPasswordHash(ctx context.Context, id int64, hash string) error
	CountAssociations(ctx context.Context, id int64) (int, error)
	DeleteUser(ctx context.Context, id int64) error
	ListSectors(ctx context.Context) ([]Sector, error)
	ListDepartments(ctx context.Context) ([]Department, error)
	DepartmentSector(ctx context.Context, departmentID int64) (int64, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles user business logic.
type Service struct {
	repo   RepositoryPort
	authz  rbac.Authorizer
	audit  AuditPort
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, authz rbac.Authorizer, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, authz: authz, audit: audit, logger: logger}
}

// ListUsers returns users visible to an administrator.
func (s *Service) ListUsers(ctx context.Context, actor *rbac.User, filters ListFilters) ([]User, error) {
	if err := s.authz.Require(actor, rbac.ActionRead, rbac.ResourceUser, nil); err != nil {
		return nil, err
	}
	return s.repo.ListUsers(ctx, filters)
}

// GetUser returns one account for administration.
func (s *Service) GetUser(ctx context.Context, actor *rbac.User, id int64) (User, error) {
	if err := s.authz.Require(actor, rbac.ActionRead, rbac.ResourceUser, nil); err != nil {
		return User{}, err
	}
	return s.repo.GetUser(ctx, id)
}

// CreateUser provisions an account on behalf of an administrator.
func (s *Service) CreateUser(ctx context.Context, actor *rbac.User, in CreateInput) (User, error) {
	if err := s.authz.Require(actor, rbac.ActionCreate, rbac.ResourceUser, nil); err != nil {
		return User{}, err
	}
	if in.Role == "" {
		in.Role = rbac.RoleStaff
	}
	if in.Status == "" {
		in.Status = rbac.StatusActive
	}
	id, err := s.Provision(ctx, in)
	if err != nil {
		return User{}, err
	}
	s.recordAudit(ctx, actor.ID, "user.create", id, map[string]any{"email": in.Email, "role": in.Role})
	return s.repo.GetUser(ctx, id)
}

// Register creates a self-service account that waits for administrator activation.
func (s *Service) Register(ctx context.Context, in CreateInput) (User, error) {
	in.Role = rbac.RoleStaff
	in.Status = rbac.StatusPending
	id, err := s.Provision(ctx, in)
	if err != nil {
		return User{}, err
	}
	s.recordAudit(ctx, id, "user.register", id, map[string]any{"email": in.Email})
	return s.repo.GetUser(ctx, id)
}

// Provision validates and stores a new account without an authorization check.
// Callers are the registration flow, admin creation and the CLI bootstrap.
func (s *Service) Provision(ctx context.Context, in CreateInput) (int64, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Email == "" || len(in.Password) < 8 {
		return 0, fmt.Errorf("users: email and an 8 character password are required: %w", shared.ErrValidation)
	}
	if !in.Role.Valid() || !in.Status.Valid() {
		return 0, fmt.Errorf("users: unknown role or status: %w", shared.ErrValidation)
	}
	sectorID, err := s.checkOrg(ctx, in.SectorID, in.DepartmentID)
	if err != nil {
		return 0, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return 0, err
	}
	return s.repo.CreateUser(ctx, NewUser{
		Email:        in.Email,
		PasswordHash: string(hash),
		Name:         strings.TrimSpace(in.Name),
		Phone:        strings.TrimSpace(in.Phone),
		Position:     strings.TrimSpace(in.Position),
		Role:         in.Role,
		Status:       in.Status,
		SectorID:     sectorID,
		DepartmentID: in.DepartmentID,
	})
}

// UpdateUser changes role, status and organisation of an account.
func (s *Service) UpdateUser(ctx context.Context, actor *rbac.User, id int64, in AdminUpdateInput) error {
	if err := s.authz.Require(actor, rbac.ActionUpdate, rbac.ResourceUser, nil); err != nil {
		return err
	}
	if !in.Role.Valid() || !in.Status.Valid() {
		return fmt.Errorf("users: unknown role or status: %w", shared.ErrValidation)
	}
	sectorID, err := s.checkOrg(ctx, in.SectorID, in.DepartmentID)
	if err != nil {
		return err
	}
	in.SectorID = sectorID
	if err := s.repo.UpdateAdmin(ctx, id, in); err != nil {
		return err
	}
	s.recordAudit(ctx, actor.ID, "user.update", id, map[string]any{"role": in.Role, "status": in.Status})
	return nil
}

// DeleteUser removes an account that no BOQ or committee references.
func (s *Service) DeleteUser(ctx context.Context, actor *rbac.User, id int64) error {
	if err := s.authz.Require(actor, rbac.ActionDelete, rbac.ResourceUser, nil); err != nil {
		return err
	}
	if actor.ID == id {
		return fmt.Errorf("users: cannot delete own account: %w", shared.ErrValidation)
	}
	n, err := s.repo.CountAssociations(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return ErrHasAssociatedRecords
	}
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actor.ID, "user.delete", id, nil)
	return nil
}

// Profile returns the actor's own account.
func (s *Service) Profile(ctx context.Context, actor *rbac.User) (User, error) {
	if err := s.authz.Require(actor, rbac.ActionRead, rbac.ResourceProfile, nil); err != nil {
		return User{}, err
	}
	return s.repo.GetUser(ctx, actor.ID)
}

// UpdateProfile changes the actor's own name, phone and position.
func (s *Service) UpdateProfile(ctx context.Context, actor *rbac.User, in ProfileInput) error {
	if err := s.authz.Require(actor, rbac.ActionUpdate, rbac.ResourceProfile, nil); err != nil {
		return err
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return fmt.Errorf("users: name required: %w", shared.ErrValidation)
	}
	return s.repo.UpdateProfile(ctx, actor.ID, ProfileInput{
		Name:     in.Name,
		Phone:    strings.TrimSpace(in.Phone),
		Position: strings.TrimSpace(in.Position),
	})
}

// ChangePassword replaces the actor's password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, actor *rbac.User, current, next string) error {
	if err := s.authz.Require(actor, rbac.ActionUpdate, rbac.ResourceProfile, nil); err != nil {
		return err
	}
	if len(next) < 8 {
		return fmt.Errorf("users: password must be at least 8 characters: %w", shared.ErrValidation)
	}
	hash, err := s.repo.PasswordHash(ctx, actor.ID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(current)) != nil {
		return ErrWrongPassword
	}
	newHash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.repo.SetPasswordHash(ctx, actor.ID, string(newHash)); err != nil {
		return err
	}
	s.recordAudit(ctx, actor.ID, "user.password", actor.ID, nil)
	return nil
}

// Organisation returns sectors and departments for forms.
func (s *Service) Organisation(ctx context.Context) ([]Sector, []Department, error) {
	sectors, err := s.repo.ListSectors(ctx)
	if err != nil {
		return nil, nil, err
	}
	departments, err := s.repo.ListDepartments(ctx)
	if err != nil {
		return nil, nil, err
	}
	return sectors, departments, nil
}

// checkOrg derives the sector from a department and rejects mismatches.
func (s *Service) checkOrg(ctx context.Context, sectorID, departmentID *int64) (*int64, error) {
	if departmentID == nil {
		return sectorID, nil
	}
	owner, err := s.repo.DepartmentSector(ctx, *departmentID)
	if err != nil {
		return nil, fmt.Errorf("users: department %d: %w", *departmentID, shared.ErrValidation)
	}
	if sectorID != nil && *sectorID != owner {
		return nil, ErrInvalidOrg
	}
	return &owner, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, userID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "user", EntityID: fmt.Sprint(userID), Meta: meta}); err != nil {
		s.logger.Warn("audit user", slog.String("action", action), slog.Any("error", err))
	}
}

// Directory lists active accounts for selection lists such as BOQ assignment.
func (s *Service) Directory(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx, ListFilters{Status: rbac.StatusActive})
}

// Emails returns addresses of active users holding role within the given
// sector or department. Nil org filters are ignored.
func (s *Service) Emails(ctx context.Context, role rbac.Role, sectorID, departmentID *int64) ([]string, error) {
	filters := ListFilters{Role: role, Status: rbac.StatusActive}
	if sectorID != nil {
		filters.SectorID = *sectorID
	}
	if departmentID != nil {
		filters.DepartmentID = *departmentID
	}
	list, err := s.repo.ListUsers(ctx, filters)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(list))
	for _, u := range list {
		out = append(out, u.Email)
	}
	return out, nil
}

// Email returns the address of a single user.
func (s *Service) Email(ctx context.Context, id int64) (string, error) {
	u, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return "", err
	}
	return u.Email, nil
}

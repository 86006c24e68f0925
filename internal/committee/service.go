package committee

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/ductline/ductline/internal/boq"
	"github.com/ductline/ductline/internal/rbac"
	"github.com/ductline/ductline/internal/shared"
)

// RepositoryPort describes committee persistence.
type RepositoryPort interface {
	List(ctx context.Context, boqID int64) ([]Member, error)
	Get(ctx context.Context, id int64) (Member, error)
	Insert(ctx context.Context, m Member) (int64, error)
	UpdateRole(ctx context.Context, id int64, role Role) error
	Delete(ctx context.Context, id int64) error
}

// BOQPort loads the BOQ a committee belongs to, enforcing read access.
type BOQPort interface {
	Get(ctx context.Context, actor *rbac.User, id int64) (boq.BOQ, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates committee membership.
type Service struct {
	repo   RepositoryPort
	boqs   BOQPort
	authz  rbac.Authorizer
	audit  AuditPort
	logger *slog.Logger
}

// NewService constructs the committee service.
func NewService(repo RepositoryPort, boqs BOQPort, authz rbac.Authorizer, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, boqs: boqs, authz: authz, audit: audit, logger: logger}
}

// List returns the committee of a readable BOQ.
func (s *Service) List(ctx context.Context, actor *rbac.User, boqID int64) ([]Member, error) {
	if _, err := s.boqs.Get(ctx, actor, boqID); err != nil {
		return nil, err
	}
	if err := s.authz.Require(actor, rbac.ActionRead, rbac.ResourceCommittee, nil); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, boqID)
}

// Assign seats a user on the committee of a BOQ.
func (s *Service) Assign(ctx context.Context, actor *rbac.User, boqID, userID int64, role Role) (Member, error) {
	doc, err := s.boqs.Get(ctx, actor, boqID)
	if err != nil {
		return Member{}, err
	}
	if err := s.authz.Require(actor, rbac.ActionAssignCommittee, rbac.ResourceBOQ, doc.Record()); err != nil {
		return Member{}, err
	}
	if err := s.authz.Require(actor, rbac.ActionUpdate, rbac.ResourceCommittee, nil); err != nil {
		return Member{}, err
	}
	if userID <= 0 {
		return Member{}, fmt.Errorf("committee: user required: %w", shared.ErrValidation)
	}
	if role == "" {
		role = RoleMember
	}
	if !role.Valid() {
		return Member{}, fmt.Errorf("committee: unknown role %q: %w", role, shared.ErrValidation)
	}
	if role == RoleChair {
		if err := s.ensureNoChair(ctx, boqID, 0); err != nil {
			return Member{}, err
		}
	}
	m := Member{BOQID: boqID, UserID: userID, Role: role, AssignedBy: actor.ID}
	id, err := s.repo.Insert(ctx, m)
	if err != nil {
		return Member{}, err
	}
	m.ID = id
	s.record(ctx, actor.ID, "committee.assign", boqID, map[string]any{"user_id": userID, "role": role})
	return m, nil
}

// UpdateRole changes the role of a seat.
func (s *Service) UpdateRole(ctx context.Context, actor *rbac.User, memberID int64, role Role) error {
	if err := s.authz.Require(actor, rbac.ActionUpdate, rbac.ResourceCommittee, nil); err != nil {
		return err
	}
	if !role.Valid() {
		return fmt.Errorf("committee: unknown role %q: %w", role, shared.ErrValidation)
	}
	m, err := s.repo.Get(ctx, memberID)
	if err != nil {
		return err
	}
	if _, err := s.boqs.Get(ctx, actor, m.BOQID); err != nil {
		return err
	}
	if role == RoleChair {
		if err := s.ensureNoChair(ctx, m.BOQID, memberID); err != nil {
			return err
		}
	}
	if err := s.repo.UpdateRole(ctx, memberID, role); err != nil {
		return err
	}
	s.record(ctx, actor.ID, "committee.role", m.BOQID, map[string]any{"member_id": memberID, "role": role})
	return nil
}

// Remove deletes a seat and returns the BOQ it belonged to.
func (s *Service) Remove(ctx context.Context, actor *rbac.User, memberID int64) (int64, error) {
	if err := s.authz.Require(actor, rbac.ActionDelete, rbac.ResourceCommittee, nil); err != nil {
		return 0, err
	}
	m, err := s.repo.Get(ctx, memberID)
	if err != nil {
		return 0, err
	}
	if err := s.repo.Delete(ctx, memberID); err != nil {
		return 0, err
	}
	s.record(ctx, actor.ID, "committee.remove", m.BOQID, map[string]any{"user_id": m.UserID})
	return m.BOQID, nil
}

// Can reports whether actor may perform action on the committee resource.
func (s *Service) Can(actor *rbac.User, action rbac.Action) bool {
	return s.authz.Can(actor, action, rbac.ResourceCommittee, nil)
}

func (s *Service) ensureNoChair(ctx context.Context, boqID, except int64) error {
	members, err := s.repo.List(ctx, boqID)
	if err != nil {
		return err
	}
	for _, m := range members {
		if m.Role == RoleChair && m.ID != except {
			return ErrChairTaken
		}
	}
	return nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, boqID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: boq.ModuleName, EntityID: strconv.FormatInt(boqID, 10), Meta: meta}); err != nil {
		s.logger.Warn("audit committee", slog.String("action", action), slog.Any("error", err))
	}
}

package pricelist

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ductline/ductline/internal/rbac"
	"github.com/ductline/ductline/internal/shared"
)

// RepositoryPort describes catalogue persistence.
type RepositoryPort interface {
	List(ctx context.Context, filters ListFilters) ([]Item, int, error)
	Get(ctx context.Context, id int64) (Item, error)
	Create(ctx context.Context, in ItemInput) (int64, error)
	Update(ctx context.Context, id int64, in ItemInput) error
	Delete(ctx context.Context, id int64) error
	Categories(ctx context.Context) ([]string, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service applies permissions around the catalogue.
type Service struct {
	repo   RepositoryPort
	authz  rbac.Authorizer
	audit  AuditPort
	logger *slog.Logger
}

// NewService constructs the service.
func NewService(repo RepositoryPort, authz rbac.Authorizer, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, authz: authz, audit: audit, logger: logger}
}

// List returns items visible to actor.
func (s *Service) List(ctx context.Context, actor *rbac.User, filters ListFilters) ([]Item, int, error) {
	if err := s.authz.Require(actor, rbac.ActionRead, rbac.ResourcePriceList, nil); err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, filters)
}

// Get returns one item.
func (s *Service) Get(ctx context.Context, actor *rbac.User, id int64) (Item, error) {
	if err := s.authz.Require(actor, rbac.ActionRead, rbac.ResourcePriceList, nil); err != nil {
		return Item{}, err
	}
	return s.repo.Get(ctx, id)
}

// Lookup returns an item without a permission check, for BOQ line prefill
// where the caller has already been authorised on the BOQ.
func (s *Service) Lookup(ctx context.Context, id int64) (Item, error) {
	return s.repo.Get(ctx, id)
}

// Categories lists categories for filters.
func (s *Service) Categories(ctx context.Context) ([]string, error) {
	return s.repo.Categories(ctx)
}

// Create adds an item.
func (s *Service) Create(ctx context.Context, actor *rbac.User, in ItemInput) (int64, error) {
	if err := s.authz.Require(actor, rbac.ActionCreate, rbac.ResourcePriceList, nil); err != nil {
		return 0, err
	}
	in, err := in.Normalize()
	if err != nil {
		return 0, err
	}
	id, err := s.repo.Create(ctx, in)
	if err != nil {
		return 0, err
	}
	s.recordAudit(ctx, actor.ID, "price_list.create", id, map[string]any{"code": in.Code})
	return id, nil
}

// Update changes an item.
func (s *Service) Update(ctx context.Context, actor *rbac.User, id int64, in ItemInput) error {
	if err := s.authz.Require(actor, rbac.ActionUpdate, rbac.ResourcePriceList, nil); err != nil {
		return err
	}
	in, err := in.Normalize()
	if err != nil {
		return err
	}
	if err := s.repo.Update(ctx, id, in); err != nil {
		return err
	}
	s.recordAudit(ctx, actor.ID, "price_list.update", id, map[string]any{
		"code": in.Code, "material_cost": in.MaterialCost.String(), "labor_cost": in.LaborCost.String(),
	})
	return nil
}

// Delete removes an item.
func (s *Service) Delete(ctx context.Context, actor *rbac.User, id int64) error {
	if err := s.authz.Require(actor, rbac.ActionDelete, rbac.ResourcePriceList, nil); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actor.ID, "price_list.delete", id, nil)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "price_list_item", EntityID: fmt.Sprint(id), Meta: meta}); err != nil {
		s.logger.Warn("audit price list", slog.String("action", action), slog.Any("error", err))
	}
}

package boq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ductline/ductline/internal/factor"
	"github.com/ductline/ductline/internal/pricelist"
	"github.com/ductline/ductline/internal/rbac"
	"github.com/ductline/ductline/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (BOQ, error)
	Routes(ctx context.Context, id int64) ([]Route, error)
	List(ctx context.Context, filters ListFilters) ([]BOQ, error)
}

// FactorPort resolves Factor F totals.
type FactorPort interface {
	Totals(ctx context.Context, totalBaseCost decimal.Decimal) (factor.Totals, error)
}

// PricePort looks up catalogue items for line prefill.
type PricePort interface {
	Lookup(ctx context.Context, id int64) (pricelist.Item, error)
}

// ApprovalPort stores the approval trail.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
	List(ctx context.Context, module string, ref uuid.UUID) ([]shared.ApprovalLog, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards create requests against replays.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// EventPublisher delivers workflow events.
type EventPublisher interface {
	Publish(ctx context.Context, key string, v any) error
}

// Notifier informs the next people in the workflow.
type Notifier interface {
	NotifyWorkflow(ctx context.Context, evt Event, doc BOQ) error
}

// Options groups optional collaborators. Nil members are skipped.
type Options struct {
	Prices      PricePort
	Approvals   ApprovalPort
	Audit       AuditPort
	Idempotency IdempotencyPort
	Events      EventPublisher
	Notifier    Notifier
	Logger      *slog.Logger
}

// Service orchestrates BOQ flows.
type Service struct {
	repo    RepositoryPort
	factors FactorPort
	authz   rbac.Authorizer
	opts    Options
	logger  *slog.Logger
	now     func() time.Time
}

// NewService constructs the BOQ service.
func NewService(repo RepositoryPort, factors FactorPort, authz rbac.Authorizer, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, factors: factors, authz: authz, opts: opts, logger: logger, now: time.Now}
}

// Create starts a draft owned by actor, inheriting the actor's organisation.
func (s *Service) Create(ctx context.Context, actor *rbac.User, in CreateInput) (BOQ, error) {
	if actor == nil {
		return BOQ{}, shared.ErrUnauthorized
	}
	doc := BOQ{
		Number:       generateNumber(s.now()),
		ProjectName:  strings.TrimSpace(in.ProjectName),
		Location:     strings.TrimSpace(in.Location),
		Note:         strings.TrimSpace(in.Note),
		Status:       StatusDraft,
		CreatedBy:    rbac.Ptr(actor.ID),
		SectorID:     actor.SectorID,
		DepartmentID: actor.DepartmentID,
	}
	if err := s.authz.Require(actor, rbac.ActionCreate, rbac.ResourceBOQ, doc.Record()); err != nil {
		return BOQ{}, err
	}
	if doc.ProjectName == "" {
		return BOQ{}, fmt.Errorf("boq: project name required: %w", shared.ErrValidation)
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" && s.opts.Idempotency != nil {
		if err := s.opts.Idempotency.CheckAndInsert(ctx, key, ModuleName); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return BOQ{}, ErrDuplicateRequest
			}
			return BOQ{}, err
		}
	}

	var created BOQ
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.Create(ctx, doc)
		return err
	})
	if err != nil {
		if key != "" && s.opts.Idempotency != nil {
			if delErr := s.opts.Idempotency.Delete(ctx, key); delErr != nil {
				s.logger.Warn("release idempotency key", slog.Any("error", delErr))
			}
		}
		return BOQ{}, err
	}
	s.recordAudit(ctx, actor.ID, "boq.create", created.ID, map[string]any{"number": created.Number})
	s.publish(ctx, Event{Type: EventCreated, BOQID: created.ID, Ref: created.Ref, Number: created.Number, Status: created.Status, ActorID: actor.ID}, created)
	return created, nil
}

// Get returns the header after checking read access.
func (s *Service) Get(ctx context.Context, actor *rbac.User, id int64) (BOQ, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return BOQ{}, err
	}
	if err := s.authz.Require(actor, rbac.ActionRead, rbac.ResourceBOQ, doc.Record()); err != nil {
		return BOQ{}, err
	}
	return doc, nil
}

// Summary returns the BOQ with routes and derived totals. When only the
// factor lookup fails, the header and routes are still returned with the error.
func (s *Service) Summary(ctx context.Context, actor *rbac.User, id int64) (Summary, error) {
	doc, err := s.Get(ctx, actor, id)
	if err != nil {
		return Summary{}, err
	}
	routes, err := s.repo.Routes(ctx, id)
	if err != nil {
		return Summary{}, err
	}
	base := BaseTotal(routes)
	doc.BaseTotal = base
	summary := Summary{BOQ: doc, Routes: routes}
	totals, err := s.factors.Totals(ctx, base)
	if err != nil {
		return summary, fmt.Errorf("boq %s: factor: %w", doc.Number, err)
	}
	summary.Totals = totals
	return summary, nil
}

// List returns BOQs readable by actor and the number of readable rows.
func (s *Service) List(ctx context.Context, actor *rbac.User, filters ListFilters) ([]BOQ, int, error) {
	if actor == nil {
		return nil, 0, shared.ErrUnauthorized
	}
	if actor.Role != rbac.RoleAdmin || actor.Status != rbac.StatusActive {
		filters.Scope = &Scope{UserID: actor.ID, SectorID: actor.SectorID, DepartmentID: actor.DepartmentID}
	}
	limit, offset := filters.Limit, filters.Offset
	filters.Limit, filters.Offset = 0, 0

	candidates, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, 0, err
	}
	visible := make([]BOQ, 0, len(candidates))
	for _, doc := range candidates {
		if s.authz.Can(actor, rbac.ActionRead, rbac.ResourceBOQ, doc.Record()) {
			visible = append(visible, doc)
		}
	}
	total := len(visible)
	if offset > 0 {
		if offset >= len(visible) {
			return []BOQ{}, total, nil
		}
		visible = visible[offset:]
	}
	if limit > 0 && len(visible) > limit {
		visible = visible[:limit]
	}
	return visible, total, nil
}

// UpdateHeader changes descriptive fields of an editable BOQ.
func (s *Service) UpdateHeader(ctx context.Context, actor *rbac.User, id int64, in HeaderInput) error {
	in.ProjectName = strings.TrimSpace(in.ProjectName)
	if in.ProjectName == "" {
		return fmt.Errorf("boq: project name required: %w", shared.ErrValidation)
	}
	in.Location = strings.TrimSpace(in.Location)
	in.Note = strings.TrimSpace(in.Note)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := s.lockEditable(ctx, tx, actor, id)
		if err != nil {
			return err
		}
		return tx.UpdateHeader(ctx, doc.ID, in)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actor.ID, "boq.update", id, map[string]any{"project_name": in.ProjectName})
	return nil
}

// ReplaceRoutes swaps all routes and items of an editable BOQ.
func (s *Service) ReplaceRoutes(ctx context.Context, actor *rbac.User, id int64, inputs []RouteInput) error {
	routes, err := s.buildRoutes(ctx, inputs)
	if err != nil {
		return err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := s.lockEditable(ctx, tx, actor, id)
		if err != nil {
			return err
		}
		return tx.ReplaceRoutes(ctx, doc.ID, routes)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actor.ID, "boq.routes", id, map[string]any{
		"routes": len(routes), "items": itemCount(routes), "base_total": BaseTotal(routes).String(),
	})
	return nil
}

// Assign hands the BOQ to another user, or clears the assignment when assignee is nil.
func (s *Service) Assign(ctx context.Context, actor *rbac.User, id int64, assignee *int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.LockForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := s.authz.Require(actor, rbac.ActionUpdate, rbac.ResourceBOQ, doc.Record()); err != nil {
			return err
		}
		if doc.Status == StatusApproved {
			return fmt.Errorf("%w: approved BOQ is immutable", ErrInvalidState)
		}
		return tx.SetAssignee(ctx, id, assignee)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actor.ID, "boq.assign", id, map[string]any{"assigned_to": assignee})
	return nil
}

// Submit sends a draft or rejected BOQ for review.
func (s *Service) Submit(ctx context.Context, actor *rbac.User, id int64, note string) (BOQ, error) {
	return s.transition(ctx, actor, id, TransitionSubmit, note)
}

// Approve advances a pending BOQ one stage.
func (s *Service) Approve(ctx context.Context, actor *rbac.User, id int64, note string) (BOQ, error) {
	return s.transition(ctx, actor, id, TransitionApprove, note)
}

// Reject returns a pending BOQ to its author. A reason is required.
func (s *Service) Reject(ctx context.Context, actor *rbac.User, id int64, note string) (BOQ, error) {
	if strings.TrimSpace(note) == "" {
		return BOQ{}, fmt.Errorf("boq: rejection reason required: %w", shared.ErrValidation)
	}
	return s.transition(ctx, actor, id, TransitionReject, note)
}

func (s *Service) transition(ctx context.Context, actor *rbac.User, id int64, t Transition, note string) (BOQ, error) {
	if actor == nil {
		return BOQ{}, shared.ErrUnauthorized
	}
	note = strings.TrimSpace(note)
	var updated BOQ
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.LockForUpdate(ctx, id)
		if err != nil {
			return err
		}
		action := rbac.ActionApprove
		if t == TransitionSubmit {
			action = rbac.ActionUpdate
		}
		if err := s.authz.Require(actor, action, rbac.ResourceBOQ, doc.Record()); err != nil {
			return err
		}
		to, err := Next(doc.Status, t)
		if err != nil {
			return err
		}
		if t == TransitionSubmit {
			n, err := tx.ItemCount(ctx, id)
			if err != nil {
				return err
			}
			if n == 0 {
				return ErrEmpty
			}
		}
		at := s.now()
		if err := tx.SetStatus(ctx, id, to, actor.ID, at); err != nil {
			return err
		}
		doc.Status = to
		switch to {
		case StatusPendingReview:
			doc.SubmittedAt = &at
			doc.ApprovedBy, doc.ApprovedAt = nil, nil
		case StatusApproved:
			doc.ApprovedBy, doc.ApprovedAt = rbac.Ptr(actor.ID), &at
		}
		updated = doc
		return nil
	})
	if err != nil {
		return BOQ{}, err
	}

	if s.opts.Approvals != nil {
		if err := s.opts.Approvals.Record(ctx, shared.ApprovalLog{
			Module: ModuleName, RefID: updated.Ref, ActorID: actor.ID, Action: approvalAction(t, updated.Status), Note: note,
		}); err != nil {
			s.logger.Error("record boq approval", slog.Int64("boq_id", id), slog.Any("error", err))
		}
	}
	s.recordAudit(ctx, actor.ID, "boq."+string(t), id, map[string]any{"status": updated.Status, "note": note})
	s.publish(ctx, Event{
		Type: eventType(t, updated.Status), BOQID: updated.ID, Ref: updated.Ref, Number: updated.Number,
		Status: updated.Status, ActorID: actor.ID, Note: note,
	}, updated)
	return updated, nil
}

// Delete removes a BOQ. Approved BOQs are kept.
func (s *Service) Delete(ctx context.Context, actor *rbac.User, id int64) error {
	var deleted BOQ
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.LockForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := s.authz.Require(actor, rbac.ActionDelete, rbac.ResourceBOQ, doc.Record()); err != nil {
			return err
		}
		if doc.Status == StatusApproved {
			return fmt.Errorf("%w: approved BOQ is immutable", ErrInvalidState)
		}
		deleted = doc
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actor.ID, "boq.delete", id, map[string]any{"number": deleted.Number})
	s.publish(ctx, Event{Type: EventDeleted, BOQID: deleted.ID, Ref: deleted.Ref, Number: deleted.Number, Status: deleted.Status, ActorID: actor.ID}, deleted)
	return nil
}

// History returns the approval trail.
func (s *Service) History(ctx context.Context, actor *rbac.User, id int64) ([]shared.ApprovalLog, error) {
	doc, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if s.opts.Approvals == nil {
		return nil, nil
	}
	return s.opts.Approvals.List(ctx, ModuleName, doc.Ref)
}

// Can reports whether actor may perform action on doc, for rendering controls.
func (s *Service) Can(actor *rbac.User, action rbac.Action, doc BOQ) bool {
	return s.authz.Can(actor, action, rbac.ResourceBOQ, doc.Record())
}

func (s *Service) lockEditable(ctx context.Context, tx TxRepository, actor *rbac.User, id int64) (BOQ, error) {
	doc, err := tx.LockForUpdate(ctx, id)
	if err != nil {
		return BOQ{}, err
	}
	if err := s.authz.Require(actor, rbac.ActionUpdate, rbac.ResourceBOQ, doc.Record()); err != nil {
		return BOQ{}, err
	}
	if !doc.Status.Editable() {
		return BOQ{}, fmt.Errorf("%w: %s BOQ cannot be edited", ErrInvalidState, doc.Status)
	}
	return doc, nil
}

func (s *Service) buildRoutes(ctx context.Context, inputs []RouteInput) ([]Route, error) {
	routes := make([]Route, 0, len(inputs))
	for i, in := range inputs {
		name := strings.TrimSpace(in.Name)
		if name == "" {
			return nil, fmt.Errorf("boq: route %d name required: %w", i+1, shared.ErrValidation)
		}
		route := Route{Name: name, Description: strings.TrimSpace(in.Description), Position: i + 1}
		for j, item := range in.Items {
			line, err := s.buildItem(ctx, item)
			if err != nil {
				return nil, fmt.Errorf("boq: route %q item %d: %w", name, j+1, err)
			}
			line.Position = j + 1
			route.Items = append(route.Items, line)
		}
		routes = append(routes, route)
	}
	return routes, nil
}

func (s *Service) buildItem(ctx context.Context, in ItemInput) (LineItem, error) {
	line := LineItem{
		PriceItemID:      in.PriceItemID,
		Description:      strings.TrimSpace(in.Description),
		Unit:             strings.TrimSpace(in.Unit),
		Qty:              in.Qty,
		MaterialUnitCost: in.MaterialUnitCost,
		LaborUnitCost:    in.LaborUnitCost,
	}
	if in.PriceItemID != nil && s.opts.Prices != nil && line.MaterialUnitCost.IsZero() && line.LaborUnitCost.IsZero() {
		price, err := s.opts.Prices.Lookup(ctx, *in.PriceItemID)
		if err != nil {
			return LineItem{}, err
		}
		line.MaterialUnitCost = price.MaterialCost
		line.LaborUnitCost = price.LaborCost
		if line.Unit == "" {
			line.Unit = price.Unit
		}
		if line.Description == "" {
			line.Description = price.Name
		}
	}
	if line.Description == "" || line.Unit == "" {
		return LineItem{}, fmt.Errorf("description and unit required: %w", shared.ErrValidation)
	}
	if !line.Qty.IsPositive() {
		return LineItem{}, fmt.Errorf("quantity must be positive: %w", shared.ErrValidation)
	}
	if line.MaterialUnitCost.IsNegative() || line.LaborUnitCost.IsNegative() {
		return LineItem{}, fmt.Errorf("unit costs must not be negative: %w", shared.ErrValidation)
	}
	return line, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.opts.Audit == nil {
		return
	}
	if err := s.opts.Audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: ModuleName, EntityID: fmt.Sprint(id), Meta: meta}); err != nil {
		s.logger.Warn("audit boq", slog.String("action", action), slog.Any("error", err))
	}
}

// publish fans the event out to the broker and the notifier. Failures never undo the change.
func (s *Service) publish(ctx context.Context, evt Event, doc BOQ) {
	evt.OccurredAt = s.now().UTC()
	if s.opts.Events != nil {
		if err := s.opts.Events.Publish(ctx, doc.Ref.String(), evt); err != nil {
			s.logger.Warn("publish boq event", slog.String("type", evt.Type), slog.Any("error", err))
		}
	}
	if s.opts.Notifier != nil {
		if err := s.opts.Notifier.NotifyWorkflow(ctx, evt, doc); err != nil {
			s.logger.Warn("notify boq event", slog.String("type", evt.Type), slog.Any("error", err))
		}
	}
}

func generateNumber(now time.Time) string {
	return fmt.Sprintf("BOQ-%s-%s", now.Format("200601"), strings.ToUpper(uuid.NewString()[:8]))
}

// Package boq manages bill-of-quantities documents and their approval workflow.
package boq

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ductline/ductline/internal/factor"
	"github.com/ductline/ductline/internal/rbac"
	"github.com/ductline/ductline/internal/shared"
)

// ModuleName labels BOQ rows in the shared approval and idempotency tables.
const ModuleName = "boq"

// Status is the workflow state of a BOQ.
type Status string

const (
	StatusDraft           Status = rbac.RecordStatusDraft
	StatusPendingReview   Status = rbac.RecordStatusPendingReview
	StatusPendingApproval Status = rbac.RecordStatusPendingApproval
	StatusApproved        Status = "approved"
	StatusRejected        Status = "rejected"
)

// Statuses lists every workflow state in order.
func Statuses() []Status {
	return []Status{StatusDraft, StatusPendingReview, StatusPendingApproval, StatusApproved, StatusRejected}
}

// Editable reports whether content changes are allowed in this state.
func (s Status) Editable() bool {
	return s == StatusDraft || s == StatusRejected
}

var (
	// ErrInvalidState indicates the workflow does not allow the action from the current status.
	ErrInvalidState = fmt.Errorf("boq: %w", shared.ErrInvalidState)
	// ErrEmpty indicates a BOQ without line items cannot be submitted.
	ErrEmpty = fmt.Errorf("boq: at least one line item is required: %w", shared.ErrValidation)
	// ErrDuplicateRequest indicates an idempotency key was replayed.
	ErrDuplicateRequest = fmt.Errorf("boq: request already processed: %w", shared.ErrConflict)
)

// BOQ is the header of a bill of quantities.
type BOQ struct {
	ID           int64
	Ref          uuid.UUID
	Number       string
	ProjectName  string
	Location     string
	Note         string
	Status       Status
	CreatedBy    *int64
	AssignedTo   *int64
	SectorID     *int64
	DepartmentID *int64
	SubmittedAt  *time.Time
	ApprovedBy   *int64
	ApprovedAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time

	CreatorName  string
	AssigneeName string
	BaseTotal    decimal.Decimal
}

// Record returns the ownership snapshot evaluated by the permission policy.
func (b BOQ) Record() *rbac.Record {
	return &rbac.Record{
		CreatedBy:    b.CreatedBy,
		AssignedTo:   b.AssignedTo,
		SectorID:     b.SectorID,
		DepartmentID: b.DepartmentID,
		Status:       string(b.Status),
	}
}

// Route is a named section of the BOQ, typically one duct run.
type Route struct {
	ID          int64
	BOQID       int64
	Name        string
	Description string
	Position    int
	Items       []LineItem
}

// Subtotal sums the route's line items.
func (r Route) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, it := range r.Items {
		total = total.Add(it.Total())
	}
	return total
}

// LineItem is one priced quantity.
type LineItem struct {
	ID               int64
	RouteID          int64
	PriceItemID      *int64
	Description      string
	Unit             string
	Qty              decimal.Decimal
	MaterialUnitCost decimal.Decimal
	LaborUnitCost    decimal.Decimal
	Position         int
}

// MaterialTotal is qty × material unit cost.
func (it LineItem) MaterialTotal() decimal.Decimal {
	return it.Qty.Mul(it.MaterialUnitCost)
}

// LaborTotal is qty × labour unit cost.
func (it LineItem) LaborTotal() decimal.Decimal {
	return it.Qty.Mul(it.LaborUnitCost)
}

// Total is qty × (material + labour).
func (it LineItem) Total() decimal.Decimal {
	return it.MaterialTotal().Add(it.LaborTotal())
}

// BaseTotal sums every route.
func BaseTotal(routes []Route) decimal.Decimal {
	total := decimal.Zero
	for _, r := range routes {
		total = total.Add(r.Subtotal())
	}
	return total
}

func itemCount(routes []Route) int {
	n := 0
	for _, r := range routes {
		n += len(r.Items)
	}
	return n
}

// Summary is a BOQ with its routes and derived totals.
type Summary struct {
	BOQ    BOQ
	Routes []Route
	Totals factor.Totals
}

// CreateInput is the payload for a new BOQ.
type CreateInput struct {
	ProjectName    string
	Location       string
	Note           string
	IdempotencyKey string
}

// HeaderInput updates descriptive fields.
type HeaderInput struct {
	ProjectName string
	Location    string
	Note        string
}

// RouteInput describes one route with its items.
type RouteInput struct {
	Name        string
	Description string
	Items       []ItemInput
}

// ItemInput describes one line item. When PriceItemID is set and both unit
// costs are zero, costs and unit are copied from the price list.
type ItemInput struct {
	PriceItemID      *int64
	Description      string
	Unit             string
	Qty              decimal.Decimal
	MaterialUnitCost decimal.Decimal
	LaborUnitCost    decimal.Decimal
}

// ListFilters narrows the BOQ listing.
type ListFilters struct {
	Status   Status
	Search   string
	SectorID int64
	Limit    int
	Offset   int
	Scope    *Scope
}

// Scope restricts candidates to rows a non-admin might see.
type Scope struct {
	UserID       int64
	SectorID     *int64
	DepartmentID *int64
}

// Event is published on every workflow change.
type Event struct {
	Type       string    `json:"type"`
	BOQID      int64     `json:"boq_id"`
	Ref        uuid.UUID `json:"ref"`
	Number     string    `json:"number"`
	Status     Status    `json:"status"`
	ActorID    int64     `json:"actor_id"`
	Note       string    `json:"note,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Event types.
const (
	EventCreated   = "boq.created"
	EventSubmitted = "boq.submitted"
	EventReviewed  = "boq.reviewed"
	EventApproved  = "boq.approved"
	EventRejected  = "boq.rejected"
	EventDeleted   = "boq.deleted"
)

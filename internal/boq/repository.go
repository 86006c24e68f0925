package boq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ductline/ductline/internal/platform/db"
	"github.com/ductline/ductline/internal/shared"
)

// TxRepository exposes transactional operations.
type TxRepository interface {
	Create(ctx context.Context, doc BOQ) (BOQ, error)
	LockForUpdate(ctx context.Context, id int64) (BOQ, error)
	UpdateHeader(ctx context.Context, id int64, in HeaderInput) error
	ReplaceRoutes(ctx context.Context, boqID int64, routes []Route) error
	ItemCount(ctx context.Context, id int64) (int, error)
	SetStatus(ctx context.Context, id int64, to Status, actorID int64, at time.Time) error
	SetAssignee(ctx context.Context, id int64, assignee *int64) error
	Delete(ctx context.Context, id int64) error
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

func selectBOQs() sq.SelectBuilder {
	return sq.Select(
		"b.id", "b.ref", "b.number", "b.project_name", "b.location", "b.note", "b.status",
		"b.created_by", "b.assigned_to", "b.sector_id", "b.department_id",
		"b.submitted_at", "b.approved_by", "b.approved_at", "b.created_at", "b.updated_at",
		"COALESCE(c.name, '')", "COALESCE(a.name, '')",
	).
		From("boqs b").
		LeftJoin("users c ON c.id = b.created_by").
		LeftJoin("users a ON a.id = b.assigned_to").
		PlaceholderFormat(sq.Dollar)
}

func scanBOQ(row pgx.Row) (BOQ, error) {
	var b BOQ
	err := row.Scan(
		&b.ID, &b.Ref, &b.Number, &b.ProjectName, &b.Location, &b.Note, &b.Status,
		&b.CreatedBy, &b.AssignedTo, &b.SectorID, &b.DepartmentID,
		&b.SubmittedAt, &b.ApprovedBy, &b.ApprovedAt, &b.CreatedAt, &b.UpdatedAt,
		&b.CreatorName, &b.AssigneeName,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return BOQ{}, fmt.Errorf("boq: %w", shared.ErrNotFound)
	}
	return b, err
}

func getBOQ(ctx context.Context, q querier, id int64, lock bool) (BOQ, error) {
	stmt := selectBOQs().Where(sq.Eq{"b.id": id})
	if lock {
		stmt = stmt.Suffix("FOR UPDATE OF b")
	}
	query, args, err := stmt.ToSql()
	if err != nil {
		return BOQ{}, err
	}
	return scanBOQ(q.QueryRow(ctx, query, args...))
}

// Get returns a single BOQ header.
func (r *Repository) Get(ctx context.Context, id int64) (BOQ, error) {
	return getBOQ(ctx, r.pool, id, false)
}

// List returns candidate headers with their base totals. Scope is a coarse
// prefilter; the service applies the permission policy to every row.
func (r *Repository) List(ctx context.Context, filters ListFilters) ([]BOQ, error) {
	stmt := selectBOQs().
		Column(`COALESCE((SELECT SUM(i.qty * (i.material_unit_cost + i.labor_unit_cost))
			FROM boq_items i JOIN boq_routes rt ON rt.id = i.route_id WHERE rt.boq_id = b.id), 0)`).
		OrderBy("b.created_at DESC", "b.id DESC")
	if filters.Status != "" {
		stmt = stmt.Where(sq.Eq{"b.status": string(filters.Status)})
	}
	if search := strings.TrimSpace(filters.Search); search != "" {
		like := "%" + search + "%"
		stmt = stmt.Where(sq.Or{sq.ILike{"b.number": like}, sq.ILike{"b.project_name": like}, sq.ILike{"b.location": like}})
	}
	if filters.SectorID > 0 {
		stmt = stmt.Where(sq.Eq{"b.sector_id": filters.SectorID})
	}
	if sc := filters.Scope; sc != nil {
		or := sq.Or{
			sq.Eq{"b.created_by": sc.UserID},
			sq.Eq{"b.assigned_to": sc.UserID},
		}
		if sc.SectorID != nil || sc.DepartmentID != nil {
			or = append(or, sq.Eq{"b.created_by": nil})
		}
		if sc.SectorID != nil {
			or = append(or, sq.Eq{"b.sector_id": *sc.SectorID})
		}
		if sc.DepartmentID != nil {
			or = append(or, sq.Eq{"b.department_id": *sc.DepartmentID})
		}
		stmt = stmt.Where(or)
	}
	if filters.Limit > 0 {
		stmt = stmt.Limit(uint64(filters.Limit)).Offset(uint64(max(filters.Offset, 0)))
	}
	query, args, err := stmt.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BOQ
	for rows.Next() {
		var b BOQ
		if err := rows.Scan(
			&b.ID, &b.Ref, &b.Number, &b.ProjectName, &b.Location, &b.Note, &b.Status,
			&b.CreatedBy, &b.AssignedTo, &b.SectorID, &b.DepartmentID,
			&b.SubmittedAt, &b.ApprovedBy, &b.ApprovedAt, &b.CreatedAt, &b.UpdatedAt,
			&b.CreatorName, &b.AssigneeName, &b.BaseTotal,
		); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Routes returns the routes of a BOQ with their items, in position order.
func (r *Repository) Routes(ctx context.Context, id int64) ([]Route, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, boq_id, name, description, position
		FROM boq_routes WHERE boq_id=$1 ORDER BY position, id`, id)
	if err != nil {
		return nil, err
	}
	var routes []Route
	index := map[int64]int{}
	for rows.Next() {
		var rt Route
		if err := rows.Scan(&rt.ID, &rt.BOQID, &rt.Name, &rt.Description, &rt.Position); err != nil {
			rows.Close()
			return nil, err
		}
		index[rt.ID] = len(routes)
		routes = append(routes, rt)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(routes) == 0 {
		return routes, nil
	}

	items, err := r.pool.Query(ctx, `SELECT i.id, i.route_id, i.price_item_id, i.description, i.unit, i.qty,
			i.material_unit_cost, i.labor_unit_cost, i.position
		FROM boq_items i JOIN boq_routes rt ON rt.id = i.route_id
		WHERE rt.boq_id=$1 ORDER BY i.position, i.id`, id)
	if err != nil {
		return nil, err
	}
	defer items.Close()
	for items.Next() {
		var it LineItem
		if err := items.Scan(&it.ID, &it.RouteID, &it.PriceItemID, &it.Description, &it.Unit, &it.Qty,
			&it.MaterialUnitCost, &it.LaborUnitCost, &it.Position); err != nil {
			return nil, err
		}
		if pos, ok := index[it.RouteID]; ok {
			routes[pos].Items = append(routes[pos].Items, it)
		}
	}
	return routes, items.Err()
}

func (t *txRepo) Create(ctx context.Context, doc BOQ) (BOQ, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO boqs (number, project_name, location, note, status, created_by, sector_id, department_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		doc.Number, doc.ProjectName, doc.Location, doc.Note, doc.Status, doc.CreatedBy, doc.SectorID, doc.DepartmentID).
		Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return BOQ{}, fmt.Errorf("boq: number %s: %w", doc.Number, shared.ErrConflict)
		}
		return BOQ{}, err
	}
	return getBOQ(ctx, t.tx, id, false)
}

func (t *txRepo) LockForUpdate(ctx context.Context, id int64) (BOQ, error) {
	return getBOQ(ctx, t.tx, id, true)
}

func (t *txRepo) UpdateHeader(ctx context.Context, id int64, in HeaderInput) error {
	_, err := t.tx.Exec(ctx, `UPDATE boqs SET project_name=$2, location=$3, note=$4, updated_at=NOW() WHERE id=$1`,
		id, in.ProjectName, in.Location, in.Note)
	return err
}

func (t *txRepo) ReplaceRoutes(ctx context.Context, boqID int64, routes []Route) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM boq_routes WHERE boq_id=$1`, boqID); err != nil {
		return err
	}
	for _, rt := range routes {
		var routeID int64
		if err := t.tx.QueryRow(ctx, `INSERT INTO boq_routes (boq_id, name, description, position)
			VALUES ($1,$2,$3,$4) RETURNING id`, boqID, rt.Name, rt.Description, rt.Position).Scan(&routeID); err != nil {
			return err
		}
		if len(rt.Items) == 0 {
			continue
		}
		batch := &pgx.Batch{}
		for _, it := range rt.Items {
			batch.Queue(`INSERT INTO boq_items (route_id, price_item_id, description, unit, qty, material_unit_cost, labor_unit_cost, position)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
				routeID, it.PriceItemID, it.Description, it.Unit, it.Qty, it.MaterialUnitCost, it.LaborUnitCost, it.Position)
		}
		if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
			if db.IsForeignKeyViolation(err) {
				return fmt.Errorf("boq: unknown price list item: %w", shared.ErrValidation)
			}
			return err
		}
	}
	_, err := t.tx.Exec(ctx, `UPDATE boqs SET updated_at=NOW() WHERE id=$1`, boqID)
	return err
}

func (t *txRepo) ItemCount(ctx context.Context, id int64) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM boq_items i JOIN boq_routes rt ON rt.id = i.route_id
		WHERE rt.boq_id=$1`, id).Scan(&n)
	return n, err
}

func (t *txRepo) SetStatus(ctx context.Context, id int64, to Status, actorID int64, at time.Time) error {
	var err error
	switch to {
	case StatusPendingReview:
		_, err = t.tx.Exec(ctx, `UPDATE boqs SET status=$2, submitted_at=$3, approved_by=NULL, approved_at=NULL, updated_at=NOW()
			WHERE id=$1`, id, to, at)
	case StatusApproved:
		_, err = t.tx.Exec(ctx, `UPDATE boqs SET status=$2, approved_by=$3, approved_at=$4, updated_at=NOW() WHERE id=$1`,
			id, to, actorID, at)
	default:
		_, err = t.tx.Exec(ctx, `UPDATE boqs SET status=$2, updated_at=NOW() WHERE id=$1`, id, to)
	}
	return err
}

func (t *txRepo) SetAssignee(ctx context.Context, id int64, assignee *int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE boqs SET assigned_to=$2, updated_at=NOW() WHERE id=$1`, id, assignee)
	if db.IsForeignKeyViolation(err) {
		return fmt.Errorf("boq: unknown assignee: %w", shared.ErrValidation)
	}
	return err
}

func (t *txRepo) Delete(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM boqs WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("boq: %w", shared.ErrNotFound)
	}
	return nil
}

package pricelist

import (
	"context"
	"errors"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ductline/ductline/internal/platform/db"
	"github.com/ductline/ductline/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const itemColumns = "id, code, name, unit, category, material_cost, labor_cost, updated_at"

func scanItem(row pgx.Row) (Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.Code, &it.Name, &it.Unit, &it.Category, &it.MaterialCost, &it.LaborCost, &it.UpdatedAt)
	return it, err
}

func applyFilters(stmt sq.SelectBuilder, filters ListFilters) sq.SelectBuilder {
	if search := strings.TrimSpace(filters.Search); search != "" {
		like := "%" + search + "%"
		stmt = stmt.Where(sq.Or{sq.ILike{"code": like}, sq.ILike{"name": like}})
	}
	if filters.Category != "" {
		stmt = stmt.Where(sq.Eq{"category": filters.Category})
	}
	return stmt
}

// List returns catalogue items and the unpaged total.
func (r *Repository) List(ctx context.Context, filters ListFilters) ([]Item, int, error) {
	countQuery, args, err := applyFilters(sq.Select("COUNT(*)").From("price_list_items").PlaceholderFormat(sq.Dollar), filters).ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	stmt := applyFilters(sq.Select(itemColumns).From("price_list_items").PlaceholderFormat(sq.Dollar), filters).
		OrderBy("category", "code")
	if filters.Limit > 0 {
		stmt = stmt.Limit(uint64(filters.Limit)).Offset(uint64(max(filters.Offset, 0)))
	}
	query, args, err := stmt.ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, it)
	}
	return items, total, rows.Err()
}

// Get loads one item.
func (r *Repository) Get(ctx context.Context, id int64) (Item, error) {
	it, err := scanItem(r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM price_list_items WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, shared.ErrNotFound
	}
	return it, err
}

// Create inserts an item.
func (r *Repository) Create(ctx context.Context, in ItemInput) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO price_list_items (code, name, unit, category, material_cost, labor_cost)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`, in.Code, in.Name, in.Unit, in.Category, in.MaterialCost, in.LaborCost).Scan(&id)
	if db.IsUniqueViolation(err) {
		return 0, ErrCodeTaken
	}
	return id, err
}

// Update rewrites an item.
func (r *Repository) Update(ctx context.Context, id int64, in ItemInput) error {
	tag, err := r.pool.Exec(ctx, `UPDATE price_list_items SET code=$2, name=$3, unit=$4, category=$5, material_cost=$6, labor_cost=$7, updated_at=NOW()
WHERE id=$1`, id, in.Code, in.Name, in.Unit, in.Category, in.MaterialCost, in.LaborCost)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrCodeTaken
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes an item. Items referenced by BOQ lines cannot be removed.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM price_list_items WHERE id=$1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return shared.ErrConflict
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Categories lists distinct categories.
func (r *Repository) Categories(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT category FROM price_list_items WHERE category <> '' ORDER BY category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

package factor

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ductline/ductline/internal/platform/db"
)

// Repository provides PostgreSQL backed access to the reference table.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns all reference points ordered by threshold.
func (r *Repository) List(ctx context.Context) ([]ReferencePoint, error) {
	rows, err := r.pool.Query(ctx, `SELECT cost_threshold, factor FROM factor_references ORDER BY cost_threshold`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var points []ReferencePoint
	for rows.Next() {
		var p ReferencePoint
		if err := rows.Scan(&p.Threshold, &p.Factor); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// Bounds fetches the two bounding rows for a cost in millions directly from the store.
func (r *Repository) Bounds(ctx context.Context, a decimal.Decimal) (ReferencePoint, *ReferencePoint, error) {
	var lower ReferencePoint
	err := r.pool.QueryRow(ctx, `SELECT cost_threshold, factor FROM (
    (SELECT cost_threshold, factor, 0 AS pref FROM factor_references
      WHERE cost_threshold <= GREATEST(5, $1::numeric) ORDER BY cost_threshold DESC LIMIT 1)
    UNION ALL
    (SELECT cost_threshold, factor, 1 AS pref FROM factor_references ORDER BY cost_threshold ASC LIMIT 1)
) candidates ORDER BY pref LIMIT 1`, a).Scan(&lower.Threshold, &lower.Factor)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ReferencePoint{}, nil, ErrEmptyReferenceTable
		}
		return ReferencePoint{}, nil, fmt.Errorf("factor: lower bound: %w", err)
	}

	var upper ReferencePoint
	err = r.pool.QueryRow(ctx, `SELECT cost_threshold, factor FROM factor_references
WHERE cost_threshold > $1::numeric ORDER BY cost_threshold ASC LIMIT 1`, a).Scan(&upper.Threshold, &upper.Factor)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return lower, nil, nil
		}
		return ReferencePoint{}, nil, fmt.Errorf("factor: upper bound: %w", err)
	}
	return lower, &upper, nil
}

// Replace swaps the entire reference table in one transaction.
func (r *Repository) Replace(ctx context.Context, points []ReferencePoint) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM factor_references`); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for _, p := range points {
			batch.Queue(`INSERT INTO factor_references (cost_threshold, factor) VALUES ($1, $2)`, p.Threshold, p.Factor)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

package committee

import (
	"context"
	"errors"
	"fmt"

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

// List returns the members of a BOQ committee, chair first.
func (r *Repository) List(ctx context.Context, boqID int64) ([]Member, error) {
	rows, err := r.pool.Query(ctx, `SELECT m.id, m.boq_id, m.user_id, u.name, u.email, m.committee_role, m.assigned_by, m.created_at
		FROM committee_members m JOIN users u ON u.id = m.user_id
		WHERE m.boq_id=$1
		ORDER BY CASE m.committee_role WHEN 'chair' THEN 0 WHEN 'secretary' THEN 1 ELSE 2 END, u.name`, boqID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ID, &m.BOQID, &m.UserID, &m.UserName, &m.UserEmail, &m.Role, &m.AssignedBy, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Get returns a single member row.
func (r *Repository) Get(ctx context.Context, id int64) (Member, error) {
	var m Member
	err := r.pool.QueryRow(ctx, `SELECT m.id, m.boq_id, m.user_id, u.name, u.email, m.committee_role, m.assigned_by, m.created_at
		FROM committee_members m JOIN users u ON u.id = m.user_id WHERE m.id=$1`, id).
		Scan(&m.ID, &m.BOQID, &m.UserID, &m.UserName, &m.UserEmail, &m.Role, &m.AssignedBy, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Member{}, fmt.Errorf("committee: %w", shared.ErrNotFound)
	}
	return m, err
}

// Insert adds a member.
func (r *Repository) Insert(ctx context.Context, m Member) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO committee_members (boq_id, user_id, committee_role, assigned_by)
		VALUES ($1,$2,$3,$4) RETURNING id`, m.BOQID, m.UserID, m.Role, m.AssignedBy).Scan(&id)
	switch {
	case db.IsUniqueViolation(err):
		return 0, ErrAlreadyMember
	case db.IsForeignKeyViolation(err):
		return 0, fmt.Errorf("committee: unknown user or BOQ: %w", shared.ErrValidation)
	}
	return id, err
}

// UpdateRole changes a member's role.
func (r *Repository) UpdateRole(ctx context.Context, id int64, role Role) error {
	tag, err := r.pool.Exec(ctx, `UPDATE committee_members SET committee_role=$2 WHERE id=$1`, id, role)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("committee: %w", shared.ErrNotFound)
	}
	return nil
}

// Delete removes a member.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM committee_members WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("committee: %w", shared.ErrNotFound)
	}
	return nil
}

package users

import (
	"context"
	"errors"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ductline/ductline/internal/platform/db"
	"github.com/ductline/ductline/internal/rbac"
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

var userColumns = []string{
	"u.id", "u.email", "u.name", "u.phone", "u.position", "u.role", "u.status",
	"u.sector_id", "u.department_id", "COALESCE(s.name, '')", "COALESCE(d.name, '')",
	"u.created_at", "u.updated_at",
}

func selectUsers() sq.SelectBuilder {
	return sq.Select(userColumns...).
		From("users u").
		LeftJoin("sectors s ON s.id = u.sector_id").
		LeftJoin("departments d ON d.id = u.department_id").
		PlaceholderFormat(sq.Dollar)
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	var role, status string
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Phone, &u.Position, &role, &status,
		&u.SectorID, &u.DepartmentID, &u.SectorName, &u.DepartmentName, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	u.Role = rbac.Role(role)
	u.Status = rbac.Status(status)
	return u, nil
}

// ListUsers returns users matching filters.
func (r *Repository) ListUsers(ctx context.Context, filters ListFilters) ([]User, error) {
	stmt := selectUsers().OrderBy("u.name", "u.id")
	if filters.Role != "" {
		stmt = stmt.Where(sq.Eq{"u.role": string(filters.Role)})
	}
	if filters.Status != "" {
		stmt = stmt.Where(sq.Eq{"u.status": string(filters.Status)})
	}
	if filters.SectorID > 0 {
		stmt = stmt.Where(sq.Eq{"u.sector_id": filters.SectorID})
	}
	if filters.DepartmentID > 0 {
		stmt = stmt.Where(sq.Eq{"u.department_id": filters.DepartmentID})
	}
	if search := strings.TrimSpace(filters.Search); search != "" {
		like := "%" + search + "%"
		stmt = stmt.Where(sq.Or{sq.ILike{"u.name": like}, sq.ILike{"u.email": like}})
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
	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// GetUser loads a user by ID.
func (r *Repository) GetUser(ctx context.Context, id int64) (User, error) {
	query, args, err := selectUsers().Where(sq.Eq{"u.id": id}).ToSql()
	if err != nil {
		return User{}, err
	}
	u, err := scanUser(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

// Principal implements rbac.PrincipalLoader.
func (r *Repository) Principal(ctx context.Context, userID int64) (*rbac.User, error) {
	u, err := r.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return u.Principal(), nil
}

// CreateUser inserts a user and returns its ID.
func (r *Repository) CreateUser(ctx context.Context, u NewUser) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO users (email, password_hash, name, phone, position, role, status, sector_id, department_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		strings.ToLower(u.Email), u.PasswordHash, u.Name, u.Phone, u.Position, string(u.Role), string(u.Status), u.SectorID, u.DepartmentID).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return 0, ErrEmailTaken
		}
		return 0, err
	}
	return id, nil
}

// UpdateAdmin writes role, status and organisation.
func (r *Repository) UpdateAdmin(ctx context.Context, id int64, in AdminUpdateInput) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET name=$2, role=$3, status=$4, sector_id=$5, department_id=$6, updated_at=NOW() WHERE id=$1`,
		id, in.Name, string(in.Role), string(in.Status), in.SectorID, in.DepartmentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// UpdateProfile writes the self-service fields.
func (r *Repository) UpdateProfile(ctx context.Context, id int64, in ProfileInput) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET name=$2, phone=$3, position=$4, updated_at=NOW() WHERE id=$1`,
		id, in.Name, in.Phone, in.Position)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// PasswordHash returns the stored hash for a user.
func (r *Repository) PasswordHash(ctx context.Context, id int64) (string, error) {
	var hash string
	err := r.pool.QueryRow(ctx, `SELECT password_hash FROM users WHERE id=$1`, id).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", shared.ErrNotFound
	}
	return hash, err
}

// SetPasswordHash replaces the stored hash.
func (r *Repository) SetPasswordHash(ctx context.Context, id int64, hash string) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1`, id, hash)
	return err
}

// CountAssociations counts BOQs and committee seats that reference the user.
func (r *Repository) CountAssociations(ctx context.Context, id int64) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT
    (SELECT COUNT(*) FROM boqs WHERE created_by=$1 OR assigned_to=$1 OR approved_by=$1) +
    (SELECT COUNT(*) FROM committee_members WHERE user_id=$1)`, id).Scan(&n)
	return n, err
}

// DeleteUser removes the account.
func (r *Repository) DeleteUser(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id=$1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return ErrHasAssociatedRecords
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListSectors returns all sectors.
func (r *Repository) ListSectors(ctx context.Context) ([]Sector, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM sectors ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Sector
	for rows.Next() {
		var s Sector
		if err := rows.Scan(&s.ID, &s.Name); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListDepartments returns all departments.
func (r *Repository) ListDepartments(ctx context.Context) ([]Department, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, sector_id, name FROM departments ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Department
	for rows.Next() {
		var d Department
		if err := rows.Scan(&d.ID, &d.SectorID, &d.Name); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DepartmentSector returns the sector a department belongs to.
func (r *Repository) DepartmentSector(ctx context.Context, departmentID int64) (int64, error) {
	var sectorID int64
	err := r.pool.QueryRow(ctx, `SELECT sector_id FROM departments WHERE id=$1`, departmentID).Scan(&sectorID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, shared.ErrNotFound
	}
	return sectorID, err
}

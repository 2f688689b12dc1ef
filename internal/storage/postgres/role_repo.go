package postgres

import (
	"context"
	"time"

	"github.com/platformbuilds/warden-core/internal/models"
	"github.com/platformbuilds/warden-core/internal/repo"
)

// RoleRepo implements repo.RoleRepo.
type RoleRepo struct {
	store *Store
}

func NewRoleRepo(store *Store) *RoleRepo {
	return &RoleRepo{store: store}
}

const roleColumns = `id, org_id, name, display_name, parent_id, level, is_system,
	metadata, created_at, updated_at, deleted_at`

func scanRole(row interface{ Scan(...any) error }) (*models.Role, error) {
	var role models.Role
	err := row.Scan(&role.ID, &role.OrgID, &role.Name, &role.DisplayName, &role.ParentID,
		&role.Level, &role.IsSystem, &role.Metadata, &role.CreatedAt, &role.UpdatedAt, &role.DeletedAt)
	if err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *RoleRepo) Create(ctx context.Context, role *models.Role) error {
	start := time.Now()
	_, err := r.store.q(ctx).Exec(ctx, `
		INSERT INTO roles (id, org_id, name, display_name, parent_id, level, is_system,
			metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
		role.ID, role.OrgID, role.Name, role.DisplayName, role.ParentID, role.Level,
		role.IsSystem, role.Metadata, role.CreatedAt)
	return mapError("insert", "roles", start, err)
}

func (r *RoleRepo) GetByID(ctx context.Context, orgID, id string) (*models.Role, error) {
	start := time.Now()
	role, err := scanRole(r.store.q(ctx).QueryRow(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE org_id = $1 AND id = $2`, orgID, id))
	if err != nil {
		return nil, mapError("select", "roles", start, err)
	}
	mapError("select", "roles", start, nil)
	return role, nil
}

func (r *RoleRepo) GetByName(ctx context.Context, orgID, name string) (*models.Role, error) {
	start := time.Now()
	role, err := scanRole(r.store.q(ctx).QueryRow(ctx, `
		SELECT `+roleColumns+` FROM roles
		WHERE org_id = $1 AND lower(name) = lower($2) AND deleted_at IS NULL`, orgID, name))
	if err != nil {
		return nil, mapError("select", "roles", start, err)
	}
	mapError("select", "roles", start, nil)
	return role, nil
}

func (r *RoleRepo) GetByIDs(ctx context.Context, orgID string, ids []string) ([]*models.Role, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	start := time.Now()
	rows, err := r.store.q(ctx).Query(ctx, `
		SELECT `+roleColumns+` FROM roles
		WHERE org_id = $1 AND id = ANY($2) AND deleted_at IS NULL`, orgID, ids)
	if err != nil {
		return nil, mapError("select", "roles", start, err)
	}
	defer rows.Close()

	var out []*models.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, mapError("select", "roles", start, err)
		}
		out = append(out, role)
	}
	return out, mapError("select", "roles", start, rows.Err())
}

func (r *RoleRepo) ListChildren(ctx context.Context, orgID, parentID string) ([]*models.Role, error) {
	start := time.Now()
	rows, err := r.store.q(ctx).Query(ctx, `
		SELECT `+roleColumns+` FROM roles
		WHERE org_id = $1 AND parent_id = $2 AND deleted_at IS NULL
		ORDER BY name`, orgID, parentID)
	if err != nil {
		return nil, mapError("select", "roles", start, err)
	}
	defer rows.Close()

	var out []*models.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, mapError("select", "roles", start, err)
		}
		out = append(out, role)
	}
	return out, mapError("select", "roles", start, rows.Err())
}

func (r *RoleRepo) List(ctx context.Context, orgID string, opts repo.ListOptions) ([]*models.Role, error) {
	start := time.Now()
	query := `SELECT ` + roleColumns + ` FROM roles WHERE org_id = $1`
	if !opts.IncludeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	query += ` ORDER BY level, name LIMIT $2 OFFSET $3`

	rows, err := r.store.q(ctx).Query(ctx, query, orgID, clampLimit(opts.Limit), opts.Offset)
	if err != nil {
		return nil, mapError("select", "roles", start, err)
	}
	defer rows.Close()

	var out []*models.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, mapError("select", "roles", start, err)
		}
		out = append(out, role)
	}
	return out, mapError("select", "roles", start, rows.Err())
}

func (r *RoleRepo) Update(ctx context.Context, role *models.Role) error {
	start := time.Now()
	tag, err := r.store.q(ctx).Exec(ctx, `
		UPDATE roles SET name = $2, display_name = $3, parent_id = $4, level = $5,
			metadata = $6, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`,
		role.ID, role.Name, role.DisplayName, role.ParentID, role.Level, role.Metadata)
	if err == nil && tag.RowsAffected() == 0 {
		mapError("update", "roles", start, nil)
		return models.E(models.ErrNotFound, "role not found")
	}
	return mapError("update", "roles", start, err)
}

func (r *RoleRepo) SoftDelete(ctx context.Context, id string) error {
	start := time.Now()
	tag, err := r.store.q(ctx).Exec(ctx, `
		UPDATE roles SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`, id)
	if err == nil && tag.RowsAffected() == 0 {
		mapError("update", "roles", start, nil)
		return models.E(models.ErrNotFound, "role not found")
	}
	return mapError("update", "roles", start, err)
}

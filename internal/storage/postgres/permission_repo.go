package postgres

import (
	"context"
	"time"

	"github.com/platformbuilds/warden-core/internal/models"
	"github.com/platformbuilds/warden-core/internal/repo"
)

// PermissionRepo implements repo.PermissionRepo.
type PermissionRepo struct {
	store *Store
}

func NewPermissionRepo(store *Store) *PermissionRepo {
	return &PermissionRepo{store: store}
}

const permColumns = `id, org_id, name, resource_type, action, effect, condition, created_at, updated_at`

func scanPermission(row interface{ Scan(...any) error }) (*models.Permission, error) {
	var p models.Permission
	err := row.Scan(&p.ID, &p.OrgID, &p.Name, &p.ResourceType, &p.Action, &p.Effect,
		&p.Condition, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PermissionRepo) Create(ctx context.Context, perm *models.Permission) error {
	start := time.Now()
	_, err := r.store.q(ctx).Exec(ctx, `
		INSERT INTO permissions (id, org_id, name, resource_type, action, effect, condition, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		perm.ID, perm.OrgID, perm.Name, perm.ResourceType, perm.Action, perm.Effect,
		perm.Condition, perm.CreatedAt)
	return mapError("insert", "permissions", start, err)
}

func (r *PermissionRepo) GetByID(ctx context.Context, orgID, id string) (*models.Permission, error) {
	start := time.Now()
	p, err := scanPermission(r.store.q(ctx).QueryRow(ctx,
		`SELECT `+permColumns+` FROM permissions WHERE org_id = $1 AND id = $2`, orgID, id))
	if err != nil {
		return nil, mapError("select", "permissions", start, err)
	}
	mapError("select", "permissions", start, nil)
	return p, nil
}

func (r *PermissionRepo) GetByName(ctx context.Context, orgID, name string) (*models.Permission, error) {
	start := time.Now()
	p, err := scanPermission(r.store.q(ctx).QueryRow(ctx, `
		SELECT `+permColumns+` FROM permissions
		WHERE org_id = $1 AND lower(name) = lower($2)`, orgID, name))
	if err != nil {
		return nil, mapError("select", "permissions", start, err)
	}
	mapError("select", "permissions", start, nil)
	return p, nil
}

func (r *PermissionRepo) List(ctx context.Context, orgID string, opts repo.ListOptions) ([]*models.Permission, error) {
	start := time.Now()
	rows, err := r.store.q(ctx).Query(ctx, `
		SELECT `+permColumns+` FROM permissions
		WHERE org_id = $1 ORDER BY resource_type, action LIMIT $2 OFFSET $3`,
		orgID, clampLimit(opts.Limit), opts.Offset)
	if err != nil {
		return nil, mapError("select", "permissions", start, err)
	}
	defer rows.Close()

	var out []*models.Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, mapError("select", "permissions", start, err)
		}
		out = append(out, p)
	}
	return out, mapError("select", "permissions", start, rows.Err())
}

func (r *PermissionRepo) Update(ctx context.Context, perm *models.Permission) error {
	start := time.Now()
	tag, err := r.store.q(ctx).Exec(ctx, `
		UPDATE permissions SET name = $2, resource_type = $3, action = $4, effect = $5,
			condition = $6, updated_at = now()
		WHERE id = $1`,
		perm.ID, perm.Name, perm.ResourceType, perm.Action, perm.Effect, perm.Condition)
	if err == nil && tag.RowsAffected() == 0 {
		mapError("update", "permissions", start, nil)
		return models.E(models.ErrNotFound, "permission not found")
	}
	return mapError("update", "permissions", start, err)
}

func (r *PermissionRepo) Delete(ctx context.Context, id string) error {
	start := time.Now()
	tag, err := r.store.q(ctx).Exec(ctx, `DELETE FROM permissions WHERE id = $1`, id)
	if err == nil && tag.RowsAffected() == 0 {
		mapError("delete", "permissions", start, nil)
		return models.E(models.ErrNotFound, "permission not found")
	}
	return mapError("delete", "permissions", start, err)
}

package postgres

import (
	"context"
	"time"

	"github.com/platformbuilds/warden-core/internal/models"
)

// RolePermissionRepo implements repo.RolePermissionRepo.
type RolePermissionRepo struct {
	store *Store
}

func NewRolePermissionRepo(store *Store) *RolePermissionRepo {
	return &RolePermissionRepo{store: store}
}

func (r *RolePermissionRepo) Attach(ctx context.Context, rp *models.RolePermission) error {
	start := time.Now()
	_, err := r.store.q(ctx).Exec(ctx, `
		INSERT INTO role_permissions (id, role_id, permission_id, created_at)
		VALUES ($1, $2, $3, $4)`,
		rp.ID, rp.RoleID, rp.PermissionID, rp.CreatedAt)
	return mapError("insert", "role_permissions", start, err)
}

func (r *RolePermissionRepo) Detach(ctx context.Context, roleID, permissionID string) error {
	start := time.Now()
	tag, err := r.store.q(ctx).Exec(ctx,
		`DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`,
		roleID, permissionID)
	if err == nil && tag.RowsAffected() == 0 {
		mapError("delete", "role_permissions", start, nil)
		return models.E(models.ErrNotFound, "role permission attachment not found")
	}
	return mapError("delete", "role_permissions", start, err)
}

func (r *RolePermissionRepo) ListByRole(ctx context.Context, roleID string) ([]*models.RolePermission, error) {
	start := time.Now()
	rows, err := r.store.q(ctx).Query(ctx, `
		SELECT id, role_id, permission_id, created_at
		FROM role_permissions WHERE role_id = $1 ORDER BY created_at`, roleID)
	if err != nil {
		return nil, mapError("select", "role_permissions", start, err)
	}
	defer rows.Close()

	var out []*models.RolePermission
	for rows.Next() {
		var rp models.RolePermission
		if err := rows.Scan(&rp.ID, &rp.RoleID, &rp.PermissionID, &rp.CreatedAt); err != nil {
			return nil, mapError("select", "role_permissions", start, err)
		}
		out = append(out, &rp)
	}
	return out, mapError("select", "role_permissions", start, rows.Err())
}

func (r *RolePermissionRepo) PermissionsByRole(ctx context.Context, roleIDs []string) (map[string][]*models.Permission, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	start := time.Now()
	rows, err := r.store.q(ctx).Query(ctx, `
		SELECT rp.role_id, p.id, p.org_id, p.name, p.resource_type, p.action, p.effect,
			p.condition, p.created_at, p.updated_at
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		WHERE rp.role_id = ANY($1)`, roleIDs)
	if err != nil {
		return nil, mapError("select", "role_permissions", start, err)
	}
	defer rows.Close()

	out := make(map[string][]*models.Permission)
	for rows.Next() {
		var roleID string
		var p models.Permission
		if err := rows.Scan(&roleID, &p.ID, &p.OrgID, &p.Name, &p.ResourceType, &p.Action,
			&p.Effect, &p.Condition, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, mapError("select", "role_permissions", start, err)
		}
		out[roleID] = append(out[roleID], &p)
	}
	return out, mapError("select", "role_permissions", start, rows.Err())
}

// UserRoleRepo implements repo.UserRoleRepo.
type UserRoleRepo struct {
	store *Store
}

func NewUserRoleRepo(store *Store) *UserRoleRepo {
	return &UserRoleRepo{store: store}
}

const userRoleColumns = `id, user_id, role_id, resource_type, resource_id, granted_by, granted_at, expires_at`

func scanUserRole(row interface{ Scan(...any) error }) (*models.UserRole, error) {
	var ur models.UserRole
	err := row.Scan(&ur.ID, &ur.UserID, &ur.RoleID, &ur.ResourceType, &ur.ResourceID,
		&ur.GrantedBy, &ur.GrantedAt, &ur.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &ur, nil
}

func (r *UserRoleRepo) Grant(ctx context.Context, ur *models.UserRole) error {
	start := time.Now()
	_, err := r.store.q(ctx).Exec(ctx, `
		INSERT INTO user_roles (id, user_id, role_id, resource_type, resource_id,
			granted_by, granted_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ur.ID, ur.UserID, ur.RoleID, ur.ResourceType, ur.ResourceID,
		ur.GrantedBy, ur.GrantedAt, ur.ExpiresAt)
	return mapError("insert", "user_roles", start, err)
}

func (r *UserRoleRepo) Revoke(ctx context.Context, id string) (*models.UserRole, error) {
	start := time.Now()
	ur, err := scanUserRole(r.store.q(ctx).QueryRow(ctx, `
		DELETE FROM user_roles WHERE id = $1
		RETURNING `+userRoleColumns, id))
	if err != nil {
		return nil, mapError("delete", "user_roles", start, err)
	}
	mapError("delete", "user_roles", start, nil)
	return ur, nil
}

func (r *UserRoleRepo) Get(ctx context.Context, id string) (*models.UserRole, error) {
	start := time.Now()
	ur, err := scanUserRole(r.store.q(ctx).QueryRow(ctx,
		`SELECT `+userRoleColumns+` FROM user_roles WHERE id = $1`, id))
	if err != nil {
		return nil, mapError("select", "user_roles", start, err)
	}
	mapError("select", "user_roles", start, nil)
	return ur, nil
}

func (r *UserRoleRepo) ListByUser(ctx context.Context, userID string) ([]*models.UserRole, error) {
	start := time.Now()
	rows, err := r.store.q(ctx).Query(ctx,
		`SELECT `+userRoleColumns+` FROM user_roles WHERE user_id = $1 ORDER BY granted_at`, userID)
	if err != nil {
		return nil, mapError("select", "user_roles", start, err)
	}
	defer rows.Close()
	return collectUserRoles(rows, start)
}

func (r *UserRoleRepo) ActiveByUser(ctx context.Context, userID string, now time.Time) ([]*models.UserRole, error) {
	start := time.Now()
	rows, err := r.store.q(ctx).Query(ctx, `
		SELECT `+userRoleColumns+` FROM user_roles
		WHERE user_id = $1 AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY granted_at`, userID, now)
	if err != nil {
		return nil, mapError("select", "user_roles", start, err)
	}
	defer rows.Close()
	return collectUserRoles(rows, start)
}

func (r *UserRoleRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	start := time.Now()
	tag, err := r.store.q(ctx).Exec(ctx,
		`DELETE FROM user_roles WHERE expires_at IS NOT NULL AND expires_at <= $1`, before)
	if err != nil {
		return 0, mapError("delete", "user_roles", start, err)
	}
	mapError("delete", "user_roles", start, nil)
	return tag.RowsAffected(), nil
}

func collectUserRoles(rows interface {
	Next() bool
	Scan(...any) error
	Err() error
}, start time.Time) ([]*models.UserRole, error) {
	var out []*models.UserRole
	for rows.Next() {
		ur, err := scanUserRole(rows)
		if err != nil {
			return nil, mapError("select", "user_roles", start, err)
		}
		out = append(out, ur)
	}
	return out, mapError("select", "user_roles", start, rows.Err())
}

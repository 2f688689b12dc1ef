package postgres

import (
	"context"
	"time"

	"github.com/platformbuilds/warden-core/internal/models"
	"github.com/platformbuilds/warden-core/internal/repo"
)

// UserRepo implements repo.UserRepo.
type UserRepo struct {
	store *Store
}

func NewUserRepo(store *Store) *UserRepo {
	return &UserRepo{store: store}
}

const userColumns = `id, org_id, email, username, external_id, bearer_subject, status,
	attributes, totp_secret, last_sync_at, created_at, updated_at, deleted_at`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.OrgID, &u.Email, &u.Username, &u.ExternalID, &u.BearerSubject,
		&u.Status, &u.Attributes, &u.TOTPSecret, &u.LastSyncAt, &u.CreatedAt, &u.UpdatedAt, &u.DeletedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) Create(ctx context.Context, user *models.User) error {
	start := time.Now()
	_, err := r.store.q(ctx).Exec(ctx, `
		INSERT INTO users (id, org_id, email, username, external_id, bearer_subject,
			status, attributes, totp_secret, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`,
		user.ID, user.OrgID, user.Email, user.Username, user.ExternalID, user.BearerSubject,
		user.Status, user.Attributes, user.TOTPSecret, user.CreatedAt)
	return mapError("insert", "users", start, err)
}

func (r *UserRepo) GetByID(ctx context.Context, orgID, id string) (*models.User, error) {
	start := time.Now()
	u, err := scanUser(r.store.q(ctx).QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE org_id = $1 AND id = $2`, orgID, id))
	if err != nil {
		return nil, mapError("select", "users", start, err)
	}
	mapError("select", "users", start, nil)
	return u, nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, orgID, email string) (*models.User, error) {
	start := time.Now()
	u, err := scanUser(r.store.q(ctx).QueryRow(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE org_id = $1 AND lower(email) = lower($2) AND deleted_at IS NULL`, orgID, email))
	if err != nil {
		return nil, mapError("select", "users", start, err)
	}
	mapError("select", "users", start, nil)
	return u, nil
}

// GetByPrincipal matches the caller-supplied principal id against either
// identifier a decision request may use: external id or bearer subject.
func (r *UserRepo) GetByPrincipal(ctx context.Context, orgID, principalID string) (*models.User, error) {
	start := time.Now()
	u, err := scanUser(r.store.q(ctx).QueryRow(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE org_id = $1 AND (external_id = $2 OR bearer_subject = $2) AND deleted_at IS NULL
		LIMIT 1`, orgID, principalID))
	if err != nil {
		return nil, mapError("select", "users", start, err)
	}
	mapError("select", "users", start, nil)
	return u, nil
}

func (r *UserRepo) GetBySubject(ctx context.Context, subject string) (*models.User, error) {
	start := time.Now()
	u, err := scanUser(r.store.q(ctx).QueryRow(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE bearer_subject = $1 AND deleted_at IS NULL`, subject))
	if err != nil {
		return nil, mapError("select", "users", start, err)
	}
	mapError("select", "users", start, nil)
	return u, nil
}

func (r *UserRepo) List(ctx context.Context, orgID string, opts repo.ListOptions) ([]*models.User, error) {
	start := time.Now()
	query := `SELECT ` + userColumns + ` FROM users WHERE org_id = $1`
	if !opts.IncludeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	query += ` ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	rows, err := r.store.q(ctx).Query(ctx, query, orgID, clampLimit(opts.Limit), opts.Offset)
	if err != nil {
		return nil, mapError("select", "users", start, err)
	}
	defer rows.Close()

	var out []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, mapError("select", "users", start, err)
		}
		out = append(out, u)
	}
	return out, mapError("select", "users", start, rows.Err())
}

func (r *UserRepo) Update(ctx context.Context, user *models.User) error {
	start := time.Now()
	tag, err := r.store.q(ctx).Exec(ctx, `
		UPDATE users SET email = $2, username = $3, external_id = $4, bearer_subject = $5,
			status = $6, attributes = $7, totp_secret = $8, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`,
		user.ID, user.Email, user.Username, user.ExternalID, user.BearerSubject,
		user.Status, user.Attributes, user.TOTPSecret)
	if err == nil && tag.RowsAffected() == 0 {
		mapError("update", "users", start, nil)
		return models.E(models.ErrNotFound, "user not found")
	}
	return mapError("update", "users", start, err)
}

func (r *UserRepo) TouchLastSync(ctx context.Context, id string, at time.Time) error {
	start := time.Now()
	_, err := r.store.q(ctx).Exec(ctx,
		`UPDATE users SET last_sync_at = $2 WHERE id = $1`, id, at)
	return mapError("update", "users", start, err)
}

func (r *UserRepo) SoftDelete(ctx context.Context, id string) error {
	start := time.Now()
	tag, err := r.store.q(ctx).Exec(ctx, `
		UPDATE users SET status = 'inactive', deleted_at = now(), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`, id)
	if err == nil && tag.RowsAffected() == 0 {
		mapError("update", "users", start, nil)
		return models.E(models.ErrNotFound, "user not found")
	}
	return mapError("update", "users", start, err)
}

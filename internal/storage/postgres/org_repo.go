package postgres

import (
	"context"
	"time"

	"github.com/platformbuilds/warden-core/internal/models"
	"github.com/platformbuilds/warden-core/internal/repo"
)

// OrganizationRepo implements repo.OrganizationRepo.
type OrganizationRepo struct {
	store *Store
}

func NewOrganizationRepo(store *Store) *OrganizationRepo {
	return &OrganizationRepo{store: store}
}

const orgColumns = `id, name, status, settings, created_at, updated_at, deleted_at`

func scanOrg(row interface{ Scan(...any) error }) (*models.Organization, error) {
	var o models.Organization
	err := row.Scan(&o.ID, &o.Name, &o.Status, &o.Settings, &o.CreatedAt, &o.UpdatedAt, &o.DeletedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OrganizationRepo) Create(ctx context.Context, org *models.Organization) error {
	start := time.Now()
	_, err := r.store.q(ctx).Exec(ctx, `
		INSERT INTO organizations (id, name, status, settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)`,
		org.ID, org.Name, org.Status, org.Settings, org.CreatedAt)
	return mapError("insert", "organizations", start, err)
}

func (r *OrganizationRepo) GetByID(ctx context.Context, id string) (*models.Organization, error) {
	start := time.Now()
	org, err := scanOrg(r.store.q(ctx).QueryRow(ctx,
		`SELECT `+orgColumns+` FROM organizations WHERE id = $1`, id))
	if err != nil {
		return nil, mapError("select", "organizations", start, err)
	}
	mapError("select", "organizations", start, nil)
	return org, nil
}

func (r *OrganizationRepo) GetByName(ctx context.Context, name string) (*models.Organization, error) {
	start := time.Now()
	org, err := scanOrg(r.store.q(ctx).QueryRow(ctx,
		`SELECT `+orgColumns+` FROM organizations WHERE lower(name) = lower($1) AND deleted_at IS NULL`, name))
	if err != nil {
		return nil, mapError("select", "organizations", start, err)
	}
	mapError("select", "organizations", start, nil)
	return org, nil
}

func (r *OrganizationRepo) List(ctx context.Context, opts repo.ListOptions) ([]*models.Organization, error) {
	start := time.Now()
	query := `SELECT ` + orgColumns + ` FROM organizations`
	if !opts.IncludeDeleted {
		query += ` WHERE deleted_at IS NULL`
	}
	query += ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := r.store.q(ctx).Query(ctx, query, clampLimit(opts.Limit), opts.Offset)
	if err != nil {
		return nil, mapError("select", "organizations", start, err)
	}
	defer rows.Close()

	var out []*models.Organization
	for rows.Next() {
		org, err := scanOrg(rows)
		if err != nil {
			return nil, mapError("select", "organizations", start, err)
		}
		out = append(out, org)
	}
	return out, mapError("select", "organizations", start, rows.Err())
}

func (r *OrganizationRepo) Update(ctx context.Context, org *models.Organization) error {
	start := time.Now()
	tag, err := r.store.q(ctx).Exec(ctx, `
		UPDATE organizations SET name = $2, status = $3, settings = $4, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`,
		org.ID, org.Name, org.Status, org.Settings)
	if err == nil && tag.RowsAffected() == 0 {
		mapError("update", "organizations", start, nil)
		return models.E(models.ErrNotFound, "organization not found")
	}
	return mapError("update", "organizations", start, err)
}

func (r *OrganizationRepo) SetStatus(ctx context.Context, id string, status models.OrgStatus) error {
	start := time.Now()
	tag, err := r.store.q(ctx).Exec(ctx, `
		UPDATE organizations SET status = $2, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`, id, status)
	if err == nil && tag.RowsAffected() == 0 {
		mapError("update", "organizations", start, nil)
		return models.E(models.ErrNotFound, "organization not found")
	}
	return mapError("update", "organizations", start, err)
}

func (r *OrganizationRepo) SoftDelete(ctx context.Context, id string) error {
	start := time.Now()
	tag, err := r.store.q(ctx).Exec(ctx, `
		UPDATE organizations SET status = 'deleted', deleted_at = now(), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`, id)
	if err == nil && tag.RowsAffected() == 0 {
		mapError("update", "organizations", start, nil)
		return models.E(models.ErrNotFound, "organization not found")
	}
	return mapError("update", "organizations", start, err)
}

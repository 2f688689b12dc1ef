package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/platformbuilds/warden-core/internal/models"
	"github.com/platformbuilds/warden-core/internal/repo"
)

// PolicyRepo implements repo.PolicyRepo, covering both policy heads and their
// immutable version rows.
type PolicyRepo struct {
	store *Store
}

func NewPolicyRepo(store *Store) *PolicyRepo {
	return &PolicyRepo{store: store}
}

const policyColumns = `id, org_id, name, display_name, type, status, current_version,
	created_at, updated_at, deleted_at`

func scanPolicy(row interface{ Scan(...any) error }) (*models.Policy, error) {
	var p models.Policy
	err := row.Scan(&p.ID, &p.OrgID, &p.Name, &p.DisplayName, &p.Type, &p.Status,
		&p.CurrentVersion, &p.CreatedAt, &p.UpdatedAt, &p.DeletedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

const policyVersionColumns = `id, policy_id, version, content, checksum, validation_status,
	validation_errors, duplicate_of, published_at, created_at`

func scanPolicyVersion(row interface{ Scan(...any) error }) (*models.PolicyVersion, error) {
	var v models.PolicyVersion
	err := row.Scan(&v.ID, &v.PolicyID, &v.Version, &v.Content, &v.Checksum,
		&v.ValidationStatus, &v.ValidationErrors, &v.DuplicateOf, &v.PublishedAt, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *PolicyRepo) Create(ctx context.Context, policy *models.Policy) error {
	start := time.Now()
	_, err := r.store.q(ctx).Exec(ctx, `
		INSERT INTO policies (id, org_id, name, display_name, type, status, current_version,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		policy.ID, policy.OrgID, policy.Name, policy.DisplayName, policy.Type, policy.Status,
		policy.CurrentVersion, policy.CreatedAt)
	return mapError("insert", "policies", start, err)
}

func (r *PolicyRepo) GetByID(ctx context.Context, orgID, id string) (*models.Policy, error) {
	start := time.Now()
	p, err := scanPolicy(r.store.q(ctx).QueryRow(ctx,
		`SELECT `+policyColumns+` FROM policies WHERE org_id = $1 AND id = $2`, orgID, id))
	if err != nil {
		return nil, mapError("select", "policies", start, err)
	}
	mapError("select", "policies", start, nil)
	return p, nil
}

func (r *PolicyRepo) GetByName(ctx context.Context, orgID, name string) (*models.Policy, error) {
	start := time.Now()
	p, err := scanPolicy(r.store.q(ctx).QueryRow(ctx, `
		SELECT `+policyColumns+` FROM policies
		WHERE org_id = $1 AND lower(name) = lower($2) AND deleted_at IS NULL`, orgID, name))
	if err != nil {
		return nil, mapError("select", "policies", start, err)
	}
	mapError("select", "policies", start, nil)
	return p, nil
}

func (r *PolicyRepo) List(ctx context.Context, orgID string, opts repo.ListOptions) ([]*models.Policy, error) {
	start := time.Now()
	query := `SELECT ` + policyColumns + ` FROM policies WHERE org_id = $1`
	if !opts.IncludeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	query += ` ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	rows, err := r.store.q(ctx).Query(ctx, query, orgID, clampLimit(opts.Limit), opts.Offset)
	if err != nil {
		return nil, mapError("select", "policies", start, err)
	}
	defer rows.Close()

	var out []*models.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, mapError("select", "policies", start, err)
		}
		out = append(out, p)
	}
	return out, mapError("select", "policies", start, rows.Err())
}

func (r *PolicyRepo) Update(ctx context.Context, policy *models.Policy) error {
	start := time.Now()
	tag, err := r.store.q(ctx).Exec(ctx, `
		UPDATE policies SET display_name = $2, status = $3, current_version = $4, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`,
		policy.ID, policy.DisplayName, policy.Status, policy.CurrentVersion)
	if err == nil && tag.RowsAffected() == 0 {
		mapError("update", "policies", start, nil)
		return models.E(models.ErrNotFound, "policy not found")
	}
	return mapError("update", "policies", start, err)
}

func (r *PolicyRepo) SoftDelete(ctx context.Context, id string) error {
	start := time.Now()
	tag, err := r.store.q(ctx).Exec(ctx, `
		UPDATE policies SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`, id)
	if err == nil && tag.RowsAffected() == 0 {
		mapError("update", "policies", start, nil)
		return models.E(models.ErrNotFound, "policy not found")
	}
	return mapError("update", "policies", start, err)
}

func (r *PolicyRepo) CreateVersion(ctx context.Context, version *models.PolicyVersion) error {
	start := time.Now()
	_, err := r.store.q(ctx).Exec(ctx, `
		INSERT INTO policy_versions (id, policy_id, version, content, checksum,
			validation_status, validation_errors, duplicate_of, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		version.ID, version.PolicyID, version.Version, version.Content, version.Checksum,
		version.ValidationStatus, version.ValidationErrors, version.DuplicateOf, version.CreatedAt)
	return mapError("insert", "policy_versions", start, err)
}

func (r *PolicyRepo) GetVersion(ctx context.Context, policyID string, version int) (*models.PolicyVersion, error) {
	start := time.Now()
	v, err := scanPolicyVersion(r.store.q(ctx).QueryRow(ctx, `
		SELECT `+policyVersionColumns+` FROM policy_versions
		WHERE policy_id = $1 AND version = $2`, policyID, version))
	if err != nil {
		return nil, mapError("select", "policy_versions", start, err)
	}
	mapError("select", "policy_versions", start, nil)
	return v, nil
}

func (r *PolicyRepo) ListVersions(ctx context.Context, policyID string) ([]*models.PolicyVersion, error) {
	start := time.Now()
	rows, err := r.store.q(ctx).Query(ctx, `
		SELECT `+policyVersionColumns+` FROM policy_versions
		WHERE policy_id = $1 ORDER BY version DESC`, policyID)
	if err != nil {
		return nil, mapError("select", "policy_versions", start, err)
	}
	defer rows.Close()

	var out []*models.PolicyVersion
	for rows.Next() {
		v, err := scanPolicyVersion(rows)
		if err != nil {
			return nil, mapError("select", "policy_versions", start, err)
		}
		out = append(out, v)
	}
	return out, mapError("select", "policy_versions", start, rows.Err())
}

func (r *PolicyRepo) MaxVersion(ctx context.Context, policyID string) (int, error) {
	start := time.Now()
	var max int
	err := r.store.q(ctx).QueryRow(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM policy_versions WHERE policy_id = $1`,
		policyID).Scan(&max)
	if err != nil {
		return 0, mapError("select", "policy_versions", start, err)
	}
	mapError("select", "policy_versions", start, nil)
	return max, nil
}

func (r *PolicyRepo) FindByChecksum(ctx context.Context, policyID, checksum string) (*models.PolicyVersion, error) {
	start := time.Now()
	v, err := scanPolicyVersion(r.store.q(ctx).QueryRow(ctx, `
		SELECT `+policyVersionColumns+` FROM policy_versions
		WHERE policy_id = $1 AND checksum = $2
		ORDER BY version LIMIT 1`, policyID, checksum))
	if errors.Is(err, pgx.ErrNoRows) {
		mapError("select", "policy_versions", start, nil)
		return nil, nil
	}
	if err != nil {
		return nil, mapError("select", "policy_versions", start, err)
	}
	mapError("select", "policy_versions", start, nil)
	return v, nil
}

func (r *PolicyRepo) SetValidation(ctx context.Context, versionID string, status models.ValidationStatus, issues []models.ValidationIssue) error {
	start := time.Now()
	tag, err := r.store.q(ctx).Exec(ctx, `
		UPDATE policy_versions SET validation_status = $2, validation_errors = $3
		WHERE id = $1`, versionID, status, issues)
	if err == nil && tag.RowsAffected() == 0 {
		mapError("update", "policy_versions", start, nil)
		return models.E(models.ErrNotFound, "policy version not found")
	}
	return mapError("update", "policy_versions", start, err)
}

func (r *PolicyRepo) MarkPublished(ctx context.Context, versionID string, at time.Time) error {
	start := time.Now()
	tag, err := r.store.q(ctx).Exec(ctx,
		`UPDATE policy_versions SET published_at = $2 WHERE id = $1`, versionID, at)
	if err == nil && tag.RowsAffected() == 0 {
		mapError("update", "policy_versions", start, nil)
		return models.E(models.ErrNotFound, "policy version not found")
	}
	return mapError("update", "policy_versions", start, err)
}

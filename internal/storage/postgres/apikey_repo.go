package postgres

import (
	"context"
	"time"

	"github.com/platformbuilds/warden-core/internal/models"
)

// APIKeyRepo implements repo.APIKeyRepo.
type APIKeyRepo struct {
	store *Store
}

func NewAPIKeyRepo(store *Store) *APIKeyRepo {
	return &APIKeyRepo{store: store}
}

const apiKeyColumns = `id, org_id, name, key_id, secret_hash, status, expires_at,
	last_used_at, created_by, created_at, revoked_at`

func scanAPIKey(row interface{ Scan(...any) error }) (*models.APIKey, error) {
	var k models.APIKey
	err := row.Scan(&k.ID, &k.OrgID, &k.Name, &k.KeyID, &k.SecretHash, &k.Status,
		&k.ExpiresAt, &k.LastUsedAt, &k.CreatedBy, &k.CreatedAt, &k.RevokedAt)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

func (r *APIKeyRepo) Create(ctx context.Context, key *models.APIKey) error {
	start := time.Now()
	_, err := r.store.q(ctx).Exec(ctx, `
		INSERT INTO api_keys (id, org_id, name, key_id, secret_hash, status, expires_at,
			created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		key.ID, key.OrgID, key.Name, key.KeyID, key.SecretHash, key.Status,
		key.ExpiresAt, key.CreatedBy, key.CreatedAt)
	return mapError("insert", "api_keys", start, err)
}

func (r *APIKeyRepo) GetByKeyID(ctx context.Context, keyID string) (*models.APIKey, error) {
	start := time.Now()
	k, err := scanAPIKey(r.store.q(ctx).QueryRow(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_id = $1`, keyID))
	if err != nil {
		return nil, mapError("select", "api_keys", start, err)
	}
	mapError("select", "api_keys", start, nil)
	return k, nil
}

func (r *APIKeyRepo) ListByOrg(ctx context.Context, orgID string) ([]*models.APIKey, error) {
	start := time.Now()
	rows, err := r.store.q(ctx).Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE org_id = $1 ORDER BY created_at DESC`, orgID)
	if err != nil {
		return nil, mapError("select", "api_keys", start, err)
	}
	defer rows.Close()

	var out []*models.APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, mapError("select", "api_keys", start, err)
		}
		out = append(out, k)
	}
	return out, mapError("select", "api_keys", start, rows.Err())
}

func (r *APIKeyRepo) Revoke(ctx context.Context, orgID, id string, at time.Time) error {
	start := time.Now()
	tag, err := r.store.q(ctx).Exec(ctx, `
		UPDATE api_keys SET status = 'revoked', revoked_at = $3
		WHERE org_id = $1 AND id = $2 AND status = 'active'`, orgID, id, at)
	if err == nil && tag.RowsAffected() == 0 {
		mapError("update", "api_keys", start, nil)
		return models.E(models.ErrNotFound, "active api key not found")
	}
	return mapError("update", "api_keys", start, err)
}

func (r *APIKeyRepo) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	start := time.Now()
	_, err := r.store.q(ctx).Exec(ctx,
		`UPDATE api_keys SET last_used_at = $2 WHERE id = $1`, id, at)
	return mapError("update", "api_keys", start, err)
}

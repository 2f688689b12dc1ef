package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/platformbuilds/warden-core/internal/models"
	"github.com/platformbuilds/warden-core/internal/monitoring"
	"github.com/platformbuilds/warden-core/internal/repo"
	valkey "github.com/platformbuilds/warden-core/pkg/cache"
	"github.com/platformbuilds/warden-core/pkg/logger"
)

// verifiedKeyTTL bounds how long a positive bcrypt verification is reused
// before the stored key row is consulted again. Revocation therefore takes
// effect within this window for hot keys.
const verifiedKeyTTL = 60 * time.Second

// APIKeyVerifier authenticates machine callers. Two credential sources:
// static keys from configuration (secret → tenant) and managed keys minted
// through the admin API and bcrypt-hashed in the store.
type APIKeyVerifier struct {
	static    map[string]string
	keys      repo.APIKeyRepo
	l2        valkey.ValkeyCluster
	keyPrefix string
	logger    logger.Logger
	now       func() time.Time
}

func NewAPIKeyVerifier(static map[string]string, keys repo.APIKeyRepo, l2 valkey.ValkeyCluster, keyPrefix string, log logger.Logger) *APIKeyVerifier {
	return &APIKeyVerifier{
		static:    static,
		keys:      keys,
		l2:        l2,
		keyPrefix: keyPrefix,
		logger:    log,
		now:       time.Now,
	}
}

// Verify resolves the presented token to a tenant-scoped principal.
func (v *APIKeyVerifier) Verify(ctx context.Context, token string) (*Principal, error) {
	if tenant, ok := v.static[token]; ok {
		monitoring.RecordAuthAttempt("apikey", "success")
		// Distinct subjects per static key keep rate limiting per credential
		// without the secret ever leaving this package.
		sum := sha256.Sum256([]byte(token))
		return &Principal{
			Subject:  "apikey:static:" + hex.EncodeToString(sum[:8]),
			TenantID: tenant,
			Method:   "apikey",
		}, nil
	}

	keyID, secret, ok := models.SplitAPIKeyToken(token)
	if !ok {
		monitoring.RecordAuthAttempt("apikey", "failure")
		return nil, models.E(models.ErrAuthenticationFailed, "unrecognized api key")
	}

	if p := v.cachedVerification(ctx, token, keyID); p != nil {
		monitoring.RecordAuthAttempt("apikey", "success")
		return p, nil
	}

	key, err := v.keys.GetByKeyID(ctx, keyID)
	if err != nil {
		monitoring.RecordAuthAttempt("apikey", "failure")
		if models.IsKind(err, models.ErrNotFound) {
			return nil, models.E(models.ErrAuthenticationFailed, "unrecognized api key")
		}
		return nil, err
	}
	if !key.Usable(v.now()) {
		monitoring.RecordAuthAttempt("apikey", "failure")
		return nil, models.E(models.ErrAuthenticationFailed, "api key is revoked or expired")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(key.SecretHash), []byte(secret)); err != nil {
		monitoring.RecordAuthAttempt("apikey", "failure")
		return nil, models.E(models.ErrAuthenticationFailed, "api key secret mismatch")
	}

	v.storeVerification(ctx, token, key.OrgID)
	if err := v.keys.TouchLastUsed(ctx, key.ID, v.now()); err != nil {
		v.logger.Warn("Failed to record api key usage", "keyId", keyID, "error", err)
	}

	monitoring.RecordAuthAttempt("apikey", "success")
	return &Principal{Subject: "apikey:" + keyID, TenantID: key.OrgID, Method: "apikey"}, nil
}

// cachedVerification reuses a recent positive verification; the token never
// hits the cache in clear, only its digest does.
func (v *APIKeyVerifier) cachedVerification(ctx context.Context, token, keyID string) *Principal {
	if v.l2 == nil {
		return nil
	}
	b, err := v.l2.Get(ctx, v.verificationKey(token))
	if err != nil {
		return nil
	}
	return &Principal{Subject: "apikey:" + keyID, TenantID: string(b), Method: "apikey"}
}

func (v *APIKeyVerifier) storeVerification(ctx context.Context, token, orgID string) {
	if v.l2 == nil {
		return
	}
	if err := v.l2.Set(ctx, v.verificationKey(token), orgID, verifiedKeyTTL); err != nil {
		v.logger.Debug("Failed to cache api key verification", "error", err)
	}
}

func (v *APIKeyVerifier) verificationKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return v.keyPrefix + "apikeyauth:" + hex.EncodeToString(sum[:])
}

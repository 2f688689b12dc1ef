package models

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
	"time"
)

// APIKeyPrefix identifies WARDEN-CORE managed keys on the wire.
const APIKeyPrefix = "wak"

// APIKey is a managed machine credential scoped to one organization. The
// secret is bcrypt-hashed at rest and shown to the caller exactly once.
type APIKey struct {
	ID         string       `json:"id"`
	OrgID      string       `json:"orgId"`
	Name       string       `json:"name"`
	KeyID      string       `json:"keyId"`
	SecretHash string       `json:"-"`
	Status     APIKeyStatus `json:"status"`
	ExpiresAt  *time.Time   `json:"expiresAt,omitempty"`
	LastUsedAt *time.Time   `json:"lastUsedAt,omitempty"`
	CreatedBy  *string      `json:"createdBy,omitempty"`
	CreatedAt  time.Time    `json:"createdAt"`
	RevokedAt  *time.Time   `json:"revokedAt,omitempty"`
}

// Usable reports whether the key may authenticate at the given instant.
func (k *APIKey) Usable(now time.Time) bool {
	if k.Status != APIKeyActive {
		return false
	}
	return k.ExpiresAt == nil || k.ExpiresAt.After(now)
}

// APIKeyCreateRequest is the admin request to mint a key.
type APIKeyCreateRequest struct {
	Name      string     `json:"name" binding:"required"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// APIKeyCreateResponse carries the raw token exactly once.
type APIKeyCreateResponse struct {
	APIKey  *APIKey `json:"apiKey"`
	Token   string  `json:"token"`
	Warning string  `json:"warning"`
}

// NewAPIKeyToken mints a fresh (keyID, secret, token) triple. Token layout is
// wak_<keyID>_<secret>; the keyID alone is stored in clear for lookup.
func NewAPIKeyToken() (keyID, secret, token string, err error) {
	enc := base32.StdEncoding.WithPadding(base32.NoPadding)
	idBytes := make([]byte, 8)
	if _, err = rand.Read(idBytes); err != nil {
		return "", "", "", err
	}
	secretBytes := make([]byte, 24)
	if _, err = rand.Read(secretBytes); err != nil {
		return "", "", "", err
	}
	keyID = strings.ToLower(enc.EncodeToString(idBytes))
	secret = strings.ToLower(enc.EncodeToString(secretBytes))
	return keyID, secret, fmt.Sprintf("%s_%s_%s", APIKeyPrefix, keyID, secret), nil
}

// SplitAPIKeyToken parses a wire token into key id and secret. The boolean is
// false for anything that is not a managed-key token.
func SplitAPIKeyToken(token string) (keyID, secret string, ok bool) {
	parts := strings.SplitN(token, "_", 3)
	if len(parts) != 3 || parts[0] != APIKeyPrefix || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/warden-core/internal/config"
	"github.com/platformbuilds/warden-core/internal/models"
	"github.com/platformbuilds/warden-core/pkg/logger"
)

type providerFixture struct {
	key    *rsa.PrivateKey
	kid    string
	server *httptest.Server
}

func newProvider(t *testing.T) *providerFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	f := &providerFixture{key: key, kid: "test-key-1"}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"keys": []map[string]string{{
				"kid": f.kid,
				"kty": "RSA",
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
			}},
		})
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *providerFixture) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = f.kid
	raw, err := token.SignedString(f.key)
	require.NoError(t, err)
	return raw
}

func verifierFor(f *providerFixture) *TokenVerifier {
	cfg := config.OIDCConfig{
		Enabled:          true,
		Issuer:           "https://idp.example.com",
		JWKSURI:          f.server.URL + "/jwks",
		Audience:         "warden-core",
		ClockSkewSeconds: 30,
		JWKSCacheTTL:     time.Hour,
		TenantClaim:      "org",
	}
	jwks := NewJWKSCache(cfg.JWKSURI, cfg.JWKSCacheTTL, nil, logger.NewNop())
	return NewTokenVerifier(cfg, jwks, logger.NewNop())
}

func baseClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"iss":   "https://idp.example.com",
		"aud":   "warden-core",
		"sub":   "user-123",
		"email": "user@example.com",
		"org":   "org-1",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"iat":   time.Now().Unix(),
	}
}

func TestVerify_ValidToken(t *testing.T) {
	f := newProvider(t)
	v := verifierFor(f)

	p, err := v.Verify(context.Background(), f.sign(t, baseClaims()))
	require.NoError(t, err)
	assert.Equal(t, "user-123", p.Subject)
	assert.Equal(t, "org-1", p.TenantID)
	assert.Equal(t, "user@example.com", p.Email)
	assert.Equal(t, "bearer", p.Method)
}

func TestVerify_RejectsWrongIssuer(t *testing.T) {
	f := newProvider(t)
	v := verifierFor(f)

	claims := baseClaims()
	claims["iss"] = "https://evil.example.com"
	_, err := v.Verify(context.Background(), f.sign(t, claims))
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.ErrAuthenticationFailed))
}

func TestVerify_RejectsWrongAudience(t *testing.T) {
	f := newProvider(t)
	v := verifierFor(f)

	claims := baseClaims()
	claims["aud"] = "some-other-service"
	_, err := v.Verify(context.Background(), f.sign(t, claims))
	assert.Error(t, err)
}

func TestVerify_AudienceListContainment(t *testing.T) {
	f := newProvider(t)
	v := verifierFor(f)

	claims := baseClaims()
	claims["aud"] = []string{"other", "warden-core"}
	_, err := v.Verify(context.Background(), f.sign(t, claims))
	assert.NoError(t, err)
}

func TestVerify_ExpiryWithinSkewAccepted(t *testing.T) {
	f := newProvider(t)
	v := verifierFor(f)

	claims := baseClaims()
	claims["exp"] = time.Now().Add(-10 * time.Second).Unix() // inside 30s leeway
	_, err := v.Verify(context.Background(), f.sign(t, claims))
	assert.NoError(t, err)

	claims["exp"] = time.Now().Add(-2 * time.Minute).Unix()
	_, err = v.Verify(context.Background(), f.sign(t, claims))
	assert.Error(t, err)
}

func TestVerify_RejectsMissingSubject(t *testing.T) {
	f := newProvider(t)
	v := verifierFor(f)

	claims := baseClaims()
	delete(claims, "sub")
	_, err := v.Verify(context.Background(), f.sign(t, claims))
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.ErrAuthenticationFailed))
}

func TestVerify_MissingTenantClaimLeavesTenantEmpty(t *testing.T) {
	f := newProvider(t)
	v := verifierFor(f)

	claims := baseClaims()
	delete(claims, "org")
	p, err := v.Verify(context.Background(), f.sign(t, claims))
	require.NoError(t, err)
	assert.Empty(t, p.TenantID)
}

func TestVerify_RejectsUnsignedToken(t *testing.T) {
	f := newProvider(t)
	v := verifierFor(f)

	token := jwt.NewWithClaims(jwt.SigningMethodNone, baseClaims())
	raw, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), raw)
	assert.Error(t, err)
}

func TestJWKSCache_RefreshOnUnknownKid(t *testing.T) {
	f := newProvider(t)
	jwks := NewJWKSCache(f.server.URL, time.Hour, nil, logger.NewNop())

	_, err := jwks.Key(context.Background(), "test-key-1")
	require.NoError(t, err)

	// Rotate the provider key set; a fresh kid must force a refetch even
	// though the TTL has not elapsed.
	f.kid = "test-key-2"
	_, err = jwks.Key(context.Background(), "test-key-2")
	assert.NoError(t, err)
}

package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/platformbuilds/warden-core/internal/config"
	"github.com/platformbuilds/warden-core/internal/models"
	"github.com/platformbuilds/warden-core/pkg/logger"
)

// Principal is the authenticated identity threaded through the request
// context after the gate admits a call.
type Principal struct {
	Subject  string
	TenantID string
	Email    string
	Method   string // "bearer" or "apikey"
}

// TokenVerifier validates OIDC bearer tokens: RS256 signature against the
// JWKS, exact issuer match, audience containment, expiry with clock skew,
// and a non-empty subject.
type TokenVerifier struct {
	cfg    config.OIDCConfig
	jwks   *JWKSCache
	logger logger.Logger
	now    func() time.Time
}

func NewTokenVerifier(cfg config.OIDCConfig, jwks *JWKSCache, log logger.Logger) *TokenVerifier {
	return &TokenVerifier{cfg: cfg, jwks: jwks, logger: log, now: time.Now}
}

// Verify parses and validates the raw token. The tenant comes from the
// configured tenant claim; a missing claim leaves TenantID empty for the
// gate to resolve from the X-Tenant-ID header.
func (v *TokenVerifier) Verify(ctx context.Context, raw string) (*Principal, error) {
	skew := time.Duration(v.cfg.ClockSkewSeconds) * time.Second

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.cfg.Issuer),
		jwt.WithAudience(v.cfg.Audience),
		jwt.WithLeeway(skew),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)

	claims := jwt.MapClaims{}
	_, err := parser.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("token header carries no kid")
		}
		return v.jwks.Key(ctx, kid)
	})
	if err != nil {
		return nil, models.Wrap(models.ErrAuthenticationFailed, "bearer token rejected", err)
	}

	subject, _ := claims["sub"].(string)
	if subject == "" {
		return nil, models.E(models.ErrAuthenticationFailed, "bearer token carries no subject")
	}

	p := &Principal{Subject: subject, Method: "bearer"}
	if email, ok := claims["email"].(string); ok {
		p.Email = email
	}
	if tenant, ok := claims[v.cfg.TenantClaim].(string); ok {
		p.TenantID = tenant
	}
	return p, nil
}

package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestUserRole_Expired(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name      string
		expiresAt *time.Time
		expired   bool
	}{
		{"no expiry", nil, false},
		{"future expiry", timePtr(now.Add(time.Hour)), false},
		{"past expiry", timePtr(now.Add(-time.Hour)), true},
		{"expiry exactly now", timePtr(now), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ur := &UserRole{ExpiresAt: tt.expiresAt}
			assert.Equal(t, tt.expired, ur.Expired(now))
		})
	}
}

func TestUserRole_MatchesScope(t *testing.T) {
	tests := []struct {
		name         string
		scopeType    *string
		scopeID      *string
		resourceType string
		resourceID   string
		want         bool
	}{
		{"global matches anything", nil, nil, "document", "doc-1", true},
		{"type scope matches same type", strPtr("document"), nil, "document", "doc-9", true},
		{"type scope rejects other type", strPtr("document"), nil, "invoice", "inv-1", false},
		{"instance scope exact match", strPtr("document"), strPtr("doc-1"), "document", "doc-1", true},
		{"instance scope other id", strPtr("document"), strPtr("doc-1"), "document", "doc-2", false},
		{"instance scope other type", strPtr("document"), strPtr("doc-1"), "invoice", "doc-1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ur := &UserRole{ResourceType: tt.scopeType, ResourceID: tt.scopeID}
			assert.Equal(t, tt.want, ur.MatchesScope(tt.resourceType, tt.resourceID))
		})
	}
}

func TestUser_PrincipalKeys(t *testing.T) {
	u := &User{ExternalID: strPtr("u-ext-1"), BearerSubject: strPtr("sub-77")}
	assert.ElementsMatch(t, []string{"u-ext-1", "sub-77"}, u.PrincipalKeys())

	same := &User{ExternalID: strPtr("u-ext-1"), BearerSubject: strPtr("u-ext-1")}
	assert.Equal(t, []string{"u-ext-1"}, same.PrincipalKeys())

	empty := &User{}
	assert.Empty(t, empty.PrincipalKeys())
}

func TestDecision_Cacheable(t *testing.T) {
	assert.True(t, (&Decision{Decision: DecisionAllow}).Cacheable())
	assert.True(t, (&Decision{Decision: DecisionDeny}).Cacheable())
	assert.False(t, (&Decision{Decision: DecisionError}).Cacheable())

	var nilDecision *Decision
	assert.False(t, nilDecision.Cacheable())
}

func TestCachedDecision_RoundTrip(t *testing.T) {
	now := time.Now()
	d := &Decision{
		Decision:                DecisionAllow,
		Reason:                  "viewer: document:read",
		ContributingRoles:       []string{"viewer"},
		ContributingPermissions: []string{"document:read"},
		EvaluationTimeMs:        3.2,
	}

	cached := NewCachedDecision(d, now)
	assert.Equal(t, now, cached.CreatedAt)

	back := cached.ToDecision()
	assert.Equal(t, d.Decision, back.Decision)
	assert.Equal(t, d.Reason, back.Reason)
	assert.Equal(t, d.ContributingRoles, back.ContributingRoles)
	assert.Equal(t, d.ContributingPermissions, back.ContributingPermissions)
	assert.Zero(t, back.EvaluationTimeMs)
}

func TestAPIKeyToken_SplitRoundTrip(t *testing.T) {
	keyID, secret, token, err := NewAPIKeyToken()
	require.NoError(t, err)
	assert.NotEmpty(t, keyID)
	assert.NotEmpty(t, secret)

	gotID, gotSecret, ok := SplitAPIKeyToken(token)
	require.True(t, ok)
	assert.Equal(t, keyID, gotID)
	assert.Equal(t, secret, gotSecret)
}

func TestSplitAPIKeyToken_Rejects(t *testing.T) {
	for _, token := range []string{"", "wak_only-two", "zzz_id_secret", "wak__secret", "wak_id_"} {
		_, _, ok := SplitAPIKeyToken(token)
		assert.False(t, ok, "token %q should not parse", token)
	}
}

func TestAPIKey_Usable(t *testing.T) {
	now := time.Now()
	active := &APIKey{Status: APIKeyActive}
	assert.True(t, active.Usable(now))

	revoked := &APIKey{Status: APIKeyRevoked}
	assert.False(t, revoked.Usable(now))

	expired := &APIKey{Status: APIKeyActive, ExpiresAt: timePtr(now.Add(-time.Minute))}
	assert.False(t, expired.Usable(now))
}

func timePtr(t time.Time) *time.Time { return &t }

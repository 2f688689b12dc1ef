package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrgStatus_TotalMapping(t *testing.T) {
	for _, s := range []OrgStatus{OrgActive, OrgSuspended, OrgDeleted} {
		parsed, err := ParseOrgStatus(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	_, err := ParseOrgStatus("zombie")
	assert.Error(t, err)
}

func TestUserStatus_TotalMapping(t *testing.T) {
	for _, s := range []UserStatus{UserActive, UserInactive, UserSuspended} {
		parsed, err := ParseUserStatus(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	_, err := ParseUserStatus("")
	assert.Error(t, err)
}

func TestEffect_TotalMapping(t *testing.T) {
	for _, e := range []Effect{EffectAllow, EffectDeny} {
		parsed, err := ParseEffect(string(e))
		require.NoError(t, err)
		assert.Equal(t, e, parsed)
	}
	_, err := ParseEffect("maybe")
	assert.Error(t, err)
}

func TestPolicyEnums_TotalMapping(t *testing.T) {
	for _, typ := range []PolicyType{PolicyTypeRego, PolicyTypeCedar} {
		parsed, err := ParsePolicyType(string(typ))
		require.NoError(t, err)
		assert.Equal(t, typ, parsed)
	}
	_, err := ParsePolicyType("xacml")
	assert.Error(t, err)

	for _, s := range []PolicyStatus{PolicyDraft, PolicyActive, PolicyArchived} {
		parsed, err := ParsePolicyStatus(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	_, err = ParsePolicyStatus("published")
	assert.Error(t, err)

	for _, s := range []ValidationStatus{ValidationPending, ValidationValid, ValidationInvalid} {
		parsed, err := ParseValidationStatus(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	_, err = ParseValidationStatus("unknown")
	assert.Error(t, err)
}

func TestDecisionOutcome_TotalMapping(t *testing.T) {
	for _, d := range []DecisionOutcome{DecisionAllow, DecisionDeny, DecisionError} {
		parsed, err := ParseDecisionOutcome(string(d))
		require.NoError(t, err)
		assert.Equal(t, d, parsed)
	}
	_, err := ParseDecisionOutcome("granted")
	assert.Error(t, err)
}

func TestAPIKeyStatus_TotalMapping(t *testing.T) {
	for _, s := range []APIKeyStatus{APIKeyActive, APIKeyRevoked} {
		parsed, err := ParseAPIKeyStatus(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	_, err := ParseAPIKeyStatus("expired")
	assert.Error(t, err)
}

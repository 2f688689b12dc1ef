package models

import "fmt"

// Closed status and enum types. Every type carries a total two-way mapping
// between Go values and wire strings; unknown wire strings fail parsing
// instead of leaking through.

// OrgStatus is the organization lifecycle state.
type OrgStatus string

const (
	OrgActive    OrgStatus = "active"
	OrgSuspended OrgStatus = "suspended"
	OrgDeleted   OrgStatus = "deleted"
)

func (s OrgStatus) Valid() bool {
	switch s {
	case OrgActive, OrgSuspended, OrgDeleted:
		return true
	}
	return false
}

func ParseOrgStatus(v string) (OrgStatus, error) {
	s := OrgStatus(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown organization status %q", v)
	}
	return s, nil
}

// UserStatus is the user lifecycle state.
type UserStatus string

const (
	UserActive    UserStatus = "active"
	UserInactive  UserStatus = "inactive"
	UserSuspended UserStatus = "suspended"
)

func (s UserStatus) Valid() bool {
	switch s {
	case UserActive, UserInactive, UserSuspended:
		return true
	}
	return false
}

func ParseUserStatus(v string) (UserStatus, error) {
	s := UserStatus(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown user status %q", v)
	}
	return s, nil
}

// Effect is a permission's grant polarity.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

func (e Effect) Valid() bool {
	return e == EffectAllow || e == EffectDeny
}

func ParseEffect(v string) (Effect, error) {
	e := Effect(v)
	if !e.Valid() {
		return "", fmt.Errorf("unknown permission effect %q", v)
	}
	return e, nil
}

// PolicyType identifies the policy language.
type PolicyType string

const (
	PolicyTypeRego  PolicyType = "rego"
	PolicyTypeCedar PolicyType = "cedar"
)

func (t PolicyType) Valid() bool {
	return t == PolicyTypeRego || t == PolicyTypeCedar
}

func ParsePolicyType(v string) (PolicyType, error) {
	t := PolicyType(v)
	if !t.Valid() {
		return "", fmt.Errorf("unknown policy type %q", v)
	}
	return t, nil
}

// PolicyStatus is the policy state machine position.
type PolicyStatus string

const (
	PolicyDraft    PolicyStatus = "draft"
	PolicyActive   PolicyStatus = "active"
	PolicyArchived PolicyStatus = "archived"
)

func (s PolicyStatus) Valid() bool {
	switch s {
	case PolicyDraft, PolicyActive, PolicyArchived:
		return true
	}
	return false
}

func ParsePolicyStatus(v string) (PolicyStatus, error) {
	s := PolicyStatus(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown policy status %q", v)
	}
	return s, nil
}

// ValidationStatus is a policy version's validation verdict.
type ValidationStatus string

const (
	ValidationPending ValidationStatus = "pending"
	ValidationValid   ValidationStatus = "valid"
	ValidationInvalid ValidationStatus = "invalid"
)

func (s ValidationStatus) Valid() bool {
	switch s {
	case ValidationPending, ValidationValid, ValidationInvalid:
		return true
	}
	return false
}

func ParseValidationStatus(v string) (ValidationStatus, error) {
	s := ValidationStatus(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown validation status %q", v)
	}
	return s, nil
}

// APIKeyStatus is the managed API key lifecycle state.
type APIKeyStatus string

const (
	APIKeyActive  APIKeyStatus = "active"
	APIKeyRevoked APIKeyStatus = "revoked"
)

func (s APIKeyStatus) Valid() bool {
	return s == APIKeyActive || s == APIKeyRevoked
}

func ParseAPIKeyStatus(v string) (APIKeyStatus, error) {
	s := APIKeyStatus(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown api key status %q", v)
	}
	return s, nil
}

// DecisionOutcome is the wire decision value.
type DecisionOutcome string

const (
	DecisionAllow DecisionOutcome = "allow"
	DecisionDeny  DecisionOutcome = "deny"
	DecisionError DecisionOutcome = "error"
)

func (d DecisionOutcome) Valid() bool {
	switch d {
	case DecisionAllow, DecisionDeny, DecisionError:
		return true
	}
	return false
}

func ParseDecisionOutcome(v string) (DecisionOutcome, error) {
	d := DecisionOutcome(v)
	if !d.Valid() {
		return "", fmt.Errorf("unknown decision %q", v)
	}
	return d, nil
}

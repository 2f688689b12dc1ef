package models

import (
	"time"
)

// PrincipalRef identifies the subject of a decision request by its stable
// external id.
type PrincipalRef struct {
	ID    string                 `json:"id" binding:"required"`
	Type  string                 `json:"type,omitempty"`
	Attrs map[string]interface{} `json:"attrs,omitempty"`
}

// ResourceRef identifies the target of a decision request. Attrs do not
// contribute to the cache fingerprint.
type ResourceRef struct {
	Type  string                 `json:"type" binding:"required"`
	ID    string                 `json:"id,omitempty"`
	Attrs map[string]interface{} `json:"attrs,omitempty"`
}

// DecisionRequest is the body of the check endpoint.
type DecisionRequest struct {
	Tenant    string                 `json:"tenant" binding:"required"`
	Principal PrincipalRef           `json:"principal" binding:"required"`
	Action    string                 `json:"action" binding:"required"`
	Resource  ResourceRef            `json:"resource" binding:"required"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

// BatchDecisionRequest is an ordered list of checks; results come back in
// input order.
type BatchDecisionRequest struct {
	Requests []DecisionRequest `json:"requests" binding:"required"`
}

// Decision is the evaluation result returned to callers. EvaluationTimeMs
// measures this request, cached or not.
type Decision struct {
	Decision                DecisionOutcome `json:"decision"`
	Reason                  string          `json:"reason"`
	EvaluationTimeMs        float64         `json:"evaluationTimeMs"`
	ContributingRoles       []string        `json:"contributingRoles,omitempty"`
	ContributingPermissions []string        `json:"contributingPermissions,omitempty"`
	Degraded                bool            `json:"degraded,omitempty"`
}

// Allowed is a convenience accessor.
func (d *Decision) Allowed() bool { return d.Decision == DecisionAllow }

// Cacheable reports whether the decision may be stored; error decisions and
// nils never are.
func (d *Decision) Cacheable() bool {
	return d != nil && (d.Decision == DecisionAllow || d.Decision == DecisionDeny)
}

// CachedDecision is the self-describing record serialized into the cache
// tiers. Per-request fields (EvaluationTimeMs, Degraded) are not part of it.
type CachedDecision struct {
	Decision                DecisionOutcome `json:"decision"`
	Reason                  string          `json:"reason"`
	ContributingRoles       []string        `json:"contributingRoles,omitempty"`
	ContributingPermissions []string        `json:"contributingPermissions,omitempty"`
	CreatedAt               time.Time       `json:"createdAt"`
}

// ToDecision rehydrates a response from the cached record.
func (c *CachedDecision) ToDecision() *Decision {
	return &Decision{
		Decision:                c.Decision,
		Reason:                  c.Reason,
		ContributingRoles:       c.ContributingRoles,
		ContributingPermissions: c.ContributingPermissions,
	}
}

// NewCachedDecision snapshots a decision for storage.
func NewCachedDecision(d *Decision, now time.Time) *CachedDecision {
	return &CachedDecision{
		Decision:                d.Decision,
		Reason:                  d.Reason,
		ContributingRoles:       d.ContributingRoles,
		ContributingPermissions: d.ContributingPermissions,
		CreatedAt:               now,
	}
}

package models

import (
	"time"
)

// Core entities for the multi-tenant authorization platform. Organizations
// own every other entity; cross-entity references are opaque ids resolved
// through repositories, never owning pointers.

// Organization is the tenant boundary. All other entities belong to exactly
// one organization.
type Organization struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Status    OrgStatus              `json:"status"`
	Settings  map[string]interface{} `json:"settings,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
	UpdatedAt time.Time              `json:"updatedAt"`
	DeletedAt *time.Time             `json:"deletedAt,omitempty"`
}

// User is a principal inside an organization. ExternalID carries the id an
// external identity system knows the user by; BearerSubject is the OIDC
// subject recorded at JIT provisioning. Either may identify the user in a
// decision request.
type User struct {
	ID            string                 `json:"id"`
	OrgID         string                 `json:"orgId"`
	Email         string                 `json:"email"`
	Username      *string                `json:"username,omitempty"`
	ExternalID    *string                `json:"externalId,omitempty"`
	BearerSubject *string                `json:"bearerSubject,omitempty"`
	Status        UserStatus             `json:"status"`
	Attributes    map[string]interface{} `json:"attributes,omitempty"`
	TOTPSecret    string                 `json:"-"`
	LastSyncAt    *time.Time             `json:"lastSyncAt,omitempty"`
	CreatedAt     time.Time              `json:"createdAt"`
	UpdatedAt     time.Time              `json:"updatedAt"`
	DeletedAt     *time.Time             `json:"deletedAt,omitempty"`
}

// PrincipalKeys returns every identifier a decision request may address this
// user by. Cache invalidation purges each of them.
func (u *User) PrincipalKeys() []string {
	keys := make([]string, 0, 2)
	if u.ExternalID != nil && *u.ExternalID != "" {
		keys = append(keys, *u.ExternalID)
	}
	if u.BearerSubject != nil && *u.BearerSubject != "" && (u.ExternalID == nil || *u.BearerSubject != *u.ExternalID) {
		keys = append(keys, *u.BearerSubject)
	}
	return keys
}

// Role is a named grant container. ParentID is a weak reference forming the
// hierarchy; Level is the depth from the root (0..MaxHierarchyDepth).
type Role struct {
	ID          string                 `json:"id"`
	OrgID       string                 `json:"orgId"`
	Name        string                 `json:"name"`
	DisplayName string                 `json:"displayName,omitempty"`
	ParentID    *string                `json:"parentId,omitempty"`
	Level       int                    `json:"level"`
	IsSystem    bool                   `json:"isSystem"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
	UpdatedAt   time.Time              `json:"updatedAt"`
	DeletedAt   *time.Time             `json:"deletedAt,omitempty"`
}

// Permission is a (resource-type, action, effect) triple. Condition is
// reserved for future attribute-based checks and is stored but not evaluated.
type Permission struct {
	ID           string                 `json:"id"`
	OrgID        string                 `json:"orgId"`
	Name         string                 `json:"name"`
	ResourceType string                 `json:"resourceType"`
	Action       string                 `json:"action"`
	Effect       Effect                 `json:"effect"`
	Condition    map[string]interface{} `json:"condition,omitempty"`
	CreatedAt    time.Time              `json:"createdAt"`
	UpdatedAt    time.Time              `json:"updatedAt"`
}

// RolePermission attaches a permission to a role.
type RolePermission struct {
	ID           string    `json:"id"`
	RoleID       string    `json:"roleId"`
	PermissionID string    `json:"permissionId"`
	CreatedAt    time.Time `json:"createdAt"`
}

// UserRole assigns a role to a user, optionally scoped to a resource type or
// a single resource instance, optionally expiring.
type UserRole struct {
	ID           string     `json:"id"`
	UserID       string     `json:"userId"`
	RoleID       string     `json:"roleId"`
	ResourceType *string    `json:"resourceType,omitempty"`
	ResourceID   *string    `json:"resourceId,omitempty"`
	GrantedBy    *string    `json:"grantedBy,omitempty"`
	GrantedAt    time.Time  `json:"grantedAt"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
}

// Expired reports whether the assignment no longer contributes to decisions.
// Expiry at exactly now counts as expired.
func (ur *UserRole) Expired(now time.Time) bool {
	return ur.ExpiresAt != nil && !ur.ExpiresAt.After(now)
}

// MatchesScope reports whether this assignment's scope covers the resource.
// Global scope (both nil) matches anything; type scope matches any id of the
// type; instance scope matches exactly.
func (ur *UserRole) MatchesScope(resourceType, resourceID string) bool {
	if ur.ResourceType == nil {
		return true
	}
	if *ur.ResourceType != resourceType {
		return false
	}
	if ur.ResourceID == nil {
		return true
	}
	return *ur.ResourceID == resourceID
}

// Policy is an external-engine policy document owner. Content lives in
// immutable PolicyVersion rows; CurrentVersion points at the newest one.
type Policy struct {
	ID             string       `json:"id"`
	OrgID          string       `json:"orgId"`
	Name           string       `json:"name"`
	DisplayName    string       `json:"displayName,omitempty"`
	Type           PolicyType   `json:"type"`
	Status         PolicyStatus `json:"status"`
	CurrentVersion int          `json:"currentVersion"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
	DeletedAt      *time.Time   `json:"deletedAt,omitempty"`
}

// PolicyVersion is an immutable content snapshot. Checksum is the hex SHA-256
// of Content.
type PolicyVersion struct {
	ID               string            `json:"id"`
	PolicyID         string            `json:"policyId"`
	Version          int               `json:"version"`
	Content          string            `json:"content"`
	Checksum         string            `json:"checksum"`
	ValidationStatus ValidationStatus  `json:"validationStatus"`
	ValidationErrors []ValidationIssue `json:"validationErrors,omitempty"`
	DuplicateOf      *int              `json:"duplicateOf,omitempty"`
	PublishedAt      *time.Time        `json:"publishedAt,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
}

// ValidationIssue is one structured policy validation failure.
type ValidationIssue struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Location string `json:"location,omitempty"`
}

// AuditLog is one append-only audit row. Timestamp is the partition key;
// rows are never updated.
type AuditLog struct {
	ID           string                 `json:"id"`
	TenantID     string                 `json:"tenantId"`
	Timestamp    time.Time              `json:"timestamp"`
	EventType    string                 `json:"eventType"`
	Actor        *string                `json:"actor,omitempty"`
	ActorEmail   *string                `json:"actorEmail,omitempty"`
	ResourceType *string                `json:"resourceType,omitempty"`
	ResourceID   *string                `json:"resourceId,omitempty"`
	Action       string                 `json:"action"`
	Decision     *string                `json:"decision,omitempty"`
	Reason       *string                `json:"reason,omitempty"`
	RequestData  map[string]interface{} `json:"requestData,omitempty"`
	ResponseData map[string]interface{} `json:"responseData,omitempty"`
	IP           *string                `json:"ip,omitempty"`
	UserAgent    *string                `json:"userAgent,omitempty"`
}

// Audit event types.
const (
	AuditEventDecision       = "authz.decision"
	AuditEventOrgMutation    = "org.mutation"
	AuditEventUserMutation   = "user.mutation"
	AuditEventRoleMutation   = "role.mutation"
	AuditEventPermMutation   = "permission.mutation"
	AuditEventGrantMutation  = "grant.mutation"
	AuditEventPolicyMutation = "policy.mutation"
	AuditEventAPIKeyMutation = "apikey.mutation"
	AuditEventAdminAction    = "admin.action"
)

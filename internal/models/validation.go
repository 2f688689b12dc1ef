package models

import (
	"fmt"
	"regexp"
	"strings"
)

// FieldError names a single invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var (
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	namePattern  = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._\-]{0,127}$`)
)

// ValidateOrganizationName enforces the organization naming rules.
func ValidateOrganizationName(name string) []FieldError {
	var errs []FieldError
	if strings.TrimSpace(name) == "" {
		errs = append(errs, FieldError{Field: "name", Message: "name is required"})
	} else if !namePattern.MatchString(name) {
		errs = append(errs, FieldError{Field: "name", Message: "name must start alphanumeric and contain only alphanumerics, dots, underscores, and dashes"})
	}
	return errs
}

// ValidateUser checks the fields an admin may set when creating or updating a
// user.
func ValidateUser(u *User) []FieldError {
	var errs []FieldError
	if strings.TrimSpace(u.OrgID) == "" {
		errs = append(errs, FieldError{Field: "orgId", Message: "organization is required"})
	}
	if strings.TrimSpace(u.Email) == "" {
		errs = append(errs, FieldError{Field: "email", Message: "email is required"})
	} else if !emailPattern.MatchString(u.Email) {
		errs = append(errs, FieldError{Field: "email", Message: "email format is invalid"})
	}
	if u.Username != nil && !namePattern.MatchString(*u.Username) {
		errs = append(errs, FieldError{Field: "username", Message: "username format is invalid"})
	}
	if u.Status != "" && !u.Status.Valid() {
		errs = append(errs, FieldError{Field: "status", Message: fmt.Sprintf("unknown status %q", u.Status)})
	}
	return errs
}

// ValidateRole checks role fields prior to persistence. Hierarchy rules
// (parent existence, level, cycles) are enforced by the service with store
// access.
func ValidateRole(r *Role) []FieldError {
	var errs []FieldError
	if strings.TrimSpace(r.OrgID) == "" {
		errs = append(errs, FieldError{Field: "orgId", Message: "organization is required"})
	}
	if strings.TrimSpace(r.Name) == "" {
		errs = append(errs, FieldError{Field: "name", Message: "name is required"})
	} else if !namePattern.MatchString(r.Name) {
		errs = append(errs, FieldError{Field: "name", Message: "name format is invalid"})
	}
	if r.Level < 0 {
		errs = append(errs, FieldError{Field: "level", Message: "level cannot be negative"})
	}
	return errs
}

// ValidatePermission checks permission fields prior to persistence.
func ValidatePermission(p *Permission) []FieldError {
	var errs []FieldError
	if strings.TrimSpace(p.OrgID) == "" {
		errs = append(errs, FieldError{Field: "orgId", Message: "organization is required"})
	}
	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, FieldError{Field: "name", Message: "name is required"})
	}
	if strings.TrimSpace(p.ResourceType) == "" {
		errs = append(errs, FieldError{Field: "resourceType", Message: "resource type is required"})
	}
	if strings.TrimSpace(p.Action) == "" {
		errs = append(errs, FieldError{Field: "action", Message: "action is required"})
	}
	if !p.Effect.Valid() {
		errs = append(errs, FieldError{Field: "effect", Message: fmt.Sprintf("effect must be %q or %q", EffectAllow, EffectDeny)})
	}
	return errs
}

// ValidateUserRole checks a grant request. Scope shape rule: a resource id
// requires a resource type.
func ValidateUserRole(ur *UserRole) []FieldError {
	var errs []FieldError
	if strings.TrimSpace(ur.UserID) == "" {
		errs = append(errs, FieldError{Field: "userId", Message: "user is required"})
	}
	if strings.TrimSpace(ur.RoleID) == "" {
		errs = append(errs, FieldError{Field: "roleId", Message: "role is required"})
	}
	if ur.ResourceID != nil && *ur.ResourceID != "" && (ur.ResourceType == nil || *ur.ResourceType == "") {
		errs = append(errs, FieldError{Field: "resourceId", Message: "resourceId requires resourceType"})
	}
	return errs
}

// ValidateDecisionRequest checks the check-endpoint body beyond gin binding.
func ValidateDecisionRequest(req *DecisionRequest) []FieldError {
	var errs []FieldError
	if strings.TrimSpace(req.Tenant) == "" {
		errs = append(errs, FieldError{Field: "tenant", Message: "tenant is required"})
	}
	if strings.TrimSpace(req.Principal.ID) == "" {
		errs = append(errs, FieldError{Field: "principal.id", Message: "principal id is required"})
	}
	if strings.TrimSpace(req.Action) == "" {
		errs = append(errs, FieldError{Field: "action", Message: "action is required"})
	}
	if strings.TrimSpace(req.Resource.Type) == "" {
		errs = append(errs, FieldError{Field: "resource.type", Message: "resource type is required"})
	}
	return errs
}

// ValidationError converts field errors into a ValidationFailed AppError.
func ValidationError(errs []FieldError) *AppError {
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	details := make([]map[string]string, len(errs))
	for i, fe := range errs {
		msgs[i] = fe.Error()
		details[i] = map[string]string{"field": fe.Field, "message": fe.Message}
	}
	ae := E(ErrValidationFailed, strings.Join(msgs, "; "))
	return ae.WithDetail("violations", details)
}

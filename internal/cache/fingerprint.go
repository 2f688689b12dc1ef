// Package cache implements the two-tier decision cache: a process-local
// expirable LRU in front of the shared Valkey tier, with singleflight
// collapsing concurrent misses and an event-driven invalidator keeping both
// tiers read-after-write consistent.
package cache

import (
	"fmt"

	"github.com/platformbuilds/warden-core/internal/models"
)

// Fingerprint derives the cache key for one decision request. Resource and
// principal attributes do not participate; the principal id is used verbatim
// as supplied by the caller.
func Fingerprint(req *models.DecisionRequest) string {
	return fmt.Sprintf("%s:%s:%s:%s:%s",
		req.Tenant, req.Principal.ID, req.Action, req.Resource.Type, req.Resource.ID)
}

// TenantPrefix is the fingerprint prefix shared by every decision of a
// tenant; purging it invalidates the whole tenant.
func TenantPrefix(tenantID string) string {
	return tenantID + ":"
}

// PrincipalPrefix narrows to one principal alias inside a tenant.
func PrincipalPrefix(tenantID, principalID string) string {
	return tenantID + ":" + principalID + ":"
}

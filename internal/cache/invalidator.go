package cache

import (
	"context"

	"github.com/platformbuilds/warden-core/internal/bus"
	"github.com/platformbuilds/warden-core/pkg/logger"
)

// Invalidator subscribes synchronously to mutation events and purges both
// cache tiers before the mutation API call returns, giving read-after-write
// consistency on the decision path.
type Invalidator struct {
	cache  *DecisionCache
	logger logger.Logger
}

func NewInvalidator(cache *DecisionCache, log logger.Logger) *Invalidator {
	return &Invalidator{cache: cache, logger: log}
}

// Register wires the invalidator into the bus. Must run before any mutation
// service starts publishing.
func (inv *Invalidator) Register(b *bus.Bus) {
	b.Subscribe(inv.handle)
}

func (inv *Invalidator) handle(ctx context.Context, event bus.Event) {
	switch event.Type {
	case bus.EventUserRoleChanged, bus.EventUserChanged:
		// Grant and user changes affect one principal; purge each alias the
		// principal may be addressed by.
		if len(event.Principals) == 0 {
			inv.purge(ctx, TenantPrefix(event.TenantID), event)
			return
		}
		for _, principal := range event.Principals {
			inv.purge(ctx, PrincipalPrefix(event.TenantID, principal), event)
		}
	default:
		// Role, permission, and policy changes can affect any principal in
		// the tenant.
		inv.purge(ctx, TenantPrefix(event.TenantID), event)
	}
}

func (inv *Invalidator) purge(ctx context.Context, prefix string, event bus.Event) {
	l1, l2 := inv.cache.InvalidatePrefix(ctx, prefix, event.TenantID)
	inv.logger.Debug("Invalidated decision cache",
		"event", string(event.Type), "prefix", prefix, "l1Removed", l1, "l2Removed", l2)
}

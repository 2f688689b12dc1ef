package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/platformbuilds/warden-core/internal/models"
	"github.com/platformbuilds/warden-core/internal/repo"
	"github.com/platformbuilds/warden-core/pkg/logger"
)

// Evaluator computes RBAC decisions: principal resolution, active
// assignments, role hierarchy closure, then deny-over-allow across every
// permission the user holds. Assignment scope narrows only the allowing
// side; a deny carried by an out-of-scope role still denies.
type Evaluator struct {
	users    repo.UserRepo
	roles    repo.RoleRepo
	grants   repo.UserRoleRepo
	rolePerm repo.RolePermissionRepo
	maxDepth int
	logger   logger.Logger
	now      func() time.Time
}

func NewEvaluator(users repo.UserRepo, roles repo.RoleRepo, grants repo.UserRoleRepo,
	rolePerm repo.RolePermissionRepo, maxHierarchyDepth int, log logger.Logger) *Evaluator {
	return &Evaluator{
		users:    users,
		roles:    roles,
		grants:   grants,
		rolePerm: rolePerm,
		maxDepth: maxHierarchyDepth,
		logger:   log,
		now:      time.Now,
	}
}

// Evaluate runs the pure RBAC decision for one request. Storage failures
// come back as errors; everything else is an allow or deny with a reason.
func (e *Evaluator) Evaluate(ctx context.Context, req *models.DecisionRequest) (*models.Decision, error) {
	user, err := e.users.GetByPrincipal(ctx, req.Tenant, req.Principal.ID)
	if err != nil {
		if models.IsKind(err, models.ErrNotFound) {
			return deny("user not found"), nil
		}
		return nil, err
	}
	if user.Status != models.UserActive {
		return deny("user inactive"), nil
	}

	assignments, err := e.grants.ActiveByUser(ctx, user.ID, e.now())
	if err != nil {
		return nil, err
	}
	if len(assignments) == 0 {
		return deny("no roles"), nil
	}

	// The closure spans every active assignment. Scope cannot drop an
	// assignment here: a deny held through an out-of-scope role must still
	// take precedence.
	closure, err := e.roleClosure(ctx, req.Tenant, assignments)
	if err != nil {
		return nil, err
	}

	roleIDs := make([]string, 0, len(closure))
	for id := range closure {
		roleIDs = append(roleIDs, id)
	}
	permsByRole, err := e.rolePerm.PermissionsByRole(ctx, roleIDs)
	if err != nil {
		return nil, err
	}

	inScope := e.scopedRoles(assignments, closure, req.Resource.Type, req.Resource.ID)
	return e.decide(req, closure, permsByRole, inScope), nil
}

// scopedRoles collects the roles reachable from assignments whose scope
// covers the requested resource: the direct role plus its ancestor chain.
// Only these roles may contribute an allow.
func (e *Evaluator) scopedRoles(assignments []*models.UserRole, closure map[string]*models.Role, resourceType, resourceID string) map[string]bool {
	set := make(map[string]bool)
	for _, a := range assignments {
		if !a.MatchesScope(resourceType, resourceID) {
			continue
		}
		cursor := a.RoleID
		for depth := 0; depth <= e.maxDepth; depth++ {
			if set[cursor] {
				break
			}
			role := closure[cursor]
			if role == nil {
				break
			}
			set[cursor] = true
			if role.ParentID == nil {
				break
			}
			cursor = *role.ParentID
		}
	}
	return set
}

// roleClosure expands the directly assigned roles through their parent
// chain, bounded by the configured depth with a visited set so a corrupted
// cycle cannot loop.
func (e *Evaluator) roleClosure(ctx context.Context, tenantID string, assignments []*models.UserRole) (map[string]*models.Role, error) {
	directIDs := make([]string, 0, len(assignments))
	seen := map[string]bool{}
	for _, a := range assignments {
		if !seen[a.RoleID] {
			seen[a.RoleID] = true
			directIDs = append(directIDs, a.RoleID)
		}
	}

	closure := make(map[string]*models.Role)
	frontier := directIDs
	for depth := 0; depth <= e.maxDepth && len(frontier) > 0; depth++ {
		roles, err := e.roles.GetByIDs(ctx, tenantID, frontier)
		if err != nil {
			return nil, err
		}
		var next []string
		for _, role := range roles {
			if _, ok := closure[role.ID]; ok {
				continue
			}
			closure[role.ID] = role
			if role.ParentID != nil {
				if _, ok := closure[*role.ParentID]; !ok {
					next = append(next, *role.ParentID)
				}
			}
		}
		frontier = next
	}
	if len(frontier) > 0 {
		e.logger.Warn("Role hierarchy truncated at depth limit",
			"tenant", tenantID, "depth", e.maxDepth, "unresolved", len(frontier))
	}
	return closure, nil
}

// decide applies deny-over-allow across the closure's permissions matching
// the requested resource type and action. Denies win from any role; an
// allow counts only when one of its roles is reachable through an
// assignment scoped to the resource.
func (e *Evaluator) decide(req *models.DecisionRequest, closure map[string]*models.Role, permsByRole map[string][]*models.Permission, inScope map[string]bool) *models.Decision {
	type match struct {
		role *models.Role
		perm *models.Permission
	}
	var allows, denies []match
	for roleID, perms := range permsByRole {
		role := closure[roleID]
		if role == nil {
			continue
		}
		for _, p := range perms {
			if p.ResourceType != req.Resource.Type || p.Action != req.Action {
				continue
			}
			if p.Effect == models.EffectDeny {
				denies = append(denies, match{role: role, perm: p})
			} else {
				allows = append(allows, match{role: role, perm: p})
			}
		}
	}

	if len(denies) > 0 {
		m := pickStable(denies, func(m match) string { return m.role.Name + m.perm.Name })
		return &models.Decision{
			Decision:                models.DecisionDeny,
			Reason:                  fmt.Sprintf("%s: %s", m.role.Name, m.perm.Name),
			ContributingRoles:       roleNames(denies, func(m match) string { return m.role.Name }),
			ContributingPermissions: roleNames(denies, func(m match) string { return m.perm.Name }),
		}
	}
	if len(allows) > 0 {
		scoped := allows[:0:0]
		for _, m := range allows {
			if inScope[m.role.ID] {
				scoped = append(scoped, m)
			}
		}
		if len(scoped) == 0 {
			return deny("role not scoped to resource")
		}
		m := pickStable(scoped, func(m match) string { return m.role.Name + m.perm.Name })
		return &models.Decision{
			Decision:                models.DecisionAllow,
			Reason:                  fmt.Sprintf("%s: %s", m.role.Name, m.perm.Name),
			ContributingRoles:       roleNames(scoped, func(m match) string { return m.role.Name }),
			ContributingPermissions: roleNames(scoped, func(m match) string { return m.perm.Name }),
		}
	}
	return deny(fmt.Sprintf("lacks %s:%s", req.Resource.Type, req.Action))
}

func deny(reason string) *models.Decision {
	return &models.Decision{Decision: models.DecisionDeny, Reason: reason}
}

// pickStable selects the lexically first match so reasons are deterministic
// regardless of map iteration order.
func pickStable[T any](matches []T, key func(T) string) T {
	best := matches[0]
	for _, m := range matches[1:] {
		if key(m) < key(best) {
			best = m
		}
	}
	return best
}

// roleNames collects the distinct values of f in sorted order.
func roleNames[T any](matches []T, f func(T) string) []string {
	set := map[string]bool{}
	for _, m := range matches {
		set[f(m)] = true
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

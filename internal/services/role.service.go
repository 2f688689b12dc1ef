package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/platformbuilds/warden-core/internal/bus"
	"github.com/platformbuilds/warden-core/internal/models"
	"github.com/platformbuilds/warden-core/internal/repo"
	"github.com/platformbuilds/warden-core/pkg/logger"
)

// RoleService manages the role hierarchy. Parent changes are validated for
// existence, depth, and cycles before they land; re-parenting recomputes the
// whole subtree's levels in one transaction. System roles are immutable
// except for their metadata.
type RoleService struct {
	store    repo.Store
	roles    repo.RoleRepo
	maxDepth int
	bus      *bus.Bus
	audit    *AuditService
	logger   logger.Logger
	now      func() time.Time
}

func NewRoleService(store repo.Store, roles repo.RoleRepo, maxHierarchyDepth int, b *bus.Bus, audit *AuditService, log logger.Logger) *RoleService {
	return &RoleService{
		store:    store,
		roles:    roles,
		maxDepth: maxHierarchyDepth,
		bus:      b,
		audit:    audit,
		logger:   log,
		now:      time.Now,
	}
}

func (s *RoleService) Create(ctx context.Context, role *models.Role, meta RequestMeta) (*models.Role, error) {
	if errs := models.ValidateRole(role); len(errs) > 0 {
		return nil, models.ValidationError(errs)
	}

	if role.ParentID != nil {
		parent, err := s.roles.GetByID(ctx, role.OrgID, *role.ParentID)
		if err != nil {
			if models.IsKind(err, models.ErrNotFound) {
				return nil, models.E(models.ErrValidationFailed, "parent role does not exist")
			}
			return nil, err
		}
		role.Level = parent.Level + 1
		if role.Level > s.maxDepth {
			return nil, models.Ef(models.ErrConflict, "role hierarchy exceeds maximum depth %d", s.maxDepth)
		}
	} else {
		role.Level = 0
	}

	now := s.now()
	role.ID = uuid.NewString()
	role.IsSystem = false
	role.CreatedAt = now
	role.UpdatedAt = now
	if err := s.roles.Create(ctx, role); err != nil {
		return nil, err
	}

	s.logger.Info("Role created", "orgId", role.OrgID, "roleId", role.ID, "name", role.Name)
	s.publishAndRecord(ctx, role, "create", meta)
	return role, nil
}

func (s *RoleService) Get(ctx context.Context, orgID, id string) (*models.Role, error) {
	return s.roles.GetByID(ctx, orgID, id)
}

func (s *RoleService) List(ctx context.Context, orgID string, opts repo.ListOptions) ([]*models.Role, error) {
	return s.roles.List(ctx, orgID, opts)
}

// Update edits a role. Re-parenting revalidates depth and rejects cycles by
// walking the proposed ancestor chain.
func (s *RoleService) Update(ctx context.Context, orgID, id string, apply func(*models.Role) error, meta RequestMeta) (*models.Role, error) {
	role, err := s.roles.GetByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if role.IsSystem {
		return nil, models.E(models.ErrPreconditionFailed, "system roles cannot be modified")
	}

	previousParent := role.ParentID
	if err := apply(role); err != nil {
		return nil, err
	}
	if errs := models.ValidateRole(role); len(errs) > 0 {
		return nil, models.ValidationError(errs)
	}

	reparented := !sameParent(previousParent, role.ParentID)
	if reparented {
		if err := s.validateParentChain(ctx, role); err != nil {
			return nil, err
		}
		// Descendants inherit the new depth; the whole subtree moves or
		// nothing does.
		err = s.store.WithinTx(ctx, func(ctx context.Context) error {
			if err := s.roles.Update(ctx, role); err != nil {
				return err
			}
			return s.relevelSubtree(ctx, role)
		})
		if err != nil {
			return nil, err
		}
	} else {
		if err := s.roles.Update(ctx, role); err != nil {
			return nil, err
		}
	}

	s.publishAndRecord(ctx, role, "update", meta)
	return role, nil
}

// relevelSubtree rewrites level = parent.level + 1 across root's descendants
// breadth-first, failing the transaction when any descendant would land past
// the depth limit.
func (s *RoleService) relevelSubtree(ctx context.Context, root *models.Role) error {
	visited := map[string]bool{root.ID: true}
	frontier := []*models.Role{root}
	for len(frontier) > 0 {
		var next []*models.Role
		for _, parent := range frontier {
			children, err := s.roles.ListChildren(ctx, root.OrgID, parent.ID)
			if err != nil {
				return err
			}
			for _, child := range children {
				if visited[child.ID] {
					continue
				}
				visited[child.ID] = true
				level := parent.Level + 1
				if level > s.maxDepth {
					return models.Ef(models.ErrConflict,
						"re-parenting would push role %s past maximum depth %d", child.Name, s.maxDepth)
				}
				if child.Level != level {
					child.Level = level
					if err := s.roles.Update(ctx, child); err != nil {
						return err
					}
				}
				next = append(next, child)
			}
		}
		frontier = next
	}
	return nil
}

func (s *RoleService) Delete(ctx context.Context, orgID, id string, meta RequestMeta) error {
	role, err := s.roles.GetByID(ctx, orgID, id)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return models.E(models.ErrPreconditionFailed, "system roles cannot be deleted")
	}
	if err := s.roles.SoftDelete(ctx, role.ID); err != nil {
		return err
	}

	s.publishAndRecord(ctx, role, "delete", meta)
	return nil
}

// validateParentChain walks up from the proposed parent, rejecting missing
// parents, self-ancestry (a cycle), and chains deeper than the limit.
func (s *RoleService) validateParentChain(ctx context.Context, role *models.Role) error {
	if role.ParentID == nil {
		role.Level = 0
		return nil
	}
	if *role.ParentID == role.ID {
		return models.E(models.ErrConflict, "role cannot be its own parent")
	}

	depth := 0
	cursor := role.ParentID
	visited := map[string]bool{role.ID: true}
	for cursor != nil {
		if visited[*cursor] {
			return models.E(models.ErrConflict, "role hierarchy would form a cycle")
		}
		visited[*cursor] = true
		depth++
		if depth > s.maxDepth {
			return models.Ef(models.ErrConflict, "role hierarchy exceeds maximum depth %d", s.maxDepth)
		}
		parent, err := s.roles.GetByID(ctx, role.OrgID, *cursor)
		if err != nil {
			if models.IsKind(err, models.ErrNotFound) {
				return models.E(models.ErrValidationFailed, "parent role does not exist")
			}
			return err
		}
		cursor = parent.ParentID
	}
	role.Level = depth
	return nil
}

func (s *RoleService) publishAndRecord(ctx context.Context, role *models.Role, action string, meta RequestMeta) {
	s.bus.Publish(ctx, bus.Event{
		Type:     bus.EventRoleChanged,
		TenantID: role.OrgID,
		EntityID: role.ID,
		Action:   action,
	})

	entry := &models.AuditLog{
		TenantID:  role.OrgID,
		EventType: models.AuditEventRoleMutation,
		Action:    action,
	}
	rt := "role"
	entry.ResourceType = &rt
	entry.ResourceID = &role.ID
	applyMeta(entry, meta)
	s.audit.Record(entry)
}

func sameParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

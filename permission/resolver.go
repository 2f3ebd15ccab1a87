package permission

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/MrEthical07/tenantauth/identity"
)

// ErrCrossTenantRole is returned when a user is linked to a role owned by
// another tenant.
var ErrCrossTenantRole = errors.New("permission: role belongs to another tenant")

// Source supplies the associations walked during resolution.
type Source interface {
	UserRoles(ctx context.Context, tenantID, userID string) ([]identity.Role, error)
	RolePermissions(ctx context.Context, roleIDs []string) ([]string, error)
}

// Resolution is the effective authorization of one user.
type Resolution struct {
	// Roles holds role codes in lexical order.
	Roles       []string
	Permissions Set
}

// Resolver computes effective permissions.
type Resolver struct {
	source Source
}

// NewResolver returns a resolver over source.
func NewResolver(source Source) *Resolver {
	return &Resolver{source: source}
}

// Resolve returns the union of permission codes reachable through the
// user's roles in tenantID. When ctx carries a request cache the result is
// memoized for that context.
func (r *Resolver) Resolve(ctx context.Context, tenantID, userID string) (Resolution, error) {
	if tenantID == "" || userID == "" {
		return Resolution{}, errors.New("permission: tenant and user are required")
	}

	cache := cacheFrom(ctx)
	if cache != nil {
		if res, ok := cache.get(tenantID, userID); ok {
			return res, nil
		}
	}

	res, err := r.resolve(ctx, tenantID, userID)
	if err != nil {
		return Resolution{}, err
	}
	if cache != nil {
		cache.put(tenantID, userID, res)
	}
	return res, nil
}

func (r *Resolver) resolve(ctx context.Context, tenantID, userID string) (Resolution, error) {
	roles, err := r.source.UserRoles(ctx, tenantID, userID)
	if err != nil {
		return Resolution{}, fmt.Errorf("load roles: %w", err)
	}

	roleIDs := make([]string, 0, len(roles))
	seen := make(map[string]struct{}, len(roles))
	codes := make([]string, 0, len(roles))
	for _, role := range roles {
		if role.TenantID != tenantID {
			return Resolution{}, fmt.Errorf("%w: role %s of tenant %s linked to user %s of tenant %s",
				ErrCrossTenantRole, role.ID, role.TenantID, userID, tenantID)
		}
		if _, dup := seen[role.ID]; dup {
			continue
		}
		seen[role.ID] = struct{}{}
		roleIDs = append(roleIDs, role.ID)
		codes = append(codes, role.Code)
	}
	sort.Strings(codes)

	perms := NewSet()
	if len(roleIDs) > 0 {
		granted, err := r.source.RolePermissions(ctx, roleIDs)
		if err != nil {
			return Resolution{}, fmt.Errorf("load role permissions: %w", err)
		}
		for _, code := range granted {
			perms.Add(code)
		}
	}

	return Resolution{Roles: codes, Permissions: perms}, nil
}

type cacheKey struct{}

type requestCache struct {
	mu      sync.Mutex
	entries map[string]Resolution
}

// WithRequestCache returns a context whose resolutions are memoized. Attach
// it once per inbound request.
func WithRequestCache(ctx context.Context) context.Context {
	if cacheFrom(ctx) != nil {
		return ctx
	}
	return context.WithValue(ctx, cacheKey{}, &requestCache{entries: make(map[string]Resolution)})
}

func cacheFrom(ctx context.Context) *requestCache {
	c, _ := ctx.Value(cacheKey{}).(*requestCache)
	return c
}

func (c *requestCache) get(tenantID, userID string) (Resolution, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, ok := c.entries[tenantID+"\x00"+userID]
	return res, ok
}

func (c *requestCache) put(tenantID, userID string, res Resolution) {
	c.mu.Lock()
	c.entries[tenantID+"\x00"+userID] = res
	c.mu.Unlock()
}

// Package memstore is an in-memory identity store for tests, examples and
// single-process deployments. It implements identity.Store and
// identity.Admin with the same uniqueness and tenant rules as the SQL store.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/tenantauth/identity"
)

// Store is safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	tenants      map[string]identity.Tenant // by id
	tenantByCode map[string]string
	users        map[string]identity.User // by id
	userByEmail  map[string]string        // tenantID + "\x00" + email
	roles        map[string]identity.Role // by id
	roleByCode   map[string]string        // tenantID + "\x00" + code
	permissions  map[string]identity.Permission
	grants       map[string]map[string]struct{} // roleID -> codes
	userRoles    map[string][]string            // userID -> roleIDs

	now func() time.Time
}

var (
	_ identity.Store = (*Store)(nil)
	_ identity.Admin = (*Store)(nil)
)

// New returns an empty store.
func New() *Store {
	return &Store{
		tenants:      make(map[string]identity.Tenant),
		tenantByCode: make(map[string]string),
		users:        make(map[string]identity.User),
		userByEmail:  make(map[string]string),
		roles:        make(map[string]identity.Role),
		roleByCode:   make(map[string]string),
		permissions:  make(map[string]identity.Permission),
		grants:       make(map[string]map[string]struct{}),
		userRoles:    make(map[string][]string),
		now:          time.Now,
	}
}

func scoped(tenantID, v string) string { return tenantID + "\x00" + v }

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

// TenantByCode implements identity.Store.
func (s *Store) TenantByCode(_ context.Context, code string) (identity.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.tenantByCode[identity.NormalizeCode(code)]
	if !ok {
		return identity.Tenant{}, identity.ErrNotFound
	}
	return s.tenants[id], nil
}

// TenantByID implements identity.Store.
func (s *Store) TenantByID(_ context.Context, id string) (identity.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[id]
	if !ok {
		return identity.Tenant{}, identity.ErrNotFound
	}
	return t, nil
}

// UserByEmail implements identity.Store.
func (s *Store) UserByEmail(_ context.Context, tenantID, email string) (identity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.userByEmail[scoped(tenantID, identity.NormalizeEmail(email))]
	if !ok {
		return identity.User{}, identity.ErrNotFound
	}
	return s.users[id], nil
}

// UserByID implements identity.Store.
func (s *Store) UserByID(_ context.Context, tenantID, userID string) (identity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok || u.TenantID != tenantID {
		return identity.User{}, identity.ErrNotFound
	}
	return u, nil
}

// UserRoles implements identity.Store.
func (s *Store) UserRoles(_ context.Context, tenantID, userID string) ([]identity.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok || u.TenantID != tenantID {
		return nil, nil
	}
	out := make([]identity.Role, 0, len(s.userRoles[userID]))
	for _, rid := range s.userRoles[userID] {
		out = append(out, s.roles[rid])
	}
	return out, nil
}

// RolePermissions implements identity.Store.
func (s *Store) RolePermissions(_ context.Context, roleIDs []string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, rid := range roleIDs {
		for code := range s.grants[rid] {
			out = append(out, code)
		}
	}
	sort.Strings(out)
	return out, nil
}

// UpdatePasswordHash implements identity.Store.
func (s *Store) UpdatePasswordHash(_ context.Context, tenantID, userID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok || u.TenantID != tenantID {
		return identity.ErrNotFound
	}
	u.PasswordHash = hash
	u.UpdatedAt = s.now()
	s.users[userID] = u
	return nil
}

// SetUserActive toggles a user's active flag.
func (s *Store) SetUserActive(_ context.Context, tenantID, userID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok || u.TenantID != tenantID {
		return identity.ErrNotFound
	}
	u.Active = active
	u.UpdatedAt = s.now()
	s.users[userID] = u
	return nil
}

// SetTenantActive enables or disables a tenant.
func (s *Store) SetTenantActive(_ context.Context, tenantID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return identity.ErrNotFound
	}
	t.Active = active
	s.tenants[tenantID] = t
	return nil
}

// RevokePermission removes a grant. Missing grants are ignored.
func (s *Store) RevokePermission(_ context.Context, roleID, permissionCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.grants[roleID], permissionCode)
	return nil
}

// CreateTenant implements identity.Admin.
func (s *Store) CreateTenant(_ context.Context, t identity.Tenant) (identity.Tenant, error) {
	t.Code = identity.NormalizeCode(t.Code)
	if t.Code == "" {
		return identity.Tenant{}, fmt.Errorf("tenant code is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.tenantByCode[t.Code]; dup {
		return identity.Tenant{}, fmt.Errorf("%w: tenant %q", identity.ErrDuplicate, t.Code)
	}
	t.ID = newID(t.ID)
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	s.tenants[t.ID] = t
	s.tenantByCode[t.Code] = t.ID
	return t, nil
}

// CreateUser implements identity.Admin.
func (s *Store) CreateUser(_ context.Context, u identity.User) (identity.User, error) {
	u.Email = identity.NormalizeEmail(u.Email)
	if u.Email == "" || u.PasswordHash == "" {
		return identity.User{}, fmt.Errorf("email and password hash are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[u.TenantID]; !ok {
		return identity.User{}, fmt.Errorf("%w: tenant %s", identity.ErrNotFound, u.TenantID)
	}
	key := scoped(u.TenantID, u.Email)
	if _, dup := s.userByEmail[key]; dup {
		return identity.User{}, fmt.Errorf("%w: user %q", identity.ErrDuplicate, u.Email)
	}
	u.ID = newID(u.ID)
	now := s.now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	s.users[u.ID] = u
	s.userByEmail[key] = u.ID
	return u, nil
}

// CreateRole implements identity.Admin.
func (s *Store) CreateRole(_ context.Context, r identity.Role) (identity.Role, error) {
	r.Code = identity.NormalizeCode(r.Code)
	if r.Code == "" {
		return identity.Role{}, fmt.Errorf("role code is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[r.TenantID]; !ok {
		return identity.Role{}, fmt.Errorf("%w: tenant %s", identity.ErrNotFound, r.TenantID)
	}
	key := scoped(r.TenantID, r.Code)
	if _, dup := s.roleByCode[key]; dup {
		return identity.Role{}, fmt.Errorf("%w: role %q", identity.ErrDuplicate, r.Code)
	}
	r.ID = newID(r.ID)
	s.roles[r.ID] = r
	s.roleByCode[key] = r.ID
	return r, nil
}

// CreatePermission implements identity.Admin.
func (s *Store) CreatePermission(_ context.Context, p identity.Permission) (identity.Permission, error) {
	p.Code = identity.NormalizeCode(p.Code)
	if p.Code == "" {
		return identity.Permission{}, fmt.Errorf("permission code is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.permissions[p.Code]; dup {
		return identity.Permission{}, fmt.Errorf("%w: permission %q", identity.ErrDuplicate, p.Code)
	}
	p.ID = newID(p.ID)
	s.permissions[p.Code] = p
	return p, nil
}

// GrantPermission implements identity.Admin. Granting twice is a no-op.
func (s *Store) GrantPermission(_ context.Context, roleID, permissionCode string) error {
	code := identity.NormalizeCode(permissionCode)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return fmt.Errorf("%w: role %s", identity.ErrNotFound, roleID)
	}
	if _, ok := s.permissions[code]; !ok {
		return fmt.Errorf("%w: permission %q", identity.ErrNotFound, code)
	}
	if s.grants[roleID] == nil {
		s.grants[roleID] = make(map[string]struct{})
	}
	s.grants[roleID][code] = struct{}{}
	return nil
}

// AssignRole implements identity.Admin.
func (s *Store) AssignRole(_ context.Context, userID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("%w: user %s", identity.ErrNotFound, userID)
	}
	r, ok := s.roles[roleID]
	if !ok {
		return fmt.Errorf("%w: role %s", identity.ErrNotFound, roleID)
	}
	if r.TenantID != u.TenantID {
		return identity.ErrCrossTenant
	}
	for _, existing := range s.userRoles[userID] {
		if existing == roleID {
			return nil
		}
	}
	s.userRoles[userID] = append(s.userRoles[userID], roleID)
	return nil
}

// LinkRoleUnchecked links a role without the tenant check. It exists to
// reproduce corrupted data in tests.
func (s *Store) LinkRoleUnchecked(userID, roleID string) {
	s.mu.Lock()
	s.userRoles[userID] = append(s.userRoles[userID], roleID)
	s.mu.Unlock()
}

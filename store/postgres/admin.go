package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/MrEthical07/tenantauth/identity"
)

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

func insertError(what string, err error) error {
	switch {
	case isCode(err, pgErrUniqueViolation):
		return fmt.Errorf("%w: %s", identity.ErrDuplicate, what)
	case isCode(err, pgErrForeignKeyViolation):
		return fmt.Errorf("%w: %s", identity.ErrNotFound, what)
	default:
		return fmt.Errorf("insert %s: %w", what, err)
	}
}

// CreateTenant implements identity.Admin.
func (s *Store) CreateTenant(ctx context.Context, t identity.Tenant) (identity.Tenant, error) {
	t.Code = identity.NormalizeCode(t.Code)
	if t.Code == "" {
		return identity.Tenant{}, errors.New("tenant code is required")
	}
	t.ID = newID(t.ID)

	err := s.db.QueryRowContext(ctx, `
		insert into tenants (id, code, name, is_active)
		values ($1, $2, $3, $4)
		returning created_at
	`, t.ID, t.Code, t.Name, t.Active).Scan(&t.CreatedAt)
	if err != nil {
		return identity.Tenant{}, insertError("tenant "+t.Code, err)
	}
	return t, nil
}

// CreateUser implements identity.Admin.
func (s *Store) CreateUser(ctx context.Context, u identity.User) (identity.User, error) {
	u.Email = identity.NormalizeEmail(u.Email)
	if u.Email == "" || u.PasswordHash == "" {
		return identity.User{}, errors.New("email and password hash are required")
	}
	u.ID = newID(u.ID)

	err := s.db.QueryRowContext(ctx, `
		insert into users (id, tenant_id, email, password_hash, is_active, is_verified)
		values ($1, $2, $3, $4, $5, $6)
		returning created_at, updated_at
	`, u.ID, u.TenantID, u.Email, u.PasswordHash, u.Active, u.Verified).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return identity.User{}, insertError("user "+u.Email, err)
	}
	return u, nil
}

// CreateRole implements identity.Admin.
func (s *Store) CreateRole(ctx context.Context, r identity.Role) (identity.Role, error) {
	r.Code = identity.NormalizeCode(r.Code)
	if r.Code == "" {
		return identity.Role{}, errors.New("role code is required")
	}
	r.ID = newID(r.ID)

	_, err := s.db.ExecContext(ctx, `
		insert into roles (id, tenant_id, code, name, is_system)
		values ($1, $2, $3, $4, $5)
	`, r.ID, r.TenantID, r.Code, r.Name, r.IsSystem)
	if err != nil {
		return identity.Role{}, insertError("role "+r.Code, err)
	}
	return r, nil
}

// CreatePermission implements identity.Admin. Resource and action are
// derived from the "resource.action" code.
func (s *Store) CreatePermission(ctx context.Context, p identity.Permission) (identity.Permission, error) {
	p.Code = identity.NormalizeCode(p.Code)
	resource, action, ok := strings.Cut(p.Code, ".")
	if !ok || resource == "" || action == "" {
		return identity.Permission{}, fmt.Errorf("permission code %q must be resource.action", p.Code)
	}
	p.ID = newID(p.ID)

	_, err := s.db.ExecContext(ctx, `
		insert into permissions (id, code, resource, action, description)
		values ($1, $2, $3, $4, $5)
	`, p.ID, p.Code, resource, action, p.Description)
	if err != nil {
		return identity.Permission{}, insertError("permission "+p.Code, err)
	}
	return p, nil
}

// GrantPermission implements identity.Admin. Granting twice is a no-op.
func (s *Store) GrantPermission(ctx context.Context, roleID, permissionCode string) error {
	code := identity.NormalizeCode(permissionCode)

	var permissionID string
	err := s.db.QueryRowContext(ctx, `select id from permissions where code = $1`, code).Scan(&permissionID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: permission %q", identity.ErrNotFound, code)
	}
	if err != nil {
		return fmt.Errorf("load permission: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		insert into role_permissions (role_id, permission_id)
		values ($1, $2)
		on conflict do nothing
	`, roleID, permissionID)
	if err != nil {
		return insertError("grant "+code, err)
	}
	return nil
}

// AssignRole implements identity.Admin.
func (s *Store) AssignRole(ctx context.Context, userID, roleID string) error {
	var userTenant, roleTenant string
	err := s.db.QueryRowContext(ctx, `
		select u.tenant_id, r.tenant_id
		from users u, roles r
		where u.id = $1 and r.id = $2
	`, userID, roleID).Scan(&userTenant, &roleTenant)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: user %s or role %s", identity.ErrNotFound, userID, roleID)
	}
	if err != nil {
		return fmt.Errorf("load assignment: %w", err)
	}
	if userTenant != roleTenant {
		return identity.ErrCrossTenant
	}

	_, err = s.db.ExecContext(ctx, `
		insert into user_roles (user_id, role_id)
		values ($1, $2)
		on conflict do nothing
	`, userID, roleID)
	if err != nil {
		return insertError("user role", err)
	}
	return nil
}

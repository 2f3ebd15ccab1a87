package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/tenantauth/identity"
)

var (
	_ identity.Store = (*Store)(nil)
	_ identity.Admin = (*Store)(nil)
)

const userColumns = `id, tenant_id, email, password_hash, is_active, is_verified, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (identity.User, error) {
	var u identity.User
	err := row.Scan(&u.ID, &u.TenantID, &u.Email, &u.PasswordHash, &u.Active, &u.Verified, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.User{}, identity.ErrNotFound
	}
	return u, err
}

// TenantByCode implements identity.Store.
func (s *Store) TenantByCode(ctx context.Context, code string) (identity.Tenant, error) {
	var t identity.Tenant
	err := s.db.QueryRowContext(ctx, `
		select id, code, name, is_active, created_at
		from tenants where code = $1
	`, identity.NormalizeCode(code)).Scan(&t.ID, &t.Code, &t.Name, &t.Active, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.Tenant{}, identity.ErrNotFound
	}
	if err != nil {
		return identity.Tenant{}, fmt.Errorf("tenant by code: %w", err)
	}
	return t, nil
}

// TenantByID implements identity.Store.
func (s *Store) TenantByID(ctx context.Context, id string) (identity.Tenant, error) {
	var t identity.Tenant
	err := s.db.QueryRowContext(ctx, `
		select id, code, name, is_active, created_at
		from tenants where id = $1
	`, id).Scan(&t.ID, &t.Code, &t.Name, &t.Active, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.Tenant{}, identity.ErrNotFound
	}
	if err != nil {
		return identity.Tenant{}, fmt.Errorf("tenant by id: %w", err)
	}
	return t, nil
}

// UserByEmail implements identity.Store.
func (s *Store) UserByEmail(ctx context.Context, tenantID, email string) (identity.User, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+userColumns+`
		from users where tenant_id = $1 and email = $2
	`, tenantID, identity.NormalizeEmail(email))
	u, err := scanUser(row)
	if err != nil && !errors.Is(err, identity.ErrNotFound) {
		return identity.User{}, fmt.Errorf("user by email: %w", err)
	}
	return u, err
}

// UserByID implements identity.Store.
func (s *Store) UserByID(ctx context.Context, tenantID, userID string) (identity.User, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+userColumns+`
		from users where tenant_id = $1 and id = $2
	`, tenantID, userID)
	u, err := scanUser(row)
	if err != nil && !errors.Is(err, identity.ErrNotFound) {
		return identity.User{}, fmt.Errorf("user by id: %w", err)
	}
	return u, err
}

// UserRoles implements identity.Store. Roles are returned with their own
// tenant id, even when it differs from the user's.
func (s *Store) UserRoles(ctx context.Context, tenantID, userID string) ([]identity.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select r.id, r.tenant_id, r.code, r.name, r.is_system
		from user_roles ur
		join users u on u.id = ur.user_id
		join roles r on r.id = ur.role_id
		where u.tenant_id = $1 and ur.user_id = $2
		order by r.code
	`, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("user roles: %w", err)
	}
	defer rows.Close()

	var out []identity.Role
	for rows.Next() {
		var r identity.Role
		if err := rows.Scan(&r.ID, &r.TenantID, &r.Code, &r.Name, &r.IsSystem); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RolePermissions implements identity.Store.
func (s *Store) RolePermissions(ctx context.Context, roleIDs []string) ([]string, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(roleIDs))
	args := make([]any, len(roleIDs))
	for i, id := range roleIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `
		select p.code
		from role_permissions rp
		join permissions p on p.id = rp.permission_id
		where rp.role_id in (`+strings.Join(placeholders, ", ")+`)
		order by p.code
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("role permissions: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		out = append(out, code)
	}
	return out, rows.Err()
}

// UpdatePasswordHash implements identity.Store.
func (s *Store) UpdatePasswordHash(ctx context.Context, tenantID, userID, hash string) error {
	res, err := s.db.ExecContext(ctx, `
		update users set password_hash = $3, updated_at = $4
		where tenant_id = $1 and id = $2
	`, tenantID, userID, hash, s.now().UTC())
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	return requireRow(res)
}

// SetUserActive toggles a user's active flag.
func (s *Store) SetUserActive(ctx context.Context, tenantID, userID string, active bool) error {
	res, err := s.db.ExecContext(ctx, `
		update users set is_active = $3, updated_at = $4
		where tenant_id = $1 and id = $2
	`, tenantID, userID, active, s.now().UTC())
	if err != nil {
		return fmt.Errorf("set user active: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return identity.ErrNotFound
	}
	return nil
}

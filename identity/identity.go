package identity

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a tenant, user, role or permission does
	// not exist within the requested scope.
	ErrNotFound = errors.New("identity: not found")
	// ErrCrossTenant is returned when a role would be linked to a user of a
	// different tenant.
	ErrCrossTenant = errors.New("identity: role belongs to another tenant")
	// ErrDuplicate is returned on unique key conflicts (tenant code, email
	// within tenant, role code within tenant, permission code).
	ErrDuplicate = errors.New("identity: duplicate")
)

// Tenant is the root of isolation.
type Tenant struct {
	ID        string
	Code      string
	Name      string
	Active    bool
	CreatedAt time.Time
}

// User is an account within one tenant. Lockout state is owned by the
// lockout package.
type User struct {
	ID           string
	TenantID     string
	Email        string
	PasswordHash string
	Active       bool
	Verified     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Role groups permissions inside a tenant. IsSystem marks seeded roles.
type Role struct {
	ID       string
	TenantID string
	Code     string
	Name     string
	IsSystem bool
}

// Permission is a catalog entry shared by all tenants.
type Permission struct {
	ID          string
	Code        string
	Description string
}

// Store is the request-path persistence contract.
type Store interface {
	TenantByCode(ctx context.Context, code string) (Tenant, error)
	TenantByID(ctx context.Context, id string) (Tenant, error)
	UserByEmail(ctx context.Context, tenantID, email string) (User, error)
	UserByID(ctx context.Context, tenantID, userID string) (User, error)
	// UserRoles returns every role linked to the user, including links that
	// point at another tenant's role. Callers validate tenant ownership.
	UserRoles(ctx context.Context, tenantID, userID string) ([]Role, error)
	// RolePermissions returns permission codes granted to any of roleIDs.
	// Duplicates are allowed.
	RolePermissions(ctx context.Context, roleIDs []string) ([]string, error)
	UpdatePasswordHash(ctx context.Context, tenantID, userID, hash string) error
}

// Admin provisions identity data. Tenants are only ever created here.
type Admin interface {
	CreateTenant(ctx context.Context, t Tenant) (Tenant, error)
	CreateUser(ctx context.Context, u User) (User, error)
	CreateRole(ctx context.Context, r Role) (Role, error)
	CreatePermission(ctx context.Context, p Permission) (Permission, error)
	GrantPermission(ctx context.Context, roleID, permissionCode string) error
	// AssignRole links a role to a user. It returns ErrCrossTenant when the
	// role and user belong to different tenants.
	AssignRole(ctx context.Context, userID, roleID string) error
}

// NormalizeEmail lower-cases and trims an email for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeCode lower-cases and trims a tenant, role or permission code.
func NormalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

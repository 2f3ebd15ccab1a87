package memstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/tenantauth/identity"
	"github.com/MrEthical07/tenantauth/permission"
)

// Demo credentials created by SeedDemo.
const (
	DemoTenantCode    = "demo"
	DemoAdminEmail    = "admin@demo.com"
	DemoAdminPassword = "admin123"
	DemoUserEmail     = "user@demo.com"
	DemoUserPassword  = "user1234"
)

// Demo holds the identifiers created by SeedDemo.
type Demo struct {
	Tenant    identity.Tenant
	Admin     identity.User
	User      identity.User
	AdminRole identity.Role
	UserRole  identity.Role
}

// SeedCatalog creates every catalog permission in admin. Existing codes are
// skipped.
func SeedCatalog(ctx context.Context, admin identity.Admin, catalog *permission.Catalog) error {
	for _, e := range catalog.Entries() {
		_, err := admin.CreatePermission(ctx, identity.Permission{Code: e.Code, Description: e.Description})
		if err != nil && !isDuplicate(err) {
			return fmt.Errorf("seed permission %s: %w", e.Code, err)
		}
	}
	return nil
}

// SeedDemo provisions the demo tenant. The admin role receives every
// catalog permission except system.settings; the user role receives
// products.read and orders.read. hash turns a plain password into a stored
// hash.
func SeedDemo(ctx context.Context, admin identity.Admin, hash func(string) (string, error)) (Demo, error) {
	catalog := permission.DefaultCatalog()
	if err := SeedCatalog(ctx, admin, catalog); err != nil {
		return Demo{}, err
	}

	var d Demo
	var err error
	d.Tenant, err = admin.CreateTenant(ctx, identity.Tenant{Code: DemoTenantCode, Name: "Demo Company", Active: true})
	if err != nil {
		return Demo{}, fmt.Errorf("seed tenant: %w", err)
	}

	d.AdminRole, err = admin.CreateRole(ctx, identity.Role{TenantID: d.Tenant.ID, Code: "admin", Name: "Administrator", IsSystem: true})
	if err != nil {
		return Demo{}, fmt.Errorf("seed admin role: %w", err)
	}
	d.UserRole, err = admin.CreateRole(ctx, identity.Role{TenantID: d.Tenant.ID, Code: "user", Name: "User", IsSystem: true})
	if err != nil {
		return Demo{}, fmt.Errorf("seed user role: %w", err)
	}

	for _, e := range catalog.Entries() {
		if e.Code == "system.settings" {
			continue
		}
		if err := admin.GrantPermission(ctx, d.AdminRole.ID, e.Code); err != nil {
			return Demo{}, fmt.Errorf("grant %s: %w", e.Code, err)
		}
	}
	for _, code := range []string{"products.read", "orders.read"} {
		if err := admin.GrantPermission(ctx, d.UserRole.ID, code); err != nil {
			return Demo{}, fmt.Errorf("grant %s: %w", code, err)
		}
	}

	d.Admin, err = createUser(ctx, admin, hash, d.Tenant.ID, DemoAdminEmail, DemoAdminPassword, d.AdminRole.ID)
	if err != nil {
		return Demo{}, err
	}
	d.User, err = createUser(ctx, admin, hash, d.Tenant.ID, DemoUserEmail, DemoUserPassword, d.UserRole.ID)
	if err != nil {
		return Demo{}, err
	}
	return d, nil
}

func createUser(ctx context.Context, admin identity.Admin, hash func(string) (string, error), tenantID, email, plain, roleID string) (identity.User, error) {
	h, err := hash(plain)
	if err != nil {
		return identity.User{}, fmt.Errorf("hash password for %s: %w", email, err)
	}
	u, err := admin.CreateUser(ctx, identity.User{TenantID: tenantID, Email: email, PasswordHash: h, Active: true, Verified: true})
	if err != nil {
		return identity.User{}, fmt.Errorf("seed user %s: %w", email, err)
	}
	if err := admin.AssignRole(ctx, u.ID, roleID); err != nil {
		return identity.User{}, fmt.Errorf("assign role to %s: %w", email, err)
	}
	return u, nil
}

func isDuplicate(err error) bool { return errors.Is(err, identity.ErrDuplicate) }

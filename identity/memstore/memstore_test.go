package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/tenantauth/identity"
	"github.com/MrEthical07/tenantauth/permission"
)

func plainHash(p string) (string, error) { return "hash:" + p, nil }

func TestSeedDemo(t *testing.T) {
	ctx := context.Background()
	s := New()
	demo, err := SeedDemo(ctx, s, plainHash)
	require.NoError(t, err)

	tenant, err := s.TenantByCode(ctx, "DEMO")
	require.NoError(t, err)
	assert.Equal(t, demo.Tenant.ID, tenant.ID)

	admin, err := s.UserByEmail(ctx, tenant.ID, " Admin@Demo.com ")
	require.NoError(t, err)
	assert.Equal(t, "hash:admin123", admin.PasswordHash)

	res, err := permission.NewResolver(s).Resolve(ctx, tenant.ID, admin.ID)
	require.NoError(t, err)
	assert.True(t, res.Permissions.Has("users.create"))
	assert.False(t, res.Permissions.Has("system.settings"))
	assert.Equal(t, []string{"admin"}, res.Roles)

	res, err = permission.NewResolver(s).Resolve(ctx, tenant.ID, demo.User.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"orders.read", "products.read"}, res.Permissions.Sorted())
}

func TestTenantScoping(t *testing.T) {
	ctx := context.Background()
	s := New()
	t1, err := s.CreateTenant(ctx, identity.Tenant{Code: "one", Active: true})
	require.NoError(t, err)
	t2, err := s.CreateTenant(ctx, identity.Tenant{Code: "two", Active: true})
	require.NoError(t, err)

	_, err = s.CreateTenant(ctx, identity.Tenant{Code: "ONE"})
	assert.True(t, errors.Is(err, identity.ErrDuplicate))

	u1, err := s.CreateUser(ctx, identity.User{TenantID: t1.ID, Email: "a@x.io", PasswordHash: "h", Active: true})
	require.NoError(t, err)
	// Same email in another tenant is a different account.
	_, err = s.CreateUser(ctx, identity.User{TenantID: t2.ID, Email: "a@x.io", PasswordHash: "h", Active: true})
	require.NoError(t, err)

	_, err = s.UserByID(ctx, t2.ID, u1.ID)
	assert.True(t, errors.Is(err, identity.ErrNotFound))

	foreign, err := s.CreateRole(ctx, identity.Role{TenantID: t2.ID, Code: "admin"})
	require.NoError(t, err)
	err = s.AssignRole(ctx, u1.ID, foreign.ID)
	assert.True(t, errors.Is(err, identity.ErrCrossTenant))
}

func TestCorruptLinkIsRejectedByResolver(t *testing.T) {
	ctx := context.Background()
	s := New()
	t1, _ := s.CreateTenant(ctx, identity.Tenant{Code: "one", Active: true})
	t2, _ := s.CreateTenant(ctx, identity.Tenant{Code: "two", Active: true})
	u, _ := s.CreateUser(ctx, identity.User{TenantID: t1.ID, Email: "a@x.io", PasswordHash: "h"})
	r, _ := s.CreateRole(ctx, identity.Role{TenantID: t2.ID, Code: "admin"})
	s.LinkRoleUnchecked(u.ID, r.ID)

	_, err := permission.NewResolver(s).Resolve(ctx, t1.ID, u.ID)
	assert.True(t, errors.Is(err, permission.ErrCrossTenantRole))
}

func TestUpdatePasswordHash(t *testing.T) {
	ctx := context.Background()
	s := New()
	demo, err := SeedDemo(ctx, s, plainHash)
	require.NoError(t, err)

	require.NoError(t, s.UpdatePasswordHash(ctx, demo.Tenant.ID, demo.User.ID, "new"))
	u, err := s.UserByID(ctx, demo.Tenant.ID, demo.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", u.PasswordHash)

	assert.True(t, errors.Is(s.UpdatePasswordHash(ctx, "other", demo.User.ID, "x"), identity.ErrNotFound))
}

package auth_test

import (
	"testing"

	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-console-auth"
)

func TestTemplateHelpers(t *testing.T) {
	helpers := auth.TemplateHelpers()

	for _, name := range []string{
		"is_authenticated",
		"has_role",
		"has_any_role",
		"is_at_least",
		"is_platform_scoped",
		"can_access_store",
		"roles",
	} {
		assert.Contains(t, helpers, name, "expected helper %s", name)
	}

	roles, ok := helpers["roles"].(map[string]string)
	require.True(t, ok, "roles should be a map[string]string")
	assert.Equal(t, auth.RolePlatformAdmin, roles["platform_admin"])
	assert.Equal(t, auth.RoleStoreStaff, roles["store_staff"])
}

func TestTemplateHelperFunctions(t *testing.T) {
	helpers := auth.TemplateHelpers()

	isAuthenticated := helpers["is_authenticated"].(func(any) bool)
	hasRole := helpers["has_role"].(func(any, string) bool)
	isAtLeast := helpers["is_at_least"].(func(any, string) bool)
	isPlatformScoped := helpers["is_platform_scoped"].(func(any) bool)
	canAccessStore := helpers["can_access_store"].(func(any, string) bool)

	user := storeAdmin()
	assert.True(t, isAuthenticated(user))
	assert.True(t, isAuthenticated(*user))
	assert.False(t, isAuthenticated(nil))
	assert.False(t, isAuthenticated("someone"))

	assert.True(t, hasRole(user, auth.RoleStoreAdmin))
	assert.False(t, hasRole(nil, auth.RoleStoreAdmin))
	assert.True(t, isAtLeast(user, auth.RoleStoreStaff))
	assert.False(t, isAtLeast(user, auth.RoleStoreOwner))

	assert.False(t, isPlatformScoped(user))
	assert.True(t, isPlatformScoped(platformAdmin()))

	assert.True(t, canAccessStore(user, "store-1"))
	assert.False(t, canAccessStore(user, "store-9"))
	assert.True(t, canAccessStore(platformAdmin(), "store-9"))

	// A snapshot only counts while authenticated.
	assert.True(t, isAuthenticated(auth.Snapshot{Status: auth.StatusAuthenticated, Profile: user}))
	assert.False(t, isAuthenticated(auth.Snapshot{Status: auth.StatusError, Profile: user}))
}

func TestTemplateHelpersWithSnapshot(t *testing.T) {
	helpers := auth.TemplateHelpersWithSnapshot(auth.Snapshot{Status: auth.StatusAuthenticated, Profile: storeAdmin()}, "store-2")
	assert.Equal(t, string(auth.StatusAuthenticated), helpers[auth.TemplateStatusKey])
	assert.Equal(t, "store-2", helpers[auth.TemplateStoreKey])
	require.IsType(t, &auth.UserProfile{}, helpers[auth.TemplateUserKey])

	guest := auth.TemplateHelpersWithSnapshot(auth.Snapshot{Status: auth.StatusUnauthenticated}, "")
	assert.Equal(t, string(auth.StatusUnauthenticated), guest[auth.TemplateStatusKey])
	assert.NotContains(t, guest, auth.TemplateUserKey)
	assert.NotContains(t, guest, auth.TemplateStoreKey)
}

func TestTemplateHelpersWithRouter(t *testing.T) {
	ctx := router.NewMockContext()
	ctx.LocalsMock[auth.LocalsProfileKey] = storeAdmin()
	ctx.LocalsMock[auth.LocalsStoreKey] = "store-1"

	helpers := auth.TemplateHelpersWithRouter(ctx)
	assert.Equal(t, string(auth.StatusAuthenticated), helpers[auth.TemplateStatusKey])
	assert.Equal(t, "store-1", helpers[auth.TemplateStoreKey])

	empty := auth.TemplateHelpersWithRouter(router.NewMockContext())
	assert.NotContains(t, empty, auth.TemplateUserKey)
}

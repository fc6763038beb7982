package auth

import (
	"context"

	"github.com/goliatone/go-router"
)

var profileCtxKey = &contextKey{"profile"}
var storeCtxKey = &contextKey{"store"}
var claimsCtxKey = &contextKey{"claims"}

type contextKey struct {
	name string
}

// LocalsProfileKey and LocalsStoreKey are the router locals the route
// guard middleware fills in.
const (
	LocalsProfileKey = "console_profile"
	LocalsStoreKey   = "console_store_id"
)

// WithProfileContext sets the UserProfile in the given context.
func WithProfileContext(ctx context.Context, profile *UserProfile) context.Context {
	return context.WithValue(ctx, profileCtxKey, profile)
}

// ProfileFromContext finds the profile in the context.
func ProfileFromContext(ctx context.Context) (*UserProfile, bool) {
	raw, ok := ctx.Value(profileCtxKey).(*UserProfile)
	return raw, ok && raw != nil
}

// WithStoreContext sets the selected store id.
func WithStoreContext(ctx context.Context, storeID string) context.Context {
	return context.WithValue(ctx, storeCtxKey, storeID)
}

// StoreFromContext returns the selected store id.
func StoreFromContext(ctx context.Context) (string, bool) {
	raw, ok := ctx.Value(storeCtxKey).(string)
	return raw, ok && raw != ""
}

// WithClaimsContext sets decoded claims in the context.
func WithClaimsContext(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsCtxKey, claims)
}

// ClaimsFromContext extracts claims from the context.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	raw, ok := ctx.Value(claimsCtxKey).(*Claims)
	return raw, ok && raw != nil
}

// GetRouterProfile extracts the profile from the router locals.
func GetRouterProfile(ctx router.Context) (*UserProfile, bool) {
	raw := ctx.Locals(LocalsProfileKey)
	if raw == nil {
		return nil, false
	}
	profile, ok := raw.(*UserProfile)
	return profile, ok && profile != nil
}

// GetRouterStore extracts the selected store id from the router locals.
func GetRouterStore(ctx router.Context) (string, bool) {
	raw := ctx.Locals(LocalsStoreKey)
	if raw == nil {
		return "", false
	}
	storeID, ok := raw.(string)
	return storeID, ok && storeID != ""
}

// HasRoleInContext is a convenience check over the profile in ctx.
func HasRoleInContext(ctx context.Context, roles ...string) bool {
	profile, ok := ProfileFromContext(ctx)
	if !ok {
		return false
	}
	return profile.RoleSet().HasAny(roles...)
}

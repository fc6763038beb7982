package auth

import (
	"github.com/goliatone/go-router"
)

var (
	TemplateUserKey   = "current_user"
	TemplateStatusKey = "auth_status"
	TemplateStoreKey  = "current_store_id"
)

// TemplateHelpers returns helper functions and role constants for
// templates rendering console chrome.
//
// In templates, you can then use:
//
//	{% if current_user|is_authenticated %}
//	{% if current_user|has_role:"store-admin" %}
//	{% if current_user|can_access_store:current_store_id %}
func TemplateHelpers() map[string]any {
	return map[string]any{
		"is_authenticated":   isAuthenticated,
		"has_role":           hasRole,
		"has_any_role":       hasAnyRole,
		"is_at_least":        isAtLeast,
		"is_platform_scoped": isPlatformScoped,
		"can_access_store":   canAccessStore,

		"roles": map[string]string{
			"platform_admin":   RolePlatformAdmin,
			"platform_support": RolePlatformSupport,
			"store_owner":      RoleStoreOwner,
			"store_admin":      RoleStoreAdmin,
			"store_staff":      RoleStoreStaff,
			"customer":         RoleCustomer,
		},
	}
}

// TemplateHelpersWithSnapshot adds the state machine snapshot and the
// selected store to the helpers.
func TemplateHelpersWithSnapshot(snap Snapshot, storeID string) map[string]any {
	helpers := TemplateHelpers()
	helpers[TemplateStatusKey] = string(snap.Status)
	if snap.Status == StatusAuthenticated && snap.Profile != nil {
		helpers[TemplateUserKey] = snap.Profile
	}
	if storeID != "" {
		helpers[TemplateStoreKey] = storeID
	}
	return helpers
}

// TemplateHelpersWithRouter reads the profile and store the route guard
// placed in the router locals.
func TemplateHelpersWithRouter(ctx router.Context) map[string]any {
	helpers := TemplateHelpers()
	if profile, ok := GetRouterProfile(ctx); ok {
		helpers[TemplateUserKey] = profile
		helpers[TemplateStatusKey] = string(StatusAuthenticated)
	}
	if storeID, ok := GetRouterStore(ctx); ok {
		helpers[TemplateStoreKey] = storeID
	}
	return helpers
}

func asProfile(user any) *UserProfile {
	switch u := user.(type) {
	case *UserProfile:
		return u
	case UserProfile:
		return &u
	case Snapshot:
		if u.Status != StatusAuthenticated {
			return nil
		}
		return u.Profile
	default:
		return nil
	}
}

func isAuthenticated(user any) bool {
	p := asProfile(user)
	return p != nil && p.ID != ""
}

func hasRole(user any, role string) bool {
	return asProfile(user).RoleSet().Has(role)
}

func hasAnyRole(user any, roles ...string) bool {
	return asProfile(user).RoleSet().HasAny(roles...)
}

// isAtLeast checks the store role hierarchy across all of the user roles.
func isAtLeast(user any, minRole string) bool {
	for _, role := range asProfile(user).RoleNames() {
		if IsAtLeast(role, minRole) {
			return true
		}
	}
	return false
}

func isPlatformScoped(user any) bool {
	p := asProfile(user)
	if p == nil {
		return false
	}
	platform := NewRoleSet(DefaultPlatformRoles...)
	for _, role := range p.Roles {
		if role.Scope == RoleScopePlatform || platform.Has(role.Name) {
			return true
		}
	}
	return false
}

func canAccessStore(user any, storeID string) bool {
	if storeID == "" || !isAuthenticated(user) {
		return false
	}
	if isPlatformScoped(user) {
		return true
	}
	_, ok := asProfile(user).StoreByID(storeID)
	return ok
}

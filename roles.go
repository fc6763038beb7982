package auth

import (
	"slices"
	"strings"
)

const (
	// RolePlatformAdmin may act on any store.
	RolePlatformAdmin = "platform-admin"
	// RolePlatformSupport may act on any store, read mostly.
	RolePlatformSupport = "platform-support"
	// RoleStoreOwner owns a store.
	RoleStoreOwner = "store-owner"
	// RoleStoreAdmin administers a store.
	RoleStoreAdmin = "store-admin"
	// RoleStoreStaff operates a store.
	RoleStoreStaff = "store-staff"
	// RoleCustomer has no console privileges.
	RoleCustomer = "customer"
)

// DefaultPlatformRoles are the roles that bypass store membership checks.
var DefaultPlatformRoles = []string{RolePlatformAdmin, RolePlatformSupport}

// RoleSet is an unordered set of role names.
type RoleSet map[string]struct{}

// NewRoleSet builds a set from names, skipping blanks.
func NewRoleSet(roles ...string) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		set[r] = struct{}{}
	}
	return set
}

// Has reports whether role is in the set.
func (s RoleSet) Has(role string) bool {
	_, ok := s[role]
	return ok
}

// HasAny reports whether any of roles is in the set. An empty roles list
// is never satisfied.
func (s RoleSet) HasAny(roles ...string) bool {
	for _, r := range roles {
		if s.Has(r) {
			return true
		}
	}
	return false
}

// HasAll reports whether every role is in the set.
func (s RoleSet) HasAll(roles ...string) bool {
	for _, r := range roles {
		if !s.Has(r) {
			return false
		}
	}
	return true
}

// Add inserts roles into the set.
func (s RoleSet) Add(roles ...string) {
	for _, r := range roles {
		if r = strings.TrimSpace(r); r != "" {
			s[r] = struct{}{}
		}
	}
}

// Slice returns the roles sorted.
func (s RoleSet) Slice() []string {
	out := make([]string, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	slices.Sort(out)
	return out
}

// Role is a named role assigned to a user.
type Role struct {
	Name string `json:"name"`
	// Scope is "platform" or "store".
	Scope string `json:"scope,omitempty"`
}

const (
	RoleScopePlatform = "platform"
	RoleScopeStore    = "store"
)

// roleRank orders store roles from least to most privileged.
var roleRank = map[string]int{
	RoleCustomer:   0,
	RoleStoreStaff: 1,
	RoleStoreAdmin: 2,
	RoleStoreOwner: 3,
}

// IsAtLeast reports whether role ranks at or above minRole in the store
// role hierarchy. Unknown roles never satisfy the check.
func IsAtLeast(role, minRole string) bool {
	current, ok := roleRank[role]
	if !ok {
		return false
	}
	required, ok := roleRank[minRole]
	if !ok {
		return false
	}
	return current >= required
}

// RoleNames extracts the names from roles, preserving order.
func RoleNames(roles []Role) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, r.Name)
	}
	return out
}

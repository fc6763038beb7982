package auth

import (
	"fmt"
	"slices"

	validation "github.com/go-ozzo/ozzo-validation"
)

// StoreAccess is one tenant the user may act within.
type StoreAccess struct {
	StoreID   string  `json:"store_id"`
	StoreName string  `json:"store_name,omitempty"`
	Roles     RoleSet `json:"-"`
	IsDefault bool    `json:"is_default,omitempty"`
}

// UserProfile is owned by the state machine and replaced wholesale on
// every successful authenticate or refresh.
type UserProfile struct {
	ID          string        `json:"id"`
	Username    string        `json:"username"`
	Email       string        `json:"email,omitempty"`
	DisplayName string        `json:"display_name,omitempty"`
	Roles       []Role        `json:"roles"`
	StoreAccess []StoreAccess `json:"store_access"`
}

// Validate checks the profile invariants: an id, and at most one default
// store.
func (p *UserProfile) Validate() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.ID, validation.Required),
		validation.Field(&p.StoreAccess, validation.By(validateStoreAccess)),
	)
}

func validateStoreAccess(value interface{}) error {
	stores, _ := value.([]StoreAccess)
	defaults := 0
	seen := make(map[string]struct{}, len(stores))
	for _, s := range stores {
		if s.StoreID == "" {
			return fmt.Errorf("store id is required")
		}
		if _, dup := seen[s.StoreID]; dup {
			return fmt.Errorf("store %s listed more than once", s.StoreID)
		}
		seen[s.StoreID] = struct{}{}
		if s.IsDefault {
			defaults++
		}
	}
	if defaults > 1 {
		return fmt.Errorf("at most one default store is allowed, got %d", defaults)
	}
	return nil
}

// RoleSet returns the profile roles as a set.
func (p *UserProfile) RoleSet() RoleSet {
	if p == nil {
		return RoleSet{}
	}
	return NewRoleSet(RoleNames(p.Roles)...)
}

// RoleNames returns the role names in profile order.
func (p *UserProfile) RoleNames() []string {
	if p == nil {
		return nil
	}
	return RoleNames(p.Roles)
}

// StoreByID finds the membership for storeID.
func (p *UserProfile) StoreByID(storeID string) (StoreAccess, bool) {
	if p == nil {
		return StoreAccess{}, false
	}
	for _, s := range p.StoreAccess {
		if s.StoreID == storeID {
			return s, true
		}
	}
	return StoreAccess{}, false
}

// DefaultStore returns the store flagged as default, if any.
func (p *UserProfile) DefaultStore() (StoreAccess, bool) {
	if p == nil {
		return StoreAccess{}, false
	}
	for _, s := range p.StoreAccess {
		if s.IsDefault {
			return s, true
		}
	}
	return StoreAccess{}, false
}

// Clone returns a deep copy so callers can not mutate shared state.
func (p *UserProfile) Clone() *UserProfile {
	if p == nil {
		return nil
	}
	out := *p
	out.Roles = slices.Clone(p.Roles)
	out.StoreAccess = make([]StoreAccess, len(p.StoreAccess))
	for i, s := range p.StoreAccess {
		s.Roles = NewRoleSet(s.Roles.Slice()...)
		out.StoreAccess[i] = s
	}
	return &out
}

// ProfileFromClaims builds a profile from decoded token claims. Roles
// matching platformRoles get the platform scope.
func ProfileFromClaims(c *Claims, platformRoles []string) *UserProfile {
	if c == nil {
		return nil
	}
	platform := NewRoleSet(platformRoles...)

	p := &UserProfile{
		ID:          c.Subject,
		Username:    c.Username,
		Email:       c.Email,
		DisplayName: c.DisplayName,
	}
	for _, name := range c.Roles.Slice() {
		scope := RoleScopeStore
		if platform.Has(name) {
			scope = RoleScopePlatform
		}
		p.Roles = append(p.Roles, Role{Name: name, Scope: scope})
	}
	p.StoreAccess = append(p.StoreAccess, c.Stores...)
	return p
}

package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the decoded, read-only view of an access token.
type Claims struct {
	Subject     string
	DisplayName string
	Username    string
	Email       string
	Issuer      string
	Roles       RoleSet
	Stores      []StoreAccess
	Expiry      time.Time
	IssuedAt    time.Time
}

// HasRole reports whether the claims carry role.
func (c *Claims) HasRole(role string) bool {
	if c == nil {
		return false
	}
	return c.Roles.Has(role)
}

// tokenClaims is the wire shape of the access token payload. Roles may
// come from a flat "roles" claim or from Keycloak style realm/resource
// access blocks.
type tokenClaims struct {
	jwt.RegisteredClaims
	Name              string                 `json:"name,omitempty"`
	PreferredUsername string                 `json:"preferred_username,omitempty"`
	Email             string                 `json:"email,omitempty"`
	Roles             []string               `json:"roles,omitempty"`
	RealmAccess       accessBlock            `json:"realm_access,omitempty"`
	ResourceAccess    map[string]accessBlock `json:"resource_access,omitempty"`
	StoreAccess       []storeAccessClaim     `json:"store_access,omitempty"`
}

type accessBlock struct {
	Roles []string `json:"roles,omitempty"`
}

type storeAccessClaim struct {
	StoreID   string   `json:"store_id"`
	StoreName string   `json:"store_name,omitempty"`
	Roles     []string `json:"roles,omitempty"`
	IsDefault bool     `json:"is_default,omitempty"`
}

// Decode parses token into Claims without validating its signature, which
// is the identity provider's job. Malformed input fails with ErrDecode.
func Decode(token string) (claims *Claims, err error) {
	defer func() {
		if r := recover(); r != nil {
			claims = nil
			err = withDetails(ErrDecode, fmt.Sprintf("unable to decode token: %v", r), nil)
		}
	}()

	token = strings.TrimSpace(token)
	if token == "" {
		return nil, withDetails(ErrDecode, "unable to decode token: empty token", nil)
	}
	if strings.Count(token, ".") != 2 {
		return nil, withDetails(ErrDecode, "unable to decode token: not a three segment token", map[string]any{
			"segments": strings.Count(token, ".") + 1,
		})
	}

	raw := &tokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, raw); err != nil {
		return nil, wrapCause(ErrDecode, err, nil)
	}

	return raw.toClaims(), nil
}

func (tc *tokenClaims) toClaims() *Claims {
	roles := NewRoleSet(tc.Roles...)
	roles.Add(tc.RealmAccess.Roles...)
	for _, block := range tc.ResourceAccess {
		roles.Add(block.Roles...)
	}

	c := &Claims{
		Subject:     tc.Subject,
		DisplayName: tc.Name,
		Username:    tc.PreferredUsername,
		Email:       tc.Email,
		Issuer:      tc.Issuer,
		Roles:       roles,
	}
	if c.DisplayName == "" {
		c.DisplayName = c.Username
	}
	if tc.ExpiresAt != nil {
		c.Expiry = tc.ExpiresAt.Time
	}
	if tc.IssuedAt != nil {
		c.IssuedAt = tc.IssuedAt.Time
	}

	for _, sa := range tc.StoreAccess {
		if strings.TrimSpace(sa.StoreID) == "" {
			continue
		}
		c.Stores = append(c.Stores, StoreAccess{
			StoreID:   sa.StoreID,
			StoreName: sa.StoreName,
			Roles:     NewRoleSet(sa.Roles...),
			IsDefault: sa.IsDefault,
		})
	}
	return c
}

// RolesOf returns the roles carried by token.
func RolesOf(token string) (RoleSet, error) {
	c, err := Decode(token)
	if err != nil {
		return nil, err
	}
	return c.Roles, nil
}

// HasRole reports whether token carries role. Undecodable tokens carry
// no roles.
func HasRole(token, role string) bool {
	c, err := Decode(token)
	if err != nil {
		return false
	}
	return c.HasRole(role)
}

// SubjectOf returns the token subject.
func SubjectOf(token string) (string, error) {
	c, err := Decode(token)
	if err != nil {
		return "", err
	}
	return c.Subject, nil
}

// ExpiryOf returns the token expiry, zero when the token has none.
func ExpiryOf(token string) (time.Time, error) {
	c, err := Decode(token)
	if err != nil {
		return time.Time{}, err
	}
	return c.Expiry, nil
}

// Package guard decides, per navigation attempt, whether a console view may
// be shown. Steps run in a fixed order and the first one that does not pass
// decides the Verdict.
package guard

import (
	"maps"
	"slices"
)

// RouteMeta describes the access requirements of a destination. It is
// supplied by the router collaborator and never mutated.
type RouteMeta struct {
	RequiresAuth bool     `json:"requires_auth,omitempty" yaml:"requires_auth"`
	Roles        []string `json:"roles,omitempty" yaml:"roles"`
	StoreScoped  bool     `json:"store_scoped,omitempty" yaml:"store_scoped"`
	Public       bool     `json:"public,omitempty" yaml:"public"`
	GuestOnly    bool     `json:"guest_only,omitempty" yaml:"guest_only"`
}

// NeedsAuth reports whether the destination can only be shown to an
// authenticated user. Role restricted and store scoped destinations imply
// authentication.
func (m RouteMeta) NeedsAuth() bool {
	return m.RequiresAuth || len(m.Roles) > 0 || m.StoreScoped
}

// Destination is one navigation attempt.
type Destination struct {
	// Name is the route name.
	Name string
	// FullPath is the original path including the query string; it is
	// what login and store selection resume to.
	FullPath string
	Params   map[string]string
	Query    map[string]string
	Meta     RouteMeta
}

// Param returns a path parameter, falling back to the query.
func (d Destination) Param(key string) string {
	if v := d.Params[key]; v != "" {
		return v
	}
	return d.Query[key]
}

// WithParam returns a copy of d with a path parameter set.
func (d Destination) WithParam(key, value string) Destination {
	out := d
	out.Params = maps.Clone(d.Params)
	if out.Params == nil {
		out.Params = map[string]string{}
	}
	out.Params[key] = value
	out.Meta.Roles = slices.Clone(d.Meta.Roles)
	return out
}

// Package tenant resolves which store a console request acts within and
// holds the selected store for the running console.
package tenant

import (
	"strings"

	auth "github.com/goliatone/go-console-auth"
)

// Kind tags the outcome of a resolution.
type Kind string

const (
	// KindSelected means the requested store was accepted.
	KindSelected Kind = "selected"
	// KindAutoSelected means no store was requested and the only available
	// one was picked; the navigation should be rewritten to carry it.
	KindAutoSelected Kind = "auto_selected"
	// KindSelectionRequired means the user has to pick a store first.
	KindSelectionRequired Kind = "selection_required"
	// KindNoAccess means the user has no stores at all.
	KindNoAccess Kind = "no_access"
	// KindDenied means the requested store is not one of the user's.
	KindDenied Kind = "denied"
)

// Input is everything the resolver looks at.
type Input struct {
	Stores           []auth.StoreAccess
	RequestedStoreID string
	PlatformScoped   bool
	// Destination is the original full path, kept so a selection step can
	// resume it.
	Destination string
}

// Resolution is the resolver signal.
type Resolution struct {
	Kind     Kind
	StoreID  string
	Redirect string
	Err      error
}

// Resolved reports whether a store was settled on.
func (r Resolution) Resolved() bool {
	return r.Kind == KindSelected || r.Kind == KindAutoSelected
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithPreferDefault makes the resolver pick the store flagged as default
// when several are available instead of asking for a selection.
func WithPreferDefault(enabled bool) Option {
	return func(r *Resolver) {
		r.preferDefault = enabled
	}
}

// Resolver maps store memberships and a requested store id to a Resolution.
// It holds no per-request state and is safe for concurrent use.
type Resolver struct {
	preferDefault bool
}

// NewResolver returns a resolver.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Resolve applies the resolution rules in order: an explicit request is
// checked against the memberships (platform scoped users skip the check),
// otherwise the number of available stores decides.
func (r *Resolver) Resolve(in Input) Resolution {
	requested := strings.TrimSpace(in.RequestedStoreID)

	if requested != "" {
		if in.PlatformScoped || hasStore(in.Stores, requested) {
			return Resolution{Kind: KindSelected, StoreID: requested}
		}
		return Resolution{
			Kind:    KindDenied,
			StoreID: requested,
			Err:     auth.StoreAccessDenied(requested),
		}
	}

	switch len(in.Stores) {
	case 0:
		if in.PlatformScoped {
			return Resolution{Kind: KindSelectionRequired, Redirect: in.Destination}
		}
		return Resolution{Kind: KindNoAccess}
	case 1:
		return Resolution{Kind: KindAutoSelected, StoreID: in.Stores[0].StoreID}
	}

	if r.preferDefault {
		for _, s := range in.Stores {
			if s.IsDefault {
				return Resolution{Kind: KindAutoSelected, StoreID: s.StoreID}
			}
		}
	}

	return Resolution{Kind: KindSelectionRequired, Redirect: in.Destination}
}

func hasStore(stores []auth.StoreAccess, id string) bool {
	for _, s := range stores {
		if s.StoreID == id {
			return true
		}
	}
	return false
}

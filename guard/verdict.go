package guard

import (
	"fmt"
	"net/url"
	"strings"
)

// Kind tags a Verdict.
type Kind string

const (
	// KindContinue is returned by a step that has nothing to say; the
	// runner moves on to the next step. It never leaves the pipeline.
	KindContinue Kind = ""
	KindAllow    Kind = "allow"
	KindRedirect Kind = "redirect"
	// KindRewrite asks the router to re-issue the current navigation with
	// Params merged in.
	KindRewrite Kind = "rewrite"
)

// Reason explains a redirect.
type Reason string

const (
	ReasonAuthenticationRequired    Reason = "authentication_required"
	ReasonAuthenticationUnavailable Reason = "authentication_unavailable"
	ReasonInsufficientRoles         Reason = "insufficient_roles"
	ReasonStoreAccessDenied         Reason = "store_access_denied"
	ReasonStoreSelectionRequired    Reason = "store_selection_required"
	ReasonNoStoreAccess             Reason = "no_store_access"
	ReasonAlreadyAuthenticated      Reason = "already_authenticated"
	ReasonStoreAutoSelected         Reason = "store_auto_selected"
)

// Query keys carried by redirects.
const (
	QueryRedirect      = "redirect"
	QueryReason        = "reason"
	QueryRequiredRoles = "requiredRoles"
	QueryUserRoles     = "userRoles"
	QueryStoreID       = "storeId"
)

// Verdict is the outcome of one evaluation. Verdicts are built fresh for
// every navigation and never cached.
type Verdict struct {
	Kind Kind
	// Target is the route name of a redirect.
	Target string
	Query  map[string]string
	// Params are merged into the navigation on rewrite.
	Params map[string]string
	Reason Reason
	// StoreID is the store the navigation settled on, if any.
	StoreID string
}

// Allow lets the navigation through.
func Allow() Verdict {
	return Verdict{Kind: KindAllow}
}

// AllowInStore lets the navigation through within storeID.
func AllowInStore(storeID string) Verdict {
	return Verdict{Kind: KindAllow, StoreID: storeID}
}

// RedirectTo sends the navigation to the named route.
func RedirectTo(target string, reason Reason, query map[string]string) Verdict {
	q := make(map[string]string, len(query)+1)
	for k, v := range query {
		if v != "" {
			q[k] = v
		}
	}
	if reason != "" {
		q[QueryReason] = string(reason)
	}
	return Verdict{Kind: KindRedirect, Target: target, Query: q, Reason: reason}
}

// Rewrite re-issues the navigation with params.
func Rewrite(params map[string]string, reason Reason) Verdict {
	return Verdict{Kind: KindRewrite, Params: params, Reason: reason}
}

func (v Verdict) IsAllow() bool    { return v.Kind == KindAllow }
func (v Verdict) IsRedirect() bool { return v.Kind == KindRedirect }
func (v Verdict) IsRewrite() bool  { return v.Kind == KindRewrite }

// Location renders a redirect as path?query. resolve maps a route name to
// a path; nil uses the name as is.
func (v Verdict) Location(resolve func(name string) string) string {
	if v.Kind != KindRedirect {
		return ""
	}
	path := v.Target
	if resolve != nil {
		path = resolve(v.Target)
	}
	if len(v.Query) == 0 {
		return path
	}
	values := url.Values{}
	for k, val := range v.Query {
		values.Set(k, val)
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + values.Encode()
}

func (v Verdict) String() string {
	switch v.Kind {
	case KindAllow:
		if v.StoreID != "" {
			return fmt.Sprintf("allow(store=%s)", v.StoreID)
		}
		return "allow"
	case KindRedirect:
		return fmt.Sprintf("redirect(%s, %s)", v.Target, v.Reason)
	case KindRewrite:
		return fmt.Sprintf("rewrite(%v)", v.Params)
	default:
		return "continue"
	}
}

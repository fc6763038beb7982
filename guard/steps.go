package guard

import (
	"context"
	"strings"

	auth "github.com/goliatone/go-console-auth"
	"github.com/goliatone/go-console-auth/tenant"
)

// AuthState is the read side of the authentication state machine the
// pipeline needs. *auth.AuthStateMachine satisfies it.
type AuthState interface {
	Status() auth.AuthStatus
	// Init starts initialization if needed and waits for its result.
	Init(ctx context.Context) (auth.AuthStatus, error)
	Roles() auth.RoleSet
	HasAnyRole(roles ...string) bool
	IsPlatformScoped() bool
	Profile() *auth.UserProfile
}

// LandingResolver picks the landing route for an already authenticated
// user visiting a guest only destination. An empty result falls back to
// the configured landing route.
type LandingResolver func(profile *auth.UserProfile) string

// Evaluation is the input every step sees for one navigation.
type Evaluation struct {
	Destination Destination
	Auth        AuthState
	Resolver    *tenant.Resolver
	Config      Config
	Landing     LandingResolver
}

// Step is one check. It returns a Verdict with KindContinue to defer to
// the next step. A non nil error means the evaluation was abandoned.
type Step func(ctx context.Context, ev *Evaluation) (Verdict, error)

// DefaultSteps returns the checks in their fixed order.
func DefaultSteps() []Step {
	return []Step{
		GuestOnlyStep,
		PublicStep,
		AuthenticationStep,
		RolesStep,
		StoreAccessStep,
	}
}

func next() (Verdict, error) {
	return Verdict{}, nil
}

// GuestOnlyStep sends authenticated users away from guest only pages. It
// does not wait for initialization.
func GuestOnlyStep(_ context.Context, ev *Evaluation) (Verdict, error) {
	if !ev.Destination.Meta.GuestOnly || ev.Auth.Status() != auth.StatusAuthenticated {
		return next()
	}

	target := ev.Config.GetLandingRoute()
	if ev.Landing != nil {
		if custom := ev.Landing(ev.Auth.Profile()); custom != "" {
			target = custom
		}
	}
	return RedirectTo(target, ReasonAlreadyAuthenticated, nil), nil
}

// PublicStep allows public destinations regardless of the auth status.
func PublicStep(_ context.Context, ev *Evaluation) (Verdict, error) {
	if ev.Destination.Meta.Public {
		return Allow(), nil
	}
	return next()
}

// AuthenticationStep waits for initialization when needed, bounded by the
// configured init wait, and sends unauthenticated users to login.
func AuthenticationStep(ctx context.Context, ev *Evaluation) (Verdict, error) {
	if !ev.Destination.Meta.NeedsAuth() {
		return next()
	}

	status := ev.Auth.Status()
	if !status.IsTerminal() {
		waitCtx, cancel := context.WithTimeout(ctx, ev.Config.GetInitWait())
		defer cancel()

		var err error
		status, err = ev.Auth.Init(waitCtx)
		if err != nil {
			if ctx.Err() != nil {
				return Verdict{}, ctx.Err()
			}
			status = auth.StatusError
		}
	}

	switch status {
	case auth.StatusAuthenticated:
		return next()
	case auth.StatusError:
		return RedirectTo(ev.Config.GetLoginRoute(), ReasonAuthenticationUnavailable, map[string]string{
			QueryRedirect: ev.Destination.FullPath,
		}), nil
	default:
		return RedirectTo(ev.Config.GetLoginRoute(), ReasonAuthenticationRequired, map[string]string{
			QueryRedirect: ev.Destination.FullPath,
		}), nil
	}
}

// RolesStep requires at least one of the destination roles.
func RolesStep(_ context.Context, ev *Evaluation) (Verdict, error) {
	required := ev.Destination.Meta.Roles
	if len(required) == 0 || ev.Auth.HasAnyRole(required...) {
		return next()
	}
	v := RedirectTo(ev.Config.GetUnauthorizedRoute(), ReasonInsufficientRoles, map[string]string{
		QueryRedirect:      ev.Destination.FullPath,
		QueryRequiredRoles: strings.Join(required, ","),
	})
	// userRoles is carried even when the user holds none.
	v.Query[QueryUserRoles] = strings.Join(ev.Auth.Roles().Slice(), ",")
	return v, nil
}

// StoreAccessStep settles the store for store scoped destinations.
func StoreAccessStep(_ context.Context, ev *Evaluation) (Verdict, error) {
	if !ev.Destination.Meta.StoreScoped {
		return next()
	}

	param := ev.Config.GetStoreParam()
	requested := ev.Destination.Param(param)

	if ev.Auth.IsPlatformScoped() {
		return AllowInStore(requested), nil
	}

	var stores []auth.StoreAccess
	if profile := ev.Auth.Profile(); profile != nil {
		stores = profile.StoreAccess
	}

	resolver := ev.Resolver
	if resolver == nil {
		resolver = tenant.NewResolver()
	}

	res := resolver.Resolve(tenant.Input{
		Stores:           stores,
		RequestedStoreID: requested,
		Destination:      ev.Destination.FullPath,
	})

	switch res.Kind {
	case tenant.KindSelected:
		return AllowInStore(res.StoreID), nil
	case tenant.KindAutoSelected:
		v := Rewrite(map[string]string{param: res.StoreID}, ReasonStoreAutoSelected)
		v.StoreID = res.StoreID
		return v, nil
	case tenant.KindSelectionRequired:
		return RedirectTo(ev.Config.GetStoreSelectionRoute(), ReasonStoreSelectionRequired, map[string]string{
			QueryRedirect: res.Redirect,
		}), nil
	case tenant.KindNoAccess:
		return RedirectTo(ev.Config.GetUnauthorizedRoute(), ReasonNoStoreAccess, map[string]string{
			QueryRedirect: ev.Destination.FullPath,
		}), nil
	default:
		return RedirectTo(ev.Config.GetUnauthorizedRoute(), ReasonStoreAccessDenied, map[string]string{
			QueryRedirect: ev.Destination.FullPath,
			QueryStoreID:  res.StoreID,
		}), nil
	}
}

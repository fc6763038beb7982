// Package routeguard runs the guard pipeline as go-router middleware and
// exposes the login, callback and logout handlers of the console.
//
// An evaluator holds the authentication state of one user agent. Servers
// handling many browsers set Bind so each request reaches the state of its
// own session; a fixed Evaluator is only right for a single user agent.
package routeguard

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"

	auth "github.com/goliatone/go-console-auth"
	"github.com/goliatone/go-console-auth/guard"
)

// Evaluator decides and applies verdicts. *guard.Pipeline satisfies it.
type Evaluator interface {
	Evaluate(ctx context.Context, dest guard.Destination) (guard.Verdict, error)
	Apply(ctx context.Context, v guard.Verdict) bool
}

// ProfileSource returns the current user profile, if any.
type ProfileSource interface {
	Profile() *auth.UserProfile
}

// Config configures the middleware.
type Config struct {
	// Evaluator serves every request. Either Evaluator or Bind is required.
	Evaluator Evaluator

	// Bind resolves the evaluator and profile source of the requesting user
	// agent. It takes precedence over Evaluator and Profile.
	Bind func(router.Context) (Evaluator, ProfileSource, error)

	// Profile is stored in locals and the request context on allow.
	Profile ProfileSource

	// Filter skips the guard when it returns true.
	Filter func(router.Context) bool

	// Routes maps request paths to route metadata. Unknown paths get the
	// zero RouteMeta, which is public.
	Routes map[string]guard.RouteMeta

	// Resolve overrides how a request is mapped to a route name and its
	// metadata. It takes precedence over Routes.
	Resolve func(router.Context) (string, guard.RouteMeta)

	// RouteURL maps a route name to a path. Nil uses the name as is.
	RouteURL func(name string) string

	// RewriteURL builds the URL a rewrite verdict redirects to. The default
	// merges params into the query of the original URL.
	RewriteURL func(ctx router.Context, params map[string]string) string

	// StoreParam is the route parameter that carries the store id
	// (default: guard.DefaultStoreParam).
	StoreParam string

	// RedirectStatus is used for redirects (default: 302).
	RedirectStatus int

	// ProfileKey and StoreKey are the locals keys set on allow.
	ProfileKey string
	StoreKey   string

	ErrorHandler router.ErrorHandler
	Logger       auth.Logger
}

// New returns middleware that guards every request with cfg.Evaluator.
func New(config Config) router.MiddlewareFunc {
	cfg := GetDefaultConfig(config)
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return ctx.Next()
			}

			evaluator, profiles := cfg.Evaluator, cfg.Profile
			if cfg.Bind != nil {
				var err error
				if evaluator, profiles, err = cfg.Bind(ctx); err != nil {
					return cfg.ErrorHandler(ctx, err)
				}
			}

			dest := cfg.destination(ctx)
			reqCtx := ctx.Context()

			verdict, err := evaluator.Evaluate(reqCtx, dest)
			if err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			switch verdict.Kind {
			case guard.KindRedirect:
				return ctx.Redirect(verdict.Location(cfg.RouteURL), cfg.RedirectStatus)
			case guard.KindRewrite:
				evaluator.Apply(reqCtx, verdict)
				return ctx.Redirect(cfg.RewriteURL(ctx, verdict.Params), cfg.RedirectStatus)
			}

			evaluator.Apply(reqCtx, verdict)

			if profiles != nil {
				if profile := profiles.Profile(); profile != nil {
					ctx.Locals(cfg.ProfileKey, profile)
					reqCtx = auth.WithProfileContext(reqCtx, profile)
				}
			}
			if verdict.StoreID != "" {
				ctx.Locals(cfg.StoreKey, verdict.StoreID)
				reqCtx = auth.WithStoreContext(reqCtx, verdict.StoreID)
			}
			ctx.SetContext(reqCtx)

			return ctx.Next()
		}
	}
}

// GetDefaultConfig fills in defaults. It panics without an Evaluator or
// Bind.
func GetDefaultConfig(cfg Config) Config {
	if cfg.Evaluator == nil && cfg.Bind == nil {
		panic("CONSOLE-AUTH: route guard configuration: Evaluator or Bind is required.")
	}
	if cfg.StoreParam == "" {
		cfg.StoreParam = guard.DefaultStoreParam
	}
	if cfg.RedirectStatus == 0 {
		cfg.RedirectStatus = http.StatusFound
	}
	if cfg.ProfileKey == "" {
		cfg.ProfileKey = auth.LocalsProfileKey
	}
	if cfg.StoreKey == "" {
		cfg.StoreKey = auth.LocalsStoreKey
	}
	if cfg.Logger == nil {
		cfg.Logger = auth.DefaultLogger()
	}
	if cfg.RewriteURL == nil {
		cfg.RewriteURL = func(ctx router.Context, params map[string]string) string {
			return mergeQuery(ctx.OriginalURL(), params)
		}
	}
	if cfg.ErrorHandler == nil {
		logger := cfg.Logger
		cfg.ErrorHandler = func(c router.Context, err error) error {
			var richErr *errors.Error
			if !errors.As(err, &richErr) {
				richErr = errors.Wrap(err, errors.CategoryInternal, "route guard failed").
					WithCode(errors.CodeInternal)
			}
			logger.Warn("route guard error",
				"path", c.Path(),
				"error", richErr.Message,
				"category", richErr.Category,
				"details", print.MaybePrettyJSON(richErr.Metadata),
			)
			return c.Status(http.StatusServiceUnavailable).SendString("authentication unavailable")
		}
	}
	return cfg
}

func (cfg Config) destination(ctx router.Context) guard.Destination {
	var (
		name string
		meta guard.RouteMeta
	)
	if cfg.Resolve != nil {
		name, meta = cfg.Resolve(ctx)
	} else {
		name = ctx.Path()
		meta = cfg.Routes[name]
	}

	dest := guard.Destination{
		Name:     name,
		FullPath: ctx.OriginalURL(),
		Query:    ctx.Queries(),
		Meta:     meta,
	}
	if id := ctx.Param(cfg.StoreParam); id != "" {
		dest = dest.WithParam(cfg.StoreParam, id)
	}
	return dest
}

func mergeQuery(target string, params map[string]string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func appendQueryParam(target, key, value string) string {
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	return target + sep + url.QueryEscape(key) + "=" + url.QueryEscape(value)
}

package routeguard

import (
	"context"
	"net/http"
	"net/url"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"

	auth "github.com/goliatone/go-console-auth"
)

// RouteRegistrar captures the router methods used by the controller.
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// Session is the part of the state machine the controller drives.
// *auth.AuthStateMachine satisfies it.
type Session interface {
	BeginLogin(ctx context.Context, redirect string, mode auth.LoginMode) (string, error)
	HandleCallback(ctx context.Context, query url.Values) (string, error)
	Logout(ctx context.Context, redirect string) (string, error)
	Snapshot() auth.Snapshot
}

// ControllerConfig configures the controller.
type ControllerConfig struct {
	// PathPrefix for routes (default: "/auth")
	PathPrefix string

	// ErrorRedirect is where failed logins land (default: "/login")
	ErrorRedirect string

	// PostLogoutRedirect is handed to the identity provider on logout.
	PostLogoutRedirect string

	// RedirectQueryKey names the query parameter holding the post login
	// destination (default: "redirect")
	RedirectQueryKey string

	// Bind resolves the session of the requesting user agent. It takes
	// precedence over the session passed to NewController.
	Bind func(router.Context) (Session, error)

	Logger auth.Logger
}

// Controller handles the console login routes.
type Controller struct {
	session Session
	config  ControllerConfig
}

// NewController creates a controller over session. session may be nil
// when cfg.Bind is set.
func NewController(session Session, cfg ControllerConfig) *Controller {
	if cfg.PathPrefix == "" {
		cfg.PathPrefix = "/auth"
	}
	if cfg.ErrorRedirect == "" {
		cfg.ErrorRedirect = "/login"
	}
	if cfg.RedirectQueryKey == "" {
		cfg.RedirectQueryKey = "redirect"
	}
	if cfg.Logger == nil {
		cfg.Logger = auth.DefaultLogger()
	}
	return &Controller{session: session, config: cfg}
}

// RegisterRoutes registers the login routes under the prefix.
func (c *Controller) RegisterRoutes(group RouteRegistrar) {
	group.Get(c.config.PathPrefix+"/login", c.Login)
	group.Get(c.config.PathPrefix+"/register", c.Register)
	group.Get(c.config.PathPrefix+"/callback", c.Callback)
	group.Post(c.config.PathPrefix+"/logout", c.Logout)
	group.Get(c.config.PathPrefix+"/me", c.Me)
}

// Login sends the user agent to the identity provider.
func (c *Controller) Login(ctx router.Context) error {
	return c.begin(ctx, auth.LoginModeLogin)
}

// Register sends the user agent to the identity provider sign up page.
func (c *Controller) Register(ctx router.Context) error {
	return c.begin(ctx, auth.LoginModeRegister)
}

func (c *Controller) sessionFor(ctx router.Context) (Session, error) {
	if c.config.Bind != nil {
		return c.config.Bind(ctx)
	}
	if c.session == nil {
		return nil, errors.New("no session configured", errors.CategoryInternal)
	}
	return c.session, nil
}

func (c *Controller) begin(ctx router.Context, mode auth.LoginMode) error {
	session, err := c.sessionFor(ctx)
	if err != nil {
		return c.handleError(ctx, err)
	}
	target, err := session.BeginLogin(ctx.Context(), ctx.Query(c.config.RedirectQueryKey), mode)
	if err != nil {
		return c.handleError(ctx, err)
	}
	return ctx.Redirect(target, http.StatusTemporaryRedirect)
}

// Callback completes the login and resumes the original destination.
func (c *Controller) Callback(ctx router.Context) error {
	query := url.Values{}
	for _, key := range []string{"code", "state", "error", "error_description"} {
		if v := ctx.Query(key); v != "" {
			query.Set(key, v)
		}
	}

	session, err := c.sessionFor(ctx)
	if err != nil {
		return c.handleError(ctx, err)
	}
	target, err := session.HandleCallback(ctx.Context(), query)
	if err != nil {
		return c.handleError(ctx, err)
	}
	return ctx.Redirect(target, http.StatusFound)
}

// Logout ends the session locally and at the identity provider.
func (c *Controller) Logout(ctx router.Context) error {
	session, err := c.sessionFor(ctx)
	if err != nil {
		c.config.Logger.Warn("logout without session", "error", err)
		return ctx.Redirect(c.config.ErrorRedirect, http.StatusSeeOther)
	}
	target, err := session.Logout(ctx.Context(), c.config.PostLogoutRedirect)
	if err != nil {
		c.config.Logger.Warn("logout url unavailable", "error", err)
		target = c.config.ErrorRedirect
	}
	return ctx.Redirect(target, http.StatusSeeOther)
}

// Me returns the current authentication snapshot.
func (c *Controller) Me(ctx router.Context) error {
	session, err := c.sessionFor(ctx)
	if err != nil {
		return ctx.JSON(router.StatusServiceUnavailable, map[string]any{"error": "session unavailable"})
	}
	snap := session.Snapshot()
	payload := map[string]any{
		"status":        snap.Status,
		"authenticated": snap.Status == auth.StatusAuthenticated,
	}
	if snap.Profile != nil {
		payload["profile"] = snap.Profile
	}
	if storeID, ok := auth.GetRouterStore(ctx); ok {
		payload["store_id"] = storeID
	}
	if snap.Status != auth.StatusAuthenticated {
		return ctx.JSON(router.StatusUnauthorized, payload)
	}
	return ctx.JSON(router.StatusOK, payload)
}

func (c *Controller) handleError(ctx router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "login failed")
	}

	c.config.Logger.Info("login flow error",
		"error", richErr.Message,
		"category", richErr.Category,
		"details", print.MaybePrettyJSON(richErr.Metadata),
	)

	code := richErr.TextCode
	if code == "" {
		code = "auth_failed"
	}
	return ctx.Redirect(appendQueryParam(c.config.ErrorRedirect, "error", code), http.StatusFound)
}

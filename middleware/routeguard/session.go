package routeguard

import (
	"time"

	"github.com/goliatone/go-router"

	"github.com/goliatone/go-console-auth/console"
)

const (
	// DefaultSessionCookie names the cookie carrying the console session id.
	DefaultSessionCookie = "console_session"
	// DefaultSessionCookieTTL is the lifetime of a freshly issued cookie.
	DefaultSessionCookieTTL = 12 * time.Hour
)

// Sessions is the registry of per browser consoles. *console.Sessions
// satisfies it.
type Sessions interface {
	Lookup(sessionID string) (*console.Console, bool)
	Open() (string, *console.Console, error)
}

// SessionBinder maps a request to the console of its browser through a
// session cookie. Session ids only come from Sessions.Open: a request with
// no cookie, or with an id the registry does not know, gets a new session.
type SessionBinder struct {
	Sessions Sessions
	Cookie   string
	TTL      time.Duration
	Secure   bool
}

// Console returns the console of the requesting browser.
func (b SessionBinder) Console(ctx router.Context) (*console.Console, error) {
	name := b.Cookie
	if name == "" {
		name = DefaultSessionCookie
	}
	if c, ok := b.Sessions.Lookup(ctx.Cookies(name)); ok {
		return c, nil
	}

	id, c, err := b.Sessions.Open()
	if err != nil {
		return nil, err
	}

	ttl := b.TTL
	if ttl <= 0 {
		ttl = DefaultSessionCookieTTL
	}
	ctx.Cookie(&router.Cookie{
		Name:     name,
		Value:    id,
		Path:     "/",
		Expires:  time.Now().Add(ttl),
		Secure:   b.Secure,
		HTTPOnly: true,
		SameSite: router.CookieSameSiteLaxMode,
	})
	return c, nil
}

// Guard is a Config.Bind function.
func (b SessionBinder) Guard(ctx router.Context) (Evaluator, ProfileSource, error) {
	c, err := b.Console(ctx)
	if err != nil {
		return nil, nil, err
	}
	return c.Pipeline(), c.Auth(), nil
}

// Session is a ControllerConfig.Bind function.
func (b SessionBinder) Session(ctx router.Context) (Session, error) {
	c, err := b.Console(ctx)
	if err != nil {
		return nil, err
	}
	return c.Auth(), nil
}

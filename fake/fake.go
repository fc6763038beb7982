// Package fake provides an in-memory identity provider for tests and demos.
//
// Tokens are real JWTs minted with auth.MintAccessToken, so everything that
// decodes claims behaves as it would against a real provider.
package fake

import (
	"context"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"

	auth "github.com/goliatone/go-console-auth"
)

// Option configures the fake provider.
type Option func(*Provider)

// WithUser adds a user the provider can log in.
func WithUser(profile *auth.UserProfile) Option {
	return func(p *Provider) {
		if profile != nil && profile.ID != "" {
			p.users[profile.ID] = profile.Clone()
		}
	}
}

// WithSession makes Init report an existing session for userID.
func WithSession(userID string) Option {
	return func(p *Provider) {
		p.session = userID
	}
}

// WithSingleSignOn controls whether a completed login leaves a provider
// session that later Init calls report (default: true). Servers that keep
// one console per browser turn it off, since the fake can not tell the
// browsers apart.
func WithSingleSignOn(enabled bool) Option {
	return func(p *Provider) {
		p.sso = enabled
	}
}

// WithTokenTTL sets the lifetime of minted access tokens.
func WithTokenTTL(ttl time.Duration) Option {
	return func(p *Provider) {
		p.ttl = ttl
	}
}

// WithClock injects a clock (useful for tests).
func WithClock(clock auth.Clock) Option {
	return func(p *Provider) {
		if clock != nil {
			p.now = clock
		}
	}
}

// WithInitError makes Init fail.
func WithInitError(err error) Option {
	return func(p *Provider) {
		p.initErr = err
	}
}

// WithInitGate makes Init block until gate is closed or ctx ends.
func WithInitGate(gate <-chan struct{}) Option {
	return func(p *Provider) {
		p.initGate = gate
	}
}

// WithRefreshGate makes RefreshSession block until gate is closed or ctx ends.
func WithRefreshGate(gate <-chan struct{}) Option {
	return func(p *Provider) {
		p.refreshGate = gate
	}
}

// WithRefreshError makes RefreshSession fail.
func WithRefreshError(err error) Option {
	return func(p *Provider) {
		p.refreshErr = err
	}
}

// WithBaseURL sets the URL login and logout links point at.
func WithBaseURL(base string) Option {
	return func(p *Provider) {
		if base != "" {
			p.baseURL = base
		}
	}
}

// Provider implements auth.IdentityProvider in memory.
type Provider struct {
	mu       sync.Mutex
	users    map[string]*auth.UserProfile
	codes    map[string]string
	refresh  map[string]string
	session  string
	sso      bool
	baseURL  string
	ttl      time.Duration
	now      auth.Clock
	platform []string

	initErr     error
	initGate    <-chan struct{}
	refreshErr  error
	refreshGate <-chan struct{}

	exchanges atomic.Int64
	refreshes atomic.Int64
}

var _ auth.IdentityProvider = (*Provider)(nil)

// New returns a provider with no users.
func New(opts ...Option) *Provider {
	p := &Provider{
		users:    map[string]*auth.UserProfile{},
		codes:    map[string]string{},
		refresh:  map[string]string{},
		sso:      true,
		baseURL:  "https://idp.example.test",
		ttl:      5 * time.Minute,
		now:      time.Now,
		platform: auth.DefaultPlatformRoles,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// IssueCode simulates the user logging in at the provider and returns the
// authorization code the callback will carry.
func (p *Provider) IssueCode(userID string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	code := uuid.NewString()
	p.codes[code] = userID
	return code
}

// Exchanges returns how many codes were exchanged.
func (p *Provider) Exchanges() int {
	return int(p.exchanges.Load())
}

// Refreshes returns how many refresh grants were attempted.
func (p *Provider) Refreshes() int {
	return int(p.refreshes.Load())
}

// Init reports the provider side session.
func (p *Provider) Init(ctx context.Context, stored *auth.Credential) (auth.SessionResult, error) {
	if err := wait(ctx, p.initGate); err != nil {
		return auth.SessionResult{}, err
	}
	if p.initErr != nil {
		return auth.SessionResult{}, p.initErr
	}

	p.mu.Lock()
	userID := p.session
	if userID == "" && stored != nil {
		userID = p.refresh[stored.RefreshToken()]
	}
	profile := p.users[userID]
	p.mu.Unlock()

	if profile == nil {
		return auth.SessionResult{}, nil
	}

	cred, err := p.mint(profile)
	if err != nil {
		return auth.SessionResult{}, err
	}
	return auth.SessionResult{Authenticated: true, Credential: cred, Profile: profile.Clone()}, nil
}

// LoginURL returns the provider login page.
func (p *Provider) LoginURL(_ context.Context, state string, mode auth.LoginMode) (string, error) {
	q := url.Values{}
	q.Set("state", state)
	q.Set("mode", string(mode))
	return p.baseURL + "/auth?" + q.Encode(), nil
}

// LogoutURL ends the provider session.
func (p *Provider) LogoutURL(_ context.Context, redirect string, _ *auth.Credential) (string, error) {
	p.mu.Lock()
	p.session = ""
	p.mu.Unlock()

	q := url.Values{}
	if redirect != "" {
		q.Set("post_logout_redirect_uri", redirect)
	}
	return p.baseURL + "/logout?" + q.Encode(), nil
}

// ExchangeCode trades a code from IssueCode for a credential. Codes are
// single use.
func (p *Provider) ExchangeCode(ctx context.Context, code, _ string) (*auth.Credential, error) {
	p.exchanges.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	userID, ok := p.codes[code]
	delete(p.codes, code)
	profile := p.users[userID]
	if ok && profile != nil && p.sso {
		p.session = userID
	}
	p.mu.Unlock()

	if !ok || profile == nil {
		return nil, errors.New("invalid authorization code", errors.CategoryAuth).
			WithCode(errors.CodeUnauthorized).
			WithTextCode("INVALID_GRANT")
	}
	return p.mint(profile)
}

// RefreshSession rotates the refresh token.
func (p *Provider) RefreshSession(ctx context.Context, refreshToken string) (*auth.Credential, error) {
	p.refreshes.Add(1)
	if err := wait(ctx, p.refreshGate); err != nil {
		return nil, err
	}
	if p.refreshErr != nil {
		return nil, p.refreshErr
	}

	p.mu.Lock()
	userID, ok := p.refresh[refreshToken]
	delete(p.refresh, refreshToken)
	profile := p.users[userID]
	p.mu.Unlock()

	if !ok || profile == nil {
		return nil, errors.New("invalid refresh token", errors.CategoryAuth).
			WithCode(errors.CodeUnauthorized).
			WithTextCode("INVALID_GRANT")
	}
	return p.mint(profile)
}

// LoadProfile returns the registered profile for the token subject. An
// unknown subject yields nil so callers fall back to the token claims.
func (p *Provider) LoadProfile(_ context.Context, cred *auth.Credential) (*auth.UserProfile, error) {
	subject, err := auth.SubjectOf(cred.AccessToken())
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.users[subject].Clone(), nil
}

func (p *Provider) mint(profile *auth.UserProfile) (*auth.Credential, error) {
	now := p.now()
	token, _, err := auth.MintAccessToken(auth.NewIdentityFromProfile(profile), auth.MintOptions{
		TTL:           p.ttl,
		Issuer:        p.baseURL,
		IssuedAt:      now,
		PlatformRoles: p.platform,
	})
	if err != nil {
		return nil, err
	}

	refreshToken := uuid.NewString()
	p.mu.Lock()
	p.refresh[refreshToken] = profile.ID
	p.mu.Unlock()

	return auth.NewCredential(token, now, p.ttl, auth.WithRefreshToken(refreshToken)), nil
}

func wait(ctx context.Context, gate <-chan struct{}) error {
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

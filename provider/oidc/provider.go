package oidc

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-errors"

	auth "github.com/goliatone/go-console-auth"
)

const (
	grantAuthorizationCode = "authorization_code"
	grantRefreshToken      = "refresh_token"
	maxResponseBytes       = 1 << 20
)

// ErrTokenEndpoint is returned when the token endpoint rejects a grant.
var ErrTokenEndpoint = errors.New("token endpoint rejected the grant", errors.CategoryAuth).
	WithTextCode("TOKEN_ENDPOINT_ERROR").
	WithCode(errors.CodeUnauthorized)

// Provider implements auth.IdentityProvider over the OIDC authorization
// code and refresh token grants.
type Provider struct {
	config Config
	client *http.Client
	now    auth.Clock
	logger auth.Logger
}

var _ auth.IdentityProvider = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithHTTPClient sets the client used for the token endpoint.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		if client != nil {
			p.client = client
		}
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

// WithLogger sets the logger.
func WithLogger(logger auth.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New validates cfg and returns a provider.
func New(cfg Config, opts ...Option) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryValidation, "invalid oidc configuration")
	}
	p := &Provider{
		config: cfg,
		client: &http.Client{Timeout: cfg.timeout()},
		now:    time.Now,
		logger: auth.DefaultLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// Init restores a session from the stored credential. A live credential
// is reused, an expired one is refreshed, and a refresh the provider
// rejects means there is no session.
func (p *Provider) Init(ctx context.Context, stored *auth.Credential) (auth.SessionResult, error) {
	if stored.AccessToken() == "" {
		return auth.SessionResult{}, nil
	}
	if !stored.IsExpiredAt(p.now(), 0) {
		return auth.SessionResult{Authenticated: true, Credential: stored}, nil
	}
	if stored.RefreshToken() == "" {
		return auth.SessionResult{}, nil
	}

	cred, err := p.RefreshSession(ctx, stored.RefreshToken())
	if err != nil {
		if stderrors.Is(err, ErrTokenEndpoint) {
			p.logger.Info("stored session rejected by identity provider", "error", err)
			return auth.SessionResult{}, nil
		}
		return auth.SessionResult{}, err
	}
	return auth.SessionResult{Authenticated: true, Credential: cred}, nil
}

// LoginURL builds the authorization endpoint URL.
func (p *Provider) LoginURL(_ context.Context, state string, mode auth.LoginMode) (string, error) {
	params := url.Values{
		"client_id":     {p.config.ClientID},
		"redirect_uri":  {p.config.RedirectURL},
		"response_type": {"code"},
		"scope":         {strings.Join(p.config.scopes(), " ")},
		"state":         {state},
	}
	if mode == auth.LoginModeRegister {
		params.Set("prompt", "create")
	}
	return appendQuery(p.config.authURL(), params), nil
}

// LogoutURL builds the end session URL.
func (p *Provider) LogoutURL(_ context.Context, redirect string, cred *auth.Credential) (string, error) {
	params := url.Values{"client_id": {p.config.ClientID}}
	if redirect != "" {
		params.Set("post_logout_redirect_uri", redirect)
	}
	if hint := cred.IDToken(); hint != "" {
		params.Set("id_token_hint", hint)
	}
	return appendQuery(p.config.endSessionURL(), params), nil
}

// ExchangeCode runs the authorization code grant.
func (p *Provider) ExchangeCode(ctx context.Context, code, _ string) (*auth.Credential, error) {
	return p.grant(ctx, url.Values{
		"grant_type":   {grantAuthorizationCode},
		"code":         {code},
		"redirect_uri": {p.config.RedirectURL},
	})
}

// RefreshSession runs the refresh token grant.
func (p *Provider) RefreshSession(ctx context.Context, refreshToken string) (*auth.Credential, error) {
	return p.grant(ctx, url.Values{
		"grant_type":    {grantRefreshToken},
		"refresh_token": {refreshToken},
	})
}

// LoadProfile derives the profile from the access token claims.
func (p *Provider) LoadProfile(_ context.Context, cred *auth.Credential) (*auth.UserProfile, error) {
	claims, err := auth.Decode(cred.AccessToken())
	if err != nil {
		return nil, err
	}
	return auth.ProfileFromClaims(claims, p.config.platformRoles()), nil
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshToken     string `json:"refresh_token"`
	IDToken          string `json:"id_token"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (p *Provider) grant(ctx context.Context, form url.Values) (*auth.Credential, error) {
	form.Set("client_id", p.config.ClientID)
	if p.config.ClientSecret != "" {
		form.Set("client_secret", p.config.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.tokenURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to create token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	issuedAt := p.now()
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryOperation, "token request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryOperation, "failed to read token response")
	}

	var out tokenResponse
	decodeErr := json.Unmarshal(body, &out)

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		rejected := ErrTokenEndpoint.Clone()
		rejected.Source = ErrTokenEndpoint
		return nil, rejected.WithMetadata(map[string]any{
			"status":            resp.StatusCode,
			"grant_type":        form.Get("grant_type"),
			"error":             out.Error,
			"error_description": out.ErrorDescription,
		})
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("token endpoint unavailable", errors.CategoryOperation).
			WithCode(resp.StatusCode).
			WithMetadata(map[string]any{"grant_type": form.Get("grant_type")})
	}
	if decodeErr != nil {
		return nil, errors.Wrap(decodeErr, errors.CategoryOperation, "malformed token response").
			WithMetadata(map[string]any{
				"grant_type":   form.Get("grant_type"),
				"content_type": resp.Header.Get("Content-Type"),
			})
	}
	if out.AccessToken == "" {
		return nil, errors.New("empty access token in token response", errors.CategoryOperation)
	}

	return auth.NewCredential(
		out.AccessToken,
		issuedAt,
		time.Duration(out.ExpiresIn)*time.Second,
		auth.WithRefreshToken(out.RefreshToken),
		auth.WithIDToken(out.IDToken),
		auth.WithTokenType(normalizeTokenType(out.TokenType)),
	), nil
}

func normalizeTokenType(t string) string {
	if strings.EqualFold(t, auth.TokenTypeBearer) {
		return auth.TokenTypeBearer
	}
	return t
}

func appendQuery(base string, params url.Values) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + params.Encode()
}

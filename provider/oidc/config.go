package oidc

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	auth "github.com/goliatone/go-console-auth"
)

// Config holds the client registration. Endpoints left empty are derived
// from Issuer using the Keycloak layout.
type Config struct {
	// Issuer is the realm URL, e.g. "https://sso.example.com/realms/console".
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string

	AuthURL       string
	TokenURL      string
	EndSessionURL string

	// Scopes default to openid, profile and email.
	Scopes []string

	// PlatformRoles get the platform scope in derived profiles.
	PlatformRoles []string

	// Timeout bounds each token endpoint call. Default: 10 seconds.
	Timeout time.Duration
}

// Validate checks the required fields.
func (c Config) Validate() error {
	issuerRules := []validation.Rule{is.URL}
	if c.AuthURL == "" || c.TokenURL == "" {
		issuerRules = append(issuerRules, validation.Required)
	}
	return validation.ValidateStruct(&c,
		validation.Field(&c.ClientID, validation.Required),
		validation.Field(&c.RedirectURL, validation.Required, is.URL),
		validation.Field(&c.Issuer, issuerRules...),
	)
}

func (c Config) base() string {
	return strings.TrimSuffix(strings.TrimSpace(c.Issuer), "/") + "/protocol/openid-connect"
}

func (c Config) authURL() string {
	if c.AuthURL != "" {
		return c.AuthURL
	}
	return c.base() + "/auth"
}

func (c Config) tokenURL() string {
	if c.TokenURL != "" {
		return c.TokenURL
	}
	return c.base() + "/token"
}

func (c Config) endSessionURL() string {
	if c.EndSessionURL != "" {
		return c.EndSessionURL
	}
	return c.base() + "/logout"
}

// JWKSURL is the realm's key set endpoint, for verifying access tokens
// server side.
func (c Config) JWKSURL() string {
	return c.base() + "/certs"
}

func (c Config) scopes() []string {
	if len(c.Scopes) == 0 {
		return []string{"openid", "profile", "email"}
	}
	return c.Scopes
}

func (c Config) platformRoles() []string {
	if len(c.PlatformRoles) == 0 {
		return auth.DefaultPlatformRoles
	}
	return c.PlatformRoles
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 10 * time.Second
	}
	return c.Timeout
}

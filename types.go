package auth

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Logger is the logging contract used across the module.
// Arguments after the message are key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Persistence is a pluggable key-value backend for the credential.
// Implementations live under persistence/.
type Persistence interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// SessionResult is what an identity provider reports on Init.
type SessionResult struct {
	Authenticated bool
	Credential    *Credential
	Profile       *UserProfile
}

// IdentityProvider is the adapter to the external identity provider.
// The core treats it as opaque: it only needs success/failure plus the
// resulting credential and profile.
type IdentityProvider interface {
	// Init reports whether a session exists. stored is the persisted
	// credential, if any.
	Init(ctx context.Context, stored *Credential) (SessionResult, error)

	// LoginURL returns the provider URL the user agent must visit to log in.
	LoginURL(ctx context.Context, state string, mode LoginMode) (string, error)

	// LogoutURL returns the provider end-session URL.
	LogoutURL(ctx context.Context, redirect string, cred *Credential) (string, error)

	// ExchangeCode trades an authorization code for a credential.
	ExchangeCode(ctx context.Context, code, state string) (*Credential, error)

	// RefreshSession obtains a new credential from a refresh token.
	RefreshSession(ctx context.Context, refreshToken string) (*Credential, error)

	// LoadProfile resolves the user profile for a credential.
	LoadProfile(ctx context.Context, cred *Credential) (*UserProfile, error)
}

// Clock returns the current time.
type Clock func() time.Time

type defLogger struct{}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Print("[DBG] CONSOLE-AUTH " + format(msg, args...))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Print("[INF] CONSOLE-AUTH " + format(msg, args...))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Print("[WRN] CONSOLE-AUTH " + format(msg, args...))
}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Print("[ERR] CONSOLE-AUTH " + format(msg, args...))
}

// DefaultLogger returns the stdout logger used when none is configured.
func DefaultLogger() Logger {
	return defLogger{}
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}

func format(msg string, args ...any) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
		} else {
			fmt.Fprintf(&b, " %v", args[i])
		}
	}
	return newline(b.String())
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

package auth

import (
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

// LoginMode selects the identity provider screen.
type LoginMode string

const (
	LoginModeLogin    LoginMode = "login"
	LoginModeRegister LoginMode = "register"
)

// DefaultLoginStateTTL bounds how long a login state stays acceptable.
const DefaultLoginStateTTL = 10 * time.Minute

// LoginState travels through the identity provider in the OAuth2 state
// parameter as base64url encoded JSON. The encoding is not authenticated:
// a callback is only honored when its nonce is one the machine issued and
// has not redeemed yet.
type LoginState struct {
	Mode      LoginMode `json:"mode"`
	Redirect  string    `json:"redirect,omitempty"`
	Nonce     string    `json:"nonce"`
	IssuedAt  int64     `json:"iat"`
	ExpiresAt int64     `json:"exp,omitempty"`
}

// NewLoginState returns a state with a fresh nonce.
func NewLoginState(mode LoginMode, redirect string, now time.Time, ttl time.Duration) *LoginState {
	if mode == "" {
		mode = LoginModeLogin
	}
	s := &LoginState{
		Mode:     mode,
		Redirect: SafeRedirect(redirect, ""),
		Nonce:    uuid.NewString(),
		IssuedAt: now.Unix(),
	}
	if ttl > 0 {
		s.ExpiresAt = now.Add(ttl).Unix()
	}
	return s
}

// Encode returns the opaque state parameter value.
func (s *LoginState) Encode() (string, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return "", wrapCause(ErrCallback, err, nil)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// DecodeLoginState parses a state parameter produced by Encode. Padded and
// standard alphabet encodings are accepted as well.
func DecodeLoginState(value string) (*LoginState, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, withDetails(ErrCallback, "invalid oauth callback: missing state", nil)
	}

	raw, err := decodeBase64(value)
	if err != nil {
		return nil, wrapCause(ErrCallback, err, map[string]any{"param": "state"})
	}

	state := &LoginState{}
	if err := json.Unmarshal(raw, state); err != nil {
		return nil, wrapCause(ErrCallback, err, map[string]any{"param": "state"})
	}
	if state.Mode == "" {
		state.Mode = LoginModeLogin
	}
	return state, nil
}

// Expired reports whether the state outlived its ttl.
func (s *LoginState) Expired(now time.Time) bool {
	if s == nil || s.ExpiresAt == 0 {
		return false
	}
	return now.Unix() > s.ExpiresAt
}

// pendingLogins holds the nonces of issued login states. Each nonce is
// redeemable once, until it expires.
type pendingLogins struct {
	mu    sync.Mutex
	cache *gocache.Cache
}

func newPendingLogins() *pendingLogins {
	return &pendingLogins{cache: gocache.New(DefaultLoginStateTTL, 0)}
}

// add records nonce. States without a ttl stay redeemable for
// DefaultLoginStateTTL.
func (p *pendingLogins) add(nonce string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultLoginStateTTL
	}
	p.cache.DeleteExpired()
	p.cache.Set(nonce, struct{}{}, ttl)
}

// redeem consumes nonce and reports whether it was pending.
func (p *pendingLogins) redeem(nonce string) bool {
	if nonce == "" {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.cache.Get(nonce); !ok {
		return false
	}
	p.cache.Delete(nonce)
	return true
}

func decodeBase64(value string) ([]byte, error) {
	encodings := []*base64.Encoding{
		base64.RawURLEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.StdEncoding,
	}
	var lastErr error
	for _, enc := range encodings {
		raw, err := enc.DecodeString(value)
		if err == nil {
			return raw, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// CallbackParams are the query parameters of the OAuth2 redirect.
type CallbackParams struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// ParseCallback reads the callback query. A provider error, or a missing
// code or state, fails with ErrCallback.
func ParseCallback(values url.Values) (CallbackParams, error) {
	params := CallbackParams{
		Code:             strings.TrimSpace(values.Get("code")),
		State:            strings.TrimSpace(values.Get("state")),
		Error:            strings.TrimSpace(values.Get("error")),
		ErrorDescription: strings.TrimSpace(values.Get("error_description")),
	}
	return params, params.Validate()
}

// Validate checks the callback contract.
func (p CallbackParams) Validate() error {
	if p.Error != "" {
		msg := "invalid oauth callback: " + p.Error
		if p.ErrorDescription != "" {
			msg += ": " + p.ErrorDescription
		}
		return withDetails(ErrCallback, msg, map[string]any{
			"error":             p.Error,
			"error_description": p.ErrorDescription,
		})
	}
	if p.Code == "" {
		return withDetails(ErrCallback, "invalid oauth callback: missing code", map[string]any{"param": "code"})
	}
	if p.State == "" {
		return withDetails(ErrCallback, "invalid oauth callback: missing state", map[string]any{"param": "state"})
	}
	return nil
}

// SafeRedirect keeps only same-origin relative paths. Anything else,
// including protocol relative URLs, becomes fallback.
func SafeRedirect(target, fallback string) string {
	target = strings.TrimSpace(target)
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return fallback
	}
	u, err := url.Parse(target)
	if err != nil || u.IsAbs() || u.Host != "" {
		return fallback
	}
	return target
}

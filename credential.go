package auth

import (
	"encoding/json"
	"strings"
	"time"
)

// TokenTypeBearer is the default token type.
const TokenTypeBearer = "Bearer"

// Credential is the access/refresh token pair and its expiry metadata.
// ExpiresAt is derived from IssuedAt and ExpiresIn; build values with
// NewCredential.
type Credential struct {
	accessToken  string
	refreshToken string
	idToken      string
	tokenType    string
	issuedAt     time.Time
	expiresIn    time.Duration
}

// CredentialOption customizes NewCredential.
type CredentialOption func(*Credential)

// WithRefreshToken sets the refresh token.
func WithRefreshToken(token string) CredentialOption {
	return func(c *Credential) { c.refreshToken = token }
}

// WithIDToken sets the OIDC id token, used as a logout hint.
func WithIDToken(token string) CredentialOption {
	return func(c *Credential) { c.idToken = token }
}

// WithTokenType overrides the default Bearer token type.
func WithTokenType(tokenType string) CredentialOption {
	return func(c *Credential) {
		if strings.TrimSpace(tokenType) != "" {
			c.tokenType = tokenType
		}
	}
}

// NewCredential builds a credential issued at issuedAt that is valid for
// expiresIn. A non positive expiresIn yields an already expired credential.
func NewCredential(accessToken string, issuedAt time.Time, expiresIn time.Duration, opts ...CredentialOption) *Credential {
	c := &Credential{
		accessToken: accessToken,
		tokenType:   TokenTypeBearer,
		issuedAt:    issuedAt,
		expiresIn:   expiresIn,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (c *Credential) AccessToken() string {
	if c == nil {
		return ""
	}
	return c.accessToken
}

func (c *Credential) RefreshToken() string {
	if c == nil {
		return ""
	}
	return c.refreshToken
}

func (c *Credential) IDToken() string {
	if c == nil {
		return ""
	}
	return c.idToken
}

func (c *Credential) TokenType() string {
	if c == nil {
		return ""
	}
	return c.tokenType
}

func (c *Credential) IssuedAt() time.Time {
	if c == nil {
		return time.Time{}
	}
	return c.issuedAt
}

func (c *Credential) ExpiresIn() time.Duration {
	if c == nil {
		return 0
	}
	return c.expiresIn
}

// ExpiresAt is IssuedAt + ExpiresIn.
func (c *Credential) ExpiresAt() time.Time {
	if c == nil {
		return time.Time{}
	}
	return c.issuedAt.Add(c.expiresIn)
}

// IsExpiredAt reports whether the credential is expired at now, treating
// it as expiring skew earlier. A nil or empty credential is expired.
func (c *Credential) IsExpiredAt(now time.Time, skew time.Duration) bool {
	if c == nil || c.accessToken == "" || c.issuedAt.IsZero() {
		return true
	}
	return !now.Before(c.ExpiresAt().Add(-skew))
}

// AuthorizationHeaderValue returns "{type} {token}".
func (c *Credential) AuthorizationHeaderValue() (string, error) {
	if c == nil || c.accessToken == "" {
		return "", ErrNoCredential
	}
	return c.tokenType + " " + c.accessToken, nil
}

type credentialRecord struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	IDToken      string    `json:"id_token,omitempty"`
	TokenType    string    `json:"token_type"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresIn    int64     `json:"expires_in"`
}

// MarshalJSON implements json.Marshaler.
func (c *Credential) MarshalJSON() ([]byte, error) {
	return json.Marshal(credentialRecord{
		AccessToken:  c.accessToken,
		RefreshToken: c.refreshToken,
		IDToken:      c.idToken,
		TokenType:    c.tokenType,
		IssuedAt:     c.issuedAt,
		ExpiresIn:    int64(c.expiresIn / time.Second),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Credential) UnmarshalJSON(data []byte) error {
	var rec credentialRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	*c = *NewCredential(
		rec.AccessToken,
		rec.IssuedAt,
		time.Duration(rec.ExpiresIn)*time.Second,
		WithRefreshToken(rec.RefreshToken),
		WithIDToken(rec.IDToken),
		WithTokenType(rec.TokenType),
	)
	return nil
}

package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// MintOptions controls how MintAccessToken issues tokens. Minted tokens
// are meant for fakes and tests; the console never verifies signatures.
type MintOptions struct {
	// SigningKey is the HMAC key. Empty uses a fixed development key.
	SigningKey []byte
	// TTL is the token lifetime. Zero uses one hour.
	TTL time.Duration
	// Issuer is copied into the iss claim.
	Issuer string
	// Audience is copied into the aud claim.
	Audience []string
	// IssuedAt overrides the issuance time. Zero uses time.Now().
	IssuedAt time.Time
	// PlatformRoles are emitted under realm_access; the rest go under the
	// flat roles claim.
	PlatformRoles []string
}

// DevelopmentSigningKey signs minted tokens when MintOptions carries no key.
var DevelopmentSigningKey = []byte("console-auth-development-key")

// MintAccessToken mints a JWT in the shape Decode reads.
func MintAccessToken(identity Identity, opts MintOptions) (string, time.Time, error) {
	if identity == nil {
		return "", time.Time{}, goerrors.New("identity is required", goerrors.CategoryBadInput)
	}
	if identity.ID() == "" {
		return "", time.Time{}, goerrors.New("identity id is required", goerrors.CategoryBadInput)
	}

	ttl := opts.TTL
	if ttl == 0 {
		ttl = time.Hour
	}
	if ttl < 0 {
		return "", time.Time{}, goerrors.New("token TTL must be non-negative", goerrors.CategoryBadInput)
	}

	issuedAt := opts.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = time.Now()
	}
	expiresAt := issuedAt.Add(ttl)

	var aud jwt.ClaimStrings
	if len(opts.Audience) > 0 {
		aud = make(jwt.ClaimStrings, len(opts.Audience))
		copy(aud, opts.Audience)
	}

	claims := &tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    opts.Issuer,
			Subject:   identity.ID(),
			Audience:  aud,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		PreferredUsername: identity.Username(),
		Email:             identity.Email(),
	}

	platform := NewRoleSet(opts.PlatformRoles...)
	for _, role := range identity.Roles() {
		if platform.Has(role) {
			claims.RealmAccess.Roles = append(claims.RealmAccess.Roles, role)
			continue
		}
		claims.Roles = append(claims.Roles, role)
	}

	for _, s := range identity.Stores() {
		claims.StoreAccess = append(claims.StoreAccess, storeAccessClaim{
			StoreID:   s.StoreID,
			StoreName: s.StoreName,
			Roles:     s.Roles.Slice(),
			IsDefault: s.IsDefault,
		})
	}

	key := opts.SigningKey
	if len(key) == 0 {
		key = DevelopmentSigningKey
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", time.Time{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign token")
	}
	return token, expiresAt, nil
}

package auth

import (
	stderrors "errors"
	"fmt"

	"github.com/goliatone/go-errors"
)

const (
	TextCodeAuthenticationRequired = "AUTHENTICATION_REQUIRED"
	TextCodeInsufficientRoles      = "INSUFFICIENT_ROLES"
	TextCodeStoreAccessDenied      = "STORE_ACCESS_DENIED"
	TextCodeRefreshFailed          = "REFRESH_FAILED"
	TextCodeTokenDecodeFailed      = "TOKEN_DECODE_FAILED"
	TextCodeInvalidCallback        = "INVALID_CALLBACK"
	TextCodeNoCredential           = "NO_CREDENTIAL"
	TextCodeInvalidTransition      = "INVALID_AUTH_STATE_TRANSITION"
	TextCodeInvalidProfile         = "INVALID_USER_PROFILE"
)

// ErrAuthentication is returned when there is no valid credential.
var ErrAuthentication = errors.New("authentication required", errors.CategoryAuth).
	WithTextCode(TextCodeAuthenticationRequired).
	WithCode(errors.CodeUnauthorized)

// ErrAuthorization is returned when the user lacks the required roles.
var ErrAuthorization = errors.New("insufficient roles", errors.CategoryAuthz).
	WithTextCode(TextCodeInsufficientRoles).
	WithCode(errors.CodeForbidden)

// ErrStoreAccess is returned when the user may not act within a store.
var ErrStoreAccess = errors.New("store access denied", errors.CategoryAuthz).
	WithTextCode(TextCodeStoreAccessDenied).
	WithCode(errors.CodeForbidden)

// ErrRefreshFailed is returned when the credential could not be refreshed.
var ErrRefreshFailed = errors.New("token refresh failed", errors.CategoryAuth).
	WithTextCode(TextCodeRefreshFailed).
	WithCode(errors.CodeUnauthorized)

// ErrDecode is returned when a bearer token can not be decoded.
var ErrDecode = errors.New("unable to decode token", errors.CategoryBadInput).
	WithTextCode(TextCodeTokenDecodeFailed).
	WithCode(errors.CodeBadRequest)

// ErrCallback is returned for a malformed OAuth2 callback.
var ErrCallback = errors.New("invalid oauth callback", errors.CategoryBadInput).
	WithTextCode(TextCodeInvalidCallback).
	WithCode(errors.CodeBadRequest)

// ErrNoCredential is returned when a credential is required but absent.
var ErrNoCredential = errors.New("no credential stored", errors.CategoryAuth).
	WithTextCode(TextCodeNoCredential).
	WithCode(errors.CodeUnauthorized)

// ErrInvalidTransition is returned when a status change is not allowed.
var ErrInvalidTransition = errors.New("invalid auth state transition", errors.CategoryValidation).
	WithTextCode(TextCodeInvalidTransition).
	WithCode(errors.CodeConflict)

// ErrInvalidProfile is returned when a provider hands back an inconsistent profile.
var ErrInvalidProfile = errors.New("invalid user profile", errors.CategoryValidation).
	WithTextCode(TextCodeInvalidProfile).
	WithCode(errors.CodeBadRequest)

// withDetails clones base, keeps it as the source so errors.Is matches
// the sentinel, and attaches metadata.
func withDetails(base *errors.Error, message string, meta map[string]any) error {
	clone := base.Clone()
	if clone == nil {
		return base
	}
	if message != "" {
		clone.Message = message
	}
	clone.Source = base
	if len(meta) > 0 {
		return clone.WithMetadata(meta)
	}
	return clone
}

// wrapCause is withDetails for an underlying error.
func wrapCause(base *errors.Error, cause error, meta map[string]any) error {
	if cause == nil {
		return withDetails(base, "", meta)
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["cause"] = cause.Error()
	return withDetails(base, fmt.Sprintf("%s: %v", base.Message, cause), meta)
}

// IsAuthenticationError reports whether err is an authentication failure.
func IsAuthenticationError(err error) bool {
	return stderrors.Is(err, ErrAuthentication) || stderrors.Is(err, ErrNoCredential)
}

// IsAuthorizationError reports whether err is a role failure.
func IsAuthorizationError(err error) bool {
	return stderrors.Is(err, ErrAuthorization)
}

// IsStoreAccessError reports whether err is a tenant mismatch.
func IsStoreAccessError(err error) bool {
	return stderrors.Is(err, ErrStoreAccess)
}

// StoreAccessDenied returns ErrStoreAccess annotated with storeID.
func StoreAccessDenied(storeID string) error {
	return withDetails(ErrStoreAccess, "store access denied: "+storeID, map[string]any{
		"store_id": storeID,
	})
}

// InsufficientRoles returns ErrAuthorization annotated with the required
// and held roles.
func InsufficientRoles(required, held []string) error {
	return withDetails(ErrAuthorization, "", map[string]any{
		"required_roles": required,
		"user_roles":     held,
	})
}

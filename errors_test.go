package auth_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-console-auth"
)

func TestSentinelTextCodes(t *testing.T) {
	tests := []struct {
		err      *errors.Error
		textCode string
		code     int
	}{
		{auth.ErrAuthentication, auth.TextCodeAuthenticationRequired, errors.CodeUnauthorized},
		{auth.ErrAuthorization, auth.TextCodeInsufficientRoles, errors.CodeForbidden},
		{auth.ErrStoreAccess, auth.TextCodeStoreAccessDenied, errors.CodeForbidden},
		{auth.ErrRefreshFailed, auth.TextCodeRefreshFailed, errors.CodeUnauthorized},
		{auth.ErrDecode, auth.TextCodeTokenDecodeFailed, errors.CodeBadRequest},
		{auth.ErrCallback, auth.TextCodeInvalidCallback, errors.CodeBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.textCode, func(t *testing.T) {
			assert.Equal(t, tt.textCode, tt.err.TextCode)
			assert.Equal(t, tt.code, tt.err.Code)
		})
	}
}

func TestStoreAccessDenied(t *testing.T) {
	err := auth.StoreAccessDenied("store-9")

	assert.True(t, auth.IsStoreAccessError(err))
	assert.False(t, auth.IsAuthorizationError(err))
	assert.Contains(t, err.Error(), "store-9")

	var richErr *errors.Error
	require.True(t, errors.As(err, &richErr))
	assert.Equal(t, auth.TextCodeStoreAccessDenied, richErr.TextCode)
	assert.Equal(t, "store-9", richErr.Metadata["store_id"])

	// The sentinel itself is left untouched.
	assert.Empty(t, auth.ErrStoreAccess.Metadata)
}

func TestInsufficientRoles(t *testing.T) {
	err := auth.InsufficientRoles([]string{auth.RolePlatformAdmin}, []string{auth.RoleStoreStaff})

	assert.True(t, auth.IsAuthorizationError(err))

	var richErr *errors.Error
	require.True(t, errors.As(err, &richErr))
	assert.Equal(t, []string{auth.RolePlatformAdmin}, richErr.Metadata["required_roles"])
	assert.Equal(t, []string{auth.RoleStoreStaff}, richErr.Metadata["user_roles"])
}

func TestIsAuthenticationError(t *testing.T) {
	assert.True(t, auth.IsAuthenticationError(auth.ErrAuthentication))
	assert.True(t, auth.IsAuthenticationError(auth.ErrNoCredential))
	assert.True(t, auth.IsAuthenticationError(fmt.Errorf("request: %w", auth.ErrAuthentication)))
	assert.False(t, auth.IsAuthenticationError(stderrors.New("authentication required")))
	assert.False(t, auth.IsAuthenticationError(nil))
}

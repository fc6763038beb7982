package fake_test

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-console-auth"
	"github.com/goliatone/go-console-auth/fake"
)

func staff() *auth.UserProfile {
	return &auth.UserProfile{
		ID:       "u-1",
		Username: "sam",
		Roles:    []auth.Role{{Name: auth.RoleStoreStaff, Scope: auth.RoleScopeStore}},
		StoreAccess: []auth.StoreAccess{
			{StoreID: "s-1", Roles: auth.NewRoleSet(auth.RoleStoreStaff)},
		},
	}
}

func TestCodeExchangeIsSingleUse(t *testing.T) {
	ctx := context.Background()
	p := fake.New(fake.WithUser(staff()))

	code := p.IssueCode("u-1")
	cred, err := p.ExchangeCode(ctx, code, "")
	require.NoError(t, err)
	assert.True(t, auth.HasRole(cred.AccessToken(), auth.RoleStoreStaff))

	subject, err := auth.SubjectOf(cred.AccessToken())
	require.NoError(t, err)
	assert.Equal(t, "u-1", subject)

	_, err = p.ExchangeCode(ctx, code, "")
	assert.Error(t, err)
	assert.Equal(t, 2, p.Exchanges())
}

func TestInitReportsSession(t *testing.T) {
	ctx := context.Background()

	res, err := fake.New(fake.WithUser(staff())).Init(ctx, nil)
	require.NoError(t, err)
	assert.False(t, res.Authenticated)

	res, err = fake.New(fake.WithUser(staff()), fake.WithSession("u-1")).Init(ctx, nil)
	require.NoError(t, err)
	assert.True(t, res.Authenticated)
	assert.Equal(t, "u-1", res.Profile.ID)
}

func TestSingleSignOnSession(t *testing.T) {
	ctx := context.Background()

	p := fake.New(fake.WithUser(staff()))
	_, err := p.ExchangeCode(ctx, p.IssueCode("u-1"), "")
	require.NoError(t, err)
	res, err := p.Init(ctx, nil)
	require.NoError(t, err)
	assert.True(t, res.Authenticated)

	p = fake.New(fake.WithUser(staff()), fake.WithSingleSignOn(false))
	_, err = p.ExchangeCode(ctx, p.IssueCode("u-1"), "")
	require.NoError(t, err)
	res, err = p.Init(ctx, nil)
	require.NoError(t, err)
	assert.False(t, res.Authenticated)
}

func TestInitRestoresFromStoredRefreshToken(t *testing.T) {
	ctx := context.Background()
	p := fake.New(fake.WithUser(staff()))

	cred, err := p.ExchangeCode(ctx, p.IssueCode("u-1"), "")
	require.NoError(t, err)
	_, err = p.LogoutURL(ctx, "", cred)
	require.NoError(t, err)

	res, err := p.Init(ctx, cred)
	require.NoError(t, err)
	assert.True(t, res.Authenticated)
}

func TestRefreshRotatesToken(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := fake.New(fake.WithUser(staff()), fake.WithClock(func() time.Time { return now }), fake.WithTokenTTL(time.Minute))

	first, err := p.ExchangeCode(ctx, p.IssueCode("u-1"), "")
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Minute), first.ExpiresAt())

	second, err := p.RefreshSession(ctx, first.RefreshToken())
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken(), second.RefreshToken())

	_, err = p.RefreshSession(ctx, first.RefreshToken())
	assert.Error(t, err, "refresh tokens rotate")
	assert.Equal(t, 2, p.Refreshes())
}

func TestFailureInjection(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	_, err := fake.New(fake.WithInitError(boom)).Init(ctx, nil)
	assert.ErrorIs(t, err, boom)

	_, err = fake.New(fake.WithRefreshError(boom)).RefreshSession(ctx, "r")
	assert.ErrorIs(t, err, boom)

	gate := make(chan struct{})
	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err = fake.New(fake.WithInitGate(gate)).Init(waitCtx, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLoginAndLogoutURLs(t *testing.T) {
	ctx := context.Background()
	p := fake.New(fake.WithBaseURL("https://sso.test"), fake.WithUser(staff()), fake.WithSession("u-1"))

	login, err := p.LoginURL(ctx, "abc", auth.LoginModeRegister)
	require.NoError(t, err)
	u, err := url.Parse(login)
	require.NoError(t, err)
	assert.Equal(t, "/auth", u.Path)
	assert.Equal(t, "abc", u.Query().Get("state"))
	assert.Equal(t, string(auth.LoginModeRegister), u.Query().Get("mode"))

	logout, err := p.LogoutURL(ctx, "/bye", nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(logout, "https://sso.test/logout?"))

	res, err := p.Init(ctx, nil)
	require.NoError(t, err)
	assert.False(t, res.Authenticated, "logout ends the provider session")
}

func TestLoadProfile(t *testing.T) {
	ctx := context.Background()
	p := fake.New(fake.WithUser(staff()))

	cred, err := p.ExchangeCode(ctx, p.IssueCode("u-1"), "")
	require.NoError(t, err)

	profile, err := p.LoadProfile(ctx, cred)
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, "sam", profile.Username)

	_, err = p.LoadProfile(ctx, auth.NewCredential("opaque", time.Now(), time.Hour))
	assert.Error(t, err)
}

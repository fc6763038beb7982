package routeguard_test

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-console-auth"
	"github.com/goliatone/go-console-auth/middleware/routeguard"
)

type stubSession struct {
	beginRedirect string
	beginMode     auth.LoginMode
	callback      url.Values
	callbackErr   error
	logoutErr     error
	snapshot      auth.Snapshot
}

func (s *stubSession) BeginLogin(_ context.Context, redirect string, mode auth.LoginMode) (string, error) {
	s.beginRedirect = redirect
	s.beginMode = mode
	return "https://sso.test/auth?state=abc", nil
}

func (s *stubSession) HandleCallback(_ context.Context, query url.Values) (string, error) {
	s.callback = query
	if s.callbackErr != nil {
		return "", s.callbackErr
	}
	return "/orders", nil
}

func (s *stubSession) Logout(_ context.Context, redirect string) (string, error) {
	if s.logoutErr != nil {
		return "", s.logoutErr
	}
	return "https://sso.test/logout?post_logout_redirect_uri=" + url.QueryEscape(redirect), nil
}

func (s *stubSession) Snapshot() auth.Snapshot { return s.snapshot }

func captureRedirect(ctx *router.MockContext, status int) *string {
	var location string
	ctx.On("Redirect", mock.Anything, []int{status}).Run(func(args mock.Arguments) {
		location = args.String(0)
	}).Return(nil)
	return &location
}

func TestControllerLogin(t *testing.T) {
	session := &stubSession{}
	controller := routeguard.NewController(session, routeguard.ControllerConfig{Logger: auth.NopLogger{}})

	ctx := router.NewMockContext()
	ctx.QueriesM["redirect"] = "/orders"
	ctx.On("Context").Return(context.Background())
	location := captureRedirect(ctx, http.StatusTemporaryRedirect)

	require.NoError(t, controller.Login(ctx))
	assert.Equal(t, "https://sso.test/auth?state=abc", *location)
	assert.Equal(t, "/orders", session.beginRedirect)
	assert.Equal(t, auth.LoginModeLogin, session.beginMode)
}

func TestControllerRegister(t *testing.T) {
	session := &stubSession{}
	controller := routeguard.NewController(session, routeguard.ControllerConfig{Logger: auth.NopLogger{}})

	ctx := router.NewMockContext()
	ctx.On("Context").Return(context.Background())
	captureRedirect(ctx, http.StatusTemporaryRedirect)

	require.NoError(t, controller.Register(ctx))
	assert.Equal(t, auth.LoginModeRegister, session.beginMode)
}

func TestControllerCallback(t *testing.T) {
	session := &stubSession{}
	controller := routeguard.NewController(session, routeguard.ControllerConfig{Logger: auth.NopLogger{}})

	ctx := router.NewMockContext()
	ctx.QueriesM["code"] = "the-code"
	ctx.QueriesM["state"] = "the-state"
	ctx.On("Context").Return(context.Background())
	location := captureRedirect(ctx, http.StatusFound)

	require.NoError(t, controller.Callback(ctx))
	assert.Equal(t, "/orders", *location)
	assert.Equal(t, "the-code", session.callback.Get("code"))
	assert.Equal(t, "the-state", session.callback.Get("state"))
	assert.False(t, session.callback.Has("error"))
}

func TestControllerCallbackFailureRedirectsWithCode(t *testing.T) {
	session := &stubSession{callbackErr: auth.ErrCallback}
	controller := routeguard.NewController(session, routeguard.ControllerConfig{
		ErrorRedirect: "/login?lang=en",
		Logger:        auth.NopLogger{},
	})

	ctx := router.NewMockContext()
	ctx.On("Context").Return(context.Background())
	location := captureRedirect(ctx, http.StatusFound)

	require.NoError(t, controller.Callback(ctx))
	assert.Equal(t, "/login?lang=en&error="+url.QueryEscape(auth.ErrCallback.TextCode), *location)
}

func TestControllerLogout(t *testing.T) {
	session := &stubSession{}
	controller := routeguard.NewController(session, routeguard.ControllerConfig{
		PostLogoutRedirect: "https://console.test/",
		Logger:             auth.NopLogger{},
	})

	ctx := router.NewMockContext()
	ctx.On("Context").Return(context.Background())
	location := captureRedirect(ctx, http.StatusSeeOther)

	require.NoError(t, controller.Logout(ctx))
	assert.Contains(t, *location, "https://sso.test/logout?")
	assert.Contains(t, *location, url.QueryEscape("https://console.test/"))
}

func TestControllerLogoutFallsBackWithoutProviderURL(t *testing.T) {
	session := &stubSession{logoutErr: auth.ErrCallback}
	controller := routeguard.NewController(session, routeguard.ControllerConfig{Logger: auth.NopLogger{}})

	ctx := router.NewMockContext()
	ctx.On("Context").Return(context.Background())
	location := captureRedirect(ctx, http.StatusSeeOther)

	require.NoError(t, controller.Logout(ctx))
	assert.Equal(t, "/login", *location)
}

func TestControllerMe(t *testing.T) {
	session := &stubSession{snapshot: auth.Snapshot{
		Status:  auth.StatusAuthenticated,
		Profile: &auth.UserProfile{ID: "user-1"},
	}}
	controller := routeguard.NewController(session, routeguard.ControllerConfig{Logger: auth.NopLogger{}})

	ctx := router.NewMockContext()
	ctx.LocalsMock[auth.LocalsStoreKey] = "s1"

	var payload map[string]any
	ctx.On("JSON", router.StatusOK, mock.Anything).Run(func(args mock.Arguments) {
		payload = args.Get(1).(map[string]any)
	}).Return(nil)

	require.NoError(t, controller.Me(ctx))
	assert.Equal(t, true, payload["authenticated"])
	assert.Equal(t, "s1", payload["store_id"])
	assert.Equal(t, "user-1", payload["profile"].(*auth.UserProfile).ID)
}

func TestControllerMeUnauthenticated(t *testing.T) {
	session := &stubSession{snapshot: auth.Snapshot{Status: auth.StatusUnauthenticated}}
	controller := routeguard.NewController(session, routeguard.ControllerConfig{Logger: auth.NopLogger{}})

	ctx := router.NewMockContext()
	ctx.LocalsMock[auth.LocalsStoreKey] = ""
	ctx.On("JSON", router.StatusUnauthorized, mock.Anything).Return(nil)

	require.NoError(t, controller.Me(ctx))
	ctx.AssertExpectations(t)
}

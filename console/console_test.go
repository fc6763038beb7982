package console_test

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-console-auth"
	"github.com/goliatone/go-console-auth/console"
	"github.com/goliatone/go-console-auth/fake"
	"github.com/goliatone/go-console-auth/guard"
	"github.com/goliatone/go-console-auth/persistence/memory"
)

type recordingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (r *recordingSink) Record(_ context.Context, event auth.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingSink) Last(eventType auth.ActivityEventType) (auth.ActivityEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].EventType == eventType {
			return r.events[i], true
		}
	}
	return auth.ActivityEvent{}, false
}

func merchant() *auth.UserProfile {
	return &auth.UserProfile{
		ID:       "user-1",
		Username: "ada",
		Roles:    []auth.Role{{Name: auth.RoleStoreAdmin, Scope: auth.RoleScopeStore}},
		StoreAccess: []auth.StoreAccess{
			{StoreID: "store-1", StoreName: "North", Roles: auth.NewRoleSet(auth.RoleStoreAdmin), IsDefault: true},
			{StoreID: "store-2", StoreName: "South", Roles: auth.NewRoleSet(auth.RoleStoreStaff)},
		},
	}
}

func destination(raw string, meta guard.RouteMeta) guard.Destination {
	u, _ := url.Parse(raw)
	query := map[string]string{}
	for k := range u.Query() {
		query[k] = u.Query().Get(k)
	}
	return guard.Destination{Name: u.Path, FullPath: raw, Query: query, Meta: meta}
}

func login(t *testing.T, c *console.Console, idp *fake.Provider, redirect string) string {
	t.Helper()
	ctx := context.Background()

	loginURL, err := c.Auth().BeginLogin(ctx, redirect, auth.LoginModeLogin)
	require.NoError(t, err)
	u, err := url.Parse(loginURL)
	require.NoError(t, err)

	q := url.Values{}
	q.Set("code", idp.IssueCode("user-1"))
	q.Set("state", u.Query().Get("state"))
	target, err := c.Auth().HandleCallback(ctx, q)
	require.NoError(t, err)
	return target
}

func newConsole(t *testing.T, opts ...console.Option) (*console.Console, *fake.Provider, *recordingSink) {
	t.Helper()
	idp := fake.New(fake.WithUser(merchant()))
	sink := &recordingSink{}
	opts = append([]console.Option{
		console.WithActivitySink(sink),
		console.WithLogger(auth.NopLogger{}),
		console.WithPersistence(memory.New(0)),
	}, opts...)
	c := console.New(idp, opts...)
	t.Cleanup(c.Close)
	return c, idp, sink
}

func TestConsoleNavigationFlow(t *testing.T) {
	ctx := context.Background()
	c, idp, sink := newConsole(t)
	orders := guard.RouteMeta{StoreScoped: true}

	status, err := c.Init(ctx)
	require.NoError(t, err)
	assert.Equal(t, auth.StatusUnauthenticated, status)

	v, err := c.Navigate(ctx, destination("/orders?storeId=store-2", orders))
	require.NoError(t, err)
	assert.Equal(t, guard.ReasonAuthenticationRequired, v.Reason)
	assert.Equal(t, "/orders?storeId=store-2", v.Query[guard.QueryRedirect])

	target := login(t, c, idp, v.Query[guard.QueryRedirect])
	assert.Equal(t, "/orders?storeId=store-2", target)

	v, err = c.Navigate(ctx, destination(target, orders))
	require.NoError(t, err)
	assert.True(t, v.IsAllow())
	assert.Equal(t, "store-2", c.Stores().Selected())

	v, err = c.Navigate(ctx, destination("/orders?storeId=store-9", orders))
	require.NoError(t, err)
	assert.Equal(t, guard.ReasonStoreAccessDenied, v.Reason)
	assert.Equal(t, "store-2", c.Stores().Selected(), "a denied store leaves the selection alone")

	denied, ok := sink.Last(auth.ActivityEventStoreDenied)
	require.True(t, ok)
	assert.Equal(t, "store-9", denied.Metadata["store_id"])
	assert.Equal(t, "user-1", denied.UserID)

	selected, ok := sink.Last(auth.ActivityEventStoreSelected)
	require.True(t, ok)
	assert.Equal(t, "user-1", selected.UserID)

	v, err = c.Navigate(ctx, destination("/orders", orders))
	require.NoError(t, err)
	assert.Equal(t, guard.ReasonStoreSelectionRequired, v.Reason)
}

func TestConsolePreferDefaultStore(t *testing.T) {
	ctx := context.Background()
	c, idp, _ := newConsole(t, console.WithPreferDefaultStore(true))
	_, err := c.Init(ctx)
	require.NoError(t, err)
	login(t, c, idp, "/orders")

	v, err := c.Navigate(ctx, destination("/orders", guard.RouteMeta{StoreScoped: true}))
	require.NoError(t, err)
	require.True(t, v.IsRewrite())
	assert.Equal(t, "store-1", v.Params[guard.DefaultStoreParam])
	assert.Equal(t, "store-1", c.Stores().Selected())
}

func TestConsoleProjection(t *testing.T) {
	ctx := context.Background()
	c, idp, _ := newConsole(t)

	p := c.Projection()
	assert.False(t, p.IsAuthenticated())
	assert.Empty(t, p.Roles)
	assert.False(t, p.CanAccessStore("store-1"))

	_, err := c.Init(ctx)
	require.NoError(t, err)
	login(t, c, idp, "/")
	require.True(t, c.Stores().Select(ctx, "store-1"))

	p = c.Projection()
	assert.True(t, p.IsAuthenticated())
	assert.Equal(t, "store-1", p.StoreID)
	assert.True(t, p.HasRole(auth.RoleStoreAdmin))
	assert.True(t, p.HasAnyRole(auth.RolePlatformAdmin, auth.RoleStoreAdmin))
	assert.False(t, p.PlatformScoped)
	assert.True(t, p.CanAccessStore("store-2"))
	assert.False(t, p.CanAccessStore("store-9"))

	helpers := p.TemplateContext()
	assert.Equal(t, string(auth.StatusAuthenticated), helpers[auth.TemplateStatusKey])
	assert.Equal(t, "store-1", helpers[auth.TemplateStoreKey])
	assert.NotNil(t, helpers[auth.TemplateUserKey])
}

func TestConsoleLogoutClearsStore(t *testing.T) {
	ctx := context.Background()
	c, idp, _ := newConsole(t)
	_, err := c.Init(ctx)
	require.NoError(t, err)
	login(t, c, idp, "/")
	require.True(t, c.Stores().Select(ctx, "store-2"))

	target, err := c.Logout(ctx, "/goodbye")
	require.NoError(t, err)
	assert.Contains(t, target, "/logout")

	p := c.Projection()
	assert.Equal(t, auth.StatusUnauthenticated, p.Status)
	assert.Empty(t, p.StoreID)
	assert.False(t, c.Tokens().HasAccessToken())
}

func TestConsoleSubscribe(t *testing.T) {
	ctx := context.Background()
	c, idp, _ := newConsole(t)

	var (
		mu   sync.Mutex
		seen []console.Projection
	)
	unsubscribe := c.Subscribe(func(p console.Projection) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, p)
	})

	mu.Lock()
	require.Len(t, seen, 1)
	assert.Equal(t, auth.StatusUninitialized, seen[0].Status)
	mu.Unlock()

	_, err := c.Init(ctx)
	require.NoError(t, err)
	login(t, c, idp, "/")
	c.Stores().Select(ctx, "store-1")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		last := seen[len(seen)-1]
		return last.IsAuthenticated() && last.StoreID == "store-1"
	}, time.Second, 5*time.Millisecond)

	unsubscribe()
	mu.Lock()
	count := len(seen)
	mu.Unlock()

	c.Stores().Select(ctx, "store-2")
	mu.Lock()
	assert.Equal(t, count, len(seen))
	mu.Unlock()
}

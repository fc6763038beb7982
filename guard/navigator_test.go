package guard_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-console-auth"
	"github.com/goliatone/go-console-auth/guard"
)

func TestNavigatorSupersedesSuspendedNavigation(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	state := &stubState{status: auth.StatusInitializing, initGate: gate}
	spy := &selectorSpy{}
	nav := guard.NewNavigator(guard.NewPipeline(state, guard.WithStoreSelector(spy), guard.WithLogger(auth.NopLogger{})))

	type result struct {
		v   guard.Verdict
		err error
	}
	first := make(chan result, 1)
	go func() {
		v, err := nav.Navigate(context.Background(), dest("/orders?storeId=s1", guard.RouteMeta{StoreScoped: true}))
		first <- result{v, err}
	}()

	require.Eventually(t, func() bool {
		return state.initCalls.Load() == 1
	}, time.Second, 5*time.Millisecond)

	v, err := nav.Navigate(context.Background(), dest("/help", guard.RouteMeta{Public: true}))
	require.NoError(t, err)
	assert.True(t, v.IsAllow())

	select {
	case r := <-first:
		assert.ErrorIs(t, r.err, guard.ErrNavigationSuperseded)
	case <-time.After(time.Second):
		t.Fatal("superseded navigation did not return")
	}
	assert.Empty(t, spy.selected)
	assert.Equal(t, uint64(2), nav.Current())
}

func TestNavigatorAppliesLatestVerdict(t *testing.T) {
	spy := &selectorSpy{}
	nav := guard.NewNavigator(guard.NewPipeline(authenticated(member("s1", "s2")), guard.WithStoreSelector(spy), guard.WithLogger(auth.NopLogger{})))

	v, err := nav.Navigate(context.Background(), dest("/orders?storeId=s2", guard.RouteMeta{StoreScoped: true}))
	require.NoError(t, err)
	assert.Equal(t, "s2", v.StoreID)
	assert.Equal(t, []string{"s2"}, spy.selected)

	v, err = nav.Navigate(context.Background(), dest("/orders?storeId=s7", guard.RouteMeta{StoreScoped: true}))
	require.NoError(t, err)
	assert.Equal(t, guard.ReasonStoreAccessDenied, v.Reason)
	assert.Equal(t, []string{"s2"}, spy.selected, "a denied store is never selected")
}

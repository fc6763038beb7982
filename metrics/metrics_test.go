package metrics_test

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-console-auth"
	"github.com/goliatone/go-console-auth/guard"
	"github.com/goliatone/go-console-auth/metrics"
)

func TestCollectorCountsVerdicts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)
	ctx := context.Background()

	c.ObserveVerdict(ctx, guard.Destination{}, guard.Allow(), time.Millisecond)
	c.ObserveVerdict(ctx, guard.Destination{}, guard.Allow(), time.Millisecond)
	c.ObserveVerdict(ctx, guard.Destination{}, guard.RedirectTo("/login", guard.ReasonAuthenticationRequired, nil), time.Millisecond)

	expected := `
# HELP console_auth_guard_verdicts_total Guard verdicts by kind and reason.
# TYPE console_auth_guard_verdicts_total counter
console_auth_guard_verdicts_total{kind="allow",reason=""} 2
console_auth_guard_verdicts_total{kind="redirect",reason="authentication_required"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "console_auth_guard_verdicts_total"))

	count, err := testutil.GatherAndCount(reg, "console_auth_guard_evaluation_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCollectorRecordsActivity(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)
	ctx := context.Background()

	require.NoError(t, c.Record(ctx, auth.ActivityEvent{
		EventType:  auth.ActivityEventLoginSuccess,
		FromStatus: auth.StatusUnauthenticated,
		ToStatus:   auth.StatusAuthenticated,
	}))
	require.NoError(t, c.Record(ctx, auth.ActivityEvent{EventType: auth.ActivityEventRefreshSuccess}))
	require.NoError(t, c.Record(ctx, auth.ActivityEvent{EventType: auth.ActivityEventRefreshFailure}))

	expected := `
# HELP console_auth_refresh_total Credential refresh outcomes.
# TYPE console_auth_refresh_total counter
console_auth_refresh_total{outcome="failure"} 1
console_auth_refresh_total{outcome="success"} 1
# HELP console_auth_status_transitions_total Authentication status transitions.
# TYPE console_auth_status_transitions_total counter
console_auth_status_transitions_total{from="unauthenticated",to="authenticated"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"console_auth_refresh_total",
		"console_auth_status_transitions_total",
	))

	count, err := testutil.GatherAndCount(reg, "console_auth_activity_events_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestHandlerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)
	c.ObserveVerdict(context.Background(), guard.Destination{}, guard.Allow(), 0)

	rec := httptest.NewRecorder()
	metrics.Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "console_auth_guard_verdicts_total")
}

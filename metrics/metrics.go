// Package metrics exports the access core activity as Prometheus metrics.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	auth "github.com/goliatone/go-console-auth"
	"github.com/goliatone/go-console-auth/guard"
)

const namespace = "console_auth"

// Collector records guard verdicts and authentication events. It is an
// auth.ActivitySink and a guard.Observer.
type Collector struct {
	verdicts    *prometheus.CounterVec
	evaluations prometheus.Histogram
	events      *prometheus.CounterVec
	transitions *prometheus.CounterVec
	refreshes   *prometheus.CounterVec
}

var (
	_ auth.ActivitySink = (*Collector)(nil)
	_ guard.Observer    = (*Collector)(nil)
)

// NewCollector creates a collector and registers it on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guard_verdicts_total",
			Help:      "Guard verdicts by kind and reason.",
		}, []string{"kind", "reason"}),
		evaluations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "guard_evaluation_seconds",
			Help:      "Time spent evaluating a navigation, including init waits.",
			Buckets:   prometheus.DefBuckets,
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activity_events_total",
			Help:      "Authentication and tenant activity events by type.",
		}, []string{"event"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_transitions_total",
			Help:      "Authentication status transitions.",
		}, []string{"from", "to"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_total",
			Help:      "Credential refresh outcomes.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		c.verdicts,
		c.evaluations,
		c.events,
		c.transitions,
		c.refreshes,
	)

	return c
}

// ObserveVerdict implements guard.Observer.
func (c *Collector) ObserveVerdict(_ context.Context, _ guard.Destination, v guard.Verdict, elapsed time.Duration) {
	kind := string(v.Kind)
	if kind == "" {
		kind = "continue"
	}
	c.verdicts.WithLabelValues(kind, string(v.Reason)).Inc()
	c.evaluations.Observe(elapsed.Seconds())
}

// Record implements auth.ActivitySink.
func (c *Collector) Record(_ context.Context, event auth.ActivityEvent) error {
	c.events.WithLabelValues(string(event.EventType)).Inc()

	switch event.EventType {
	case auth.ActivityEventRefreshSuccess:
		c.refreshes.WithLabelValues("success").Inc()
	case auth.ActivityEventRefreshFailure:
		c.refreshes.WithLabelValues("failure").Inc()
	}

	if event.FromStatus != "" && event.ToStatus != "" && event.FromStatus != event.ToStatus {
		c.transitions.WithLabelValues(string(event.FromStatus), string(event.ToStatus)).Inc()
	}
	return nil
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

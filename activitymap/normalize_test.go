package activitymap_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-console-auth"
	"github.com/goliatone/go-console-auth/activitymap"
)

func TestNormalizeSessionEvent(t *testing.T) {
	ts := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)
	event := auth.ActivityEvent{
		EventType:  auth.ActivityEventLoginSuccess,
		Actor:      auth.ActorRef{ID: "user-100", Type: "user"},
		UserID:     "user-100",
		FromStatus: auth.StatusUnauthenticated,
		ToStatus:   auth.StatusAuthenticated,
		Metadata:   map[string]any{"mode": "login"},
		OccurredAt: ts,
	}

	rec := activitymap.Normalize(event)
	assert.Equal(t, "user-100", rec.ActorID)
	assert.Equal(t, string(auth.ActivityEventLoginSuccess), rec.Verb)
	assert.Equal(t, activitymap.ChannelAuth, rec.Channel)
	assert.Equal(t, activitymap.ObjectSession, rec.ObjectType)
	assert.Equal(t, "user-100", rec.ObjectID)
	assert.True(t, ts.Equal(rec.OccurredAt))
	assert.Equal(t, map[string]any{
		"mode":                            "login",
		activitymap.MetadataKeyActorType:  "user",
		activitymap.MetadataKeyFromStatus: "unauthenticated",
		activitymap.MetadataKeyToStatus:   "authenticated",
	}, rec.Metadata)

	assert.Len(t, event.Metadata, 1, "the event metadata is not mutated")
}

func TestNormalizeTenantEvent(t *testing.T) {
	rec := activitymap.Normalize(auth.ActivityEvent{
		EventType: auth.ActivityEventStoreDenied,
		UserID:    "user-7",
		Metadata:  map[string]any{"store_id": "store-9"},
	})

	assert.Equal(t, activitymap.ChannelTenant, rec.Channel)
	assert.Equal(t, activitymap.ObjectStore, rec.ObjectType)
	assert.Equal(t, "store-9", rec.ObjectID)
	assert.Equal(t, "user-7", rec.ActorID)
}

func TestNormalizeFallbacks(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	rec := activitymap.Normalize(auth.ActivityEvent{EventType: auth.ActivityEventInitialized},
		activitymap.WithClock(func() time.Time { return now }))
	assert.Equal(t, "system", rec.ActorID)
	assert.True(t, now.Equal(rec.OccurredAt))
	assert.Nil(t, rec.Metadata)

	rec = activitymap.Normalize(auth.ActivityEvent{EventType: auth.ActivityEventInitialized},
		activitymap.WithActorFallback("console"))
	assert.Equal(t, "console", rec.ActorID)
}

func TestSinkPublishesNormalizedRecords(t *testing.T) {
	var got []activitymap.Record
	sink := activitymap.NewSink(func(_ context.Context, rec activitymap.Record) error {
		got = append(got, rec)
		return nil
	}, activitymap.WithActorFallback("console"))

	require.NoError(t, sink.Record(context.Background(), auth.ActivityEvent{EventType: auth.ActivityEventLogout}))
	require.Len(t, got, 1)
	assert.Equal(t, "console", got[0].ActorID)

	boom := errors.New("bus down")
	failing := activitymap.NewSink(func(context.Context, activitymap.Record) error { return boom })
	assert.ErrorIs(t, failing.Record(context.Background(), auth.ActivityEvent{}), boom)

	var nilSink *activitymap.Sink
	assert.NoError(t, nilSink.Record(context.Background(), auth.ActivityEvent{}))
}

func TestLogPublisher(t *testing.T) {
	publish := activitymap.LogPublisher(auth.NopLogger{})
	assert.NoError(t, publish(context.Background(), activitymap.Record{Verb: "auth.logout"}))
}

// Package activitymap turns console activity events into a flat record
// for audit stores and event buses.
package activitymap

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"

	auth "github.com/goliatone/go-console-auth"
)

const (
	MetadataKeyActorType  = "actor_type"
	MetadataKeyFromStatus = "from_status"
	MetadataKeyToStatus   = "to_status"
)

const (
	ChannelAuth   = "auth"
	ChannelTenant = "tenant"

	ObjectSession = "session"
	ObjectStore   = "store"

	defaultActorID = "system"
)

// Record is the normalized shape of an auth.ActivityEvent.
type Record struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization.
type Option func(*options)

type options struct {
	actorFallback string
	now           auth.Clock
}

// WithActorFallback sets the actor id used when the event names none.
func WithActorFallback(actorID string) Option {
	return func(o *options) {
		o.actorFallback = strings.TrimSpace(actorID)
	}
}

// WithClock sets the clock used for events without a timestamp.
func WithClock(clock auth.Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.now = clock
		}
	}
}

// Normalize maps event to a Record. Tenant events are about a store,
// everything else is about the user session.
func Normalize(event auth.ActivityEvent, opts ...Option) Record {
	o := options{actorFallback: defaultActorID, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	rec := Record{
		ActorID:    firstNonEmpty(strings.TrimSpace(event.Actor.ID), strings.TrimSpace(event.UserID), o.actorFallback),
		Verb:       string(event.EventType),
		Channel:    ChannelAuth,
		ObjectType: ObjectSession,
		ObjectID:   strings.TrimSpace(event.UserID),
		Metadata:   metadata(event),
		OccurredAt: event.OccurredAt,
	}

	if strings.HasPrefix(rec.Verb, ChannelTenant+".") {
		rec.Channel = ChannelTenant
		rec.ObjectType = ObjectStore
		rec.ObjectID = ""
		if id, ok := event.Metadata["store_id"]; ok {
			rec.ObjectID = fmt.Sprint(id)
		}
	}

	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = o.now().UTC()
	}
	return rec
}

// Publisher receives normalized records.
type Publisher func(ctx context.Context, rec Record) error

// Sink is an auth.ActivitySink that normalizes before publishing.
type Sink struct {
	publish Publisher
	opts    []Option
}

var _ auth.ActivitySink = (*Sink)(nil)

// NewSink returns a sink over publish.
func NewSink(publish Publisher, opts ...Option) *Sink {
	return &Sink{publish: publish, opts: opts}
}

// LogPublisher writes records to logger at info level.
func LogPublisher(logger auth.Logger) Publisher {
	return func(_ context.Context, rec Record) error {
		logger.Info("console activity",
			"verb", rec.Verb,
			"actor", rec.ActorID,
			"object_type", rec.ObjectType,
			"object_id", rec.ObjectID,
		)
		return nil
	}
}

// Record implements auth.ActivitySink.
func (s *Sink) Record(ctx context.Context, event auth.ActivityEvent) error {
	if s == nil || s.publish == nil {
		return nil
	}
	return s.publish(ctx, Normalize(event, s.opts...))
}

func metadata(event auth.ActivityEvent) map[string]any {
	out := maps.Clone(event.Metadata)
	set := func(k string, v string) {
		if v == "" {
			return
		}
		if out == nil {
			out = map[string]any{}
		}
		out[k] = v
	}

	if _, exists := out[MetadataKeyActorType]; !exists {
		set(MetadataKeyActorType, strings.TrimSpace(event.Actor.Type))
	}
	set(MetadataKeyFromStatus, string(event.FromStatus))
	set(MetadataKeyToStatus, string(event.ToStatus))
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

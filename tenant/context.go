package tenant

import (
	"context"
	"sync"
	"time"

	auth "github.com/goliatone/go-console-auth"
)

// Context holds the selected store id. Selecting the id that is already
// selected is a no-op, so guard re-evaluations do not re-trigger
// subscribers.
type Context struct {
	mu       sync.RWMutex
	selected string

	subsMu  sync.Mutex
	subs    map[int]func(string)
	nextSub int

	sink   auth.ActivitySink
	logger auth.Logger
	now    auth.Clock
}

// ContextOption configures a Context.
type ContextOption func(*Context)

// WithActivitySink records store selections.
func WithActivitySink(sink auth.ActivitySink) ContextOption {
	return func(c *Context) {
		if sink != nil {
			c.sink = sink
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger auth.Logger) ContextOption {
	return func(c *Context) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock injects a clock (useful for tests).
func WithClock(clock auth.Clock) ContextOption {
	return func(c *Context) {
		if clock != nil {
			c.now = clock
		}
	}
}

// NewContext returns a context with no store selected.
func NewContext(opts ...ContextOption) *Context {
	c := &Context{
		subs:   map[int]func(string){},
		logger: auth.DefaultLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Selected returns the selected store id, empty when none.
func (c *Context) Selected() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selected
}

// Select sets the store id and reports whether it changed.
func (c *Context) Select(ctx context.Context, storeID string) bool {
	c.mu.Lock()
	if c.selected == storeID {
		c.mu.Unlock()
		return false
	}
	previous := c.selected
	c.selected = storeID
	c.mu.Unlock()

	c.notify(storeID)

	if c.sink == nil {
		return true
	}
	if err := c.sink.Record(ctx, auth.ActivityEvent{
		EventType: auth.ActivityEventStoreSelected,
		Actor:     auth.ActorRef{Type: "system"},
		Metadata: map[string]any{
			"store_id":          storeID,
			"previous_store_id": previous,
		},
		OccurredAt: c.now(),
	}); err != nil {
		c.logger.Warn("tenant activity sink error", "error", err)
	}
	return true
}

// Apply selects the store of a settled resolution.
func (c *Context) Apply(ctx context.Context, res Resolution) bool {
	if !res.Resolved() {
		return false
	}
	return c.Select(ctx, res.StoreID)
}

// Clear drops the selection, e.g. on logout.
func (c *Context) Clear(ctx context.Context) bool {
	return c.Select(ctx, "")
}

// Subscribe registers fn for selection changes. The returned func removes
// the subscription.
func (c *Context) Subscribe(fn func(storeID string)) func() {
	if fn == nil {
		return func() {}
	}
	c.subsMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subsMu.Unlock()

	return func() {
		c.subsMu.Lock()
		delete(c.subs, id)
		c.subsMu.Unlock()
	}
}

func (c *Context) notify(storeID string) {
	c.subsMu.Lock()
	subs := make([]func(string), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.subsMu.Unlock()

	for _, fn := range subs {
		fn(storeID)
	}
}

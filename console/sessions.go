package console

import (
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	auth "github.com/goliatone/go-console-auth"
)

// DefaultIdleTimeout is how long an unused session console is kept.
const DefaultIdleTimeout = 30 * time.Minute

// Factory builds the console of one user agent session.
type Factory func(sessionID string) (*Console, error)

// SessionsOption configures Sessions.
type SessionsOption func(*Sessions)

// WithIdleTimeout sets how long an unused console is kept before it is
// closed and dropped.
func WithIdleTimeout(d time.Duration) SessionsOption {
	return func(s *Sessions) {
		if d > 0 {
			s.idle = d
		}
	}
}

// WithSessionsLogger sets the logger.
func WithSessionsLogger(logger auth.Logger) SessionsOption {
	return func(s *Sessions) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Sessions keeps one Console per user agent session, so two browsers never
// share an authentication state or a selected store. A Console serves a
// single user agent; servers reach it through Sessions.
type Sessions struct {
	mu      sync.Mutex
	cache   *gocache.Cache
	factory Factory
	idle    time.Duration
	logger  auth.Logger
}

// NewSessions returns a registry building consoles with factory.
func NewSessions(factory Factory, opts ...SessionsOption) *Sessions {
	s := &Sessions{
		factory: factory,
		idle:    DefaultIdleTimeout,
		logger:  auth.DefaultLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	s.cache = gocache.New(s.idle, s.idle/2)
	s.cache.OnEvicted(func(id string, v any) {
		if c, ok := v.(*Console); ok {
			c.Close()
		}
		s.logger.Debug("session console dropped", "session", id)
	})
	return s
}

// Open builds a console under a fresh session id.
func (s *Sessions) Open() (string, *Console, error) {
	id := uuid.NewString()
	c, err := s.factory(id)
	if err != nil {
		return "", nil, errors.Wrap(err, errors.CategoryInternal, "failed to build session console")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Set(id, c, gocache.DefaultExpiration)
	s.logger.Debug("session console created", "session", id)
	return id, c, nil
}

// Lookup returns the console of sessionID and extends its idle deadline.
// Ids not issued by Open, or already dropped, are not found.
func (s *Sessions) Lookup(sessionID string) (*Console, bool) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.cache.Get(sessionID)
	if !ok {
		return nil, false
	}
	c := v.(*Console)
	s.cache.Set(sessionID, c, gocache.DefaultExpiration)
	return c, true
}

// Remove closes and drops the console of sessionID.
func (s *Sessions) Remove(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Delete(sessionID)
}

// Each calls fn for every live console.
func (s *Sessions) Each(fn func(sessionID string, c *Console)) {
	for id, item := range s.cache.Items() {
		if c, ok := item.Object.(*Console); ok {
			fn(id, c)
		}
	}
}

// Len returns the number of live consoles.
func (s *Sessions) Len() int {
	return s.cache.ItemCount()
}

// Close closes every console and empties the registry.
func (s *Sessions) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.cache.Items() {
		if c, ok := item.Object.(*Console); ok {
			c.Close()
		}
	}
	s.cache.Flush()
}

// Package memory provides an in-process persistence backend for the
// credential store. It is the default backend and the one used in tests.
package memory

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Store keeps values in a go-cache instance.
type Store struct {
	c   *gocache.Cache
	ttl time.Duration
}

// New returns a store whose entries expire after ttl. A zero ttl keeps
// entries until they are deleted.
func New(ttl time.Duration) *Store {
	expiration := ttl
	if expiration <= 0 {
		expiration = gocache.NoExpiration
	}
	return &Store{
		c:   gocache.New(expiration, time.Minute),
		ttl: expiration,
	}
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, true, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte) error {
	b := make([]byte, len(value))
	copy(b, value)
	s.c.Set(key, b, gocache.DefaultExpiration)
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.c.Delete(key)
	return nil
}

// Len returns the number of live entries.
func (s *Store) Len() int {
	return s.c.ItemCount()
}

package auth

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/goliatone/go-console-auth/persistence/memory"
	"github.com/goliatone/go-errors"
)

// DefaultCredentialKey is the persistence key used for the credential.
const DefaultCredentialKey = "console.credential"

// CredentialStore holds the single current credential and mirrors it to a
// persistence backend.
type CredentialStore struct {
	mu      sync.RWMutex
	current *Credential
	backend Persistence
	key     string
	now     Clock
	logger  Logger
}

// CredentialStoreOption customizes a CredentialStore.
type CredentialStoreOption func(*CredentialStore)

// WithPersistence sets the backend. The default is in-memory.
func WithPersistence(p Persistence) CredentialStoreOption {
	return func(s *CredentialStore) {
		if p != nil {
			s.backend = p
		}
	}
}

// WithCredentialKey overrides the persistence key.
func WithCredentialKey(key string) CredentialStoreOption {
	return func(s *CredentialStore) {
		if key != "" {
			s.key = key
		}
	}
}

// WithStoreClock injects a clock (useful for tests).
func WithStoreClock(clock Clock) CredentialStoreOption {
	return func(s *CredentialStore) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithStoreLogger sets the logger.
func WithStoreLogger(logger Logger) CredentialStoreOption {
	return func(s *CredentialStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewCredentialStore returns an empty store.
func NewCredentialStore(opts ...CredentialStoreOption) *CredentialStore {
	s := &CredentialStore{
		backend: memory.New(0),
		key:     DefaultCredentialKey,
		now:     time.Now,
		logger:  defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Load hydrates the store from the backend. A missing or unreadable
// record leaves the store empty.
func (s *CredentialStore) Load(ctx context.Context) (*Credential, error) {
	raw, ok, err := s.backend.Get(ctx, s.key)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to read persisted credential")
	}
	if !ok || len(raw) == 0 {
		return nil, nil
	}

	cred := &Credential{}
	if err := json.Unmarshal(raw, cred); err != nil {
		s.logger.Warn("discarding unreadable persisted credential", "key", s.key, "error", err)
		_ = s.backend.Delete(ctx, s.key)
		return nil, nil
	}

	s.mu.Lock()
	s.current = cred
	s.mu.Unlock()
	return cred, nil
}

// Store persists cred, replacing any prior credential.
func (s *CredentialStore) Store(ctx context.Context, cred *Credential) error {
	if cred == nil || cred.AccessToken() == "" {
		return ErrNoCredential
	}

	raw, err := json.Marshal(cred)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to encode credential")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Set(ctx, s.key, raw); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to persist credential")
	}
	s.current = cred
	return nil
}

// Clear removes the credential. Calling it on an empty store is a no-op.
func (s *CredentialStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = nil
	if err := s.backend.Delete(ctx, s.key); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to delete persisted credential")
	}
	return nil
}

// Credential returns the current credential, or nil.
func (s *CredentialStore) Credential() *Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *CredentialStore) HasAccessToken() bool {
	return s.Credential().AccessToken() != ""
}

func (s *CredentialStore) HasRefreshToken() bool {
	return s.Credential().RefreshToken() != ""
}

// IsExpired reports whether now >= expiresAt - skew. A missing credential
// is always expired.
func (s *CredentialStore) IsExpired(skew time.Duration) bool {
	return s.Credential().IsExpiredAt(s.now(), skew)
}

// IsValid is HasAccessToken && !IsExpired(0).
func (s *CredentialStore) IsValid() bool {
	return s.HasAccessToken() && !s.IsExpired(0)
}

// AuthorizationHeaderValue returns "{type} {token}" or ErrNoCredential.
func (s *CredentialStore) AuthorizationHeaderValue() (string, error) {
	return s.Credential().AuthorizationHeaderValue()
}

// Claims decodes the current access token.
func (s *CredentialStore) Claims() (*Claims, error) {
	cred := s.Credential()
	if cred == nil {
		return nil, ErrNoCredential
	}
	return Decode(cred.AccessToken())
}

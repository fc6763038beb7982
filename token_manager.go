package auth

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

const refreshFlightKey = "refresh"

// Refresher obtains a new credential from a refresh token.
type Refresher interface {
	RefreshSession(ctx context.Context, refreshToken string) (*Credential, error)
}

// RefresherFunc adapts a function to Refresher.
type RefresherFunc func(ctx context.Context, refreshToken string) (*Credential, error)

// RefreshSession implements Refresher.
func (f RefresherFunc) RefreshSession(ctx context.Context, refreshToken string) (*Credential, error) {
	return f(ctx, refreshToken)
}

// TokenManager wraps the CredentialStore and coordinates refreshes: at
// most one exchange runs at a time and concurrent callers share its result.
// A Store or Clear that lands while a refresh is in flight wins over the
// refresh result.
type TokenManager struct {
	store     *CredentialStore
	refresher Refresher
	flight    singleflight.Group

	// mu serializes writes to the store; generation changes on every write.
	mu         sync.Mutex
	generation atomic.Uint64

	logger Logger
}

// TokenManagerOption customizes a TokenManager.
type TokenManagerOption func(*TokenManager)

// WithTokenManagerLogger sets the logger.
func WithTokenManagerLogger(logger Logger) TokenManagerOption {
	return func(m *TokenManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewTokenManager returns a manager over store. A nil store gets an
// in-memory one.
func NewTokenManager(store *CredentialStore, refresher Refresher, opts ...TokenManagerOption) *TokenManager {
	if store == nil {
		store = NewCredentialStore()
	}
	m := &TokenManager{
		store:     store,
		refresher: refresher,
		logger:    defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// CredentialStore exposes the underlying store.
func (m *TokenManager) CredentialStore() *CredentialStore {
	return m.store
}

// Store persists cred, overwriting any prior credential.
func (m *TokenManager) Store(ctx context.Context, cred *Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Store(ctx, cred); err != nil {
		return err
	}
	m.generation.Add(1)
	return nil
}

// Clear removes the credential. It is idempotent.
func (m *TokenManager) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.generation.Add(1)
	return m.store.Clear(ctx)
}

func (m *TokenManager) Credential() *Credential {
	return m.store.Credential()
}

func (m *TokenManager) HasAccessToken() bool {
	return m.store.HasAccessToken()
}

func (m *TokenManager) IsExpired(skew time.Duration) bool {
	return m.store.IsExpired(skew)
}

func (m *TokenManager) IsValid() bool {
	return m.store.IsValid()
}

func (m *TokenManager) AuthorizationHeaderValue() (string, error) {
	return m.store.AuthorizationHeaderValue()
}

// Refresh exchanges the current refresh token for a new credential. Calls
// made while a refresh is in flight wait for, and return, that same
// result. The exchange itself is not bound to the first caller's
// cancellation; each caller stops waiting when its own ctx is done.
func (m *TokenManager) Refresh(ctx context.Context) (*Credential, error) {
	ch := m.flight.DoChan(refreshFlightKey, func() (any, error) {
		return m.refresh(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Credential), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// EnsureFresh returns the current credential, refreshing it first when it
// expires within minValidity.
func (m *TokenManager) EnsureFresh(ctx context.Context, minValidity time.Duration) (*Credential, error) {
	if !m.store.IsExpired(minValidity) {
		return m.store.Credential(), nil
	}
	return m.Refresh(ctx)
}

// ValidAuthorizationHeader refreshes when needed and returns the header value.
func (m *TokenManager) ValidAuthorizationHeader(ctx context.Context, minValidity time.Duration) (string, error) {
	cred, err := m.EnsureFresh(ctx, minValidity)
	if err != nil {
		return "", err
	}
	return cred.AuthorizationHeaderValue()
}

func (m *TokenManager) refresh(ctx context.Context) (*Credential, error) {
	gen := m.generation.Load()
	current := m.store.Credential()

	if m.refresher == nil {
		m.clearIfCurrent(ctx, gen)
		return nil, withDetails(ErrRefreshFailed, "token refresh failed: no refresher configured", nil)
	}

	if current.RefreshToken() == "" {
		m.clearIfCurrent(ctx, gen)
		return nil, withDetails(ErrRefreshFailed, "token refresh failed: no refresh token", nil)
	}

	next, err := m.refresher.RefreshSession(ctx, current.RefreshToken())
	if err == nil && (next == nil || next.AccessToken() == "") {
		err = ErrNoCredential
	}
	if err == nil {
		err = checkSubjectContinuity(current, next)
	}
	if err != nil {
		m.logger.Warn("credential refresh failed", "error", err)
		m.clearIfCurrent(ctx, gen)
		return nil, wrapCause(ErrRefreshFailed, err, nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.generation.Load() != gen {
		m.logger.Debug("discarding refresh result, credential changed while in flight")
		return nil, withDetails(ErrRefreshFailed, "token refresh failed: superseded", map[string]any{
			"reason": "superseded",
		})
	}

	if err := m.store.Store(ctx, next); err != nil {
		return nil, wrapCause(ErrRefreshFailed, err, nil)
	}
	m.generation.Add(1)
	return next, nil
}

func (m *TokenManager) clearIfCurrent(ctx context.Context, gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.generation.Load() != gen {
		return
	}
	if err := m.store.Clear(ctx); err != nil {
		m.logger.Error("failed to clear credential after refresh failure", "error", err)
	}
	m.generation.Add(1)
}

package auth

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
)

// AuthStatus is the high level authentication status.
type AuthStatus string

const (
	StatusUninitialized   AuthStatus = "uninitialized"
	StatusInitializing    AuthStatus = "initializing"
	StatusAuthenticated   AuthStatus = "authenticated"
	StatusUnauthenticated AuthStatus = "unauthenticated"
	StatusError           AuthStatus = "error"
)

// IsTerminal reports whether initialization has finished in this status.
func (s AuthStatus) IsTerminal() bool {
	switch s {
	case StatusAuthenticated, StatusUnauthenticated, StatusError:
		return true
	}
	return false
}

const (
	DefaultInitTimeout     = 10 * time.Second
	DefaultRefreshSkew     = 30 * time.Second
	DefaultLoginRedirect   = "/"
	actorTypeSystem        = "system"
	actorTypeUser          = "user"
	metaKeyReason          = "reason"
	reasonLogout           = "logout"
	reasonRefreshFailed    = "refresh_failed"
	reasonNoSession        = "no_session"
	reasonProviderFailure  = "provider_failure"
	reasonCallback         = "callback"
	reasonRefreshed        = "refreshed"
	reasonSessionRestored  = "session_restored"
	reasonFatal            = "fatal"
	reasonInitializing     = "init"
	reasonSupersededResult = "superseded"
)

// Snapshot is a read-only view of the machine used by UI adapters.
type Snapshot struct {
	Status  AuthStatus
	Profile *UserProfile
	Err     error
}

// StateMachineOption customizes state machine construction.
type StateMachineOption func(*AuthStateMachine)

// WithStateMachineClock injects a custom clock (useful for tests).
func WithStateMachineClock(clock Clock) StateMachineOption {
	return func(sm *AuthStateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithStateMachineActivitySink sets the ActivitySink used to publish lifecycle events.
func WithStateMachineActivitySink(sink ActivitySink) StateMachineOption {
	return func(sm *AuthStateMachine) {
		sm.activitySink = normalizeActivitySink(sink)
	}
}

// WithStateMachineLogger overrides the logger.
func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(sm *AuthStateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// WithInitTimeout bounds the identity provider Init call. When it expires
// the machine moves to error.
func WithInitTimeout(d time.Duration) StateMachineOption {
	return func(sm *AuthStateMachine) {
		if d > 0 {
			sm.initTimeout = d
		}
	}
}

// WithPlatformRoles sets the roles that grant platform scope.
func WithPlatformRoles(roles ...string) StateMachineOption {
	return func(sm *AuthStateMachine) {
		if len(roles) > 0 {
			sm.platformRoles = NewRoleSet(roles...)
		}
	}
}

// WithLoginStateTTL sets how long a login state is accepted on callback.
func WithLoginStateTTL(ttl time.Duration) StateMachineOption {
	return func(sm *AuthStateMachine) {
		sm.stateTTL = ttl
	}
}

// WithDefaultRedirect sets the post login target when the state carries none.
func WithDefaultRedirect(target string) StateMachineOption {
	return func(sm *AuthStateMachine) {
		if target != "" {
			sm.defaultRedirect = target
		}
	}
}

// WithRefreshSkew sets how close to expiry a credential is refreshed by
// AuthorizationHeader.
func WithRefreshSkew(d time.Duration) StateMachineOption {
	return func(sm *AuthStateMachine) {
		if d >= 0 {
			sm.refreshSkew = d
		}
	}
}

// AuthStateMachine owns the authentication status and user profile. Reads
// are safe from any goroutine. Mutations are serialized and never hold a
// lock across identity provider calls; a logout bumps the session epoch so
// results of calls started before it are discarded.
type AuthStateMachine struct {
	provider IdentityProvider
	tokens   *TokenManager

	transitions map[AuthStatus]map[AuthStatus]struct{}

	// opMu serializes commits; mu guards the fields below it.
	opMu    sync.Mutex
	mu      sync.RWMutex
	status  AuthStatus
	profile *UserProfile
	lastErr error
	epoch   uint64

	initialized *Future[AuthStatus]
	pending     *pendingLogins

	subsMu   sync.Mutex
	notifyMu sync.Mutex
	subs     map[int]func(Snapshot)
	nextSub  int

	platformRoles   RoleSet
	initTimeout     time.Duration
	stateTTL        time.Duration
	refreshSkew     time.Duration
	defaultRedirect string
	now             Clock
	activitySink    ActivitySink
	logger          Logger
}

// NewAuthStateMachine returns a machine in the uninitialized status. A nil
// tokens manager gets an in-memory one refreshing through provider.
func NewAuthStateMachine(provider IdentityProvider, tokens *TokenManager, opts ...StateMachineOption) *AuthStateMachine {
	sm := &AuthStateMachine{
		provider: provider,
		tokens:   tokens,
		transitions: map[AuthStatus]map[AuthStatus]struct{}{
			StatusUninitialized: {
				StatusInitializing: {},
				StatusError:        {},
			},
			StatusInitializing: {
				StatusAuthenticated:   {},
				StatusUnauthenticated: {},
				StatusError:           {},
			},
			StatusAuthenticated: {
				StatusAuthenticated:   {},
				StatusUnauthenticated: {},
				StatusError:           {},
			},
			StatusUnauthenticated: {
				StatusAuthenticated: {},
				StatusError:         {},
			},
			StatusError: {
				StatusAuthenticated:   {},
				StatusUnauthenticated: {},
			},
		},
		status:          StatusUninitialized,
		initialized:     NewFuture[AuthStatus](),
		pending:         newPendingLogins(),
		subs:            map[int]func(Snapshot){},
		platformRoles:   NewRoleSet(DefaultPlatformRoles...),
		initTimeout:     DefaultInitTimeout,
		stateTTL:        DefaultLoginStateTTL,
		refreshSkew:     DefaultRefreshSkew,
		defaultRedirect: DefaultLoginRedirect,
		now:             time.Now,
		activitySink:    noopActivitySink{},
		logger:          defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	if sm.tokens == nil {
		var refresher Refresher
		if provider != nil {
			refresher = provider
		}
		sm.tokens = NewTokenManager(nil, refresher, WithTokenManagerLogger(sm.logger))
	}

	return sm
}

// Tokens exposes the token lifecycle manager.
func (sm *AuthStateMachine) Tokens() *TokenManager {
	return sm.tokens
}

// Init starts initialization once. Every caller, including later ones,
// waits for the same result. The provider call is not bound to ctx: a
// caller that gives up does not abort initialization for the others.
func (sm *AuthStateMachine) Init(ctx context.Context) (AuthStatus, error) {
	sm.opMu.Lock()
	sm.mu.Lock()
	start := sm.status == StatusUninitialized
	if start {
		sm.status = StatusInitializing
	}
	sm.mu.Unlock()
	sm.opMu.Unlock()

	if start {
		sm.afterTransition(ctx, StatusUninitialized, StatusInitializing, ActivityEventStatusChanged, map[string]any{
			metaKeyReason: reasonInitializing,
		})
		go sm.runInit(context.WithoutCancel(ctx))
	}

	return sm.initialized.Wait(ctx)
}

// WaitInitialized blocks until initialization resolves. Late callers get
// the resolved status immediately.
func (sm *AuthStateMachine) WaitInitialized(ctx context.Context) (AuthStatus, error) {
	return sm.initialized.Wait(ctx)
}

// Initialized is closed once initialization resolves.
func (sm *AuthStateMachine) Initialized() <-chan struct{} {
	return sm.initialized.Done()
}

func (sm *AuthStateMachine) runInit(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			sm.Fail(ctx, fmt.Errorf("panic during initialization: %v", r))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, sm.initTimeout)
	defer cancel()

	epoch := sm.currentEpoch()

	stored, err := sm.tokens.CredentialStore().Load(ctx)
	if err != nil {
		sm.logger.Warn("unable to load persisted credential", "error", err)
	}

	if sm.provider == nil {
		sm.commitFailure(ctx, epoch, errors.New("no identity provider configured", errors.CategoryInternal))
		return
	}

	result, err := sm.provider.Init(ctx, stored)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		sm.commitFailure(ctx, epoch, errors.Wrap(err, errors.CategoryOperation, "identity provider initialization failed"))
		return
	}

	cred := result.Credential
	if cred == nil {
		cred = stored
	}

	if !result.Authenticated || cred.AccessToken() == "" {
		sm.commitUnauthenticated(ctx, epoch, reasonNoSession)
		return
	}

	if err := sm.tokens.Store(ctx, cred); err != nil {
		sm.commitFailure(ctx, epoch, err)
		return
	}

	if sm.tokens.IsExpired(0) {
		refreshed, err := sm.tokens.Refresh(ctx)
		if err != nil {
			sm.logger.Info("restored session could not be refreshed", "error", err)
			sm.commitUnauthenticated(ctx, epoch, reasonRefreshFailed)
			return
		}
		cred = refreshed
		result.Profile = nil
	}

	profile, err := sm.resolveProfile(ctx, cred, result.Profile)
	if err != nil {
		sm.commitFailure(ctx, epoch, err)
		return
	}

	sm.commitAuthenticated(ctx, epoch, profile, ActivityEventInitialized, reasonSessionRestored)
}

// BeginLogin returns the identity provider URL to send the user agent to.
// redirect is where HandleCallback sends the user afterwards.
func (sm *AuthStateMachine) BeginLogin(ctx context.Context, redirect string, mode LoginMode) (string, error) {
	if sm.provider == nil {
		return "", errors.New("no identity provider configured", errors.CategoryInternal)
	}

	state := NewLoginState(mode, redirect, sm.now(), sm.stateTTL)
	encoded, err := state.Encode()
	if err != nil {
		return "", err
	}

	target, err := sm.provider.LoginURL(ctx, encoded, state.Mode)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryOperation, "unable to build login url")
	}
	sm.pending.add(state.Nonce, sm.stateTTL)

	sm.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventLoginStarted,
		Metadata: map[string]any{
			"mode":     string(state.Mode),
			"redirect": state.Redirect,
		},
	})
	return target, nil
}

// HandleCallback completes a login from the OAuth2 callback query and
// returns the redirect target carried in the state. The callback is
// validated before any exchange is attempted.
func (sm *AuthStateMachine) HandleCallback(ctx context.Context, query url.Values) (string, error) {
	params, err := ParseCallback(query)
	if err != nil {
		sm.recordLoginFailure(ctx, err)
		return "", err
	}

	state, err := DecodeLoginState(params.State)
	if err != nil {
		sm.recordLoginFailure(ctx, err)
		return "", err
	}
	if state.Expired(sm.now()) {
		err := withDetails(ErrCallback, "invalid oauth callback: state expired", map[string]any{"param": "state"})
		sm.recordLoginFailure(ctx, err)
		return "", err
	}
	if !sm.pending.redeem(state.Nonce) {
		err := withDetails(ErrCallback, "invalid oauth callback: unknown or reused state", map[string]any{"param": "state"})
		sm.recordLoginFailure(ctx, err)
		return "", err
	}

	if _, err := sm.Init(ctx); err != nil {
		return "", err
	}

	if sm.provider == nil {
		return "", errors.New("no identity provider configured", errors.CategoryInternal)
	}

	epoch := sm.currentEpoch()

	cred, err := sm.provider.ExchangeCode(ctx, params.Code, params.State)
	if err == nil && cred.AccessToken() == "" {
		err = ErrNoCredential
	}
	if err != nil {
		err = wrapCause(ErrAuthentication, err, map[string]any{"stage": "exchange"})
		sm.recordLoginFailure(ctx, err)
		return "", err
	}

	profile, err := sm.resolveProfile(ctx, cred, nil)
	if err != nil {
		sm.recordLoginFailure(ctx, err)
		return "", err
	}

	sm.opMu.Lock()
	if sm.currentEpoch() != epoch {
		sm.opMu.Unlock()
		err := withDetails(ErrAuthentication, "authentication superseded by logout", map[string]any{
			metaKeyReason: reasonSupersededResult,
		})
		sm.recordLoginFailure(ctx, err)
		return "", err
	}
	if err := sm.tokens.Store(ctx, cred); err != nil {
		sm.opMu.Unlock()
		sm.recordLoginFailure(ctx, err)
		return "", err
	}
	from, ok := sm.setLocked(StatusAuthenticated, profile, nil, false)
	sm.opMu.Unlock()

	if !ok {
		return "", sm.invalidTransition(from, StatusAuthenticated)
	}

	sm.afterTransition(ctx, from, StatusAuthenticated, ActivityEventLoginSuccess, map[string]any{
		metaKeyReason: reasonCallback,
		"mode":        string(state.Mode),
	})

	return SafeRedirect(state.Redirect, sm.defaultRedirect), nil
}

// Logout clears the credential and profile and returns the identity
// provider end-session URL. A refresh or login in flight loses to it.
func (sm *AuthStateMachine) Logout(ctx context.Context, redirect string) (string, error) {
	sm.opMu.Lock()
	cred := sm.tokens.Credential()

	sm.mu.Lock()
	sm.epoch++
	sm.mu.Unlock()

	if err := sm.tokens.Clear(ctx); err != nil {
		sm.logger.Error("failed to clear credential on logout", "error", err)
	}

	from := sm.Status()
	changed := false
	if from != StatusUninitialized {
		_, changed = sm.setLocked(StatusUnauthenticated, nil, nil, false)
	}
	sm.opMu.Unlock()

	if changed && from != StatusUnauthenticated {
		sm.afterTransition(ctx, from, StatusUnauthenticated, ActivityEventLogout, map[string]any{
			metaKeyReason: reasonLogout,
		})
	}

	if sm.provider == nil {
		return SafeRedirect(redirect, sm.defaultRedirect), nil
	}

	target, err := sm.provider.LogoutURL(ctx, redirect, cred)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryOperation, "unable to build logout url")
	}
	return target, nil
}

// Refresh renews the credential and profile. A failure moves an
// authenticated machine to unauthenticated; the error is logged and
// reflected in the returned status instead of being returned.
func (sm *AuthStateMachine) Refresh(ctx context.Context) AuthStatus {
	epoch := sm.currentEpoch()

	cred, err := sm.tokens.Refresh(ctx)
	if err == nil {
		var profile *UserProfile
		profile, err = sm.resolveProfile(ctx, cred, nil)
		if err == nil {
			return sm.commitAuthenticated(ctx, epoch, profile, ActivityEventRefreshSuccess, reasonRefreshed)
		}
	}

	if ctx.Err() != nil {
		return sm.Status()
	}

	sm.logger.Warn("session refresh failed", "error", err)
	sm.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventRefreshFailure,
		Metadata:  map[string]any{"error": err.Error()},
	})

	sm.opMu.Lock()
	if sm.currentEpoch() != epoch || sm.Status() != StatusAuthenticated {
		sm.opMu.Unlock()
		return sm.Status()
	}
	if err := sm.tokens.Clear(ctx); err != nil {
		sm.logger.Error("failed to clear credential after refresh failure", "error", err)
	}
	from, _ := sm.setLocked(StatusUnauthenticated, nil, err, false)
	sm.opMu.Unlock()

	sm.afterTransition(ctx, from, StatusUnauthenticated, ActivityEventStatusChanged, map[string]any{
		metaKeyReason: reasonRefreshFailed,
	})
	return StatusUnauthenticated
}

// AuthorizationHeader returns a header value for API calls, refreshing
// the credential when it is close to expiry.
func (sm *AuthStateMachine) AuthorizationHeader(ctx context.Context) (string, error) {
	if err := sm.EnsureAuthenticated(); err != nil {
		return "", err
	}
	if !sm.tokens.IsExpired(sm.refreshSkew) {
		return sm.tokens.AuthorizationHeaderValue()
	}
	if status := sm.Refresh(ctx); status != StatusAuthenticated {
		return "", withDetails(ErrAuthentication, "authentication required: session expired", map[string]any{
			"status": string(status),
		})
	}
	return sm.tokens.AuthorizationHeaderValue()
}

// Fail moves the machine to error from any status.
func (sm *AuthStateMachine) Fail(ctx context.Context, cause error) {
	if cause == nil {
		cause = errors.New("unknown authentication failure", errors.CategoryInternal)
	}
	sm.opMu.Lock()
	from, _ := sm.setLocked(StatusError, nil, cause, true)
	sm.opMu.Unlock()

	sm.logger.Error("authentication state machine failed", "error", cause)
	sm.afterTransition(ctx, from, StatusError, ActivityEventStatusChanged, map[string]any{
		metaKeyReason: reasonFatal,
		"error":       cause.Error(),
	})
}

func (sm *AuthStateMachine) commitAuthenticated(ctx context.Context, epoch uint64, profile *UserProfile, event ActivityEventType, reason string) AuthStatus {
	sm.opMu.Lock()
	if sm.currentEpoch() != epoch {
		sm.opMu.Unlock()
		sm.logger.Debug("discarding authentication result, session changed while in flight")
		sm.resolveInit()
		return sm.Status()
	}
	from, ok := sm.setLocked(StatusAuthenticated, profile, nil, false)
	sm.opMu.Unlock()

	if !ok {
		sm.logger.Warn("discarding authentication result", "error", sm.invalidTransition(from, StatusAuthenticated))
		sm.resolveInit()
		return from
	}

	sm.afterTransition(ctx, from, StatusAuthenticated, event, map[string]any{metaKeyReason: reason})
	return StatusAuthenticated
}

func (sm *AuthStateMachine) commitUnauthenticated(ctx context.Context, epoch uint64, reason string) {
	sm.opMu.Lock()
	if sm.currentEpoch() != epoch {
		sm.opMu.Unlock()
		sm.resolveInit()
		return
	}
	if err := sm.tokens.Clear(ctx); err != nil {
		sm.logger.Warn("failed to clear credential", "error", err)
	}
	from, ok := sm.setLocked(StatusUnauthenticated, nil, nil, false)
	sm.opMu.Unlock()

	if ok {
		sm.afterTransition(ctx, from, StatusUnauthenticated, ActivityEventInitialized, map[string]any{metaKeyReason: reason})
	}
	sm.resolveInit()
}

func (sm *AuthStateMachine) commitFailure(ctx context.Context, epoch uint64, cause error) {
	sm.opMu.Lock()
	if sm.currentEpoch() != epoch {
		sm.opMu.Unlock()
		sm.resolveInit()
		return
	}
	from, ok := sm.setLocked(StatusError, nil, cause, false)
	sm.opMu.Unlock()

	sm.logger.Error("authentication initialization failed", "error", cause)
	if ok {
		sm.afterTransition(ctx, from, StatusError, ActivityEventInitFailure, map[string]any{
			metaKeyReason: reasonProviderFailure,
			"error":       cause.Error(),
		})
	}
	sm.resolveInit()
}

// setLocked applies a status change; callers hold opMu.
func (sm *AuthStateMachine) setLocked(to AuthStatus, profile *UserProfile, cause error, force bool) (AuthStatus, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	from := sm.status
	if from == to && to != StatusAuthenticated {
		sm.lastErr = cause
		return from, true
	}
	if !force && !sm.canTransition(from, to) {
		return from, false
	}
	sm.status = to
	sm.profile = profile
	sm.lastErr = cause
	return from, true
}

func (sm *AuthStateMachine) canTransition(from, to AuthStatus) bool {
	if allowed, ok := sm.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

func (sm *AuthStateMachine) invalidTransition(from, to AuthStatus) error {
	return withDetails(ErrInvalidTransition, "", map[string]any{
		"from": string(from),
		"to":   string(to),
	})
}

func (sm *AuthStateMachine) afterTransition(ctx context.Context, from, to AuthStatus, event ActivityEventType, meta map[string]any) {
	if to.IsTerminal() {
		sm.resolveInit()
	}
	sm.notify()
	sm.recordActivity(ctx, ActivityEvent{
		EventType:  event,
		FromStatus: from,
		ToStatus:   to,
		Metadata:   meta,
	})
}

func (sm *AuthStateMachine) resolveInit() {
	status := sm.Status()
	if status.IsTerminal() {
		sm.initialized.Resolve(status, nil)
	}
}

func (sm *AuthStateMachine) currentEpoch() uint64 {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.epoch
}

// resolveProfile prefers the given profile, then the provider, then the
// access token claims.
func (sm *AuthStateMachine) resolveProfile(ctx context.Context, cred *Credential, given *UserProfile) (*UserProfile, error) {
	profile := given
	if profile == nil && sm.provider != nil {
		loaded, err := sm.provider.LoadProfile(ctx, cred)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryOperation, "unable to load user profile")
		}
		profile = loaded
	}
	if profile == nil {
		claims, err := Decode(cred.AccessToken())
		if err != nil {
			return nil, err
		}
		profile = ProfileFromClaims(claims, sm.platformRoles.Slice())
	}

	profile = profile.Clone()
	if err := profile.Validate(); err != nil {
		return nil, wrapCause(ErrInvalidProfile, err, map[string]any{"user_id": profile.ID})
	}
	return profile, nil
}

func (sm *AuthStateMachine) recordLoginFailure(ctx context.Context, err error) {
	sm.logger.Warn("login failed", "error", err)
	sm.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventLoginFailure,
		Metadata:  map[string]any{"error": err.Error()},
	})
}

func (sm *AuthStateMachine) recordActivity(ctx context.Context, event ActivityEvent) {
	profile := sm.Profile()
	if event.UserID == "" && profile != nil {
		event.UserID = profile.ID
	}

	if event.Actor == (ActorRef{}) {
		if event.UserID != "" {
			event.Actor = ActorRef{ID: event.UserID, Type: actorTypeUser}
		} else {
			event.Actor = ActorRef{Type: actorTypeSystem}
		}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = sm.now()
	}

	sink := normalizeActivitySink(sm.activitySink)
	if err := sink.Record(ctx, event); err != nil {
		sm.logger.Warn("state machine activity sink error", "error", err)
	}
}

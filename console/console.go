// Package console wires the access core together. A Console holds the
// access state of one user agent: a single user process builds one at
// start, a server keeps one per browser session through Sessions. Nothing
// in the module relies on package level state.
package console

import (
	"context"
	"sync"
	"time"

	auth "github.com/goliatone/go-console-auth"
	"github.com/goliatone/go-console-auth/guard"
	"github.com/goliatone/go-console-auth/tenant"
)

// Option configures a Console.
type Option func(*options)

type options struct {
	persistence   auth.Persistence
	credentialKey string
	routes        guard.Config
	logger        auth.Logger
	clock         auth.Clock
	sinks         auth.ActivitySinks
	observers     []guard.Observer
	platformRoles []string
	initTimeout   time.Duration
	refreshSkew   time.Duration
	preferDefault bool
	landing       guard.LandingResolver
	redirect      string
	stateTTL      time.Duration
}

// WithPersistence sets the credential backend.
func WithPersistence(p auth.Persistence) Option {
	return func(o *options) {
		o.persistence = p
	}
}

// WithCredentialKey overrides the key the credential is stored under.
func WithCredentialKey(key string) Option {
	return func(o *options) {
		o.credentialKey = key
	}
}

// WithRoutes sets the routes the guard redirects to.
func WithRoutes(cfg guard.Config) Option {
	return func(o *options) {
		o.routes = cfg
	}
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger auth.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock injects a clock (useful for tests).
func WithClock(clock auth.Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithActivitySink adds a sink for authentication and tenant events.
func WithActivitySink(sink auth.ActivitySink) Option {
	return func(o *options) {
		if sink != nil {
			o.sinks = append(o.sinks, sink)
		}
	}
}

// WithObserver adds a guard verdict observer.
func WithObserver(obs guard.Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observers = append(o.observers, obs)
		}
	}
}

// WithPlatformRoles overrides the roles treated as platform scoped.
func WithPlatformRoles(roles ...string) Option {
	return func(o *options) {
		o.platformRoles = roles
	}
}

// WithInitTimeout bounds the identity provider initialization.
func WithInitTimeout(d time.Duration) Option {
	return func(o *options) {
		o.initTimeout = d
	}
}

// WithRefreshSkew sets how early a credential counts as expired.
func WithRefreshSkew(d time.Duration) Option {
	return func(o *options) {
		o.refreshSkew = d
	}
}

// WithPreferDefaultStore auto-selects the store flagged as default when a
// user belongs to several.
func WithPreferDefaultStore(enabled bool) Option {
	return func(o *options) {
		o.preferDefault = enabled
	}
}

// WithLandingResolver sends authenticated users hitting guest only routes
// to a per user landing route.
func WithLandingResolver(fn guard.LandingResolver) Option {
	return func(o *options) {
		o.landing = fn
	}
}

// WithDefaultRedirect sets where a login resumes when no destination was
// captured.
func WithDefaultRedirect(target string) Option {
	return func(o *options) {
		o.redirect = target
	}
}

// WithLoginStateTTL bounds how long a login round trip may take.
func WithLoginStateTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.stateTTL = ttl
	}
}

// Console is the explicit context object of the access core.
type Console struct {
	credentials *auth.CredentialStore
	tokens      *auth.TokenManager
	state       *auth.AuthStateMachine
	stores      *tenant.Context
	resolver    *tenant.Resolver
	pipeline    *guard.Pipeline
	navigator   *guard.Navigator
	sink        auth.ActivitySink
	logger      auth.Logger
	now         auth.Clock

	subsMu  sync.Mutex
	pubMu   sync.Mutex
	subs    map[int]func(Projection)
	nextSub int

	unsubscribe []func()
}

// New builds a console over provider.
func New(provider auth.IdentityProvider, opts ...Option) *Console {
	o := &options{
		routes: guard.Routes{},
		logger: auth.DefaultLogger(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	var sink auth.ActivitySink
	if len(o.sinks) > 0 {
		sink = o.sinks
	}

	c := &Console{
		sink:   sink,
		logger: o.logger,
		now:    o.clock,
		subs:   map[int]func(Projection){},
	}

	storeOpts := []auth.CredentialStoreOption{
		auth.WithPersistence(o.persistence),
		auth.WithStoreClock(o.clock),
		auth.WithStoreLogger(o.logger),
	}
	if o.credentialKey != "" {
		storeOpts = append(storeOpts, auth.WithCredentialKey(o.credentialKey))
	}
	c.credentials = auth.NewCredentialStore(storeOpts...)

	var refresher auth.Refresher
	if provider != nil {
		refresher = provider
	}
	c.tokens = auth.NewTokenManager(c.credentials, refresher, auth.WithTokenManagerLogger(o.logger))

	smOpts := []auth.StateMachineOption{
		auth.WithStateMachineClock(o.clock),
		auth.WithStateMachineLogger(o.logger),
		auth.WithStateMachineActivitySink(sink),
	}
	if len(o.platformRoles) > 0 {
		smOpts = append(smOpts, auth.WithPlatformRoles(o.platformRoles...))
	}
	if o.initTimeout > 0 {
		smOpts = append(smOpts, auth.WithInitTimeout(o.initTimeout))
	}
	if o.refreshSkew > 0 {
		smOpts = append(smOpts, auth.WithRefreshSkew(o.refreshSkew))
	}
	if o.stateTTL > 0 {
		smOpts = append(smOpts, auth.WithLoginStateTTL(o.stateTTL))
	}
	if o.redirect != "" {
		smOpts = append(smOpts, auth.WithDefaultRedirect(o.redirect))
	}
	c.state = auth.NewAuthStateMachine(provider, c.tokens, smOpts...)

	tenantOpts := []tenant.ContextOption{
		tenant.WithLogger(o.logger),
		tenant.WithClock(o.clock),
	}
	if sink != nil {
		tenantOpts = append(tenantOpts, tenant.WithActivitySink(sink))
	}
	c.stores = tenant.NewContext(tenantOpts...)
	c.resolver = tenant.NewResolver(tenant.WithPreferDefault(o.preferDefault))

	pipeOpts := []guard.Option{
		guard.WithConfig(o.routes),
		guard.WithResolver(c.resolver),
		guard.WithStoreSelector(c.stores),
		guard.WithLogger(o.logger),
		guard.WithClock(o.clock),
		guard.WithObserver(guard.ObserverFunc(c.recordDenied)),
	}
	if o.landing != nil {
		pipeOpts = append(pipeOpts, guard.WithLandingResolver(o.landing))
	}
	for _, obs := range o.observers {
		pipeOpts = append(pipeOpts, guard.WithObserver(obs))
	}
	c.pipeline = guard.NewPipeline(c.state, pipeOpts...)
	c.navigator = guard.NewNavigator(c.pipeline)

	c.unsubscribe = append(c.unsubscribe,
		c.state.Subscribe(c.onAuthChange),
		c.stores.Subscribe(func(string) { c.publish() }),
	)

	return c
}

// Credentials returns the credential store.
func (c *Console) Credentials() *auth.CredentialStore { return c.credentials }

// Tokens returns the token lifecycle manager.
func (c *Console) Tokens() *auth.TokenManager { return c.tokens }

// Auth returns the authentication state machine.
func (c *Console) Auth() *auth.AuthStateMachine { return c.state }

// Stores returns the selected store context.
func (c *Console) Stores() *tenant.Context { return c.stores }

// Pipeline returns the guard pipeline.
func (c *Console) Pipeline() *guard.Pipeline { return c.pipeline }

// Navigator returns the navigator for the user agent.
func (c *Console) Navigator() *guard.Navigator { return c.navigator }

// Init initializes authentication once. Concurrent and later callers share
// the result.
func (c *Console) Init(ctx context.Context) (auth.AuthStatus, error) {
	return c.state.Init(ctx)
}

// Navigate evaluates dest through the navigator and applies the verdict.
func (c *Console) Navigate(ctx context.Context, dest guard.Destination) (guard.Verdict, error) {
	return c.navigator.Navigate(ctx, dest)
}

// Logout ends the session and drops the selected store.
func (c *Console) Logout(ctx context.Context, redirect string) (string, error) {
	target, err := c.state.Logout(ctx, redirect)
	c.stores.Clear(ctx)
	return target, err
}

// Close removes the internal subscriptions.
func (c *Console) Close() {
	for _, fn := range c.unsubscribe {
		fn()
	}
	c.unsubscribe = nil
}

func (c *Console) onAuthChange(snap auth.Snapshot) {
	if snap.Status != auth.StatusAuthenticated && snap.Status != auth.StatusInitializing {
		c.stores.Clear(context.Background())
	}
	c.publish()
}

func (c *Console) recordDenied(ctx context.Context, dest guard.Destination, v guard.Verdict, _ time.Duration) {
	if c.sink == nil || v.Reason != guard.ReasonStoreAccessDenied {
		return
	}
	profile := c.state.Profile()
	event := auth.ActivityEvent{
		EventType: auth.ActivityEventStoreDenied,
		Actor:     auth.ActorRef{Type: "system"},
		Metadata: map[string]any{
			"store_id": v.Query[guard.QueryStoreID],
			"route":    dest.Name,
		},
		OccurredAt: c.now(),
	}
	if profile != nil {
		event.UserID = profile.ID
		event.Actor = auth.ActorRef{ID: profile.ID, Type: "user"}
	}
	if err := c.sink.Record(ctx, event); err != nil {
		c.logger.Warn("console activity sink error", "error", err)
	}
}

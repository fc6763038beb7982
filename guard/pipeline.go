package guard

import (
	"context"
	"time"

	auth "github.com/goliatone/go-console-auth"
	"github.com/goliatone/go-console-auth/tenant"
)

// Observer is told about every verdict the pipeline produces.
type Observer interface {
	ObserveVerdict(ctx context.Context, dest Destination, v Verdict, elapsed time.Duration)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, dest Destination, v Verdict, elapsed time.Duration)

// ObserveVerdict implements Observer.
func (f ObserverFunc) ObserveVerdict(ctx context.Context, dest Destination, v Verdict, elapsed time.Duration) {
	if f != nil {
		f(ctx, dest, v, elapsed)
	}
}

// StoreSelector receives the store a verdict settled on. *tenant.Context
// satisfies it.
type StoreSelector interface {
	Select(ctx context.Context, storeID string) bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithConfig sets the routes.
func WithConfig(cfg Config) Option {
	return func(p *Pipeline) {
		if cfg != nil {
			p.config = cfg
		}
	}
}

// WithResolver sets the store context resolver.
func WithResolver(r *tenant.Resolver) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.resolver = r
		}
	}
}

// WithStoreSelector sets where settled stores are applied.
func WithStoreSelector(s StoreSelector) Option {
	return func(p *Pipeline) {
		p.stores = s
	}
}

// WithSteps replaces the default steps.
func WithSteps(steps ...Step) Option {
	return func(p *Pipeline) {
		if len(steps) > 0 {
			p.steps = steps
		}
	}
}

// WithObserver adds an observer.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) {
		if o != nil {
			p.observers = append(p.observers, o)
		}
	}
}

// WithLandingResolver lets guest only redirects honor a per user landing
// route. Without it the configured landing route is used.
func WithLandingResolver(fn LandingResolver) Option {
	return func(p *Pipeline) {
		p.landing = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger auth.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithClock injects a clock (useful for tests).
func WithClock(clock auth.Clock) Option {
	return func(p *Pipeline) {
		if clock != nil {
			p.now = clock
		}
	}
}

// Pipeline runs the steps for a navigation. It holds no per navigation
// state, so concurrent evaluations are safe.
type Pipeline struct {
	state     AuthState
	config    Config
	resolver  *tenant.Resolver
	stores    StoreSelector
	steps     []Step
	observers []Observer
	landing   LandingResolver
	logger    auth.Logger
	now       auth.Clock
}

// NewPipeline returns a pipeline over state with the default steps.
func NewPipeline(state AuthState, opts ...Option) *Pipeline {
	p := &Pipeline{
		state:    state,
		config:   Routes{},
		resolver: tenant.NewResolver(),
		steps:    DefaultSteps(),
		logger:   auth.DefaultLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Config returns the routes in use.
func (p *Pipeline) Config() Config {
	return p.config
}

// Evaluate runs the steps in order and returns the first verdict that is
// not a continue, or Allow. It has no side effects; use Apply to act on a
// verdict. An error is returned only when ctx ends while a step waits.
func (p *Pipeline) Evaluate(ctx context.Context, dest Destination) (Verdict, error) {
	start := p.now()
	ev := &Evaluation{
		Destination: dest,
		Auth:        p.state,
		Resolver:    p.resolver,
		Config:      p.config,
		Landing:     p.landing,
	}

	verdict := Allow()
	for _, step := range p.steps {
		if step == nil {
			continue
		}
		v, err := step(ctx, ev)
		if err != nil {
			p.logger.Debug("guard evaluation abandoned", "route", dest.Name, "error", err)
			return Verdict{}, err
		}
		if v.Kind != KindContinue {
			verdict = v
			break
		}
	}

	elapsed := p.now().Sub(start)
	for _, o := range p.observers {
		o.ObserveVerdict(ctx, dest, verdict, elapsed)
	}

	if verdict.IsRedirect() {
		p.logger.Info("navigation redirected",
			"route", dest.Name,
			"target", verdict.Target,
			"reason", string(verdict.Reason),
		)
	}
	return verdict, nil
}

// Apply acts on a verdict that is going to be honored: a settled store is
// selected. It reports whether the selection changed.
func (p *Pipeline) Apply(ctx context.Context, v Verdict) bool {
	if p.stores == nil || v.StoreID == "" || v.IsRedirect() {
		return false
	}
	return p.stores.Select(ctx, v.StoreID)
}

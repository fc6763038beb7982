package console

import (
	"slices"

	auth "github.com/goliatone/go-console-auth"
)

// Projection is a read-only view of the console for presentation layers.
// It is a value; later changes are delivered through Subscribe.
type Projection struct {
	Status         auth.AuthStatus
	Profile        *auth.UserProfile
	StoreID        string
	Roles          []string
	PlatformScoped bool
	Err            error
}

// IsAuthenticated reports whether the user is authenticated.
func (p Projection) IsAuthenticated() bool {
	return p.Status == auth.StatusAuthenticated
}

func (p Projection) HasRole(role string) bool {
	return slices.Contains(p.Roles, role)
}

func (p Projection) HasAnyRole(roles ...string) bool {
	return slices.ContainsFunc(roles, p.HasRole)
}

// CanAccessStore mirrors AuthStateMachine.CanAccessStore for the captured
// profile.
func (p Projection) CanAccessStore(storeID string) bool {
	if storeID == "" || !p.IsAuthenticated() {
		return false
	}
	if p.PlatformScoped {
		return true
	}
	_, ok := p.Profile.StoreByID(storeID)
	return ok
}

// TemplateContext returns the projection as template helpers.
func (p Projection) TemplateContext() map[string]any {
	return auth.TemplateHelpersWithSnapshot(auth.Snapshot{
		Status:  p.Status,
		Profile: p.Profile,
		Err:     p.Err,
	}, p.StoreID)
}

// Projection captures the current state.
func (c *Console) Projection() Projection {
	snap := c.state.Snapshot()
	p := Projection{
		Status:  snap.Status,
		Profile: snap.Profile,
		StoreID: c.stores.Selected(),
		Err:     snap.Err,
	}
	if snap.Status == auth.StatusAuthenticated {
		p.Roles = c.state.Roles().Slice()
		p.PlatformScoped = c.state.IsPlatformScoped()
	}
	return p
}

// Subscribe registers fn for projection changes. fn is called with the
// current projection right away. The returned func removes the
// subscription.
func (c *Console) Subscribe(fn func(Projection)) func() {
	if fn == nil {
		return func() {}
	}

	c.subsMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subsMu.Unlock()

	c.pubMu.Lock()
	fn(c.Projection())
	c.pubMu.Unlock()

	return func() {
		c.subsMu.Lock()
		delete(c.subs, id)
		c.subsMu.Unlock()
	}
}

func (c *Console) publish() {
	c.subsMu.Lock()
	subs := make([]func(Projection), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.subsMu.Unlock()

	if len(subs) == 0 {
		return
	}

	c.pubMu.Lock()
	defer c.pubMu.Unlock()
	p := c.Projection()
	for _, fn := range subs {
		fn(p)
	}
}

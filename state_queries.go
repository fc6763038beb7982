package auth

// Status returns the current status.
func (sm *AuthStateMachine) Status() AuthStatus {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.status
}

// Profile returns a copy of the current profile, nil when unauthenticated.
func (sm *AuthStateMachine) Profile() *UserProfile {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.profile.Clone()
}

// LastError returns the error that led to the current status, if any.
func (sm *AuthStateMachine) LastError() error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.lastErr
}

// Snapshot returns a consistent view of status, profile and error.
func (sm *AuthStateMachine) Snapshot() Snapshot {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return Snapshot{
		Status:  sm.status,
		Profile: sm.profile.Clone(),
		Err:     sm.lastErr,
	}
}

func (sm *AuthStateMachine) IsAuthenticated() bool {
	return sm.Status() == StatusAuthenticated
}

// Roles returns the role set of the authenticated user.
func (sm *AuthStateMachine) Roles() RoleSet {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	if sm.status != StatusAuthenticated {
		return RoleSet{}
	}
	return sm.profile.RoleSet()
}

// HasRole never fails; it is false when unauthenticated.
func (sm *AuthStateMachine) HasRole(role string) bool {
	return sm.Roles().Has(role)
}

func (sm *AuthStateMachine) HasAnyRole(roles ...string) bool {
	return sm.Roles().HasAny(roles...)
}

func (sm *AuthStateMachine) HasAllRoles(roles ...string) bool {
	if len(roles) == 0 {
		return false
	}
	return sm.Roles().HasAll(roles...)
}

// IsPlatformScoped reports whether the user holds a platform role and may
// therefore act within any store.
func (sm *AuthStateMachine) IsPlatformScoped() bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	if sm.status != StatusAuthenticated || sm.profile == nil {
		return false
	}
	for _, role := range sm.profile.Roles {
		if role.Scope == RoleScopePlatform || sm.platformRoles.Has(role.Name) {
			return true
		}
	}
	return false
}

// CanAccessStore reports whether the user may act within storeID.
func (sm *AuthStateMachine) CanAccessStore(storeID string) bool {
	if storeID == "" || !sm.IsAuthenticated() {
		return false
	}
	if sm.IsPlatformScoped() {
		return true
	}
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	_, ok := sm.profile.StoreByID(storeID)
	return ok
}

// EnsureAuthenticated fails with ErrAuthentication unless authenticated.
func (sm *AuthStateMachine) EnsureAuthenticated() error {
	if status := sm.Status(); status != StatusAuthenticated {
		return withDetails(ErrAuthentication, "", map[string]any{
			"status": string(status),
		})
	}
	return nil
}

// EnsureRoles fails unless the user holds at least one of roles.
func (sm *AuthStateMachine) EnsureRoles(roles ...string) error {
	if err := sm.EnsureAuthenticated(); err != nil {
		return err
	}
	if len(roles) == 0 || sm.HasAnyRole(roles...) {
		return nil
	}
	return InsufficientRoles(roles, sm.Roles().Slice())
}

// EnsureStoreAccess fails unless the user may act within storeID.
func (sm *AuthStateMachine) EnsureStoreAccess(storeID string) error {
	if err := sm.EnsureAuthenticated(); err != nil {
		return err
	}
	if sm.CanAccessStore(storeID) {
		return nil
	}
	return StoreAccessDenied(storeID)
}

// Subscribe registers fn for snapshots. fn is called with the current
// snapshot right away and after every change. The returned func removes
// the subscription.
func (sm *AuthStateMachine) Subscribe(fn func(Snapshot)) func() {
	if fn == nil {
		return func() {}
	}

	sm.subsMu.Lock()
	id := sm.nextSub
	sm.nextSub++
	sm.subs[id] = fn
	sm.subsMu.Unlock()

	sm.notifyMu.Lock()
	fn(sm.Snapshot())
	sm.notifyMu.Unlock()

	return func() {
		sm.subsMu.Lock()
		delete(sm.subs, id)
		sm.subsMu.Unlock()
	}
}

// notify delivers the latest snapshot. notifyMu keeps deliveries ordered,
// so a subscriber never sees an older snapshot after a newer one.
func (sm *AuthStateMachine) notify() {
	sm.subsMu.Lock()
	subs := make([]func(Snapshot), 0, len(sm.subs))
	for _, fn := range sm.subs {
		subs = append(subs, fn)
	}
	sm.subsMu.Unlock()

	if len(subs) == 0 {
		return
	}

	sm.notifyMu.Lock()
	defer sm.notifyMu.Unlock()
	snap := sm.Snapshot()
	for _, fn := range subs {
		fn(snap)
	}
}

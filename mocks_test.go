package auth_test

import (
	"context"
	"sync"
	"time"

	auth "github.com/goliatone/go-console-auth"
	"github.com/goliatone/go-console-auth/fake"
)

type recordingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (r *recordingSink) Record(_ context.Context, event auth.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingSink) Types() []auth.ActivityEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

func (r *recordingSink) Last(eventType auth.ActivityEventType) (auth.ActivityEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].EventType == eventType {
			return r.events[i], true
		}
	}
	return auth.ActivityEvent{}, false
}

func storeAdmin() *auth.UserProfile {
	return &auth.UserProfile{
		ID:       "user-1",
		Username: "ada",
		Email:    "ada@example.com",
		Roles:    []auth.Role{{Name: auth.RoleStoreAdmin, Scope: auth.RoleScopeStore}},
		StoreAccess: []auth.StoreAccess{
			{StoreID: "store-1", StoreName: "North", Roles: auth.NewRoleSet(auth.RoleStoreAdmin), IsDefault: true},
			{StoreID: "store-2", StoreName: "South", Roles: auth.NewRoleSet(auth.RoleStoreStaff)},
		},
	}
}

func platformAdmin() *auth.UserProfile {
	return &auth.UserProfile{
		ID:       "root-1",
		Username: "grace",
		Roles:    []auth.Role{{Name: auth.RolePlatformAdmin, Scope: auth.RoleScopePlatform}},
	}
}

func mintCredential(profile *auth.UserProfile, issuedAt time.Time, ttl time.Duration, refresh string) *auth.Credential {
	token, _, err := auth.MintAccessToken(auth.NewIdentityFromProfile(profile), auth.MintOptions{
		TTL:           ttl,
		IssuedAt:      issuedAt,
		PlatformRoles: auth.DefaultPlatformRoles,
	})
	if err != nil {
		panic(err)
	}
	return auth.NewCredential(token, issuedAt, ttl, auth.WithRefreshToken(refresh))
}

// login drives a full login round trip through the fake provider.
func login(ctx context.Context, sm *auth.AuthStateMachine, idp *fake.Provider, userID, redirect string) (string, error) {
	loginURL, err := sm.BeginLogin(ctx, redirect, auth.LoginModeLogin)
	if err != nil {
		return "", err
	}
	state, err := stateFromURL(loginURL)
	if err != nil {
		return "", err
	}
	return sm.HandleCallback(ctx, callbackQuery(idp.IssueCode(userID), state))
}

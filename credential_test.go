package auth_test

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-console-auth"
	"github.com/goliatone/go-console-auth/persistence/memory"
)

func TestCredentialExpiry(t *testing.T) {
	issued := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	cred := auth.NewCredential("access", issued, 10*time.Minute, auth.WithRefreshToken("refresh"))

	assert.Equal(t, issued.Add(10*time.Minute), cred.ExpiresAt())
	assert.False(t, cred.IsExpiredAt(issued.Add(5*time.Minute), 0))
	assert.True(t, cred.IsExpiredAt(issued.Add(5*time.Minute), 6*time.Minute))
	assert.True(t, cred.IsExpiredAt(issued.Add(10*time.Minute), 0), "expiry instant counts as expired")
	assert.Equal(t, "refresh", cred.RefreshToken())
	assert.Equal(t, auth.TokenTypeBearer, cred.TokenType())
}

func TestCredentialNonPositiveLifetimeIsExpired(t *testing.T) {
	now := time.Now()
	assert.True(t, auth.NewCredential("access", now, 0).IsExpiredAt(now, 0))
	assert.True(t, auth.NewCredential("access", now, -time.Minute).IsExpiredAt(now, 0))
}

func TestCredentialMissingIsExpired(t *testing.T) {
	var cred *auth.Credential
	assert.True(t, cred.IsExpiredAt(time.Now(), 0))
	assert.Empty(t, cred.AccessToken())

	_, err := cred.AuthorizationHeaderValue()
	assert.ErrorIs(t, err, auth.ErrNoCredential)

	empty := auth.NewCredential("", time.Now(), time.Hour)
	assert.True(t, empty.IsExpiredAt(time.Now(), 0))
}

func TestCredentialJSONKeepsEveryField(t *testing.T) {
	issued := time.Date(2024, 5, 10, 8, 30, 0, 0, time.UTC)
	cred := auth.NewCredential("access", issued, time.Hour,
		auth.WithRefreshToken("refresh"),
		auth.WithIDToken("id"),
		auth.WithTokenType("DPoP"),
	)

	raw, err := json.Marshal(cred)
	require.NoError(t, err)

	var decoded auth.Credential
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "access", decoded.AccessToken())
	assert.Equal(t, "refresh", decoded.RefreshToken())
	assert.Equal(t, "id", decoded.IDToken())
	assert.Equal(t, "DPoP", decoded.TokenType())
	assert.True(t, issued.Equal(decoded.IssuedAt()))
	assert.Equal(t, time.Hour, decoded.ExpiresIn())
}

func TestCredentialStoreStoreOverwritesAndClears(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	store := auth.NewCredentialStore(auth.WithStoreLogger(auth.NopLogger{}))

	assert.False(t, store.HasAccessToken())
	assert.True(t, store.IsExpired(0))
	assert.False(t, store.IsValid())

	require.NoError(t, store.Store(ctx, auth.NewCredential("first", now, time.Hour)))
	require.NoError(t, store.Store(ctx, auth.NewCredential("second", now, time.Hour, auth.WithRefreshToken("r2"))))
	assert.Equal(t, "second", store.Credential().AccessToken())
	assert.True(t, store.HasRefreshToken())
	assert.True(t, store.IsValid())

	header, err := store.AuthorizationHeaderValue()
	require.NoError(t, err)
	assert.Equal(t, "Bearer second", header)

	require.NoError(t, store.Clear(ctx))
	require.NoError(t, store.Clear(ctx))
	assert.Nil(t, store.Credential())
	assert.False(t, store.HasAccessToken())
}

func TestCredentialStoreRejectsEmptyCredential(t *testing.T) {
	store := auth.NewCredentialStore()
	err := store.Store(context.Background(), nil)
	assert.True(t, stderrors.Is(err, auth.ErrNoCredential))

	err = store.Store(context.Background(), auth.NewCredential("", time.Now(), time.Hour))
	assert.True(t, stderrors.Is(err, auth.ErrNoCredential))
}

func TestCredentialStoreUsesInjectedClock(t *testing.T) {
	issued := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := issued.Add(50 * time.Minute)
	store := auth.NewCredentialStore(auth.WithStoreClock(func() time.Time { return now }))

	require.NoError(t, store.Store(context.Background(), auth.NewCredential("access", issued, time.Hour)))
	assert.False(t, store.IsExpired(5*time.Minute))
	assert.True(t, store.IsExpired(15*time.Minute))
}

func TestCredentialStoreLoadsFromPersistence(t *testing.T) {
	ctx := context.Background()
	backend := memory.New(0)
	issued := time.Now().Truncate(time.Second)

	writer := auth.NewCredentialStore(auth.WithPersistence(backend), auth.WithCredentialKey("console"))
	require.NoError(t, writer.Store(ctx, auth.NewCredential("access", issued, time.Hour, auth.WithRefreshToken("refresh"))))

	reader := auth.NewCredentialStore(auth.WithPersistence(backend), auth.WithCredentialKey("console"))
	cred, err := reader.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "access", reader.Credential().AccessToken())
	assert.Equal(t, "refresh", reader.Credential().RefreshToken())

	other := auth.NewCredentialStore(auth.WithPersistence(backend), auth.WithCredentialKey("other"))
	cred, err = other.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, cred)

	require.NoError(t, writer.Clear(ctx))
	cred, err = auth.NewCredentialStore(auth.WithPersistence(backend), auth.WithCredentialKey("console")).Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, cred)
}

func TestCredentialStoreDiscardsUnreadableRecord(t *testing.T) {
	ctx := context.Background()
	backend := memory.New(0)
	require.NoError(t, backend.Set(ctx, auth.DefaultCredentialKey, []byte("{not json")))

	store := auth.NewCredentialStore(auth.WithPersistence(backend), auth.WithStoreLogger(auth.NopLogger{}))
	cred, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, cred)

	_, ok, err := backend.Get(ctx, auth.DefaultCredentialKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCredentialStoreClaims(t *testing.T) {
	store := auth.NewCredentialStore()
	_, err := store.Claims()
	assert.True(t, stderrors.Is(err, auth.ErrNoCredential))

	require.NoError(t, store.Store(context.Background(), mintCredential(storeAdmin(), time.Now(), time.Hour, "r")))
	claims, err := store.Claims()
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.True(t, claims.HasRole(auth.RoleStoreAdmin))
}

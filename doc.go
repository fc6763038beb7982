// Package auth is the access core of a multi-tenant console: it keeps the
// credential, decodes its claims, and tracks whether the current user is
// authenticated.
//
// Credentials:
//   - CredentialStore holds exactly one Credential and mirrors it to a
//     Persistence backend (see persistence/memory, persistence/redis and
//     persistence/sqlstore). ExpiresAt is always IssuedAt + ExpiresIn.
//   - TokenManager wraps the store and coordinates refreshes. Concurrent
//     callers share a single exchange with the identity provider, and a
//     Clear that lands while a refresh is in flight wins.
//
// Authentication state:
//   - AuthStateMachine owns AuthStatus and the UserProfile. Init runs once;
//     WaitInitialized lets any number of callers await that result, late
//     callers included.
//   - Refresh and decode failures stop at the machine boundary and become a
//     status. The Ensure* helpers are the only calls that hand typed errors
//     (ErrAuthentication, ErrAuthorization, ErrStoreAccess) to callers.
//
// Activity sinks:
//   - ActivitySink receives login, logout, refresh and status events. Sinks run
//     best-effort (errors are logged) so you can forward to metrics or a queue
//     without blocking authentication.
//
// Store context resolution lives in the tenant package and the navigation
// decision pipeline in the guard package; console wires them together.
package auth

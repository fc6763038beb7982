// Package oidc is an identity provider adapter for OpenID Connect servers
// such as Keycloak. It runs the authorization code and refresh token grants
// against the token endpoint and builds login and end session URLs.
package oidc

// Package jwtware verifies the bearer tokens the console attaches to API
// calls. It is the server side counterpart of the token lifecycle manager:
// signatures are checked against the identity provider keys, then the
// payload is decoded into auth.Claims for role and store checks.
package jwtware

import (
	"fmt"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"

	auth "github.com/goliatone/go-console-auth"
)

const defaultTokenLookup = "header:" + router.HeaderAuthorization

// LocalsClaimsKey is the default locals key for verified claims.
const LocalsClaimsKey = "console_claims"

var (
	// ErrTokenMissing is returned when no token was found in the request.
	ErrTokenMissing = errors.New("missing or malformed bearer token", errors.CategoryAuth).
			WithTextCode("TOKEN_MISSING").
			WithCode(errors.CodeBadRequest)

	// ErrTokenInvalid is returned when signature or registered claims do
	// not verify.
	ErrTokenInvalid = errors.New("invalid or expired token", errors.CategoryAuth).
			WithTextCode("TOKEN_INVALID").
			WithCode(errors.CodeUnauthorized)
)

// Config configures the middleware. One of KeyFunc, JWKSetURLs,
// SigningKeys or SigningKey is required.
type Config struct {
	Filter       func(router.Context) bool
	ErrorHandler router.ErrorHandler

	SigningKey  SigningKey
	SigningKeys map[string]SigningKey
	JWKSetURLs  []string
	KeyFunc     jwt.Keyfunc

	// TokenLookup is a comma separated list of "source:name" pairs, where
	// source is header, query or cookie (default: "header:Authorization").
	TokenLookup string
	AuthScheme  string

	// Issuer and Audience are enforced when set.
	Issuer   string
	Audience string
	Leeway   time.Duration

	// RequiredRoles lets the request through when the token holds any of
	// them.
	RequiredRoles []string

	// StoreParam names the route parameter carrying a store id. When set
	// and present, the token must list the store unless it carries a
	// platform role.
	StoreParam    string
	PlatformRoles []string

	// ContextKey is the locals key the claims are stored under.
	ContextKey string

	Logger auth.Logger
}

// SigningKey is a verification key with its expected algorithm.
type SigningKey struct {
	JWTAlg string
	Key    any
}

// New returns the verification middleware. It panics on an invalid
// configuration.
func New(config Config) router.MiddlewareFunc {
	cfg := GetDefaultConfig(config)
	parser := cfg.parser()
	extractors := GetExtractors(cfg.TokenLookup, cfg.AuthScheme)
	platform := auth.NewRoleSet(cfg.PlatformRoles...)

	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return ctx.Next()
			}

			raw, err := extract(ctx, extractors)
			if err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			if _, err := parser.Parse(raw, cfg.KeyFunc); err != nil {
				cfg.Logger.Debug("bearer token rejected", "error", err)
				return cfg.ErrorHandler(ctx, invalid(err))
			}

			claims, err := auth.Decode(raw)
			if err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			if len(cfg.RequiredRoles) > 0 && !claims.Roles.HasAny(cfg.RequiredRoles...) {
				return cfg.ErrorHandler(ctx, auth.InsufficientRoles(cfg.RequiredRoles, claims.Roles.Slice()))
			}

			storeID := ""
			if cfg.StoreParam != "" {
				storeID = ctx.Param(cfg.StoreParam)
			}
			if storeID != "" && !claims.Roles.HasAny(platform.Slice()...) && !listsStore(claims, storeID) {
				return cfg.ErrorHandler(ctx, auth.StoreAccessDenied(storeID))
			}

			ctx.Locals(cfg.ContextKey, claims)
			reqCtx := auth.WithClaimsContext(ctx.Context(), claims)
			if storeID != "" {
				ctx.Locals(auth.LocalsStoreKey, storeID)
				reqCtx = auth.WithStoreContext(reqCtx, storeID)
			}
			ctx.SetContext(reqCtx)

			return ctx.Next()
		}
	}
}

// GetDefaultConfig fills in defaults and resolves the key function.
func GetDefaultConfig(cfg Config) Config {
	if cfg.Logger == nil {
		cfg.Logger = auth.DefaultLogger()
	}
	if cfg.ContextKey == "" {
		cfg.ContextKey = LocalsClaimsKey
	}
	if cfg.TokenLookup == "" {
		cfg.TokenLookup = defaultTokenLookup
	}
	if cfg.AuthScheme == "" {
		cfg.AuthScheme = auth.TokenTypeBearer
	}
	if len(cfg.PlatformRoles) == 0 {
		cfg.PlatformRoles = auth.DefaultPlatformRoles
	}
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = defaultErrorHandler(cfg.Logger)
	}

	if cfg.KeyFunc == nil {
		switch {
		case len(cfg.JWKSetURLs) > 0:
			kf, err := multiKeyfunc(givenKeys(cfg.SigningKeys), cfg.JWKSetURLs, cfg.Logger)
			if err != nil {
				panic("CONSOLE-AUTH: bearer middleware configuration: " + err.Error())
			}
			cfg.KeyFunc = kf
		case len(cfg.SigningKeys) > 0:
			cfg.KeyFunc = keyfunc.NewGiven(givenKeys(cfg.SigningKeys)).Keyfunc
		case cfg.SigningKey.Key != nil:
			cfg.KeyFunc = signingKeyFunc(cfg.SigningKey)
		default:
			panic("CONSOLE-AUTH: bearer middleware configuration: one of KeyFunc, JWKSetURLs, SigningKeys or SigningKey is required.")
		}
	}
	return cfg
}

func (cfg Config) parser() *jwt.Parser {
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	if cfg.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(cfg.Leeway))
	}
	return jwt.NewParser(opts...)
}

func defaultErrorHandler(logger auth.Logger) router.ErrorHandler {
	return func(c router.Context, err error) error {
		var richErr *errors.Error
		if !errors.As(err, &richErr) {
			richErr = errors.Wrap(err, errors.CategoryAuth, "bearer verification failed").
				WithCode(errors.CodeUnauthorized)
		}
		status := richErr.Code
		if status == 0 {
			status = router.StatusUnauthorized
		}
		logger.Info("bearer request rejected", "path", c.Path(), "error", richErr.Message, "code", richErr.TextCode)
		return c.JSON(status, map[string]any{
			"error":   richErr.TextCode,
			"message": richErr.Message,
		})
	}
}

func invalid(cause error) error {
	rich := ErrTokenInvalid.Clone()
	rich.Source = ErrTokenInvalid
	return rich.WithMetadata(map[string]any{"cause": cause.Error()})
}

func listsStore(claims *auth.Claims, storeID string) bool {
	for _, s := range claims.Stores {
		if s.StoreID == storeID {
			return true
		}
	}
	return false
}

func givenKeys(keys map[string]SigningKey) map[string]keyfunc.GivenKey {
	if len(keys) == 0 {
		return nil
	}
	out := make(map[string]keyfunc.GivenKey, len(keys))
	for kid, key := range keys {
		out[kid] = keyfunc.NewGivenCustom(key.Key, keyfunc.GivenKeyOptions{Algorithm: key.JWTAlg})
	}
	return out
}

func multiKeyfunc(given map[string]keyfunc.GivenKey, urls []string, logger auth.Logger) (jwt.Keyfunc, error) {
	opts := keyfunc.Options{
		GivenKeys: given,
		RefreshErrorHandler: func(err error) {
			logger.Warn("jwk set background refresh failed", "error", err)
		},
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  5 * time.Minute,
		RefreshTimeout:    10 * time.Second,
		RefreshUnknownKID: true,
	}
	m := make(map[string]keyfunc.Options, len(urls))
	for _, u := range urls {
		m[u] = opts
	}
	multi, err := keyfunc.GetMultiple(m, keyfunc.MultipleOptions{KeySelector: keyfunc.KeySelectorFirst})
	if err != nil {
		return nil, fmt.Errorf("failed to load jwk sets: %w", err)
	}
	return multi.Keyfunc, nil
}

func signingKeyFunc(key SigningKey) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		if key.JWTAlg != "" {
			alg, _ := token.Header["alg"].(string)
			if alg != key.JWTAlg {
				return nil, fmt.Errorf("unexpected signing method: expected %q got %q", key.JWTAlg, alg)
			}
		}
		return key.Key, nil
	}
}

// Extractor pulls the raw token from a request.
type Extractor func(c router.Context) (string, error)

// GetExtractors parses a token lookup string such as
// "header:Authorization,cookie:console_token".
func GetExtractors(tokenLookup, authScheme string) []Extractor {
	var out []Extractor
	for _, part := range strings.Split(tokenLookup, ",") {
		source, name, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		switch strings.TrimSpace(source) {
		case "header":
			out = append(out, fromHeader(name, authScheme))
		case "query":
			out = append(out, fromQuery(name))
		case "cookie":
			out = append(out, fromCookie(name))
		}
	}
	return out
}

func extract(ctx router.Context, extractors []Extractor) (string, error) {
	for _, ex := range extractors {
		if raw, err := ex(ctx); err == nil && raw != "" {
			return raw, nil
		}
	}
	return "", ErrTokenMissing
}

func fromHeader(header, scheme string) Extractor {
	scheme = strings.TrimSpace(scheme)
	return func(c router.Context) (string, error) {
		v := c.GetString(header, "")
		l := len(scheme)
		if len(v) > l+1 && strings.EqualFold(v[:l], scheme) && v[l] == ' ' {
			return strings.TrimSpace(v[l:]), nil
		}
		return "", ErrTokenMissing
	}
}

func fromQuery(name string) Extractor {
	return func(c router.Context) (string, error) {
		if v := c.Query(name); v != "" {
			return v, nil
		}
		return "", ErrTokenMissing
	}
}

func fromCookie(name string) Extractor {
	return func(c router.Context) (string, error) {
		if v := c.Cookies(name); v != "" {
			return v, nil
		}
		return "", ErrTokenMissing
	}
}

// Command console-demo serves a minimal console guarded by the access core.
// With -fake it runs against the in-memory identity provider and logs in
// the demo operator through /dev/auth.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/prometheus/client_golang/prometheus"

	auth "github.com/goliatone/go-console-auth"
	"github.com/goliatone/go-console-auth/activitymap"
	"github.com/goliatone/go-console-auth/config"
	"github.com/goliatone/go-console-auth/console"
	"github.com/goliatone/go-console-auth/fake"
	"github.com/goliatone/go-console-auth/guard"
	"github.com/goliatone/go-console-auth/logging/zaplog"
	"github.com/goliatone/go-console-auth/metrics"
	"github.com/goliatone/go-console-auth/middleware/jwtware"
	"github.com/goliatone/go-console-auth/middleware/routeguard"
	"github.com/goliatone/go-console-auth/provider/oidc"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to the YAML configuration")
		envFile    = flag.String("env", ".env", "path to an optional .env file")
		addr       = flag.String("addr", ":8573", "listen address")
		useFake    = flag.Bool("fake", false, "use the in-memory identity provider")
	)
	flag.Parse()

	if *useFake {
		os.Setenv(config.EnvPrefix+"CLIENT_ID", "console-demo")
		os.Setenv(config.EnvPrefix+"REDIRECT_URL", "http://localhost"+*addr+"/auth/callback")
	}

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(print.MaybeHighlightJSON(cfg.Routes))

	logger, err := zaplog.New(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	persistence, closePersistence, err := cfg.OpenPersistence(ctx)
	if err != nil {
		logger.Error("persistence unavailable", "error", err)
		os.Exit(1)
	}
	defer closePersistence()

	var (
		provider auth.IdentityProvider
		demo     *fake.Provider
	)
	if *useFake {
		demo = fake.New(
			fake.WithSingleSignOn(false),
			fake.WithBaseURL("http://localhost"+*addr+"/dev"),
			fake.WithUser(&auth.UserProfile{
				ID:       "operator-1",
				Username: "operator",
				Email:    "operator@example.com",
				Roles:    []auth.Role{{Name: auth.RoleStoreAdmin, Scope: auth.RoleScopeStore}},
				StoreAccess: []auth.StoreAccess{
					{StoreID: "store-1", StoreName: "Main Street", Roles: auth.NewRoleSet(auth.RoleStoreAdmin), IsDefault: true},
					{StoreID: "store-2", StoreName: "Harbor", Roles: auth.NewRoleSet(auth.RoleStoreStaff)},
				},
			}),
		)
		provider = demo
	} else {
		provider, err = oidc.New(cfg.OIDC(), oidc.WithLogger(logger))
		if err != nil {
			logger.Error("identity provider misconfigured", "error", err)
			os.Exit(1)
		}
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// Every browser gets its own console; the session id keys its
	// persisted credential.
	sessions := console.NewSessions(func(id string) (*console.Console, error) {
		c := console.New(provider,
			console.WithPersistence(persistence),
			console.WithCredentialKey(cfg.Persistence.CredentialKey+"."+id),
			console.WithRoutes(cfg.GuardRoutes()),
			console.WithLogger(logger),
			console.WithActivitySink(collector),
			console.WithActivitySink(activitymap.NewSink(activitymap.LogPublisher(logger))),
			console.WithObserver(collector),
			console.WithPlatformRoles(cfg.Auth.PlatformRoles...),
			console.WithInitTimeout(cfg.InitTimeout()),
			console.WithRefreshSkew(cfg.RefreshSkew()),
			console.WithLoginStateTTL(cfg.LoginStateTTL()),
			console.WithPreferDefaultStore(cfg.Auth.PreferDefaultStore),
			console.WithDefaultRedirect(cfg.Auth.DefaultRedirect),
		)
		status, err := c.Init(ctx)
		logger.Debug("session console initialized", "session", id, "status", string(status), "error", err)
		return c, nil
	}, console.WithSessionsLogger(logger))
	defer sessions.Close()

	binder := routeguard.SessionBinder{Sessions: sessions}

	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			UnescapePath:  true,
			StrictRouting: false,
		}))
	})

	r := srv.Router()
	routes := cfg.GuardRoutes()

	routeguard.NewController(nil, routeguard.ControllerConfig{
		ErrorRedirect: routes.GetLoginRoute(),
		Logger:        logger,
		Bind:          binder.Session,
	}).RegisterRoutes(r)

	protect := routeguard.New(routeguard.Config{
		Bind:   binder.Guard,
		Logger: logger,
		Routes: map[string]guard.RouteMeta{
			"/login":         {GuestOnly: true},
			"/dashboard":     {RequiresAuth: true},
			"/orders":        {StoreScoped: true},
			"/platform":      {Roles: []string{auth.RolePlatformAdmin}},
			"/stores/select": {RequiresAuth: true},
		},
	})

	r.Get("/login", func(ctx router.Context) error {
		return ctx.SendString("log in at /auth/login")
	}, protect)
	r.Get("/dashboard", func(ctx router.Context) error {
		c, err := binder.Console(ctx)
		if err != nil {
			return err
		}
		return ctx.JSON(router.StatusOK, c.Projection().TemplateContext())
	}, protect)
	r.Get("/orders", func(ctx router.Context) error {
		storeID, _ := auth.GetRouterStore(ctx)
		return ctx.JSON(router.StatusOK, map[string]any{"store_id": storeID})
	}, protect)
	r.Get("/platform", func(ctx router.Context) error {
		return ctx.SendString("platform tools")
	}, protect)
	r.Get("/stores/select", func(ctx router.Context) error {
		profile, _ := auth.GetRouterProfile(ctx)
		return ctx.JSON(router.StatusOK, map[string]any{"stores": profile.StoreAccess})
	}, protect)
	r.Get("/unauthorized", func(ctx router.Context) error {
		return ctx.Status(router.StatusForbidden).SendString("not allowed: " + ctx.Query("reason"))
	})

	// The API verifies bearer tokens itself instead of trusting the
	// console session.
	apiAuth := jwtware.Config{
		StoreParam:    "storeId",
		PlatformRoles: cfg.Auth.PlatformRoles,
		Logger:        logger,
	}
	if demo != nil {
		apiAuth.SigningKey = jwtware.SigningKey{JWTAlg: "HS256", Key: auth.DevelopmentSigningKey}
	} else {
		apiAuth.JWKSetURLs = []string{cfg.OIDC().JWKSURL()}
		apiAuth.Issuer = cfg.Provider.Issuer
	}
	r.Get("/api/stores/:storeId/orders", func(ctx router.Context) error {
		claims, ok := auth.ClaimsFromContext(ctx.Context())
		if !ok {
			return ctx.Status(router.StatusUnauthorized).SendString("no claims")
		}
		return ctx.JSON(router.StatusOK, map[string]any{
			"store_id": ctx.Param("storeId"),
			"subject":  claims.Subject,
		})
	}, jwtware.New(apiAuth))

	if demo != nil {
		// The fake provider login page: issue a code and bounce back to
		// the callback with the state we were given.
		r.Get("/dev/auth", func(ctx router.Context) error {
			code := demo.IssueCode("operator-1")
			return ctx.Redirect("/auth/callback?code="+code+"&state="+ctx.Query("state"), http.StatusFound)
		})
		r.Get("/dev/logout", func(ctx router.Context) error {
			return ctx.Redirect(routes.GetLoginRoute(), http.StatusFound)
		})
	}

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sessions.Each(func(_ string, c *console.Console) {
					if c.Auth().IsAuthenticated() && c.Tokens().IsExpired(cfg.RefreshSkew()) {
						c.Auth().Refresh(ctx)
					}
				})
			}
		}
	}()

	srv.WrappedRouter().Get("/metrics", adaptor.HTTPHandler(metrics.Handler(registry)))

	go srv.Serve(*addr)
	logger.Info("console demo listening", "addr", *addr)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown failed", "error", err)
	}
}

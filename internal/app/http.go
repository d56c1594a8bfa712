package app

import (
	"context"
	"errors"
	"net/http"

	"github.com/gotosleep/authlogic-openid/internal/auth/attempt"
	"github.com/gotosleep/authlogic-openid/internal/auth/handler"
	"github.com/gotosleep/authlogic-openid/internal/auth/identifier"
	"github.com/gotosleep/authlogic-openid/internal/auth/provider"
	"github.com/gotosleep/authlogic-openid/internal/auth/provider/oidc"
	"github.com/gotosleep/authlogic-openid/internal/auth/resolver"
	"github.com/gotosleep/authlogic-openid/internal/config"
	"github.com/gotosleep/authlogic-openid/internal/metrics"
	"github.com/gotosleep/authlogic-openid/internal/middleware"
	"github.com/gotosleep/authlogic-openid/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func setupHTTP(ctx context.Context, cfg *config.Config) (*gin.Engine, func() error, error) {
	infra, err := setupInfra(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	router, err := buildRouter(cfg, infra)
	if err != nil {
		_ = infra.Close()
		return nil, nil, err
	}
	return router, infra.Close, nil
}

// buildRouter wires the login flow on top of ready infrastructure.
func buildRouter(cfg *config.Config, infra *Infra) (*gin.Engine, error) {
	if cfg.OpenID.StateSecret == "" {
		return nil, errors.New("app: OPENID_STATE_SECRET is required")
	}

	// ----------------------------
	// Provider
	// ----------------------------

	oidcClient, err := oidc.New(oidc.Config{
		ClientID:     cfg.OpenID.ClientID,
		ClientSecret: cfg.OpenID.ClientSecret,
		StateSecret:  []byte(cfg.OpenID.StateSecret),
		HTTPClient:   &http.Client{Timeout: cfg.OpenID.Timeout},
	}, infra.Cache)
	if err != nil {
		return nil, err
	}

	registry := provider.NewRegistry(oidcClient)
	client, err := registry.Get(cfg.OpenID.Provider)
	if err != nil {
		return nil, err
	}

	// ----------------------------
	// Attempt pipeline
	// ----------------------------

	lookup, err := resolver.LookupByName(infra.Accounts, cfg.OpenID.ResolverFunction)
	if err != nil {
		return nil, err
	}

	validator := attempt.NewValidator(
		identifier.NewNormalizer(client, cfg.OpenID.Timeout),
		client,
		resolver.New(infra.Accounts, resolver.Config{
			Lookup:                 lookup,
			AutoRegister:           cfg.OpenID.AutoRegister,
			StrictIdentifierUpdate: cfg.OpenID.StrictUpdate,
		}),
		attempt.Config{
			RequiredFields: cfg.OpenID.RequiredFields,
			OptionalFields: cfg.OpenID.OptionalFields,
			ReturnURL:      cfg.OpenID.ReturnURL,
			Timeout:        cfg.OpenID.Timeout,
		},
	)

	sessions := session.NewCacheStore(infra.Cache)
	cookie := session.CookieOptions{
		Secure:   cfg.Session.Secure,
		SameSite: http.SameSiteLaxMode,
	}

	authHandler := handler.NewHandler(
		validator,
		infra.Accounts,
		sessions,
		session.Lifetimes{TTL: cfg.Session.TTL, RememberTTL: cfg.Session.RememberTTL},
		cookie,
	)
	authMiddleware := middleware.NewAuthMiddleware(sessions, cookie)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := metrics.Register(reg); err != nil {
		return nil, err
	}

	// ----------------------------
	// Router
	// ----------------------------

	if cfg.App.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger())

	authHandler.RegisterRoutes(router)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// ----------------------------
	// Protected API Routes
	// ----------------------------

	api := router.Group("/api")
	api.Use(middleware.GinRequireAuth(authMiddleware))
	api.GET("/me", authHandler.Me)

	return router, nil
}

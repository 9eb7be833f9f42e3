package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/99minutos/storefront/docs"
	"github.com/99minutos/storefront/internal/api/handler"
	"github.com/99minutos/storefront/internal/api/middleware"
	"github.com/99minutos/storefront/internal/api/session"
	"github.com/99minutos/storefront/internal/core/domain"
	"github.com/99minutos/storefront/internal/core/ports"
)

// Deps is everything the HTTP layer needs from the composition root.
type Deps struct {
	Auth     ports.AuthService
	Users    ports.UserDirectory
	Verifier middleware.TokenVerifier
	Sessions *session.CookieStore
	Routes   *middleware.RouteTable
	Audit    ports.AuditPublisher
	// Readiness lists the dependencies checked by /health/ready.
	Readiness map[string]handler.Pinger
	// Registry receives the HTTP metrics. Defaults to the global registry.
	Registry *prometheus.Registry
	Log      zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = NewHTTPErrorHandler(d.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(middleware.RequestLogger(d.Log))
	e.Use(prometheusMiddleware(d.Registry))
	e.Use(middleware.Guard(middleware.GuardConfig{
		Routes:   d.Routes,
		Verifier: d.Verifier,
		Sessions: d.Sessions,
		Audit:    d.Audit,
		Log:      d.Log,
	}))

	// --- Auth routes (public; handlers answer 401 themselves) ---
	authHandler := handler.NewAuthHandler(d.Auth, d.Sessions)
	auth := e.Group("/api/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/register", authHandler.Register)
	auth.POST("/logout", authHandler.Logout)
	auth.GET("/me", authHandler.Me)
	auth.POST("/refresh", authHandler.Refresh)

	// --- Guarded routes ---
	accountHandler := handler.NewAccountHandler(d.Users)
	e.GET("/api/account", accountHandler.Account, middleware.Require(domain.AccessAuthenticated))

	admin := e.Group("/api/admin", middleware.Require(domain.AccessAdmin))
	admin.GET("/users/:id", accountHandler.GetUser)

	// --- Health probes (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	readinessHandler := handler.NewReadinessHandler(d.Readiness)

	e.GET("/health", healthHandler.Liveness)           // liveness  – is the process alive?
	e.GET("/health/ready", readinessHandler.Readiness) // readiness – are dependencies up?

	// --- Ops ---
	e.GET("/metrics", metricsHandler(d.Registry))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}

func prometheusMiddleware(reg *prometheus.Registry) echo.MiddlewareFunc {
	cfg := echoprometheus.MiddlewareConfig{
		Subsystem: "storefront",
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics"
		},
	}
	if reg != nil {
		cfg.Registerer = reg
	}
	return echoprometheus.NewMiddlewareWithConfig(cfg)
}

func metricsHandler(reg *prometheus.Registry) echo.HandlerFunc {
	if reg == nil {
		return echoprometheus.NewHandler()
	}
	return echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: reg})
}

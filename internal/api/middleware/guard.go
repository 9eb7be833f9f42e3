package middleware

import (
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/99minutos/storefront/internal/api/metrics"
	"github.com/99minutos/storefront/internal/api/session"
	"github.com/99minutos/storefront/internal/core/domain"
	"github.com/99minutos/storefront/internal/core/ports"
)

// IdentityKey is the echo context key holding the guard-verified identity.
const IdentityKey = "identity"

// TokenVerifier resolves a session token to the identity it carries.
type TokenVerifier interface {
	Verify(token string) (domain.Identity, error)
}

// GuardConfig wires the route guard.
type GuardConfig struct {
	Routes   *RouteTable
	Verifier TokenVerifier
	Sessions *session.CookieStore
	// LoginPath is where denied requests are sent. Defaults to "/login".
	LoginPath string
	// Audit, when set, receives an access_denied event per denial.
	Audit ports.AuditPublisher
	Log   zerolog.Logger
}

// Guard classifies every request and lets it through only when the session
// cookie satisfies the route's access level. Denials redirect to the login
// page with the original path+query in ?redirect=. A caller lacking the
// admin capability gets the same redirect as an anonymous one, so admin
// routes are indistinguishable from missing auth.
func Guard(cfg GuardConfig) echo.MiddlewareFunc {
	if cfg.Routes == nil {
		cfg.Routes = DefaultRouteTable()
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			access := cfg.Routes.Classify(req.URL.Path)
			if access == domain.AccessPublic {
				return next(c)
			}

			token := cfg.Sessions.Token(c)
			if token == "" {
				return deny(c, cfg, access, domain.Identity{}, "missing_token")
			}

			id, err := cfg.Verifier.Verify(token)
			if err != nil {
				cfg.Sessions.Clear(c)
				return deny(c, cfg, access, domain.Identity{}, "invalid_token")
			}

			if !id.Role.Can(access) {
				return deny(c, cfg, access, id, "insufficient_role")
			}

			metrics.GuardDecisionsTotal.WithLabelValues(access.String(), "allow").Inc()
			c.Set(IdentityKey, id)
			c.SetRequest(req.WithContext(domain.WithIdentity(req.Context(), id)))
			return next(c)
		}
	}
}

func deny(c echo.Context, cfg GuardConfig, access domain.Access, id domain.Identity, reason string) error {
	metrics.GuardDecisionsTotal.WithLabelValues(access.String(), "redirect").Inc()

	req := c.Request()
	cfg.Log.Debug().
		Str("path", req.URL.Path).
		Str("access", access.String()).
		Str("reason", reason).
		Msg("guard redirect")

	if cfg.Audit != nil {
		cfg.Audit.Publish(domain.AuthEvent{
			Type:      domain.EventAccessDenied,
			UserID:    id.ID,
			Email:     id.Email,
			IP:        c.RealIP(),
			Path:      req.URL.Path,
			Reason:    reason,
			Timestamp: time.Now().UTC(),
		})
	}

	target := cfg.LoginPath + "?" + url.Values{"redirect": {req.URL.RequestURI()}}.Encode()
	return c.Redirect(http.StatusFound, target)
}

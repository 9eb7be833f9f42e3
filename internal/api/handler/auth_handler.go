package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/storefront/internal/api/metrics"
	"github.com/99minutos/storefront/internal/api/session"
	"github.com/99minutos/storefront/internal/core/domain"
	"github.com/99minutos/storefront/internal/core/ports"
)

type AuthHandler struct {
	authService ports.AuthService
	sessions    *session.CookieStore
}

func NewAuthHandler(authService ports.AuthService, sessions *session.CookieStore) *AuthHandler {
	return &AuthHandler{authService: authService, sessions: sessions}
}

// Login authenticates a user and sets the session cookie.
//
// @Summary      Login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Login credentials"
// @Success      200   {object}  authResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      429   {object}  errorResponse
// @Router       /api/auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}

	sess, err := h.authService.Login(c.Request().Context(), ports.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		IP:       c.RealIP(),
	})
	observe("login", err)
	if err != nil {
		return err
	}

	h.sessions.Set(c, sess.Token)
	return c.JSON(http.StatusOK, authResponse{User: toUserResponse(sess.Identity), Message: "Logged in successfully"})
}

// Register creates a new user account and signs it in.
//
// @Summary      Register a new user
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      registerRequest  true  "User registration details"
// @Success      201   {object}  authResponse
// @Failure      400   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Failure      500   {object}  errorResponse
// @Router       /api/auth/register [post]
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}

	sess, err := h.authService.Register(c.Request().Context(), ports.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		IP:       c.RealIP(),
	})
	observe("register", err)
	if err != nil {
		return err
	}

	h.sessions.Set(c, sess.Token)
	return c.JSON(http.StatusCreated, authResponse{User: toUserResponse(sess.Identity), Message: "Account created successfully"})
}

// Logout clears the session cookie.
//
// @Summary      Logout
// @Tags         auth
// @Produce      json
// @Success      200  {object}  messageResponse
// @Router       /api/auth/logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	h.authService.Logout(c.Request().Context(), h.sessions.Token(c), c.RealIP())
	h.sessions.Clear(c)
	observe("logout", nil)
	return c.JSON(http.StatusOK, messageResponse{Message: "Logged out successfully"})
}

// Me returns the identity carried by the session cookie.
//
// @Summary      Current user
// @Tags         auth
// @Produce      json
// @Success      200  {object}  authResponse
// @Failure      401  {object}  errorResponse
// @Router       /api/auth/me [get]
func (h *AuthHandler) Me(c echo.Context) error {
	id, err := h.authService.WhoAmI(c.Request().Context(), h.sessions.Token(c))
	observe("me", err)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, authResponse{User: toUserResponse(id)})
}

// Refresh re-issues the session token with a fresh expiry.
//
// @Summary      Refresh session
// @Tags         auth
// @Produce      json
// @Success      200  {object}  authResponse
// @Failure      401  {object}  errorResponse
// @Router       /api/auth/refresh [post]
func (h *AuthHandler) Refresh(c echo.Context) error {
	sess, err := h.authService.Refresh(c.Request().Context(), h.sessions.Token(c))
	observe("refresh", err)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidToken) {
			h.sessions.Clear(c)
		}
		return err
	}

	h.sessions.Set(c, sess.Token)
	return c.JSON(http.StatusOK, authResponse{User: toUserResponse(sess.Identity)})
}

// observe records the outcome of an auth operation.
func observe(operation string, err error) {
	metrics.AuthRequestsTotal.WithLabelValues(operation, outcome(err)).Inc()
}

func outcome(err error) string {
	var ve *domain.ValidationError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &ve):
		return "invalid"
	case errors.Is(err, domain.ErrInvalidCredentials),
		errors.Is(err, domain.ErrInvalidToken),
		errors.Is(err, domain.ErrUnauthenticated):
		return "unauthorized"
	case errors.Is(err, domain.ErrUserExists):
		return "conflict"
	case errors.Is(err, domain.ErrTooManyAttempts):
		return "throttled"
	default:
		return "error"
	}
}

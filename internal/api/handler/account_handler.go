package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/storefront/internal/core/ports"
)

// AccountHandler serves the routes behind the authenticated and admin guards.
type AccountHandler struct {
	users ports.UserDirectory
}

func NewAccountHandler(users ports.UserDirectory) *AccountHandler {
	return &AccountHandler{users: users}
}

// Account returns the identity the guard verified for this request.
//
// @Summary      Current account
// @Tags         account
// @Produce      json
// @Success      200  {object}  authResponse
// @Failure      302  {string}  string  "redirect to /login when not signed in"
// @Router       /api/account [get]
func (h *AccountHandler) Account(c echo.Context) error {
	id, err := ctxIdentity(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, authResponse{User: toUserResponse(id)})
}

// GetUser looks up any account by id.
//
// @Summary      Get a user (admin)
// @Tags         admin
// @Produce      json
// @Param        id   path      string  true  "User ID"
// @Success      200  {object}  accountUserResponse
// @Failure      302  {string}  string  "redirect to /login when not an admin"
// @Failure      404  {object}  errorResponse
// @Router       /api/admin/users/{id} [get]
func (h *AccountHandler) GetUser(c echo.Context) error {
	user, err := h.users.GetUser(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toAccountUserResponse(user))
}

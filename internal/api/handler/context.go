package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/99minutos/storefront/internal/api/middleware"
	"github.com/99minutos/storefront/internal/core/domain"
)

// ctxIdentity returns the identity the route guard attached to the request.
// Its absence means the handler was mounted outside a guarded route.
func ctxIdentity(c echo.Context) (domain.Identity, error) {
	if id, ok := c.Get(middleware.IdentityKey).(domain.Identity); ok {
		return id, nil
	}
	if id, ok := domain.IdentityFrom(c.Request().Context()); ok {
		return id, nil
	}
	return domain.Identity{}, domain.ErrUnauthenticated
}

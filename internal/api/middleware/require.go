package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/99minutos/storefront/internal/core/domain"
)

// Require rejects requests whose guard-attached identity lacks access. It
// backs up the route table on handler groups, so a handler never runs
// without an identity even if the table is misconfigured.
func Require(access domain.Access) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := c.Get(IdentityKey).(domain.Identity)
			if !ok || !id.Role.Can(access) {
				return domain.ErrUnauthenticated
			}
			return next(c)
		}
	}
}

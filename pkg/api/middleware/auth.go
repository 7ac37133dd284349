package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"

	apierrors "github.com/draftboardhq/draftboard-backend/pkg/api/errors"
)

// RequireUser resolves the authenticated user id forwarded by the edge
// proxy and stores it on the context for handlers. Authentication itself
// happens upstream; the API trusts X-User-ID only because the proxy strips
// it from external requests.
func RequireUser() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := c.Request().Header.Get("X-User-ID")
			if raw == "" {
				return apierrors.UnauthorizedError(c)
			}
			id, err := strconv.ParseUint(raw, 10, 32)
			if err != nil || id == 0 {
				return apierrors.UnauthorizedError(c)
			}
			c.Set("user_id", uint(id))
			return next(c)
		}
	}
}

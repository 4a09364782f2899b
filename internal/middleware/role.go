package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/productbazar/api/internal/apperr"
)

// RequireRole aborts with 403 unless the authenticated role is one of
// the allowed set. Assumes JWTAuth ran earlier in the chain.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !allowed[Role(c)] {
				return apperr.Forbidden("insufficient role")
			}
			return next(c)
		}
	}
}

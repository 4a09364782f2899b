package middleware

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/productbazar/api/internal/apperr"
)

// Context keys populated by the auth middlewares.
const (
	CtxUserID = "user_id"
	CtxRole   = "role"
)

// JWTAuth validates a Bearer access token and injects the numeric user
// ID and role claim into the request context. Protected routes read them
// back through UserID and Role.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return apperr.Unauthorized("MISSING_TOKEN", "missing bearer token")
			}
			id, role, err := parseAccessToken(strings.TrimPrefix(auth, "Bearer "), secret)
			if err != nil {
				return err
			}
			c.Set(CtxUserID, id)
			c.Set(CtxRole, role)
			return next(c)
		}
	}
}

// OptionalAuth extracts identity when a valid token is present and stays
// silent otherwise. Public routes use it so caching and analytics can
// distinguish users from guests.
func OptionalAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				if id, role, err := parseAccessToken(strings.TrimPrefix(auth, "Bearer "), secret); err == nil {
					c.Set(CtxUserID, id)
					c.Set(CtxRole, role)
				}
			}
			return next(c)
		}
	}
}

func parseAccessToken(raw, secret string) (uint64, string, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, echo.ErrUnauthorized
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		return 0, "", apperr.Unauthorized("INVALID_TOKEN", "invalid or expired token")
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return 0, "", apperr.Unauthorized("INVALID_TOKEN", "invalid claims")
	}
	sub, ok := claims["sub"].(float64)
	if !ok || sub <= 0 {
		return 0, "", apperr.Unauthorized("INVALID_TOKEN", "missing subject")
	}
	role, _ := claims["role"].(string)
	return uint64(sub), role, nil
}

// UserID returns the authenticated user's ID, or nil for guests.
func UserID(c echo.Context) *uint64 {
	if v, ok := c.Get(CtxUserID).(uint64); ok && v > 0 {
		return &v
	}
	return nil
}

// Role returns the authenticated role, empty for guests.
func Role(c echo.Context) string {
	if v, ok := c.Get(CtxRole).(string); ok {
		return v
	}
	return ""
}

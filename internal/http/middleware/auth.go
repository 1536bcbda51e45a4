package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"
)

// SharedTokenMiddleware authenticates callers using the X-Webhook-Token
// header against a single shared secret. Both the provider callback
// endpoint and the retry scheduling trigger use it.
func SharedTokenMiddleware(token string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if token == "" {
				// dev mode: no token configured, allow
				return next(c)
			}
			got := strings.TrimSpace(c.Request().Header.Get("X-Webhook-Token"))
			if got == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing token"})
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid token"})
			}
			return next(c)
		}
	}
}

package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"
)

// AccessTokenHeader carries the shared secret on intake and admin requests.
const AccessTokenHeader = "X-Access-Token"

// AccessTokenMiddleware rejects requests whose access token header does
// not match the configured token. The comparison is constant time so the
// token cannot be probed byte by byte.
func AccessTokenMiddleware(token string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			presented := c.Request().Header.Get(AccessTokenHeader)
			if presented == "" {
				return httperror.NewHTTPError(http.StatusUnauthorized, "access token required")
			}
			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				return httperror.NewHTTPError(http.StatusUnauthorized, "invalid access token")
			}
			return next(c)
		}
	}
}

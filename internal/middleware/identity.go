package middleware

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// OperatorID returns the subject of the operator JWT on the request, or
// "anon" on unauthenticated routes.
func OperatorID(c echo.Context) string {
	if s, ok := c.Get("user_id").(string); ok && s != "" {
		return s
	}
	if tok, ok := c.Get("user").(*jwt.Token); ok {
		if sub, err := tok.Claims.GetSubject(); err == nil && sub != "" {
			return sub
		}
	}
	return "anon"
}

// Package router registers the HTTP routes of the access service.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ppv-access/internal/handler"
	"github.com/iliyamo/ppv-access/internal/middleware"
)

// RegisterRoutes registers routes that need no authentication or limits.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAccess registers the viewer endpoints behind the rate limiter.
func RegisterAccess(e *echo.Echo, a *handler.AccessHandler, limit echo.MiddlewareFunc) {
	e.POST("/geo-check", a.GeoCheck, limit)

	g := e.Group("/session", limit)
	g.POST("/verify", a.Verify)
	g.POST("/heartbeat", a.Heartbeat)
	g.POST("/validate", a.ValidateSession)
}

// RegisterPublic registers the cached public stream listing.
func RegisterPublic(e *echo.Echo, p *handler.PublicHandler, cache echo.MiddlewareFunc) {
	e.GET("/v1/events/:id/streams", p.GetEventStreams, cache)
}

// RegisterAdmin registers operator routes.  Every route requires an HS256
// JWT carrying role ADMIN.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler, jwtSecret string) {
	g := e.Group("/v1/admin")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireRole(middleware.RoleAdmin))

	g.GET("/events/:id/streams", h.ListStreams)
	g.POST("/events/:id/streams", h.AddStream)
	g.POST("/events/:id/streams/convert", h.ConvertStreams)
	g.PUT("/streams/:id/default", h.SetDefaultStream)
	g.PUT("/streams/:id/enabled", h.SetStreamEnabled)
	g.DELETE("/streams/:id", h.RemoveStream)

	g.POST("/events/:id/bypass", h.IssueBypass)
	g.POST("/events/:id/bypass/rotate", h.RotateBypass)
	g.DELETE("/events/:id/bypass", h.RevokeBypass)

	g.PUT("/events/:id/geo", h.UpdateGeo)
}

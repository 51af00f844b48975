// Package router registers the HTTP routes and their middleware.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/homestay-reservation/internal/handler"
)

// RegisterRoutes registers the unauthenticated operational routes.
func RegisterRoutes(e *echo.Echo, h *handler.HealthHandler) {
	e.GET("/healthz", h.Health)
}

// RegisterPublic registers the guest-facing availability queries.  cache
// wraps them with the Redis response cache; they take no locks.
func RegisterPublic(e *echo.Echo, a *handler.AvailabilityHandler, cache echo.MiddlewareFunc) {
	g := e.Group("/v1", cache)
	g.GET("/rooms/:id/availability", a.Room)
	g.GET("/branches/:id/availability", a.Branch)
}

package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/homestay-reservation/internal/handler"
	"github.com/iliyamo/homestay-reservation/internal/middleware"
)

// RegisterCustomer registers the routes open to customers and staff.  All
// require a valid JWT; writes also pass the rate limiter.
func RegisterCustomer(e *echo.Echo, h *handler.ReservationHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleCustomer, middleware.RoleStaff),
	)
	g.POST("/reservations", h.Create, limit)
	g.GET("/reservations/:id", h.Get)
	g.DELETE("/reservations/:id", h.Cancel, limit)
}

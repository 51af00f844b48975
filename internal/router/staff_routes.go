package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/homestay-reservation/internal/handler"
	"github.com/iliyamo/homestay-reservation/internal/middleware"
)

// RegisterStaff registers branch staff operations: recording payments,
// closing stays and the branch booking list.
func RegisterStaff(e *echo.Echo, h *handler.ReservationHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleStaff),
	)
	g.POST("/reservations/:id/confirm-payment", h.ConfirmPayment, limit)
	g.POST("/reservations/:id/complete", h.Complete, limit)
	g.GET("/branches/:id/reservations", h.ListByBranch)
}

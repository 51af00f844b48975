package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/homestay-reservation/internal/model"
	"github.com/iliyamo/homestay-reservation/internal/service"
)

// AvailabilityHandler serves the public, lock-free availability queries.
// Answers are advisory: a booking is re-checked under the room lock.
type AvailabilityHandler struct {
	svc *service.BookingService
	log *slog.Logger
}

// NewAvailabilityHandler panics if svc is nil.
func NewAvailabilityHandler(svc *service.BookingService, log *slog.Logger) *AvailabilityHandler {
	if svc == nil {
		panic("nil booking service passed to NewAvailabilityHandler")
	}
	if log == nil {
		log = slog.Default()
	}
	return &AvailabilityHandler{svc: svc, log: log}
}

func stayFromQuery(c echo.Context) (model.Interval, error) {
	return model.ParseInterval(c.QueryParam("check_in"), c.QueryParam("check_out"))
}

// Room handles GET /v1/rooms/:id/availability?check_in=&check_out=.
func (h *AvailabilityHandler) Room(c echo.Context) error {
	stay, err := stayFromQuery(c)
	if err != nil {
		return writeError(c, h.log, err)
	}
	roomID := c.Param("id")
	free, err := h.svc.IsAvailable(c.Request().Context(), roomID, stay, "")
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"room_id":   roomID,
		"check_in":  stay.CheckIn.Format(model.DateLayout),
		"check_out": stay.CheckOut.Format(model.DateLayout),
		"nights":    stay.Nights(),
		"available": free,
	})
}

// Branch handles GET /v1/branches/:id/availability?check_in=&check_out=&guests=.
// It lists the rooms that can hold guests and are free for the stay.
func (h *AvailabilityHandler) Branch(c echo.Context) error {
	stay, err := stayFromQuery(c)
	if err != nil {
		return writeError(c, h.log, err)
	}
	guests := 1
	if v := c.QueryParam("guests"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return errorJSON(c, http.StatusBadRequest, codeValidation, "guests must be a positive integer")
		}
		guests = n
	}
	rooms, err := h.svc.SearchAvailability(c.Request().Context(), c.Param("id"), stay, guests)
	if err != nil {
		return writeError(c, h.log, err)
	}
	out := make([]roomView, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, newRoomView(r, stay))
	}
	return c.JSON(http.StatusOK, echo.Map{
		"branch_id": c.Param("id"),
		"check_in":  stay.CheckIn.Format(model.DateLayout),
		"check_out": stay.CheckOut.Format(model.DateLayout),
		"guests":    guests,
		"rooms":     out,
	})
}

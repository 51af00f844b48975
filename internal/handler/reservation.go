package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/homestay-reservation/internal/model"
	"github.com/iliyamo/homestay-reservation/internal/service"
)

// ReservationHandler exposes the booking engine over HTTP.  Routes are
// protected by JWTAuth and RequireRole in the router; the handler itself
// only translates between JSON and service calls.
type ReservationHandler struct {
	svc *service.BookingService
	log *slog.Logger
}

// NewReservationHandler panics if svc is nil.
func NewReservationHandler(svc *service.BookingService, log *slog.Logger) *ReservationHandler {
	if svc == nil {
		panic("nil booking service passed to NewReservationHandler")
	}
	if log == nil {
		log = slog.Default()
	}
	return &ReservationHandler{svc: svc, log: log}
}

type createLineRequest struct {
	RoomID   string `json:"room_id"`
	CheckIn  string `json:"check_in"`
	CheckOut string `json:"check_out"`
	Adults   int    `json:"adults"`
	Children int    `json:"children"`
}

type createReservationRequest struct {
	BranchID      string              `json:"branch_id"`
	Customer      customerView        `json:"customer"`
	PaymentMethod string              `json:"payment_method"`
	Lines         []createLineRequest `json:"lines"`
}

// Create handles POST /v1/reservations.  It returns 201 with the new
// reservation, 400 for invalid input, 409 dates_unavailable when a room is
// taken and 503 with Retry-After when a room lock is contended.
func (h *ReservationHandler) Create(c echo.Context) error {
	var body createReservationRequest
	if err := c.Bind(&body); err != nil {
		return errorJSON(c, http.StatusBadRequest, codeValidation, "invalid request body")
	}
	in := service.CreateReservationInput{
		BranchID:      body.BranchID,
		Customer:      model.Customer{Name: body.Customer.Name, Email: body.Customer.Email, Phone: body.Customer.Phone},
		PaymentMethod: model.PaymentMethod(strings.ToUpper(strings.TrimSpace(body.PaymentMethod))),
		Lines:         make([]service.LineInput, 0, len(body.Lines)),
	}
	for i, l := range body.Lines {
		stay, err := model.ParseInterval(l.CheckIn, l.CheckOut)
		if err != nil {
			return errorJSON(c, http.StatusBadRequest, codeValidation,
				"line "+strconv.Itoa(i+1)+": "+message(err, model.ErrValidation))
		}
		in.Lines = append(in.Lines, service.LineInput{
			RoomID:   l.RoomID,
			Stay:     stay,
			Adults:   l.Adults,
			Children: l.Children,
		})
	}

	res, err := h.svc.CreateReservation(c.Request().Context(), in)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, newReservationView(res))
}

// Get handles GET /v1/reservations/:id.  Soft deleted reservations are
// returned with is_deleted set.
func (h *ReservationHandler) Get(c echo.Context) error {
	res, err := h.svc.GetReservation(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, newReservationView(res))
}

// Cancel handles DELETE /v1/reservations/:id.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	res, err := h.svc.CancelReservation(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, newReservationView(res))
}

// ConfirmPayment handles POST /v1/reservations/:id/confirm-payment.  The
// optional body {"payment_method": "..."} must match the booking's method.
func (h *ReservationHandler) ConfirmPayment(c echo.Context) error {
	var body struct {
		PaymentMethod string `json:"payment_method"`
	}
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&body); err != nil {
			return errorJSON(c, http.StatusBadRequest, codeValidation, "invalid request body")
		}
	}
	method := model.PaymentMethod(strings.ToUpper(strings.TrimSpace(body.PaymentMethod)))
	if method != "" && !method.Valid() {
		return errorJSON(c, http.StatusBadRequest, codeValidation, "unsupported payment method")
	}
	res, err := h.svc.ConfirmPayment(c.Request().Context(), c.Param("id"), method)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, newReservationView(res))
}

// Complete handles POST /v1/reservations/:id/complete.
func (h *ReservationHandler) Complete(c echo.Context) error {
	res, err := h.svc.CompleteReservation(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, newReservationView(res))
}

// ListByBranch handles GET /v1/branches/:id/reservations.  Only active
// bookings are listed; include_deleted=true adds ABORTED ones, soft deleted
// or not, for audit.
func (h *ReservationHandler) ListByBranch(c echo.Context) error {
	withHistory := false
	if v := c.QueryParam("include_deleted"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errorJSON(c, http.StatusBadRequest, codeValidation, "include_deleted must be a boolean")
		}
		withHistory = b
	}
	list, err := h.svc.ListBranchReservations(c.Request().Context(), c.Param("id"), withHistory)
	if err != nil {
		return writeError(c, h.log, err)
	}
	out := make([]reservationView, 0, len(list))
	for i := range list {
		out = append(out, newReservationView(&list[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": out, "count": len(out)})
}

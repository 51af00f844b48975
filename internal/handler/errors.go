package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/homestay-reservation/internal/model"
)

// Machine readable error codes returned next to the human message.
const (
	codeValidation       = "validation_error"
	codeDatesUnavailable = "dates_unavailable"
	codeBusy             = "room_busy"
	codeAlreadyFinalized = "already_finalized"
	codeNotFound         = "not_found"
	codeInternal         = "internal_error"
)

// retryAfterSeconds is sent with 503 when a room lock could not be taken.
const retryAfterSeconds = "1"

func errorJSON(c echo.Context, status int, code, msg string) error {
	return c.JSON(status, echo.Map{"error": msg, "code": code})
}

// writeError maps engine errors onto HTTP responses.  Anything not in the
// error taxonomy is logged and reported as a bare 500.
func writeError(c echo.Context, log *slog.Logger, err error) error {
	switch {
	case errors.Is(err, model.ErrValidation):
		return errorJSON(c, http.StatusBadRequest, codeValidation, message(err, model.ErrValidation))
	case errors.Is(err, model.ErrConflict):
		return errorJSON(c, http.StatusConflict, codeDatesUnavailable, message(err, model.ErrConflict))
	case errors.Is(err, model.ErrBusy):
		c.Response().Header().Set("Retry-After", retryAfterSeconds)
		return errorJSON(c, http.StatusServiceUnavailable, codeBusy, "room is busy, retry shortly")
	// Soft deleted bookings match both; they are finalised, not missing.
	case errors.Is(err, model.ErrInvalidTransition):
		return errorJSON(c, http.StatusConflict, codeAlreadyFinalized, message(err, model.ErrInvalidTransition))
	case errors.Is(err, model.ErrNotFound):
		return errorJSON(c, http.StatusNotFound, codeNotFound, err.Error())
	}
	log.ErrorContext(c.Request().Context(), "request failed",
		"route", c.Path(), "request_id", c.Response().Header().Get(echo.HeaderXRequestID), "error", err)
	return errorJSON(c, http.StatusInternalServerError, codeInternal, "internal error")
}

// message drops everything up to and including the sentinel's text, so
// "line 1: validation error: adults required" becomes "adults required".
func message(err, sentinel error) string {
	msg := err.Error()
	marker := sentinel.Error() + ": "
	if i := strings.LastIndex(msg, marker); i >= 0 {
		return msg[i+len(marker):]
	}
	return msg
}

package middleware

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
)

// NewSlogLogger returns a middleware that logs each request as one
// structured line via log.  It records method, route, path, status,
// duration and the request ID set by echo's RequestID middleware, so wire
// it after that one.
func NewSlogLogger(log *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				// Let echo write the error response so the status is final.
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()
			attrs := []any{
				"method", req.Method,
				"route", c.Path(),
				"path", req.URL.Path,
				"status", res.Status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", res.Header().Get(echo.HeaderXRequestID),
			}
			if s := Subject(c); s != "" {
				attrs = append(attrs, "subject", s)
			}
			switch {
			case res.Status >= 500:
				log.ErrorContext(req.Context(), "request", attrs...)
			case res.Status >= 400:
				log.WarnContext(req.Context(), "request", attrs...)
			default:
				log.InfoContext(req.Context(), "request", attrs...)
			}
			return nil
		}
	}
}

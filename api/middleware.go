package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/itsneelabh/storefront/checkout"
	"github.com/itsneelabh/storefront/core"
)

// requestLogger logs errors and slow requests, or every request when all is
// set.
func requestLogger(logger core.Logger, all bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			duration := time.Since(start)

			req, status := c.Request(), c.Response().Status
			if !all && status < 400 && duration <= time.Second {
				return nil
			}
			fields := map[string]interface{}{
				"method":      req.Method,
				"path":        c.Path(),
				"status":      status,
				"duration_ms": duration.Milliseconds(),
				"remote_addr": c.RealIP(),
				"user_agent":  req.UserAgent(),
			}
			if req.URL.RawQuery != "" {
				fields["query"] = req.URL.RawQuery
			}

			switch {
			case status >= 500:
				logger.Error("HTTP request error", fields)
			case status >= 400:
				logger.Warn("HTTP request client error", fields)
			case duration > time.Second:
				logger.Warn("HTTP request slow", fields)
			default:
				logger.Info("HTTP request", fields)
			}
			return nil
		}
	}
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error  string                `json:"error"`
	Fields []checkout.FieldError `json:"fields,omitempty"`
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he.Code
	case errors.Is(err, core.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrEmptyCart), errors.Is(err, core.ErrNotConfirmed):
		return http.StatusConflict
	case core.IsRetryable(err), errors.Is(err, core.ErrMaxRetriesExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status := statusFor(err)
	body := errorBody{Error: err.Error()}

	var he *echo.HTTPError
	var verrs checkout.ValidationErrors
	switch {
	case errors.As(err, &he):
		body.Error = http.StatusText(he.Code)
		if msg, ok := he.Message.(string); ok {
			body.Error = msg
		}
	case errors.As(err, &verrs):
		body.Error = verrs.First()
		body.Fields = verrs
	case status == http.StatusInternalServerError:
		s.logger.Error("Request failed", map[string]interface{}{
			"path":  c.Path(),
			"error": err.Error(),
		})
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = c.JSON(status, body)
}

package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicsched/clinic/internal/platform/apperr"
)

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorHandler renders errors returned by handlers and middleware. Business
// errors keep their code and message. Persistence and unknown errors are
// logged with their cause and answered with a generic message only.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		rid, _ := c.Get("request_id").(string)
		status, body := errorResponse(err)
		body.RequestID = rid

		if status >= http.StatusInternalServerError {
			logger.Error().Err(err).Str("request_id", rid).Str("path", c.Path()).Msg("request failed")
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, body)
		}
		if werr != nil {
			logger.Error().Err(werr).Str("request_id", rid).Msg("write error response")
		}
	}
}

func errorResponse(err error) (int, ErrorResponse) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if he.Code >= http.StatusInternalServerError {
			return he.Code, ErrorResponse{Code: "internal_error", Message: apperr.GenericPersistenceMessage}
		}
		msg, ok := he.Message.(string)
		if !ok {
			msg = http.StatusText(he.Code)
		}
		return he.Code, ErrorResponse{Code: httpCode(he.Code), Message: msg}
	}

	code, msg := apperr.Public(err)
	return apperr.HTTPStatus(apperr.KindOf(err)), ErrorResponse{Code: code, Message: msg}
}

// httpCode names router-level failures such as unknown routes or bad methods.
func httpCode(status int) string {
	switch status {
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusRequestEntityTooLarge:
		return "payload_too_large"
	case http.StatusUnauthorized:
		return "unauthenticated"
	case http.StatusForbidden:
		return "forbidden"
	default:
		return "bad_request"
	}
}

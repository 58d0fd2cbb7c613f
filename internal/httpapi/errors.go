package httpapi

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"task-manager/internal/apperr"
)

const redactedMessage = "internal server error"

// errorBody is the JSON shape of every error reply.
type errorBody struct {
	Error  string   `json:"error"`
	Code   string   `json:"code"`
	Fields []string `json:"fields,omitempty"`
}

// errorHandler replaces echo's default so service errors and router errors
// share one JSON shape. Internal messages never reach the client.
func errorHandler(log *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := describe(err)
		if status >= http.StatusInternalServerError {
			log.ErrorContext(c.Request().Context(), "request failed",
				"method", c.Request().Method,
				"path", c.Path(),
				"error", err,
			)
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(status)
		} else {
			writeErr = c.JSON(status, body)
		}
		if writeErr != nil {
			log.WarnContext(c.Request().Context(), "write error response", "error", writeErr)
		}
	}
}

func describe(err error) (int, errorBody) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, errorBody{Error: fmt.Sprint(he.Message), Code: textCodeFor(he.Code)}
	}

	rich := apperr.Normalize(err)
	body := errorBody{Error: rich.Message, Code: rich.TextCode, Fields: apperr.Fields(err)}
	if rich.Code >= http.StatusInternalServerError {
		body.Error = redactedMessage
		body.Fields = nil
	}
	return rich.Code, body
}

func textCodeFor(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return apperr.TextValidation
	case http.StatusUnauthorized:
		return apperr.TextUnauthenticated
	case http.StatusForbidden:
		return apperr.TextForbidden
	case http.StatusNotFound:
		return apperr.TextNotFound
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case http.StatusConflict:
		return apperr.TextConflict
	default:
		return apperr.TextInternal
	}
}

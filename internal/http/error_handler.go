package http

import (
	"errors"
	"fmt"
	"net/http"

	"key-service/internal/http/middleware"
	apperrors "key-service/pkg/errors"

	"github.com/labstack/echo/v4"
)

const (
	jsonKeyError     = "error"
	jsonKeyCode      = "code"
	jsonKeyRequestID = "request_id"
	unknownRequestID = "unknown"
)

type errorMapping struct {
	sentinel error
	status   int
	message  string
}

// errorMappings is checked in order; the first matching sentinel wins.
var errorMappings = []errorMapping{
	{apperrors.ErrNotFound, http.StatusNotFound, "Resource not found"},
	{apperrors.ErrConflict, http.StatusConflict, "Resource conflict"},
	{apperrors.ErrInvalidState, http.StatusUnprocessableEntity, "Invalid state transition"},
	{apperrors.ErrExpiredProof, http.StatusGone, "Proof token expired"},
	{apperrors.ErrMalformedProof, http.StatusBadRequest, "Malformed proof token"},
	{apperrors.ErrProofMismatch, http.StatusBadRequest, "Proof token does not match"},
	{apperrors.ErrValidation, http.StatusBadRequest, "Validation error"},
	{apperrors.ErrBadRequest, http.StatusBadRequest, "Bad request"},
	{apperrors.ErrPermission, http.StatusForbidden, "Permission denied"},
	{apperrors.ErrForbidden, http.StatusForbidden, "Forbidden"},
	{apperrors.ErrUnauthorized, http.StatusUnauthorized, "Unauthorized"},
}

// StatusFor returns the HTTP status and generic message for err.
func StatusFor(err error) (int, string) {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code, fmt.Sprintf("%v", httpErr.Message)
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.sentinel) {
			return m.status, m.message
		}
	}
	return http.StatusInternalServerError, "Internal server error"
}

// CustomHTTPErrorHandler handles all errors returned by handlers and middleware.
// It maps sentinel errors to HTTP status codes, hides internal errors and
// logs every failure with its request ID.
func CustomHTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code, message := StatusFor(err)

	body := map[string]interface{}{}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && code < http.StatusInternalServerError {
		message = appErr.Message
		body[jsonKeyCode] = appErr.Code
	}

	requestID := middleware.GetRequestID(c)
	if requestID == "" {
		requestID = unknownRequestID
	}

	if code >= http.StatusInternalServerError {
		c.Logger().Error("internal_server_error",
			"request_id", requestID,
			"status", code,
			"error", err.Error())
		message = "Internal server error"
		delete(body, jsonKeyCode)
	} else {
		c.Logger().Warn("client_error",
			"request_id", requestID,
			"status", code,
			"error", err.Error())
	}

	body[jsonKeyError] = message
	body[jsonKeyRequestID] = requestID

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, body)
	}
	if err != nil {
		c.Logger().Error(err)
	}
}

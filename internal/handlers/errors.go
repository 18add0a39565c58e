// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"codeberg.org/oliverandrich/qr-checkin/internal/i18n"
	"codeberg.org/oliverandrich/qr-checkin/internal/services/auth"
	"codeberg.org/oliverandrich/qr-checkin/internal/services/qrcode"
	"codeberg.org/oliverandrich/qr-checkin/internal/services/registration"
	"codeberg.org/oliverandrich/qr-checkin/internal/services/verification"
	"github.com/labstack/echo/v4"
)

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}

// apiError writes a localized error body for the message ID code.
func apiError(c echo.Context, status int, code string) error {
	return c.JSON(status, ErrorResponse{
		Error: i18n.T(c.Request().Context(), code),
		Code:  code,
	})
}

// errorStatus maps a service error to its status code and message ID.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, verification.ErrMissingToken):
		return http.StatusBadRequest, "error_missing_qr_data"
	case errors.Is(err, verification.ErrMissingVerifier):
		return http.StatusUnauthorized, "error_unauthorized"
	case errors.Is(err, verification.ErrUnknownToken):
		return http.StatusNotFound, "error_unknown_token"
	case errors.Is(err, verification.ErrAlreadyConsumed):
		return http.StatusConflict, "error_already_consumed"
	case errors.Is(err, qrcode.ErrNoCode):
		return http.StatusUnprocessableEntity, "error_no_qr_in_image"
	case errors.Is(err, qrcode.ErrInvalidImage):
		return http.StatusBadRequest, "error_invalid_image"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "error_invalid_credentials"
	default:
		return http.StatusInternalServerError, "error_internal"
	}
}

// serviceError writes the response for err, logging unexpected failures.
func serviceError(c echo.Context, err error) error {
	var verr *registration.ValidationError
	if errors.As(err, &verr) {
		return validationError(c, verr)
	}

	status, code := errorStatus(err)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(c.Request().Context(), "request_failed",
			"path", c.Path(),
			"error", err,
		)
	}
	return apiError(c, status, code)
}

func validationError(c echo.Context, verr *registration.ValidationError) error {
	status := http.StatusBadRequest
	if verr.Conflict {
		status = http.StatusConflict
	}
	return c.JSON(status, ErrorResponse{
		Error: i18n.TData(c.Request().Context(), verr.Code, map[string]any{"Field": verr.Field}),
		Code:  verr.Code,
		Field: verr.Field,
	})
}

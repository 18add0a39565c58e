// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"net/http"
	"time"

	"codeberg.org/oliverandrich/qr-checkin/internal/i18n"
	"codeberg.org/oliverandrich/qr-checkin/internal/models"
	"codeberg.org/oliverandrich/qr-checkin/internal/services/issuance"
	"codeberg.org/oliverandrich/qr-checkin/internal/services/registration"
	"codeberg.org/oliverandrich/qr-checkin/internal/services/verification"
	"github.com/labstack/echo/v4"
)

// maxScanBytes bounds uploaded scan images.
const maxScanBytes = 10 << 20

// CheckInHandlers contains the staff registration and check-in handlers.
type CheckInHandlers struct {
	registration  *registration.Service
	verification  *verification.Service
	maxPhotoBytes int64
}

// NewCheckIn creates a new CheckInHandlers instance.
func NewCheckIn(reg *registration.Service, ver *verification.Service, maxPhotoBytes int64) *CheckInHandlers {
	return &CheckInHandlers{
		registration:  reg,
		verification:  ver,
		maxPhotoBytes: maxPhotoBytes,
	}
}

// RegisterRequest is the registration body, as JSON or multipart form.
type RegisterRequest struct {
	Username    string `json:"username" form:"username"`
	Email       string `json:"email" form:"email"`
	PhoneNumber string `json:"phone_number" form:"phone_number"`
	Designation string `json:"designation" form:"designation"`
}

// Register enrolls a participant and mails their QR code. A participant
// whose mail failed is still registered and answered with 202.
func (h *CheckInHandlers) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return apiError(c, http.StatusBadRequest, "error_invalid_request")
	}

	in := registration.Input{
		Username:    req.Username,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		Designation: req.Designation,
	}
	if staff := currentStaff(c); staff != nil {
		in.RegisteredBy = &staff.ID
	}

	if isMultipart(c) {
		photo, err := readUpload(c, "user_image", h.maxPhotoBytes)
		if errors.Is(err, errUploadTooLarge) {
			return validationError(c, &registration.ValidationError{Field: "user_image", Code: registration.CodePhotoSize})
		}
		if err != nil {
			return apiError(c, http.StatusBadRequest, "error_invalid_request")
		}
		in.Photo = photo
	}

	ctx := c.Request().Context()
	res, err := h.registration.Register(ctx, in)
	if errors.Is(err, issuance.ErrDeliveryFailedButIssued) {
		return c.JSON(http.StatusAccepted, map[string]any{
			"message":         i18n.T(ctx, "registration_delivery_failed"),
			"user":            res.Participant,
			"token":           newTokenRef(res.Issuance.Token),
			"delivery_failed": true,
		})
	}
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(http.StatusCreated, map[string]any{
		"message": i18n.TData(ctx, "registration_success", map[string]any{"Email": res.Participant.Email}),
		"user":    res.Participant,
	})
}

// TokenRef identifies an issued token whose QR code still has to reach
// the participant. QRPath serves the image to signed-in staff.
type TokenRef struct {
	IssuedAt   time.Time `json:"issued_at"`
	TokenValue string    `json:"token_value"`
	QRPath     string    `json:"qr_path"`
	ID         int64     `json:"id"`
}

func newTokenRef(tok *models.IssuedToken) TokenRef {
	return TokenRef{
		ID:         tok.ID,
		TokenValue: tok.TokenValue,
		IssuedAt:   tok.IssuedAt,
		QRPath:     tok.QRPath(),
	}
}

// VerifyRequest is the body of a scan submission.
type VerifyRequest struct {
	QRCodeData string `json:"qr_code_data" form:"qr_code_data"`
}

// Verify checks a participant in with the scanned token value.
func (h *CheckInHandlers) Verify(c echo.Context) error {
	var req VerifyRequest
	if err := c.Bind(&req); err != nil {
		return apiError(c, http.StatusBadRequest, "error_invalid_request")
	}

	identity, err := h.verification.Verify(c.Request().Context(), req.QRCodeData, verifierID(c))
	if err != nil {
		return serviceError(c, err)
	}
	return h.verified(c, identity)
}

// VerifyImage checks a participant in from an uploaded picture of the code.
func (h *CheckInHandlers) VerifyImage(c echo.Context) error {
	data, err := readUpload(c, "image", maxScanBytes)
	if err != nil || len(data) == 0 {
		return apiError(c, http.StatusBadRequest, "error_invalid_image")
	}

	identity, err := h.verification.VerifyImage(c.Request().Context(), data, verifierID(c))
	if err != nil {
		return serviceError(c, err)
	}
	return h.verified(c, identity)
}

func (h *CheckInHandlers) verified(c echo.Context, identity *verification.OwnerIdentity) error {
	return c.JSON(http.StatusOK, map[string]any{
		"message": i18n.TData(c.Request().Context(), "verification_success", map[string]any{"Username": identity.Username}),
		"user":    identity,
	})
}

// TokenStatus returns a token's state and owner without consuming it.
func (h *CheckInHandlers) TokenStatus(c echo.Context) error {
	status, err := h.verification.Lookup(c.Request().Context(), c.Param("token"))
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, status)
}

// TokenQR returns the stored QR image of a token.
func (h *CheckInHandlers) TokenQR(c echo.Context) error {
	status, err := h.verification.Lookup(c.Request().Context(), c.Param("token"))
	if err != nil {
		return serviceError(c, err)
	}
	if len(status.Token.QRPNG) == 0 {
		return apiError(c, http.StatusNotFound, "error_unknown_token")
	}
	c.Response().Header().Set("Cache-Control", "no-store")
	return c.Blob(http.StatusOK, "image/png", status.Token.QRPNG)
}

func verifierID(c echo.Context) string {
	if staff := currentStaff(c); staff != nil {
		return staff.VerifierID()
	}
	return ""
}

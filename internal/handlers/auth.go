// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"codeberg.org/oliverandrich/qr-checkin/internal/i18n"
	"codeberg.org/oliverandrich/qr-checkin/internal/models"
	"codeberg.org/oliverandrich/qr-checkin/internal/services/auth"
	"codeberg.org/oliverandrich/qr-checkin/internal/services/session"
	"github.com/labstack/echo/v4"
)

// AuthHandlers contains handlers for staff sign-in.
type AuthHandlers struct {
	auth     *auth.Service
	sessions *session.Manager
}

// NewAuth creates a new AuthHandlers instance.
func NewAuth(authSvc *auth.Service, sessions *session.Manager) *AuthHandlers {
	return &AuthHandlers{auth: authSvc, sessions: sessions}
}

// LoginRequest is the request body for signing in.
type LoginRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// StaffResponse is the public view of a staff member.
type StaffResponse struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Role     string `json:"role"`
	ID       int64  `json:"id"`
}

func staffResponse(s *models.Staff) StaffResponse {
	return StaffResponse{ID: s.ID, Email: s.Email, Username: s.Username, Role: s.Role}
}

// Login checks staff credentials and sets the session cookie.
func (h *AuthHandlers) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return apiError(c, http.StatusBadRequest, "error_invalid_request")
	}
	if req.Email == "" || req.Password == "" {
		return apiError(c, http.StatusBadRequest, "error_invalid_credentials")
	}

	staff, err := h.auth.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return serviceError(c, err)
	}

	cookie, err := h.sessions.Create(staff.ID, staff.Username)
	if err != nil {
		return serviceError(c, err)
	}
	c.SetCookie(cookie)

	return c.JSON(http.StatusOK, map[string]any{
		"message": i18n.T(c.Request().Context(), "login_success"),
		"user":    staffResponse(staff),
	})
}

// Logout clears the session cookie.
func (h *AuthHandlers) Logout(c echo.Context) error {
	c.SetCookie(h.sessions.Clear())
	return c.JSON(http.StatusOK, map[string]string{
		"message": i18n.T(c.Request().Context(), "logout_success"),
	})
}

// Me returns the signed-in staff member.
func (h *AuthHandlers) Me(c echo.Context) error {
	staff := currentStaff(c)
	if staff == nil {
		return apiError(c, http.StatusUnauthorized, "error_unauthorized")
	}
	return c.JSON(http.StatusOK, staffResponse(staff))
}

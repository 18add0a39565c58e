// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"codeberg.org/oliverandrich/qr-checkin/internal/models"
	"codeberg.org/oliverandrich/qr-checkin/internal/repository"
	"codeberg.org/oliverandrich/qr-checkin/internal/sse"
	"github.com/labstack/echo/v4"
)

// AdminHandlers contains handlers restricted to admin staff.
type AdminHandlers struct {
	repo *repository.Repository
	hub  *sse.Hub
}

// NewAdmin creates a new AdminHandlers instance.
func NewAdmin(repo *repository.Repository, hub *sse.Hub) *AdminHandlers {
	return &AdminHandlers{repo: repo, hub: hub}
}

// StatsResponse summarizes check-in progress.
type StatsResponse struct {
	Issued           int64 `json:"issued"`
	CheckedIn        int64 `json:"checked_in"`
	Outstanding      int64 `json:"outstanding"`
	ConnectedStaff   int   `json:"connected_staff"`
	ConnectedDevices int   `json:"connected_devices"`
	ConnectedFeeds   int   `json:"connected_feeds"`
}

// Stats reports token counts and live feed connections.
func (h *AdminHandlers) Stats(c echo.Context) error {
	ctx := c.Request().Context()

	total, err := h.repo.CountIssuedTokens(ctx, "")
	if err != nil {
		return serviceError(c, err)
	}
	consumed, err := h.repo.CountIssuedTokens(ctx, models.TokenConsumed)
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(http.StatusOK, StatsResponse{
		Issued:           total,
		CheckedIn:        consumed,
		Outstanding:      total - consumed,
		ConnectedStaff:   h.hub.StaffCount(),
		ConnectedDevices: h.hub.SessionCount(),
		ConnectedFeeds:   h.hub.ClientCount(),
	})
}

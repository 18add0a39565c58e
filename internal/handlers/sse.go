// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"
	"time"

	"codeberg.org/oliverandrich/qr-checkin/internal/appcontext"
	"codeberg.org/oliverandrich/qr-checkin/internal/sse"
	"github.com/labstack/echo/v4"
)

// heartbeatInterval keeps idle feeds open through proxies.
const heartbeatInterval = 30 * time.Second

// SSEHandler streams the live check-in feed.
type SSEHandler struct {
	hub       *sse.Hub
	heartbeat time.Duration
}

// NewSSEHandler creates a new SSE handler.
func NewSSEHandler(hub *sse.Hub) *SSEHandler {
	return &SSEHandler{hub: hub, heartbeat: heartbeatInterval}
}

// Events handles the SSE connection endpoint.
func (h *SSEHandler) Events(c echo.Context) error {
	cc := appcontext.From(c)
	if cc == nil || cc.Staff == nil || cc.SessionID() == "" {
		return apiError(c, http.StatusUnauthorized, "error_unauthorized")
	}

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)

	sessionID := cc.SessionID()
	staffID := cc.Staff.ID
	ch := h.hub.Register(sessionID, staffID)
	defer h.hub.Unregister(sessionID, staffID, ch)

	if _, err := w.Write([]byte(sse.FormatEvent(sse.EventConnected, "ok"))); err != nil {
		return nil
	}
	w.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := w.Write([]byte(sse.Heartbeat)); err != nil {
				return nil // Client disconnected
			}
			w.Flush()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if _, err := w.Write([]byte(msg)); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}

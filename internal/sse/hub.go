// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package sse

import (
	"sync"

	"github.com/samber/lo"
)

// client is one connected feed, bound to the staff member who opened it.
type client struct {
	ch      chan string
	staffID int64
}

// Hub fans check-in events out to connected staff devices. Several tabs
// on one device share a session ID; one staff member may have several
// sessions.
type Hub struct {
	clients       map[string][]client
	staffSessions map[int64][]string
	mu            sync.RWMutex
}

// NewHub creates a new SSE hub.
func NewHub() *Hub {
	return &Hub{
		clients:       make(map[string][]client),
		staffSessions: make(map[int64][]string),
	}
}

// Register adds a new client channel for the given session and staff member.
// Returns the channel to receive events on.
func (h *Hub) Register(sessionID string, staffID int64) chan string {
	ch := make(chan string, 16) // buffered to prevent blocking

	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[sessionID] = append(h.clients[sessionID], client{ch: ch, staffID: staffID})

	if !lo.Contains(h.staffSessions[staffID], sessionID) {
		h.staffSessions[staffID] = append(h.staffSessions[staffID], sessionID)
	}

	return ch
}

// Unregister removes and closes a client channel.
func (h *Hub) Unregister(sessionID string, staffID int64, ch chan string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[sessionID] = lo.Filter(h.clients[sessionID], func(c client, _ int) bool {
		return c.ch != ch
	})

	if len(h.clients[sessionID]) == 0 {
		delete(h.clients, sessionID)

		h.staffSessions[staffID] = lo.Without(h.staffSessions[staffID], sessionID)
		if len(h.staffSessions[staffID]) == 0 {
			delete(h.staffSessions, staffID)
		}
	}

	close(ch)
}

// SendToStaff sends a message to every session of one staff member.
func (h *Hub) SendToStaff(staffID int64, message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sessionID := range h.staffSessions[staffID] {
		for _, c := range h.clients[sessionID] {
			trySend(c.ch, message)
		}
	}
}

// Broadcast sends a message to all connected clients.
func (h *Hub) Broadcast(message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, clients := range h.clients {
		for _, c := range clients {
			trySend(c.ch, message)
		}
	}
}

// Publish encodes payload as a named JSON event and broadcasts it.
func (h *Hub) Publish(eventName string, payload any) error {
	msg, err := FormatJSONEvent(eventName, payload)
	if err != nil {
		return err
	}
	h.Broadcast(msg)
	return nil
}

// PublishToStaff encodes payload as a named JSON event and sends it to
// every session of one staff member.
func (h *Hub) PublishToStaff(staffID int64, eventName string, payload any) error {
	msg, err := FormatJSONEvent(eventName, payload)
	if err != nil {
		return err
	}
	h.SendToStaff(staffID, msg)
	return nil
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return lo.SumBy(lo.Values(h.clients), func(clients []client) int {
		return len(clients)
	})
}

// SessionCount returns the number of unique sessions with active connections.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

// StaffCount returns the number of staff members with active connections.
func (h *Hub) StaffCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.staffSessions)
}

// trySend drops the message when the client is not keeping up.
func trySend(ch chan string, message string) {
	select {
	case ch <- message:
	default:
	}
}

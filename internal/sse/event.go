// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package sse

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Event names published on the staff feed.
const (
	EventConnected = "connected"
	EventCheckIn   = "checkin"
	EventRejected  = "rejected"
	EventIssued    = "issued"
	// EventDeliveryFailed goes only to the staff member who registered
	// the participant.
	EventDeliveryFailed = "delivery_failed"
)

// CheckIn is the payload of a checkin event.
type CheckIn struct {
	ConsumedAt  time.Time `json:"consumed_at"`
	OwnerID     string    `json:"owner_id"`
	Username    string    `json:"username"`
	Designation string    `json:"designation,omitempty"`
	VerifiedBy  string    `json:"verified_by"`
}

// Rejection is the payload of a rejected event.
type Rejection struct {
	At         time.Time `json:"at"`
	OwnerID    string    `json:"owner_id,omitempty"`
	Reason     string    `json:"reason"`
	VerifiedBy string    `json:"verified_by"`
}

// Issued is the payload of an issued event.
type Issued struct {
	IssuedAt  time.Time `json:"issued_at"`
	OwnerID   string    `json:"owner_id"`
	Username  string    `json:"username"`
	Delivered bool      `json:"delivered"`
}

// DeliveryFailed is the payload of a delivery_failed event. The token
// fields let the desk show the QR code in person.
type DeliveryFailed struct {
	OwnerID    string `json:"owner_id"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Error      string `json:"error"`
	TokenValue string `json:"token_value"`
	QRPath     string `json:"qr_path"`
	TokenID    int64  `json:"token_id"`
}

// FormatEvent formats a message as an SSE event with optional event name.
// Multiline content is properly prefixed with "data:".
func FormatEvent(eventName, data string) string {
	var sb strings.Builder

	if eventName != "" {
		sb.WriteString(fmt.Sprintf("event: %s\n", eventName))
	}

	for _, line := range strings.Split(data, "\n") {
		sb.WriteString(fmt.Sprintf("data: %s\n", line))
	}

	sb.WriteString("\n") // Empty line marks end of event
	return sb.String()
}

// FormatJSONEvent encodes payload as the event's single data line.
func FormatJSONEvent(eventName string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding %s event: %w", eventName, err)
	}
	return FormatEvent(eventName, string(data)), nil
}

// Heartbeat is an SSE comment that keeps the connection alive.
// Comments (lines starting with :) are ignored by SSE clients.
const Heartbeat = ": heartbeat\n\n"

// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import (
	"net/url"
	"time"
)

// TokenState is the lifecycle state of an issued check-in token.
type TokenState string

const (
	TokenIssued   TokenState = "issued"
	TokenConsumed TokenState = "consumed"
)

// IssuedToken is the credential encoded into a participant's QR code.
// State only moves from issued to consumed; rows are kept as audit trail.
type IssuedToken struct { //nolint:govet // fieldalignment: readability over optimization
	ID          int64      `db:"id" json:"id"`
	TokenValue  string     `db:"token_value" json:"token_value"`
	OwnerID     string     `db:"owner_id" json:"owner_id"`
	State       TokenState `db:"state" json:"state"`
	ConsumedBy  *string    `db:"consumed_by" json:"consumed_by,omitempty"`
	ConsumedAt  *time.Time `db:"consumed_at" json:"consumed_at,omitempty"`
	IssuedAt    time.Time  `db:"issued_at" json:"issued_at"`
	DeliveredAt *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	QRPNG       []byte     `db:"qr_png" json:"-"`
}

// QRPath is the staff API path serving the token's QR image.
func (t *IssuedToken) QRPath() string {
	return "/api/tokens/" + url.PathEscape(t.TokenValue) + "/qr"
}

// Consumed reports whether the token has been used for check-in.
func (t *IssuedToken) Consumed() bool {
	return t.State == TokenConsumed
}

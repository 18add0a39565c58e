// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// Participant is a registrant who receives a check-in QR code.
type Participant struct { //nolint:govet // fieldalignment: readability over optimization
	ID           int64     `db:"id" json:"-"`
	PublicID     string    `db:"public_id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	PhoneNumber  *string   `db:"phone_number" json:"phone_number,omitempty"`
	Designation  string    `db:"designation" json:"designation"`
	PhotoPath    *string   `db:"photo_path" json:"photo_path,omitempty"`
	RegisteredBy *int64    `db:"registered_by" json:"-"`
	QRDelivered  bool      `db:"qr_delivered" json:"qr_delivered"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

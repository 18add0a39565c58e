// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import (
	"strconv"
	"time"
)

// Staff roles.
const (
	RoleVolunteer = "volunteer"
	RoleAdmin     = "admin"
)

// Staff is an event worker allowed to register and check in participants.
type Staff struct {
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	Email        string    `db:"email" json:"email"`
	Username     string    `db:"username" json:"username"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         string    `db:"role" json:"role"`
	ID           int64     `db:"id" json:"id"`
}

// IsAdmin reports whether the staff member has the admin role.
func (s *Staff) IsAdmin() bool {
	return s.Role == RoleAdmin
}

// VerifierID is the identifier recorded in consumed_by when this staff
// member checks a participant in.
func (s *Staff) VerifierID() string {
	return strconv.FormatInt(s.ID, 10)
}

// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"

	"codeberg.org/oliverandrich/qr-checkin/internal/models"
)

// CreateStaff creates a new staff account.
func (r *Repository) CreateStaff(ctx context.Context, email, username, passwordHash, role string) (*models.Staff, error) {
	res, err := r.q.ExecContext(ctx,
		`INSERT INTO staff (email, username, password_hash, role) VALUES (?, ?, ?, ?)`,
		email, username, passwordHash, role)
	if err != nil {
		return nil, wrapError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return r.GetStaffByID(ctx, id)
}

// GetStaffByID retrieves a staff member by ID.
func (r *Repository) GetStaffByID(ctx context.Context, id int64) (*models.Staff, error) {
	var s models.Staff
	if err := r.q.GetContext(ctx, &s, `SELECT * FROM staff WHERE id = ?`, id); err != nil {
		return nil, wrapError(err)
	}
	return &s, nil
}

// GetStaffByEmail retrieves a staff member by email address.
func (r *Repository) GetStaffByEmail(ctx context.Context, email string) (*models.Staff, error) {
	var s models.Staff
	if err := r.q.GetContext(ctx, &s, `SELECT * FROM staff WHERE email = ?`, email); err != nil {
		return nil, wrapError(err)
	}
	return &s, nil
}

// UpdateStaffPassword replaces a staff member's password hash.
func (r *Repository) UpdateStaffPassword(ctx context.Context, id int64, passwordHash string) error {
	return r.updateOne(ctx, `UPDATE staff SET password_hash = ? WHERE id = ?`, passwordHash, id)
}

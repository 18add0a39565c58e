// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"

	"codeberg.org/oliverandrich/qr-checkin/internal/models"
)

// CreateParticipant inserts a participant and sets its ID. Email and phone
// number uniqueness violations surface as *DuplicateError.
func (r *Repository) CreateParticipant(ctx context.Context, p *models.Participant) error {
	res, err := r.q.ExecContext(ctx,
		`INSERT INTO participants (public_id, username, email, phone_number, designation, registered_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.PublicID, p.Username, p.Email, p.PhoneNumber, p.Designation, p.RegisteredBy, p.CreatedAt)
	if err != nil {
		return wrapError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = id
	return nil
}

// GetParticipantByPublicID retrieves a participant by its public ID.
func (r *Repository) GetParticipantByPublicID(ctx context.Context, publicID string) (*models.Participant, error) {
	var p models.Participant
	if err := r.q.GetContext(ctx, &p, `SELECT * FROM participants WHERE public_id = ?`, publicID); err != nil {
		return nil, wrapError(err)
	}
	return &p, nil
}

// EmailExists checks if a participant with the given email exists.
func (r *Repository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.q.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM participants WHERE email = ?)`, email)
	return exists, err
}

// PhoneExists checks if a participant with the given phone number exists.
func (r *Repository) PhoneExists(ctx context.Context, phone string) (bool, error) {
	var exists bool
	err := r.q.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM participants WHERE phone_number = ?)`, phone)
	return exists, err
}

// SetParticipantPhoto records where a participant's photo is stored.
func (r *Repository) SetParticipantPhoto(ctx context.Context, id int64, path string) error {
	return r.updateOne(ctx, `UPDATE participants SET photo_path = ? WHERE id = ?`, path, id)
}

// MarkQRDelivered flags that the participant's QR code email went out.
func (r *Repository) MarkQRDelivered(ctx context.Context, publicID string) error {
	return r.updateOne(ctx, `UPDATE participants SET qr_delivered = 1 WHERE public_id = ?`, publicID)
}

// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"codeberg.org/oliverandrich/qr-checkin/internal/models"
)

// CreateIssuedToken inserts a token in state issued. The unique index on
// token_value rejects collisions with a *DuplicateError; nothing is
// overwritten.
func (r *Repository) CreateIssuedToken(ctx context.Context, ownerID, tokenValue string, issuedAt time.Time) (*models.IssuedToken, error) {
	res, err := r.q.ExecContext(ctx,
		`INSERT INTO issued_tokens (token_value, owner_id, state, issued_at) VALUES (?, ?, ?, ?)`,
		tokenValue, ownerID, models.TokenIssued, issuedAt)
	if err != nil {
		return nil, wrapError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &models.IssuedToken{
		ID:         id,
		TokenValue: tokenValue,
		OwnerID:    ownerID,
		State:      models.TokenIssued,
		IssuedAt:   issuedAt,
	}, nil
}

// AttachQRImage stores the rendered QR code for a token.
func (r *Repository) AttachQRImage(ctx context.Context, tokenID int64, png []byte) error {
	return r.updateOne(ctx, `UPDATE issued_tokens SET qr_png = ? WHERE id = ?`, png, tokenID)
}

// GetIssuedToken retrieves a token by its value.
func (r *Repository) GetIssuedToken(ctx context.Context, tokenValue string) (*models.IssuedToken, error) {
	var token models.IssuedToken
	err := r.q.GetContext(ctx, &token, `SELECT * FROM issued_tokens WHERE token_value = ?`, tokenValue)
	if err != nil {
		return nil, wrapError(err)
	}
	return &token, nil
}

// ListIssuedTokensByOwner returns all tokens issued to an owner, newest first.
func (r *Repository) ListIssuedTokensByOwner(ctx context.Context, ownerID string) ([]models.IssuedToken, error) {
	var tokens []models.IssuedToken
	err := r.q.SelectContext(ctx, &tokens,
		`SELECT * FROM issued_tokens WHERE owner_id = ? ORDER BY issued_at DESC, id DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

// ConsumeIssuedToken transitions a token from issued to consumed with a
// single conditional UPDATE. It returns false when no issued row matched,
// which covers both unknown and already consumed tokens.
func (r *Repository) ConsumeIssuedToken(ctx context.Context, tokenValue, consumedBy string, consumedAt time.Time) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		`UPDATE issued_tokens SET state = ?, consumed_by = ?, consumed_at = ? WHERE token_value = ? AND state = ?`,
		models.TokenConsumed, consumedBy, consumedAt, tokenValue, models.TokenIssued)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// MarkTokenDelivered records a successful delivery of the token's QR code.
func (r *Repository) MarkTokenDelivered(ctx context.Context, tokenID int64, deliveredAt time.Time) error {
	return r.updateOne(ctx, `UPDATE issued_tokens SET delivered_at = ? WHERE id = ?`, deliveredAt, tokenID)
}

// CountIssuedTokens returns the number of tokens, optionally filtered by state.
func (r *Repository) CountIssuedTokens(ctx context.Context, state models.TokenState) (int64, error) {
	var count int64
	var err error
	if state == "" {
		err = r.q.GetContext(ctx, &count, `SELECT COUNT(*) FROM issued_tokens`)
	} else {
		err = r.q.GetContext(ctx, &count, `SELECT COUNT(*) FROM issued_tokens WHERE state = ?`, state)
	}
	return count, err
}

// updateOne executes an UPDATE expected to touch exactly one row.
func (r *Repository) updateOne(ctx context.Context, query string, args ...any) error {
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return wrapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

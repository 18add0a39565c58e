// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package verification checks participants in by consuming their token.
package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"codeberg.org/oliverandrich/qr-checkin/internal/metrics"
	"codeberg.org/oliverandrich/qr-checkin/internal/models"
	"codeberg.org/oliverandrich/qr-checkin/internal/repository"
	"codeberg.org/oliverandrich/qr-checkin/internal/services/qrcode"
	"codeberg.org/oliverandrich/qr-checkin/internal/sse"
)

const metricsDomain = "verification"

var (
	// ErrUnknownToken is returned for a value that was never issued.
	ErrUnknownToken = errors.New("unknown token")
	// ErrAlreadyConsumed is returned when the token was used before.
	ErrAlreadyConsumed = errors.New("token already consumed")
	// ErrMissingToken is returned for an empty scan.
	ErrMissingToken = errors.New("token value is required")
	// ErrMissingVerifier is returned when no verifier is given.
	ErrMissingVerifier = errors.New("verifier id is required")
)

// OwnerIdentity is the snapshot returned by a successful check-in.
type OwnerIdentity struct { //nolint:govet // fieldalignment: readability over optimization
	OwnerID     string    `json:"owner_id"`
	Username    string    `json:"username,omitempty"`
	Email       string    `json:"email,omitempty"`
	PhoneNumber *string   `json:"phone_number,omitempty"`
	Designation string    `json:"designation,omitempty"`
	PhotoPath   *string   `json:"photo_path,omitempty"`
	TokenID     int64     `json:"token_id"`
	VerifiedBy  string    `json:"verified_by"`
	ConsumedAt  time.Time `json:"consumed_at"`
}

// Status is a read-only view of a token and its owner.
type Status struct {
	Token *models.IssuedToken `json:"token"`
	Owner *models.Participant `json:"owner,omitempty"`
}

// Publisher receives check-in events for the live feed.
type Publisher interface {
	Publish(eventName string, payload any) error
}

// Service verifies scanned tokens.
type Service struct {
	repo      *repository.Repository
	publisher Publisher
	metrics   metrics.BusinessMetrics
	now       func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithClock sets the time source for consumed_at.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithPublisher publishes check-ins and rejections to p.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithMetrics records outcomes on m.
func WithMetrics(m metrics.BusinessMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a verification service.
func NewService(repo *repository.Repository, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		metrics: metrics.NoOp{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Verify consumes value on behalf of verifierID. Exactly one caller can
// consume a token; every later or concurrent caller gets ErrAlreadyConsumed
// and the recorded consumption is left untouched.
func (s *Service) Verify(ctx context.Context, value, verifierID string) (*OwnerIdentity, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, ErrMissingToken
	}
	if verifierID == "" {
		return nil, ErrMissingVerifier
	}

	tok, err := s.repo.GetIssuedToken(ctx, value)
	if errors.Is(err, repository.ErrNotFound) {
		s.metrics.RecordOperation(ctx, metricsDomain, "verify", "unknown_token")
		slog.InfoContext(ctx, "verification_unknown_token", "verifier", verifierID)
		s.publish(ctx, sse.EventRejected, sse.Rejection{At: s.now().UTC(), Reason: "unknown_token", VerifiedBy: verifierID})
		return nil, ErrUnknownToken
	}
	if err != nil {
		s.metrics.RecordOperation(ctx, metricsDomain, "verify", metrics.StatusError)
		return nil, fmt.Errorf("looking up token: %w", err)
	}

	consumedAt := s.now().UTC()
	ok, err := s.repo.ConsumeIssuedToken(ctx, value, verifierID, consumedAt)
	if err != nil {
		s.metrics.RecordOperation(ctx, metricsDomain, "verify", metrics.StatusError)
		return nil, fmt.Errorf("consuming token: %w", err)
	}
	if !ok {
		s.rejectConsumed(ctx, tok, verifierID)
		return nil, ErrAlreadyConsumed
	}

	identity := &OwnerIdentity{
		OwnerID:    tok.OwnerID,
		TokenID:    tok.ID,
		VerifiedBy: verifierID,
		ConsumedAt: consumedAt,
	}
	owner, err := s.repo.GetParticipantByPublicID(ctx, tok.OwnerID)
	switch {
	case err == nil:
		identity.Username = owner.Username
		identity.Email = owner.Email
		identity.PhoneNumber = owner.PhoneNumber
		identity.Designation = owner.Designation
		identity.PhotoPath = owner.PhotoPath
	case errors.Is(err, repository.ErrNotFound):
		// Tokens issued from the CLI may have no participant row.
	default:
		slog.ErrorContext(ctx, "verification_owner_lookup_failed", "owner_id", tok.OwnerID, "error", err)
	}

	s.metrics.RecordOperation(ctx, metricsDomain, "verify", metrics.StatusSuccess)
	slog.InfoContext(ctx, "verification_checked_in",
		"token_id", tok.ID,
		"owner_id", tok.OwnerID,
		"verifier", verifierID,
	)
	s.publish(ctx, sse.EventCheckIn, sse.CheckIn{
		ConsumedAt:  consumedAt,
		OwnerID:     identity.OwnerID,
		Username:    identity.Username,
		Designation: identity.Designation,
		VerifiedBy:  verifierID,
	})

	return identity, nil
}

// VerifyImage decodes a scanned image and verifies the token it carries.
func (s *Service) VerifyImage(ctx context.Context, image []byte, verifierID string) (*OwnerIdentity, error) {
	value, err := qrcode.Decode(image)
	if err != nil {
		s.metrics.RecordOperation(ctx, metricsDomain, "verify_image", "undecodable")
		return nil, err
	}
	return s.Verify(ctx, value, verifierID)
}

// Lookup returns the token's state and owner without changing anything.
func (s *Service) Lookup(ctx context.Context, value string) (*Status, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, ErrMissingToken
	}

	tok, err := s.repo.GetIssuedToken(ctx, value)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUnknownToken
	}
	if err != nil {
		return nil, fmt.Errorf("looking up token: %w", err)
	}

	status := &Status{Token: tok}
	owner, err := s.repo.GetParticipantByPublicID(ctx, tok.OwnerID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("looking up owner: %w", err)
	}
	status.Owner = owner
	return status, nil
}

// rejectConsumed audits a scan of an already used token.
func (s *Service) rejectConsumed(ctx context.Context, tok *models.IssuedToken, verifierID string) {
	s.metrics.RecordOperation(ctx, metricsDomain, "verify", "already_consumed")

	attrs := []any{
		"token_id", tok.ID,
		"owner_id", tok.OwnerID,
		"verifier", verifierID,
	}
	// Re-read to log the consumption that won.
	if current, err := s.repo.GetIssuedToken(ctx, tok.TokenValue); err == nil && current.ConsumedBy != nil {
		attrs = append(attrs, "consumed_by", *current.ConsumedBy, "consumed_at", current.ConsumedAt)
	}
	slog.WarnContext(ctx, "verification_rejected_already_consumed", attrs...)

	s.publish(ctx, sse.EventRejected, sse.Rejection{
		At:         s.now().UTC(),
		OwnerID:    tok.OwnerID,
		Reason:     "already_consumed",
		VerifiedBy: verifierID,
	})
}

func (s *Service) publish(ctx context.Context, name string, payload any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(name, payload); err != nil {
		slog.WarnContext(ctx, "feed_publish_failed", "event", name, "error", err)
	}
}

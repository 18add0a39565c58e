// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package registration enrolls participants and issues their check-in token.
package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"codeberg.org/oliverandrich/qr-checkin/internal/media"
	"codeberg.org/oliverandrich/qr-checkin/internal/models"
	"codeberg.org/oliverandrich/qr-checkin/internal/repository"
	"codeberg.org/oliverandrich/qr-checkin/internal/services/issuance"
	"codeberg.org/oliverandrich/qr-checkin/internal/sse"
	"github.com/google/uuid"
)

// Validation codes double as translation message IDs.
const (
	CodeRequired     = "error_required_field"
	CodeInvalidEmail = "error_invalid_email"
	CodeInvalidPhone = "error_phone_invalid"
	CodeEmailTaken   = "error_email_taken"
	CodePhoneTaken   = "error_phone_taken"
	CodePhotoType    = "error_photo_type"
	CodePhotoSize    = "error_photo_too_large"
)

// PhoneDigits is the required length of a phone number.
const PhoneDigits = 10

var (
	// ErrInvalid matches validation failures of a single field.
	ErrInvalid = errors.New("invalid registration")
	// ErrConflict matches uniqueness failures.
	ErrConflict = errors.New("registration conflicts with an existing participant")
)

// ValidationError reports a rejected field. Code is a translation ID.
type ValidationError struct {
	Field    string
	Code     string
	Conflict bool
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Code)
}

// Is matches ErrConflict for uniqueness failures and ErrInvalid otherwise.
func (e *ValidationError) Is(target error) bool {
	if e.Conflict {
		return target == ErrConflict
	}
	return target == ErrInvalid
}

// Input is a registration request as submitted by staff.
type Input struct {
	Username     string
	Email        string
	PhoneNumber  string
	Designation  string
	Photo        []byte
	RegisteredBy *int64
}

// Result is a committed registration.
type Result struct {
	Participant *models.Participant
	Issuance    *issuance.Issuance
}

// Issuer mints tokens inside a caller's transaction and delivers them.
type Issuer interface {
	Mint(ctx context.Context, repo *repository.Repository, req issuance.Request) (*issuance.Issuance, error)
	Deliver(ctx context.Context, iss *issuance.Issuance) error
}

// PhotoStore persists participant photos.
type PhotoStore interface {
	Detect(data []byte) (string, error)
	SavePhoto(participantID int64, username string, data []byte) (string, error)
	Remove(rel string) error
}

// Publisher receives issuance events for the live feed.
type Publisher interface {
	Publish(eventName string, payload any) error
}

// StaffPublisher is a Publisher that can also address one staff member.
// When the configured publisher implements it, failed deliveries are
// reported to whoever registered the participant.
type StaffPublisher interface {
	Publisher
	PublishToStaff(staffID int64, eventName string, payload any) error
}

// Service registers participants.
type Service struct {
	repo      *repository.Repository
	issuer    Issuer
	photos    PhotoStore
	publisher Publisher
	now       func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithPublisher announces new registrations on p.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// NewService creates a registration service. photos may be nil when
// uploads are disabled.
func NewService(repo *repository.Repository, issuer Issuer, photos PhotoStore, opts ...Option) *Service {
	s := &Service{repo: repo, issuer: issuer, photos: photos, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register validates in, stores the participant and its photo, and mints
// a token in one transaction. Delivery runs after commit; a failed send
// returns the committed result together with an *issuance.DeliveryError.
func (s *Service) Register(ctx context.Context, in Input) (*Result, error) {
	in = normalize(in)
	if err := s.validate(ctx, in); err != nil {
		return nil, err
	}

	p := &models.Participant{
		PublicID:     uuid.NewString(),
		Username:     in.Username,
		Email:        in.Email,
		Designation:  in.Designation,
		RegisteredBy: in.RegisteredBy,
		CreatedAt:    s.now().UTC(),
	}
	if in.PhoneNumber != "" {
		p.PhoneNumber = &in.PhoneNumber
	}

	var (
		iss       *issuance.Issuance
		photoPath string
	)
	err := s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		if err := tx.CreateParticipant(ctx, p); err != nil {
			return conflictFrom(err)
		}

		if len(in.Photo) > 0 {
			rel, err := s.photos.SavePhoto(p.ID, p.Username, in.Photo)
			if err != nil {
				return fmt.Errorf("saving photo: %w", err)
			}
			photoPath = rel
			if err := tx.SetParticipantPhoto(ctx, p.ID, rel); err != nil {
				return fmt.Errorf("recording photo: %w", err)
			}
			p.PhotoPath = &rel
		}

		var err error
		iss, err = s.issuer.Mint(ctx, tx, issuance.Request{
			OwnerID:    p.PublicID,
			OwnerLabel: p.Username,
			Recipient:  p.Email,
		})
		return err
	})
	if err != nil {
		if photoPath != "" {
			if rmErr := s.photos.Remove(photoPath); rmErr != nil {
				slog.WarnContext(ctx, "registration_photo_cleanup_failed", "path", photoPath, "error", rmErr)
			}
		}
		slog.WarnContext(ctx, "registration_failed", "email", in.Email, "error", err)
		return nil, err
	}

	slog.InfoContext(ctx, "registration_success",
		"participant_id", p.PublicID,
		"token_id", iss.Token.ID,
	)

	res := &Result{Participant: p, Issuance: iss}
	deliverErr := s.issuer.Deliver(ctx, iss)
	if deliverErr == nil {
		if err := s.repo.MarkQRDelivered(ctx, p.PublicID); err != nil {
			slog.ErrorContext(ctx, "registration_delivery_not_recorded", "participant_id", p.PublicID, "error", err)
		} else {
			p.QRDelivered = true
		}
	}
	s.announce(ctx, res)
	if deliverErr != nil {
		s.reportDeliveryFailure(ctx, in.RegisteredBy, res, deliverErr)
	}
	return res, deliverErr
}

func (s *Service) announce(ctx context.Context, res *Result) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.Publish(sse.EventIssued, sse.Issued{
		IssuedAt:  res.Issuance.Token.IssuedAt,
		OwnerID:   res.Participant.PublicID,
		Username:  res.Participant.Username,
		Delivered: res.Participant.QRDelivered,
	})
	if err != nil {
		slog.WarnContext(ctx, "feed_publish_failed", "event", sse.EventIssued, "error", err)
	}
}

func (s *Service) reportDeliveryFailure(ctx context.Context, staffID *int64, res *Result, cause error) {
	sp, ok := s.publisher.(StaffPublisher)
	if !ok || staffID == nil {
		return
	}
	p, tok := res.Participant, res.Issuance.Token
	err := sp.PublishToStaff(*staffID, sse.EventDeliveryFailed, sse.DeliveryFailed{
		OwnerID:    p.PublicID,
		Username:   p.Username,
		Email:      p.Email,
		Error:      cause.Error(),
		TokenID:    tok.ID,
		TokenValue: tok.TokenValue,
		QRPath:     tok.QRPath(),
	})
	if err != nil {
		slog.WarnContext(ctx, "feed_publish_failed", "event", sse.EventDeliveryFailed, "error", err)
	}
}

func normalize(in Input) Input {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.PhoneNumber = strings.TrimSpace(in.PhoneNumber)
	in.Designation = strings.TrimSpace(in.Designation)
	return in
}

func (s *Service) validate(ctx context.Context, in Input) error {
	if in.Username == "" {
		return &ValidationError{Field: "username", Code: CodeRequired}
	}
	if in.Email == "" {
		return &ValidationError{Field: "email", Code: CodeRequired}
	}
	if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != in.Email {
		return &ValidationError{Field: "email", Code: CodeInvalidEmail}
	}
	if in.PhoneNumber != "" && !validPhone(in.PhoneNumber) {
		return &ValidationError{Field: "phone_number", Code: CodeInvalidPhone}
	}
	if len(in.Photo) > 0 {
		if err := s.checkPhoto(in.Photo); err != nil {
			return err
		}
	}

	exists, err := s.repo.EmailExists(ctx, in.Email)
	if err != nil {
		return fmt.Errorf("checking email: %w", err)
	}
	if exists {
		return &ValidationError{Field: "email", Code: CodeEmailTaken, Conflict: true}
	}
	if in.PhoneNumber != "" {
		exists, err := s.repo.PhoneExists(ctx, in.PhoneNumber)
		if err != nil {
			return fmt.Errorf("checking phone number: %w", err)
		}
		if exists {
			return &ValidationError{Field: "phone_number", Code: CodePhoneTaken, Conflict: true}
		}
	}
	return nil
}

func (s *Service) checkPhoto(data []byte) error {
	if s.photos == nil {
		return &ValidationError{Field: "user_image", Code: CodePhotoType}
	}
	_, err := s.photos.Detect(data)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, media.ErrTooLarge):
		return &ValidationError{Field: "user_image", Code: CodePhotoSize}
	default:
		return &ValidationError{Field: "user_image", Code: CodePhotoType}
	}
}

func validPhone(phone string) bool {
	if len(phone) != PhoneDigits {
		return false
	}
	for _, r := range phone {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// conflictFrom maps a unique violation that slipped past the pre-checks.
func conflictFrom(err error) error {
	var dup *repository.DuplicateError
	if !errors.As(err, &dup) {
		return fmt.Errorf("creating participant: %w", err)
	}
	switch dup.Column {
	case "email":
		return &ValidationError{Field: "email", Code: CodeEmailTaken, Conflict: true}
	case "phone_number":
		return &ValidationError{Field: "phone_number", Code: CodePhoneTaken, Conflict: true}
	default:
		return fmt.Errorf("creating participant: %w", err)
	}
}

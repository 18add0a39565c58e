// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package issuance mints check-in tokens and delivers their QR codes.
//
// Minting (generate, persist, encode) runs inside one transaction, so a
// token row never exists without its image. Delivery runs after commit
// and cannot undo it.
package issuance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"codeberg.org/oliverandrich/qr-checkin/internal/config"
	"codeberg.org/oliverandrich/qr-checkin/internal/metrics"
	"codeberg.org/oliverandrich/qr-checkin/internal/models"
	"codeberg.org/oliverandrich/qr-checkin/internal/repository"
	"codeberg.org/oliverandrich/qr-checkin/internal/services/email"
	"github.com/cenkalti/backoff/v4"
)

const (
	// MaxGenerateAttempts bounds regeneration after a token_value collision.
	MaxGenerateAttempts = 3
	// DefaultDeliveryAttempts is used when the configured count is not positive.
	DefaultDeliveryAttempts = 3

	metricsDomain = "issuance"
)

var (
	// ErrTokenCollisionExhausted is returned when every generated token
	// collided with an existing one.
	ErrTokenCollisionExhausted = errors.New("token collision retries exhausted")
	// ErrDeliveryFailedButIssued marks a committed token whose QR code
	// could not be delivered.
	ErrDeliveryFailedButIssued = errors.New("token issued but delivery failed")
	// ErrInvalidRequest is returned for requests without an owner.
	ErrInvalidRequest = errors.New("invalid issuance request")
)

// DeliveryError reports a delivery that failed after all attempts. It
// matches ErrDeliveryFailedButIssued.
type DeliveryError struct {
	Err      error
	Attempts int
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%v after %d attempt(s): %v", ErrDeliveryFailedButIssued, e.Attempts, e.Err)
}

// Is makes errors.Is(err, ErrDeliveryFailedButIssued) match.
func (e *DeliveryError) Is(target error) bool {
	return target == ErrDeliveryFailedButIssued
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// TokenGenerator derives a fresh token value.
type TokenGenerator interface {
	Generate(ownerLabel, eventLabel string) (string, error)
}

// Encoder renders a token value as an image.
type Encoder interface {
	Encode(content string) ([]byte, error)
}

// Request describes one issuance. EventLabel overrides the configured
// event label when set; Recipient may be empty for Mint-only callers.
type Request struct {
	OwnerID    string
	OwnerLabel string
	EventLabel string
	Recipient  string
}

// Issuance is a committed token together with its rendered QR code.
type Issuance struct {
	Token     *models.IssuedToken
	Recipient string
	OwnerName string
	Image     []byte
}

// Coordinator runs the issuance sequence.
type Coordinator struct {
	repo     *repository.Repository
	gen      TokenGenerator
	enc      Encoder
	sender   email.Sender
	metrics  metrics.BusinessMetrics
	now      func() time.Time
	event    config.EventConfig
	attempts int
	backoff  time.Duration
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithClock sets the time source used for issued_at and delivered_at.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithMetrics records outcomes on m.
func WithMetrics(m metrics.BusinessMetrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// NewCoordinator creates a coordinator for the configured event.
func NewCoordinator(
	repo *repository.Repository,
	gen TokenGenerator,
	enc Encoder,
	sender email.Sender,
	event config.EventConfig,
	delivery config.DeliveryConfig,
	opts ...Option,
) *Coordinator {
	c := &Coordinator{
		repo:     repo,
		gen:      gen,
		enc:      enc,
		sender:   sender,
		metrics:  metrics.NoOp{},
		now:      time.Now,
		event:    event,
		attempts: delivery.Attempts,
		backoff:  delivery.Backoff,
	}
	if c.attempts < 1 {
		c.attempts = DefaultDeliveryAttempts
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Issue mints a token in its own transaction, commits, then delivers it.
// When delivery fails the committed issuance is returned together with a
// *DeliveryError.
func (c *Coordinator) Issue(ctx context.Context, req Request) (*Issuance, error) {
	iss, err := c.Mint(ctx, c.repo, req)
	if err != nil {
		return nil, err
	}

	if err := c.Deliver(ctx, iss); err != nil {
		return iss, err
	}
	return iss, nil
}

// Mint generates, persists and encodes a token against repo. When repo is
// already bound to a transaction the caller owns commit and rollback;
// otherwise Mint opens its own.
func (c *Coordinator) Mint(ctx context.Context, repo *repository.Repository, req Request) (*Issuance, error) {
	if req.OwnerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", ErrInvalidRequest)
	}
	eventLabel := req.EventLabel
	if eventLabel == "" {
		eventLabel = c.event.Label
	}

	start := c.now()
	var iss *Issuance
	err := repo.WithTx(ctx, func(tx *repository.Repository) error {
		var err error
		iss, err = c.mint(ctx, tx, req, eventLabel)
		return err
	})

	status := metrics.StatusSuccess
	switch {
	case errors.Is(err, ErrTokenCollisionExhausted):
		status = "collision_exhausted"
	case err != nil:
		status = metrics.StatusError
	}
	c.metrics.RecordOperation(ctx, metricsDomain, "mint", status)
	c.metrics.RecordDuration(ctx, metricsDomain, "mint", c.now().Sub(start), status)

	if err != nil {
		slog.ErrorContext(ctx, "token_mint_failed", "owner_id", req.OwnerID, "error", err)
		return nil, err
	}

	slog.InfoContext(ctx, "token_issued", "owner_id", req.OwnerID, "token_id", iss.Token.ID)
	return iss, nil
}

func (c *Coordinator) mint(ctx context.Context, tx *repository.Repository, req Request, eventLabel string) (*Issuance, error) {
	for attempt := 1; attempt <= MaxGenerateAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		value, err := c.gen.Generate(req.OwnerLabel, eventLabel)
		if err != nil {
			return nil, fmt.Errorf("generating token: %w", err)
		}

		tok, err := tx.CreateIssuedToken(ctx, req.OwnerID, value, c.now().UTC())
		if errors.Is(err, repository.ErrDuplicate) {
			slog.WarnContext(ctx, "token_collision", "owner_id", req.OwnerID, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("persisting token: %w", err)
		}

		png, err := c.enc.Encode(value)
		if err != nil {
			return nil, fmt.Errorf("encoding token: %w", err)
		}
		if err := tx.AttachQRImage(ctx, tok.ID, png); err != nil {
			return nil, fmt.Errorf("storing qr image: %w", err)
		}
		tok.QRPNG = png

		return &Issuance{
			Token:     tok,
			Image:     png,
			Recipient: req.Recipient,
			OwnerName: req.OwnerLabel,
		}, nil
	}
	return nil, ErrTokenCollisionExhausted
}

// Deliver sends the issuance's QR code, retrying with exponential backoff
// up to the configured attempt count. On success it records delivered_at.
func (c *Coordinator) Deliver(ctx context.Context, iss *Issuance) error {
	d := email.Delivery{
		Recipient:   iss.Recipient,
		InlineImage: iss.Image,
		Context:     c.templateContext(iss),
	}

	attempts := 0
	operation := func() error {
		attempts++
		err := c.sender.Send(ctx, d)
		if errors.Is(err, email.ErrNoRecipient) || errors.Is(err, email.ErrNotSent) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		slog.WarnContext(ctx, "delivery_attempt_failed",
			"token_id", iss.Token.ID,
			"attempt", attempts,
			"next_retry_in", next,
			"error", err,
		)
	}

	err := backoff.RetryNotify(operation, c.retryPolicy(ctx), notify)
	if err != nil {
		c.metrics.RecordOperation(ctx, metricsDomain, "deliver", "failed")
		slog.ErrorContext(ctx, "delivery_failed",
			"token_id", iss.Token.ID,
			"recipient", iss.Recipient,
			"attempts", attempts,
			"error", err,
		)
		return &DeliveryError{Attempts: attempts, Err: err}
	}
	c.metrics.RecordOperation(ctx, metricsDomain, "deliver", metrics.StatusSuccess)

	deliveredAt := c.now().UTC()
	if err := c.repo.MarkTokenDelivered(ctx, iss.Token.ID, deliveredAt); err != nil {
		slog.ErrorContext(ctx, "delivery_not_recorded", "token_id", iss.Token.ID, "error", err)
	} else {
		iss.Token.DeliveredAt = &deliveredAt
	}

	slog.InfoContext(ctx, "delivery_sent", "token_id", iss.Token.ID, "attempts", attempts)
	return nil
}

func (c *Coordinator) retryPolicy(ctx context.Context) backoff.BackOffContext {
	var b backoff.BackOff = &backoff.ZeroBackOff{}
	if c.backoff > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = c.backoff
		exp.MaxInterval = 30 * c.backoff
		exp.MaxElapsedTime = 0 // bounded by attempts only
		exp.Multiplier = 2.0
		b = exp
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.attempts-1)), ctx)
}

func (c *Coordinator) templateContext(iss *Issuance) map[string]any {
	data := map[string]any{
		"EventName":  c.event.Name,
		"EventDate":  c.event.Date,
		"EventTime":  c.event.Time,
		"EventVenue": c.event.Venue,
	}
	if c.event.Name == "" {
		data["EventName"] = c.event.Label
	}
	data["Username"] = iss.OwnerName
	return data
}

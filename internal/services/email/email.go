// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"codeberg.org/oliverandrich/qr-checkin/internal/config"
	"codeberg.org/oliverandrich/qr-checkin/internal/i18n"
	"codeberg.org/oliverandrich/qr-checkin/internal/templates"
	"github.com/a-h/templ"
	"github.com/wneessen/go-mail"
)

// QRContentID is the id the HTML body references as cid:qr_code. The
// Content-ID header carries it as a msg-id in angle brackets.
const QRContentID = "qr_code"

var (
	// ErrNoRecipient is returned when a delivery has no recipient address.
	ErrNoRecipient = errors.New("delivery has no recipient")
	// ErrNotSent is returned by LogSender: the delivery was logged, not mailed.
	ErrNotSent = errors.New("smtp disabled, delivery logged but not sent")
)

// Delivery is one outbound QR code message. Context feeds the localized
// subject and body (Username, EventName, EventDate, EventTime, EventVenue).
type Delivery struct {
	Context     map[string]any
	Recipient   string
	Subject     string // optional, derived from Context when empty
	InlineImage []byte
}

// Sender delivers a message to its recipient.
type Sender interface {
	Send(ctx context.Context, d Delivery) error
}

// Service sends deliveries via SMTP.
type Service struct {
	cfg *config.SMTPConfig
}

// NewService creates a new email service.
func NewService(cfg *config.SMTPConfig) (*Service, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("SMTP host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("SMTP from address is required")
	}

	return &Service{cfg: cfg}, nil
}

// Send delivers d over SMTP. A single call is one attempt; retries are
// the caller's concern.
func (s *Service) Send(ctx context.Context, d Delivery) error {
	msg, err := s.BuildMessage(ctx, d)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(s.cfg.Host, s.clientOptions()...)
	if err != nil {
		return fmt.Errorf("creating mail client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}

	return nil
}

// BuildMessage assembles the MIME message for d without sending it.
func (s *Service) BuildMessage(ctx context.Context, d Delivery) (*mail.Msg, error) {
	if d.Recipient == "" {
		return nil, ErrNoRecipient
	}

	msg := mail.NewMsg()

	if s.cfg.FromName != "" {
		if err := msg.FromFormat(s.cfg.FromName, s.cfg.From); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	} else {
		if err := msg.From(s.cfg.From); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	}

	if err := msg.To(d.Recipient); err != nil {
		return nil, fmt.Errorf("setting to address: %w", err)
	}

	subject := d.Subject
	if subject == "" {
		subject = i18n.TData(ctx, "email_qr_subject", d.Context)
	}
	msg.Subject(subject)

	msg.SetBodyString(mail.TypeTextPlain, templates.QRCodeEmailText(ctx, d.Context))

	html, err := renderHTML(ctx, templates.QRCodeEmail(d.Context, QRContentID))
	if err != nil {
		return nil, fmt.Errorf("rendering html body: %w", err)
	}
	msg.AddAlternativeString(mail.TypeTextHTML, html)

	if len(d.InlineImage) > 0 {
		if err := msg.EmbedReader(QRContentID+".png", bytes.NewReader(d.InlineImage),
			mail.WithFileContentID("<"+QRContentID+">"),
			mail.WithFileContentType(mail.ContentType("image/png")),
		); err != nil {
			return nil, fmt.Errorf("embedding qr image: %w", err)
		}
	}

	return msg, nil
}

func (s *Service) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
	}

	// Configure TLS based on config and port
	if s.cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
		// Use implicit TLS (SSL) for port 465, STARTTLS for others
		if s.cfg.Port == 465 {
			opts = append(opts, mail.WithSSL())
		}
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	// Add authentication if credentials are provided
	if s.cfg.Username != "" && s.cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}

	return opts
}

func renderHTML(ctx context.Context, c templ.Component) (string, error) {
	buf := templ.GetBuffer()
	defer templ.ReleaseBuffer(buf)

	if err := c.Render(ctx, buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// LogSender stands in for SMTP in development. It logs the delivery and
// returns ErrNotSent, so nothing is recorded as delivered.
type LogSender struct{}

// Send implements Sender.
func (LogSender) Send(ctx context.Context, d Delivery) error {
	if d.Recipient == "" {
		return ErrNoRecipient
	}
	slog.WarnContext(ctx, "smtp_disabled_delivery_logged",
		"recipient", d.Recipient,
		"image_bytes", len(d.InlineImage),
	)
	return ErrNotSent
}

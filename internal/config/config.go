// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

var configFile = altsrc.StringSourcer("config.toml")

type Config struct { //nolint:govet // fieldalignment not critical for config structs
	Server   ServerConfig
	Log      LogConfig
	Database DatabaseConfig
	TLS      TLSConfig
	Session  SessionConfig
	SMTP     SMTPConfig
	Event    EventConfig
	Media    MediaConfig
	Delivery DeliveryConfig
}

type TLSConfig struct {
	Mode     string // auto, acme, selfsigned, manual, off
	CertDir  string // Directory for auto-generated certificates
	Email    string // ACME email for Let's Encrypt
	CertFile string // Path to certificate file (manual mode)
	KeyFile  string // Path to private key file (manual mode)
}

type ServerConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host        string
	Port        int
	BaseURL     string
	MaxBodySize int // in MB
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

type DatabaseConfig struct {
	DSN string
}

type SessionConfig struct { //nolint:govet // fieldalignment not critical
	CookieName string // Session cookie name
	MaxAge     int    // Session max age in seconds
	HashKey    string // 32-byte hex string for HMAC signing
	BlockKey   string // 32-byte hex string for AES encryption (optional)
}

type SMTPConfig struct { //nolint:govet // fieldalignment not critical
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	TLS      bool
}

// EventConfig identifies the event tokens are issued for. Label and
// SecretSalt are mixed into every token; the rest only feeds the email.
type EventConfig struct {
	Label      string
	Name       string
	Date       string
	Venue      string
	Time       string
	SecretSalt string
}

type MediaConfig struct {
	Root         string // Directory for uploaded participant photos
	MaxPhotoMB   int
	QRModuleSize int // Pixels per QR module
}

type DeliveryConfig struct {
	Attempts int           // Total send attempts per issuance
	Backoff  time.Duration // Initial delay between attempts
}

// Enabled reports whether an SMTP relay is configured.
func (c SMTPConfig) Enabled() bool {
	return c.Host != ""
}

func NewFromCLI(cmd *cli.Command) *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:        cmd.String("host"),
			Port:        int(cmd.Int("port")),
			BaseURL:     cmd.String("base-url"),
			MaxBodySize: int(cmd.Int("max-body-size")),
		},
		Log: LogConfig{
			Level:  cmd.String("log-level"),
			Format: cmd.String("log-format"),
		},
		Database: DatabaseConfig{
			DSN: cmd.String("database-dsn"),
		},
		TLS: TLSConfig{
			Mode:     cmd.String("tls-mode"),
			CertDir:  cmd.String("tls-cert-dir"),
			Email:    cmd.String("tls-email"),
			CertFile: cmd.String("tls-cert-file"),
			KeyFile:  cmd.String("tls-key-file"),
		},
		Session: SessionConfig{
			CookieName: cmd.String("session-cookie-name"),
			MaxAge:     int(cmd.Int("session-max-age")),
			HashKey:    cmd.String("session-hash-key"),
			BlockKey:   cmd.String("session-block-key"),
		},
		SMTP: SMTPConfig{
			Host:     cmd.String("smtp-host"),
			Port:     int(cmd.Int("smtp-port")),
			Username: cmd.String("smtp-username"),
			Password: cmd.String("smtp-password"),
			From:     cmd.String("smtp-from"),
			FromName: cmd.String("smtp-from-name"),
			TLS:      cmd.Bool("smtp-tls"),
		},
		Event: EventConfig{
			Label:      cmd.String("event-label"),
			Name:       cmd.String("event-name"),
			Date:       cmd.String("event-date"),
			Venue:      cmd.String("event-venue"),
			Time:       cmd.String("event-time"),
			SecretSalt: cmd.String("secret-salt"),
		},
		Media: MediaConfig{
			Root:         cmd.String("media-root"),
			MaxPhotoMB:   int(cmd.Int("media-max-photo-size")),
			QRModuleSize: int(cmd.Int("qr-module-size")),
		},
		Delivery: DeliveryConfig{
			Attempts: int(cmd.Int("delivery-attempts")),
			Backoff:  cmd.Duration("delivery-backoff"),
		},
	}

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = buildBaseURL(cfg)
	}

	if cfg.Event.Name == "" {
		cfg.Event.Name = cfg.Event.Label
	}

	return cfg
}

// Validate checks the settings tokens cannot be issued without.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Event.Label) == "" {
		errs = append(errs, errors.New("event label is required"))
	}
	if c.Event.SecretSalt == "" {
		errs = append(errs, errors.New("secret salt is required"))
	}
	if c.Delivery.Attempts < 1 {
		errs = append(errs, fmt.Errorf("delivery attempts must be at least 1, got %d", c.Delivery.Attempts))
	}
	return errors.Join(errs...)
}

func buildBaseURL(cfg *Config) string {
	host := cfg.Server.Host
	port := cfg.Server.Port
	mode := strings.ToLower(cfg.TLS.Mode)

	// Determine if TLS will be used
	useTLS := shouldUseTLS(mode, host)

	scheme := "http"
	if useTLS {
		scheme = "https"
	}

	// ACME mode always uses port 443
	if mode == "acme" {
		return fmt.Sprintf("https://%s", host)
	}

	// Hide default ports in URL
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		return fmt.Sprintf("%s://%s", scheme, host)
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, port)
}

func shouldUseTLS(mode, host string) bool {
	switch mode {
	case "off":
		return false
	case "acme", "selfsigned", "manual":
		return true
	default: // "auto" or empty
		return !IsLocalhost(host)
	}
}

// IsLocalhost checks if the host is a localhost address.
func IsLocalhost(host string) bool {
	switch host {
	case "", "localhost", "127.0.0.1", "::1":
		return true
	}
	// Check for *.localhost subdomains (e.g., app.localhost)
	return strings.HasSuffix(host, ".localhost")
}

func source(env, key string) cli.ValueSourceChain {
	return cli.NewValueSourceChain(cli.EnvVar(env), toml.TOML(key, configFile))
}

// DatabaseFlags returns the flags needed to open the database.
func DatabaseFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "database-dsn",
			Value:   "./data/checkin.db",
			Usage:   "Database DSN",
			Sources: source("DATABASE_DSN", "database.dsn"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "Log level (debug, info, warn, error)",
			Sources: source("LOG_LEVEL", "log.level"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   "text",
			Usage:   "Log format (text, json)",
			Sources: source("LOG_FORMAT", "log.format"),
		},
	}
}

// IssuanceFlags returns the flags needed to issue and deliver tokens.
func IssuanceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "event-label",
			Usage:   "Event identifier mixed into every token (e.g. EXPO24)",
			Sources: source("EVENT_LABEL", "event.label"),
		},
		&cli.StringFlag{
			Name:    "event-name",
			Usage:   "Event name shown in emails (defaults to the label)",
			Sources: source("EVENT_NAME", "event.name"),
		},
		&cli.StringFlag{
			Name:    "event-date",
			Usage:   "Event date shown in emails",
			Sources: source("EVENT_DATE", "event.date"),
		},
		&cli.StringFlag{
			Name:    "event-venue",
			Usage:   "Event venue shown in emails",
			Sources: source("EVENT_VENUE", "event.venue"),
		},
		&cli.StringFlag{
			Name:    "event-time",
			Usage:   "Event time shown in emails",
			Sources: source("EVENT_TIME", "event.time"),
		},
		&cli.StringFlag{
			Name:    "secret-salt",
			Usage:   "Secret mixed into token derivation to prevent offline forgery",
			Sources: source("SECRET_SALT", "event.secret_salt"),
		},
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP server host (empty disables email delivery)",
			Sources: source("SMTP_HOST", "smtp.host"),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   587,
			Usage:   "SMTP server port",
			Sources: source("SMTP_PORT", "smtp.port"),
		},
		&cli.StringFlag{
			Name:    "smtp-username",
			Usage:   "SMTP username",
			Sources: source("SMTP_USERNAME", "smtp.username"),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Usage:   "SMTP password",
			Sources: source("SMTP_PASSWORD", "smtp.password"),
		},
		&cli.StringFlag{
			Name:    "smtp-from",
			Usage:   "Sender address for QR code emails",
			Sources: source("SMTP_FROM", "smtp.from"),
		},
		&cli.StringFlag{
			Name:    "smtp-from-name",
			Usage:   "Sender display name",
			Sources: source("SMTP_FROM_NAME", "smtp.from_name"),
		},
		&cli.BoolFlag{
			Name:    "smtp-tls",
			Value:   true,
			Usage:   "Require TLS for SMTP",
			Sources: source("SMTP_TLS", "smtp.tls"),
		},
		&cli.IntFlag{
			Name:    "delivery-attempts",
			Value:   3,
			Usage:   "Email delivery attempts per issuance",
			Sources: source("DELIVERY_ATTEMPTS", "delivery.attempts"),
		},
		&cli.DurationFlag{
			Name:    "delivery-backoff",
			Value:   500 * time.Millisecond,
			Usage:   "Initial delay between delivery attempts",
			Sources: source("DELIVERY_BACKOFF", "delivery.backoff"),
		},
		&cli.IntFlag{
			Name:    "qr-module-size",
			Value:   10,
			Usage:   "Pixels per QR code module",
			Sources: source("QR_MODULE_SIZE", "media.qr_module_size"),
		},
	}
}

func Flags() []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "host",
			Value:   "localhost",
			Usage:   "Host to bind to",
			Sources: source("HOST", "server.host"),
		},
		&cli.IntFlag{
			Name:    "port",
			Value:   8080,
			Usage:   "Port to listen on",
			Sources: source("PORT", "server.port"),
		},
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "Base URL for the application",
			Sources: source("BASE_URL", "server.base_url"),
		},
		&cli.IntFlag{
			Name:    "max-body-size",
			Value:   8,
			Usage:   "Maximum request body size in MB",
			Sources: source("MAX_BODY_SIZE", "server.max_body_size"),
		},
		&cli.StringFlag{
			Name:    "tls-mode",
			Value:   "auto",
			Usage:   "TLS mode (auto, acme, selfsigned, manual, off)",
			Sources: source("TLS_MODE", "tls.mode"),
		},
		&cli.StringFlag{
			Name:    "tls-cert-dir",
			Value:   "./data/certs",
			Usage:   "Directory for auto-generated certificates",
			Sources: source("TLS_CERT_DIR", "tls.cert_dir"),
		},
		&cli.StringFlag{
			Name:    "tls-email",
			Usage:   "Email for ACME/Let's Encrypt registration",
			Sources: source("TLS_EMAIL", "tls.email"),
		},
		&cli.StringFlag{
			Name:    "tls-cert-file",
			Usage:   "Path to TLS certificate file (manual mode)",
			Sources: source("TLS_CERT_FILE", "tls.cert_file"),
		},
		&cli.StringFlag{
			Name:    "tls-key-file",
			Usage:   "Path to TLS private key file (manual mode)",
			Sources: source("TLS_KEY_FILE", "tls.key_file"),
		},
		// Session flags
		&cli.StringFlag{
			Name:    "session-cookie-name",
			Value:   "_session",
			Usage:   "Session cookie name",
			Sources: source("SESSION_COOKIE_NAME", "session.cookie_name"),
		},
		&cli.IntFlag{
			Name:    "session-max-age",
			Value:   43200, // 12 hours, one event day
			Usage:   "Session max age in seconds",
			Sources: source("SESSION_MAX_AGE", "session.max_age"),
		},
		&cli.StringFlag{
			Name:    "session-hash-key",
			Usage:   "Session hash key (32-byte hex, auto-generated if empty in dev)",
			Sources: source("SESSION_HASH_KEY", "session.hash_key"),
		},
		&cli.StringFlag{
			Name:    "session-block-key",
			Usage:   "Session block key for encryption (32-byte hex, optional)",
			Sources: source("SESSION_BLOCK_KEY", "session.block_key"),
		},
		// Media flags
		&cli.StringFlag{
			Name:    "media-root",
			Value:   "./data/media",
			Usage:   "Directory for participant photos",
			Sources: source("MEDIA_ROOT", "media.root"),
		},
		&cli.IntFlag{
			Name:    "media-max-photo-size",
			Value:   5,
			Usage:   "Maximum participant photo size in MB",
			Sources: source("MEDIA_MAX_PHOTO_SIZE", "media.max_photo_size"),
		},
	}

	flags = append(flags, DatabaseFlags()...)
	return append(flags, IssuanceFlags()...)
}

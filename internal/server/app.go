// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"fmt"
	"log/slog"
	"strings"

	"codeberg.org/oliverandrich/qr-checkin/internal/config"
	"codeberg.org/oliverandrich/qr-checkin/internal/handlers"
	"codeberg.org/oliverandrich/qr-checkin/internal/media"
	"codeberg.org/oliverandrich/qr-checkin/internal/metrics"
	"codeberg.org/oliverandrich/qr-checkin/internal/repository"
	"codeberg.org/oliverandrich/qr-checkin/internal/services/auth"
	"codeberg.org/oliverandrich/qr-checkin/internal/services/email"
	"codeberg.org/oliverandrich/qr-checkin/internal/services/issuance"
	"codeberg.org/oliverandrich/qr-checkin/internal/services/qrcode"
	"codeberg.org/oliverandrich/qr-checkin/internal/services/registration"
	"codeberg.org/oliverandrich/qr-checkin/internal/services/session"
	"codeberg.org/oliverandrich/qr-checkin/internal/services/token"
	"codeberg.org/oliverandrich/qr-checkin/internal/services/verification"
	"codeberg.org/oliverandrich/qr-checkin/internal/sse"
	"github.com/labstack/echo/v4"
	"github.com/vinovest/sqlx"
)

const metricsNamespace = "qr_checkin"

// App is the wired HTTP application.
type App struct {
	Echo        *echo.Echo
	Hub         *sse.Hub
	Metrics     *metrics.Provider
	Coordinator *issuance.Coordinator
	Sessions    *session.Manager
}

// NewSender returns the SMTP sender, or a logging sender when no SMTP
// host is configured.
func NewSender(cfg *config.SMTPConfig) (email.Sender, error) {
	if !cfg.Enabled() {
		slog.Warn("smtp_disabled", "hint", "QR codes are logged, not mailed")
		return email.LogSender{}, nil
	}
	return email.NewService(cfg)
}

// NewCoordinator builds the issuance coordinator used by the server and CLI.
func NewCoordinator(cfg *config.Config, repo *repository.Repository, sender email.Sender, m metrics.BusinessMetrics) *issuance.Coordinator {
	return issuance.NewCoordinator(repo,
		token.NewGenerator(cfg.Event.SecretSalt),
		qrcode.NewEncoder(cfg.Media.QRModuleSize),
		sender,
		cfg.Event,
		cfg.Delivery,
		issuance.WithMetrics(m),
	)
}

// NewApp wires services, middleware and routes onto a new Echo instance.
func NewApp(cfg *config.Config, db *sqlx.DB, sender email.Sender) (*App, error) {
	repo := repository.New(db)

	provider, err := metrics.NewProvider(metricsNamespace)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics provider: %w", err)
	}

	sessions, err := session.NewManager(&cfg.Session, strings.HasPrefix(cfg.Server.BaseURL, "https://"))
	if err != nil {
		return nil, fmt.Errorf("failed to create session manager: %w", err)
	}

	hub := sse.NewHub()
	coordinator := NewCoordinator(cfg, repo, sender, provider)
	maxPhoto := int64(cfg.Media.MaxPhotoMB) << 20
	photos := media.NewStore(cfg.Media.Root, maxPhoto)

	regSvc := registration.NewService(repo, coordinator, photos, registration.WithPublisher(hub))
	verSvc := verification.NewService(repo,
		verification.WithPublisher(hub),
		verification.WithMetrics(provider),
	)
	authSvc := auth.NewService(repo)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	setupMiddleware(e, cfg, provider)

	app := &App{
		Echo:        e,
		Hub:         hub,
		Metrics:     provider,
		Coordinator: coordinator,
		Sessions:    sessions,
	}
	setupRoutes(e, routeDeps{
		base:     handlers.New(repo),
		auth:     handlers.NewAuth(authSvc, sessions),
		checkIn:  handlers.NewCheckIn(regSvc, verSvc, maxPhoto),
		events:   handlers.NewSSEHandler(hub),
		admin:    handlers.NewAdmin(repo, hub),
		sessions: sessions,
		staff:    repo,
		metrics:  provider,
	})
	return app, nil
}

type routeDeps struct {
	base     *handlers.Handlers
	auth     *handlers.AuthHandlers
	checkIn  *handlers.CheckInHandlers
	events   *handlers.SSEHandler
	admin    *handlers.AdminHandlers
	sessions *session.Manager
	staff    StaffLoader
	metrics  *metrics.Provider
}

func setupRoutes(e *echo.Echo, d routeDeps) {
	e.GET("/health", d.base.Health)
	e.GET("/metrics", echo.WrapHandler(d.metrics.Handler()))

	api := e.Group("/api", appContext(), AuthMiddleware(d.sessions, d.staff))
	api.POST("/login", d.auth.Login)
	api.POST("/logout", d.auth.Logout)

	staff := api.Group("", RequireStaff())
	staff.GET("/me", d.auth.Me)
	staff.POST("/register", d.checkIn.Register)
	staff.POST("/verify", d.checkIn.Verify)
	staff.POST("/verify/image", d.checkIn.VerifyImage)
	staff.GET("/tokens/:token", d.checkIn.TokenStatus)
	staff.GET("/tokens/:token/qr", d.checkIn.TokenQR)
	staff.GET("/events", d.events.Events)

	admin := api.Group("/admin", RequireAdmin())
	admin.GET("/stats", d.admin.Stats)
}

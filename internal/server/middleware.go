// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"codeberg.org/oliverandrich/qr-checkin/internal/appcontext"
	"codeberg.org/oliverandrich/qr-checkin/internal/config"
	"codeberg.org/oliverandrich/qr-checkin/internal/i18n"
	"codeberg.org/oliverandrich/qr-checkin/internal/metrics"
	"codeberg.org/oliverandrich/qr-checkin/internal/models"
	"codeberg.org/oliverandrich/qr-checkin/internal/services/session"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// StaffLoader loads the staff member behind a session.
type StaffLoader interface {
	GetStaffByID(ctx context.Context, id int64) (*models.Staff, error)
}

func setupMiddleware(e *echo.Echo, cfg *config.Config, provider *metrics.Provider) {
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger())
	e.Use(provider.Middleware())
	e.Use(middleware.Secure())
	e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		// Compressing the event stream would buffer it.
		Skipper: func(c echo.Context) bool {
			return strings.HasSuffix(c.Request().URL.Path, "/events")
		},
	}))
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", cfg.Server.MaxBodySize)))
	e.Use(i18nMiddleware())
}

// requestLogger returns middleware that logs requests using slog.
func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogError:     true,
		LogRequestID: true,
		HandleError:  true,
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return path == "/health" || path == "/metrics"
		},
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", v.RequestID),
			}

			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
				slog.LogAttrs(c.Request().Context(), slog.LevelError, "request", attrs...)
			} else {
				slog.LogAttrs(c.Request().Context(), slog.LevelInfo, "request", attrs...)
			}

			return nil
		},
	})
}

// i18nMiddleware sets the locale based on Accept-Language header.
func i18nMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			acceptLang := c.Request().Header.Get("Accept-Language")
			lang := i18n.MatchLanguage(acceptLang)
			ctx := i18n.WithLocale(c.Request().Context(), lang)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// appContext wraps the Echo context with appcontext.Context.
func appContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := c.(*appcontext.Context); ok {
				return next(c)
			}
			return next(&appcontext.Context{Context: c})
		}
	}
}

// AuthMiddleware loads the staff member of a valid session cookie into
// the custom context. Requests without a session pass through.
func AuthMiddleware(sessions *session.Manager, loader StaffLoader) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc, ok := c.(*appcontext.Context)
			if !ok {
				return next(c)
			}

			data, err := sessions.Parse(c.Request())
			if err != nil || data == nil {
				return next(c)
			}

			staff, err := loader.GetStaffByID(c.Request().Context(), data.StaffID)
			if err != nil {
				slog.Debug("session_staff_not_loaded", "staff_id", data.StaffID, "error", err)
				return next(c)
			}

			cc.Staff = staff
			cc.Session = data
			return next(cc)
		}
	}
}

// RequireStaff rejects requests without a signed-in staff member.
func RequireStaff() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc, ok := c.(*appcontext.Context)
			if !ok || !cc.IsAuthenticated() {
				return jsonError(c, http.StatusUnauthorized, "error_unauthorized")
			}
			return next(c)
		}
	}
}

// RequireAdmin rejects requests from staff without the admin role.
func RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc, ok := c.(*appcontext.Context)
			if !ok || !cc.IsAuthenticated() {
				return jsonError(c, http.StatusUnauthorized, "error_unauthorized")
			}
			if !cc.Staff.IsAdmin() {
				return jsonError(c, http.StatusForbidden, "error_forbidden")
			}
			return next(c)
		}
	}
}

func jsonError(c echo.Context, status int, code string) error {
	return c.JSON(status, map[string]string{
		"error": i18n.T(c.Request().Context(), code),
		"code":  code,
	})
}

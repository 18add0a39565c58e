// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package appcontext provides the custom Echo context.
package appcontext

import (
	"codeberg.org/oliverandrich/qr-checkin/internal/models"
	"codeberg.org/oliverandrich/qr-checkin/internal/services/session"
	"github.com/labstack/echo/v4"
)

// Context is a custom Echo context carrying the signed-in staff member.
type Context struct {
	echo.Context
	Staff   *models.Staff // nil if not authenticated
	Session *session.Data
}

// GetStaff returns the authenticated staff member, or nil.
func (c *Context) GetStaff() *models.Staff {
	return c.Staff
}

// IsAuthenticated returns true if a staff member is signed in.
func (c *Context) IsAuthenticated() bool {
	return c.Staff != nil
}

// SessionID returns the session identifier, or "" without a session.
func (c *Context) SessionID() string {
	if c.Session == nil {
		return ""
	}
	return c.Session.ID
}

// From returns the custom context wrapping c, or nil.
func From(c echo.Context) *Context {
	cc, _ := c.(*Context)
	return cc
}

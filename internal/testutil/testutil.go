// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package testutil provides test helpers and fixtures.
package testutil

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"codeberg.org/oliverandrich/qr-checkin/internal/database"
	"codeberg.org/oliverandrich/qr-checkin/internal/models"
	"codeberg.org/oliverandrich/qr-checkin/internal/repository"
	"codeberg.org/oliverandrich/qr-checkin/internal/services/email"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"github.com/vinovest/sqlx"
	"golang.org/x/crypto/bcrypt"
)

// NewTestDB creates an in-memory SQLite database for tests.
// Returns both the database connection and the repository for convenience.
func NewTestDB(t *testing.T) (*sqlx.DB, *repository.Repository) {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db, repository.New(db)
}

// NewTestParticipant creates a participant with a fresh public ID.
func NewTestParticipant(t *testing.T, repo *repository.Repository, username, emailAddr string) *models.Participant {
	t.Helper()
	p := &models.Participant{
		PublicID:  uuid.NewString(),
		Username:  username,
		Email:     emailAddr,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.CreateParticipant(context.Background(), p))
	return p
}

// NewTestStaff creates a staff member whose password is "password".
func NewTestStaff(t *testing.T, repo *repository.Repository, emailAddr, role string) *models.Staff {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	require.NoError(t, err)
	s, err := repo.CreateStaff(context.Background(), emailAddr, "staff", string(hash), role)
	require.NoError(t, err)
	return s
}

// FixedClock returns a clock that always reports t.
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// Sender records deliveries and fails the first FailTimes calls
// (every call when FailTimes is negative).
type Sender struct {
	Err       error
	Sent      []email.Delivery
	FailTimes int
	Calls     int
	mu        sync.Mutex
}

// Send implements email.Sender.
func (s *Sender) Send(_ context.Context, d email.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	if s.FailTimes < 0 || s.Calls <= s.FailTimes {
		if s.Err == nil {
			return errors.New("send failed")
		}
		return s.Err
	}
	s.Sent = append(s.Sent, d)
	return nil
}

// CallCount returns the number of Send calls so far.
func (s *Sender) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Calls
}

// NewEchoContext creates an Echo context for handler tests.
func NewEchoContext(e *echo.Echo, method, path string, body io.Reader) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}

// NewRequest creates an HTTP request for testing.
func NewRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

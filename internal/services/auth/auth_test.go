// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth_test

import (
	"context"
	"testing"

	"codeberg.org/oliverandrich/qr-checkin/internal/models"
	"codeberg.org/oliverandrich/qr-checkin/internal/services/auth"
	"codeberg.org/oliverandrich/qr-checkin/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const strongPassword = "violet-lantern-harbor-42"

func newService(t *testing.T) *auth.Service {
	t.Helper()
	_, repo := testutil.NewTestDB(t)
	return auth.NewService(repo, auth.WithBcryptCost(bcrypt.MinCost))
}

func TestCreateStaff(t *testing.T) {
	svc := newService(t)

	staff, err := svc.CreateStaff(context.Background(), auth.CreateStaffParams{
		Email:    " Desk@Example.com ",
		Password: strongPassword,
	})

	require.NoError(t, err)
	assert.Equal(t, "desk@example.com", staff.Email)
	assert.Equal(t, "desk", staff.Username)
	assert.Equal(t, models.RoleVolunteer, staff.Role)
	assert.NotEqual(t, strongPassword, staff.PasswordHash)
}

func TestCreateStaff_Errors(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.CreateStaff(ctx, auth.CreateStaffParams{Email: "nope", Password: strongPassword})
	assert.ErrorIs(t, err, auth.ErrInvalidEmail)

	_, err = svc.CreateStaff(ctx, auth.CreateStaffParams{Email: "a@example.com", Password: strongPassword, Role: "root"})
	assert.ErrorIs(t, err, auth.ErrInvalidRole)

	_, err = svc.CreateStaff(ctx, auth.CreateStaffParams{Email: "a@example.com", Password: "short"})
	assert.ErrorIs(t, err, auth.ErrWeakPassword)

	_, err = svc.CreateStaff(ctx, auth.CreateStaffParams{Email: "a@example.com", Password: strongPassword, Role: models.RoleAdmin})
	require.NoError(t, err)
	_, err = svc.CreateStaff(ctx, auth.CreateStaffParams{Email: "A@example.com", Password: strongPassword})
	assert.ErrorIs(t, err, auth.ErrStaffExists)
}

func TestLogin(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	created, err := svc.CreateStaff(ctx, auth.CreateStaffParams{Email: "desk@example.com", Password: strongPassword})
	require.NoError(t, err)

	staff, err := svc.Login(ctx, "DESK@example.com", strongPassword)
	require.NoError(t, err)
	assert.Equal(t, created.ID, staff.ID)

	_, err = svc.Login(ctx, "desk@example.com", "wrong-password-entirely")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = svc.Login(ctx, "ghost@example.com", strongPassword)
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestChangePassword(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	staff, err := svc.CreateStaff(ctx, auth.CreateStaffParams{Email: "desk@example.com", Password: strongPassword})
	require.NoError(t, err)

	err = svc.ChangePassword(ctx, staff.ID, "not-the-current-one", "another-quiet-meadow-7")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	err = svc.ChangePassword(ctx, staff.ID, strongPassword, "123456789012")
	assert.ErrorIs(t, err, auth.ErrWeakPassword)

	require.NoError(t, svc.ChangePassword(ctx, staff.ID, strongPassword, "another-quiet-meadow-7"))

	_, err = svc.Login(ctx, "desk@example.com", "another-quiet-meadow-7")
	assert.NoError(t, err)
	_, err = svc.Login(ctx, "desk@example.com", strongPassword)
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

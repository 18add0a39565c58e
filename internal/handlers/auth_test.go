// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"codeberg.org/oliverandrich/qr-checkin/internal/appcontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin(t *testing.T) {
	v := newEnv(t)
	c, rec := v.staffContext(jsonRequest(t, http.MethodPost, "/api/login", map[string]string{
		"email":    "desk@example.com",
		"password": "password",
	}))

	require.NoError(t, v.auth.Login(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Signed in.", body["message"])
	user := body["user"].(map[string]any)
	assert.Equal(t, "desk@example.com", user["email"])
	assert.NotContains(t, user, "password_hash")

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "_session", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	data, err := v.sessions.Parse(req)
	require.NoError(t, err)
	require.NotNil(t, data)
	assert.Equal(t, v.staff.ID, data.StaffID)
}

func TestLogin_Failures(t *testing.T) {
	tests := []struct {
		name   string
		body   map[string]string
		status int
		code   string
	}{
		{"wrong password", map[string]string{"email": "desk@example.com", "password": "nope"}, http.StatusUnauthorized, "error_invalid_credentials"},
		{"unknown email", map[string]string{"email": "ghost@example.com", "password": "password"}, http.StatusUnauthorized, "error_invalid_credentials"},
		{"missing password", map[string]string{"email": "desk@example.com"}, http.StatusBadRequest, "error_invalid_credentials"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newEnv(t)
			c, rec := v.staffContext(jsonRequest(t, http.MethodPost, "/api/login", tt.body))

			require.NoError(t, v.auth.Login(c))

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeBody(t, rec)["code"])
			assert.Empty(t, rec.Result().Cookies())
		})
	}
}

func TestLogout(t *testing.T) {
	v := newEnv(t)
	c, rec := v.staffContext(httptest.NewRequest(http.MethodPost, "/api/logout", nil))

	require.NoError(t, v.auth.Logout(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Negative(t, cookies[0].MaxAge)
}

func TestMe(t *testing.T) {
	v := newEnv(t)
	c, rec := v.staffContext(httptest.NewRequest(http.MethodGet, "/api/me", nil))

	require.NoError(t, v.auth.Me(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "volunteer", body["role"])
	assert.InDelta(t, v.staff.ID, body["id"], 0)
}

func TestMe_Anonymous(t *testing.T) {
	v := newEnv(t)
	c, rec := v.staffContext(httptest.NewRequest(http.MethodGet, "/api/me", nil))
	anon := &appcontext.Context{Context: c.Context}

	require.NoError(t, v.auth.Me(anon))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

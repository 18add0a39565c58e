// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package session_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"codeberg.org/oliverandrich/qr-checkin/internal/config"
	"codeberg.org/oliverandrich/qr-checkin/internal/services/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	deskKey   = strings.Repeat("ab", 32)
	doorKey   = strings.Repeat("cd", 32)
	cipherKey = strings.Repeat("ef", 32)
)

func sessionConfig(hashKey string) *config.SessionConfig {
	return &config.SessionConfig{
		CookieName: "_checkin_session",
		MaxAge:     3600,
		HashKey:    hashKey,
	}
}

func newManager(t *testing.T, cfg *config.SessionConfig) *session.Manager {
	t.Helper()
	mgr, err := session.NewManager(cfg, false)
	require.NoError(t, err)
	return mgr
}

func requestWith(cookie *http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	return req
}

func TestNewManager_Keys(t *testing.T) {
	tests := []struct {
		name     string
		hashKey  string
		blockKey string
		wantErr  string
	}{
		{name: "hash key only", hashKey: deskKey},
		{name: "hash and block key", hashKey: deskKey, blockKey: cipherKey},
		{name: "generated hash key", hashKey: ""},
		{name: "hash key not hex", hashKey: "zz-not-hex", wantErr: "invalid session hash key"},
		{name: "hash key too short", hashKey: "abcd", wantErr: "invalid session hash key"},
		{name: "block key not hex", hashKey: deskKey, blockKey: "zz", wantErr: "invalid session block key"},
		{name: "block key too short", hashKey: deskKey, blockKey: "abcd", wantErr: "invalid session block key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := sessionConfig(tt.hashKey)
			cfg.BlockKey = tt.blockKey

			mgr, err := session.NewManager(cfg, false)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, mgr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, mgr)
		})
	}
}

func TestCreate_CookieAttributes(t *testing.T) {
	for _, secure := range []bool{false, true} {
		mgr, err := session.NewManager(sessionConfig(deskKey), secure)
		require.NoError(t, err)

		cookie, err := mgr.Create(7, "desk-volunteer")
		require.NoError(t, err)

		assert.Equal(t, "_checkin_session", cookie.Name)
		assert.NotEmpty(t, cookie.Value)
		assert.Equal(t, "/", cookie.Path)
		assert.Equal(t, 3600, cookie.MaxAge)
		assert.True(t, cookie.HttpOnly)
		assert.Equal(t, secure, cookie.Secure)
		assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	}
}

func TestParse_RoundTrip(t *testing.T) {
	cfg := sessionConfig(deskKey)
	cfg.BlockKey = cipherKey
	mgr := newManager(t, cfg)

	before := time.Now()
	cookie, err := mgr.Create(7, "desk-volunteer")
	require.NoError(t, err)
	assert.NotContains(t, cookie.Value, "desk-volunteer", "encrypted cookies must not leak the username")

	data, err := mgr.Parse(requestWith(cookie))
	require.NoError(t, err)
	require.NotNil(t, data)
	assert.Equal(t, int64(7), data.StaffID)
	assert.Equal(t, "desk-volunteer", data.Username)
	assert.Len(t, data.ID, 32)
	assert.WithinDuration(t, before.Add(time.Hour), data.ExpiresAt, 5*time.Second)
}

func TestParse_Rejected(t *testing.T) {
	mgr := newManager(t, sessionConfig(deskKey))
	cookie, err := mgr.Create(7, "desk-volunteer")
	require.NoError(t, err)

	tampered := *cookie
	tampered.Value = cookie.Value[:len(cookie.Value)-4] + "AAAA"

	foreign, err := newManager(t, sessionConfig(doorKey)).Create(7, "desk-volunteer")
	require.NoError(t, err)

	tests := []struct {
		cookie *http.Cookie
		name   string
	}{
		{name: "no cookie", cookie: nil},
		{name: "garbage", cookie: &http.Cookie{Name: "_checkin_session", Value: "garbage"}},
		{name: "tampered", cookie: &tampered},
		{name: "signed by another key", cookie: foreign},
		{name: "other cookie name", cookie: &http.Cookie{Name: "_other", Value: cookie.Value}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := mgr.Parse(requestWith(tt.cookie))
			require.NoError(t, err)
			assert.Nil(t, data)
		})
	}
}

func TestParse_Expired(t *testing.T) {
	cfg := sessionConfig(deskKey)
	cfg.MaxAge = 1
	mgr := newManager(t, cfg)

	cookie, err := mgr.Create(7, "door-volunteer")
	require.NoError(t, err)

	time.Sleep(1100 * time.Millisecond)

	data, err := mgr.Parse(requestWith(cookie))
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestClear(t *testing.T) {
	for _, secure := range []bool{false, true} {
		mgr, err := session.NewManager(sessionConfig(deskKey), secure)
		require.NoError(t, err)

		cookie := mgr.Clear()

		assert.Equal(t, "_checkin_session", cookie.Name)
		assert.Empty(t, cookie.Value)
		assert.Equal(t, -1, cookie.MaxAge)
		assert.Equal(t, "/", cookie.Path)
		assert.True(t, cookie.HttpOnly)
		assert.Equal(t, secure, cookie.Secure)
	}
}

func TestCreate_UniqueSessionIDs(t *testing.T) {
	mgr := newManager(t, sessionConfig(deskKey))

	seen := make(map[string]bool)
	for range 20 {
		cookie, err := mgr.Create(7, "desk-volunteer")
		require.NoError(t, err)
		data, err := mgr.Parse(requestWith(cookie))
		require.NoError(t, err)
		require.NotNil(t, data)
		assert.False(t, seen[data.ID], "duplicate session id %s", data.ID)
		seen[data.ID] = true
	}
}

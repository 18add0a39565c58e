// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"codeberg.org/oliverandrich/qr-checkin/internal/appcontext"
	"codeberg.org/oliverandrich/qr-checkin/internal/handlers"
	"codeberg.org/oliverandrich/qr-checkin/internal/services/session"
	"codeberg.org/oliverandrich/qr-checkin/internal/sse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// streamRecorder is a ResponseWriter that is safe to read while the
// handler is still streaming.
type streamRecorder struct {
	header http.Header
	buf    bytes.Buffer
	mu     sync.Mutex
	code   int
}

func (r *streamRecorder) Header() http.Header { return r.header }

func (r *streamRecorder) WriteHeader(code int) { r.code = code }

func (r *streamRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.Write(p)
}

func (r *streamRecorder) Flush() {}

func (r *streamRecorder) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.String()
}

func TestEvents_Unauthorized(t *testing.T) {
	v := newEnv(t)
	h := handlers.NewSSEHandler(v.hub)
	c, rec := v.staffContext(httptest.NewRequest(http.MethodGet, "/api/events", nil))
	anon := &appcontext.Context{Context: c.Context}

	require.NoError(t, h.Events(anon))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, v.hub.ClientCount())
}

func TestEvents_Stream(t *testing.T) {
	v := newEnv(t)
	h := handlers.NewSSEHandler(v.hub)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	w := &streamRecorder{header: http.Header{}}
	cc := &appcontext.Context{
		Context: v.e.NewContext(req, w),
		Staff:   v.staff,
		Session: &session.Data{ID: "sess-stream", StaffID: v.staff.ID},
	}

	done := make(chan error, 1)
	go func() { done <- h.Events(cc) }()

	require.Eventually(t, func() bool { return v.hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, v.hub.StaffCount())

	require.NoError(t, v.hub.Publish(sse.EventCheckIn, sse.CheckIn{OwnerID: "u1", Username: "Alice"}))
	require.Eventually(t, func() bool {
		return strings.Contains(w.String(), "event: "+sse.EventCheckIn)
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("stream did not stop after the client went away")
	}

	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.String(), "event: "+sse.EventConnected))
	assert.Contains(t, w.String(), `"username":"Alice"`)
	assert.Zero(t, v.hub.ClientCount())
}

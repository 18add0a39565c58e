// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider(t *testing.T) {
	p, err := NewProvider("checkin")
	require.NoError(t, err)
	assert.NotNil(t, p.Registry())
}

func TestRecordOperation(t *testing.T) {
	p, err := NewProvider("checkin")
	require.NoError(t, err)

	ctx := context.Background()
	p.RecordOperation(ctx, "verification", "verify", StatusSuccess)
	p.RecordOperation(ctx, "verification", "verify", StatusSuccess)
	p.RecordOperation(ctx, "verification", "verify", "already_consumed")

	assert.InDelta(t, 2, testutil.ToFloat64(p.operations.WithLabelValues("verification", "verify", StatusSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(p.operations.WithLabelValues("verification", "verify", "already_consumed")), 0)
}

func TestRecordDuration(t *testing.T) {
	p, err := NewProvider("checkin")
	require.NoError(t, err)

	p.RecordDuration(context.Background(), "issuance", "issue", 20*time.Millisecond, StatusSuccess)

	assert.Equal(t, 1, testutil.CollectAndCount(p.durations))
}

func TestHandler(t *testing.T) {
	p, err := NewProvider("checkin")
	require.NoError(t, err)
	p.RecordOperation(context.Background(), "issuance", "issue", StatusSuccess)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `checkin_operations_total{domain="issuance",operation="issue",status="success"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestMiddleware(t *testing.T) {
	p, err := NewProvider("checkin")
	require.NoError(t, err)

	e := echo.New()
	e.Use(p.Middleware())
	e.GET("/api/tokens/:token", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	e.GET("/fail", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusConflict, "nope")
	})
	e.GET("/broken", func(c echo.Context) error {
		return errors.New("boom")
	})

	for _, path := range []string{"/api/tokens/abc", "/api/tokens/def", "/fail", "/broken"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.InDelta(t, 2, testutil.ToFloat64(p.requests.WithLabelValues("GET", "/api/tokens/:token", "200")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(p.requests.WithLabelValues("GET", "/fail", "409")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(p.requests.WithLabelValues("GET", "/broken", "500")), 0)
}

func TestSanitizePath(t *testing.T) {
	assert.Equal(t, "unknown", sanitizePath(""))
	assert.Equal(t, "/api/verify", sanitizePath("/api/verify"))
}

func TestNoOp(t *testing.T) {
	var m BusinessMetrics = NoOp{}
	m.RecordOperation(context.Background(), "issuance", "issue", StatusSuccess)
	m.RecordDuration(context.Background(), "issuance", "issue", time.Second, StatusSuccess)
}

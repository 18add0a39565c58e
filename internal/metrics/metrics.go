// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package metrics exposes issuance, verification and HTTP counters in
// Prometheus format.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Status values recorded alongside operations.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// BusinessMetrics records business operations by domain ("issuance",
// "verification", "registration"), operation and status.
type BusinessMetrics interface {
	RecordOperation(ctx context.Context, domain, operation, status string)
	RecordDuration(ctx context.Context, domain, operation string, duration time.Duration, status string)
}

// Provider owns a private registry and the instruments registered on it.
type Provider struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
	requests   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

// NewProvider creates a provider whose metric names are prefixed with namespace.
func NewProvider(namespace string) (*Provider, error) {
	p := &Provider{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Total number of business operations.",
		}, []string{"domain", "operation", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of business operations in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"domain", "operation", "status"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status_code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status_code"}),
	}

	for _, c := range []prometheus.Collector{
		p.operations, p.durations, p.requests, p.latency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := p.registry.Register(c); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// Registry returns the underlying registry.
func (p *Provider) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in Prometheus exposition format.
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// RecordOperation implements BusinessMetrics.
func (p *Provider) RecordOperation(_ context.Context, domain, operation, status string) {
	p.operations.WithLabelValues(domain, operation, status).Inc()
}

// RecordDuration implements BusinessMetrics.
func (p *Provider) RecordDuration(_ context.Context, domain, operation string, duration time.Duration, status string) {
	p.durations.WithLabelValues(domain, operation, status).Observe(duration.Seconds())
}

// Middleware records request counts and latencies. The path label is the
// matched route pattern to keep cardinality bounded.
func (p *Provider) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := strconv.Itoa(c.Response().Status)
			path := sanitizePath(c.Path())
			method := c.Request().Method

			p.requests.WithLabelValues(method, path, status).Inc()
			p.latency.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

func sanitizePath(route string) string {
	if route == "" {
		return "unknown"
	}
	return route
}

// NoOp discards all measurements.
type NoOp struct{}

// RecordOperation implements BusinessMetrics.
func (NoOp) RecordOperation(context.Context, string, string, string) {}

// RecordDuration implements BusinessMetrics.
func (NoOp) RecordDuration(context.Context, string, string, time.Duration, string) {}

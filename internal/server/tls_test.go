// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"crypto/x509"
	"net"
	"path/filepath"
	"testing"

	"codeberg.org/oliverandrich/qr-checkin/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tlsTestConfig(t *testing.T, host, mode string) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{Host: host, Port: 8443},
		TLS:    config.TLSConfig{Mode: mode, CertDir: t.TempDir()},
	}
}

func TestResolveTLSMode(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		mode     string
		certFile string
		expected TLSMode
	}{
		{"explicit off", "checkin.example.com", "off", "", TLSModeOff},
		{"explicit uppercase", "checkin.example.com", "SELFSIGNED", "", TLSModeSelfSigned},
		{"explicit manual", "localhost", "manual", "", TLSModeManual},
		{"auto localhost", "localhost", "auto", "", TLSModeOff},
		{"empty mode localhost", "127.0.0.1", "", "", TLSModeOff},
		{"auto with cert files", "checkin.example.com", "auto", "cert.pem", TLSModeManual},
		{"auto lan ip", "192.168.1.20", "auto", "", TLSModeSelfSigned},
		{"unknown falls back to auto", "localhost", "bogus", "", TLSModeOff},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tlsTestConfig(t, tt.host, tt.mode)
			if tt.certFile != "" {
				cfg.TLS.CertFile = tt.certFile
				cfg.TLS.KeyFile = "key.pem"
			}
			assert.Equal(t, tt.expected, resolveTLSMode(cfg))
		})
	}
}

func TestACMEProblems(t *testing.T) {
	cfg := tlsTestConfig(t, "10.0.0.5", "acme")

	problems := acmeProblems(cfg)

	assert.Contains(t, problems, "host is an IP address")
	assert.Contains(t, problems, "TLS_EMAIL is not set")
}

func TestSetupTLS_Off(t *testing.T) {
	result, err := SetupTLS(tlsTestConfig(t, "localhost", "off"))

	require.NoError(t, err)
	assert.Equal(t, TLSModeOff, result.Mode)
	assert.Nil(t, result.TLSConfig)
}

func TestSetupTLS_ACMEUnavailable(t *testing.T) {
	_, err := SetupTLS(tlsTestConfig(t, "localhost", "acme"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "host is localhost")
}

func TestSetupTLS_ManualMissingFiles(t *testing.T) {
	_, err := SetupTLS(tlsTestConfig(t, "checkin.example.com", "manual"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires both cert-file and key-file")
}

func TestSetupTLS_SelfSigned(t *testing.T) {
	cfg := tlsTestConfig(t, "192.168.1.20", "selfsigned")

	result, err := SetupTLS(cfg)
	require.NoError(t, err)
	assert.Equal(t, TLSModeSelfSigned, result.Mode)
	require.Len(t, result.TLSConfig.Certificates, 1)

	leaf, err := x509.ParseCertificate(result.TLSConfig.Certificates[0].Certificate[0])
	require.NoError(t, err)
	require.NoError(t, leaf.VerifyHostname("192.168.1.20"))
	require.NoError(t, leaf.VerifyHostname("localhost"))
	assert.FileExists(t, filepath.Join(cfg.TLS.CertDir, "selfsigned", "cert.pem"))
	assert.FileExists(t, filepath.Join(cfg.TLS.CertDir, "selfsigned", "key.pem"))

	again, err := SetupTLS(cfg)
	require.NoError(t, err)
	assert.Equal(t,
		result.TLSConfig.Certificates[0].Certificate[0],
		again.TLSConfig.Certificates[0].Certificate[0],
		"stored certificate is reused")
}

func TestSetupTLS_SelfSignedRegeneratesForNewHost(t *testing.T) {
	cfg := tlsTestConfig(t, "checkin.local", "selfsigned")
	first, err := SetupTLS(cfg)
	require.NoError(t, err)

	cfg.Server.Host = "expo.local"
	second, err := SetupTLS(cfg)
	require.NoError(t, err)

	assert.NotEqual(t,
		first.TLSConfig.Certificates[0].Certificate[0],
		second.TLSConfig.Certificates[0].Certificate[0])
	leaf, err := x509.ParseCertificate(second.TLSConfig.Certificates[0].Certificate[0])
	require.NoError(t, err)
	assert.NoError(t, leaf.VerifyHostname("expo.local"))
}

func TestSetupTLS_ManualLoadsGeneratedPair(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")
	_, err := generateSelfSignedCert(certFile, keyFile, "checkin.example.com", []string{"checkin.example.com"}, nil)
	require.NoError(t, err)

	cfg := tlsTestConfig(t, "checkin.example.com", "manual")
	cfg.TLS.CertFile = certFile
	cfg.TLS.KeyFile = keyFile

	result, err := SetupTLS(cfg)
	require.NoError(t, err)
	assert.Equal(t, TLSModeManual, result.Mode)
}

func TestCertSubjects(t *testing.T) {
	dnsNames, ips := certSubjects("checkin.local")

	assert.Contains(t, dnsNames, "localhost")
	assert.Contains(t, dnsNames, "checkin.local")
	assert.True(t, containsIP(ips, net.IPv4(127, 0, 0, 1)))

	_, ips = certSubjects("0.0.0.0")
	assert.False(t, containsIP(ips, net.IPv4zero))
}

func TestFingerprint(t *testing.T) {
	dir := t.TempDir()
	cert, err := generateSelfSignedCert(filepath.Join(dir, "c.pem"), filepath.Join(dir, "k.pem"), "x", nil, nil)
	require.NoError(t, err)

	fp := fingerprint(&cert)

	assert.Len(t, fp, 32*3-1)
	assert.Equal(t, byte(':'), fp[2])
}

func containsIP(ips []net.IP, want net.IP) bool {
	for _, ip := range ips {
		if ip.Equal(want) {
			return true
		}
	}
	return false
}

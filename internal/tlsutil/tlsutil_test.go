package tlsutil

import (
	"crypto/tls"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTLSConfig(t *testing.T) {
	cfg := DefaultTLSConfig()
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	require.NotEmpty(t, cfg.CipherSuites)

	aead := map[uint16]bool{
		tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384: true,
		tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384:   true,
		tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256: true,
		tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256:   true,
		tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305:  true,
		tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305:    true,
	}
	for _, cs := range cfg.CipherSuites {
		assert.True(t, aead[cs], "non-AEAD suite %s", tls.CipherSuiteName(cs))
	}
}

func TestClientConfig(t *testing.T) {
	assert.Nil(t, ClientConfig(false, "redis:6379"))

	tests := []struct {
		addr       string
		serverName string
	}{
		{"redis.internal:6380", "redis.internal"},
		{"broker-1", "broker-1"},
		{"[::1]:9093", "::1"},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			cfg := ClientConfig(true, tt.addr)
			require.NotNil(t, cfg)
			assert.Equal(t, tt.serverName, cfg.ServerName)
			assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
		})
	}
}

func TestHTTPClient(t *testing.T) {
	client := HTTPClient(3 * time.Second)
	assert.Equal(t, 3*time.Second, client.Timeout)
	require.NotNil(t, client.Transport)
}

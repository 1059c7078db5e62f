// SPDX-License-Identifier: MIT

package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTrustedProxies(t *testing.T) {
	tp, err := ParseTrustedProxies([]string{"10.0.0.0/8", " 192.168.1.5 ", "", "::1"})
	require.NoError(t, err)
	assert.Len(t, tp, 3)

	_, err = ParseTrustedProxies([]string{"not-an-ip"})
	assert.Error(t, err)
}

func TestClientIP(t *testing.T) {
	tp, err := ParseTrustedProxies([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		proxies TrustedProxies
		remote  string
		xff     string
		realIP  string
		want    string
	}{
		{"no proxies ignores headers", nil, "10.0.0.1:1234", "1.2.3.4", "", "10.0.0.1"},
		{"untrusted peer ignores headers", tp, "8.8.8.8:1234", "1.2.3.4", "5.6.7.8", "8.8.8.8"},
		{"trusted peer uses xff", tp, "10.0.0.1:1234", "1.2.3.4", "", "1.2.3.4"},
		{"spoofed leftmost entry is skipped", tp, "10.0.0.1:1234", "6.6.6.6, 1.2.3.4", "", "1.2.3.4"},
		{"trusted hops are walked", tp, "10.0.0.1:1234", "1.2.3.4, 10.0.0.7", "", "1.2.3.4"},
		{"falls back to x-real-ip", tp, "10.0.0.1:1234", "", "5.6.7.8", "5.6.7.8"},
		{"trusted peer without headers", tp, "10.0.0.1:1234", "", "", "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				r.Header.Set("X-Real-IP", tt.realIP)
			}
			assert.Equal(t, tt.want, tt.proxies.ClientIP(r))
		})
	}
}

package httputil

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		expected   string
	}{
		{
			name:       "forwarded for single address",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.5"},
			remoteAddr: "10.0.0.1:4000",
			expected:   "203.0.113.5",
		},
		{
			name:       "forwarded chain takes the first hop",
			headers:    map[string]string{"X-Forwarded-For": "  198.51.100.7 , 203.0.113.9, 192.0.2.1"},
			remoteAddr: "10.0.0.1:4000",
			expected:   "198.51.100.7",
		},
		{
			name:       "forwarded IPv6",
			headers:    map[string]string{"X-Forwarded-For": "2001:db8::1, 203.0.113.9"},
			remoteAddr: "10.0.0.1:4000",
			expected:   "2001:db8::1",
		},
		{
			name:       "forwarded entry with port",
			headers:    map[string]string{"X-Forwarded-For": "[2001:db8::2]:8443"},
			remoteAddr: "10.0.0.1:4000",
			expected:   "2001:db8::2",
		},
		{
			name:       "garbage entries are skipped",
			headers:    map[string]string{"X-Forwarded-For": "unknown, 198.51.100.3"},
			remoteAddr: "10.0.0.1:4000",
			expected:   "198.51.100.3",
		},
		{
			name:       "real ip when forwarded for is unusable",
			headers:    map[string]string{"X-Forwarded-For": "not-an-ip", "X-Real-IP": "203.0.113.12"},
			remoteAddr: "10.0.0.1:4000",
			expected:   "203.0.113.12",
		},
		{
			name:       "remote addr IPv4",
			remoteAddr: "192.0.2.44:5555",
			expected:   "192.0.2.44",
		},
		{
			name:       "remote addr bracketed IPv6",
			remoteAddr: "[2001:db8::3]:443",
			expected:   "2001:db8::3",
		},
		{
			name:       "IPv4-mapped IPv6 is unmapped",
			remoteAddr: "[::ffff:192.0.2.9]:443",
			expected:   "192.0.2.9",
		},
		{
			name:       "unparseable remote addr returned as is",
			remoteAddr: "pipe",
			expected:   "pipe",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/webhook", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.expected, GetClientIP(r))
		})
	}
}

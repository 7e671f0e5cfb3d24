package security

import (
	"net/http/httptest"
	"testing"
)

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name              string
		remoteAddr        string
		xForwardedFor     string
		xRealIP           string
		trustProxy        bool
		trustedProxyCount int
		want              string
	}{
		{
			name:       "direct connection",
			remoteAddr: "203.0.113.5:45678",
			want:       "203.0.113.5",
		},
		{
			name:          "proxy not trusted ignores XFF",
			remoteAddr:    "10.0.0.1:1234",
			xForwardedFor: "203.0.113.5",
			trustProxy:    false,
			want:          "10.0.0.1",
		},
		{
			name:          "trusted proxy single hop",
			remoteAddr:    "10.0.0.1:1234",
			xForwardedFor: "203.0.113.5",
			trustProxy:    true,
			want:          "203.0.113.5",
		},
		{
			name:              "trusted proxy two hops",
			remoteAddr:        "10.0.0.1:1234",
			xForwardedFor:     "203.0.113.5, 198.51.100.2, 10.0.0.2",
			trustProxy:        true,
			trustedProxyCount: 2,
			want:              "203.0.113.5",
		},
		{
			name:       "X-Real-IP fallback",
			remoteAddr: "10.0.0.1:1234",
			xRealIP:    "203.0.113.9",
			trustProxy: true,
			want:       "203.0.113.9",
		},
		{
			name:          "malformed XFF falls back to RemoteAddr",
			remoteAddr:    "10.0.0.1:1234",
			xForwardedFor: "not-an-ip",
			trustProxy:    true,
			want:          "10.0.0.1",
		},
		{
			name:       "IPv6 remote addr",
			remoteAddr: "[2001:db8::1]:443",
			want:       "2001:db8::1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xForwardedFor != "" {
				req.Header.Set("X-Forwarded-For", tt.xForwardedFor)
			}
			if tt.xRealIP != "" {
				req.Header.Set("X-Real-IP", tt.xRealIP)
			}

			got := GetClientIP(req, tt.trustProxy, tt.trustedProxyCount)
			if got != tt.want {
				t.Errorf("GetClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

package middleware

import (
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		forwarded  string
		realIP     string
		remoteAddr string
		want       string
	}{
		{"first forwarded hop wins", "203.0.113.5, 10.0.0.1", "10.0.0.2", "10.0.0.3:443", "203.0.113.5"},
		{"forwarded hop trimmed", " 203.0.113.5 ,10.0.0.1", "", "10.0.0.3:443", "203.0.113.5"},
		{"real ip when no forwarded", "", "203.0.113.6", "10.0.0.3:443", "203.0.113.6"},
		{"socket address fallback", "", "", "203.0.113.7:8443", "203.0.113.7"},
		{"socket address without port", "", "", "203.0.113.8", "203.0.113.8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if tt.realIP != "" {
				r.Header.Set("X-Real-IP", tt.realIP)
			}

			if got := ClientIP(r); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	if got := bearerToken(r); got != "" {
		t.Errorf("bearerToken() without header = %q, want empty", got)
	}

	r.Header.Set("Authorization", "Bearer abc123")
	if got := bearerToken(r); got != "abc123" {
		t.Errorf("bearerToken() = %q, want abc123", got)
	}

	r.Header.Set("Authorization", "Basic abc123")
	if got := bearerToken(r); got != "" {
		t.Errorf("bearerToken() with basic auth = %q, want empty", got)
	}
}

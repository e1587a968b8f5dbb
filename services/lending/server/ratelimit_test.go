package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientIDIgnoresHeadersFromUntrustedPeer(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RequestsPerMinute: 60, Burst: 1})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.1.1:9000"
	req.Header.Set("X-Forwarded-For", "198.51.100.7")
	req.Header.Set("X-Real-IP", "198.51.100.8")

	if id := limiter.clientID(req); id != "10.1.1.1" {
		t.Fatalf("expected peer address, got %q", id)
	}
}

func TestSpoofedForwardedForDoesNotBypassLimit(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RequestsPerMinute: 1, Burst: 1})
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.1.1.1:9000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))
		allowed := limiter.allow(limiter.clientID(req))
		if i == 0 && !allowed {
			t.Fatalf("first request should pass")
		}
		if i > 0 && allowed {
			t.Fatalf("request %d with a rotated header should be throttled", i)
		}
	}
}

func TestClientIDHonoursTrustedProxy(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RequestsPerMinute: 60, Burst: 1, TrustedProxies: []string{"10.0.0.1", "10.0.0.2"}})
	cases := []struct {
		name    string
		forward string
		realIP  string
		want    string
	}{
		{name: "forwarded", forward: "198.51.100.7", want: "198.51.100.7"},
		{name: "port stripped", forward: " 198.51.100.9:443 ", want: "198.51.100.9"},
		{name: "nearest untrusted hop", forward: "203.0.113.5, 198.51.100.3, 10.0.0.2", want: "198.51.100.3"},
		{name: "real ip fallback", realIP: "198.51.100.4", want: "198.51.100.4"},
		{name: "no headers", want: "10.0.0.1"},
		{name: "garbage header", forward: "not-an-ip", want: "10.0.0.1"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		if tc.forward != "" {
			req.Header.Set("X-Forwarded-For", tc.forward)
		}
		if tc.realIP != "" {
			req.Header.Set("X-Real-IP", tc.realIP)
		}
		if id := limiter.clientID(req); id != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.want, id)
		}
	}
}

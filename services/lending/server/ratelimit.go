package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"sbtlend/observability"
)

// maxForwardedHops caps how many X-Forwarded-For entries are inspected.
const maxForwardedHops = 16

// RateLimit bounds the request rate of a single client. Forwarding headers
// are only honoured when the peer is listed in TrustedProxies.
type RateLimit struct {
	RequestsPerMinute float64
	Burst             int
	TrustedProxies    []string
}

type rateEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a token bucket per client address.
type RateLimiter struct {
	limit    RateLimit
	trusted  map[string]struct{}
	mu       sync.Mutex
	visitors map[string]*rateEntry
	clockNow func() time.Time
	idleTTL  time.Duration
}

// NewRateLimiter returns nil when limit disables throttling.
func NewRateLimiter(limit RateLimit) *RateLimiter {
	if limit.RequestsPerMinute <= 0 {
		return nil
	}
	trusted := make(map[string]struct{}, len(limit.TrustedProxies))
	for _, proxy := range limit.TrustedProxies {
		if ip := canonicalIP(proxy); ip != "" {
			trusted[ip] = struct{}{}
		}
	}
	return &RateLimiter{
		limit:    limit,
		trusted:  trusted,
		visitors: make(map[string]*rateEntry),
		clockNow: time.Now,
		idleTTL:  5 * time.Minute,
	}
}

// Middleware throttles requests for module.
func (r *RateLimiter) Middleware(module string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if r == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !r.allow(r.clientID(req)) {
				observability.ModuleMetrics().RecordThrottle(module, "rate_limit")
				writeStatus(w, http.StatusTooManyRequests, "rate_limited", http.StatusText(http.StatusTooManyRequests))
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

func (r *RateLimiter) allow(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clockNow()
	for key, entry := range r.visitors {
		if now.Sub(entry.lastSeen) > r.idleTTL {
			delete(r.visitors, key)
		}
	}
	entry, ok := r.visitors[id]
	if !ok {
		burst := r.limit.Burst
		if burst <= 0 {
			burst = 1
		}
		entry = &rateEntry{limiter: rate.NewLimiter(rate.Limit(r.limit.RequestsPerMinute/60.0), burst)}
		r.visitors[id] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// clientID identifies the caller for throttling. Requests arriving through a
// trusted proxy are keyed by the nearest untrusted hop it forwarded.
func (r *RateLimiter) clientID(req *http.Request) string {
	peer := canonicalIP(req.RemoteAddr)
	if peer == "" {
		return req.RemoteAddr
	}
	if !r.isTrusted(peer) {
		return peer
	}
	if fwd := req.Header.Get("X-Forwarded-For"); fwd != "" {
		hops := strings.Split(fwd, ",")
		if len(hops) > maxForwardedHops {
			hops = hops[len(hops)-maxForwardedHops:]
		}
		for i := len(hops) - 1; i >= 0; i-- {
			ip := canonicalIP(hops[i])
			if ip == "" {
				continue
			}
			if !r.isTrusted(ip) {
				return ip
			}
		}
	}
	if ip := canonicalIP(req.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return peer
}

func (r *RateLimiter) isTrusted(ip string) bool {
	_, ok := r.trusted[ip]
	return ok
}

// canonicalIP parses an address with or without a port and returns its
// canonical text form, or "" when it is not an IP.
func canonicalIP(raw string) string {
	raw = strings.TrimSpace(raw)
	if host, _, err := net.SplitHostPort(raw); err == nil {
		raw = host
	}
	if ip := net.ParseIP(raw); ip != nil {
		return ip.String()
	}
	return ""
}

package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/dukerupert/guilddash/internal/metrics"
)

// PeerIP returns the host part of RemoteAddr, the address of the socket peer.
func PeerIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ForwardedIP prefers CF-Connecting-IP, then the first X-Forwarded-For hop,
// then the socket peer. The headers are client-controlled unless a proxy in
// front of the service overwrites them.
func ForwardedIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			xff = xff[:i]
		}
		if ip := strings.TrimSpace(xff); ip != "" {
			return ip
		}
	}
	return PeerIP(r)
}

// ClientIP picks how requests are attributed to a client. Forwarding headers
// are honoured only when trustProxyHeaders is set.
func ClientIP(trustProxyHeaders bool) func(*http.Request) string {
	if trustProxyHeaders {
		return ForwardedIP
	}
	return PeerIP
}

type window struct {
	count   int
	resetAt time.Time
}

// RateLimiter is a fixed-window, in-memory request counter keyed by client.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	clock   clockwork.Clock
}

func NewRateLimiter(clock clockwork.Clock) *RateLimiter {
	return &RateLimiter{
		windows: make(map[string]*window),
		clock:   clock,
	}
}

// Allow counts a request for key and reports whether it is within limit for
// the current window, along with when that window resets.
func (rl *RateLimiter) Allow(key string, limit int, per time.Duration) (bool, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	w, ok := rl.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{count: 1, resetAt: now.Add(per)}
		rl.windows[key] = w
		return true, w.resetAt
	}
	w.count++
	return w.count <= limit, w.resetAt
}

// Cleanup removes expired windows and returns how many were dropped.
func (rl *RateLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	n := 0
	for key, w := range rl.windows {
		if !now.Before(w.resetAt) {
			delete(rl.windows, key)
			n++
		}
	}
	return n
}

// RateLimit rejects requests over limit per window with a JSON 429.
func RateLimit(limiter *RateLimiter, keyFunc func(*http.Request) string, limit int, per time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, resetAt := limiter.Allow(keyFunc(r), limit, per)
			if !ok {
				metrics.RateLimitedTotal.Inc()
				retry := int(resetAt.Sub(limiter.clock.Now()).Seconds()) + 1
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				writeError(w, http.StatusTooManyRequests, "Too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

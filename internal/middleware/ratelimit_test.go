package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter(clockwork.NewRealClock())

	for i := 0; i < 5; i++ {
		if ok, _ := rl.Allow("key", 5, time.Minute); !ok {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	if ok, _ := rl.Allow("key", 5, time.Minute); ok {
		t.Error("6th request should be denied")
	}
	if ok, _ := rl.Allow("other", 5, time.Minute); !ok {
		t.Error("separate key should have its own window")
	}
}

func TestRateLimiterWindowReset(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	rl := NewRateLimiter(clock)

	for i := 0; i < 3; i++ {
		rl.Allow("key", 3, 15*time.Minute)
	}
	if ok, _ := rl.Allow("key", 3, 15*time.Minute); ok {
		t.Error("should be blocked within window")
	}

	clock.Advance(15 * time.Minute)
	if ok, _ := rl.Allow("key", 3, 15*time.Minute); !ok {
		t.Error("should be allowed after window expires")
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	rl := NewRateLimiter(clock)

	rl.Allow("expired", 5, time.Minute)
	clock.Advance(2 * time.Minute)
	rl.Allow("active", 5, time.Minute)

	if n := rl.Cleanup(); n != 1 {
		t.Errorf("Cleanup removed %d, want 1", n)
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.windows["expired"]; ok {
		t.Error("expired entry should have been cleaned up")
	}
	if _, ok := rl.windows["active"]; !ok {
		t.Error("active entry should still exist")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(clockwork.NewRealClock())
	keyFunc := func(r *http.Request) string { return "test" }

	handler := RateLimit(rl, keyFunc, 2, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("GET", "/", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i+1, rec.Code, http.StatusOK)
		}
	}

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("3rd request: status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
	if got := errorBody(t, rec); got != "Too many requests" {
		t.Errorf("error = %q", got)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		peer    string
		proxied string
	}{
		{"cloudflare", map[string]string{"CF-Connecting-IP": "1.1.1.1", "X-Forwarded-For": "2.2.2.2"}, "3.3.3.3:1", "3.3.3.3", "1.1.1.1"},
		{"forwarded chain", map[string]string{"X-Forwarded-For": "2.2.2.2, 10.0.0.1"}, "3.3.3.3:1", "3.3.3.3", "2.2.2.2"},
		{"forwarded single", map[string]string{"X-Forwarded-For": " 2.2.2.2 "}, "3.3.3.3:1", "3.3.3.3", "2.2.2.2"},
		{"forwarded empty hop", map[string]string{"X-Forwarded-For": " , 2.2.2.2"}, "3.3.3.3:1", "3.3.3.3", "3.3.3.3"},
		{"remote addr", nil, "3.3.3.3:1234", "3.3.3.3", "3.3.3.3"},
		{"remote without port", nil, "3.3.3.3", "3.3.3.3", "3.3.3.3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := ClientIP(false)(req); got != tt.peer {
				t.Errorf("untrusted ClientIP = %q, want %q", got, tt.peer)
			}
			if got := ClientIP(true)(req); got != tt.proxied {
				t.Errorf("trusted ClientIP = %q, want %q", got, tt.proxied)
			}
		})
	}
}

func TestRateLimitIgnoresSpoofedHeaders(t *testing.T) {
	limiter := NewRateLimiter(clockwork.NewFakeClock())
	h := RateLimit(limiter, ClientIP(false), 3, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var last int
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = "203.0.113.7:5000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))
		req.Header.Set("CF-Connecting-IP", fmt.Sprintf("192.0.2.%d", i))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("4th request status = %d, want 429", last)
	}
}

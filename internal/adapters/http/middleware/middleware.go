package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/csrf"
)

// RateLimiter is a per-client token bucket.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int           // tokens per interval
	interval time.Duration // refill interval
	now      func() time.Time
}

type visitor struct {
	tokens   int
	lastSeen time.Time
}

// NewRateLimiter allows rate requests per interval per client.
func NewRateLimiter(rate int, interval time.Duration) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		interval: interval,
		now:      time.Now,
	}
}

// Allow spends one token of key's bucket.
// PRE: key is non-empty
// POST: Returns false when the bucket is empty
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, ok := rl.visitors[key]
	if !ok {
		rl.visitors[key] = &visitor{tokens: rl.rate - 1, lastSeen: now}
		return true
	}

	if refill := int(now.Sub(v.lastSeen)/rl.interval) * rl.rate; refill > 0 {
		v.tokens = min(v.tokens+refill, rl.rate)
		v.lastSeen = now
	}
	if v.tokens <= 0 {
		return false
	}
	v.tokens--
	return true
}

// Sweep forgets clients idle for longer than idle.
func (rl *RateLimiter) Sweep(idle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-idle)
	removed := 0
	for key, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, key)
			removed++
		}
	}
	return removed
}

// RunSweeper sweeps idle clients every minute until ctx is done.
func (rl *RateLimiter) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.Sweep(5 * time.Minute)
		case <-ctx.Done():
			return
		}
	}
}

// RateLimit rejects clients over their budget with 429.
func RateLimit(limiter *RateLimiter) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(limiter.interval.Seconds()))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !limiter.Allow(ip) {
				slog.Warn("rate_limit_exceeded", "ip", ip, "path", r.URL.Path)
				w.Header().Set("Retry-After", retryAfter)
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// SecurityHeaders adds the OWASP headers suited to a JSON API.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// CSRFHeader carries the token clients echo back on unsafe cookie requests.
const CSRFHeader = "X-CSRF-Token"

type csrfExemptKey struct{}

// CSRF protects cookie-authenticated requests. Every request passes through
// the token layer so csrf.Token is available to handlers, but JSON requests
// and requests carrying a bearer token are never rejected: browsers cannot
// forge either cross-origin without a preflight.
// PRE: authKey is 32 bytes
func CSRF(authKey []byte, secure bool, trustedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		reject := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exempt, _ := r.Context().Value(csrfExemptKey{}).(bool); exempt {
				next.ServeHTTP(w, r)
				return
			}
			reason := csrf.FailureReason(r)
			slog.Warn("csrf_rejected", "method", r.Method, "path", r.URL.Path, "reason", reason)
			http.Error(w, fmt.Sprintf("%s - %s", http.StatusText(http.StatusForbidden), reason), http.StatusForbidden)
		})
		protected := csrf.Protect(
			authKey,
			csrf.Secure(secure),
			csrf.Path("/"),
			csrf.TrustedOrigins(trustedOrigins),
			csrf.RequestHeader(CSRFHeader),
			csrf.ErrorHandler(reject),
		)(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") || bearerToken(r) != "" {
				r = r.WithContext(context.WithValue(r.Context(), csrfExemptKey{}, true))
			}
			if !secure {
				r = csrf.PlaintextHTTPRequest(r)
			}
			protected.ServeHTTP(w, r)
		})
	}
}

// CSRFToken returns the masked token issued for r, or "" outside CSRF.
func CSRFToken(r *http.Request) string {
	return csrf.Token(r)
}

// Chain applies middlewares in order; the last one is outermost.
func Chain(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for _, m := range middlewares {
		h = m(h)
	}
	return h
}

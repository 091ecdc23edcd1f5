package middleware

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"timetable/internal/adapters/metrics"
)

// DefaultSlowRequest is the threshold used when Timing gets zero.
const DefaultSlowRequest = 500 * time.Millisecond

const unmatchedRoute = "unmatched"

// requestIDCounter numbers requests for log correlation.
var requestIDCounter uint64

type routeKey struct{}

// route is filled in by Route once the mux has matched a pattern.
type route struct {
	pattern string
}

// Route labels requests served by h with pattern for metrics. Registered
// handlers wrap themselves with it so Timing can label by route rather than
// raw path.
func Route(pattern string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rt, ok := r.Context().Value(routeKey{}).(*route); ok {
			rt.pattern = pattern
		}
		h.ServeHTTP(w, r)
	})
}

// statusWriter captures the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

// Hijack hands the connection to a websocket upgrader.
func (sw *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := sw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	sw.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}

var statusWriterPool = sync.Pool{
	New: func() any { return &statusWriter{} },
}

// Timing logs each request and records its latency by route. Requests at or
// above threshold log at WARN, others at DEBUG.
func Timing(m *metrics.Metrics, threshold time.Duration) func(http.Handler) http.Handler {
	if threshold <= 0 {
		threshold = DefaultSlowRequest
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := atomic.AddUint64(&requestIDCounter, 1)
			rt := &route{pattern: unmatchedRoute}
			r = r.WithContext(context.WithValue(r.Context(), routeKey{}, rt))

			sw := statusWriterPool.Get().(*statusWriter)
			sw.ResponseWriter = w
			sw.status = http.StatusOK
			defer func() {
				d := time.Since(start)
				level := slog.LevelDebug
				msg := "request"
				if d >= threshold {
					level, msg = slog.LevelWarn, "slow_request"
				}
				slog.Log(r.Context(), level, msg,
					"request_id", reqID,
					"method", r.Method,
					"path", r.URL.Path,
					"route", rt.pattern,
					"status", sw.status,
					"duration_ms", float64(d.Microseconds())/1000.0,
				)
				m.ObserveRequest(r.Method, rt.pattern, sw.status, d)

				sw.ResponseWriter = nil
				statusWriterPool.Put(sw)
			}()

			next.ServeHTTP(sw, r)
		})
	}
}

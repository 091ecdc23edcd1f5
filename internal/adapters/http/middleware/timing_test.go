package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"timetable/internal/adapters/metrics"
)

const requestMetric = "timetable_http_request_duration_seconds"

// TestTiming_RecordsRoute verifies that requests are labelled by route pattern.
func TestTiming_RecordsRoute(t *testing.T) {
	m := metrics.New()
	mux := http.NewServeMux()
	mux.Handle("GET /api/classes/{id}", Route("GET /api/classes/{id}", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))
	handler := Timing(m, 0)(mux)

	for _, id := range []string{"a", "b", "c"} {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest("GET", "/api/classes/"+id, nil))
	}

	n, err := testutil.GatherAndCount(m.Registry(), requestMetric)
	if err != nil {
		t.Fatalf("GatherAndCount: %v", err)
	}
	if n != 1 {
		t.Errorf("expected one series for three ids, got %d", n)
	}
}

// TestTiming_CapturesStatusCode verifies the status code is passed through.
func TestTiming_CapturesStatusCode(t *testing.T) {
	handler := Timing(nil, 0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/missing", nil))

	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

// TestTiming_UnmatchedRoute verifies unrouted paths share one label.
func TestTiming_UnmatchedRoute(t *testing.T) {
	m := metrics.New()
	handler := Timing(m, 0)(http.NotFoundHandler())

	for _, p := range []string{"/x", "/y"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", p, nil))
	}
	n, err := testutil.GatherAndCount(m.Registry(), requestMetric)
	if err != nil {
		t.Fatalf("GatherAndCount: %v", err)
	}
	if n != 1 {
		t.Errorf("expected a single unmatched series, got %d", n)
	}
}

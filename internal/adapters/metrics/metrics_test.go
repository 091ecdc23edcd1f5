package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestMetrics_Counters tests mutation and notification counters.
func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.CountMutation("create", nil)
	m.CountMutation("create", nil)
	m.CountMutation("update", errors.New("boom"))
	m.CountNotification("email", nil)

	if got := testutil.ToFloat64(m.mutations.WithLabelValues("create", "ok")); got != 2 {
		t.Errorf("expected 2 create mutations, got %v", got)
	}
	if got := testutil.ToFloat64(m.mutations.WithLabelValues("update", "error")); got != 1 {
		t.Errorf("expected 1 failed update, got %v", got)
	}
	if got := testutil.ToFloat64(m.notifications.WithLabelValues("email", "ok")); got != 1 {
		t.Errorf("expected 1 email notification, got %v", got)
	}
}

// TestMetrics_Handler tests the exposition endpoint.
func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveRequest("GET", "/api/classes", 200, 3*time.Millisecond)
	m.ObserveQuery("ExecContext", time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, name := range []string{"timetable_http_request_duration_seconds", "timetable_db_query_duration_seconds"} {
		if !strings.Contains(body, name) {
			t.Errorf("expected %s in exposition", name)
		}
	}
}

// TestMetrics_Nil tests that a nil Metrics is a no-op.
func TestMetrics_Nil(t *testing.T) {
	var m *Metrics
	m.ObserveRequest("GET", "/", 200, time.Millisecond)
	m.ObserveQuery("op", time.Millisecond)
	m.CountMutation("create", nil)
	m.CountNotification("log", nil)
	if m.Registry() != nil {
		t.Error("expected nil registry")
	}
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 from nil metrics handler, got %d", rec.Code)
	}
}

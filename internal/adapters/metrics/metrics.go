package metrics

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	requestDuration *prometheus.HistogramVec
	queryDuration   *prometheus.HistogramVec
	mutations       *prometheus.CounterVec
	notifications   *prometheus.CounterVec
}

// New creates a Metrics instance on its own registry.
// POST: Go runtime and process collectors are registered alongside service metrics
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "timetable",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method, route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "timetable",
			Name:      "db_query_duration_seconds",
			Help:      "Database call latency by operation.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		}, []string{"op"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "timetable",
			Name:      "entry_mutations_total",
			Help:      "Entry store mutations by operation and result.",
		}, []string{"op", "result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "timetable",
			Name:      "notifications_total",
			Help:      "Notifications handed to a transport, by transport and result.",
		}, []string{"transport", "result"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestDuration,
		m.queryDuration,
		m.mutations,
		m.notifications,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RegisterDB exports connection pool statistics for db labelled with name.
func (m *Metrics) RegisterDB(db *sql.DB, name string) error {
	if m == nil {
		return nil
	}
	return m.registry.Register(collectors.NewDBStatsCollector(db, name))
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(method, path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method, path, strconv.Itoa(status)).Observe(d.Seconds())
}

// ObserveQuery records one database call.
func (m *Metrics) ObserveQuery(op string, d time.Duration) {
	if m == nil {
		return
	}
	m.queryDuration.WithLabelValues(op).Observe(d.Seconds())
}

// CountMutation records an entry store mutation outcome.
func (m *Metrics) CountMutation(op string, err error) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(op, result(err)).Inc()
}

// CountNotification records a transport hand-off outcome.
func (m *Metrics) CountNotification(transport string, err error) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(transport, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

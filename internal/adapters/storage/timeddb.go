package storage

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"timetable/internal/adapters/metrics"
)

// SQLDB is the database interface used by all stores.
// Both *sql.DB and *TimedDB satisfy this interface.
type SQLDB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

var _ SQLDB = (*sql.DB)(nil)

// DefaultSlowQueryMs is the default threshold for slow query warnings.
const DefaultSlowQueryMs = 50

var (
	slowQueryThreshold time.Duration
	slowQueryOnce      sync.Once
)

// slowQuery returns the threshold from TIMETABLE_SLOW_QUERY_MS, read once.
func slowQuery() time.Duration {
	slowQueryOnce.Do(func() {
		ms := DefaultSlowQueryMs
		if v := os.Getenv("TIMETABLE_SLOW_QUERY_MS"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				ms = n
			}
		}
		slowQueryThreshold = time.Duration(ms) * time.Millisecond
	})
	return slowQueryThreshold
}

// TimedDB wraps a *sql.DB: it rebinds placeholders for the dialect, logs
// slow calls and records latency histograms.
type TimedDB struct {
	db        *sql.DB
	dialect   Dialect
	metrics   *metrics.Metrics
	threshold time.Duration
}

var _ SQLDB = (*TimedDB)(nil)

// NewTimedDB wraps db for the given dialect. m may be nil.
// PRE: db is a valid database connection
// POST: Returns a TimedDB that rebinds, logs and records every call
func NewTimedDB(db *sql.DB, dialect Dialect, m *metrics.Metrics) *TimedDB {
	return &TimedDB{
		db:        db,
		dialect:   dialect,
		metrics:   m,
		threshold: slowQuery(),
	}
}

// WithSlowThreshold overrides the slow query threshold. Non-positive values
// are ignored.
func (t *TimedDB) WithSlowThreshold(d time.Duration) *TimedDB {
	if d > 0 {
		t.threshold = d
	}
	return t
}

// RawDB returns the underlying *sql.DB for pool statistics.
func (t *TimedDB) RawDB() *sql.DB {
	return t.db
}

// Dialect returns the SQL dialect the wrapper rebinds for.
func (t *TimedDB) Dialect() Dialect {
	return t.dialect
}

func (t *TimedDB) observe(op, query string, start time.Time) {
	elapsed := time.Since(start)
	durationMs := float64(elapsed.Microseconds()) / 1000.0
	if elapsed >= t.threshold {
		slog.Warn("slow_query", "op", op, "statement", firstWord(query), "duration_ms", durationMs)
	} else {
		slog.Debug("query", "op", op, "statement", firstWord(query), "duration_ms", durationMs)
	}
	t.metrics.ObserveQuery(op, elapsed)
}

// ExecContext wraps sql.DB.ExecContext with rebinding and timing.
func (t *TimedDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	query = t.dialect.Rebind(query)
	start := time.Now()
	result, err := t.db.ExecContext(ctx, query, args...)
	t.observe("exec", query, start)
	return result, err
}

// QueryContext wraps sql.DB.QueryContext with rebinding and timing.
func (t *TimedDB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	query = t.dialect.Rebind(query)
	start := time.Now()
	rows, err := t.db.QueryContext(ctx, query, args...)
	t.observe("query", query, start)
	return rows, err
}

// QueryRowContext wraps sql.DB.QueryRowContext with rebinding and timing.
func (t *TimedDB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	query = t.dialect.Rebind(query)
	start := time.Now()
	row := t.db.QueryRowContext(ctx, query, args...)
	t.observe("query_row", query, start)
	return row
}

// BeginTx wraps sql.DB.BeginTx with timing. Statements on the returned *sql.Tx
// are not rebound; callers use Dialect().Rebind.
func (t *TimedDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	start := time.Now()
	tx, err := t.db.BeginTx(ctx, opts)
	t.observe("begin_tx", "BEGIN", start)
	return tx, err
}

// PingContext verifies the database connection.
func (t *TimedDB) PingContext(ctx context.Context) error {
	return t.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (t *TimedDB) Close() error {
	return t.db.Close()
}

func firstWord(query string) string {
	query = strings.TrimSpace(query)
	if i := strings.IndexAny(query, " \n\t("); i > 0 {
		return strings.ToUpper(query[:i])
	}
	return strings.ToUpper(query)
}

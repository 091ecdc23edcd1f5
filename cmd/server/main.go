package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"

	"timetable/internal/adapters/email"
	web "timetable/internal/adapters/http"
	"timetable/internal/adapters/http/middleware"
	"timetable/internal/adapters/metrics"
	"timetable/internal/adapters/notify"
	"timetable/internal/adapters/storage"
	outboxStore "timetable/internal/adapters/storage/outbox"
	rosterStore "timetable/internal/adapters/storage/roster"
	"timetable/internal/adapters/storage/timetable"
	"timetable/internal/application/entrystore"
	"timetable/internal/application/orchestrators"
	"timetable/internal/config"
	"timetable/internal/domain/outbox"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	slog.SetDefault(newLogger(cfg))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	backend, err := openBackend(ctx, cfg, m)
	if err != nil {
		log.Fatalf("failed to open %s storage: %v", cfg.Storage, err)
	}
	defer backend.Close()

	entries, err := entrystore.Open(ctx, entrystore.Deps{
		Snapshots: backend.snapshots,
		Namespace: cfg.Namespace,
		Metrics:   m,
	})
	if err != nil {
		log.Fatalf("failed to load timetable: %v", err)
	}

	// Configure email sender
	var sender email.Sender
	if cfg.ResendKey != "" {
		sender = email.NewResendSender(cfg.ResendKey, cfg.EmailFrom)
		slog.Info("email_sender_configured", "transport", "resend")
	} else {
		sender = email.NewLogSender()
		if cfg.IsProduction() {
			slog.Warn("email_delivery_disabled", "hint", "TIMETABLE_RESEND_KEY is not set")
		}
	}

	var rosterChanged func(string)
	hub := notify.NewHub(nil)
	transports := notify.Fanout{
		notify.Instrumented{Transport: "log", Next: notify.LogNotifier{}, Metrics: m},
		notify.Instrumented{Transport: "websocket", Next: hub, Metrics: m},
	}
	if backend.roster != nil {
		emailer := notify.NewEmailNotifier(notify.EmailDeps{
			Roster: backend.roster,
			Sender: sender,
			Outbox: backend.outbox,
			From:   cfg.EmailFrom,
		})
		transports = append(transports, notify.Instrumented{Transport: "email", Next: emailer, Metrics: m})
		rosterChanged = emailer.Forget
	}
	if backend.redis != nil && cfg.NotifyQueue != "" {
		queue := notify.NewQueuePublisher(backend.redis, cfg.NotifyQueue)
		transports = append(transports, notify.Instrumented{Transport: "queue", Next: queue, Metrics: m})
	}

	// Start outbox background worker for retrying failed deliveries
	var outboxDone <-chan struct{}
	var processor *orchestrators.OutboxProcessor
	if backend.outbox != nil {
		processor = orchestrators.NewOutboxProcessor(backend.outbox, map[string]orchestrators.ActionExecutor{
			outbox.ActionTypeNotificationEmail: &orchestrators.EmailBatchExecutor{Sender: sender},
		})
		outboxDone = orchestrators.StartOutboxWorker(ctx, processor, cfg.OutboxInterval)
	}

	csrfKey, err := web.LoadCSRFKey(cfg.CSRFKey, cfg.IsProduction())
	if err != nil {
		log.Fatalf("csrf key: %v", err)
	}
	limiter := middleware.NewRateLimiter(cfg.RateLimitPerMin, time.Minute)
	go limiter.RunSweeper(ctx)

	deps := web.Deps{
		Entries:       entries,
		Notifier:      transports,
		Sessions:      middleware.NewSessionStore(cfg.TokenTTL),
		Tokens:        middleware.NewTokens(cfg.JWTKey, cfg.JWTIssuer, cfg.TokenTTL),
		Push:          hub,
		RosterChanged: rosterChanged,
		Metrics:       m,
		Limiter:       limiter,
		CSRFKey:       csrfKey,
		Secure:        cfg.IsProduction(),
		SlowRequest:   cfg.SlowRequest,
		TokenTTL:      cfg.TokenTTL,
	}
	if backend.roster != nil {
		deps.Roster = backend.roster
	}
	if processor != nil {
		deps.Outbox = processor
	}
	handler, err := web.NewMux(deps)
	if err != nil {
		log.Fatalf("failed to build router: %v", err)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown_failed", "error", err)
		}
	}()

	slog.Info("server_starting",
		"version", version,
		"addr", cfg.Addr,
		"env", cfg.Env,
		"storage", cfg.Storage,
		"schema", storage.LatestSchemaVersion(),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server failed: %v", err)
	}
	if outboxDone != nil {
		<-outboxDone
	}
	slog.Info("server_stopped")
}

func newLogger(cfg config.App) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// backend groups the stores of the selected storage engine. roster and
// outbox are only available on SQL engines.
type backend struct {
	snapshots timetable.Store
	roster    *rosterStore.SQLStore
	outbox    *outboxStore.SQLStore
	redis     *redis.Client
	closers   []func() error
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			slog.Warn("close_failed", "error", err)
		}
	}
}

func openBackend(ctx context.Context, cfg config.App, m *metrics.Metrics) (*backend, error) {
	b := &backend{}
	if cfg.Storage == config.StorageRedis || cfg.NotifyQueue != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		b.closers = append(b.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			if cfg.Storage == config.StorageRedis {
				b.Close()
				return nil, err
			}
			slog.Warn("notify_queue_disabled", "redis_addr", cfg.RedisAddr, "error", err)
		} else {
			b.redis = client
		}
	}

	switch cfg.Storage {
	case config.StorageMemory:
		b.snapshots = timetable.NewMemoryStore()
		slog.Warn("memory_storage", "hint", "the timetable is lost on restart")
	case config.StorageRedis:
		b.snapshots = timetable.NewRedisStore(b.redis, "")
	case config.StorageSQLite, config.StoragePostgres:
		db, err := openSQL(ctx, cfg, m)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.closers = append(b.closers, db.Close)
		b.snapshots = timetable.NewSQLStore(db)
		b.roster = rosterStore.NewSQLStore(db)
		b.outbox = outboxStore.NewSQLStore(db)
	}
	return b, nil
}

func openSQL(ctx context.Context, cfg config.App, m *metrics.Metrics) (*storage.TimedDB, error) {
	dialect := storage.DialectSQLite
	// WAL mode, foreign keys and a busy timeout for concurrent readers.
	// synchronous(FULL) fsyncs every commit so an acknowledged write survives power loss.
	dsn := cfg.DBPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)&_pragma=synchronous(FULL)"
	if cfg.Storage == config.StoragePostgres {
		dialect = storage.DialectPostgres
		dsn = cfg.DatabaseURL
	}

	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}

	timed := storage.NewTimedDB(db, dialect, m).WithSlowThreshold(cfg.SlowQuery)
	if err := m.RegisterDB(timed.RawDB(), string(dialect)); err != nil {
		slog.Warn("db_stats_unavailable", "error", err)
	}
	if err := storage.MigrateDB(ctx, timed); err != nil {
		db.Close()
		return nil, err
	}
	schema, err := storage.SchemaVersion(ctx, timed)
	if err != nil {
		db.Close()
		return nil, err
	}
	slog.Info("database_ready", "dialect", dialect, "schema", schema)
	return timed, nil
}

package web

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"timetable/internal/adapters/http/middleware"
	"timetable/internal/adapters/metrics"
	rosterStore "timetable/internal/adapters/storage/roster"
	"timetable/internal/application/orchestrators"
	"timetable/internal/domain/classentry"
	"timetable/internal/domain/viewer"
)

// EntryStore is the entry collection the handlers read and mutate.
type EntryStore interface {
	Create(ctx context.Context, d classentry.Draft) (classentry.ClassEntry, error)
	Update(ctx context.Context, id string, p classentry.Patch) (classentry.ClassEntry, error)
	Delete(ctx context.Context, id string) error
	List() []classentry.ClassEntry
	Get(id string) (classentry.ClassEntry, error)
}

// PushServer upgrades a request into a live notification stream.
type PushServer interface {
	Serve(w http.ResponseWriter, r *http.Request, session viewer.Session)
}

// Deps holds everything the HTTP surface needs. Zero values fall back to
// development defaults.
type Deps struct {
	Entries  EntryStore
	Notifier orchestrators.Notifier // nil disables status notifications
	Sessions *middleware.SessionStore
	Tokens   *middleware.Tokens
	Push     PushServer        // nil disables /ws
	Roster   rosterStore.Store // nil disables /api/roster
	Outbox   OutboxAdmin       // nil disables /api/outbox
	// RosterChanged is told the class code of every saved member.
	RosterChanged func(classCode string)
	Metrics       *metrics.Metrics
	Limiter       *middleware.RateLimiter
	CSRFKey       []byte
	Secure        bool
	SlowRequest   time.Duration
	TokenTTL      time.Duration
	Now           func() time.Time
}

// ErrCSRFKeyRequired is returned when production starts without a key.
var ErrCSRFKeyRequired = errors.New("TIMETABLE_CSRF_KEY is required in production")

// ErrCSRFKeyInvalid is returned for a key that is not 32 hex-encoded bytes.
var ErrCSRFKeyInvalid = errors.New("TIMETABLE_CSRF_KEY must be 64 hex characters (32 bytes)")

// LoadCSRFKey decodes the configured CSRF secret. Outside production an
// empty key yields a random one, so sessions will not survive a restart.
func LoadCSRFKey(keyHex string, production bool) ([]byte, error) {
	if keyHex != "" {
		key, err := hex.DecodeString(keyHex)
		if err != nil || len(key) != 32 {
			return nil, ErrCSRFKeyInvalid
		}
		return key, nil
	}
	if production {
		return nil, ErrCSRFKeyRequired
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	slog.Warn("csrf_key_random", "hint", "set TIMETABLE_CSRF_KEY to keep sessions across restarts")
	return key, nil
}

type server struct {
	deps     Deps
	validate *validator.Validate
}

// NewMux wires the JSON API and its middleware.
// PRE: deps.Entries, deps.Sessions and deps.Tokens are non-nil
// POST: Returns a handler with Timing outermost and the mux innermost
func NewMux(deps Deps) (http.Handler, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.TokenTTL <= 0 {
		deps.TokenTTL = 12 * time.Hour
	}
	if deps.Limiter == nil {
		deps.Limiter = middleware.NewRateLimiter(600, time.Minute)
	}
	if len(deps.CSRFKey) == 0 {
		key, err := LoadCSRFKey("", deps.Secure)
		if err != nil {
			return nil, err
		}
		deps.CSRFKey = key
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})

	s := &server{deps: deps, validate: validate}
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	return middleware.Chain(mux,
		middleware.SecurityHeaders,
		middleware.CSRF(deps.CSRFKey, deps.Secure, nil),
		middleware.Auth(deps.Sessions, deps.Tokens),
		middleware.RateLimit(deps.Limiter),
		middleware.Timing(deps.Metrics, deps.SlowRequest),
	), nil
}

func (s *server) registerRoutes(mux *http.ServeMux) {
	handle := func(pattern string, h http.Handler) {
		mux.Handle(pattern, middleware.Route(pattern, h))
	}
	authed := func(f http.HandlerFunc) http.Handler { return middleware.RequireAuth(f) }

	handle("GET /healthz", http.HandlerFunc(s.handleHealth))
	if s.deps.Metrics != nil {
		handle("GET /metrics", s.deps.Metrics.Handler())
	}

	handle("POST /api/session", http.HandlerFunc(s.handleLogin))
	handle("DELETE /api/session", http.HandlerFunc(s.handleLogout))
	handle("GET /api/session", authed(s.handleWhoAmI))

	handle("GET /api/classes", authed(s.handleListClasses))
	handle("POST /api/classes", authed(s.handleCreateClass))
	handle("GET /api/classes/{id}", authed(s.handleGetClass))
	handle("PATCH /api/classes/{id}", authed(s.handleUpdateClass))
	handle("DELETE /api/classes/{id}", authed(s.handleDeleteClass))
	handle("PUT /api/classes/{id}/status", authed(s.handleSetStatus))

	handle("GET /api/days/{day}", authed(s.handleDay))
	handle("GET /api/today", authed(s.handleToday))
	handle("GET /api/week", authed(s.handleWeek))
	handle("GET /api/cohorts/{code}", authed(s.handleCohort))
	handle("GET /api/slots", http.HandlerFunc(s.handleSlots))

	professor := func(f http.HandlerFunc) http.Handler {
		return middleware.RequireRole(viewer.RoleProfessor)(f)
	}
	if s.deps.Roster != nil {
		handle("GET /api/roster/{id}", professor(s.handleGetMember))
		handle("PUT /api/roster/{id}", professor(s.handlePutMember))
	}
	if s.deps.Outbox != nil {
		handle("GET /api/outbox/failed", professor(s.handleListFailedOutbox))
		handle("POST /api/outbox/{id}/retry", professor(s.handleRetryOutbox))
		handle("POST /api/outbox/{id}/abandon", professor(s.handleAbandonOutbox))
		handle("DELETE /api/outbox/{id}", professor(s.handleDeleteOutbox))
	}
	if s.deps.Push != nil {
		handle("GET /ws", authed(s.handleWebSocket))
	}
}

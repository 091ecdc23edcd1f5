package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	outboxStore "timetable/internal/adapters/storage/outbox"
	"timetable/internal/domain/outbox"
)

// OutboxAdmin manages notification emails whose delivery keeps failing.
type OutboxAdmin interface {
	ListFailed(ctx context.Context, limit int) ([]outbox.Entry, error)
	ProcessSingle(ctx context.Context, id string) error
	AbandonEntry(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// handleListFailedOutbox lists entries whose retry budget is spent.
// Query: limit (1-100, default 50).
func (s *server) handleListFailedOutbox(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	entries, err := s.deps.Outbox.ListFailed(r.Context(), limit)
	if err != nil {
		writeOutboxError(w, r, err)
		return
	}
	if entries == nil {
		entries = []outbox.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *server) handleRetryOutbox(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Outbox.ProcessSingle(r.Context(), r.PathValue("id")); err != nil {
		writeOutboxError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "retry triggered"})
}

func (s *server) handleAbandonOutbox(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Outbox.AbandonEntry(r.Context(), r.PathValue("id")); err != nil {
		writeOutboxError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "abandoned"})
}

func (s *server) handleDeleteOutbox(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Outbox.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeOutboxError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeOutboxError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, outboxStore.ErrNotFound):
		writeError(w, http.StatusNotFound, "outbox entry not found")
	case errors.Is(err, outbox.ErrTerminal):
		writeError(w, http.StatusConflict, err.Error())
	default:
		slog.Error("outbox_admin_failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusServiceUnavailable, "storage unavailable, try again")
	}
}

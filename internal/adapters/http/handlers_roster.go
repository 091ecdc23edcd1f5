package web

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	rosterStore "timetable/internal/adapters/storage/roster"
	"timetable/internal/domain/roster"
)

type rosterRequest struct {
	Email     string `json:"email" validate:"required,email,max=254"`
	Name      string `json:"name" validate:"max=200"`
	Role      string `json:"role" validate:"required,oneof=student professor"`
	ClassCode string `json:"classCode" validate:"max=64"`
}

// handleGetMember returns one roster member of the professor's own cohort.
// Members of other cohorts look missing.
func (s *server) handleGetMember(w http.ResponseWriter, r *http.Request) {
	m, err := s.deps.Roster.GetByID(r.Context(), r.PathValue("id"))
	if errors.Is(err, rosterStore.ErrNotFound) || (err == nil && m.ClassCode != viewerFrom(r).ClassCode) {
		writeError(w, http.StatusNotFound, "roster member not found")
		return
	}
	if err != nil {
		slog.Error("roster_lookup_failed", "member_id", r.PathValue("id"), "error", err)
		writeError(w, http.StatusServiceUnavailable, "storage unavailable, try again")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// handlePutMember registers or updates a member of the professor's own
// cohort. Professors only.
func (s *server) handlePutMember(w http.ResponseWriter, r *http.Request) {
	var req rosterRequest
	if !s.decodeValid(w, r, &req) {
		return
	}
	actor := viewerFrom(r)
	m := roster.Member{
		ID:        r.PathValue("id"),
		Email:     strings.TrimSpace(req.Email),
		Name:      strings.TrimSpace(req.Name),
		Role:      req.Role,
		ClassCode: strings.TrimSpace(req.ClassCode),
	}
	if err := m.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if m.ClassCode != actor.ClassCode {
		writeError(w, http.StatusForbidden, "members can only be registered in your own cohort")
		return
	}
	existing, err := s.deps.Roster.GetByID(r.Context(), m.ID)
	switch {
	case err == nil && existing.ClassCode != actor.ClassCode:
		writeError(w, http.StatusForbidden, "member belongs to another cohort")
		return
	case err != nil && !errors.Is(err, rosterStore.ErrNotFound):
		slog.Error("roster_lookup_failed", "member_id", m.ID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "storage unavailable, try again")
		return
	}

	if err := s.deps.Roster.Save(r.Context(), m); err != nil {
		slog.Error("roster_save_failed", "member_id", m.ID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "storage unavailable, try again")
		return
	}
	if s.deps.RosterChanged != nil && m.ClassCode != "" {
		s.deps.RosterChanged(m.ClassCode)
	}
	slog.Info("roster_member_saved", "member_id", m.ID, "role", m.Role, "class_code", m.ClassCode, "by", actor.ID)
	writeJSON(w, http.StatusOK, m)
}

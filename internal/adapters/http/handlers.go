package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"timetable/internal/adapters/http/middleware"
	"timetable/internal/application/orchestrators"
	"timetable/internal/application/projections"
	"timetable/internal/domain/classentry"
	"timetable/internal/domain/viewer"
)

const dayList = "Monday Tuesday Wednesday Thursday Friday Saturday Sunday"

type sessionRequest struct {
	ID        string `json:"id" validate:"required,max=128"`
	Role      string `json:"role" validate:"required,oneof=student professor"`
	ClassCode string `json:"classCode" validate:"max=64"`
}

type sessionResponse struct {
	Session   viewer.Session `json:"session"`
	Token     string         `json:"token"`
	ExpiresAt string         `json:"expiresAt"`
}

type createClassRequest struct {
	Day       string `json:"day" validate:"required,oneof=Monday Tuesday Wednesday Thursday Friday Saturday Sunday"`
	Subject   string `json:"subject" validate:"required,max=200"`
	StartTime string `json:"startTime" validate:"required,datetime=15:04"`
	EndTime   string `json:"endTime" validate:"required,datetime=15:04"`
	Location  string `json:"location" validate:"max=200"`
	Notes     string `json:"notes" validate:"max=2000"`
	Status    string `json:"status" validate:"omitempty,oneof=scheduled canceled rescheduled"`
	ClassCode string `json:"classCode" validate:"max=64"`
}

type patchClassRequest struct {
	Day       *string `json:"day" validate:"omitempty,oneof=Monday Tuesday Wednesday Thursday Friday Saturday Sunday"`
	Subject   *string `json:"subject" validate:"omitempty,max=200"`
	StartTime *string `json:"startTime" validate:"omitempty,datetime=15:04"`
	EndTime   *string `json:"endTime" validate:"omitempty,datetime=15:04"`
	Location  *string `json:"location" validate:"omitempty,max=200"`
	Notes     *string `json:"notes" validate:"omitempty,max=2000"`
	Status    *string `json:"status" validate:"omitempty,oneof=scheduled canceled rescheduled"`
	ClassCode *string `json:"classCode" validate:"omitempty,max=64"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=scheduled canceled rescheduled"`
}

type statusResponse struct {
	Entry    classentry.ClassEntry `json:"entry"`
	Notified bool                  `json:"notified"`
}

type slotResponse struct {
	Time  string `json:"time"`
	Label string `json:"label"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response_encode_failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// internalError logs the detail and hides it from the client.
func internalError(w http.ResponseWriter, err error) {
	slog.Error("internal_error", "error", err.Error())
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// strictDecode decodes JSON from the request body, rejecting unknown fields.
func strictDecode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// decodeValid decodes and validates a request body, writing 400 on failure.
func (s *server) decodeValid(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := strictDecode(w, r, v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err.Error()
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "oneof":
			msgs = append(msgs, fe.Field()+" must be one of: "+fe.Param())
		case "datetime":
			msgs = append(msgs, fe.Field()+" must be HH:MM")
		case "max":
			msgs = append(msgs, fe.Field()+" exceeds "+fe.Param()+" characters")
		default:
			msgs = append(msgs, fe.Field()+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}

// writeStoreError maps error kinds to status codes.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, classentry.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, classentry.ErrNotFound):
		writeError(w, http.StatusNotFound, "class entry not found")
	case errors.Is(err, classentry.ErrPersistence):
		slog.Error("persistence_unavailable", "error", err.Error())
		writeError(w, http.StatusServiceUnavailable, "storage unavailable, try again")
	default:
		internalError(w, err)
	}
}

func (s *server) snapshot() projections.ClassesDeps {
	return projections.ClassesDeps{Entries: s.deps.Entries}
}

// viewerFrom returns the authenticated session. Routes are wrapped in
// RequireAuth, so a missing session is a wiring bug.
func viewerFrom(r *http.Request) viewer.Session {
	v, _ := middleware.GetSessionFromContext(r.Context())
	return v
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "entries": len(s.deps.Entries.List())})
}

// handleLogin accepts an identity from the upstream provider and opens a
// cookie session plus a bearer token for API clients.
func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !s.decodeValid(w, r, &req) {
		return
	}
	sess := viewer.Session{ID: req.ID, Role: req.Role, ClassCode: strings.TrimSpace(req.ClassCode)}
	if err := sess.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	token, err := s.deps.Sessions.Create(sess)
	if err != nil {
		internalError(w, err)
		return
	}
	jwtToken, expires, err := s.deps.Tokens.Issue(sess)
	if err != nil {
		internalError(w, err)
		return
	}
	middleware.SetSessionCookie(w, token, s.deps.TokenTTL, s.deps.Secure)
	w.Header().Set(middleware.CSRFHeader, middleware.CSRFToken(r))
	slog.Info("session_opened", "viewer_id", sess.ID, "role", sess.Role, "class_code", sess.ClassCode)
	writeJSON(w, http.StatusCreated, sessionResponse{
		Session:   sess,
		Token:     jwtToken,
		ExpiresAt: expires.UTC().Format(time.RFC3339),
	})
}

func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := middleware.SessionToken(r); token != "" {
		s.deps.Sessions.Delete(token)
	}
	middleware.ClearSessionCookie(w, s.deps.Secure)
	w.WriteHeader(http.StatusNoContent)
}

// handleWhoAmI also hands cookie clients a fresh CSRF token.
func (s *server) handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(middleware.CSRFHeader, middleware.CSRFToken(r))
	writeJSON(w, http.StatusOK, viewerFrom(r))
}

func (s *server) handleListClasses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, projections.QueryVisibleClasses(viewerFrom(r), s.snapshot()))
}

func (s *server) handleGetClass(w http.ResponseWriter, r *http.Request) {
	e, err := s.deps.Entries.Get(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !viewerFrom(r).CanSee(e) {
		writeError(w, http.StatusNotFound, "class entry not found")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *server) handleCreateClass(w http.ResponseWriter, r *http.Request) {
	var req createClassRequest
	if !s.decodeValid(w, r, &req) {
		return
	}
	draft := classentry.Draft{
		Day:       req.Day,
		Subject:   req.Subject,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Location:  req.Location,
		Notes:     req.Notes,
		Status:    req.Status,
		ClassCode: strings.TrimSpace(req.ClassCode),
	}
	if !viewerFrom(r).CanManage(classentry.ClassEntry{ClassCode: draft.ClassCode}) {
		writeError(w, http.StatusForbidden, "only the cohort's professor can add its classes")
		return
	}

	e, err := s.deps.Entries.Create(r.Context(), draft)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (s *server) handleUpdateClass(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	current, err := s.deps.Entries.Get(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	var req patchClassRequest
	if !s.decodeValid(w, r, &req) {
		return
	}
	v := viewerFrom(r)
	if !v.CanManage(current) {
		writeError(w, http.StatusForbidden, "not allowed to edit this class")
		return
	}
	if req.ClassCode != nil {
		code := strings.TrimSpace(*req.ClassCode)
		req.ClassCode = &code
		if !v.CanManage(classentry.ClassEntry{ClassCode: code}) {
			writeError(w, http.StatusForbidden, "not allowed to move this class to that cohort")
			return
		}
	}

	e, err := s.deps.Entries.Update(r.Context(), id, classentry.Patch{
		Day:       req.Day,
		Subject:   req.Subject,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Location:  req.Location,
		Notes:     req.Notes,
		Status:    req.Status,
		ClassCode: req.ClassCode,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *server) handleDeleteClass(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if current, err := s.deps.Entries.Get(id); err == nil && !viewerFrom(r).CanManage(current) {
		writeError(w, http.StatusForbidden, "not allowed to delete this class")
		return
	}
	if err := s.deps.Entries.Delete(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	current, err := s.deps.Entries.Get(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	var req statusRequest
	if !s.decodeValid(w, r, &req) {
		return
	}
	v := viewerFrom(r)
	if !v.CanManage(current) {
		writeError(w, http.StatusForbidden, "not allowed to change this class")
		return
	}

	result, err := orchestrators.ExecuteSetStatus(r.Context(), orchestrators.SetStatusInput{
		EntryID: id,
		Target:  req.Status,
		Actor:   v,
	}, orchestrators.SetStatusDeps{
		EntryStore: s.deps.Entries,
		Notifier:   s.deps.Notifier,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Entry: result.Entry, Notified: result.Notification != nil})
}

func (s *server) handleDay(w http.ResponseWriter, r *http.Request) {
	day := r.PathValue("day")
	if !classentry.IsValidDay(day) {
		writeError(w, http.StatusBadRequest, "day must be one of: "+dayList)
		return
	}
	writeJSON(w, http.StatusOK, projections.QueryClassesForDay(day, viewerFrom(r), s.snapshot()))
}

func (s *server) handleToday(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, projections.QueryToday(s.deps.Now(), viewerFrom(r), s.snapshot()))
}

func (s *server) handleWeek(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, projections.QueryWeek(viewerFrom(r), s.snapshot()))
}

// handleCohort lists a cohort's classes. Students may only read their own
// cohort; professors may read any.
func (s *server) handleCohort(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	v := viewerFrom(r)
	if !v.IsProfessor() && v.ClassCode != code {
		writeError(w, http.StatusForbidden, "not a member of this cohort")
		return
	}

	day := r.URL.Query().Get("day")
	if day == "" {
		writeJSON(w, http.StatusOK, projections.QueryClassesByCode(code, s.snapshot()))
		return
	}
	if !classentry.IsValidDay(day) {
		writeError(w, http.StatusBadRequest, "day must be one of: "+dayList)
		return
	}
	writeJSON(w, http.StatusOK, projections.QueryCohortDay(code, day, s.snapshot()))
}

func (s *server) handleSlots(w http.ResponseWriter, r *http.Request) {
	slots := classentry.TimeSlots()
	out := make([]slotResponse, 0, len(slots))
	for _, sl := range slots {
		out = append(out, slotResponse{Time: sl.Time, Label: sl.Label})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.deps.Push.Serve(w, r, viewerFrom(r))
}

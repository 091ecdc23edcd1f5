package viewer

import (
	"errors"
	"strings"

	"timetable/internal/domain/classentry"
)

// Role constants
const (
	RoleStudent   = "student"
	RoleProfessor = "professor"
)

// ValidRoles contains all valid role values.
var ValidRoles = []string{RoleStudent, RoleProfessor}

// Domain errors
var (
	ErrEmptyID     = errors.New("session id cannot be empty")
	ErrInvalidRole = errors.New("role must be one of: student, professor")
)

// Session is the identity supplied by the identity provider. The timetable
// core only reads it.
type Session struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	ClassCode string `json:"classCode,omitempty"`
}

// Validate checks if the Session has valid data.
// PRE: Session struct is populated
// POST: Returns nil if valid, error otherwise
func (s *Session) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return ErrEmptyID
	}
	if s.Role != RoleStudent && s.Role != RoleProfessor {
		return ErrInvalidRole
	}
	return nil
}

// IsProfessor reports whether the session belongs to an instructor.
func (s Session) IsProfessor() bool {
	return s.Role == RoleProfessor
}

// IsStudent reports whether the session belongs to a student.
func (s Session) IsStudent() bool {
	return s.Role == RoleStudent
}

// CanSee applies cohort scoping. Students see entries without a class code
// and entries whose code equals their own; professors are not code-filtered.
// INVARIANT: neither s nor e is mutated
func (s Session) CanSee(e classentry.ClassEntry) bool {
	if !s.IsStudent() {
		return true
	}
	if !e.HasClassCode() {
		return true
	}
	return e.ClassCode == s.ClassCode
}

// CanManage reports whether s may edit e. A cohort entry is managed by the
// professor of that cohort; entries without a class code are open to every
// signed-in viewer.
// INVARIANT: neither s nor e is mutated
func (s Session) CanManage(e classentry.ClassEntry) bool {
	if !e.HasClassCode() {
		return true
	}
	return s.IsProfessor() && s.ClassCode == e.ClassCode
}

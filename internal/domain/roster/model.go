package roster

import (
	"errors"
	"strings"

	"timetable/internal/domain/viewer"
)

// Max length constants for user-editable fields.
const (
	MaxEmailLength = 254
)

// Domain errors
var (
	ErrEmptyID      = errors.New("member id cannot be empty")
	ErrEmptyEmail   = errors.New("email cannot be empty")
	ErrInvalidEmail = errors.New("email must contain '@'")
	ErrEmailTooLong = errors.New("email cannot exceed 254 characters")
	ErrInvalidRole  = errors.New("role must be one of: student, professor")
)

// Member is a person reachable by cohort notifications. Students are
// addressed by their class code; professors are listed for completeness.
type Member struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	Role      string `json:"role"`
	ClassCode string `json:"classCode,omitempty"`
}

// Validate checks if the Member has valid data.
// PRE: Member struct is populated
// POST: Returns nil if valid, error otherwise
func (m *Member) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(m.Email) == "" {
		return ErrEmptyEmail
	}
	if len(m.Email) > MaxEmailLength {
		return ErrEmailTooLong
	}
	if !strings.Contains(m.Email, "@") {
		return ErrInvalidEmail
	}
	if m.Role != viewer.RoleStudent && m.Role != viewer.RoleProfessor {
		return ErrInvalidRole
	}
	return nil
}

// InCohort reports whether m is a student of the given class code.
// INVARIANT: Member fields are not mutated
func (m *Member) InCohort(classCode string) bool {
	return m.Role == viewer.RoleStudent && classCode != "" && m.ClassCode == classCode
}

// Session returns the viewer identity of the member.
func (m *Member) Session() viewer.Session {
	return viewer.Session{ID: m.ID, Role: m.Role, ClassCode: m.ClassCode}
}

// Emails returns the addresses of members, skipping duplicates.
func Emails(members []Member) []string {
	seen := make(map[string]bool, len(members))
	var out []string
	for _, m := range members {
		key := strings.ToLower(m.Email)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, m.Email)
	}
	return out
}

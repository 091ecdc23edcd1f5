package notification

import (
	"errors"
	"fmt"
	"strings"

	"timetable/internal/domain/classentry"
	"timetable/internal/domain/viewer"
)

// Domain errors
var (
	ErrEmptyScope   = errors.New("recipient scope cannot be empty")
	ErrEmptySubject = errors.New("notification subject cannot be empty")
	ErrEmptyBody    = errors.New("notification body cannot be empty")
)

// Notification is the payload handed to the notification capability.
// RecipientsScope names a cohort: every student whose class code equals it.
type Notification struct {
	RecipientsScope string `json:"recipientsScope"`
	Subject         string `json:"subject"`
	Body            string `json:"body"` // Markdown
}

// Validate checks if the Notification has valid data.
// PRE: Notification struct is populated
// POST: Returns nil if valid, error otherwise
func (n *Notification) Validate() error {
	if strings.TrimSpace(n.RecipientsScope) == "" {
		return ErrEmptyScope
	}
	if strings.TrimSpace(n.Subject) == "" {
		return ErrEmptySubject
	}
	if strings.TrimSpace(n.Body) == "" {
		return ErrEmptyBody
	}
	return nil
}

// Sentence returns the canned status sentence for a target status.
func Sentence(status string) string {
	switch status {
	case classentry.StatusCanceled:
		return "class has been canceled"
	case classentry.StatusRescheduled:
		return "has been rescheduled"
	default:
		return "is confirmed to take place as scheduled"
	}
}

// ShouldNotify reports whether a status change on e made by actor must be
// announced to the cohort.
func ShouldNotify(e classentry.ClassEntry, actor viewer.Session) bool {
	return e.HasClassCode() && actor.IsProfessor()
}

// ForStatusChange builds the cohort announcement for e after it moved to its
// current status.
// PRE: e carries a class code and a valid status
// POST: Returns a payload scoped to e.ClassCode
func ForStatusChange(e classentry.ClassEntry) Notification {
	subject := fmt.Sprintf("%s: %s", e.Subject, statusTitle(e.Status))

	var b strings.Builder
	if e.Status == classentry.StatusCanceled {
		fmt.Fprintf(&b, "Your %s %s.\n\n", e.Subject, Sentence(e.Status))
	} else {
		fmt.Fprintf(&b, "Your %s class %s.\n\n", e.Subject, Sentence(e.Status))
	}
	fmt.Fprintf(&b, "- **Day:** %s\n", e.Day)
	fmt.Fprintf(&b, "- **Time:** %s - %s\n", e.StartTime, e.EndTime)
	if e.Location != "" {
		fmt.Fprintf(&b, "- **Location:** %s\n", e.Location)
	}

	return Notification{
		RecipientsScope: e.ClassCode,
		Subject:         subject,
		Body:            b.String(),
	}
}

func statusTitle(status string) string {
	switch status {
	case classentry.StatusCanceled:
		return "class canceled"
	case classentry.StatusRescheduled:
		return "class rescheduled"
	default:
		return "class confirmed"
	}
}

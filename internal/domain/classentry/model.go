package classentry

import (
	"errors"
	"fmt"
	"strings"
)

// Day labels. The vocabulary is fixed and case-exact.
const (
	Monday    = "Monday"
	Tuesday   = "Tuesday"
	Wednesday = "Wednesday"
	Thursday  = "Thursday"
	Friday    = "Friday"
	Saturday  = "Saturday"
	Sunday    = "Sunday"
)

// Days lists the weekday labels in display order.
var Days = []string{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

// Status constants for the entry lifecycle.
const (
	StatusScheduled   = "scheduled"
	StatusCanceled    = "canceled"
	StatusRescheduled = "rescheduled"
)

// Statuses contains all valid status values.
var Statuses = []string{StatusScheduled, StatusCanceled, StatusRescheduled}

// Error kinds. Every error returned by the timetable core matches exactly one
// of these with errors.Is.
var (
	ErrValidation  = errors.New("validation error")
	ErrNotFound    = errors.New("class entry not found")
	ErrPersistence = errors.New("persistence error")
)

// Validation causes, always joined with ErrValidation.
var (
	ErrEmptySubject      = errors.New("subject cannot be empty")
	ErrInvalidDay        = errors.New("day must be one of Monday..Sunday")
	ErrEmptyStartTime    = errors.New("start time cannot be empty")
	ErrEmptyEndTime      = errors.New("end time cannot be empty")
	ErrInvalidTime       = errors.New("time must be HH:MM on a 24-hour clock")
	ErrStartNotBeforeEnd = errors.New("start time must be before end time")
	ErrInvalidStatus     = errors.New("status must be one of scheduled, canceled, rescheduled")
)

// ClassEntry is a single scheduled class session.
type ClassEntry struct {
	ID        string `json:"id"`
	Day       string `json:"day"`
	Subject   string `json:"subject"`
	StartTime string `json:"startTime"` // HH:MM, zero padded
	EndTime   string `json:"endTime"`   // HH:MM, zero padded
	Location  string `json:"location,omitempty"`
	Notes     string `json:"notes,omitempty"`
	Status    string `json:"status"`
	ClassCode string `json:"classCode,omitempty"`
}

// Draft carries the fields of an entry before an id is assigned.
type Draft struct {
	Day       string
	Subject   string
	StartTime string
	EndTime   string
	Location  string
	Notes     string
	Status    string
	ClassCode string
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	Day       *string
	Subject   *string
	StartTime *string
	EndTime   *string
	Location  *string
	Notes     *string
	Status    *string
	ClassCode *string
}

// Invalid joins a validation cause to ErrValidation.
func Invalid(cause error) error {
	return fmt.Errorf("%w: %w", ErrValidation, cause)
}

// NotFound reports a missing entry id.
func NotFound(id string) error {
	return fmt.Errorf("%w: %q", ErrNotFound, id)
}

// NewEntry builds an entry from a draft, defaulting the status to scheduled.
// PRE: id is non-empty and unique within the store
// POST: Returns a validated entry with a trimmed ClassCode, or an ErrValidation error
func NewEntry(id string, d Draft) (ClassEntry, error) {
	status := d.Status
	if status == "" {
		status = StatusScheduled
	}
	e := ClassEntry{
		ID:        id,
		Day:       d.Day,
		Subject:   d.Subject,
		StartTime: d.StartTime,
		EndTime:   d.EndTime,
		Location:  d.Location,
		Notes:     d.Notes,
		Status:    status,
		ClassCode: strings.TrimSpace(d.ClassCode),
	}
	if err := e.Validate(); err != nil {
		return ClassEntry{}, err
	}
	return e, nil
}

// Validate checks every field, including the time ordering invariant.
// PRE: ClassEntry struct is populated
// POST: Returns nil if valid, an ErrValidation error otherwise
func (e *ClassEntry) Validate() error {
	if err := e.validateFields(); err != nil {
		return err
	}
	return e.validateTimes()
}

func (e *ClassEntry) validateFields() error {
	if strings.TrimSpace(e.Subject) == "" {
		return Invalid(ErrEmptySubject)
	}
	if !IsValidDay(e.Day) {
		return Invalid(ErrInvalidDay)
	}
	if !IsValidStatus(e.Status) {
		return Invalid(ErrInvalidStatus)
	}
	return nil
}

func (e *ClassEntry) validateTimes() error {
	if e.StartTime == "" {
		return Invalid(ErrEmptyStartTime)
	}
	if e.EndTime == "" {
		return Invalid(ErrEmptyEndTime)
	}
	if !isClock(e.StartTime) || !isClock(e.EndTime) {
		return Invalid(ErrInvalidTime)
	}
	// Zero padding makes the lexicographic order the chronological one.
	if e.StartTime >= e.EndTime {
		return Invalid(ErrStartNotBeforeEnd)
	}
	return nil
}

// HasClassCode reports whether the entry belongs to a cohort.
// INVARIANT: ClassEntry fields are not mutated
func (e ClassEntry) HasClassCode() bool {
	return strings.TrimSpace(e.ClassCode) != ""
}

// Apply merges the patch into e. The time invariant is re-checked only when a
// time field changed; stored entries are not re-validated otherwise.
// PRE: e is a stored entry
// POST: Returns the merged entry or an ErrValidation error; e is unchanged
func (p Patch) Apply(e ClassEntry) (ClassEntry, error) {
	out := e
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&out.Day, p.Day)
	set(&out.Subject, p.Subject)
	set(&out.StartTime, p.StartTime)
	set(&out.EndTime, p.EndTime)
	set(&out.Location, p.Location)
	set(&out.Notes, p.Notes)
	set(&out.Status, p.Status)
	set(&out.ClassCode, p.ClassCode)
	out.ClassCode = strings.TrimSpace(out.ClassCode)

	if err := out.validateFields(); err != nil {
		return ClassEntry{}, err
	}
	if p.TouchesTime() {
		if err := out.validateTimes(); err != nil {
			return ClassEntry{}, err
		}
	}
	return out, nil
}

// TouchesTime reports whether the patch sets either time field.
func (p Patch) TouchesTime() bool {
	return p.StartTime != nil || p.EndTime != nil
}

// IsValidDay reports whether day is one of the seven labels.
func IsValidDay(day string) bool {
	for _, d := range Days {
		if d == day {
			return true
		}
	}
	return false
}

// IsValidStatus reports whether status is a known lifecycle state.
func IsValidStatus(status string) bool {
	for _, s := range Statuses {
		if s == status {
			return true
		}
	}
	return false
}

// isClock accepts exactly "HH:MM" with 00 <= HH <= 23 and 00 <= MM <= 59.
func isClock(s string) bool {
	if len(s) != 5 || s[2] != ':' {
		return false
	}
	for _, i := range []int{0, 1, 3, 4} {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	hh := int(s[0]-'0')*10 + int(s[1]-'0')
	mm := int(s[3]-'0')*10 + int(s[4]-'0')
	return hh < 24 && mm < 60
}

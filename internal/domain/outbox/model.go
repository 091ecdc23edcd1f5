package outbox

import (
	"errors"
	"time"
)

// Status constants for outbox entry lifecycle.
const (
	StatusPending   = "pending"
	StatusRetrying  = "retrying"
	StatusDone      = "done"
	StatusFailed    = "failed"
	StatusAbandoned = "abandoned"
)

// ActionTypeNotificationEmail replays a cohort notification email whose
// first delivery attempt failed.
const ActionTypeNotificationEmail = "notification_email"

// DefaultMaxAttempts bounds retries when an entry does not set its own limit.
const DefaultMaxAttempts = 5

// Domain errors.
var (
	ErrEmptyID         = errors.New("outbox id is required")
	ErrEmptyActionType = errors.New("action type is required")
	ErrEmptyPayload    = errors.New("payload is required")
	ErrMissingCreated  = errors.New("created_at must be set")
	ErrTerminal        = errors.New("outbox entry is in a terminal state")
)

// Entry is one deferred delivery kept until it succeeds or is given up.
type Entry struct {
	ID              string    `json:"id"`
	ActionType      string    `json:"actionType"`
	Payload         string    `json:"payload"` // JSON, replayed verbatim
	Status          string    `json:"status"`
	Attempts        int       `json:"attempts"`
	MaxAttempts     int       `json:"maxAttempts"`
	LastAttemptedAt time.Time `json:"lastAttemptedAt"`
	CreatedAt       time.Time `json:"createdAt"`
	ExternalID      string    `json:"externalId,omitempty"` // provider message id once delivered
	ErrorMessage    string    `json:"errorMessage,omitempty"`
}

// New returns a pending entry for the given action.
// PRE: id, actionType and payload are non-empty
// POST: Returns an entry in pending status with the default retry budget
func New(id, actionType, payload string, now time.Time) Entry {
	return Entry{
		ID:          id,
		ActionType:  actionType,
		Payload:     payload,
		Status:      StatusPending,
		MaxAttempts: DefaultMaxAttempts,
		CreatedAt:   now,
	}
}

// Validate checks that the Entry has valid data.
// PRE: Entry struct is populated
// POST: Returns nil if valid, error otherwise
func (e *Entry) Validate() error {
	if e.ID == "" {
		return ErrEmptyID
	}
	if e.ActionType == "" {
		return ErrEmptyActionType
	}
	if e.Payload == "" {
		return ErrEmptyPayload
	}
	if e.CreatedAt.IsZero() {
		return ErrMissingCreated
	}
	return nil
}

// CanRetry reports whether another attempt is allowed.
// INVARIANT: Entry fields are not mutated
func (e *Entry) CanRetry() bool {
	switch e.Status {
	case StatusPending, StatusRetrying:
		return e.Attempts < e.maxAttempts()
	}
	return false
}

// IsTerminal reports whether the entry will never be attempted again.
// INVARIANT: Entry fields are not mutated
func (e *Entry) IsTerminal() bool {
	switch e.Status {
	case StatusDone, StatusAbandoned, StatusFailed:
		return true
	}
	return e.Attempts >= e.maxAttempts()
}

// MarkAttempt records the start of a delivery attempt.
// PRE: CanRetry() is true
// POST: Attempts incremented, LastAttemptedAt = now, status retrying
func (e *Entry) MarkAttempt(now time.Time) {
	e.Attempts++
	e.LastAttemptedAt = now
	e.Status = StatusRetrying
}

// MarkSuccess records a delivered action.
// POST: Status done, ErrorMessage cleared
func (e *Entry) MarkSuccess(externalID string) {
	e.Status = StatusDone
	e.ExternalID = externalID
	e.ErrorMessage = ""
}

// MarkFailed records a failed attempt. The entry stays retrying until the
// attempt budget is spent, then becomes failed.
// POST: ErrorMessage set; Status failed when Attempts >= MaxAttempts
func (e *Entry) MarkFailed(err error) {
	e.ErrorMessage = err.Error()
	if e.Attempts >= e.maxAttempts() {
		e.Status = StatusFailed
	}
}

// MarkAbandoned gives up on the entry.
// POST: Status abandoned
func (e *Entry) MarkAbandoned() {
	e.Status = StatusAbandoned
}

// NextRetryDelay is 2^attempts * base, capped at max.
// INVARIANT: Entry fields are not mutated
func (e *Entry) NextRetryDelay(base, max time.Duration) time.Duration {
	if e.Attempts >= 30 {
		return max
	}
	delay := base * (1 << e.Attempts)
	if delay > max || delay <= 0 {
		return max
	}
	return delay
}

// DueAt returns when the next attempt may start.
func (e *Entry) DueAt(base, max time.Duration) time.Time {
	if e.LastAttemptedAt.IsZero() {
		return e.CreatedAt
	}
	return e.LastAttemptedAt.Add(e.NextRetryDelay(base, max))
}

func (e *Entry) maxAttempts() int {
	if e.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return e.MaxAttempts
}

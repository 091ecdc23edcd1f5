package orchestrators

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"timetable/internal/adapters/email"
	outboxStore "timetable/internal/adapters/storage/outbox"
	domain "timetable/internal/domain/outbox"
)

// ActionExecutor replays one kind of deferred action.
type ActionExecutor interface {
	// Execute runs the action and returns the provider's reference for it.
	// An action that completed only in part returns a *PartialError.
	Execute(ctx context.Context, payload string) (string, error)
}

// PartialError reports an action that completed in part. Remaining is the
// payload still owed and replaces the entry's payload for the next attempt.
type PartialError struct {
	Remaining string
	Err       error
}

func (e *PartialError) Error() string { return e.Err.Error() }

func (e *PartialError) Unwrap() error { return e.Err }

// OutboxProcessor retries deferred deliveries with exponential backoff.
type OutboxProcessor struct {
	store     outboxStore.Store
	executors map[string]ActionExecutor
	now       func() time.Time
	baseDelay time.Duration
	maxDelay  time.Duration
	batchSize int
}

// NewOutboxProcessor creates a processor for the given executors.
func NewOutboxProcessor(store outboxStore.Store, executors map[string]ActionExecutor) *OutboxProcessor {
	return &OutboxProcessor{
		store:     store,
		executors: executors,
		now:       time.Now,
		baseDelay: 30 * time.Second,
		maxDelay:  time.Hour,
		batchSize: 25,
	}
}

// ProcessPending attempts every pending entry whose backoff has elapsed.
// PRE: none
// POST: Returns how many entries were attempted; per-entry failures are recorded on the entry
func (p *OutboxProcessor) ProcessPending(ctx context.Context) (int, error) {
	entries, err := p.store.ListPending(ctx, p.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending outbox entries: %w", err)
	}

	now := p.now()
	attempted := 0
	for _, entry := range entries {
		if entry.DueAt(p.baseDelay, p.maxDelay).After(now) {
			continue
		}
		attempted++
		if err := p.attempt(ctx, entry); err != nil {
			slog.Error("outbox_process_failed", "entry_id", entry.ID, "action_type", entry.ActionType, "error", err)
		}
	}
	return attempted, nil
}

// ProcessSingle attempts one entry now, ignoring backoff.
// PRE: entryID is non-empty
// POST: Entry attempted and saved, or domain.ErrTerminal when it cannot be retried
func (p *OutboxProcessor) ProcessSingle(ctx context.Context, entryID string) error {
	entry, err := p.store.GetByID(ctx, entryID)
	if err != nil {
		return fmt.Errorf("get outbox entry: %w", err)
	}
	if !entry.CanRetry() {
		return fmt.Errorf("retry %s: %w", entryID, domain.ErrTerminal)
	}
	return p.attempt(ctx, entry)
}

// AbandonEntry gives up on an entry.
// POST: Entry abandoned, or domain.ErrTerminal when it was already delivered
func (p *OutboxProcessor) AbandonEntry(ctx context.Context, entryID string) error {
	entry, err := p.store.GetByID(ctx, entryID)
	if err != nil {
		return fmt.Errorf("get outbox entry: %w", err)
	}
	if entry.Status == domain.StatusDone {
		return fmt.Errorf("abandon %s: already delivered: %w", entryID, domain.ErrTerminal)
	}
	entry.MarkAbandoned()
	if err := p.store.Save(ctx, entry); err != nil {
		return err
	}
	slog.Info("outbox_entry_abandoned", "entry_id", entryID, "attempts", entry.Attempts)
	return nil
}

// ListFailed returns entries whose retry budget is spent.
// PRE: limit > 0
func (p *OutboxProcessor) ListFailed(ctx context.Context, limit int) ([]domain.Entry, error) {
	return p.store.ListFailed(ctx, limit)
}

// Delete removes a terminal entry.
// POST: Returns domain.ErrTerminal wrapped while the entry can still be retried
func (p *OutboxProcessor) Delete(ctx context.Context, entryID string) error {
	if err := p.store.Delete(ctx, entryID); err != nil {
		return err
	}
	slog.Info("outbox_entry_deleted", "entry_id", entryID)
	return nil
}

func (p *OutboxProcessor) attempt(ctx context.Context, entry domain.Entry) error {
	executor, ok := p.executors[entry.ActionType]
	if !ok {
		entry.MarkAbandoned()
		entry.ErrorMessage = "no executor for action type " + entry.ActionType
		return p.store.Save(ctx, entry)
	}

	entry.MarkAttempt(p.now())
	externalID, err := executor.Execute(ctx, entry.Payload)
	if err != nil {
		var partial *PartialError
		if errors.As(err, &partial) && partial.Remaining != "" {
			entry.Payload = partial.Remaining
		}
		entry.MarkFailed(err)
		slog.Warn("outbox_action_failed", "entry_id", entry.ID, "attempt", entry.Attempts, "status", entry.Status, "error", err)
	} else {
		entry.MarkSuccess(externalID)
		slog.Info("outbox_action_succeeded", "entry_id", entry.ID, "action_type", entry.ActionType, "external_id", externalID)
	}
	return p.store.Save(ctx, entry)
}

// EmailBatchExecutor replays a JSON array of email messages.
type EmailBatchExecutor struct {
	Sender email.Sender
}

// Execute sends the stored messages and returns their comma-joined message ids.
// PRE: payload is a JSON array of email.Message
// POST: After a partial failure the *PartialError carries only the unsent messages
func (e *EmailBatchExecutor) Execute(ctx context.Context, payload string) (string, error) {
	var msgs []email.Message
	if err := json.Unmarshal([]byte(payload), &msgs); err != nil {
		return "", fmt.Errorf("unmarshal email payload: %w", err)
	}
	receipts, err := e.Sender.SendBatch(ctx, msgs)
	if err != nil {
		if len(receipts) == 0 || len(receipts) >= len(msgs) {
			return "", err
		}
		rest, merr := json.Marshal(msgs[len(receipts):])
		if merr != nil {
			return "", err
		}
		slog.Warn("outbox_email_partial", "sent", len(receipts), "remaining", len(msgs)-len(receipts))
		return "", &PartialError{Remaining: string(rest), Err: err}
	}
	ids := make([]string, 0, len(receipts))
	for _, r := range receipts {
		ids = append(ids, r.MessageID)
	}
	return strings.Join(ids, ","), nil
}

// StartOutboxWorker processes pending entries every interval until ctx is done.
// PRE: interval > 0
// POST: Returns a channel closed once the worker has stopped
func StartOutboxWorker(ctx context.Context, processor *OutboxProcessor, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
				if n, err := processor.ProcessPending(runCtx); err != nil {
					slog.Error("outbox_worker_failed", "error", err)
				} else if n > 0 {
					slog.Info("outbox_worker_run", "attempted", n)
				}
				cancel()
			case <-ctx.Done():
				slog.Info("outbox_worker_stopped")
				return
			}
		}
	}()
	return done
}

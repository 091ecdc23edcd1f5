package orchestrators

import (
	"context"
	"log/slog"

	"timetable/internal/domain/classentry"
	"timetable/internal/domain/notification"
	"timetable/internal/domain/viewer"
)

// EntryStoreForStatus is the part of the entry store the dispatcher needs.
type EntryStoreForStatus interface {
	Get(id string) (classentry.ClassEntry, error)
	Update(ctx context.Context, id string, p classentry.Patch) (classentry.ClassEntry, error)
}

// Notifier delivers a cohort notification. Transport is the implementer's
// concern.
type Notifier interface {
	Notify(ctx context.Context, n notification.Notification) error
}

// SetStatusInput carries input for the set status orchestrator.
type SetStatusInput struct {
	EntryID string
	Target  string
	Actor   viewer.Session
}

// SetStatusDeps holds dependencies for SetStatus.
type SetStatusDeps struct {
	EntryStore EntryStoreForStatus
	Notifier   Notifier // nil disables dispatch
}

// SetStatusResult reports the stored entry and the notification handed to
// the notifier, if any.
type SetStatusResult struct {
	Entry        classentry.ClassEntry
	Notification *notification.Notification
}

// ExecuteSetStatus moves an entry to the target status and, when a professor
// changes a cohort entry, hands one notification to the notifier.
// PRE: Target is one of the known statuses
// POST: Entry stored with Status == Target; at most one notification dispatched
// INVARIANT: notifier failures never fail the status change
func ExecuteSetStatus(ctx context.Context, input SetStatusInput, deps SetStatusDeps) (SetStatusResult, error) {
	current, err := deps.EntryStore.Get(input.EntryID)
	if err != nil {
		return SetStatusResult{}, err
	}

	next, err := classentry.Transition(ctx, current.Status, input.Target)
	if err != nil {
		return SetStatusResult{}, err
	}

	updated, err := deps.EntryStore.Update(ctx, input.EntryID, classentry.Patch{Status: &next})
	if err != nil {
		return SetStatusResult{}, err
	}
	slog.Info("status_changed", "entry_id", updated.ID, "from", current.Status, "status", updated.Status, "actor_id", input.Actor.ID)

	result := SetStatusResult{Entry: updated}
	if !notification.ShouldNotify(updated, input.Actor) {
		return result, nil
	}

	n := notification.ForStatusChange(updated)
	result.Notification = &n
	if deps.Notifier == nil {
		return result, nil
	}
	if err := deps.Notifier.Notify(ctx, n); err != nil {
		slog.Error("notification_dispatch_failed", "entry_id", updated.ID, "class_code", n.RecipientsScope, "error", err)
		return result, nil
	}
	slog.Info("notification_dispatched", "entry_id", updated.ID, "class_code", n.RecipientsScope, "status", updated.Status)
	return result, nil
}

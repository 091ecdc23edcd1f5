// Package notify provides transports for cohort notifications.
package notify

import (
	"context"
	"errors"
	"log/slog"

	"timetable/internal/adapters/metrics"
	"timetable/internal/domain/notification"
)

// Notifier delivers one notification to every member of its cohort.
type Notifier interface {
	Notify(ctx context.Context, n notification.Notification) error
}

// LogNotifier only logs. It is the transport of last resort in development.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, n notification.Notification) error {
	slog.Info("notification_logged", "class_code", n.RecipientsScope, "subject", n.Subject)
	return nil
}

// Fanout calls every notifier in order, even after a failure.
type Fanout []Notifier

// Notify returns all child errors joined.
func (f Fanout) Notify(ctx context.Context, n notification.Notification) error {
	var errs []error
	for _, child := range f {
		if err := child.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Instrumented counts deliveries of one transport.
type Instrumented struct {
	Transport string
	Next      Notifier
	Metrics   *metrics.Metrics
}

func (i Instrumented) Notify(ctx context.Context, n notification.Notification) error {
	err := i.Next.Notify(ctx, n)
	i.Metrics.CountNotification(i.Transport, err)
	return err
}

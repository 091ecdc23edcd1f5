package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"

	"timetable/internal/adapters/email"
	"timetable/internal/domain/notification"
	"timetable/internal/domain/outbox"
	"timetable/internal/domain/roster"
)

// RecipientDirectory resolves the students of a cohort.
type RecipientDirectory interface {
	ListStudentsByClassCode(ctx context.Context, classCode string) ([]roster.Member, error)
}

// OutboxWriter stores deliveries to retry later.
type OutboxWriter interface {
	Save(ctx context.Context, e outbox.Entry) error
}

// EmailDeps holds dependencies for the email notifier.
type EmailDeps struct {
	Roster     RecipientDirectory
	Sender     email.Sender
	Outbox     OutboxWriter // nil drops failed deliveries
	From       string
	CacheTTL   time.Duration
	GenerateID func() string
	Now        func() time.Time
}

// EmailNotifier mails each student of the cohort individually.
type EmailNotifier struct {
	deps       EmailDeps
	recipients *cache.Cache
	markdown   goldmark.Markdown
}

// NewEmailNotifier creates an email notifier. Cohort address lists are cached
// for deps.CacheTTL (default five minutes).
func NewEmailNotifier(deps EmailDeps) *EmailNotifier {
	if deps.CacheTTL <= 0 {
		deps.CacheTTL = 5 * time.Minute
	}
	if deps.GenerateID == nil {
		deps.GenerateID = uuid.NewString
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &EmailNotifier{
		deps:       deps,
		recipients: cache.New(deps.CacheTTL, 2*deps.CacheTTL),
		// Raw HTML in bodies is escaped because WithUnsafe is not set.
		markdown: goldmark.New(goldmark.WithRendererOptions(goldmarkHTML.WithHardWraps())),
	}
}

// Notify renders the body and sends one message per student. Messages the
// provider did not accept are parked in the outbox for the retry worker.
// PRE: n is valid
// POST: Returns nil when every message was accepted or deferred
func (e *EmailNotifier) Notify(ctx context.Context, n notification.Notification) error {
	if err := n.Validate(); err != nil {
		return err
	}
	to, err := e.cohort(ctx, n.RecipientsScope)
	if err != nil {
		return fmt.Errorf("resolve cohort %s: %w", n.RecipientsScope, err)
	}
	if len(to) == 0 {
		slog.Info("notification_email_no_recipients", "class_code", n.RecipientsScope)
		return nil
	}

	msgs, err := e.messages(n, to)
	if err != nil {
		return err
	}
	receipts, err := e.deps.Sender.SendBatch(ctx, msgs)
	if err == nil {
		slog.Info("notification_email_sent", "class_code", n.RecipientsScope, "recipients", len(receipts))
		return nil
	}
	return e.park(ctx, msgs[len(receipts):], err)
}

// Forget drops the cached address list of a cohort, e.g. after a roster change.
func (e *EmailNotifier) Forget(classCode string) {
	e.recipients.Delete(classCode)
}

func (e *EmailNotifier) cohort(ctx context.Context, classCode string) ([]string, error) {
	if cached, ok := e.recipients.Get(classCode); ok {
		return cached.([]string), nil
	}
	members, err := e.deps.Roster.ListStudentsByClassCode(ctx, classCode)
	if err != nil {
		return nil, err
	}
	to := roster.Emails(members)
	e.recipients.Set(classCode, to, cache.DefaultExpiration)
	return to, nil
}

func (e *EmailNotifier) messages(n notification.Notification, to []string) ([]email.Message, error) {
	var html bytes.Buffer
	if err := e.markdown.Convert([]byte(n.Body), &html); err != nil {
		return nil, fmt.Errorf("render notification body: %w", err)
	}
	msgs := make([]email.Message, 0, len(to))
	for _, addr := range to {
		msgs = append(msgs, email.Message{
			To:      []string{addr},
			From:    e.deps.From,
			Subject: n.Subject,
			HTML:    html.String(),
			Text:    n.Body,
			Tags:    map[string]string{"class_code": n.RecipientsScope},
		})
	}
	return msgs, nil
}

func (e *EmailNotifier) park(ctx context.Context, pending []email.Message, sendErr error) error {
	if e.deps.Outbox == nil || len(pending) == 0 {
		return sendErr
	}
	payload, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("%w (encode outbox payload: %v)", sendErr, err)
	}
	entry := outbox.New(e.deps.GenerateID(), outbox.ActionTypeNotificationEmail, string(payload), e.deps.Now())
	if err := e.deps.Outbox.Save(ctx, entry); err != nil {
		return fmt.Errorf("%w (save outbox entry: %v)", sendErr, err)
	}
	slog.Warn("notification_email_deferred", "outbox_id", entry.ID, "messages", len(pending), "error", sendErr)
	return nil
}

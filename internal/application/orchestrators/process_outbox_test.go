package orchestrators

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"timetable/internal/adapters/email"
	domain "timetable/internal/domain/outbox"
)

// mockOutboxStore implements the outbox store for testing.
type mockOutboxStore struct {
	entries map[string]domain.Entry
	order   []string
}

func newMockOutboxStore(entries ...domain.Entry) *mockOutboxStore {
	m := &mockOutboxStore{entries: map[string]domain.Entry{}}
	for _, e := range entries {
		m.entries[e.ID] = e
		m.order = append(m.order, e.ID)
	}
	return m
}

func (m *mockOutboxStore) GetByID(_ context.Context, id string) (domain.Entry, error) {
	e, ok := m.entries[id]
	if !ok {
		return domain.Entry{}, errors.New("not found")
	}
	return e, nil
}

func (m *mockOutboxStore) Save(_ context.Context, e domain.Entry) error {
	m.entries[e.ID] = e
	return nil
}

func (m *mockOutboxStore) ListPending(_ context.Context, limit int) ([]domain.Entry, error) {
	var out []domain.Entry
	for _, id := range m.order {
		e := m.entries[id]
		if (e.Status == domain.StatusPending || e.Status == domain.StatusRetrying) && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockOutboxStore) ListFailed(_ context.Context, limit int) ([]domain.Entry, error) {
	var out []domain.Entry
	for _, id := range m.order {
		if e, ok := m.entries[id]; ok && e.Status == domain.StatusFailed && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockOutboxStore) Delete(_ context.Context, id string) error {
	delete(m.entries, id)
	return nil
}

// stubExecutor returns a fixed result.
type stubExecutor struct {
	calls int
	err   error
}

func (s *stubExecutor) Execute(_ context.Context, _ string) (string, error) {
	s.calls++
	return "ext-1", s.err
}

var outboxNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func newTestProcessor(store *mockOutboxStore, exec ActionExecutor) *OutboxProcessor {
	p := NewOutboxProcessor(store, map[string]ActionExecutor{domain.ActionTypeNotificationEmail: exec})
	p.now = func() time.Time { return outboxNow }
	return p
}

// TestOutboxProcessor_Success tests a due entry being delivered.
func TestOutboxProcessor_Success(t *testing.T) {
	store := newMockOutboxStore(domain.New("ob-1", domain.ActionTypeNotificationEmail, "[]", outboxNow.Add(-time.Minute)))
	exec := &stubExecutor{}

	n, err := newTestProcessor(store, exec).ProcessPending(context.Background())
	if err != nil {
		t.Fatalf("ProcessPending: %v", err)
	}
	if n != 1 || exec.calls != 1 {
		t.Errorf("expected one attempt, got n=%d calls=%d", n, exec.calls)
	}
	got := store.entries["ob-1"]
	if got.Status != domain.StatusDone || got.ExternalID != "ext-1" || got.Attempts != 1 {
		t.Errorf("unexpected entry: %+v", got)
	}
}

// TestOutboxProcessor_Backoff tests that entries inside their backoff window wait.
func TestOutboxProcessor_Backoff(t *testing.T) {
	e := domain.New("ob-1", domain.ActionTypeNotificationEmail, "[]", outboxNow.Add(-time.Hour))
	e.MarkAttempt(outboxNow.Add(-10 * time.Second))
	e.MarkFailed(errors.New("timeout"))
	store := newMockOutboxStore(e)
	exec := &stubExecutor{}

	n, _ := newTestProcessor(store, exec).ProcessPending(context.Background())
	if n != 0 || exec.calls != 0 {
		t.Errorf("expected entry held back, got n=%d calls=%d", n, exec.calls)
	}
}

// TestOutboxProcessor_FailureExhaustsBudget tests the retry budget.
func TestOutboxProcessor_FailureExhaustsBudget(t *testing.T) {
	e := domain.New("ob-1", domain.ActionTypeNotificationEmail, "[]", outboxNow.Add(-time.Hour))
	e.MaxAttempts = 1
	store := newMockOutboxStore(e)
	exec := &stubExecutor{err: errors.New("bounced")}
	p := newTestProcessor(store, exec)

	if _, err := p.ProcessPending(context.Background()); err != nil {
		t.Fatalf("ProcessPending: %v", err)
	}
	got := store.entries["ob-1"]
	if got.Status != domain.StatusFailed || got.ErrorMessage != "bounced" {
		t.Errorf("expected failed entry, got %+v", got)
	}
	if err := p.ProcessSingle(context.Background(), "ob-1"); !errors.Is(err, domain.ErrTerminal) {
		t.Errorf("expected ErrTerminal on manual retry, got %v", err)
	}
}

// TestOutboxProcessor_UnknownAction tests entries without an executor.
func TestOutboxProcessor_UnknownAction(t *testing.T) {
	store := newMockOutboxStore(domain.New("ob-1", "fax", "{}", outboxNow))
	if _, err := newTestProcessor(store, &stubExecutor{}).ProcessPending(context.Background()); err != nil {
		t.Fatalf("ProcessPending: %v", err)
	}
	if got := store.entries["ob-1"]; got.Status != domain.StatusAbandoned {
		t.Errorf("expected abandoned, got %s", got.Status)
	}
}

// TestOutboxProcessor_Abandon tests manual abandonment.
func TestOutboxProcessor_Abandon(t *testing.T) {
	store := newMockOutboxStore(domain.New("ob-1", domain.ActionTypeNotificationEmail, "[]", outboxNow))
	if err := newTestProcessor(store, &stubExecutor{}).AbandonEntry(context.Background(), "ob-1"); err != nil {
		t.Fatalf("AbandonEntry: %v", err)
	}
	got := store.entries["ob-1"]
	if !got.IsTerminal() {
		t.Error("expected abandoned entry to be terminal")
	}
}

// batchRecorder records batches handed to it.
type batchRecorder struct {
	email.LogSender
	batches [][]email.Message
}

func (b *batchRecorder) SendBatch(ctx context.Context, msgs []email.Message) ([]email.Receipt, error) {
	b.batches = append(b.batches, msgs)
	return b.LogSender.SendBatch(ctx, msgs)
}

// TestEmailBatchExecutor tests replaying a stored batch.
func TestEmailBatchExecutor(t *testing.T) {
	msgs := []email.Message{
		{To: []string{"a@uni.edu"}, Subject: "Algorithms: class canceled", HTML: "<p>x</p>"},
		{To: []string{"b@uni.edu"}, Subject: "Algorithms: class canceled", HTML: "<p>x</p>"},
	}
	payload, _ := json.Marshal(msgs)
	sender := &batchRecorder{}

	ids, err := (&EmailBatchExecutor{Sender: sender}).Execute(context.Background(), string(payload))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(sender.batches) != 1 || len(sender.batches[0]) != 2 || sender.batches[0][1].To[0] != "b@uni.edu" {
		t.Errorf("unexpected batches: %+v", sender.batches)
	}
	if ids == "" {
		t.Error("expected message ids")
	}

	if _, err := (&EmailBatchExecutor{Sender: sender}).Execute(context.Background(), "not json"); err == nil {
		t.Error("expected error for malformed payload")
	}
}

// partialSender accepts the first n messages of a batch, then fails.
type partialSender struct {
	email.LogSender
	accept  int
	batches [][]email.Message
}

func (p *partialSender) SendBatch(ctx context.Context, msgs []email.Message) ([]email.Receipt, error) {
	p.batches = append(p.batches, msgs)
	if len(msgs) <= p.accept {
		return p.LogSender.SendBatch(ctx, msgs)
	}
	receipts, _ := p.LogSender.SendBatch(ctx, msgs[:p.accept])
	return receipts, errors.New("rate limited")
}

// TestEmailBatchExecutor_PartialFailureKeepsOnlyUnsent tests that a retry
// after a partial batch failure does not mail accepted recipients again.
func TestEmailBatchExecutor_PartialFailureKeepsOnlyUnsent(t *testing.T) {
	msgs := []email.Message{
		{To: []string{"a@uni.edu"}, Subject: "s", Text: "x"},
		{To: []string{"b@uni.edu"}, Subject: "s", Text: "x"},
		{To: []string{"c@uni.edu"}, Subject: "s", Text: "x"},
	}
	payload, _ := json.Marshal(msgs)
	store := newMockOutboxStore(domain.New("ob-1", domain.ActionTypeNotificationEmail, string(payload), outboxNow.Add(-time.Minute)))
	sender := &partialSender{accept: 1}
	p := newTestProcessor(store, &EmailBatchExecutor{Sender: sender})

	if _, err := p.ProcessPending(context.Background()); err != nil {
		t.Fatalf("ProcessPending: %v", err)
	}
	got := store.entries["ob-1"]
	if got.Status != domain.StatusRetrying || got.ErrorMessage != "rate limited" {
		t.Fatalf("expected retrying entry, got %+v", got)
	}
	var remaining []email.Message
	if err := json.Unmarshal([]byte(got.Payload), &remaining); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if len(remaining) != 2 || remaining[0].To[0] != "b@uni.edu" || remaining[1].To[0] != "c@uni.edu" {
		t.Errorf("expected only unsent messages kept, got %+v", remaining)
	}

	sender.accept = 10
	if err := p.ProcessSingle(context.Background(), "ob-1"); err != nil {
		t.Fatalf("ProcessSingle: %v", err)
	}
	if len(sender.batches) != 2 || len(sender.batches[1]) != 2 || sender.batches[1][0].To[0] != "b@uni.edu" {
		t.Errorf("expected retry to send only b and c, got %+v", sender.batches)
	}
	if store.entries["ob-1"].Status != domain.StatusDone {
		t.Errorf("expected done after retry, got %s", store.entries["ob-1"].Status)
	}
}

// TestOutboxProcessor_Admin tests listing, deleting and the abandon guard.
func TestOutboxProcessor_Admin(t *testing.T) {
	failed := domain.New("ob-1", domain.ActionTypeNotificationEmail, "[]", outboxNow)
	failed.Status = domain.StatusFailed
	done := domain.New("ob-2", domain.ActionTypeNotificationEmail, "[]", outboxNow)
	done.MarkSuccess("msg-1")
	store := newMockOutboxStore(failed, done)
	p := newTestProcessor(store, &stubExecutor{})
	ctx := context.Background()

	list, err := p.ListFailed(ctx, 10)
	if err != nil || len(list) != 1 || list[0].ID != "ob-1" {
		t.Errorf("ListFailed = %+v, %v", list, err)
	}
	if err := p.AbandonEntry(ctx, "ob-2"); !errors.Is(err, domain.ErrTerminal) {
		t.Errorf("expected ErrTerminal abandoning a delivered entry, got %v", err)
	}
	if err := p.Delete(ctx, "ob-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := store.entries["ob-1"]; ok {
		t.Error("expected entry removed")
	}
}

// TestStartOutboxWorker tests that the worker stops with its context.
func TestStartOutboxWorker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := StartOutboxWorker(ctx, newTestProcessor(newMockOutboxStore(), &stubExecutor{}), time.Hour)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

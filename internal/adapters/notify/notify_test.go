package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"timetable/internal/adapters/email"
	"timetable/internal/adapters/metrics"
	"timetable/internal/domain/notification"
	"timetable/internal/domain/outbox"
	"timetable/internal/domain/roster"
	"timetable/internal/domain/viewer"
)

var canceled = notification.Notification{
	RecipientsScope: "CS101",
	Subject:         "Algorithms: class canceled",
	Body:            "Your Algorithms class has been canceled.\n\n- **Day:** Monday\n- **Time:** 09:00 - 10:00",
}

type stubNotifier struct {
	calls int
	err   error
}

func (s *stubNotifier) Notify(_ context.Context, _ notification.Notification) error {
	s.calls++
	return s.err
}

// TestFanout tests that every child runs and errors are joined.
func TestFanout(t *testing.T) {
	boom := errors.New("boom")
	a, b, c := &stubNotifier{}, &stubNotifier{err: boom}, &stubNotifier{}

	err := Fanout{a, b, c}.Notify(context.Background(), canceled)
	if !errors.Is(err, boom) {
		t.Errorf("expected joined error to contain boom, got %v", err)
	}
	if a.calls != 1 || b.calls != 1 || c.calls != 1 {
		t.Errorf("expected each child called once, got %d %d %d", a.calls, b.calls, c.calls)
	}
	if err := (Fanout{}).Notify(context.Background(), canceled); err != nil {
		t.Errorf("expected nil for empty fanout, got %v", err)
	}
}

// TestInstrumented tests the per-transport counter.
func TestInstrumented(t *testing.T) {
	m := metrics.New()
	ok := Instrumented{Transport: "email", Next: &stubNotifier{}, Metrics: m}
	bad := Instrumented{Transport: "email", Next: &stubNotifier{err: errors.New("x")}, Metrics: m}

	ok.Notify(context.Background(), canceled)
	ok.Notify(context.Background(), canceled)
	bad.Notify(context.Background(), canceled)

	n, err := testutil.GatherAndCount(m.Registry(), "timetable_notifications_total")
	if err != nil {
		t.Fatalf("GatherAndCount: %v", err)
	}
	if n != 2 {
		t.Errorf("expected success and error series, got %d", n)
	}
}

type fakeRoster struct {
	members []roster.Member
	calls   int
	err     error
}

func (f *fakeRoster) ListStudentsByClassCode(_ context.Context, code string) ([]roster.Member, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []roster.Member
	for _, m := range f.members {
		if m.InCohort(code) {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeSender struct {
	accept  int // messages accepted before failing; -1 accepts all
	batches [][]email.Message
}

func (f *fakeSender) Send(_ context.Context, _ email.Message) (email.Receipt, error) {
	return email.Receipt{MessageID: "single"}, nil
}

func (f *fakeSender) SendBatch(_ context.Context, msgs []email.Message) ([]email.Receipt, error) {
	f.batches = append(f.batches, msgs)
	n := len(msgs)
	if f.accept >= 0 && f.accept < n {
		n = f.accept
	}
	receipts := make([]email.Receipt, n)
	if n < len(msgs) {
		return receipts, errors.New("rate limited")
	}
	return receipts, nil
}

type fakeOutbox struct {
	saved []outbox.Entry
}

func (f *fakeOutbox) Save(_ context.Context, e outbox.Entry) error {
	f.saved = append(f.saved, e)
	return nil
}

func cohort() *fakeRoster {
	return &fakeRoster{members: []roster.Member{
		{ID: "1", Email: "ana@uni.edu", Role: viewer.RoleStudent, ClassCode: "CS101"},
		{ID: "2", Email: "ben@uni.edu", Role: viewer.RoleStudent, ClassCode: "CS101"},
		{ID: "3", Email: "cy@uni.edu", Role: viewer.RoleStudent, ClassCode: "CS999"},
	}}
}

func newTestEmailNotifier(r *fakeRoster, s *fakeSender, o *fakeOutbox) *EmailNotifier {
	return NewEmailNotifier(EmailDeps{
		Roster:     r,
		Sender:     s,
		Outbox:     o,
		From:       "Timetable <noreply@uni.edu>",
		GenerateID: func() string { return "ob-1" },
		Now:        func() time.Time { return time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC) },
	})
}

// TestEmailNotifier_Sends tests one rendered message per cohort student.
func TestEmailNotifier_Sends(t *testing.T) {
	r, s, o := cohort(), &fakeSender{accept: -1}, &fakeOutbox{}
	n := newTestEmailNotifier(r, s, o)

	if err := n.Notify(context.Background(), canceled); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(s.batches) != 1 || len(s.batches[0]) != 2 {
		t.Fatalf("expected one batch of two, got %+v", s.batches)
	}
	msg := s.batches[0][0]
	if msg.To[0] != "ana@uni.edu" || msg.Subject != canceled.Subject {
		t.Errorf("unexpected message: %+v", msg)
	}
	if !strings.Contains(msg.HTML, "<strong>Day:</strong>") {
		t.Errorf("expected markdown rendered to HTML, got %q", msg.HTML)
	}
	if len(o.saved) != 0 {
		t.Error("expected nothing parked on success")
	}
}

// TestEmailNotifier_CachesCohort tests that the roster is read once per TTL.
func TestEmailNotifier_CachesCohort(t *testing.T) {
	r := cohort()
	n := newTestEmailNotifier(r, &fakeSender{accept: -1}, &fakeOutbox{})

	n.Notify(context.Background(), canceled)
	n.Notify(context.Background(), canceled)
	if r.calls != 1 {
		t.Errorf("expected one roster lookup, got %d", r.calls)
	}

	n.Forget("CS101")
	n.Notify(context.Background(), canceled)
	if r.calls != 2 {
		t.Errorf("expected lookup after Forget, got %d", r.calls)
	}
}

// TestEmailNotifier_ParksRemainder tests that unaccepted messages go to the outbox.
func TestEmailNotifier_ParksRemainder(t *testing.T) {
	o := &fakeOutbox{}
	n := newTestEmailNotifier(cohort(), &fakeSender{accept: 1}, o)

	if err := n.Notify(context.Background(), canceled); err != nil {
		t.Fatalf("expected deferred delivery to succeed, got %v", err)
	}
	if len(o.saved) != 1 {
		t.Fatalf("expected one outbox entry, got %d", len(o.saved))
	}
	e := o.saved[0]
	if e.ActionType != outbox.ActionTypeNotificationEmail || e.Status != outbox.StatusPending {
		t.Errorf("unexpected outbox entry: %+v", e)
	}
	var pending []email.Message
	if err := json.Unmarshal([]byte(e.Payload), &pending); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if len(pending) != 1 || pending[0].To[0] != "ben@uni.edu" {
		t.Errorf("expected only the unaccepted message parked, got %+v", pending)
	}
}

// TestEmailNotifier_NoOutbox tests that send errors surface without an outbox.
func TestEmailNotifier_NoOutbox(t *testing.T) {
	n := NewEmailNotifier(EmailDeps{Roster: cohort(), Sender: &fakeSender{accept: 0}})
	if err := n.Notify(context.Background(), canceled); err == nil {
		t.Error("expected send error")
	}
}

// TestEmailNotifier_EmptyCohort tests that an empty cohort is not an error.
func TestEmailNotifier_EmptyCohort(t *testing.T) {
	s := &fakeSender{accept: -1}
	n := newTestEmailNotifier(cohort(), s, &fakeOutbox{})
	empty := canceled
	empty.RecipientsScope = "NOBODY"
	if err := n.Notify(context.Background(), empty); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(s.batches) != 0 {
		t.Error("expected no send")
	}
}

// TestEmailNotifier_RosterError tests lookup failure propagation.
func TestEmailNotifier_RosterError(t *testing.T) {
	r := cohort()
	r.err = errors.New("db closed")
	if err := newTestEmailNotifier(r, &fakeSender{accept: -1}, &fakeOutbox{}).Notify(context.Background(), canceled); err == nil {
		t.Error("expected roster error")
	}
}

// TestQueuePublisher_Encode tests the queued document.
func TestQueuePublisher_Encode(t *testing.T) {
	q := NewQueuePublisher(nil, "")
	if q.key != DefaultQueueKey {
		t.Errorf("expected default key, got %q", q.key)
	}
	q.now = func() time.Time { return time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC) }

	body, err := q.encode(canceled)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var got QueueMessage
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.ClassCode != "CS101" || got.Subject != canceled.Subject || got.PublishedAt.IsZero() {
		t.Errorf("unexpected message: %+v", got)
	}
}

func dialHub(t *testing.T, srv *httptest.Server, code string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?code=" + code
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// TestHub_PushesToCohort tests that only matching viewers receive the push.
func TestHub_PushesToCohort(t *testing.T) {
	hub := NewHub(func(*http.Request) bool { return true })
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		hub.Serve(w, r, viewer.Session{ID: "v-" + code, Role: viewer.RoleStudent, ClassCode: code})
	}))
	t.Cleanup(srv.Close)

	member := dialHub(t, srv, "CS101")
	outsider := dialHub(t, srv, "CS999")

	deadline := time.Now().Add(2 * time.Second)
	for hub.Connected() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("clients did not register, connected=%d", hub.Connected())
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := hub.Notify(context.Background(), canceled); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	member.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got PushMessage
	if err := member.ReadJSON(&got); err != nil {
		t.Fatalf("member read: %v", err)
	}
	if got.ClassCode != "CS101" || got.Subject != canceled.Subject {
		t.Errorf("unexpected push: %+v", got)
	}

	outsider.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if err := outsider.ReadJSON(&got); err == nil {
		t.Errorf("expected no push for other cohort, got %+v", got)
	}
}

package email

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/resend/resend-go/v2"
)

// ResendSender sends through the Resend API.
type ResendSender struct {
	client *resend.Client
	from   string
	now    func() time.Time
}

// NewResendSender creates a sender with a default from address.
// PRE: apiKey is a valid Resend API key
func NewResendSender(apiKey, from string) *ResendSender {
	return &ResendSender{client: resend.NewClient(apiKey), from: from, now: time.Now}
}

// Send delivers one message.
// POST: Returns the Resend message id
func (s *ResendSender) Send(ctx context.Context, msg Message) (Receipt, error) {
	sent, err := s.client.Emails.SendWithContext(ctx, s.request(msg))
	if err != nil {
		slog.Error("resend_send_failed", "error", err, "recipients", len(msg.To), "subject", msg.Subject)
		return Receipt{}, fmt.Errorf("resend send: %w", err)
	}
	slog.Info("resend_sent", "message_id", sent.Id, "recipients", len(msg.To))
	return Receipt{MessageID: sent.Id, AcceptedAt: s.now()}, nil
}

// SendBatch delivers msgs in chunks of MaxBatch.
// PRE: none
// POST: len(receipts) equals the number of messages accepted before any error
func (s *ResendSender) SendBatch(ctx context.Context, msgs []Message) ([]Receipt, error) {
	var receipts []Receipt
	for _, part := range chunk(msgs, MaxBatch) {
		reqs := make([]*resend.SendEmailRequest, 0, len(part))
		for _, m := range part {
			reqs = append(reqs, s.request(m))
		}
		resp, err := s.client.Batch.SendWithContext(ctx, reqs)
		if err != nil {
			slog.Error("resend_batch_failed", "error", err, "batch_size", len(part), "accepted", len(receipts))
			return receipts, fmt.Errorf("resend batch send: %w", err)
		}
		for _, item := range resp.Data {
			receipts = append(receipts, Receipt{MessageID: item.Id, AcceptedAt: s.now()})
		}
	}
	slog.Info("resend_batch_sent", "count", len(receipts))
	return receipts, nil
}

func (s *ResendSender) request(m Message) *resend.SendEmailRequest {
	from := m.From
	if from == "" {
		from = s.from
	}
	req := &resend.SendEmailRequest{
		From:    from,
		To:      m.To,
		Subject: m.Subject,
		Html:    m.HTML,
		Text:    m.Text,
		ReplyTo: m.ReplyTo,
	}
	keys := make([]string, 0, len(m.Tags))
	for k := range m.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		req.Tags = append(req.Tags, resend.Tag{Name: k, Value: m.Tags[k]})
	}
	return req
}

package email

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// LogSender logs messages instead of delivering them. Used when no provider
// key is configured.
type LogSender struct {
	seq atomic.Int64
}

// NewLogSender creates a LogSender.
func NewLogSender() *LogSender {
	return &LogSender{}
}

func (s *LogSender) Send(_ context.Context, msg Message) (Receipt, error) {
	id := fmt.Sprintf("log-%d", s.seq.Add(1))
	slog.Info("email_logged", "message_id", id, "to", msg.To, "subject", msg.Subject)
	return Receipt{MessageID: id, AcceptedAt: time.Now()}, nil
}

func (s *LogSender) SendBatch(ctx context.Context, msgs []Message) ([]Receipt, error) {
	receipts := make([]Receipt, 0, len(msgs))
	for _, m := range msgs {
		r, _ := s.Send(ctx, m)
		receipts = append(receipts, r)
	}
	return receipts, nil
}

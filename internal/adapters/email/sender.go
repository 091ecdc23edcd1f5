// Package email delivers rendered notification messages through an
// external provider.
package email

import (
	"context"
	"time"
)

// MaxBatch is the largest batch the provider accepts in one call.
const MaxBatch = 100

// Message is one outbound email. Each message is delivered separately, so a
// cohort notification becomes one message per student.
type Message struct {
	To      []string          `json:"to"`
	From    string            `json:"from,omitempty"` // empty uses the sender's default
	Subject string            `json:"subject"`
	HTML    string            `json:"html"`
	Text    string            `json:"text,omitempty"` // plain-text alternative
	ReplyTo string            `json:"replyTo,omitempty"`
	Tags    map[string]string `json:"tags,omitempty"`
}

// Receipt is the provider's acknowledgement of a message.
type Receipt struct {
	MessageID  string
	AcceptedAt time.Time
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) (Receipt, error)
	// SendBatch returns receipts in request order. On error the receipts
	// of chunks accepted before the failure are still returned.
	SendBatch(ctx context.Context, msgs []Message) ([]Receipt, error)
}

// chunk splits msgs into consecutive slices of at most size messages.
func chunk(msgs []Message, size int) [][]Message {
	if size <= 0 {
		size = MaxBatch
	}
	var out [][]Message
	for len(msgs) > size {
		out = append(out, msgs[:size])
		msgs = msgs[size:]
	}
	if len(msgs) > 0 {
		out = append(out, msgs)
	}
	return out
}

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"timetable/internal/domain/notification"
)

// DefaultQueueKey is the Redis list notifications are pushed onto.
const DefaultQueueKey = "timetable:notifications"

// QueueMessage is the JSON document pushed for external consumers.
type QueueMessage struct {
	ClassCode   string    `json:"classCode"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	PublishedAt time.Time `json:"publishedAt"`
}

// QueuePublisher pushes notifications onto a Redis list for another process
// to deliver.
type QueuePublisher struct {
	client *redis.Client
	key    string
	now    func() time.Time
}

// NewQueuePublisher creates a publisher. An empty key uses DefaultQueueKey.
func NewQueuePublisher(client *redis.Client, key string) *QueuePublisher {
	if key == "" {
		key = DefaultQueueKey
	}
	return &QueuePublisher{client: client, key: key, now: time.Now}
}

func (q *QueuePublisher) Notify(ctx context.Context, n notification.Notification) error {
	body, err := q.encode(n)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.key, body).Err(); err != nil {
		return fmt.Errorf("push notification to %s: %w", q.key, err)
	}
	return nil
}

func (q *QueuePublisher) encode(n notification.Notification) ([]byte, error) {
	body, err := json.Marshal(QueueMessage{
		ClassCode:   n.RecipientsScope,
		Subject:     n.Subject,
		Body:        n.Body,
		PublishedAt: q.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode notification: %w", err)
	}
	return body, nil
}

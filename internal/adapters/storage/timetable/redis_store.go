package timetable

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	domain "timetable/internal/domain/classentry"
)

// DefaultRedisPrefix namespaces snapshot keys.
const DefaultRedisPrefix = "timetable:snapshot"

// RedisStore keeps each namespace as one string key holding the JSON array.
// SET replaces the value atomically.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a snapshot store on client.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(namespace string) string {
	return s.prefix + ":" + namespace
}

// Load reads the namespace key.
// PRE: namespace is non-empty
// POST: Returns the decoded collection, empty when the key is absent
func (s *RedisStore) Load(ctx context.Context, namespace string) ([]domain.ClassEntry, error) {
	payload, err := s.client.Get(ctx, s.key(namespace)).Bytes()
	if errors.Is(err, redis.Nil) {
		return []domain.ClassEntry{}, nil
	}
	if err != nil {
		return nil, err
	}
	return decode(payload)
}

// Replace overwrites the namespace key without expiry.
// PRE: namespace is non-empty
// POST: The key holds exactly entries
func (s *RedisStore) Replace(ctx context.Context, namespace string, entries []domain.ClassEntry) error {
	payload, err := encode(entries)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(namespace), payload, 0).Err()
}

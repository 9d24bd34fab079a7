package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vietddude/resilience/internal/core/domain"
	"github.com/vietddude/resilience/internal/infra/storage"
	"github.com/vietddude/resilience/internal/metrics"
)

// QueueStore implements storage.SyncQueueStore with one Redis string key.
type QueueStore struct {
	rdb *redis.Client
	key string
}

// NewQueueStore creates a Redis-backed queue store under key.
func NewQueueStore(client *Client, key string) *QueueStore {
	if key == "" {
		key = storage.DefaultQueueKey
	}
	return &QueueStore{
		rdb: client.rdb,
		key: key,
	}
}

// Load reads and decodes the queue. A missing key is an empty queue.
func (s *QueueStore) Load(ctx context.Context) (*domain.SyncQueue, error) {
	start := time.Now()
	defer func() {
		metrics.QueueStoreLatency.WithLabelValues("load").Observe(time.Since(start).Seconds())
	}()

	data, err := s.rdb.Get(ctx, s.key).Bytes()
	if err == redis.Nil {
		return storage.DecodeQueue(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync queue: %w", err)
	}
	return storage.DecodeQueue(data)
}

// Save encodes and writes the queue without expiry.
func (s *QueueStore) Save(ctx context.Context, q *domain.SyncQueue) error {
	start := time.Now()
	defer func() {
		metrics.QueueStoreLatency.WithLabelValues("save").Observe(time.Since(start).Seconds())
	}()

	data, err := storage.EncodeQueue(q)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set sync queue: %w", err)
	}
	return nil
}

// Clear deletes the stored queue.
func (s *QueueStore) Clear(ctx context.Context) error {
	return s.rdb.Del(ctx, s.key).Err()
}

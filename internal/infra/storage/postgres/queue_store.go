package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/resilience/internal/core/domain"
	"github.com/vietddude/resilience/internal/infra/storage"
	"github.com/vietddude/resilience/internal/metrics"
)

// QueueStore implements storage.SyncQueueStore as one row of kv_store.
type QueueStore struct {
	db  *DB
	key string
}

// NewQueueStore creates a PostgreSQL queue store under key.
func NewQueueStore(db *DB, key string) *QueueStore {
	if key == "" {
		key = storage.DefaultQueueKey
	}
	return &QueueStore{db: db, key: key}
}

// Load returns the stored queue.
func (s *QueueStore) Load(ctx context.Context) (*domain.SyncQueue, error) {
	start := time.Now()
	defer func() {
		metrics.QueueStoreLatency.WithLabelValues("load").Observe(time.Since(start).Seconds())
	}()

	var value []byte
	err := s.db.GetContext(ctx, &value, `SELECT value FROM kv_store WHERE key = $1`, s.key)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.DecodeQueue(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load sync queue: %w", err)
	}
	return storage.DecodeQueue(value)
}

// Save upserts the queue row.
func (s *QueueStore) Save(ctx context.Context, q *domain.SyncQueue) error {
	start := time.Now()
	defer func() {
		metrics.QueueStoreLatency.WithLabelValues("save").Observe(time.Since(start).Seconds())
	}()

	data, err := storage.EncodeQueue(q)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO kv_store (key, value, updated_at)
		VALUES ($1, $2::jsonb, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, s.key, string(data)); err != nil {
		return fmt.Errorf("failed to save sync queue: %w", err)
	}
	return nil
}

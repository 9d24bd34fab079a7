package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vietddude/resilience/internal/core/domain"
)

// DefaultQueueKey is the single key the serialized SyncQueue lives under.
const DefaultQueueKey = "offline:sync_queue"

// SyncQueueStore persists the offline queue as one document.
type SyncQueueStore interface {
	// Load returns the stored queue, or an empty queue if nothing is stored.
	Load(ctx context.Context) (*domain.SyncQueue, error)

	// Save replaces the stored queue.
	Save(ctx context.Context, q *domain.SyncQueue) error
}

// EncodeQueue serializes q for storage.
func EncodeQueue(q *domain.SyncQueue) ([]byte, error) {
	if q.Items == nil {
		q = &domain.SyncQueue{Items: []domain.SyncQueueItem{}, LastSyncAt: q.LastSyncAt}
	}
	data, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sync queue: %w", err)
	}
	return data, nil
}

// DecodeQueue parses a stored queue. Empty input yields an empty queue.
func DecodeQueue(data []byte) (*domain.SyncQueue, error) {
	q := &domain.SyncQueue{Items: []domain.SyncQueueItem{}}
	if len(data) == 0 {
		return q, nil
	}
	if err := json.Unmarshal(data, q); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sync queue: %w", err)
	}
	if q.Items == nil {
		q.Items = []domain.SyncQueueItem{}
	}
	return q, nil
}

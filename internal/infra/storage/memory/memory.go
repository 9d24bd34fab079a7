package memory

import (
	"context"
	"sync"

	"github.com/vietddude/resilience/internal/core/domain"
	"github.com/vietddude/resilience/internal/infra/storage"
)

// QueueStore keeps the serialized queue in memory. Storing the encoded form
// keeps Load/Save copy semantics identical to the durable stores.
type QueueStore struct {
	mu   sync.RWMutex
	data []byte
}

func NewQueueStore() *QueueStore {
	return &QueueStore{}
}

func (s *QueueStore) Load(ctx context.Context) (*domain.SyncQueue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return storage.DecodeQueue(s.data)
}

func (s *QueueStore) Save(ctx context.Context, q *domain.SyncQueue) error {
	data, err := storage.EncodeQueue(q)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
	return nil
}

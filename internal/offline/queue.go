package offline

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/resilience/internal/core/domain"
	"github.com/vietddude/resilience/internal/infra/crash"
	"github.com/vietddude/resilience/internal/infra/storage"
	"github.com/vietddude/resilience/internal/metrics"
)

const (
	DefaultMaxSize    = 50
	DefaultMaxRetries = 3
)

// Config bounds the queue.
type Config struct {
	MaxSize    int `yaml:"max_size"`
	MaxRetries int `yaml:"max_retries"`
}

// DefaultConfig returns a queue of 50 items with 3 attempts per item.
func DefaultConfig() Config {
	return Config{MaxSize: DefaultMaxSize, MaxRetries: DefaultMaxRetries}
}

// Queue is the durable, bounded, ordered store of deferred actions.
//
// Every mutation is a load-modify-save of the whole document behind one
// in-process mutex. The mutex is never held while an action handler runs.
type Queue struct {
	store    storage.SyncQueueStore
	reporter crash.Reporter
	cfg      Config
	log      *slog.Logger

	now   func() time.Time
	newID func() string

	mu sync.Mutex
}

// NewQueue creates a queue over store. Zero config values take defaults.
func NewQueue(store storage.SyncQueueStore, reporter crash.Reporter, cfg Config) *Queue {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if reporter == nil {
		reporter = crash.Nop{}
	}
	return &Queue{
		store:    store,
		reporter: reporter,
		cfg:      cfg,
		log:      slog.Default().With("component", "offline_queue"),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Config returns the effective limits.
func (q *Queue) Config() Config {
	return q.cfg
}

// mutate loads the queue, applies fn and saves when fn reports a change.
func (q *Queue) mutate(ctx context.Context, fn func(sq *domain.SyncQueue) bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	sq, err := q.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load queue: %w", err)
	}
	if !fn(sq) {
		return nil
	}
	if err := q.store.Save(ctx, sq); err != nil {
		return fmt.Errorf("failed to save queue: %w", err)
	}
	recordGauges(sq)
	return nil
}

// snapshot loads the queue under the lock.
func (q *Queue) snapshot(ctx context.Context) (*domain.SyncQueue, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	sq, err := q.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load queue: %w", err)
	}
	return sq, nil
}

// Enqueue appends a new pending item. At capacity one item is evicted first:
// the oldest failed item, else the oldest pending one.
func (q *Queue) Enqueue(
	ctx context.Context,
	typ domain.ActionType,
	payload map[string]any,
) (domain.SyncQueueItem, error) {
	item := domain.SyncQueueItem{
		ID:         q.newID(),
		Type:       typ,
		Payload:    payload,
		CreatedAt:  q.now().UnixMilli(),
		RetryCount: 0,
		Status:     domain.SyncStatusPending,
	}

	err := q.mutate(ctx, func(sq *domain.SyncQueue) bool {
		for len(sq.Items) >= q.cfg.MaxSize {
			evicted, ok := evict(sq)
			if !ok {
				break
			}
			metrics.QueueEvictions.WithLabelValues(string(evicted.Status)).Inc()
			q.log.Warn("Queue full, evicted item",
				"item_id", evicted.ID,
				"type", evicted.Type,
				"status", evicted.Status,
			)
		}
		sq.Items = append(sq.Items, item)
		return true
	})
	if err != nil {
		return domain.SyncQueueItem{}, err
	}

	q.log.Debug("Action queued", "item_id", item.ID, "type", item.Type)
	return item, nil
}

// evict removes one item to make room. Items currently syncing are only
// dropped when nothing else is left.
func evict(sq *domain.SyncQueue) (domain.SyncQueueItem, bool) {
	idx := slices.IndexFunc(sq.Items, func(it domain.SyncQueueItem) bool {
		return it.Status == domain.SyncStatusFailed
	})
	if idx < 0 {
		idx = slices.IndexFunc(sq.Items, func(it domain.SyncQueueItem) bool {
			return it.Status == domain.SyncStatusPending
		})
	}
	if idx < 0 && len(sq.Items) > 0 {
		idx = 0
	}
	if idx < 0 {
		return domain.SyncQueueItem{}, false
	}
	evicted := sq.Items[idx]
	sq.Items = slices.Delete(sq.Items, idx, idx+1)
	return evicted, true
}

// UpdateStatus merges update into the item with id. Unknown ids are ignored.
func (q *Queue) UpdateStatus(ctx context.Context, id string, update domain.ItemUpdate) error {
	return q.mutate(ctx, func(sq *domain.SyncQueue) bool {
		i := sq.IndexOf(id)
		if i < 0 {
			return false
		}
		update.Apply(&sq.Items[i])
		return true
	})
}

// Remove deletes the item with id. Unknown ids are ignored.
func (q *Queue) Remove(ctx context.Context, id string) error {
	return q.mutate(ctx, func(sq *domain.SyncQueue) bool {
		i := sq.IndexOf(id)
		if i < 0 {
			return false
		}
		sq.Items = slices.Delete(sq.Items, i, i+1)
		return true
	})
}

// PendingCount returns the number of pending items.
func (q *Queue) PendingCount(ctx context.Context) (int, error) {
	sq, err := q.snapshot(ctx)
	if err != nil {
		return 0, err
	}
	return sq.CountByStatus(domain.SyncStatusPending), nil
}

// FailedCount returns the number of permanently failed items.
func (q *Queue) FailedCount(ctx context.Context) (int, error) {
	sq, err := q.snapshot(ctx)
	if err != nil {
		return 0, err
	}
	return sq.CountByStatus(domain.SyncStatusFailed), nil
}

// Items returns every item in queue order.
func (q *Queue) Items(ctx context.Context) ([]domain.SyncQueueItem, error) {
	sq, err := q.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return sq.Items, nil
}

// LastSyncAt returns the end of the last process pass, or the zero time.
func (q *Queue) LastSyncAt(ctx context.Context) (time.Time, error) {
	sq, err := q.snapshot(ctx)
	if err != nil {
		return time.Time{}, err
	}
	if sq.LastSyncAt == nil {
		return time.Time{}, nil
	}
	return time.UnixMilli(*sq.LastSyncAt), nil
}

// RecoverStale returns items left in syncing by a process that died
// mid-pass to pending. Call it once at startup.
func (q *Queue) RecoverStale(ctx context.Context) (int, error) {
	recovered := 0
	err := q.mutate(ctx, func(sq *domain.SyncQueue) bool {
		for i := range sq.Items {
			if sq.Items[i].Status == domain.SyncStatusSyncing {
				sq.Items[i].Status = domain.SyncStatusPending
				recovered++
			}
		}
		return recovered > 0
	})
	if err != nil {
		return 0, err
	}
	if recovered > 0 {
		q.log.Info("Recovered stale syncing items", "count", recovered)
	}
	return recovered, nil
}

// Purge removes items in the given statuses, or every item when none are
// given. It returns the number removed.
func (q *Queue) Purge(ctx context.Context, statuses ...domain.SyncStatus) (int, error) {
	removed := 0
	err := q.mutate(ctx, func(sq *domain.SyncQueue) bool {
		before := len(sq.Items)
		if len(statuses) == 0 {
			sq.Items = sq.Items[:0]
		} else {
			sq.Items = slices.DeleteFunc(sq.Items, func(it domain.SyncQueueItem) bool {
				return slices.Contains(statuses, it.Status)
			})
		}
		removed = before - len(sq.Items)
		return removed > 0
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// PurgeFailedBefore removes failed items created before cutoff.
func (q *Queue) PurgeFailedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	threshold := cutoff.UnixMilli()
	removed := 0
	err := q.mutate(ctx, func(sq *domain.SyncQueue) bool {
		before := len(sq.Items)
		sq.Items = slices.DeleteFunc(sq.Items, func(it domain.SyncQueueItem) bool {
			return it.Status == domain.SyncStatusFailed && it.CreatedAt < threshold
		})
		removed = before - len(sq.Items)
		return removed > 0
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func recordGauges(sq *domain.SyncQueue) {
	for _, s := range []domain.SyncStatus{
		domain.SyncStatusPending, domain.SyncStatusSyncing, domain.SyncStatusFailed,
	} {
		metrics.QueueItems.WithLabelValues(string(s)).Set(float64(sq.CountByStatus(s)))
	}
}

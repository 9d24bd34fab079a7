package offline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/resilience/internal/core/domain"
	"github.com/vietddude/resilience/internal/infra/storage/memory"
)

type reportCall struct {
	err   error
	fatal bool
	extra map[string]any
}

type mockReporter struct {
	mu         sync.Mutex
	exceptions []reportCall
	fail       bool
}

func (m *mockReporter) ReportError(ctx context.Context, e domain.ClassifiedError) error {
	return nil
}

func (m *mockReporter) ReportException(ctx context.Context, err error, fatal bool, extra map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exceptions = append(m.exceptions, reportCall{err: err, fatal: fatal, extra: extra})
	if m.fail {
		return errors.New("reporter down")
	}
	return nil
}

func (m *mockReporter) calls() []reportCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]reportCall(nil), m.exceptions...)
}

type failingStore struct {
	*memory.QueueStore
	mu       sync.Mutex
	failSave bool
}

func (s *failingStore) Save(ctx context.Context, q *domain.SyncQueue) error {
	s.mu.Lock()
	fail := s.failSave
	s.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return s.QueueStore.Save(ctx, q)
}

func newTestQueue(t *testing.T, cfg Config) (*Queue, *mockReporter) {
	t.Helper()
	rep := &mockReporter{}
	q := NewQueue(memory.NewQueueStore(), rep, cfg)

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	var n int
	var mu sync.Mutex
	q.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
	var id int
	q.newID = func() string {
		mu.Lock()
		defer mu.Unlock()
		id++
		return fmt.Sprintf("item-%d", id)
	}
	return q, rep
}

func TestEnqueue(t *testing.T) {
	q, _ := newTestQueue(t, DefaultConfig())
	ctx := context.Background()

	item, err := q.Enqueue(ctx, domain.ActionCreateNotebook, map[string]any{"title": "X"})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if item.ID != "item-1" {
		t.Errorf("expected id item-1, got %s", item.ID)
	}
	if item.Status != domain.SyncStatusPending || item.RetryCount != 0 {
		t.Errorf("unexpected initial state: %+v", item)
	}
	if item.CreatedAt == 0 {
		t.Error("expected createdAt to be set")
	}

	items, err := q.Items(ctx)
	if err != nil {
		t.Fatalf("Items failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].Payload["title"] != "X" {
		t.Errorf("payload not persisted: %+v", items[0].Payload)
	}

	count, err := q.PendingCount(ctx)
	if err != nil {
		t.Fatalf("PendingCount failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected pending count 1, got %d", count)
	}
}

func TestEnqueue_EvictsOldestFailedFirst(t *testing.T) {
	q, _ := newTestQueue(t, DefaultConfig())
	ctx := context.Background()

	for i := 0; i < DefaultMaxSize; i++ {
		if _, err := q.Enqueue(ctx, domain.ActionUpdateProfile, nil); err != nil {
			t.Fatalf("Enqueue %d failed: %v", i, err)
		}
	}
	failed := domain.SyncStatusFailed
	for _, id := range []string{"item-10", "item-20"} {
		if err := q.UpdateStatus(ctx, id, domain.ItemUpdate{Status: &failed}); err != nil {
			t.Fatalf("UpdateStatus failed: %v", err)
		}
	}

	if _, err := q.Enqueue(ctx, domain.ActionUpdateProfile, nil); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	items, _ := q.Items(ctx)
	if len(items) != DefaultMaxSize {
		t.Fatalf("expected %d items, got %d", DefaultMaxSize, len(items))
	}
	ids := make(map[string]bool)
	for _, it := range items {
		ids[it.ID] = true
	}
	if ids["item-10"] {
		t.Error("expected oldest failed item to be evicted")
	}
	if !ids["item-20"] || !ids["item-1"] || !ids["item-51"] {
		t.Error("expected exactly one eviction")
	}
}

func TestEnqueue_EvictsOldestPendingWithoutFailed(t *testing.T) {
	q, _ := newTestQueue(t, Config{MaxSize: 3})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		q.Enqueue(ctx, domain.ActionAddMaterial, nil)
	}
	syncing := domain.SyncStatusSyncing
	q.UpdateStatus(ctx, "item-1", domain.ItemUpdate{Status: &syncing})

	if _, err := q.Enqueue(ctx, domain.ActionAddMaterial, nil); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	items, _ := q.Items(ctx)
	var got []string
	for _, it := range items {
		got = append(got, it.ID)
	}
	want := "item-1,item-3,item-4"
	if strings.Join(got, ",") != want {
		t.Errorf("expected %s, got %s", want, strings.Join(got, ","))
	}
}

func TestEnqueue_EvictsSyncingAsLastResort(t *testing.T) {
	q, _ := newTestQueue(t, Config{MaxSize: 2})
	ctx := context.Background()

	q.Enqueue(ctx, domain.ActionAddMaterial, nil)
	q.Enqueue(ctx, domain.ActionAddMaterial, nil)
	syncing := domain.SyncStatusSyncing
	q.UpdateStatus(ctx, "item-1", domain.ItemUpdate{Status: &syncing})
	q.UpdateStatus(ctx, "item-2", domain.ItemUpdate{Status: &syncing})

	q.Enqueue(ctx, domain.ActionAddMaterial, nil)

	items, _ := q.Items(ctx)
	if len(items) != 2 || items[0].ID != "item-2" || items[1].ID != "item-3" {
		t.Errorf("unexpected items after eviction: %+v", items)
	}
}

func TestUpdateStatusAndRemove_UnknownIDIsNoop(t *testing.T) {
	q, _ := newTestQueue(t, DefaultConfig())
	ctx := context.Background()

	q.Enqueue(ctx, domain.ActionDeleteNotebook, nil)
	failed := domain.SyncStatusFailed
	if err := q.UpdateStatus(ctx, "missing", domain.ItemUpdate{Status: &failed}); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if err := q.Remove(ctx, "missing"); err != nil {
		t.Errorf("expected no error, got %v", err)
	}

	items, _ := q.Items(ctx)
	if len(items) != 1 || items[0].Status != domain.SyncStatusPending {
		t.Errorf("queue changed unexpectedly: %+v", items)
	}
}

func TestUpdateStatus_MergesFields(t *testing.T) {
	q, _ := newTestQueue(t, DefaultConfig())
	ctx := context.Background()

	q.Enqueue(ctx, domain.ActionDeleteNotebook, map[string]any{"id": "nb-1"})
	retries := 2
	if err := q.UpdateStatus(ctx, "item-1", domain.ItemUpdate{RetryCount: &retries}); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	items, _ := q.Items(ctx)
	if items[0].RetryCount != 2 {
		t.Errorf("expected retryCount 2, got %d", items[0].RetryCount)
	}
	if items[0].Status != domain.SyncStatusPending {
		t.Errorf("status should be untouched, got %s", items[0].Status)
	}
	if items[0].Payload["id"] != "nb-1" {
		t.Errorf("payload should be untouched, got %+v", items[0].Payload)
	}
}

func TestProcess_EmptyQueue(t *testing.T) {
	q, _ := newTestQueue(t, DefaultConfig())
	ctx := context.Background()

	res, err := q.Process(ctx, Handlers{})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if res.Success != 0 || res.Failed != 0 {
		t.Errorf("expected {0 0}, got %+v", res)
	}

	last, err := q.LastSyncAt(ctx)
	if err != nil {
		t.Fatalf("LastSyncAt failed: %v", err)
	}
	if last.IsZero() {
		t.Error("expected lastSyncAt to be updated")
	}
}

func TestProcess_SuccessRemovesItem(t *testing.T) {
	q, _ := newTestQueue(t, DefaultConfig())
	ctx := context.Background()

	q.Enqueue(ctx, domain.ActionCreateNotebook, map[string]any{"title": "A"})
	q.Enqueue(ctx, domain.ActionCreateNotebook, map[string]any{"title": "B"})

	var seen []string
	res, err := q.Process(ctx, Handlers{
		domain.ActionCreateNotebook: func(ctx context.Context, payload map[string]any) error {
			it, ok := ItemFromContext(ctx)
			if !ok || it.Status != domain.SyncStatusSyncing {
				t.Errorf("expected syncing item in context, got %+v", it)
			}
			seen = append(seen, payload["title"].(string))
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if res.Success != 2 || res.Failed != 0 {
		t.Errorf("expected {2 0}, got %+v", res)
	}
	if strings.Join(seen, "") != "AB" {
		t.Errorf("expected insertion order AB, got %v", seen)
	}

	items, _ := q.Items(ctx)
	if len(items) != 0 {
		t.Errorf("expected empty queue, got %d items", len(items))
	}
}

func TestProcess_RetryCeiling(t *testing.T) {
	q, rep := newTestQueue(t, DefaultConfig())
	ctx := context.Background()

	q.Enqueue(ctx, domain.ActionAddMaterial, map[string]any{"url": "x"})
	handlers := Handlers{
		domain.ActionAddMaterial: func(ctx context.Context, payload map[string]any) error {
			return errors.New("server exploded")
		},
	}

	for pass := 1; pass <= 2; pass++ {
		res, err := q.Process(ctx, handlers)
		if err != nil {
			t.Fatalf("pass %d: Process failed: %v", pass, err)
		}
		if res.Success != 0 || res.Failed != 0 {
			t.Errorf("pass %d: expected {0 0}, got %+v", pass, res)
		}
		items, _ := q.Items(ctx)
		if items[0].Status != domain.SyncStatusPending {
			t.Errorf("pass %d: expected pending, got %s", pass, items[0].Status)
		}
		if items[0].RetryCount != pass {
			t.Errorf("pass %d: expected retryCount %d, got %d", pass, pass, items[0].RetryCount)
		}
		if items[0].ErrorMessage != "server exploded" {
			t.Errorf("pass %d: expected error message, got %q", pass, items[0].ErrorMessage)
		}
		if len(rep.calls()) != 0 {
			t.Errorf("pass %d: expected no report yet", pass)
		}
	}

	res, err := q.Process(ctx, handlers)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if res.Failed != 1 {
		t.Errorf("expected 1 failed, got %+v", res)
	}
	items, _ := q.Items(ctx)
	if items[0].Status != domain.SyncStatusFailed || items[0].RetryCount != 3 {
		t.Errorf("expected failed with retryCount 3, got %+v", items[0])
	}

	calls := rep.calls()
	if len(calls) != 1 {
		t.Fatalf("expected exactly 1 report, got %d", len(calls))
	}
	if calls[0].fatal {
		t.Error("expected non-fatal report")
	}
	if calls[0].extra["itemId"] != "item-1" || calls[0].extra["retryCount"] != 3 {
		t.Errorf("unexpected report metadata: %+v", calls[0].extra)
	}
	if _, ok := calls[0].extra["createdAt"]; !ok {
		t.Error("expected createdAt in report metadata")
	}

	// Failed items are not picked up again.
	res, _ = q.Process(ctx, handlers)
	if res.Success != 0 || res.Failed != 0 {
		t.Errorf("expected failed item to be skipped, got %+v", res)
	}
	if len(rep.calls()) != 1 {
		t.Error("expected no further reports")
	}
}

func TestProcess_MissingHandler(t *testing.T) {
	q, rep := newTestQueue(t, DefaultConfig())
	ctx := context.Background()

	q.Enqueue(ctx, domain.ActionUpdateProfile, nil)

	res, err := q.Process(ctx, Handlers{})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if res.Failed != 1 {
		t.Errorf("expected 1 failed, got %+v", res)
	}

	items, _ := q.Items(ctx)
	if items[0].Status != domain.SyncStatusFailed {
		t.Errorf("expected failed, got %s", items[0].Status)
	}
	if items[0].RetryCount != 0 {
		t.Errorf("expected no retry consumed, got %d", items[0].RetryCount)
	}
	if !strings.Contains(items[0].ErrorMessage, "update_profile") {
		t.Errorf("expected explanatory message, got %q", items[0].ErrorMessage)
	}
	if len(rep.calls()) != 0 {
		t.Error("expected no crash report for unhandled type")
	}
}

func TestProcess_PermanentShortCircuits(t *testing.T) {
	q, rep := newTestQueue(t, DefaultConfig())
	ctx := context.Background()

	q.Enqueue(ctx, domain.ActionCreateNotebook, map[string]any{"title": ""})

	cause := errors.New("title is required")
	res, err := q.Process(ctx, Handlers{
		domain.ActionCreateNotebook: func(ctx context.Context, payload map[string]any) error {
			return Permanent(cause)
		},
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if res.Failed != 1 {
		t.Errorf("expected 1 failed, got %+v", res)
	}

	items, _ := q.Items(ctx)
	if items[0].Status != domain.SyncStatusFailed || items[0].RetryCount != 1 {
		t.Errorf("expected failed after one attempt, got %+v", items[0])
	}
	calls := rep.calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 report, got %d", len(calls))
	}
	if !errors.Is(calls[0].err, cause) {
		t.Errorf("expected report to wrap cause, got %v", calls[0].err)
	}
}

func TestPermanent(t *testing.T) {
	if Permanent(nil) != nil {
		t.Error("expected Permanent(nil) to be nil")
	}
	cause := errors.New("bad")
	err := fmt.Errorf("wrapped: %w", Permanent(cause))
	if !IsPermanent(err) {
		t.Error("expected wrapped permanent error to be detected")
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable")
	}
	if IsPermanent(cause) {
		t.Error("plain error should not be permanent")
	}
}

func TestProcess_HandlerPanic(t *testing.T) {
	q, _ := newTestQueue(t, DefaultConfig())
	ctx := context.Background()

	q.Enqueue(ctx, domain.ActionDeleteMaterial, nil)

	res, err := q.Process(ctx, Handlers{
		domain.ActionDeleteMaterial: func(ctx context.Context, payload map[string]any) error {
			panic("nil map")
		},
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if res.Success != 0 || res.Failed != 0 {
		t.Errorf("expected retryable failure, got %+v", res)
	}

	items, _ := q.Items(ctx)
	if items[0].Status != domain.SyncStatusPending || items[0].RetryCount != 1 {
		t.Errorf("expected pending with one attempt, got %+v", items[0])
	}
	if !strings.Contains(items[0].ErrorMessage, "nil map") {
		t.Errorf("expected panic value in message, got %q", items[0].ErrorMessage)
	}
}

func TestProcess_ReporterFailureSwallowed(t *testing.T) {
	q, rep := newTestQueue(t, Config{MaxRetries: 1})
	rep.fail = true
	ctx := context.Background()

	q.Enqueue(ctx, domain.ActionAddMaterial, nil)

	res, err := q.Process(ctx, Handlers{
		domain.ActionAddMaterial: func(ctx context.Context, payload map[string]any) error {
			return errors.New("nope")
		},
	})
	if err != nil {
		t.Fatalf("expected reporter failure to be swallowed, got %v", err)
	}
	if res.Failed != 1 {
		t.Errorf("expected 1 failed, got %+v", res)
	}
}

func TestProcess_EnqueueDuringPass(t *testing.T) {
	q, _ := newTestQueue(t, DefaultConfig())
	ctx := context.Background()

	q.Enqueue(ctx, domain.ActionCreateNotebook, map[string]any{"title": "first"})

	res, err := q.Process(ctx, Handlers{
		domain.ActionCreateNotebook: func(ctx context.Context, payload map[string]any) error {
			if payload["title"] == "first" {
				if _, err := q.Enqueue(ctx, domain.ActionCreateNotebook, map[string]any{"title": "second"}); err != nil {
					return err
				}
			}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if res.Success != 1 {
		t.Errorf("expected only the snapshot to be processed, got %+v", res)
	}

	count, _ := q.PendingCount(ctx)
	if count != 1 {
		t.Errorf("expected the new item to wait for the next pass, got %d pending", count)
	}
}

func TestProcess_StoreErrorsAreReturned(t *testing.T) {
	store := &failingStore{QueueStore: memory.NewQueueStore()}
	q := NewQueue(store, &mockReporter{}, DefaultConfig())
	ctx := context.Background()

	q.Enqueue(ctx, domain.ActionCreateNotebook, nil)
	store.mu.Lock()
	store.failSave = true
	store.mu.Unlock()

	called := false
	_, err := q.Process(ctx, Handlers{
		domain.ActionCreateNotebook: func(ctx context.Context, payload map[string]any) error {
			called = true
			return nil
		},
	})
	if err == nil {
		t.Fatal("expected store error")
	}
	if called {
		t.Error("handler must not run when the item cannot be claimed")
	}
}

func TestRecoverStale(t *testing.T) {
	q, _ := newTestQueue(t, DefaultConfig())
	ctx := context.Background()

	q.Enqueue(ctx, domain.ActionAddMaterial, nil)
	q.Enqueue(ctx, domain.ActionAddMaterial, nil)
	syncing := domain.SyncStatusSyncing
	q.UpdateStatus(ctx, "item-2", domain.ItemUpdate{Status: &syncing})

	n, err := q.RecoverStale(ctx)
	if err != nil {
		t.Fatalf("RecoverStale failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 recovered, got %d", n)
	}
	count, _ := q.PendingCount(ctx)
	if count != 2 {
		t.Errorf("expected 2 pending, got %d", count)
	}
}

func TestPurge(t *testing.T) {
	q, _ := newTestQueue(t, DefaultConfig())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		q.Enqueue(ctx, domain.ActionAddMaterial, nil)
	}
	failed := domain.SyncStatusFailed
	q.UpdateStatus(ctx, "item-1", domain.ItemUpdate{Status: &failed})
	q.UpdateStatus(ctx, "item-3", domain.ItemUpdate{Status: &failed})

	n, err := q.Purge(ctx, domain.SyncStatusFailed)
	if err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 purged, got %d", n)
	}
	fc, _ := q.FailedCount(ctx)
	if fc != 0 {
		t.Errorf("expected no failed items, got %d", fc)
	}

	n, _ = q.Purge(ctx)
	if n != 2 {
		t.Errorf("expected remaining 2 purged, got %d", n)
	}
	items, _ := q.Items(ctx)
	if len(items) != 0 {
		t.Errorf("expected empty queue, got %d", len(items))
	}
}

func TestPurgeFailedBefore(t *testing.T) {
	q, _ := newTestQueue(t, DefaultConfig())
	ctx := context.Background()

	old, _ := q.Enqueue(ctx, domain.ActionAddMaterial, nil)
	recent, _ := q.Enqueue(ctx, domain.ActionAddMaterial, nil)
	q.Enqueue(ctx, domain.ActionAddMaterial, nil)

	failed := domain.SyncStatusFailed
	q.UpdateStatus(ctx, old.ID, domain.ItemUpdate{Status: &failed})
	q.UpdateStatus(ctx, recent.ID, domain.ItemUpdate{Status: &failed})

	n, err := q.PurgeFailedBefore(ctx, time.UnixMilli(recent.CreatedAt))
	if err != nil {
		t.Fatalf("PurgeFailedBefore failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 purged, got %d", n)
	}
	items, _ := q.Items(ctx)
	if len(items) != 2 || items[0].ID != recent.ID {
		t.Errorf("expected only the old failed item removed, got %+v", items)
	}
}

func TestQueue_PersistsAcrossInstances(t *testing.T) {
	store := memory.NewQueueStore()
	ctx := context.Background()

	first := NewQueue(store, nil, DefaultConfig())
	if _, err := first.Enqueue(ctx, domain.ActionCreateNotebook, map[string]any{"title": "X"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	second := NewQueue(store, nil, DefaultConfig())
	count, err := second.PendingCount(ctx)
	if err != nil {
		t.Fatalf("PendingCount failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected the item to survive a restart, got %d pending", count)
	}
}

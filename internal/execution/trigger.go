package execution

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vietddude/resilience/internal/infra/network"
	"github.com/vietddude/resilience/internal/metrics"
	"github.com/vietddude/resilience/internal/offline"
)

// DefaultSettleDelay is how long connectivity must hold before a reconnect
// pass starts.
const DefaultSettleDelay = 2 * time.Second

// Processor is the part of the offline queue the trigger drives.
type Processor interface {
	Process(ctx context.Context, handlers offline.Handlers) (offline.Result, error)
}

type timer interface {
	Stop() bool
}

// ReconnectTrigger processes the offline queue once per offline to online
// transition, after a settle delay. Passes never overlap.
type ReconnectTrigger struct {
	monitor  network.Monitor
	queue    Processor
	handlers offline.Handlers
	settle   time.Duration
	log      *slog.Logger

	// afterFunc schedules f after d. Swapped in tests.
	afterFunc func(d time.Duration, f func()) timer

	running atomic.Bool
	wg      sync.WaitGroup

	mu          sync.Mutex
	ctx         context.Context
	pending     timer
	wasOffline  bool
	stopped     bool
	unsubscribe func()
}

// NewReconnectTrigger creates a trigger. A non-positive settle delay uses
// DefaultSettleDelay.
func NewReconnectTrigger(
	monitor network.Monitor,
	queue Processor,
	handlers offline.Handlers,
	settle time.Duration,
) *ReconnectTrigger {
	if settle <= 0 {
		settle = DefaultSettleDelay
	}
	return &ReconnectTrigger{
		monitor:  monitor,
		queue:    queue,
		handlers: handlers,
		settle:   settle,
		log:      slog.Default().With("component", "reconnect_trigger"),
		afterFunc: func(d time.Duration, f func()) timer {
			return time.AfterFunc(d, f)
		},
	}
}

// Start subscribes to the monitor. Passes started by the trigger are not
// cancelled when ctx is.
func (t *ReconnectTrigger) Start(ctx context.Context) {
	t.mu.Lock()
	t.ctx = context.WithoutCancel(ctx)
	t.wasOffline = t.monitor.Status().IsOffline()
	t.mu.Unlock()

	unsubscribe := t.monitor.Subscribe(t.onChange)

	t.mu.Lock()
	t.unsubscribe = unsubscribe
	t.mu.Unlock()
}

// Stop unsubscribes, cancels a pending settle timer and waits for an
// in-flight pass to finish.
func (t *ReconnectTrigger) Stop() {
	t.mu.Lock()
	t.stopped = true
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
	unsubscribe := t.unsubscribe
	t.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	t.wg.Wait()
}

func (t *ReconnectTrigger) onChange(s network.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}
	if s.IsOffline() {
		t.wasOffline = true
		if t.pending != nil {
			t.pending.Stop()
			t.pending = nil
			t.log.Debug("Connectivity dropped during settle delay")
		}
		return
	}
	if !t.wasOffline || t.pending != nil {
		return
	}
	t.wasOffline = false
	t.log.Info("Back online, syncing after settle delay", "delay", t.settle)
	t.pending = t.afterFunc(t.settle, t.fire)
}

func (t *ReconnectTrigger) fire() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.pending = nil
	ctx := t.ctx
	t.wg.Add(1)
	t.mu.Unlock()
	defer t.wg.Done()

	t.run(ctx, "reconnect")
}

// SyncNow runs a pass immediately under the same guard as reconnect passes.
// ran is false when another pass was already in progress.
func (t *ReconnectTrigger) SyncNow(ctx context.Context) (res offline.Result, ran bool, err error) {
	return t.run(ctx, "manual")
}

// SyncAsync starts a pass in the background. The pass is not cancelled with
// ctx and Stop waits for it. It is a no-op after Stop.
func (t *ReconnectTrigger) SyncAsync(ctx context.Context) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.wg.Add(1)
	t.mu.Unlock()

	go func() {
		defer t.wg.Done()
		t.run(context.WithoutCancel(ctx), "startup")
	}()
}

func (t *ReconnectTrigger) run(ctx context.Context, trigger string) (offline.Result, bool, error) {
	if !t.running.CompareAndSwap(false, true) {
		t.log.Debug("Sync already in progress, skipping", "trigger", trigger)
		return offline.Result{}, false, nil
	}
	defer t.running.Store(false)

	metrics.SyncPasses.WithLabelValues(trigger).Inc()
	res, err := t.queue.Process(ctx, t.handlers)
	if err != nil {
		t.log.Error("Sync pass had store errors", "trigger", trigger, "error", err)
	}
	t.log.Info("Sync pass complete",
		"trigger", trigger,
		"success", res.Success,
		"failed", res.Failed,
	)
	return res, true, err
}

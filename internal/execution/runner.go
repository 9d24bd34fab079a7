// Package execution runs user actions immediately when online and defers
// them to the offline queue otherwise.
package execution

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/url"

	"github.com/vietddude/resilience/internal/classify"
	"github.com/vietddude/resilience/internal/core/domain"
	"github.com/vietddude/resilience/internal/infra/network"
	"github.com/vietddude/resilience/internal/infra/notify"
	"github.com/vietddude/resilience/internal/metrics"
)

// Action is a user operation that talks to the backend.
type Action func(ctx context.Context) (any, error)

// Enqueuer is the part of the offline queue the runner needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, typ domain.ActionType, payload map[string]any) (domain.SyncQueueItem, error)
}

// Options controls how RunOrDefer treats an offline device.
type Options struct {
	OperationType domain.ActionType
	// BlockWhenOffline refuses to run or queue the action while offline.
	BlockWhenOffline bool
	QueuedMessage    string
	BlockedMessage   string
	// Silent suppresses user notices.
	Silent bool
}

// Outcome is the result of RunOrDefer.
type Outcome struct {
	Success bool
	Result  any
	Queued  bool
}

const (
	defaultQueuedMessage  = "You're offline. Your changes have been saved and will sync when you're back online."
	defaultBlockedMessage = "This action requires an internet connection. Please try again when you're online."
)

// Runner implements run-or-defer over a network monitor and the offline
// queue.
type Runner struct {
	queue    Enqueuer
	monitor  network.Monitor
	notifier notify.Notifier
	log      *slog.Logger
}

// NewRunner creates a runner. A nil notifier disables notices.
func NewRunner(queue Enqueuer, monitor network.Monitor, notifier notify.Notifier) *Runner {
	return &Runner{
		queue:    queue,
		monitor:  monitor,
		notifier: notifier,
		log:      slog.Default().With("component", "runner"),
	}
}

// RunOrDefer runs action when online. While offline the action is either
// blocked or queued under opts.OperationType with payload. An online call
// that fails with a network error is queued the same way unless blocking is
// requested; any other error is returned unchanged.
func (r *Runner) RunOrDefer(ctx context.Context, action Action, payload map[string]any, opts Options) (Outcome, error) {
	if r.monitor.Status().IsOffline() {
		if opts.BlockWhenOffline {
			r.record(opts, "blocked")
			r.notice(ctx, opts, notify.Notice{
				Title:    "No Connection",
				Message:  orDefault(opts.BlockedMessage, defaultBlockedMessage),
				Blocking: true,
			})
			return Outcome{}, nil
		}
		if !r.enqueue(ctx, payload, opts) {
			return Outcome{}, nil
		}
		return Outcome{Success: true, Queued: true}, nil
	}

	result, err := action(ctx)
	if err == nil {
		r.record(opts, "executed")
		return Outcome{Success: true, Result: result}, nil
	}

	if opts.BlockWhenOffline || !IsNetworkFailure(err) {
		r.record(opts, "error")
		return Outcome{}, err
	}

	r.log.Warn("Action failed with network error, deferring",
		"operation", opts.OperationType,
		"error", err,
	)
	if !r.enqueue(ctx, payload, opts) {
		return Outcome{}, err
	}
	return Outcome{Success: true, Queued: true}, nil
}

// enqueue queues the action and tells the user. It reports whether the item
// was stored.
func (r *Runner) enqueue(ctx context.Context, payload map[string]any, opts Options) bool {
	item, err := r.queue.Enqueue(ctx, opts.OperationType, payload)
	if err != nil {
		r.record(opts, "queue_error")
		r.log.Error("Failed to queue action",
			"operation", opts.OperationType,
			"error", err,
		)
		r.notice(ctx, opts, notify.Notice{
			Title:   "Not Saved",
			Message: "Your changes could not be saved for later. Please try again.",
		})
		return false
	}

	r.record(opts, "queued")
	r.log.Info("Action queued for later", "operation", opts.OperationType, "item_id", item.ID)
	r.notice(ctx, opts, notify.Notice{
		Title:   "Saved Offline",
		Message: orDefault(opts.QueuedMessage, defaultQueuedMessage),
	})
	return true
}

func (r *Runner) notice(ctx context.Context, opts Options, n notify.Notice) {
	if opts.Silent || r.notifier == nil {
		return
	}
	r.notifier.Notice(ctx, n)
}

func (r *Runner) record(opts Options, outcome string) {
	metrics.Deferrals.WithLabelValues(string(opts.OperationType), outcome).Inc()
}

// IsNetworkFailure reports whether err looks like lost connectivity rather
// than a backend rejection. Cancellation or an expired deadline owned by the
// caller is never a network failure.
func IsNetworkFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return true
		}
		// Match on the cause so the request URL cannot trip a keyword.
		err = urlErr.Err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return classify.ClassifyError(err, domain.ErrorContext{}).Kind == domain.KindNetwork
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/resilience/internal/classify"
	"github.com/vietddude/resilience/internal/core/domain"
	"github.com/vietddude/resilience/internal/infra/crash"
	"github.com/vietddude/resilience/internal/infra/notify"
	"github.com/vietddude/resilience/internal/metrics"
)

// RetryFunc re-runs the operation that failed.
type RetryFunc func(ctx context.Context) error

// HandleOption customises a single Handle call.
type HandleOption func(*handleOptions)

type handleOptions struct {
	retry       RetryFunc
	userMessage *domain.UserMessage
}

// WithRetryAction supplies the operation to re-run if the error qualifies for
// an automatic retry. Without it the retry path is skipped.
func WithRetryAction(fn RetryFunc) HandleOption {
	return func(o *handleOptions) { o.retry = fn }
}

// WithUserMessage overrides the kind-derived user message.
func WithUserMessage(m domain.UserMessage) HandleOption {
	return func(o *handleOptions) { o.userMessage = &m }
}

// timer is the part of *time.Timer the handler needs.
type timer interface {
	Stop() bool
}

// Handler is the process-wide error coordinator. Construct one at startup,
// share it by reference and call Cleanup on shutdown.
type Handler struct {
	classifier *classify.Classifier
	reporter   crash.Reporter
	notifier   notify.Notifier
	strategy   RetryStrategy
	log        *slog.Logger

	// afterFunc schedules f after d. Swapped in tests.
	afterFunc func(d time.Duration, f func()) timer

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	timers map[uint64]timer
	nextID uint64
	closed bool
}

// NewHandler creates a handler. A nil reporter, notifier or strategy is
// replaced by a no-op reporter, no notifier and DefaultBackoff respectively.
func NewHandler(
	classifier *classify.Classifier,
	reporter crash.Reporter,
	notifier notify.Notifier,
	strategy RetryStrategy,
) *Handler {
	if classifier == nil {
		classifier = classify.New()
	}
	if reporter == nil {
		reporter = crash.Nop{}
	}
	if strategy == nil {
		strategy = DefaultBackoff()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Handler{
		classifier: classifier,
		reporter:   reporter,
		notifier:   notifier,
		strategy:   strategy,
		log:        slog.Default().With("component", "error_handler"),
		afterFunc: func(d time.Duration, f func()) timer {
			return time.AfterFunc(d, f)
		},
		ctx:    ctx,
		cancel: cancel,
		timers: make(map[uint64]timer),
	}
}

// Handle classifies raw, reports it, notifies the user and, when the result
// qualifies, schedules an automatic retry of the supplied retry action.
func (h *Handler) Handle(
	ctx context.Context,
	raw classify.Raw,
	ectx domain.ErrorContext,
	opts ...HandleOption,
) domain.ClassifiedError {
	var o handleOptions
	for _, opt := range opts {
		opt(&o)
	}

	ce := h.classifier.Classify(raw, ectx)
	if o.userMessage != nil {
		ce = ce.WithUserMessage(*o.userMessage)
	}
	metrics.ErrorsHandled.WithLabelValues(string(ce.Kind), string(ce.Severity), "handle").Inc()

	h.report(ctx, ce)
	h.notify(ctx, ce)

	if ce.Retryable && h.ShouldAutoRetry(ce) {
		if o.retry == nil {
			h.log.Debug("No retry action supplied, skipping retry",
				"operation", ce.Context.Operation)
		} else {
			h.scheduleRetry(ce, o)
		}
	}
	return ce
}

// HandleError is Handle for a Go error value.
func (h *Handler) HandleError(
	ctx context.Context,
	err error,
	ectx domain.ErrorContext,
	opts ...HandleOption,
) domain.ClassifiedError {
	return h.Handle(ctx, classify.FromError(err), ectx, opts...)
}

// ShouldAutoRetry reports whether e qualifies for an automatic retry.
func (h *Handler) ShouldAutoRetry(e domain.ClassifiedError) bool {
	return h.strategy.ShouldRetry(e)
}

// PendingRetries returns the number of retry timers waiting to fire.
func (h *Handler) PendingRetries() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.timers)
}

// Cleanup cancels every outstanding retry timer. Retries already running see
// a cancelled context and are not rescheduled. Safe to call more than once.
func (h *Handler) Cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, t := range h.timers {
		t.Stop()
		delete(h.timers, id)
	}
	h.closed = true
	h.cancel()
	metrics.RetryTimers.Set(0)
}

func (h *Handler) scheduleRetry(ce domain.ClassifiedError, o handleOptions) {
	delay := h.strategy.GetDelay(ce.Context.RetryCount)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}

	id := h.nextID
	h.nextID++
	h.timers[id] = h.afterFunc(delay, func() { h.fire(id, ce, o) })
	metrics.RetriesScheduled.WithLabelValues(string(ce.Kind)).Inc()
	metrics.RetryTimers.Inc()

	h.log.Debug("Retry scheduled",
		"operation", ce.Context.Operation,
		"retry_count", ce.Context.RetryCount,
		"delay", delay,
	)
}

func (h *Handler) fire(id uint64, ce domain.ClassifiedError, o handleOptions) {
	h.mu.Lock()
	if _, ok := h.timers[id]; !ok || h.closed {
		h.mu.Unlock()
		return
	}
	delete(h.timers, id)
	h.mu.Unlock()
	metrics.RetryTimers.Dec()

	err := runRetry(h.ctx, o.retry)
	if err == nil {
		h.log.Info("Retry succeeded",
			"operation", ce.Context.Operation,
			"attempt", ce.Context.RetryCount+1,
		)
		return
	}
	if h.ctx.Err() != nil {
		return
	}

	next := ce.WithRetry()
	h.Handle(h.ctx, classify.FromError(err), next.Context, h.carry(o)...)
}

// carry rebuilds the options for the next attempt.
func (h *Handler) carry(o handleOptions) []HandleOption {
	opts := []HandleOption{WithRetryAction(o.retry)}
	if o.userMessage != nil {
		opts = append(opts, WithUserMessage(*o.userMessage))
	}
	return opts
}

func runRetry(ctx context.Context, fn RetryFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("retry panicked: %v", r)
		}
	}()
	return fn(ctx)
}

// report forwards to the crash reporter. Failures and panics are swallowed.
func (h *Handler) report(ctx context.Context, ce domain.ClassifiedError) {
	defer func() {
		if r := recover(); r != nil {
			metrics.CrashReports.WithLabelValues("error", "panic").Inc()
			h.log.Warn("Crash reporter panicked", "panic", r)
		}
	}()
	if err := h.reporter.ReportError(ctx, ce); err != nil {
		metrics.CrashReports.WithLabelValues("error", "failed").Inc()
		h.log.Warn("Failed to report error", "error", err, "kind", ce.Kind)
	}
}

func (h *Handler) notify(ctx context.Context, ce domain.ClassifiedError) {
	if h.notifier == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			h.log.Warn("Notifier panicked", "panic", r)
		}
	}()
	h.notifier.Notify(ctx, ce)
}

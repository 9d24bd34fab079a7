package offline

import (
	"context"
	"errors"
	"fmt"

	"github.com/vietddude/resilience/internal/core/domain"
	"github.com/vietddude/resilience/internal/metrics"
)

// ActionHandler executes one queued action against the backend.
type ActionHandler func(ctx context.Context, payload map[string]any) error

// Handlers maps action types to their handlers.
type Handlers map[domain.ActionType]ActionHandler

// Result summarises a process pass.
type Result struct {
	Success int
	Failed  int
}

type itemKey struct{}

func withItem(ctx context.Context, it domain.SyncQueueItem) context.Context {
	return context.WithValue(ctx, itemKey{}, it)
}

// ItemFromContext returns the queue item a handler is being invoked for.
func ItemFromContext(ctx context.Context) (domain.SyncQueueItem, bool) {
	it, ok := ctx.Value(itemKey{}).(domain.SyncQueueItem)
	return it, ok
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks a handler error as one that can never succeed. The item is
// failed immediately instead of consuming the remaining attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Process runs every item that is pending when the pass starts, in queue
// order. Success removes the item; failure returns it to pending with one
// more attempt recorded, or fails it permanently at the retry ceiling.
// Items with no registered handler fail without consuming an attempt.
// LastSyncAt is updated at the end of every pass.
//
// Store errors for one item do not stop the pass; they are joined into the
// returned error.
func (q *Queue) Process(ctx context.Context, handlers Handlers) (Result, error) {
	var res Result
	var errs []error

	sq, err := q.snapshot(ctx)
	if err != nil {
		return res, err
	}
	var pending []domain.SyncQueueItem
	for _, it := range sq.Items {
		if it.Status == domain.SyncStatusPending {
			pending = append(pending, it)
		}
	}
	q.log.Debug("Processing queue", "pending", len(pending))

	for _, it := range pending {
		handler, ok := handlers[it.Type]
		if !ok {
			failed, err := q.failUnhandled(ctx, it)
			if err != nil {
				errs = append(errs, err)
			}
			if failed {
				res.Failed++
				metrics.QueueProcessed.WithLabelValues(string(it.Type), "unhandled").Inc()
			}
			continue
		}

		claimed, err := q.claim(ctx, it.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if claimed == nil {
			continue // removed or taken by someone else since the snapshot
		}

		herr := invoke(withItem(ctx, *claimed), handler, claimed.Payload)
		if herr == nil {
			if err := q.Remove(ctx, claimed.ID); err != nil {
				errs = append(errs, err)
				continue
			}
			res.Success++
			metrics.QueueProcessed.WithLabelValues(string(claimed.Type), "success").Inc()
			q.log.Debug("Queued action synced", "item_id", claimed.ID, "type", claimed.Type)
			continue
		}

		terminal, err := q.recordFailure(ctx, *claimed, herr)
		if err != nil {
			errs = append(errs, err)
		}
		if terminal {
			res.Failed++
			metrics.QueueProcessed.WithLabelValues(string(claimed.Type), "failed").Inc()
		} else {
			metrics.QueueProcessed.WithLabelValues(string(claimed.Type), "retry").Inc()
		}
	}

	now := q.now().UnixMilli()
	if err := q.mutate(ctx, func(sq *domain.SyncQueue) bool {
		sq.LastSyncAt = &now
		return true
	}); err != nil {
		errs = append(errs, err)
	}

	q.log.Info("Queue processed", "success", res.Success, "failed", res.Failed)
	return res, errors.Join(errs...)
}

// claim moves a still-pending item to syncing and returns its current state.
func (q *Queue) claim(ctx context.Context, id string) (*domain.SyncQueueItem, error) {
	var claimed *domain.SyncQueueItem
	err := q.mutate(ctx, func(sq *domain.SyncQueue) bool {
		i := sq.IndexOf(id)
		if i < 0 || sq.Items[i].Status != domain.SyncStatusPending {
			return false
		}
		sq.Items[i].Status = domain.SyncStatusSyncing
		it := sq.Items[i]
		claimed = &it
		return true
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (q *Queue) failUnhandled(ctx context.Context, it domain.SyncQueueItem) (bool, error) {
	msg := fmt.Sprintf("no handler registered for action type %q", it.Type)
	failed := false
	err := q.mutate(ctx, func(sq *domain.SyncQueue) bool {
		i := sq.IndexOf(it.ID)
		if i < 0 || sq.Items[i].Status != domain.SyncStatusPending {
			return false
		}
		sq.Items[i].Status = domain.SyncStatusFailed
		sq.Items[i].ErrorMessage = msg
		failed = true
		return true
	})
	if failed {
		q.log.Warn("Queued action has no handler", "item_id", it.ID, "type", it.Type)
	}
	return failed, err
}

// recordFailure applies the retry ceiling and reports permanent failures.
func (q *Queue) recordFailure(ctx context.Context, it domain.SyncQueueItem, herr error) (bool, error) {
	retryCount := it.RetryCount + 1
	terminal := retryCount >= q.cfg.MaxRetries || IsPermanent(herr)

	status := domain.SyncStatusPending
	if terminal {
		status = domain.SyncStatusFailed
	}
	msg := herr.Error()

	if err := q.UpdateStatus(ctx, it.ID, domain.ItemUpdate{
		Status:       &status,
		RetryCount:   &retryCount,
		ErrorMessage: &msg,
	}); err != nil {
		return terminal, err
	}

	if !terminal {
		q.log.Warn("Queued action failed, will retry",
			"item_id", it.ID,
			"type", it.Type,
			"retry_count", retryCount,
			"error", herr,
		)
		return false, nil
	}

	q.log.Error("Queued action failed permanently",
		"item_id", it.ID,
		"type", it.Type,
		"retry_count", retryCount,
		"error", herr,
	)
	q.reportPermanent(ctx, it, retryCount, herr)
	return true, nil
}

func (q *Queue) reportPermanent(ctx context.Context, it domain.SyncQueueItem, retryCount int, herr error) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Warn("Crash reporter panicked", "panic", r)
		}
	}()
	err := q.reporter.ReportException(ctx,
		fmt.Errorf("queued %s failed permanently: %w", it.Type, herr),
		false,
		map[string]any{
			"itemId":     it.ID,
			"retryCount": retryCount,
			"createdAt":  it.CreatedAt,
		},
	)
	if err != nil {
		q.log.Warn("Failed to report permanent failure", "item_id", it.ID, "error", err)
	}
}

func invoke(ctx context.Context, h ActionHandler, payload map[string]any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h(ctx, payload)
}

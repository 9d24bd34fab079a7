package worker

import (
	"context"
	"log/slog"
	"time"
)

// FailedPurger removes failed queue items older than a cutoff.
type FailedPurger interface {
	PurgeFailedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Pruner deletes failed queue items based on retention policy.
type Pruner struct {
	retention time.Duration
	queue     FailedPurger
	now       func() time.Time
	log       *slog.Logger
}

// NewPruner creates a new Pruner worker. A zero retention disables it.
func NewPruner(retention time.Duration, queue FailedPurger) *Pruner {
	return &Pruner{
		retention: retention,
		queue:     queue,
		now:       time.Now,
		log:       slog.Default().With("component", "pruner"),
	}
}

// Start runs the pruner loop until ctx is done.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	// 10% of the retention period, between 1 minute and 1 hour
	interval := min(p.retention/10, 1*time.Hour)
	interval = max(interval, 1*time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial prune
	p.Prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Prune(ctx)
		}
	}
}

// Prune runs one retention pass.
func (p *Pruner) Prune(ctx context.Context) int {
	cutoff := p.now().Add(-p.retention)
	n, err := p.queue.PurgeFailedBefore(ctx, cutoff)
	if err != nil {
		p.log.Error("Failed to prune failed items", "error", err)
		return 0
	}
	if n > 0 {
		p.log.Info("Pruned failed items", "count", n, "older_than", cutoff)
	}
	return n
}

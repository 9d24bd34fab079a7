package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/resilience/internal/core/domain"
	"github.com/vietddude/resilience/internal/infra/network"
	"github.com/vietddude/resilience/internal/offline"
)

// QueueInspector is the read side of the offline queue.
type QueueInspector interface {
	Items(ctx context.Context) ([]domain.SyncQueueItem, error)
	LastSyncAt(ctx context.Context) (time.Time, error)
	Config() offline.Config
}

// RetryCounter reports live error-handler retry timers.
type RetryCounter interface {
	PendingRetries() int
}

// Pinger checks a storage connection.
type Pinger interface {
	Health(ctx context.Context) error
}

// Monitor aggregates health status from the queue, the error handler and the
// network monitor.
type Monitor struct {
	queue    QueueInspector
	retries  RetryCounter
	network  network.Monitor
	storage  Pinger
	minCheck time.Duration

	lastCheck  time.Time
	lastReport HealthReport
	mu         sync.Mutex
}

// NewMonitor creates a new health monitor. Reports are cached for minCheck.
func NewMonitor(queue QueueInspector, retries RetryCounter, net network.Monitor, minCheck time.Duration) *Monitor {
	return &Monitor{
		queue:    queue,
		retries:  retries,
		network:  net,
		minCheck: minCheck,
	}
}

// SetStorage registers the queue backend connection. A failed ping makes the
// system critical.
func (m *Monitor) SetStorage(p Pinger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storage = p
}

// CheckHealth builds a report, or returns the cached one if it is recent.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.lastCheck.IsZero() && time.Since(m.lastCheck) < m.minCheck {
		return m.lastReport
	}

	report := HealthReport{
		SystemStatus: StatusHealthy,
		Online:       !m.network.Status().IsOffline(),
		CheckedAt:    time.Now(),
	}
	if m.retries != nil {
		report.PendingRetries = m.retries.PendingRetries()
	}

	qh := QueueHealth{Capacity: m.queue.Config().MaxSize}
	items, err := m.queue.Items(ctx)
	if err != nil {
		qh.Error = err.Error()
	} else {
		sq := domain.SyncQueue{Items: items}
		qh.Size = len(items)
		qh.Pending = sq.CountByStatus(domain.SyncStatusPending)
		qh.Syncing = sq.CountByStatus(domain.SyncStatusSyncing)
		qh.Failed = sq.CountByStatus(domain.SyncStatusFailed)
	}
	if last, err := m.queue.LastSyncAt(ctx); err == nil && !last.IsZero() {
		qh.LastSyncAt = &last
	}
	report.Queue = qh

	if m.storage != nil {
		if err := m.storage.Health(ctx); err != nil {
			report.StorageError = err.Error()
		}
	}

	// Evaluate Status
	if qh.Error != "" || report.StorageError != "" || qh.Size >= qh.Capacity {
		report.SystemStatus = StatusCritical
	} else if qh.Failed > 0 || !report.Online {
		report.SystemStatus = StatusDegraded
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}

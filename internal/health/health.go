// Package health provides system health monitoring and status reporting.
package health

import "time"

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// QueueHealth describes the offline queue.
type QueueHealth struct {
	Size       int        `json:"size"`
	Capacity   int        `json:"capacity"`
	Pending    int        `json:"pending"`
	Syncing    int        `json:"syncing"`
	Failed     int        `json:"failed"`
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus   SystemStatus `json:"system_status"`
	Online         bool         `json:"online"`
	Queue          QueueHealth  `json:"queue"`
	StorageError   string       `json:"storage_error,omitempty"`
	PendingRetries int          `json:"pending_retries"`
	CheckedAt      time.Time    `json:"checked_at"`
}

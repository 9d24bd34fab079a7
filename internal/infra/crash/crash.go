package crash

import (
	"context"
	"log/slog"

	"github.com/vietddude/resilience/internal/core/domain"
	"github.com/vietddude/resilience/internal/metrics"
)

// Reporter is the crash-reporting collaborator. Implementations may perform
// network I/O; callers treat every failure as best-effort.
type Reporter interface {
	// ReportError records a classified error.
	ReportError(ctx context.Context, e domain.ClassifiedError) error

	// ReportException records a raw failure with extra metadata.
	ReportException(ctx context.Context, err error, fatal bool, extra map[string]any) error
}

// Level maps severity to the reporter's log level.
func Level(s domain.Severity) slog.Level {
	switch s {
	case domain.SeverityLow:
		return slog.LevelInfo
	case domain.SeverityMedium:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// LogReporter writes reports to a slog logger.
type LogReporter struct {
	log *slog.Logger
}

// NewLogReporter creates a reporter. A nil logger uses slog.Default().
func NewLogReporter(log *slog.Logger) *LogReporter {
	if log == nil {
		log = slog.Default()
	}
	return &LogReporter{log: log.With("component", "crash_reporter")}
}

func (r *LogReporter) ReportError(ctx context.Context, e domain.ClassifiedError) error {
	attrs := []any{
		"kind", e.Kind,
		"severity", e.Severity,
		"operation", e.Context.Operation,
		"origin", e.Context.Component,
		"retryable", e.Retryable,
		"retry_count", e.Context.RetryCount,
	}
	if e.RecoveryAction != domain.RecoveryNone {
		attrs = append(attrs, "recovery", e.RecoveryAction)
	}
	if e.Context.UserID != "" {
		attrs = append(attrs, "user_id", e.Context.UserID)
	}
	if e.Severity == domain.SeverityCritical {
		attrs = append(attrs, "fatal", true)
	}
	r.log.Log(ctx, Level(e.Severity), e.Message, attrs...)
	metrics.CrashReports.WithLabelValues("error", "ok").Inc()
	return nil
}

func (r *LogReporter) ReportException(ctx context.Context, err error, fatal bool, extra map[string]any) error {
	attrs := []any{"error", err, "fatal", fatal}
	for k, v := range extra {
		attrs = append(attrs, k, v)
	}
	r.log.Log(ctx, slog.LevelError, "Exception reported", attrs...)
	metrics.CrashReports.WithLabelValues("exception", "ok").Inc()
	return nil
}

// Nop discards every report.
type Nop struct{}

func (Nop) ReportError(context.Context, domain.ClassifiedError) error { return nil }

func (Nop) ReportException(context.Context, error, bool, map[string]any) error { return nil }

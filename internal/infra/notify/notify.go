package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/resilience/internal/core/domain"
)

// Notifier is the UI notification collaborator.
type Notifier interface {
	// Notify presents a classified error to the user.
	Notify(ctx context.Context, e domain.ClassifiedError)

	// Notice presents an informational message that is not an error, such as
	// "saved for later".
	Notice(ctx context.Context, n Notice)
}

// Notice is a non-error message for the user.
type Notice struct {
	Title    string
	Message  string
	Blocking bool
}

// Presentation is how an error should be shown.
type Presentation struct {
	Blocking bool
	// DismissAfter is the auto-dismiss delay for non-blocking presentations.
	DismissAfter time.Duration
}

// Dismiss delays for non-blocking presentations, by severity.
const (
	DismissLow    = 3 * time.Second
	DismissMedium = 5 * time.Second
	DismissHigh   = 7 * time.Second
)

// PresentationFor routes by severity: Critical and High block, Medium and Low
// auto-dismiss.
func PresentationFor(s domain.Severity) Presentation {
	switch s {
	case domain.SeverityCritical:
		return Presentation{Blocking: true}
	case domain.SeverityHigh:
		return Presentation{Blocking: true, DismissAfter: DismissHigh}
	case domain.SeverityMedium:
		return Presentation{DismissAfter: DismissMedium}
	default:
		return Presentation{DismissAfter: DismissLow}
	}
}

// LogNotifier logs what would be shown. Used by the daemon, which has no UI.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log.With("component", "notifier")}
}

func (n *LogNotifier) Notify(ctx context.Context, e domain.ClassifiedError) {
	p := PresentationFor(e.Severity)
	n.log.InfoContext(ctx, "Presenting error",
		"title", e.UserMessage.Title,
		"message", e.UserMessage.Message,
		"action", e.UserMessage.ActionLabel,
		"blocking", p.Blocking,
		"dismiss_after", p.DismissAfter,
	)
}

func (n *LogNotifier) Notice(ctx context.Context, msg Notice) {
	n.log.InfoContext(ctx, "Presenting notice",
		"title", msg.Title,
		"message", msg.Message,
		"blocking", msg.Blocking,
	)
}

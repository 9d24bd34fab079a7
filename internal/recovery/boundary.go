package recovery

import (
	"context"

	"github.com/vietddude/resilience/internal/classify"
	"github.com/vietddude/resilience/internal/core/domain"
	"github.com/vietddude/resilience/internal/metrics"
)

// BoundaryInfo describes where a rendering failure surfaced.
type BoundaryInfo struct {
	ComponentStack string
}

// BoundaryFunc receives failures raised by the rendering layer.
type BoundaryFunc func(err error, info BoundaryInfo)

// ErrorBoundary returns an entry point for rendering failures. It classifies
// and notifies only: nothing is sent to the crash reporter and no retry is
// scheduled.
func (h *Handler) ErrorBoundary(ectx domain.ErrorContext) BoundaryFunc {
	return func(err error, info BoundaryInfo) {
		c := ectx.Clone()
		if info.ComponentStack != "" {
			if c.Metadata == nil {
				c.Metadata = make(map[string]any, 1)
			}
			c.Metadata["componentStack"] = info.ComponentStack
		}

		ce := h.classifier.Classify(classify.FromError(err), c)
		metrics.ErrorsHandled.WithLabelValues(string(ce.Kind), string(ce.Severity), "boundary").Inc()
		h.notify(context.Background(), ce)
	}
}

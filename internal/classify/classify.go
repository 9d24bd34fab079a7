package classify

import (
	"fmt"
	"time"

	"github.com/vietddude/resilience/internal/core/domain"
)

const unknownMessage = "Unknown error occurred"

// Classifier turns raw failures into ClassifiedError values. It performs no
// I/O and never logs; the clock is the only input besides its arguments.
type Classifier struct {
	now func() time.Time
}

// New creates a classifier using the wall clock.
func New() *Classifier {
	return &Classifier{now: time.Now}
}

// NewWithClock creates a classifier that stamps timestamps from now.
func NewWithClock(now func() time.Time) *Classifier {
	return &Classifier{now: now}
}

var defaultClassifier = New()

// Classify classifies raw with the default classifier.
func Classify(raw Raw, ctx domain.ErrorContext) domain.ClassifiedError {
	return defaultClassifier.Classify(raw, ctx)
}

// Classify classifies raw. ctx is copied through verbatim except that a zero
// Timestamp is replaced by the current instant. It never panics.
func (c *Classifier) Classify(raw Raw, ctx domain.ErrorContext) domain.ClassifiedError {
	ctx = ctx.Clone()
	if ctx.Timestamp.IsZero() {
		ctx.Timestamp = c.now()
	}

	switch r := raw.(type) {
	case nil, Nil, *Nil:
		return build(outcome{
			kind:     domain.KindUnknown,
			severity: domain.SeverityLow,
		}, unknownMessage, ctx, nil)

	case Exception:
		return build(matchKeywords(r.Message), r.Message, ctx, originalOf(r.Err, r))

	case *Exception:
		if r == nil {
			return c.Classify(Nil{}, ctx)
		}
		return c.Classify(*r, ctx)

	case Text:
		return build(matchKeywords(string(r)), string(r), ctx, string(r))

	case BackendError:
		return classifyBackend(r, ctx)

	case *BackendError:
		if r == nil {
			return c.Classify(Nil{}, ctx)
		}
		return classifyBackend(*r, ctx)

	case Object:
		return build(outcomes[domain.KindUnknown], describe(r.Value), ctx, r.Value)

	default:
		return build(outcomes[domain.KindUnknown], describe(r), ctx, r)
	}
}

func classifyBackend(r BackendError, ctx domain.ErrorContext) domain.ClassifiedError {
	msg := r.Message
	if msg == "" {
		msg = fmt.Sprintf("backend error %s", r.Code)
	}
	if kind, ok := backendCodes[r.Code]; ok {
		return build(outcomes[kind], msg, ctx, originalOf(r.Err, r))
	}
	return build(outcomes[domain.KindUnknown], msg, ctx, originalOf(r.Err, r))
}

func build(o outcome, msg string, ctx domain.ErrorContext, original any) domain.ClassifiedError {
	return domain.ClassifiedError{
		Kind:           o.kind,
		Severity:       o.severity,
		Message:        msg,
		Context:        ctx,
		Retryable:      o.retryable,
		RecoveryAction: o.recovery,
		UserMessage:    domain.DefaultUserMessage(o.kind),
		Original:       original,
	}
}

func originalOf(err error, fallback any) any {
	if err != nil {
		return err
	}
	return fallback
}

func describe(v any) string {
	if v == nil {
		return unknownMessage
	}
	return fmt.Sprintf("unrecognized error value of type %T", v)
}

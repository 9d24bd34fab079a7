package recovery

import (
	"math"
	"time"

	"github.com/vietddude/resilience/internal/core/domain"
)

// RetryStrategy defines how automatic retries are paced and bounded.
type RetryStrategy interface {
	// GetDelay returns the delay before the retry that follows attempt
	// (0-indexed retry count).
	GetDelay(attempt int) time.Duration

	// ShouldRetry reports whether e may be retried automatically.
	ShouldRetry(e domain.ClassifiedError) bool
}

// ExponentialBackoff implements InitialDelay * 2^attempt capped at MaxDelay.
type ExponentialBackoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
}

// DefaultBackoff returns 1s, 2s, 4s ... capped at 30s, three attempts.
func DefaultBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		MaxAttempts:  3,
	}
}

// GetDelay calculates delay: InitialDelay * 2^attempt
func (s *ExponentialBackoff) GetDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := float64(s.InitialDelay) * math.Pow(2, float64(attempt))
	if delay > float64(s.MaxDelay) {
		return s.MaxDelay
	}
	return time.Duration(delay)
}

// ShouldRetry is true iff e is retryable, not critical, and below MaxAttempts.
func (s *ExponentialBackoff) ShouldRetry(e domain.ClassifiedError) bool {
	if !e.Retryable || e.Severity == domain.SeverityCritical {
		return false
	}
	return e.Context.RetryCount < s.MaxAttempts
}

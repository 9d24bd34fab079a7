package domain

import (
	"errors"
	"fmt"
	"maps"
	"time"
)

// ErrorKind is the top-level category a failure is classified into.
type ErrorKind string

const (
	KindNetwork    ErrorKind = "network"
	KindAuth       ErrorKind = "auth"
	KindQuota      ErrorKind = "quota"
	KindValidation ErrorKind = "validation"
	KindPermission ErrorKind = "permission"
	KindStorage    ErrorKind = "storage"
	KindProcessing ErrorKind = "processing"
	KindUnknown    ErrorKind = "unknown"
)

// Severity governs UI treatment and auto-retry eligibility.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// RecoveryAction is the suggested next step for the user. Empty means none.
type RecoveryAction string

const (
	RecoveryNone    RecoveryAction = ""
	RecoveryRetry   RecoveryAction = "retry"
	RecoveryLogin   RecoveryAction = "login"
	RecoveryUpgrade RecoveryAction = "upgrade"
)

// ErrorContext describes where a failure happened.
type ErrorContext struct {
	Operation  string         `json:"operation"`
	Component  string         `json:"component"`
	UserID     string         `json:"userId,omitempty"`
	SessionID  string         `json:"sessionId,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	RetryCount int            `json:"retryCount,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Clone returns a copy that shares nothing mutable with c.
func (c ErrorContext) Clone() ErrorContext {
	out := c
	if c.Metadata != nil {
		out.Metadata = maps.Clone(c.Metadata)
	}
	return out
}

// UserMessage is the user-facing text for an error.
type UserMessage struct {
	Title       string         `json:"title"`
	Message     string         `json:"message"`
	ActionLabel string         `json:"actionLabel,omitempty"`
	ActionType  RecoveryAction `json:"actionType,omitempty"`
}

// ClassifiedError is the taxonomy-typed result of classifying a raw failure.
//
// Values are treated as immutable: the With* helpers return modified copies
// and never touch the receiver.
type ClassifiedError struct {
	Kind           ErrorKind      `json:"kind"`
	Severity       Severity       `json:"severity"`
	Message        string         `json:"message"`
	Context        ErrorContext   `json:"context"`
	Retryable      bool           `json:"retryable"`
	RecoveryAction RecoveryAction `json:"recoveryAction,omitempty"`
	UserMessage    UserMessage    `json:"userMessage"`

	// Original is the raw cause, kept for diagnostics only.
	Original any `json:"-"`
}

// Error implements the error interface.
func (e ClassifiedError) Error() string {
	return fmt.Sprintf("[%s:%s] %s", e.Kind, e.Severity, e.Message)
}

// Unwrap exposes the original cause when it is itself an error.
func (e ClassifiedError) Unwrap() error {
	if err, ok := e.Original.(error); ok {
		return err
	}
	return nil
}

// WithRetry returns the error for the next attempt: Context.RetryCount is
// incremented by one, every other field is copied.
func (e ClassifiedError) WithRetry() ClassifiedError {
	next := e
	next.Context = e.Context.Clone()
	next.Context.RetryCount = e.Context.RetryCount + 1
	return next
}

// WithUserMessage returns a copy carrying a caller-supplied user message.
func (e ClassifiedError) WithUserMessage(m UserMessage) ClassifiedError {
	next := e
	next.Context = e.Context.Clone()
	next.UserMessage = m
	return next
}

// AsClassified reports whether err (or anything it wraps) is a ClassifiedError.
func AsClassified(err error) (ClassifiedError, bool) {
	var ce ClassifiedError
	if errors.As(err, &ce) {
		return ce, true
	}
	return ClassifiedError{}, false
}

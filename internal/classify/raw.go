package classify

import "fmt"

// Raw is a raw failure in one of the recognised shapes. The set is closed:
// Nil, Exception, Text, BackendError and Object.
type Raw interface {
	isRaw()
}

// Nil is the absence of an error value.
type Nil struct{}

// Exception is a structured error with a name and a message.
type Exception struct {
	Name    string
	Message string
	Err     error
}

// Text is a bare error string.
type Text string

// BackendError is an error returned by the backend carrying a provider code
// (SQLSTATE, PostgREST, auth provider or gRPC code).
type BackendError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
	Err     error  `json:"-"`
}

// Object is any other value.
type Object struct {
	Value any
}

func (Nil) isRaw()          {}
func (Exception) isRaw()    {}
func (Text) isRaw()         {}
func (BackendError) isRaw() {}
func (Object) isRaw()       {}

// Error lets callers return a *BackendError directly.
func (e *BackendError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s (%s): %s", e.Message, e.Code, e.Details)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

// Unwrap returns the transport error the backend error was decoded from.
func (e *BackendError) Unwrap() error {
	return e.Err
}

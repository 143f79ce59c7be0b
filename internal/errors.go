package internal

import "fmt"

// ConnectionError represents errors on the event channel
type ConnectionError struct {
	Directory string
	Op        string // "connect", "read", "close"
	Err       error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error: %s %s: %v", e.Op, e.Directory, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// EventError represents errors parsing or routing a wire event
type EventError struct {
	Type string // event type, or "unknown" when the frame did not parse
	Err  error
}

func (e *EventError) Error() string {
	return fmt.Sprintf("event error [%s]: %v", e.Type, e.Err)
}

func (e *EventError) Unwrap() error {
	return e.Err
}

// RequestError represents errors from the backend request surface
type RequestError struct {
	Method string
	Path   string
	Status int // HTTP status, 0 when the request never completed
	Err    error
}

func (e *RequestError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("request error: %s %s: status %d: %v", e.Method, e.Path, e.Status, e.Err)
	}
	return fmt.Sprintf("request error: %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// FallbackError represents a failed pull-based reconciliation fetch
type FallbackError struct {
	SessionID string
	MessageID string
	Err       error
}

func (e *FallbackError) Error() string {
	return fmt.Sprintf("fallback error [%s/%s]: %v", e.SessionID, e.MessageID, e.Err)
}

func (e *FallbackError) Unwrap() error {
	return e.Err
}

// RestoreError represents a failure restoring persisted project/session state
type RestoreError struct {
	Kind string // "project" or "session"
	ID   string
	Err  error
}

func (e *RestoreError) Error() string {
	return fmt.Sprintf("restore error [%s %s]: %v", e.Kind, e.ID, e.Err)
}

func (e *RestoreError) Unwrap() error {
	return e.Err
}

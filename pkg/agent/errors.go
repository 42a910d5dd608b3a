package agent

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned by Ask when the connection is not Ready.
// Callers are expected to retry at their own pace; Ask does not queue.
var ErrNotConnected = errors.New("agent: not connected")

// ErrTimeout is returned by Ask when no response arrives within the
// configured ask timeout.
var ErrTimeout = errors.New("agent: timed out waiting for response")

// ServiceError is an error event reported by the agent service for a
// specific request.
type ServiceError struct {
	TaskID  string
	Message string
}

func (e *ServiceError) Error() string {
	if e.TaskID != "" {
		return fmt.Sprintf("agent: service error for task %s: %s", e.TaskID, e.Message)
	}
	return fmt.Sprintf("agent: service error: %s", e.Message)
}

// TransportError indicates the underlying connection failed. Every request
// pending at the moment of failure is resolved with the same TransportError.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("agent: transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

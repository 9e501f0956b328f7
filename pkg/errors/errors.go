package errors

import (
	"errors"
	"fmt"
)

// Common error types
var (
	// Session errors
	ErrAborted          = errors.New("aborted: unmanaged trojan-go process left running")
	ErrNoManagedProcess = errors.New("no managed trojan-go process")
	ErrSessionRunning   = errors.New("a session is running")
	ErrBinaryNotFound   = errors.New("trojan-go binary not found")
	ErrStartFailed      = errors.New("failed to start trojan-go")
	ErrProcessNotFound  = errors.New("process not found")

	// Node errors
	ErrNodeNotFound    = errors.New("node not found")
	ErrNodeExists      = errors.New("node with the same name or address already exists")
	ErrNodeIncomplete  = errors.New("node is incomplete")
	ErrIndexOutOfRange = errors.New("node index out of range")

	// Platform errors
	ErrUnsupportedPlatform = errors.New("platform not supported")
	ErrUnsupportedDesktop  = errors.New("desktop environment not supported")

	// Probe errors
	ErrProbeFailed = errors.New("connectivity probe failed")

	// Subscription errors
	ErrSubscriptionFetchFailed = errors.New("failed to fetch subscription")
	ErrSubscriptionEmpty       = errors.New("subscription has no trojan links")
	ErrInvalidURI              = errors.New("invalid trojan URI")
)

// Conflict kinds carried by ConflictError.
const (
	ConflictForeign = "foreign"
	ConflictInvalid = "invalid"
)

// ConflictError is returned when an unmanaged trojan-go process blocks a
// transition. It unwraps to ErrAborted when the user refused to terminate it.
type ConflictError struct {
	Kind string
	PID  int
	Err  error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s trojan-go process (PID: %d): %v", e.Kind, e.PID, e.Err)
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

// TransitionError reports which step of a session transition failed.
// Steps that completed before the failure are not rolled back.
type TransitionError struct {
	Op   string
	Step string
	Err  error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Step, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

// NodeError represents a node-related error
type NodeError struct {
	Index int
	Name  string
	Err   error
}

func (e *NodeError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("node '%s' (index: %d): %v", e.Name, e.Index, e.Err)
	}
	return fmt.Sprintf("node (index: %d): %v", e.Index, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

// NetworkError represents a network-related error
type NetworkError struct {
	Address string
	Port    int
	Err     error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error (%s:%d): %v", e.Address, e.Port, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// SubscriptionError represents a failure to read a subscription source
type SubscriptionError struct {
	Source string
	Err    error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("subscription %s: %v", e.Source, e.Err)
}

func (e *SubscriptionError) Unwrap() error {
	return e.Err
}

// Package errors provides centralized error definitions and error handling utilities
// for arbiter. It defines the arbitration error taxonomy, semantic error types,
// error constructors with context wrapping, and error classification helpers.
//
// # Error Types
//
// Domain-specific errors represent failures in one subsystem:
//   - ArbitrationError: a negotiation with a peer or with the host application
//     did not produce the requested access (denied, failed, or unanswered)
//   - RegistryError: the kernel device registry could not be enumerated or watched
//   - BusError: the host-local message bus could not deliver or receive messages
//
// Semantic errors represent common error conditions:
//   - ValidationError: invalid input, configuration, or wire message
//   - TimeoutError: an operation did not complete in time
//
// # Usage
//
//	err := errors.NewArbitrationError(200, resource.AccessBlocking, resource.ResultDeny)
//	if errors.Is(err, errors.ErrOperationDenied) { ... }
//
//	var regErr *errors.RegistryError
//	if errors.As(err, &regErr) { ... }
//
// # Error Classification
//
// Errors can be classified by severity and behavior:
//   - Retryable: a later attempt may succeed (denials and timeouts are retryable
//     on the requester's own initiative, never automatically)
//   - UserFacing: errors safe to display to users (vs internal errors)
//   - Severity: Debug, Info, Warning, Error, Critical
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Iron-Ham/arbiter/internal/resource"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Arbitration sentinel errors
var (
	// ErrOperationDenied indicates that a host delegate refused an access change.
	ErrOperationDenied = New("operation denied")
	// ErrOperationFailed indicates that a host delegate attempted an access change and failed.
	ErrOperationFailed = New("operation failed")
	// ErrPeerUnresponsive indicates that no ACCESS_RESPONSE arrived from a peer.
	ErrPeerUnresponsive = New("peer unresponsive")
	// ErrPeerGone indicates that a peer terminated while a negotiation was pending.
	ErrPeerGone = New("peer terminated")
	// ErrDelegateTimeout indicates that the host delegate never completed a command.
	ErrDelegateTimeout = New("delegate did not complete")
	// ErrInactive indicates that the mediator is not active.
	ErrInactive = New("mediator is not active")
)

// Infrastructure sentinel errors
var (
	// ErrRegistry indicates that the kernel device registry could not be used.
	ErrRegistry = New("device registry unavailable")
	// ErrBus indicates a message bus failure.
	ErrBus = New("message bus failure")
	// ErrInvalidMessage indicates a malformed or unsupported wire message.
	ErrInvalidMessage = New("invalid message")
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// ArbiterError is the base interface for all arbiter errors.
type ArbiterError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if a later attempt may succeed.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *baseError) Unwrap() error {
	return e.cause
}

func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

func (e *baseError) Severity() Severity { return e.severity }
func (e *baseError) IsRetryable() bool  { return e.retryable }
func (e *baseError) IsUserFacing() bool { return e.userFacing }

// formatPrefix renders "kind [k=v, ...]" for domain errors.
func formatPrefix(kind string, parts []string) string {
	if len(parts) == 0 {
		return kind
	}
	return fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// ArbitrationError reports a negotiation that did not produce the requested
// access. Result distinguishes a denial from a failure; a timed-out or
// vanished peer is carried as the cause.
//
// Example:
//
//	err := errors.NewArbitrationError(200, resource.AccessBlocking, resource.ResultDeny)
//	fmt.Println(err) // "arbitration error [peer=200, access=blocking]: DENY: operation denied"
type ArbitrationError struct {
	baseError
	PeerPID int
	Access  resource.Access
	Result  resource.Result
}

// NewArbitrationError creates an ArbitrationError for a Deny or Error result.
func NewArbitrationError(peerPID int, access resource.Access, result resource.Result) *ArbitrationError {
	cause := ErrOperationFailed
	if result == resource.ResultDeny {
		cause = ErrOperationDenied
	}
	return &ArbitrationError{
		baseError: baseError{
			message:    result.String(),
			cause:      cause,
			severity:   SeverityInfo,
			retryable:  true,
			userFacing: true,
		},
		PeerPID: peerPID,
		Access:  access,
		Result:  result,
	}
}

// NewUnresponsiveError creates an ArbitrationError for a peer that never
// answered an ACCESS_REQUEST within timeout.
func NewUnresponsiveError(peerPID int, access resource.Access, timeout time.Duration) *ArbitrationError {
	return &ArbitrationError{
		baseError: baseError{
			message:    fmt.Sprintf("no response within %s", timeout),
			cause:      ErrPeerUnresponsive,
			severity:   SeverityWarning,
			retryable:  true,
			userFacing: true,
		},
		PeerPID: peerPID,
		Access:  access,
		Result:  resource.ResultError,
	}
}

// NewPeerGoneError creates an ArbitrationError for a peer that terminated
// while a request to it was pending. It is treated as a denial.
func NewPeerGoneError(peerPID int, access resource.Access) *ArbitrationError {
	return &ArbitrationError{
		baseError: baseError{
			message:    "peer disappeared",
			cause:      Join(ErrPeerGone, ErrOperationDenied),
			severity:   SeverityInfo,
			retryable:  true,
			userFacing: true,
		},
		PeerPID: peerPID,
		Access:  access,
		Result:  resource.ResultDeny,
	}
}

// NewDelegateTimeoutError creates an ArbitrationError for a command the
// host delegate never completed. The cause is a TimeoutError.
func NewDelegateTimeoutError(access resource.Access, timeout time.Duration) *ArbitrationError {
	return &ArbitrationError{
		baseError: baseError{
			message:    resource.ResultError.String(),
			cause:      Join(NewTimeoutError("delegate command", timeout).WithCause(ErrDelegateTimeout), ErrOperationFailed),
			severity:   SeverityWarning,
			retryable:  true,
			userFacing: true,
		},
		Access: access,
		Result: resource.ResultError,
	}
}

// Error returns the formatted error message.
func (e *ArbitrationError) Error() string {
	var parts []string
	if e.PeerPID != 0 {
		parts = append(parts, fmt.Sprintf("peer=%d", e.PeerPID))
	}
	parts = append(parts, fmt.Sprintf("access=%s", e.Access))
	return fmt.Sprintf("%s: %s", formatPrefix("arbitration error", parts), e.baseError.Error())
}

// Is checks if this error matches the target.
func (e *ArbitrationError) Is(target error) bool {
	if _, ok := target.(*ArbitrationError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// RegistryError reports a failure to enumerate or watch the kernel device
// registry. It is fatal to the observer, never to the engine.
//
// Example:
//
//	err := errors.NewRegistryError("enumerate devices", cause).WithDeviceClass("hidraw")
type RegistryError struct {
	baseError
	Operation   string
	DeviceClass string
}

// NewRegistryError creates a RegistryError.
func NewRegistryError(operation string, cause error) *RegistryError {
	return &RegistryError{
		baseError: baseError{
			message:    operation,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
		Operation: operation,
	}
}

// WithDeviceClass adds the configured device class to the error context.
func (e *RegistryError) WithDeviceClass(class string) *RegistryError {
	e.DeviceClass = class
	return e
}

// Error returns the formatted error message.
func (e *RegistryError) Error() string {
	var parts []string
	if e.DeviceClass != "" {
		parts = append(parts, fmt.Sprintf("class=%s", e.DeviceClass))
	}
	return fmt.Sprintf("%s: %s", formatPrefix("registry error", parts), e.baseError.Error())
}

// Is checks if this error matches the target.
func (e *RegistryError) Is(target error) bool {
	if _, ok := target.(*RegistryError); ok {
		return true
	}
	if target == ErrRegistry {
		return true
	}
	return e.baseError.Is(target)
}

// BusError reports a failure of the host-local message bus.
//
// Example:
//
//	err := errors.NewBusError("append", cause).WithResource("com.example.remote")
type BusError struct {
	baseError
	Operation  string
	ResourceID string
}

// NewBusError creates a BusError.
func NewBusError(operation string, cause error) *BusError {
	return &BusError{
		baseError: baseError{
			message:    operation,
			cause:      cause,
			severity:   SeverityWarning,
			retryable:  true,
			userFacing: false,
		},
		Operation: operation,
	}
}

// WithResource adds the resource identifier to the error context.
func (e *BusError) WithResource(id string) *BusError {
	e.ResourceID = id
	return e
}

// Error returns the formatted error message.
func (e *BusError) Error() string {
	var parts []string
	if e.ResourceID != "" {
		parts = append(parts, fmt.Sprintf("resource=%s", e.ResourceID))
	}
	return fmt.Sprintf("%s: %s", formatPrefix("bus error", parts), e.baseError.Error())
}

// Is checks if this error matches the target.
func (e *BusError) Is(target error) bool {
	if _, ok := target.(*BusError); ok {
		return true
	}
	if target == ErrBus {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// ValidationError represents invalid input, configuration, or wire data.
//
// Example:
//
//	err := errors.NewValidationError("must be positive").WithField("senderPID").WithValue(-1)
//	fmt.Println(err) // "validation error: senderPID: must be positive (got: -1)"
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithField sets the field that failed validation.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue sets the invalid value.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("validation error: ")
	if e.Field != "" {
		sb.WriteString(e.Field)
		sb.WriteString(": ")
	}
	sb.WriteString(e.message)
	if e.Value != nil {
		fmt.Fprintf(&sb, " (got: %v)", e.Value)
	}
	if e.cause != nil {
		fmt.Fprintf(&sb, ": %v", e.cause)
	}
	return sb.String()
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if target == ErrInvalidInput {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError represents an operation that timed out.
//
// Example:
//
//	err := errors.NewTimeoutError("delegate command", 30*time.Second)
//	fmt.Println(err) // "timeout error: delegate command (timeout: 30s)"
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:    operation,
			severity:   SeverityWarning,
			retryable:  true,
			userFacing: true,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is checks if this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if target == ErrTimeout {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a condition that a later
// attempt may overcome.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var arbErr ArbiterError
	if As(err, &arbErr) {
		return arbErr.IsRetryable()
	}
	return Is(err, ErrTimeout)
}

// IsUserFacing returns true if the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	var arbErr ArbiterError
	if As(err, &arbErr) {
		return arbErr.IsUserFacing()
	}
	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement ArbiterError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}
	var arbErr ArbiterError
	if As(err, &arbErr) {
		return arbErr.Severity()
	}
	return SeverityError
}

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Package errors provides centralized error definitions and error handling
// utilities for roundtable. It defines sentinel errors, domain error types
// with context builders, semantic error types, and classification helpers.
//
// # Error Types
//
// Domain-specific errors represent errors from specific subsystems:
//   - SessionError: errors related to game session lifecycle and lookup
//   - TransitionError: invalid phase transitions or turn operations
//   - DispatchError: failures of participant tasks and the worker pool
//
// Semantic errors represent common error conditions:
//   - NotFoundError, AlreadyExistsError, ValidationError, TimeoutError
//
// Quota exhaustion is deliberately not an error: the quota ledger reports it
// as a boolean.
//
// # Usage
//
//	err := errors.NewTransitionError("cannot advance turn", errors.ErrNotStatementPhase).
//	    WithPhases("ANSWER", "").WithRound(1)
//
//	if errors.Is(err, errors.ErrNotStatementPhase) { ... }
//
//	var te *errors.TransitionError
//	if errors.As(err, &te) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
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

// Session-related sentinel errors
var (
	// ErrSessionNotFound indicates that no session is registered for a game.
	ErrSessionNotFound = New("session not found")
	// ErrSessionExists indicates that a session is already registered for a game.
	ErrSessionExists = New("session already exists")
	// ErrSessionNotStarted indicates an operation on a session before StartSession.
	ErrSessionNotStarted = New("session not started")
	// ErrSessionAlreadyStarted indicates StartSession was called twice.
	ErrSessionAlreadyStarted = New("session already started")
	// ErrSessionEnded indicates the session reached its terminal state.
	ErrSessionEnded = New("session has ended")
)

// Transition-related sentinel errors
var (
	// ErrInvalidTransition indicates a phase change that the state machine forbids.
	ErrInvalidTransition = New("invalid phase transition")
	// ErrStaleTransition indicates a transition to the current or an earlier
	// phase. Callers racing on the same transition treat it as a no-op.
	ErrStaleTransition = New("stale phase transition")
	// ErrNotStatementPhase indicates a turn operation outside STATEMENT.
	ErrNotStatementPhase = New("not in statement phase")
	// ErrRoundAlreadyAdvanced indicates a second attempt to start round 2.
	ErrRoundAlreadyAdvanced = New("round already advanced")
	// ErrNotInitialized indicates use of the state machine before Initialize.
	ErrNotInitialized = New("state machine not initialized")
)

// Dispatch-related sentinel errors
var (
	// ErrPoolClosed indicates a submission to a closed worker pool.
	ErrPoolClosed = New("worker pool closed")
	// ErrQueueFull indicates the bounded work queue rejected a submission.
	ErrQueueFull = New("work queue full")
	// ErrTaskFailed indicates that a participant task returned an error.
	ErrTaskFailed = New("task failed")
	// ErrTaskPanicked indicates that a participant task panicked.
	ErrTaskPanicked = New("task panicked")
)

// Invitation-related sentinel errors
var (
	// ErrInvitationClosed indicates a private chat request outside the
	// phases in which invitations are honoured.
	ErrInvitationClosed = New("private chat invitations are closed")
	// ErrSelfInvitation indicates a participant tried to invite themselves.
	ErrSelfInvitation = New("participant cannot invite themselves")
	// ErrUnknownParticipant indicates an ID that is not part of the session.
	ErrUnknownParticipant = New("unknown participant")
	// ErrQuotaNotConsumed indicates an invitation record without a matching
	// quota consumption.
	ErrQuotaNotConsumed = New("invitation recorded without consuming quota")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// RoundtableError is the base interface for all roundtable errors.
type RoundtableError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
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

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

func formatPrefix(kind string, parts []string) string {
	if len(parts) == 0 {
		return kind
	}
	return fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// SessionError represents errors related to game session management.
//
// Example:
//
//	err := errors.NewSessionError("lookup failed", errors.ErrSessionNotFound).WithGameID("g-1")
//	fmt.Println(err) // "session error [game=g-1]: lookup failed: session not found"
type SessionError struct {
	baseError
	GameID string
}

// NewSessionError creates a new SessionError.
func NewSessionError(message string, cause error) *SessionError {
	return &SessionError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			userFacing: true,
		},
	}
}

// WithGameID adds a game ID to the error context.
func (e *SessionError) WithGameID(id string) *SessionError {
	e.GameID = id
	return e
}

// WithSeverity sets the error severity.
func (e *SessionError) WithSeverity(s Severity) *SessionError {
	e.severity = s
	return e
}

// Error returns the formatted error message.
func (e *SessionError) Error() string {
	var parts []string
	if e.GameID != "" {
		parts = append(parts, fmt.Sprintf("game=%s", e.GameID))
	}
	prefix := formatPrefix("session error", parts)
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *SessionError) Is(target error) bool {
	if _, ok := target.(*SessionError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// TransitionError represents a rejected phase transition or turn operation.
// It is fatal only to the operation that produced it.
//
// Example:
//
//	err := errors.NewTransitionError("round 2 already started", errors.ErrRoundAlreadyAdvanced).
//	    WithPhases("STATEMENT", "STATEMENT").WithRound(2)
type TransitionError struct {
	baseError
	From  string
	To    string
	Round int
}

// NewTransitionError creates a new TransitionError.
func NewTransitionError(message string, cause error) *TransitionError {
	return &TransitionError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityWarning,
			userFacing: false,
		},
	}
}

// WithPhases records the current and requested phase.
func (e *TransitionError) WithPhases(from, to string) *TransitionError {
	e.From = from
	e.To = to
	return e
}

// WithRound records the round in which the transition was attempted.
func (e *TransitionError) WithRound(round int) *TransitionError {
	e.Round = round
	return e
}

// Error returns the formatted error message.
func (e *TransitionError) Error() string {
	var parts []string
	if e.From != "" {
		parts = append(parts, fmt.Sprintf("from=%s", e.From))
	}
	if e.To != "" {
		parts = append(parts, fmt.Sprintf("to=%s", e.To))
	}
	if e.Round > 0 {
		parts = append(parts, fmt.Sprintf("round=%d", e.Round))
	}
	prefix := formatPrefix("transition error", parts)
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *TransitionError) Is(target error) bool {
	if _, ok := target.(*TransitionError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// DispatchError represents a failed participant task or pool submission.
//
// Example:
//
//	err := errors.NewDispatchError("statement task failed", providerErr).
//	    WithParticipant("alice").WithPhase("STATEMENT")
type DispatchError struct {
	baseError
	ParticipantID string
	Phase         string
	TaskName      string
}

// NewDispatchError creates a new DispatchError.
func NewDispatchError(message string, cause error) *DispatchError {
	return &DispatchError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			userFacing: false,
		},
	}
}

// WithParticipant adds a participant ID to the error context.
func (e *DispatchError) WithParticipant(id string) *DispatchError {
	e.ParticipantID = id
	return e
}

// WithPhase adds a phase name to the error context.
func (e *DispatchError) WithPhase(phase string) *DispatchError {
	e.Phase = phase
	return e
}

// WithTaskName adds the task name to the error context.
func (e *DispatchError) WithTaskName(name string) *DispatchError {
	e.TaskName = name
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *DispatchError) WithRetryable(r bool) *DispatchError {
	e.retryable = r
	return e
}

// WithSeverity sets the error severity.
func (e *DispatchError) WithSeverity(s Severity) *DispatchError {
	e.severity = s
	return e
}

// Error returns the formatted error message.
func (e *DispatchError) Error() string {
	var parts []string
	if e.TaskName != "" {
		parts = append(parts, fmt.Sprintf("task=%s", e.TaskName))
	}
	if e.ParticipantID != "" {
		parts = append(parts, fmt.Sprintf("participant=%s", e.ParticipantID))
	}
	if e.Phase != "" {
		parts = append(parts, fmt.Sprintf("phase=%s", e.Phase))
	}
	prefix := formatPrefix("dispatch error", parts)
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *DispatchError) Is(target error) bool {
	if _, ok := target.(*DispatchError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
//
// Example:
//
//	err := errors.NewNotFoundError("participant", "zoe")
//	fmt.Println(err) // "participant 'zoe' not found"
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			severity:   SeverityWarning,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s '%s' not found: %v", e.ResourceType, e.ResourceID, e.cause)
	}
	return fmt.Sprintf("%s '%s' not found", e.ResourceType, e.ResourceID)
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// AlreadyExistsError represents a resource that already exists.
type AlreadyExistsError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewAlreadyExistsError creates a new AlreadyExistsError.
func NewAlreadyExistsError(resourceType, resourceID string) *AlreadyExistsError {
	return &AlreadyExistsError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' already exists", resourceType, resourceID),
			severity:   SeverityWarning,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *AlreadyExistsError) WithCause(cause error) *AlreadyExistsError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *AlreadyExistsError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s '%s' already exists: %v", e.ResourceType, e.ResourceID, e.cause)
	}
	return fmt.Sprintf("%s '%s' already exists", e.ResourceType, e.ResourceID)
}

// Is checks if this error matches the target.
func (e *AlreadyExistsError) Is(target error) bool {
	if _, ok := target.(*AlreadyExistsError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("participant list cannot be empty").WithField("participants")
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
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
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
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}
	prefix := formatPrefix("validation error", parts)
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError represents an operation that timed out.
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
	if errors.Is(target, ErrTimeout) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition.
// Nothing in the orchestration core retries on its own; this is for callers
// at the collaborator boundary.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var rtErr RoundtableError
	if As(err, &rtErr) {
		return rtErr.IsRetryable()
	}

	return Is(err, ErrTimeout)
}

// IsUserFacing returns true if the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var rtErr RoundtableError
	if As(err, &rtErr) {
		return rtErr.IsUserFacing()
	}
	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement RoundtableError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var rtErr RoundtableError
	if As(err, &rtErr) {
		return rtErr.Severity()
	}
	return SeverityError
}

// IsStale reports whether err is a transition that lost a race against an
// earlier trigger. Such errors are expected and should not be logged as
// failures.
func IsStale(err error) bool {
	return Is(err, ErrStaleTransition)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

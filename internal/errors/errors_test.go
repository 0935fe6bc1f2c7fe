package errors

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestSeverity_String(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityDebug, "debug"},
		{SeverityInfo, "info"},
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
		{SeverityCritical, "critical"},
		{Severity(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.severity.String(); got != tt.want {
				t.Errorf("Severity.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

// -----------------------------------------------------------------------------
// SessionError Tests
// -----------------------------------------------------------------------------

func TestNewSessionError(t *testing.T) {
	err := NewSessionError("lookup failed", ErrSessionNotFound)

	if err.Severity() != SeverityError {
		t.Errorf("Severity() = %v, want %v", err.Severity(), SeverityError)
	}
	if err.IsRetryable() {
		t.Error("IsRetryable() = true, want false")
	}
	if !err.IsUserFacing() {
		t.Error("IsUserFacing() = false, want true")
	}
}

func TestSessionError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *SessionError
		want string
	}{
		{
			name: "basic error",
			err:  NewSessionError("boom", nil),
			want: "session error: boom",
		},
		{
			name: "with cause",
			err:  NewSessionError("lookup failed", ErrSessionNotFound),
			want: "session error: lookup failed: session not found",
		},
		{
			name: "with game ID and cause",
			err:  NewSessionError("create failed", ErrSessionExists).WithGameID("g-1"),
			want: "session error [game=g-1]: create failed: session already exists",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSessionError_Is(t *testing.T) {
	err := NewSessionError("test", ErrSessionEnded).WithGameID("g")

	if !Is(err, &SessionError{}) {
		t.Error("Is(SessionError{}) = false, want true")
	}
	if !Is(err, ErrSessionEnded) {
		t.Error("Is(ErrSessionEnded) = false, want true")
	}
	if Is(err, ErrSessionNotFound) {
		t.Error("Is(ErrSessionNotFound) = true, want false")
	}
	if Unwrap(err) != ErrSessionEnded {
		t.Errorf("Unwrap() = %v, want %v", Unwrap(err), ErrSessionEnded)
	}
}

// -----------------------------------------------------------------------------
// TransitionError Tests
// -----------------------------------------------------------------------------

func TestTransitionError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *TransitionError
		want string
	}{
		{
			name: "basic error",
			err:  NewTransitionError("rejected", nil),
			want: "transition error: rejected",
		},
		{
			name: "with phases",
			err:  NewTransitionError("rejected", ErrStaleTransition).WithPhases("ANSWER", "STATEMENT"),
			want: "transition error [from=ANSWER, to=STATEMENT]: rejected: stale phase transition",
		},
		{
			name: "with round only",
			err:  NewTransitionError("cannot advance", ErrNotStatementPhase).WithRound(2),
			want: "transition error [round=2]: cannot advance: not in statement phase",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTransitionError_Is(t *testing.T) {
	err := NewTransitionError("again", ErrRoundAlreadyAdvanced).WithRound(2)

	if !Is(err, &TransitionError{}) {
		t.Error("Is(TransitionError{}) = false, want true")
	}
	if !Is(err, ErrRoundAlreadyAdvanced) {
		t.Error("Is(ErrRoundAlreadyAdvanced) = false, want true")
	}
	if Is(err, &SessionError{}) {
		t.Error("Is(SessionError{}) = true, want false")
	}
	if err.Severity() != SeverityWarning {
		t.Errorf("Severity() = %v, want %v", err.Severity(), SeverityWarning)
	}
}

func TestIsStale(t *testing.T) {
	stale := NewTransitionError("late", ErrStaleTransition).WithPhases("PRIVATE_CHAT", "FREE_DISCUSSION")
	if !IsStale(stale) {
		t.Error("IsStale(stale transition) = false, want true")
	}
	if !IsStale(fmt.Errorf("timer: %w", stale)) {
		t.Error("IsStale(wrapped) = false, want true")
	}
	if IsStale(NewTransitionError("bad", ErrInvalidTransition)) {
		t.Error("IsStale(invalid transition) = true, want false")
	}
	if IsStale(nil) {
		t.Error("IsStale(nil) = true, want false")
	}
}

// -----------------------------------------------------------------------------
// DispatchError Tests
// -----------------------------------------------------------------------------

func TestDispatchError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *DispatchError
		want string
	}{
		{
			name: "basic error",
			err:  NewDispatchError("failed", nil),
			want: "dispatch error: failed",
		},
		{
			name: "with all fields",
			err: NewDispatchError("failed", ErrTaskPanicked).
				WithTaskName("statement").
				WithParticipant("alice").
				WithPhase("STATEMENT"),
			want: "dispatch error [task=statement, participant=alice, phase=STATEMENT]: failed: task panicked",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDispatchError_Is(t *testing.T) {
	err := NewDispatchError("rejected", ErrQueueFull).WithRetryable(true)

	if !Is(err, &DispatchError{}) {
		t.Error("Is(DispatchError{}) = false, want true")
	}
	if !Is(err, ErrQueueFull) {
		t.Error("Is(ErrQueueFull) = false, want true")
	}
	if !err.IsRetryable() {
		t.Error("IsRetryable() = false, want true")
	}
}

// -----------------------------------------------------------------------------
// Semantic Error Tests
// -----------------------------------------------------------------------------

func TestNotFoundError(t *testing.T) {
	err := NewNotFoundError("participant", "zoe")
	if got, want := err.Error(), "participant 'zoe' not found"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	withCause := NewNotFoundError("session", "g-1").WithCause(ErrSessionNotFound)
	if got, want := withCause.Error(), "session 'g-1' not found: session not found"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !Is(withCause, &NotFoundError{}) {
		t.Error("Is(NotFoundError{}) = false, want true")
	}
	if !Is(withCause, ErrSessionNotFound) {
		t.Error("Is(ErrSessionNotFound) = false, want true")
	}
}

func TestAlreadyExistsError(t *testing.T) {
	err := NewAlreadyExistsError("session", "g-1")
	if got, want := err.Error(), "session 'g-1' already exists"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !Is(err, &AlreadyExistsError{}) {
		t.Error("Is(AlreadyExistsError{}) = false, want true")
	}
	if Is(err, &NotFoundError{}) {
		t.Error("Is(NotFoundError{}) = true, want false")
	}
}

func TestValidationError(t *testing.T) {
	tests := []struct {
		name string
		err  *ValidationError
		want string
	}{
		{
			name: "basic",
			err:  NewValidationError("must be positive"),
			want: "validation error: must be positive",
		},
		{
			name: "with field and value",
			err:  NewValidationError("must be positive").WithField("dispatch.workers").WithValue(0),
			want: "validation error [field=dispatch.workers, value=0]: must be positive",
		},
		{
			name: "with cause",
			err:  NewValidationError("bad participant").WithCause(ErrUnknownParticipant),
			want: "validation error: bad participant: unknown participant",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
			if !Is(tt.err, ErrInvalidInput) {
				t.Error("Is(ErrInvalidInput) = false, want true")
			}
		})
	}
}

func TestTimeoutError(t *testing.T) {
	err := NewTimeoutError("generate statement", 30*time.Second)
	if got, want := err.Error(), "timeout error: generate statement (timeout: 30s)"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !Is(err, ErrTimeout) {
		t.Error("Is(ErrTimeout) = false, want true")
	}
	if !err.IsRetryable() {
		t.Error("IsRetryable() = false, want true")
	}

	withCause := err.WithCause(errors.New("deadline"))
	if got, want := withCause.Error(), "timeout error: generate statement (timeout: 30s): deadline"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

// -----------------------------------------------------------------------------
// Classification Helper Tests
// -----------------------------------------------------------------------------

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("x"), false},
		{"timeout sentinel", ErrTimeout, true},
		{"wrapped timeout sentinel", fmt.Errorf("op: %w", ErrTimeout), true},
		{"timeout error", NewTimeoutError("op", time.Second), true},
		{"retryable dispatch", NewDispatchError("x", nil).WithRetryable(true), true},
		{"session error", NewSessionError("x", nil), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("x"), false},
		{"session error", NewSessionError("x", nil), true},
		{"transition error", NewTransitionError("x", nil), false},
		{"dispatch error", NewDispatchError("x", nil), false},
		{"validation error", NewValidationError("x"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUserFacing(tt.err); got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetSeverity(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Severity
	}{
		{"nil", nil, SeverityDebug},
		{"plain error", errors.New("x"), SeverityError},
		{"transition error", NewTransitionError("x", nil), SeverityWarning},
		{"critical session error", NewSessionError("x", nil).WithSeverity(SeverityCritical), SeverityCritical},
		{"wrapped", Wrapf(NewNotFoundError("a", "b"), "ctx"), SeverityWarning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetSeverity(tt.err); got != tt.want {
				t.Errorf("GetSeverity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWrapf(t *testing.T) {
	if Wrapf(nil, "ctx %d", 1) != nil {
		t.Error("Wrapf(nil) should return nil")
	}

	err := Wrapf(ErrPoolClosed, "submit %s", "alice")
	if got, want := err.Error(), "submit alice: worker pool closed"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !Is(err, ErrPoolClosed) {
		t.Error("Is(ErrPoolClosed) = false, want true")
	}
}

func TestErrorChain(t *testing.T) {
	inner := NewDispatchError("statement failed", ErrTaskFailed).WithParticipant("bob")
	outer := Wrapf(inner, "round %d", 1)

	var de *DispatchError
	if !As(outer, &de) {
		t.Fatal("As(*DispatchError) = false, want true")
	}
	if de.ParticipantID != "bob" {
		t.Errorf("ParticipantID = %q, want %q", de.ParticipantID, "bob")
	}
	if !Is(outer, ErrTaskFailed) {
		t.Error("Is(ErrTaskFailed) = false, want true")
	}
}

func TestSentinelErrors(t *testing.T) {
	sentinels := []error{
		ErrSessionNotFound, ErrSessionExists, ErrSessionNotStarted, ErrSessionAlreadyStarted, ErrSessionEnded,
		ErrInvalidTransition, ErrStaleTransition, ErrNotStatementPhase, ErrRoundAlreadyAdvanced, ErrNotInitialized,
		ErrPoolClosed, ErrQueueFull, ErrTaskFailed, ErrTaskPanicked,
		ErrInvitationClosed, ErrSelfInvitation, ErrUnknownParticipant, ErrQuotaNotConsumed,
		ErrTimeout, ErrCanceled, ErrInvalidInput,
	}

	seen := make(map[string]bool)
	for _, s := range sentinels {
		if s.Error() == "" {
			t.Error("sentinel with empty message")
		}
		if seen[s.Error()] {
			t.Errorf("duplicate sentinel message %q", s.Error())
		}
		seen[s.Error()] = true
	}
}

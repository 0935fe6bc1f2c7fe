package event

import "time"

// Event type identifiers. Convention: "category.action".
const (
	TypeSessionStarted     = "session.started"
	TypeSessionCompleted   = "session.completed"
	TypePhaseChanged       = "phase.changed"
	TypeTurnStarted        = "turn.started"
	TypeMessageSent        = "message.sent"
	TypeInvitationSent     = "invitation.sent"
	TypeInvitationRejected = "invitation.rejected"
	TypeAnswerSubmitted    = "answer.submitted"
	TypeTaskFailed         = "task.failed"
	TypeTimerExpired       = "timer.expired"
)

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	EventType() string

	// GameID returns the game the event belongs to.
	GameID() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

type baseEvent struct {
	eventType string
	gameID    string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) GameID() string       { return e.gameID }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType, gameID string) baseEvent {
	return baseEvent{
		eventType: eventType,
		gameID:    gameID,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Session Events
// -----------------------------------------------------------------------------

// SessionStartedEvent is emitted when a discussion session begins.
type SessionStartedEvent struct {
	baseEvent
	ParticipantIDs []string
	ModeratorID    string
}

// NewSessionStartedEvent creates a SessionStartedEvent.
func NewSessionStartedEvent(gameID string, participantIDs []string, moderatorID string) SessionStartedEvent {
	ids := make([]string, len(participantIDs))
	copy(ids, participantIDs)
	return SessionStartedEvent{
		baseEvent:      newBaseEvent(TypeSessionStarted, gameID),
		ParticipantIDs: ids,
		ModeratorID:    moderatorID,
	}
}

// SessionCompletedEvent is emitted once when the monitor finalizes a session.
type SessionCompletedEvent struct {
	baseEvent
	Answers  map[string]string
	Duration time.Duration
}

// NewSessionCompletedEvent creates a SessionCompletedEvent.
func NewSessionCompletedEvent(gameID string, answers map[string]string, duration time.Duration) SessionCompletedEvent {
	return SessionCompletedEvent{
		baseEvent: newBaseEvent(TypeSessionCompleted, gameID),
		Answers:   answers,
		Duration:  duration,
	}
}

// -----------------------------------------------------------------------------
// Phase and Turn Events
// -----------------------------------------------------------------------------

// PhaseChangedEvent is emitted after every applied phase transition.
type PhaseChangedEvent struct {
	baseEvent
	From   string
	To     string
	Round  int
	Reason string
}

// NewPhaseChangedEvent creates a PhaseChangedEvent.
func NewPhaseChangedEvent(gameID, from, to string, round int, reason string) PhaseChangedEvent {
	return PhaseChangedEvent{
		baseEvent: newBaseEvent(TypePhaseChanged, gameID),
		From:      from,
		To:        to,
		Round:     round,
		Reason:    reason,
	}
}

// TurnStartedEvent is emitted when a participant's statement slot opens.
type TurnStartedEvent struct {
	baseEvent
	ParticipantID string
	Index         int
	Round         int
}

// NewTurnStartedEvent creates a TurnStartedEvent.
func NewTurnStartedEvent(gameID, participantID string, index, round int) TurnStartedEvent {
	return TurnStartedEvent{
		baseEvent:     newBaseEvent(TypeTurnStarted, gameID),
		ParticipantID: participantID,
		Index:         index,
		Round:         round,
	}
}

// -----------------------------------------------------------------------------
// Message Events
// -----------------------------------------------------------------------------

// MessageSentEvent mirrors every message handed to the message sink.
// Receiver is empty for broadcasts.
type MessageSentEvent struct {
	baseEvent
	Sender   string
	Receiver string
	Phase    string
	Text     string
}

// NewMessageSentEvent creates a MessageSentEvent.
func NewMessageSentEvent(gameID, sender, receiver, phase, text string) MessageSentEvent {
	return MessageSentEvent{
		baseEvent: newBaseEvent(TypeMessageSent, gameID),
		Sender:    sender,
		Receiver:  receiver,
		Phase:     phase,
		Text:      text,
	}
}

// -----------------------------------------------------------------------------
// Invitation Events
// -----------------------------------------------------------------------------

// InvitationSentEvent is emitted when a private chat invitation consumed quota.
type InvitationSentEvent struct {
	baseEvent
	Sender    string
	Receiver  string
	Remaining int
}

// NewInvitationSentEvent creates an InvitationSentEvent.
func NewInvitationSentEvent(gameID, sender, receiver string, remaining int) InvitationSentEvent {
	return InvitationSentEvent{
		baseEvent: newBaseEvent(TypeInvitationSent, gameID),
		Sender:    sender,
		Receiver:  receiver,
		Remaining: remaining,
	}
}

// InvitationRejectedEvent is emitted when an invitation was refused.
type InvitationRejectedEvent struct {
	baseEvent
	Sender   string
	Receiver string
	Reason   string
}

// NewInvitationRejectedEvent creates an InvitationRejectedEvent.
func NewInvitationRejectedEvent(gameID, sender, receiver, reason string) InvitationRejectedEvent {
	return InvitationRejectedEvent{
		baseEvent: newBaseEvent(TypeInvitationRejected, gameID),
		Sender:    sender,
		Receiver:  receiver,
		Reason:    reason,
	}
}

// -----------------------------------------------------------------------------
// Answer, Task and Timer Events
// -----------------------------------------------------------------------------

// AnswerSubmittedEvent is emitted for every accepted answer.
type AnswerSubmittedEvent struct {
	baseEvent
	ParticipantID string
	Round         int
}

// NewAnswerSubmittedEvent creates an AnswerSubmittedEvent.
func NewAnswerSubmittedEvent(gameID, participantID string, round int) AnswerSubmittedEvent {
	return AnswerSubmittedEvent{
		baseEvent:     newBaseEvent(TypeAnswerSubmitted, gameID),
		ParticipantID: participantID,
		Round:         round,
	}
}

// TaskFailedEvent is emitted when a participant task errors or panics.
type TaskFailedEvent struct {
	baseEvent
	ParticipantID string
	Phase         string
	Err           error
}

// NewTaskFailedEvent creates a TaskFailedEvent.
func NewTaskFailedEvent(gameID, participantID, phase string, err error) TaskFailedEvent {
	return TaskFailedEvent{
		baseEvent:     newBaseEvent(TypeTaskFailed, gameID),
		ParticipantID: participantID,
		Phase:         phase,
		Err:           err,
	}
}

// TimerExpiredEvent is emitted when a phase, turn or sub-session timer fires.
type TimerExpiredEvent struct {
	baseEvent
	Scope string
}

// NewTimerExpiredEvent creates a TimerExpiredEvent.
func NewTimerExpiredEvent(gameID, scope string) TimerExpiredEvent {
	return TimerExpiredEvent{
		baseEvent: newBaseEvent(TypeTimerExpired, gameID),
		Scope:     scope,
	}
}

// Package phase implements the state machine that drives a discussion
// session through its phases, its statement turn order and its two rounds.
package phase

import (
	"slices"
	"time"
)

// Phase represents a discrete stage of a discussion round.
type Phase string

const (
	// Statement is the ordered phase in which every participant speaks once.
	Statement Phase = "STATEMENT"

	// FreeDiscussion is the open phase in which participants talk at will
	// and may send private chat invitations.
	FreeDiscussion Phase = "FREE_DISCUSSION"

	// PrivateChat is the phase in which accepted invitations converse.
	PrivateChat Phase = "PRIVATE_CHAT"

	// Answer is the phase in which participants submit their answers.
	Answer Phase = "ANSWER"

	// Ended is the terminal state reached after the second round's answers.
	Ended Phase = "ENDED"
)

// FinalRound is the last round of a session. Rounds are numbered from 1.
const FinalRound = 2

// AllPhases returns all phases in lifecycle order.
func AllPhases() []Phase {
	return []Phase{Statement, FreeDiscussion, PrivateChat, Answer, Ended}
}

// Order returns the position of p within a round, or -1 for unknown phases.
func (p Phase) Order() int {
	return slices.Index(AllPhases(), p)
}

// IsTerminal returns true for Ended.
func (p Phase) IsTerminal() bool {
	return p == Ended
}

// String returns the string representation of the phase.
func (p Phase) String() string {
	return string(p)
}

// Next returns the phase that follows p within a round. Answer is followed
// by Statement of the next round; Ended has no successor.
func (p Phase) Next() (Phase, bool) {
	switch p {
	case Statement:
		return FreeDiscussion, true
	case FreeDiscussion:
		return PrivateChat, true
	case PrivateChat:
		return Answer, true
	case Answer:
		return Statement, true
	default:
		return "", false
	}
}

// Transition captures a single applied phase change.
type Transition struct {
	// From is empty for the initial entry into Statement.
	From      Phase     `json:"from,omitempty"`
	To        Phase     `json:"to"`
	Round     int       `json:"round"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason,omitempty"`
}

// ChangeCallback is invoked after every applied transition.
type ChangeCallback func(Transition)

// RoundResetter is invoked when round 2 begins.
type RoundResetter func(participantIDs []string)

// TurnResult is the outcome of AdvanceTurn.
type TurnResult struct {
	// Next is the new current speaker; empty when PhaseComplete is true.
	Next string
	// PhaseComplete reports that the last speaker finished and the machine
	// moved on to FreeDiscussion.
	PhaseComplete bool
}

// State is a snapshot of the machine.
type State struct {
	Phase   Phase
	Round   int
	Cursor  int
	Speaker string
}

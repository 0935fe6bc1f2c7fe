// Package orchestrator drives discussion games: it sequences the statement,
// free discussion, private chat and answer phases of two rounds, reacts to
// phase timers and hands participant work to a shared worker pool.
//
// The orchestrator knows nothing about what participants say. Utterances
// come from a [ReasoningProvider], leave through a [MessageSink] and are
// attributed using a [ParticipantDirectory].
package orchestrator

import (
	"context"
	"fmt"
)

// ReasoningProvider produces a participant's utterance for a phase.
// Implementations may be slow or fail; failures are contained to the task
// that called Generate.
type ReasoningProvider interface {
	// Generate returns the text participantID says in phase. The hint
	// describes what is expected, e.g. an invitation decision.
	Generate(ctx context.Context, gameID, participantID, phase, hint string) (string, error)
}

// MessageSink delivers messages to participants. Both methods are
// fire-and-forget: delivery failures are the sink's concern.
type MessageSink interface {
	// Broadcast sends text to every recipient.
	Broadcast(gameID, text string, recipients []string)

	// SendDirect sends text from sender to receiver only.
	SendDirect(gameID, sender, receiver, text string)
}

// ParticipantDirectory resolves participant display names.
type ParticipantDirectory interface {
	DisplayName(participantID string) (string, error)
}

// PlaceholderName is the display name used when the directory cannot
// resolve a participant.
func PlaceholderName(participantID string) string {
	return fmt.Sprintf("Player %s", participantID)
}

// StaticDirectory is a ParticipantDirectory backed by a fixed map.
type StaticDirectory map[string]string

// DisplayName returns the mapped name or an error when there is none.
func (d StaticDirectory) DisplayName(participantID string) (string, error) {
	if name, ok := d[participantID]; ok && name != "" {
		return name, nil
	}
	return "", fmt.Errorf("no display name for participant %q", participantID)
}

// ProviderFunc adapts a function to ReasoningProvider.
type ProviderFunc func(ctx context.Context, gameID, participantID, phase, hint string) (string, error)

// Generate calls f.
func (f ProviderFunc) Generate(ctx context.Context, gameID, participantID, phase, hint string) (string, error) {
	return f(ctx, gameID, participantID, phase, hint)
}

package session

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/roundtable-games/roundtable/internal/errors"
)

// Session is the data record of one game.
type Session struct {
	// GameID identifies the game. It never changes.
	GameID string
	// ModeratorID is the non-participant moderator role.
	ModeratorID string

	participantIDs []string

	mu        sync.RWMutex
	answers   map[string]string
	round     int
	completed bool
	startTime time.Time
	endTime   time.Time
	done      chan struct{}
}

// New validates the inputs and creates a session. Participant order is
// fixed here and defines statement turn order.
func New(gameID string, participantIDs []string, moderatorID string) (*Session, error) {
	if gameID == "" {
		return nil, errors.NewValidationError("game id cannot be empty").WithField("game_id")
	}
	seen := make(map[string]bool, len(participantIDs))
	for _, id := range participantIDs {
		if id == "" {
			return nil, errors.NewValidationError("participant id cannot be empty").WithField("participant_ids")
		}
		if seen[id] {
			return nil, errors.NewValidationError("duplicate participant").
				WithField("participant_ids").WithValue(id)
		}
		seen[id] = true
	}
	if moderatorID != "" && seen[moderatorID] {
		return nil, errors.NewValidationError("moderator cannot also be a participant").
			WithField("moderator_id").WithValue(moderatorID)
	}

	return &Session{
		GameID:         gameID,
		ModeratorID:    moderatorID,
		participantIDs: slices.Clone(participantIDs),
		answers:        make(map[string]string),
		done:           make(chan struct{}),
	}, nil
}

// ParticipantIDs returns a copy of the participant order.
func (s *Session) ParticipantIDs() []string {
	return slices.Clone(s.participantIDs)
}

// HasParticipant reports whether id takes part in the session.
func (s *Session) HasParticipant(id string) bool {
	return slices.Contains(s.participantIDs, id)
}

// MarkStarted records the start time. Later calls are ignored.
func (s *Session) MarkStarted(t time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.startTime.IsZero() {
		return false
	}
	s.startTime = t
	s.round = 1
	return true
}

// Started reports whether MarkStarted has been called.
func (s *Session) Started() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.startTime.IsZero()
}

// SetRound records the round the session is in.
func (s *Session) SetRound(round int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if round > s.round {
		s.round = round
	}
}

// SubmitAnswer stores answer for participantID. The last write wins.
// Answers are rejected for unknown participants and after completion.
func (s *Session) SubmitAnswer(participantID, answer string) error {
	if !s.HasParticipant(participantID) {
		return errors.NewSessionError("answer from non-participant", errors.ErrUnknownParticipant).
			WithGameID(s.GameID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completed {
		return errors.NewSessionError("answer after completion", errors.ErrSessionEnded).
			WithGameID(s.GameID)
	}
	s.answers[participantID] = answer
	return nil
}

// Answer returns the answer of participantID.
func (s *Session) Answer(participantID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.answers[participantID]
	return a, ok
}

// Answers returns a copy of all answers.
func (s *Session) Answers() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.answers)
}

// MarkCompleted sets the end time and flips the completion flag. Only the
// first call has an effect; it returns true for that call.
func (s *Session) MarkCompleted(t time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completed {
		return false
	}
	s.completed = true
	s.endTime = t
	close(s.done)
	return true
}

// Completed reports whether the session was finalized.
func (s *Session) Completed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.completed
}

// Done returns a channel that is closed when the session completes.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// StartTime returns when the session started.
func (s *Session) StartTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startTime
}

// EndTime returns when the session completed, or the zero time.
func (s *Session) EndTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.endTime
}

// Summary returns a consistent snapshot of the session.
func (s *Session) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Summary{
		GameID:         s.GameID,
		ModeratorID:    s.ModeratorID,
		ParticipantIDs: slices.Clone(s.participantIDs),
		Answers:        maps.Clone(s.answers),
		Rounds:         s.round,
		StartTime:      s.startTime,
		EndTime:        s.endTime,
		Completed:      s.completed,
	}
}

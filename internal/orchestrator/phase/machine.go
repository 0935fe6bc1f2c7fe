package phase

import (
	"sync"
	"time"

	"github.com/roundtable-games/roundtable/internal/errors"
	"github.com/roundtable-games/roundtable/internal/logging"
)

// Machine owns the phase, turn cursor and round number of one session.
// All methods are safe for concurrent use. Callbacks registered with
// OnPhaseChange run after the machine's lock is released.
type Machine struct {
	mu           sync.Mutex
	participants []string
	moderatorID  string
	phase        Phase
	cursor       int
	round        int
	initialized  bool
	history      []Transition
	callbacks    []ChangeCallback
	resetter     RoundResetter
	logger       *logging.Logger
}

// NewMachine creates an uninitialized state machine.
func NewMachine(logger *logging.Logger) *Machine {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Machine{logger: logger.WithPhase("phase-machine")}
}

// SetRoundResetter registers the hook StartNextRound uses to restore
// per-round state such as private chat quotas. It runs under the machine's
// lock, before round 2 becomes observable.
func (m *Machine) SetRoundResetter(r RoundResetter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetter = r
}

// OnPhaseChange registers a callback for applied transitions. Callbacks are
// called in registration order.
func (m *Machine) OnPhaseChange(cb ChangeCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

// Initialize starts round 1 in Statement with the cursor on the first
// participant. The participant order is fixed from here on.
func (m *Machine) Initialize(participantIDs []string, moderatorID string) {
	m.mu.Lock()
	m.participants = make([]string, len(participantIDs))
	copy(m.participants, participantIDs)
	m.moderatorID = moderatorID
	m.phase = Statement
	m.cursor = 0
	m.round = 1
	m.initialized = true
	m.history = nil
	t := m.recordLocked("", Statement, "session started")
	callbacks := m.callbacksLocked()
	m.mu.Unlock()

	m.logger.Info("phase machine initialized", "participants", len(participantIDs), "moderator_id", moderatorID)
	notify(callbacks, t)
}

// CurrentPhase returns the current phase.
func (m *Machine) CurrentPhase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// CurrentRound returns the current round (0 before Initialize).
func (m *Machine) CurrentRound() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.round
}

// TurnCursor returns the index of the current speaker. It equals the number
// of participants once every speaker has finished.
func (m *Machine) TurnCursor() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor
}

// Participants returns a copy of the participant order.
func (m *Machine) Participants() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.participants))
	copy(out, m.participants)
	return out
}

// ModeratorID returns the moderator given to Initialize.
func (m *Machine) ModeratorID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.moderatorID
}

// CurrentSpeaker returns the participant whose statement turn it is.
// It reports false outside Statement and after the last speaker.
func (m *Machine) CurrentSpeaker() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speakerLocked()
}

func (m *Machine) speakerLocked() (string, bool) {
	if m.phase != Statement || m.cursor >= len(m.participants) {
		return "", false
	}
	return m.participants[m.cursor], true
}

// State returns a consistent snapshot of phase, round and turn.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	speaker, _ := m.speakerLocked()
	return State{Phase: m.phase, Round: m.round, Cursor: m.cursor, Speaker: speaker}
}

// AdvanceTurn ends the current statement turn. When the last speaker
// finishes the machine moves to FreeDiscussion and reports PhaseComplete.
// It fails with ErrNotStatementPhase outside Statement.
func (m *Machine) AdvanceTurn() (TurnResult, error) {
	m.mu.Lock()
	if err := m.usableLocked(); err != nil {
		m.mu.Unlock()
		return TurnResult{}, err
	}
	if m.phase != Statement {
		err := m.errorLocked("turn advance outside statement phase", errors.ErrNotStatementPhase, "")
		m.mu.Unlock()
		return TurnResult{}, err
	}

	if m.cursor < len(m.participants) {
		m.cursor++
	}
	if m.cursor < len(m.participants) {
		next := m.participants[m.cursor]
		m.mu.Unlock()
		return TurnResult{Next: next}, nil
	}

	t := m.recordLocked(Statement, FreeDiscussion, "all speakers finished")
	m.phase = FreeDiscussion
	callbacks := m.callbacksLocked()
	m.mu.Unlock()

	notify(callbacks, t)
	return TurnResult{PhaseComplete: true}, nil
}

// TransitionTo moves the machine forward to target. A target equal to or
// before the current phase fails with ErrStaleTransition, which callers
// racing on the same change treat as a no-op. Statement is only reachable
// as the start of round 2 (see StartNextRound); Ended only through End.
func (m *Machine) TransitionTo(target Phase) error {
	return m.TransitionWithReason(target, "")
}

// TransitionWithReason is TransitionTo with a reason stored in the history.
func (m *Machine) TransitionWithReason(target Phase, reason string) error {
	switch target {
	case Statement:
		return m.startNextRound(reason, true)
	case Ended:
		return m.end(reason)
	}

	m.mu.Lock()
	if err := m.usableLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	if target.Order() < 0 {
		err := m.errorLocked("unknown phase", errors.ErrInvalidTransition, target)
		m.mu.Unlock()
		return err
	}
	if target.Order() <= m.phase.Order() {
		err := m.errorLocked("target is not ahead of current phase", errors.ErrStaleTransition, target)
		m.mu.Unlock()
		return err
	}

	from := m.phase
	t := m.recordLocked(from, target, reason)
	m.phase = target
	callbacks := m.callbacksLocked()
	m.mu.Unlock()

	m.logger.Info("phase transition", "from", string(from), "to", string(target), "round", t.Round)
	notify(callbacks, t)
	return nil
}

// StartNextRound moves from round 1 Answer to round 2 Statement, resets the
// turn cursor and runs the round resetter. A second call fails with
// ErrRoundAlreadyAdvanced.
func (m *Machine) StartNextRound() error {
	return m.startNextRound("", false)
}

// startNextRound reports an early request as stale when it arrives through
// TransitionTo, where Statement is behind every other phase of round 1.
func (m *Machine) startNextRound(reason string, viaTransition bool) error {
	m.mu.Lock()
	if err := m.usableLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	if m.round >= FinalRound {
		err := m.errorLocked("next round already started", errors.ErrRoundAlreadyAdvanced, Statement)
		m.mu.Unlock()
		return err
	}
	if m.phase != Answer {
		cause := errors.ErrInvalidTransition
		if viaTransition {
			cause = errors.ErrStaleTransition
		}
		err := m.errorLocked("next round requires the answer phase", cause, Statement)
		m.mu.Unlock()
		return err
	}

	if reason == "" {
		reason = "round complete"
	}
	m.round++
	m.cursor = 0
	t := m.recordLocked(Answer, Statement, reason)
	m.phase = Statement
	if m.resetter != nil {
		ids := make([]string, len(m.participants))
		copy(ids, m.participants)
		m.resetter(ids)
	}
	callbacks := m.callbacksLocked()
	m.mu.Unlock()

	m.logger.Info("round started", "round", t.Round)
	notify(callbacks, t)
	return nil
}

// End moves the machine from the final round's Answer to Ended. Nothing
// mutates afterwards.
func (m *Machine) End() error {
	return m.end("")
}

func (m *Machine) end(reason string) error {
	m.mu.Lock()
	if err := m.usableLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	if m.phase != Answer || m.round < FinalRound {
		err := m.errorLocked("session can only end after the final answer phase", errors.ErrInvalidTransition, Ended)
		m.mu.Unlock()
		return err
	}

	if reason == "" {
		reason = "final round complete"
	}
	t := m.recordLocked(Answer, Ended, reason)
	m.phase = Ended
	callbacks := m.callbacksLocked()
	m.mu.Unlock()

	m.logger.Info("session ended", "round", t.Round)
	notify(callbacks, t)
	return nil
}

// IsEnded reports whether the machine reached Ended.
func (m *Machine) IsEnded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase == Ended
}

// History returns a copy of every applied transition in order.
func (m *Machine) History() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Transition, len(m.history))
	copy(out, m.history)
	return out
}

func (m *Machine) usableLocked() error {
	if !m.initialized {
		return errors.NewTransitionError("state machine used before Initialize", errors.ErrNotInitialized)
	}
	if m.phase == Ended {
		return m.errorLocked("session has ended", errors.ErrSessionEnded, "")
	}
	return nil
}

func (m *Machine) errorLocked(msg string, cause error, target Phase) error {
	return errors.NewTransitionError(msg, cause).
		WithPhases(string(m.phase), string(target)).
		WithRound(m.round)
}

func (m *Machine) recordLocked(from, to Phase, reason string) Transition {
	t := Transition{
		From:      from,
		To:        to,
		Round:     m.round,
		Timestamp: time.Now(),
		Reason:    reason,
	}
	m.history = append(m.history, t)
	return t
}

func (m *Machine) callbacksLocked() []ChangeCallback {
	out := make([]ChangeCallback, len(m.callbacks))
	copy(out, m.callbacks)
	return out
}

func notify(callbacks []ChangeCallback, t Transition) {
	for _, cb := range callbacks {
		cb(t)
	}
}

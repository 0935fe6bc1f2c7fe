// Package quota tracks how many private chat invitations each participant
// may still send in the current round, and whom they have invited.
//
// Exhaustion is not an error: TryConsume and Invite report it as false.
package quota

import (
	"sort"
	"sync"

	"github.com/roundtable-games/roundtable/internal/errors"
	"github.com/roundtable-games/roundtable/internal/logging"
)

// MaxPrivateChats is the default per-round invitation allowance.
const MaxPrivateChats = 2

// Entry is a participant's quota state.
type Entry struct {
	ParticipantID string
	Remaining     int
	Invited       []string
}

// Ledger is the per-session quota ledger. It is safe for concurrent use.
// For every participant remaining + len(log) equals the limit within a round.
type Ledger struct {
	mu        sync.Mutex
	limit     int
	remaining map[string]int
	log       map[string][]string
	logger    *logging.Logger
}

// New creates a ledger with the given per-round limit. A negative limit
// falls back to MaxPrivateChats.
func New(limit int, logger *logging.Logger) *Ledger {
	if limit < 0 {
		limit = MaxPrivateChats
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Ledger{
		limit:     limit,
		remaining: make(map[string]int),
		log:       make(map[string][]string),
		logger:    logger.WithPhase("quota-ledger"),
	}
}

// Limit returns the per-round allowance.
func (l *Ledger) Limit() int {
	return l.limit
}

// Initialize sets every participant's allowance to the limit and clears all logs.
func (l *Ledger) Initialize(participantIDs []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetLocked(participantIDs)
}

// ResetForNewRound restores every allowance and clears the logs.
func (l *Ledger) ResetForNewRound(participantIDs []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetLocked(participantIDs)
	l.logger.Info("quotas reset for new round", "participants", len(participantIDs), "limit", l.limit)
}

func (l *Ledger) resetLocked(participantIDs []string) {
	l.remaining = make(map[string]int, len(participantIDs))
	l.log = make(map[string][]string, len(participantIDs))
	for _, id := range participantIDs {
		l.remaining[id] = l.limit
		l.log[id] = nil
	}
}

// TryConsume decrements sender's allowance if any is left. It returns false
// without changing anything when the allowance is exhausted or the sender is
// unknown.
func (l *Ledger) TryConsume(sender string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tryConsumeLocked(sender)
}

func (l *Ledger) tryConsumeLocked(sender string) bool {
	left, ok := l.remaining[sender]
	if !ok || left <= 0 {
		return false
	}
	l.remaining[sender] = left - 1
	return true
}

// Record appends receiver to sender's invitation log. It must follow a
// successful TryConsume; a Record without a matching consumption is rejected.
func (l *Ledger) Record(sender, receiver string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	left, ok := l.remaining[sender]
	if !ok {
		return errors.NewValidationError("sender is not a participant").
			WithField("sender").WithValue(sender).WithCause(errors.ErrUnknownParticipant)
	}
	if left+len(l.log[sender])+1 != l.limit {
		return errors.Wrapf(errors.ErrQuotaNotConsumed, "record %s -> %s", sender, receiver)
	}
	l.log[sender] = append(l.log[sender], receiver)
	return nil
}

// Invite consumes one allowance for sender and records receiver under a
// single lock. It returns false when the allowance is exhausted.
// Self-invitation is permitted at this layer.
func (l *Ledger) Invite(sender, receiver string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.tryConsumeLocked(sender) {
		return false
	}
	l.log[sender] = append(l.log[sender], receiver)
	return true
}

// Remaining returns sender's allowance, or 0 for an unknown participant.
func (l *Ledger) Remaining(participantID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.remaining[participantID]
}

// Log returns a copy of the receivers participantID has invited this round.
func (l *Ledger) Log(participantID string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := l.log[participantID]
	out := make([]string, len(entries))
	copy(out, entries)
	return out
}

// Snapshot returns the state of every participant, sorted by ID.
func (l *Ledger) Snapshot() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, 0, len(l.remaining))
	for id, left := range l.remaining {
		invited := make([]string, len(l.log[id]))
		copy(invited, l.log[id])
		out = append(out, Entry{ParticipantID: id, Remaining: left, Invited: invited})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ParticipantID < out[j].ParticipantID })
	return out
}

package dispatch

import (
	"context"

	"github.com/roundtable-games/roundtable/internal/logging"
)

// Factory builds the task for one participant. The dispatcher fills in the
// game, participant and phase when the factory leaves them empty.
type Factory func(participantID string) Task

// FailureHandler is told about every task of a game that ended in error.
type FailureHandler func(t Task, err error)

// Dispatcher submits one game's participant tasks to a shared pool.
type Dispatcher struct {
	gameID    string
	pool      *Pool
	onFailure FailureHandler
	logger    *logging.Logger
}

// NewDispatcher creates a dispatcher for gameID over pool.
func NewDispatcher(gameID string, pool *Pool, onFailure FailureHandler, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Dispatcher{
		gameID:    gameID,
		pool:      pool,
		onFailure: onFailure,
		logger:    logger.WithGame(gameID).WithPhase("dispatcher"),
	}
}

// DispatchPhase submits one task per participant and returns immediately
// with the number of tasks accepted by the pool. Rejected submissions are
// logged and reported to the failure handler; they do not stop the others.
func (d *Dispatcher) DispatchPhase(ctx context.Context, phase string, participantIDs []string, factory Factory) int {
	accepted := 0
	for _, id := range participantIDs {
		t := factory(id)
		if t.Phase == "" {
			t.Phase = phase
		}
		if d.submit(ctx, id, t) {
			accepted++
		}
	}
	d.logger.Debug("phase tasks dispatched", "phase", phase, "accepted", accepted, "participants", len(participantIDs))
	return accepted
}

// DispatchPrivateChatDecision submits the task in which participantID
// decides whether to invite someone to a private chat.
func (d *Dispatcher) DispatchPrivateChatDecision(ctx context.Context, participantID string, factory Factory) bool {
	t := factory(participantID)
	if t.Name == "" {
		t.Name = "private-chat-decision"
	}
	return d.submit(ctx, participantID, t)
}

// Dispatch submits a single prepared task for participantID.
func (d *Dispatcher) Dispatch(ctx context.Context, participantID string, t Task) bool {
	return d.submit(ctx, participantID, t)
}

func (d *Dispatcher) submit(ctx context.Context, participantID string, t Task) bool {
	if t.GameID == "" {
		t.GameID = d.gameID
	}
	if t.ParticipantID == "" {
		t.ParticipantID = participantID
	}
	if t.Name == "" {
		t.Name = "task"
	}

	done := t.OnDone
	t.OnDone = func(err error) {
		if done != nil {
			done(err)
		}
		if err != nil && d.onFailure != nil {
			d.onFailure(t, err)
		}
	}

	if err := d.pool.Submit(ctx, t); err != nil {
		if d.onFailure != nil {
			d.onFailure(t, err)
		}
		if done != nil {
			done(err)
		}
		return false
	}
	return true
}

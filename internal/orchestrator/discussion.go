package orchestrator

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roundtable-games/roundtable/internal/errors"
	"github.com/roundtable-games/roundtable/internal/event"
	"github.com/roundtable-games/roundtable/internal/logging"
	"github.com/roundtable-games/roundtable/internal/orchestrator/completion"
	"github.com/roundtable-games/roundtable/internal/orchestrator/dispatch"
	"github.com/roundtable-games/roundtable/internal/orchestrator/phase"
	"github.com/roundtable-games/roundtable/internal/orchestrator/quota"
	"github.com/roundtable-games/roundtable/internal/orchestrator/session"
	"github.com/roundtable-games/roundtable/internal/orchestrator/timer"
)

// Deps are the collaborators a Discussion talks to. Provider and Sink are
// required; the rest are optional.
type Deps struct {
	Provider  ReasoningProvider
	Sink      MessageSink
	Directory ParticipantDirectory
	Bus       *event.Bus
	Logger    *logging.Logger
}

type phaseKey struct {
	round int
	phase phase.Phase
}

type chat struct {
	sender   string
	receiver string
}

// Discussion orchestrates one game from the first statement to the final
// answer. Phases end when their timer expires; a phase whose tasks fail
// still ends on time.
type Discussion struct {
	session    *session.Session
	machine    *phase.Machine
	ledger     *quota.Ledger
	timers     *timer.Registry
	dispatcher *dispatch.Dispatcher
	monitor    *completion.Monitor

	provider  ReasoningProvider
	sink      MessageSink
	directory ParticipantDirectory
	bus       *event.Bus
	opts      Options
	logger    *logging.Logger

	// transitionMu serializes phase entry, turn advance and round change.
	transitionMu sync.Mutex
	entered      map[phaseKey]bool

	started   atomic.Bool
	ctx       context.Context
	watchDone chan struct{}

	mu       sync.Mutex
	cancel   context.CancelFunc
	chats    []chat
	chatOpen int           // round whose private chat phase has begun
	paused   []string      // scopes frozen by Pause
	resumed  chan struct{} // non-nil while paused, closed by Resume
	closed   bool
}

// NewDiscussion wires a Discussion for s over the shared pool. It does not
// start anything; call StartSession.
func NewDiscussion(s *session.Session, pool *dispatch.Pool, deps Deps, opts Options) *Discussion {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	logger = logger.WithGame(s.GameID)
	opts = opts.withDefaults()

	d := &Discussion{
		session:   s,
		provider:  deps.Provider,
		sink:      deps.Sink,
		directory: deps.Directory,
		bus:       deps.Bus,
		opts:      opts,
		logger:    logger,
		entered:   make(map[phaseKey]bool),
		ctx:       context.Background(),
		watchDone: make(chan struct{}),
	}

	d.machine = phase.NewMachine(logger)
	d.ledger = quota.New(opts.MaxPrivateChats, logger)
	d.machine.SetRoundResetter(d.resetRound)
	d.machine.OnPhaseChange(d.phaseChanged)
	d.timers = timer.NewRegistry(timer.Callbacks{
		OnExpire: func(scope string) {
			d.publish(event.NewTimerExpiredEvent(s.GameID, scope))
		},
		OnCallbackError: func(scope string, err error) {
			d.logger.Warn("phase timer callback failed", "scope", scope, "error", err)
		},
	}, logger)
	d.dispatcher = dispatch.NewDispatcher(s.GameID, pool, d.taskFailed, logger)
	d.monitor = completion.NewMonitor(logger)
	d.monitor.OnFinalize(func(summary session.Summary) {
		d.publish(event.NewSessionCompletedEvent(summary.GameID, summary.Answers, summary.Duration()))
	})
	return d
}

// GameID returns the game this discussion runs.
func (d *Discussion) GameID() string {
	return d.session.GameID
}

// Session returns the game's data record.
func (d *Discussion) Session() *session.Session {
	return d.session
}

// Done is closed once the session has been finalized.
func (d *Discussion) Done() <-chan struct{} {
	return d.session.Done()
}

// OnComplete registers a callback run once when the session is finalized.
func (d *Discussion) OnComplete(cb completion.Callback) {
	d.monitor.OnFinalize(cb)
}

// Wait blocks until the session is finalized or ctx ends.
func (d *Discussion) Wait(ctx context.Context) error {
	return d.monitor.WatchUntilComplete(ctx, d.session, d.opts.Timings.MonitorPoll)
}

// StartSession initializes the phase machine and quotas, starts the
// completion watcher and enters the first statement phase. ctx bounds the
// whole game: cancelling it stops every timer and pending task.
func (d *Discussion) StartSession(ctx context.Context) error {
	d.transitionMu.Lock()
	defer d.transitionMu.Unlock()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return errors.NewSessionError("discussion is closed", errors.ErrSessionEnded).WithGameID(d.GameID())
	}
	if d.started.Load() {
		d.mu.Unlock()
		return errors.NewSessionError("session already started", errors.ErrSessionAlreadyStarted).WithGameID(d.GameID())
	}
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.started.Store(true)
	d.mu.Unlock()

	ids := d.session.ParticipantIDs()
	d.session.MarkStarted(time.Now())
	d.ledger.Initialize(ids)
	d.machine.Initialize(ids, d.session.ModeratorID)

	go d.watch()

	d.publish(event.NewSessionStartedEvent(d.GameID(), ids, d.session.ModeratorID))
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = d.displayName(id)
	}
	d.announce(fmt.Sprintf("The discussion begins. Participants: %s.", strings.Join(names, ", ")))
	d.logger.Info("session started", "participants", len(ids), "moderator_id", d.session.ModeratorID)

	return d.enterStatementLocked(1)
}

func (d *Discussion) watch() {
	defer close(d.watchDone)
	err := d.monitor.WatchUntilComplete(d.ctx, d.session, d.opts.Timings.MonitorPoll)
	d.timers.CancelAll()
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()
	cancel()
	if err != nil {
		d.logger.Info("session stopped before completion", "error", err)
		return
	}
	d.logger.Info("session complete")
}

// Close stops the game without finalizing it. Timers are cancelled and
// pending tasks see a cancelled context. It is safe to call more than once.
func (d *Discussion) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	cancel := d.cancel
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	d.timers.Close()
	if d.started.Load() {
		<-d.watchDone
	}
}

// EnterStatement begins the statement phase of the current round. Speakers
// take turns in participant order; each turn ends when the speaker's task
// finishes or its turn timer expires, whichever is first. Independently the
// phase timer moves the game to free discussion. Entering a phase that was
// already entered this round is a no-op.
func (d *Discussion) EnterStatement() error {
	return d.enterNow(func(round int, _ string) error { return d.enterStatementLocked(round) })
}

// EnterFreeDiscussion moves the game to free discussion and dispatches a
// discussion message and a private chat decision for every participant.
func (d *Discussion) EnterFreeDiscussion() error {
	return d.enterNow(d.enterFreeDiscussionLocked)
}

// EnterPrivateChat moves the game to the private chat phase and starts the
// exchanges of every invitation accepted so far this round.
func (d *Discussion) EnterPrivateChat() error {
	return d.enterNow(d.enterPrivateChatLocked)
}

// EnterAnswer moves the game to the answer phase and asks every
// participant for an answer.
func (d *Discussion) EnterAnswer() error {
	return d.enterNow(d.enterAnswerLocked)
}

// EndPhase closes the answer phase. After round 1 it starts round 2 with
// fresh quotas; after round 2 it ends the machine and finalizes the session.
// Outside the answer phase it fails with ErrInvalidTransition.
func (d *Discussion) EndPhase() error {
	d.transitionMu.Lock()
	if err := d.usableLocked(); err != nil {
		d.transitionMu.Unlock()
		return err
	}
	round := d.machine.CurrentRound()
	if current := d.machine.CurrentPhase(); current != phase.Answer {
		d.transitionMu.Unlock()
		to := phase.Statement
		if round >= phase.FinalRound {
			to = phase.Ended
		}
		return errors.NewTransitionError(
			fmt.Sprintf("cannot end the round during %s", current), errors.ErrInvalidTransition,
		).WithPhases(string(current), string(to)).WithRound(round)
	}
	d.transitionMu.Unlock()
	return d.endPhase(round, "requested")
}

func (d *Discussion) enterNow(enter func(round int, reason string) error) error {
	d.transitionMu.Lock()
	defer d.transitionMu.Unlock()
	if err := d.usableLocked(); err != nil {
		return err
	}
	return enter(d.machine.CurrentRound(), "requested")
}

func (d *Discussion) usableLocked() error {
	if !d.started.Load() {
		return errors.NewSessionError("session not started", errors.ErrSessionNotStarted).WithGameID(d.GameID())
	}
	if d.machine.IsEnded() {
		return errors.NewSessionError("session has ended", errors.ErrSessionEnded).WithGameID(d.GameID())
	}
	return nil
}

// enterPhase applies the transition to target for round and reports whether
// the caller should run the phase body. Stale requests, including timers of
// an earlier round, are no-ops.
func (d *Discussion) enterPhase(round int, target phase.Phase, reason string) (bool, error) {
	if d.machine.CurrentRound() != round {
		d.logger.Debug("ignoring phase entry from another round", "phase", string(target), "round", round)
		return false, nil
	}
	key := phaseKey{round: round, phase: target}
	if d.entered[key] {
		return false, nil
	}
	if err := d.machine.TransitionWithReason(target, reason); err != nil {
		if !errors.IsStale(err) {
			return false, err
		}
		// AdvanceTurn moves to free discussion on its own.
		if d.machine.CurrentPhase() != target {
			d.logger.Debug("stale phase entry ignored", "phase", string(target), "round", round)
			return false, nil
		}
	}
	d.entered[key] = true
	for _, p := range phase.AllPhases() {
		if p != target {
			d.timers.CancelTimer(string(p))
		}
	}
	return true, nil
}

func (d *Discussion) startPhaseTimer(p phase.Phase, next timer.Callback) {
	d.startTimer(string(p), d.opts.Timings.PhaseDuration(p), next)
}

// startTimer arms scope. While the game is paused the new timer is frozen
// at once and thawed by Resume with the others.
func (d *Discussion) startTimer(scope string, dur time.Duration, cb timer.Callback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.timers.StartTimer(scope, dur, cb)
	if d.resumed != nil && d.timers.PauseTimer(scope) {
		d.paused = append(d.paused, scope)
	}
}

// waitResumed blocks while the game is paused. It reports false when the
// game is closed first.
func (d *Discussion) waitResumed() bool {
	d.mu.Lock()
	gate := d.resumed
	d.mu.Unlock()
	if gate == nil {
		return d.ctx.Err() == nil
	}
	select {
	case <-gate:
		return true
	case <-d.ctx.Done():
		return false
	}
}

func (d *Discussion) enterStatementLocked(round int) error {
	if d.machine.CurrentRound() != round || d.machine.CurrentPhase() != phase.Statement {
		return nil
	}
	key := phaseKey{round: round, phase: phase.Statement}
	if d.entered[key] {
		return nil
	}
	d.entered[key] = true

	d.announcePhase(phase.Statement, round)
	d.startPhaseTimer(phase.Statement, func() error {
		return d.enterFreeDiscussion(round, "statement time expired")
	})
	go d.runTurns(round)
	return nil
}

func (d *Discussion) runTurns(round int) {
	for d.waitResumed() {
		d.transitionMu.Lock()
		if d.machine.CurrentRound() != round || d.machine.CurrentPhase() != phase.Statement {
			d.transitionMu.Unlock()
			return
		}
		speaker, ok := d.machine.CurrentSpeaker()
		index := d.machine.TurnCursor()
		d.transitionMu.Unlock()
		if !ok {
			return
		}

		d.runTurn(round, index, speaker)
		if !d.waitResumed() {
			return
		}

		d.transitionMu.Lock()
		if d.machine.CurrentRound() != round ||
			d.machine.CurrentPhase() != phase.Statement ||
			d.machine.TurnCursor() != index {
			d.transitionMu.Unlock()
			return
		}
		result, err := d.machine.AdvanceTurn()
		if err != nil {
			d.logger.Warn("failed to advance turn", "round", round, "error", err)
		} else if result.PhaseComplete {
			if err := d.enterFreeDiscussionLocked(round, "all speakers finished"); err != nil {
				d.logger.Warn("failed to enter free discussion", "round", round, "error", err)
			}
		}
		d.transitionMu.Unlock()
	}
}

// runTurn opens speaker's statement slot and blocks until it closes.
func (d *Discussion) runTurn(round, index int, speaker string) {
	d.announce(fmt.Sprintf("Now %s speaks.", d.displayName(speaker)))
	d.publish(event.NewTurnStartedEvent(d.GameID(), speaker, index, round))

	slot := make(chan struct{})
	var once sync.Once
	release := func() { once.Do(func() { close(slot) }) }

	scope := turnScope(speaker)
	d.startTimer(scope, d.opts.Timings.Turn, func() error {
		release()
		return nil
	})

	task := d.statementTask(round, speaker)
	task.OnDone = func(error) { release() }
	d.dispatcher.Dispatch(d.ctx, speaker, task)

	select {
	case <-slot:
	case <-d.ctx.Done():
	}
	d.timers.CancelTimer(scope)
}

func (d *Discussion) enterFreeDiscussion(round int, reason string) error {
	d.transitionMu.Lock()
	defer d.transitionMu.Unlock()
	return d.enterFreeDiscussionLocked(round, reason)
}

func (d *Discussion) enterFreeDiscussionLocked(round int, reason string) error {
	ok, err := d.enterPhase(round, phase.FreeDiscussion, reason)
	if !ok || err != nil {
		return err
	}

	d.announcePhase(phase.FreeDiscussion, round)
	d.startPhaseTimer(phase.FreeDiscussion, func() error {
		return d.enterPrivateChat(round, "free discussion time expired")
	})

	ids := d.session.ParticipantIDs()
	d.dispatcher.DispatchPhase(d.ctx, string(phase.FreeDiscussion), ids, d.discussionTask(round))
	for _, id := range ids {
		d.dispatcher.DispatchPrivateChatDecision(d.ctx, id, d.decisionTask(round))
	}
	return nil
}

func (d *Discussion) enterPrivateChat(round int, reason string) error {
	d.transitionMu.Lock()
	defer d.transitionMu.Unlock()
	return d.enterPrivateChatLocked(round, reason)
}

func (d *Discussion) enterPrivateChatLocked(round int, reason string) error {
	ok, err := d.enterPhase(round, phase.PrivateChat, reason)
	if !ok || err != nil {
		return err
	}

	d.announcePhase(phase.PrivateChat, round)
	d.startPhaseTimer(phase.PrivateChat, func() error {
		return d.enterAnswer(round, "private chat time expired")
	})

	d.mu.Lock()
	d.chatOpen = round
	chats := slices.Clone(d.chats)
	d.mu.Unlock()

	for _, c := range chats {
		d.dispatchChat(c)
	}
	return nil
}

func (d *Discussion) enterAnswer(round int, reason string) error {
	d.transitionMu.Lock()
	defer d.transitionMu.Unlock()
	return d.enterAnswerLocked(round, reason)
}

func (d *Discussion) enterAnswerLocked(round int, reason string) error {
	ok, err := d.enterPhase(round, phase.Answer, reason)
	if !ok || err != nil {
		return err
	}

	d.announcePhase(phase.Answer, round)
	d.startPhaseTimer(phase.Answer, func() error {
		return d.endPhase(round, "answer time expired")
	})

	d.dispatcher.DispatchPhase(d.ctx, string(phase.Answer), d.session.ParticipantIDs(), d.answerTask(round))
	return nil
}

func (d *Discussion) endPhase(round int, reason string) error {
	d.transitionMu.Lock()
	finalize, err := d.endPhaseLocked(round, reason)
	d.transitionMu.Unlock()

	if finalize {
		d.monitor.Finalize(d.session)
	}
	return err
}

func (d *Discussion) endPhaseLocked(round int, reason string) (bool, error) {
	if d.machine.CurrentRound() != round || d.machine.CurrentPhase() != phase.Answer {
		return false, nil
	}
	d.timers.CancelTimer(string(phase.Answer))

	if round < phase.FinalRound {
		if err := d.machine.TransitionWithReason(phase.Statement, reason); err != nil {
			return false, err
		}
		return false, d.enterStatementLocked(round + 1)
	}

	if err := d.machine.TransitionWithReason(phase.Ended, reason); err != nil {
		return false, err
	}
	d.timers.CancelAll()
	d.announce("The discussion is over. Thank you all.")
	return true, nil
}

// RequestPrivateChat asks for a private chat from sender to receiver. It
// returns false with a nil error when sender has no invitations left this
// round. Unknown participants, self invitations (unless allowed) and
// requests outside the invitation phases fail with an error. On success the
// receiver is notified and the chat gets its own sub-session timer.
func (d *Discussion) RequestPrivateChat(sender, receiver string) (bool, error) {
	return d.requestPrivateChat(0, sender, receiver)
}

// requestPrivateChat is RequestPrivateChat bound to round. A request made
// for a round that has since ended is dropped without spending quota. Round
// 0 means the current round.
func (d *Discussion) requestPrivateChat(round int, sender, receiver string) (bool, error) {
	if err := d.checkParticipant("sender", sender); err != nil {
		return false, err
	}
	if err := d.checkParticipant("receiver", receiver); err != nil {
		return false, err
	}
	if !d.started.Load() {
		return false, errors.NewSessionError("session not started", errors.ErrSessionNotStarted).WithGameID(d.GameID())
	}

	c := chat{sender: sender, receiver: receiver}
	remaining, chatNow, err := d.admitChat(round, c)
	if err != nil || remaining < 0 {
		return false, err
	}

	d.sink.SendDirect(d.GameID(), sender, receiver,
		fmt.Sprintf("%s invites you to a private chat.", d.displayName(sender)))
	d.publish(event.NewInvitationSentEvent(d.GameID(), sender, receiver, remaining))
	d.logger.Info("private chat started", "participant_id", sender, "receiver", receiver, "remaining", remaining)

	d.startTimer(privateChatScope(sender, receiver), d.opts.Timings.PrivateChatSession, func() error {
		d.endPrivateChat(sender, receiver)
		return nil
	})
	if chatNow {
		d.dispatchChat(c)
	}
	return true, nil
}

// admitChat checks the phase and spends the sender's invitation while
// holding transitionMu, so no round change lands between the two. It
// returns the sender's remaining invitations, or -1 when the request was
// refused without an error.
func (d *Discussion) admitChat(round int, c chat) (int, bool, error) {
	d.transitionMu.Lock()
	defer d.transitionMu.Unlock()

	current := d.machine.CurrentPhase()
	if current == phase.Ended {
		return -1, false, errors.NewSessionError("session has ended", errors.ErrSessionEnded).WithGameID(d.GameID())
	}
	if round != 0 && round != d.machine.CurrentRound() {
		d.logger.Debug("ignoring invitation from another round",
			"participant_id", c.sender, "receiver", c.receiver, "round", round)
		return -1, false, nil
	}
	if c.sender == c.receiver && !d.opts.AllowSelfInvite {
		d.publish(event.NewInvitationRejectedEvent(d.GameID(), c.sender, c.receiver, "self invitation"))
		return -1, false, errors.NewValidationError("participants cannot invite themselves").
			WithField("receiver").WithValue(c.receiver).WithCause(errors.ErrSelfInvitation)
	}
	if !slices.Contains(d.opts.InvitationPhases, current) {
		d.publish(event.NewInvitationRejectedEvent(d.GameID(), c.sender, c.receiver, "invitations closed"))
		return -1, false, errors.NewSessionError(
			fmt.Sprintf("invitations are not accepted during %s", current), errors.ErrInvitationClosed,
		).WithGameID(d.GameID()).WithSeverity(errors.SeverityWarning)
	}

	if !d.ledger.Invite(c.sender, c.receiver) {
		d.logger.Debug("invitation quota exhausted", "participant_id", c.sender, "receiver", c.receiver)
		d.publish(event.NewInvitationRejectedEvent(d.GameID(), c.sender, c.receiver, "quota exhausted"))
		return -1, false, nil
	}

	now := d.machine.CurrentRound()
	d.mu.Lock()
	d.chats = append(d.chats, c)
	chatNow := d.chatOpen == now
	d.mu.Unlock()
	return d.ledger.Remaining(c.sender), chatNow, nil
}

func (d *Discussion) endPrivateChat(sender, receiver string) {
	moderator := d.session.ModeratorID
	d.sink.SendDirect(d.GameID(), moderator, sender,
		fmt.Sprintf("Your private chat with %s has ended.", d.displayName(receiver)))
	if receiver != sender {
		d.sink.SendDirect(d.GameID(), moderator, receiver,
			fmt.Sprintf("Your private chat with %s has ended.", d.displayName(sender)))
	}
}

// SubmitAnswer records participantID's answer, replacing any earlier one,
// and forwards it to the moderator.
func (d *Discussion) SubmitAnswer(participantID, answer string) error {
	if err := d.session.SubmitAnswer(participantID, answer); err != nil {
		return err
	}
	if mod := d.session.ModeratorID; mod != "" {
		d.sink.SendDirect(d.GameID(), participantID, mod, answer)
	}
	d.publish(event.NewAnswerSubmittedEvent(d.GameID(), participantID, d.machine.CurrentRound()))
	return nil
}

// SendDiscussionMessage broadcasts text from sender to the whole table.
func (d *Discussion) SendDiscussionMessage(sender, text string) error {
	if err := d.checkParticipant("sender", sender); err != nil {
		return err
	}
	if d.machine.IsEnded() {
		return errors.NewSessionError("session has ended", errors.ErrSessionEnded).WithGameID(d.GameID())
	}
	d.say(sender, d.machine.CurrentPhase(), text)
	return nil
}

// SendPrivateChatMessage delivers text from sender to receiver. The two
// must share a private chat accepted in the current round.
func (d *Discussion) SendPrivateChatMessage(sender, receiver, text string) error {
	if err := d.checkParticipant("sender", sender); err != nil {
		return err
	}
	if err := d.checkParticipant("receiver", receiver); err != nil {
		return err
	}
	if !d.hasChat(sender, receiver) {
		return errors.NewValidationError("no private chat between participants").
			WithField("receiver").WithValue(receiver)
	}
	d.whisper(sender, receiver, text)
	return nil
}

// Pause freezes every running timer of the game and holds the statement
// turns where they are. Timers started while paused stay frozen. It
// reports false when the game is not running or already paused.
func (d *Discussion) Pause() bool {
	if !d.started.Load() || d.machine.IsEnded() {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.resumed != nil || d.closed {
		return false
	}
	var paused []string
	for _, scope := range d.timers.Active() {
		if d.timers.PauseTimer(scope) {
			paused = append(paused, scope)
		}
	}
	d.paused = paused
	d.resumed = make(chan struct{})
	d.logger.Info("discussion paused", "timers", len(paused))
	return true
}

// Resume re-arms the timers frozen by Pause and releases the turn loop.
func (d *Discussion) Resume() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.resumed == nil {
		return false
	}
	resumed := 0
	for _, scope := range d.paused {
		if d.timers.ResumeTimer(scope) {
			resumed++
		}
	}
	close(d.resumed)
	d.resumed = nil
	d.paused = nil
	d.logger.Info("discussion resumed", "timers", resumed)
	return true
}

// Snapshot is a point-in-time view of a game.
type Snapshot struct {
	GameID         string
	Phase          phase.Phase
	Round          int
	Speaker        string
	Cursor         int
	PhaseRemaining time.Duration
	Paused         bool
	Participants   []string
	Quotas         []quota.Entry
	Answers        int
	Completed      bool
}

// State returns a snapshot of the game.
func (d *Discussion) State() Snapshot {
	st := d.machine.State()
	d.mu.Lock()
	paused := d.resumed != nil
	d.mu.Unlock()
	return Snapshot{
		GameID:         d.GameID(),
		Phase:          st.Phase,
		Round:          st.Round,
		Speaker:        st.Speaker,
		Cursor:         st.Cursor,
		PhaseRemaining: d.timers.RemainingTime(string(st.Phase)),
		Paused:         paused,
		Participants:   d.session.ParticipantIDs(),
		Quotas:         d.ledger.Snapshot(),
		Answers:        len(d.session.Answers()),
		Completed:      d.session.Completed(),
	}
}

// CurrentPhase returns the phase the game is in.
func (d *Discussion) CurrentPhase() phase.Phase {
	return d.machine.CurrentPhase()
}

// CurrentRound returns the round the game is in.
func (d *Discussion) CurrentRound() int {
	return d.machine.CurrentRound()
}

// History returns every phase transition applied so far.
func (d *Discussion) History() []phase.Transition {
	return d.machine.History()
}

// RemainingInvitations returns participantID's allowance for this round.
func (d *Discussion) RemainingInvitations(participantID string) int {
	return d.ledger.Remaining(participantID)
}

// Invitations returns the receivers participantID invited this round.
func (d *Discussion) Invitations(participantID string) []string {
	return d.ledger.Log(participantID)
}

// Timers returns the scopes of the game's active timers.
func (d *Discussion) Timers() []string {
	return d.timers.Active()
}

func (d *Discussion) statementTask(round int, speaker string) dispatch.Task {
	hint := statementHint(round)
	return dispatch.Task{
		Name:       "statement",
		Phase:      string(phase.Statement),
		PromptHint: hint,
		Run: func(ctx context.Context) error {
			text, err := d.provider.Generate(ctx, d.GameID(), speaker, string(phase.Statement), hint)
			if err != nil {
				return err
			}
			d.say(speaker, phase.Statement, text)
			return nil
		},
	}
}

func (d *Discussion) discussionTask(round int) dispatch.Factory {
	hint := discussionHint(round)
	return func(id string) dispatch.Task {
		return dispatch.Task{
			Name:       "discussion",
			PromptHint: hint,
			Run: func(ctx context.Context) error {
				text, err := d.provider.Generate(ctx, d.GameID(), id, string(phase.FreeDiscussion), hint)
				if err != nil {
					return err
				}
				d.say(id, phase.FreeDiscussion, text)
				return nil
			},
		}
	}
}

func (d *Discussion) decisionTask(round int) dispatch.Factory {
	ids := d.session.ParticipantIDs()
	return func(id string) dispatch.Task {
		return dispatch.Task{
			Phase: string(phase.FreeDiscussion),
			Run: func(ctx context.Context) error {
				remaining := d.ledger.Remaining(id)
				if remaining == 0 {
					return nil
				}
				hint := decisionHint(others(ids, id), remaining)
				text, err := d.provider.Generate(ctx, d.GameID(), id, DecisionPhase, hint)
				if err != nil {
					return err
				}
				receiver := parseInvitee(text, id, ids)
				if receiver == "" {
					return nil
				}
				if _, err := d.requestPrivateChat(round, id, receiver); err != nil {
					d.logFailure("invitation not sent", err, "participant_id", id, "receiver", receiver)
					if errors.IsUserFacing(err) {
						d.sink.SendDirect(d.GameID(), d.session.ModeratorID, id,
							fmt.Sprintf("Your invitation to %s was not sent.", d.displayName(receiver)))
					}
				}
				return nil
			},
		}
	}
}

// dispatchChat starts one message from each side of c.
func (d *Discussion) dispatchChat(c chat) {
	if c.sender == c.receiver {
		return
	}
	for _, pair := range [][2]string{{c.sender, c.receiver}, {c.receiver, c.sender}} {
		from, to := pair[0], pair[1]
		hint := privateChatHint(d.displayName(to))
		d.dispatcher.Dispatch(d.ctx, from, dispatch.Task{
			Name:       "private-chat",
			Phase:      string(phase.PrivateChat),
			PromptHint: hint,
			Run: func(ctx context.Context) error {
				text, err := d.provider.Generate(ctx, d.GameID(), from, string(phase.PrivateChat), hint)
				if err != nil {
					return err
				}
				d.whisper(from, to, text)
				return nil
			},
		})
	}
}

func (d *Discussion) answerTask(round int) dispatch.Factory {
	hint := answerHint(round)
	return func(id string) dispatch.Task {
		return dispatch.Task{
			Name:       "answer",
			PromptHint: hint,
			Run: func(ctx context.Context) error {
				text, err := d.provider.Generate(ctx, d.GameID(), id, string(phase.Answer), hint)
				if err != nil {
					return err
				}
				return d.SubmitAnswer(id, text)
			},
		}
	}
}

func (d *Discussion) hasChat(a, b string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.chats {
		if (c.sender == a && c.receiver == b) || (c.sender == b && c.receiver == a) {
			return true
		}
	}
	return false
}

func (d *Discussion) checkParticipant(field, id string) error {
	if d.session.HasParticipant(id) {
		return nil
	}
	return errors.NewValidationError("unknown participant").
		WithField(field).WithValue(id).WithCause(errors.ErrUnknownParticipant)
}

func (d *Discussion) say(sender string, p phase.Phase, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	d.sink.Broadcast(d.GameID(), fmt.Sprintf("%s: %s", d.displayName(sender), text), d.recipients())
	d.publish(event.NewMessageSentEvent(d.GameID(), sender, "", string(p), text))
}

func (d *Discussion) whisper(sender, receiver, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	d.sink.SendDirect(d.GameID(), sender, receiver, text)
	d.publish(event.NewMessageSentEvent(d.GameID(), sender, receiver, string(phase.PrivateChat), text))
}

func (d *Discussion) announce(text string) {
	d.sink.Broadcast(d.GameID(), text, d.recipients())
}

func (d *Discussion) announcePhase(p phase.Phase, round int) {
	var text string
	switch p {
	case phase.Statement:
		text = fmt.Sprintf("Round %d begins. Each participant will make a statement in turn.", round)
	case phase.FreeDiscussion:
		text = fmt.Sprintf("Round %d free discussion is open. You may invite others to private chats.", round)
	case phase.PrivateChat:
		text = fmt.Sprintf("Round %d private chats are open.", round)
	case phase.Answer:
		text = fmt.Sprintf("Round %d answers: send your answer to the moderator.", round)
	default:
		return
	}
	d.announce(text)
}

// recipients returns every participant followed by the moderator.
func (d *Discussion) recipients() []string {
	ids := d.session.ParticipantIDs()
	if mod := d.session.ModeratorID; mod != "" {
		ids = append(ids, mod)
	}
	return ids
}

func (d *Discussion) displayName(id string) string {
	if d.directory == nil {
		return PlaceholderName(id)
	}
	name, err := d.directory.DisplayName(id)
	if err != nil || name == "" {
		return PlaceholderName(id)
	}
	return name
}

func (d *Discussion) resetRound(ids []string) {
	d.ledger.ResetForNewRound(ids)
	d.mu.Lock()
	d.chats = nil
	d.mu.Unlock()
}

func (d *Discussion) phaseChanged(t phase.Transition) {
	d.session.SetRound(t.Round)
	d.publish(event.NewPhaseChangedEvent(d.GameID(), string(t.From), string(t.To), t.Round, t.Reason))
}

func (d *Discussion) taskFailed(t dispatch.Task, err error) {
	d.logFailure("participant task failed", err,
		"participant_id", t.ParticipantID,
		"task", t.Name,
		"phase", t.Phase,
	)
	d.publish(event.NewTaskFailedEvent(d.GameID(), t.ParticipantID, t.Phase, err))
}

// logFailure logs err at the level its severity calls for.
func (d *Discussion) logFailure(msg string, err error, args ...any) {
	args = append(args, "error", err)
	switch errors.GetSeverity(err) {
	case errors.SeverityCritical, errors.SeverityError:
		d.logger.Error(msg, args...)
	case errors.SeverityWarning:
		d.logger.Warn(msg, args...)
	case errors.SeverityInfo:
		d.logger.Info(msg, args...)
	default:
		d.logger.Debug(msg, args...)
	}
}

func (d *Discussion) publish(e event.Event) {
	if d.bus != nil {
		d.bus.Publish(e)
	}
}

func turnScope(participantID string) string {
	return "TURN:" + participantID
}

func privateChatScope(sender, receiver string) string {
	return fmt.Sprintf("PRIVATE_CHAT:%s:%s", sender, receiver)
}

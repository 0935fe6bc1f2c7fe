// Package event provides a pub-sub event bus that lets the orchestrator
// report what happens in a game without knowing who listens.
//
// The orchestrator publishes; the TUI, the metrics collector and the
// websocket hub subscribe. Events carry the game ID so a single [Bus] can
// serve every game in the process, and [Bus.SubscribeGame] filters by game.
//
// # Event Categories
//
// Session: [SessionStartedEvent], [SessionCompletedEvent].
//
// Phases and turns: [PhaseChangedEvent], [TurnStartedEvent].
//
// Messages and invitations: [MessageSentEvent], [InvitationSentEvent],
// [InvitationRejectedEvent].
//
// Answers, failures and timers: [AnswerSubmittedEvent], [TaskFailedEvent],
// [TimerExpiredEvent].
//
// # Thread Safety
//
// The [Bus] type is safe for concurrent use. Handlers are called
// synchronously on the publishing goroutine and are protected from each
// other's panics.
package event

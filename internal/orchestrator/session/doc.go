// Package session holds the per-game record of a discussion: who takes
// part, who moderates, the answers submitted so far and whether the game
// has been finalized.
//
// A [Session] is created once per game and is exclusive to that game. Its
// completion flag flips from false to true exactly once, at which point
// the channel returned by [Session.Done] is closed.
package session

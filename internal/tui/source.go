package tui

import (
	"github.com/roundtable-games/roundtable/internal/orchestrator"
)

// Game is the view of one running game.
type Game interface {
	State() orchestrator.Snapshot
	Pause() bool
	Resume() bool
}

// Source lists the games to display.
type Source interface {
	Games() []string
	Lookup(gameID string) (Game, bool)
}

// RegistrySource adapts an orchestrator registry.
type RegistrySource struct {
	Registry *orchestrator.Registry
}

// Games returns the registered game ids.
func (s RegistrySource) Games() []string {
	return s.Registry.Games()
}

// Lookup returns the discussion for gameID.
func (s RegistrySource) Lookup(gameID string) (Game, bool) {
	d, err := s.Registry.Get(gameID)
	if err != nil {
		return nil, false
	}
	return d, true
}

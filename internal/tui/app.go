// Package tui renders a live terminal view of running discussion games.
package tui

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/roundtable-games/roundtable/internal/event"
)

// App wraps the Bubbletea program
type App struct {
	program *tea.Program
	model   Model
	bus     *event.Bus
}

// New creates a new TUI application over source. Events published on bus
// appear in the activity log.
func New(source Source, bus *event.Bus, opts Options) *App {
	return &App{
		model: NewModel(source, opts),
		bus:   bus,
	}
}

// Run starts the TUI application and blocks until the user quits, every
// game completes (with Options.ExitWhenDone) or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.program = tea.NewProgram(
		a.model,
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			a.program.Send(tea.Quit())
		case <-ctx.Done():
		}
	}()

	if a.bus != nil {
		id := a.bus.SubscribeAll(func(e event.Event) {
			a.program.Send(eventMsg{event: e})
		})
		defer a.bus.Unsubscribe(id)
	}

	_, err := a.program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

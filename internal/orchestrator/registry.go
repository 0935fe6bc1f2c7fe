package orchestrator

import (
	"context"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/roundtable-games/roundtable/internal/errors"
	"github.com/roundtable-games/roundtable/internal/logging"
	"github.com/roundtable-games/roundtable/internal/orchestrator/completion"
	"github.com/roundtable-games/roundtable/internal/orchestrator/dispatch"
	"github.com/roundtable-games/roundtable/internal/orchestrator/session"
)

// Registry owns the active discussions of the process, keyed by game id.
// Every discussion shares the registry's worker pool.
type Registry struct {
	pool   *dispatch.Pool
	deps   Deps
	opts   Options
	logger *logging.Logger

	mu         sync.RWMutex
	games      map[string]*Discussion
	onComplete []completion.Callback
}

// NewRegistry creates an empty registry. Discussions it creates use deps
// and opts.
func NewRegistry(pool *dispatch.Pool, deps Deps, opts Options) *Registry {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Registry{
		pool:   pool,
		deps:   deps,
		opts:   opts,
		logger: logger.WithPhase("registry"),
		games:  make(map[string]*Discussion),
	}
}

// OnComplete registers a callback attached to every discussion created
// afterwards.
func (r *Registry) OnComplete(cb completion.Callback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onComplete = append(r.onComplete, cb)
}

// Create registers a new discussion for gameID. It fails with
// ErrSessionExists when the id is taken.
func (r *Registry) Create(gameID string, participantIDs []string, moderatorID string) (*Discussion, error) {
	s, err := session.New(gameID, participantIDs, moderatorID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.games[gameID]; ok {
		return nil, errors.NewAlreadyExistsError("session", gameID).WithCause(errors.ErrSessionExists)
	}

	d := NewDiscussion(s, r.pool, r.deps, r.opts)
	for _, cb := range r.onComplete {
		d.OnComplete(cb)
	}
	r.games[gameID] = d
	r.logger.Info("session created", "game_id", gameID, "participants", len(participantIDs))
	return d, nil
}

// Get returns the discussion for gameID or ErrSessionNotFound.
func (r *Registry) Get(gameID string) (*Discussion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.games[gameID]
	if !ok {
		return nil, errors.NewNotFoundError("session", gameID).WithCause(errors.ErrSessionNotFound)
	}
	return d, nil
}

// Destroy closes and removes the discussion for gameID.
func (r *Registry) Destroy(gameID string) error {
	r.mu.Lock()
	d, ok := r.games[gameID]
	delete(r.games, gameID)
	r.mu.Unlock()

	if !ok {
		return errors.NewNotFoundError("session", gameID).WithCause(errors.ErrSessionNotFound)
	}
	d.Close()
	r.logger.Info("session destroyed", "game_id", gameID, "completed", d.Session().Completed())
	return nil
}

// Len returns the number of registered discussions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.games)
}

// Games returns the registered game ids, sorted.
func (r *Registry) Games() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.games))
	for id := range r.games {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Shutdown closes every discussion concurrently and empties the registry.
// It returns ctx.Err() if ctx ends before all of them stopped.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	games := r.games
	r.games = make(map[string]*Discussion)
	r.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		var g errgroup.Group
		for _, d := range games {
			g.Go(func() error {
				d.Close()
				return nil
			})
		}
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		r.logger.Info("registry shut down", "sessions", len(games))
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

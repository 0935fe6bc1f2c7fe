// Package timer provides a registry of named, single-shot countdown timers
// that can be cancelled, paused and resumed.
//
// Each timer is identified by a scope string such as "STATEMENT" or
// "PRIVATE_CHAT:alice:bob". At most one timer is active per scope: starting
// a timer for a scope that already has one cancels the old one first.
// Expiry callbacks run on their own goroutine; an error or panic inside a
// callback is logged and never reaches the caller or other timers.
package timer

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sourcegraph/conc/panics"

	"github.com/roundtable-games/roundtable/internal/logging"
)

// Callback is invoked once when a timer expires.
type Callback func() error

// Handle is a point-in-time view of a registered timer.
type Handle struct {
	Scope     string
	Duration  time.Duration
	StartedAt time.Time
	Remaining time.Duration
	Running   bool
}

// Callbacks observe timer activity. All fields are optional.
type Callbacks struct {
	// OnExpire is called before the expiry callback of a timer runs.
	OnExpire func(scope string)
	// OnCallbackError is called when an expiry callback returns an error or panics.
	OnCallbackError func(scope string, err error)
}

type entry struct {
	scope     string
	total     time.Duration
	startedAt time.Time

	// armedAt and armedFor describe the current countdown. After a resume
	// armedFor is the remaining time recorded at pause.
	armedAt  time.Time
	armedFor time.Duration

	remaining time.Duration // valid while paused
	running   bool
	gen       uint64
	t         *time.Timer
	onExpire  Callback
}

func (e *entry) remainingAt(now time.Time) time.Duration {
	if !e.running {
		return e.remaining
	}
	left := e.armedFor - now.Sub(e.armedAt)
	if left < 0 {
		return 0
	}
	return left
}

func (e *entry) handle(now time.Time) Handle {
	return Handle{
		Scope:     e.scope,
		Duration:  e.total,
		StartedAt: e.startedAt,
		Remaining: e.remainingAt(now),
		Running:   e.running,
	}
}

// Registry holds the active timers of one game session.
type Registry struct {
	mu        sync.Mutex
	entries   map[string]*entry
	gen       uint64
	closed    bool
	callbacks Callbacks
	logger    *logging.Logger
}

// NewRegistry creates an empty timer registry.
func NewRegistry(callbacks Callbacks, logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Registry{
		entries:   make(map[string]*entry),
		callbacks: callbacks,
		logger:    logger.WithPhase("timer-registry"),
	}
}

// StartTimer registers a one-shot timer for scope. Any existing timer for the
// same scope is cancelled first and will never fire. A non-positive duration
// fires as soon as possible. After Close, StartTimer is a no-op and the
// returned Handle is zero.
func (r *Registry) StartTimer(scope string, d time.Duration, onExpire Callback) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		r.logger.Debug("timer registry closed, ignoring start", "scope", scope)
		return Handle{}
	}

	if old, ok := r.entries[scope]; ok {
		r.stopLocked(old)
		delete(r.entries, scope)
		r.logger.Debug("timer superseded", "scope", scope)
	}

	if d < 0 {
		d = 0
	}
	now := time.Now()
	e := &entry{
		scope:     scope,
		total:     d,
		startedAt: now,
		armedAt:   now,
		armedFor:  d,
		running:   true,
		onExpire:  onExpire,
	}
	r.armLocked(e, d)
	r.entries[scope] = e

	r.logger.Debug("timer started", "scope", scope, "duration", d)
	return e.handle(now)
}

// CancelTimer stops and removes the timer for scope. It is a no-op when no
// timer exists and reports whether one was removed.
func (r *Registry) CancelTimer(scope string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[scope]
	if !ok {
		return false
	}
	r.stopLocked(e)
	delete(r.entries, scope)
	r.logger.Debug("timer cancelled", "scope", scope)
	return true
}

// PauseTimer freezes the countdown of scope and records the remaining time.
// Pausing an absent or already paused timer is a no-op.
func (r *Registry) PauseTimer(scope string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[scope]
	if !ok || !e.running {
		return false
	}
	e.remaining = e.remainingAt(time.Now())
	r.stopLocked(e)
	e.running = false
	r.logger.Debug("timer paused", "scope", scope, "remaining", e.remaining)
	return true
}

// ResumeTimer re-arms a paused timer with its recorded remaining time and
// the callback it was started with. A timer with nothing left fires
// immediately. Resuming an absent or running timer is a no-op.
func (r *Registry) ResumeTimer(scope string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[scope]
	if !ok || e.running || r.closed {
		return false
	}
	e.armedAt = time.Now()
	e.armedFor = e.remaining
	e.running = true
	r.armLocked(e, e.remaining)
	r.logger.Debug("timer resumed", "scope", scope, "remaining", e.remaining)
	return true
}

// RemainingTime returns the time left on scope, or 0 if there is no timer.
func (r *Registry) RemainingTime(scope string) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[scope]
	if !ok {
		return 0
	}
	return e.remainingAt(time.Now())
}

// Get returns a snapshot of the timer for scope.
func (r *Registry) Get(scope string) (Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[scope]
	if !ok {
		return Handle{}, false
	}
	return e.handle(time.Now()), true
}

// Active returns the scopes of all registered timers, sorted.
func (r *Registry) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	scopes := make([]string, 0, len(r.entries))
	for scope := range r.entries {
		scopes = append(scopes, scope)
	}
	sort.Strings(scopes)
	return scopes
}

// CancelAll stops and removes every timer.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelAllLocked()
}

// Close cancels every timer and rejects future starts.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.cancelAllLocked()
}

func (r *Registry) cancelAllLocked() {
	for scope, e := range r.entries {
		r.stopLocked(e)
		delete(r.entries, scope)
	}
}

// armLocked schedules e to fire after d under a fresh generation. A fire
// carrying an older generation is ignored, which covers the window where
// time.Timer.Stop loses the race with an already scheduled callback.
func (r *Registry) armLocked(e *entry, d time.Duration) {
	r.gen++
	gen := r.gen
	e.gen = gen
	scope := e.scope
	e.t = time.AfterFunc(d, func() { r.fire(scope, gen) })
}

func (r *Registry) stopLocked(e *entry) {
	if e.t != nil {
		e.t.Stop()
	}
	r.gen++
	e.gen = r.gen
}

func (r *Registry) fire(scope string, gen uint64) {
	r.mu.Lock()
	e, ok := r.entries[scope]
	if !ok || e.gen != gen || !e.running {
		r.mu.Unlock()
		return
	}
	delete(r.entries, scope)
	cb := e.onExpire
	r.mu.Unlock()

	r.logger.Debug("timer expired", "scope", scope)
	if r.callbacks.OnExpire != nil {
		r.callbacks.OnExpire(scope)
	}
	if cb == nil {
		return
	}

	var err error
	var pc panics.Catcher
	pc.Try(func() { err = cb() })
	if rec := pc.Recovered(); rec != nil {
		err = fmt.Errorf("timer callback panicked: %v", rec.Value)
		r.logger.Error("timer callback panicked",
			"scope", scope,
			"panic", fmt.Sprint(rec.Value),
			"stack", string(rec.Stack),
		)
	} else if err != nil {
		r.logger.Warn("timer callback failed", "scope", scope, "error", err)
	}
	if err != nil && r.callbacks.OnCallbackError != nil {
		r.callbacks.OnCallbackError(scope, err)
	}
}

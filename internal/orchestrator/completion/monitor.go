// Package completion watches a discussion session until it is finalized and
// performs the one-time finalization itself.
package completion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc/panics"

	"github.com/roundtable-games/roundtable/internal/logging"
	"github.com/roundtable-games/roundtable/internal/orchestrator/session"
)

// DefaultPollInterval is the heartbeat used when none is given.
const DefaultPollInterval = 60 * time.Second

// Callback receives the summary of a finalized session.
type Callback func(session.Summary)

// Monitor finalizes sessions and lets callers wait for completion.
type Monitor struct {
	mu        sync.Mutex
	callbacks []Callback
	logger    *logging.Logger
}

// NewMonitor creates a monitor. A nil logger discards output.
func NewMonitor(logger *logging.Logger) *Monitor {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Monitor{logger: logger.WithPhase("completion-monitor")}
}

// OnFinalize registers a callback run once per finalized session, in
// registration order. A panicking callback is logged and skipped.
func (m *Monitor) OnFinalize(cb Callback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

// Finalize stamps the end time, marks s completed and notifies callbacks.
// Only the first call for a session does anything; it returns true.
func (m *Monitor) Finalize(s *session.Session) bool {
	if !s.MarkCompleted(time.Now()) {
		return false
	}

	summary := s.Summary()
	m.logger.Info("session finalized",
		"game_id", summary.GameID,
		"answers", len(summary.Answers),
		"missing", len(summary.Missing()),
		"duration", summary.Duration(),
	)

	m.mu.Lock()
	callbacks := make([]Callback, len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.mu.Unlock()

	for _, cb := range callbacks {
		var pc panics.Catcher
		pc.Try(func() { cb(summary) })
		if rec := pc.Recovered(); rec != nil {
			m.logger.Error("finalize callback panicked",
				"game_id", summary.GameID,
				"panic", fmt.Sprint(rec.Value),
			)
		}
	}
	return true
}

// WatchUntilComplete blocks until s completes or ctx is done. Completion is
// observed through s.Done(); the poll interval is a heartbeat that logs
// progress and re-checks the completed flag. It returns ctx.Err() when the
// context ends first.
func (m *Monitor) WatchUntilComplete(ctx context.Context, s *session.Session, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	logger := m.logger.WithGame(s.GameID)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.Done():
			logger.Debug("completion observed")
			return nil
		case <-ticker.C:
			if s.Completed() {
				return nil
			}
			logger.Debug("session still active", "answers", len(s.Answers()))
		case <-ctx.Done():
			logger.Debug("completion watch cancelled", "error", ctx.Err())
			return ctx.Err()
		}
	}
}

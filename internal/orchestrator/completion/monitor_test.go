package completion

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/roundtable-games/roundtable/internal/orchestrator/session"
)

func newSession(t *testing.T) *session.Session {
	t.Helper()
	s, err := session.New("game-1", []string{"a", "b"}, "dm")
	if err != nil {
		t.Fatalf("session.New() error = %v", err)
	}
	s.MarkStarted(time.Now())
	return s
}

func TestFinalize_Once(t *testing.T) {
	m := NewMonitor(nil)
	s := newSession(t)
	_ = s.SubmitAnswer("a", "answer")

	var calls atomic.Int32
	var got session.Summary
	m.OnFinalize(func(sum session.Summary) {
		calls.Add(1)
		got = sum
	})

	if !m.Finalize(s) {
		t.Fatal("first Finalize() should return true")
	}
	if m.Finalize(s) {
		t.Error("second Finalize() should return false")
	}

	if calls.Load() != 1 {
		t.Errorf("callback ran %d times, want 1", calls.Load())
	}
	if !got.Completed || got.EndTime.IsZero() {
		t.Errorf("summary not finalized: %+v", got)
	}
	if got.Answers["a"] != "answer" {
		t.Errorf("summary answers = %v", got.Answers)
	}
	if !s.Completed() {
		t.Error("session should be completed")
	}
}

func TestFinalize_ConcurrentCallersRunCallbacksOnce(t *testing.T) {
	m := NewMonitor(nil)
	s := newSession(t)

	var calls atomic.Int32
	m.OnFinalize(func(session.Summary) { calls.Add(1) })

	var wg sync.WaitGroup
	for range 16 {
		wg.Go(func() { m.Finalize(s) })
	}
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("callback ran %d times, want 1", calls.Load())
	}
}

func TestFinalize_PanickingCallbackIsContained(t *testing.T) {
	m := NewMonitor(nil)
	s := newSession(t)

	var second atomic.Bool
	m.OnFinalize(func(session.Summary) { panic("boom") })
	m.OnFinalize(func(session.Summary) { second.Store(true) })

	m.Finalize(s)
	if !second.Load() {
		t.Error("callbacks after a panicking one should still run")
	}
}

func TestWatchUntilComplete_ReturnsOnCompletion(t *testing.T) {
	m := NewMonitor(nil)
	s := newSession(t)

	errCh := make(chan error, 1)
	go func() {
		errCh <- m.WatchUntilComplete(context.Background(), s, time.Hour)
	}()

	time.Sleep(10 * time.Millisecond)
	m.Finalize(s)

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("WatchUntilComplete() error = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WatchUntilComplete did not return after completion")
	}
}

func TestWatchUntilComplete_AlreadyComplete(t *testing.T) {
	m := NewMonitor(nil)
	s := newSession(t)
	m.Finalize(s)

	if err := m.WatchUntilComplete(context.Background(), s, 0); err != nil {
		t.Errorf("WatchUntilComplete() error = %v, want nil", err)
	}
}

func TestWatchUntilComplete_ContextCancelled(t *testing.T) {
	m := NewMonitor(nil)
	s := newSession(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := m.WatchUntilComplete(ctx, s, 5*time.Millisecond)
	if err != context.DeadlineExceeded {
		t.Errorf("WatchUntilComplete() error = %v, want DeadlineExceeded", err)
	}
	if s.Completed() {
		t.Error("cancelling the watch must not complete the session")
	}
}

package timer

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestStartTimer_Fires(t *testing.T) {
	r := NewRegistry(Callbacks{}, nil)

	var fired atomic.Int32
	h := r.StartTimer("STATEMENT", 20*time.Millisecond, func() error {
		fired.Add(1)
		return nil
	})

	if h.Scope != "STATEMENT" || !h.Running || h.Duration != 20*time.Millisecond {
		t.Errorf("unexpected handle: %+v", h)
	}

	waitFor(t, time.Second, func() bool { return fired.Load() == 1 })

	if _, ok := r.Get("STATEMENT"); ok {
		t.Error("fired timer should be removed from the registry")
	}
	time.Sleep(30 * time.Millisecond)
	if fired.Load() != 1 {
		t.Errorf("callback ran %d times, want exactly 1", fired.Load())
	}
}

func TestStartTimer_SupersededNeverFires(t *testing.T) {
	r := NewRegistry(Callbacks{}, nil)

	var first, second atomic.Int32
	r.StartTimer("FREE_DISCUSSION", 20*time.Millisecond, func() error {
		first.Add(1)
		return nil
	})
	r.StartTimer("FREE_DISCUSSION", 40*time.Millisecond, func() error {
		second.Add(1)
		return nil
	})

	if got := r.Active(); len(got) != 1 {
		t.Fatalf("Active() = %v, want one scope", got)
	}

	waitFor(t, time.Second, func() bool { return second.Load() == 1 })
	time.Sleep(30 * time.Millisecond)

	if first.Load() != 0 {
		t.Errorf("superseded callback ran %d times, want 0", first.Load())
	}
}

func TestCancelTimer(t *testing.T) {
	r := NewRegistry(Callbacks{}, nil)

	var fired atomic.Bool
	r.StartTimer("ANSWER", 20*time.Millisecond, func() error {
		fired.Store(true)
		return nil
	})

	if !r.CancelTimer("ANSWER") {
		t.Error("CancelTimer should report removal")
	}
	if r.CancelTimer("ANSWER") {
		t.Error("second CancelTimer should be a no-op")
	}
	if r.CancelTimer("missing") {
		t.Error("CancelTimer of an unknown scope should be a no-op")
	}

	time.Sleep(50 * time.Millisecond)
	if fired.Load() {
		t.Error("cancelled timer fired")
	}
	if r.RemainingTime("ANSWER") != 0 {
		t.Error("RemainingTime of a cancelled timer should be 0")
	}
}

func TestPauseResume_PreservesCallback(t *testing.T) {
	r := NewRegistry(Callbacks{}, nil)

	var firedAt atomic.Int64
	start := time.Now()
	r.StartTimer("PRIVATE_CHAT", 100*time.Millisecond, func() error {
		firedAt.Store(int64(time.Since(start)))
		return nil
	})

	time.Sleep(30 * time.Millisecond)
	if !r.PauseTimer("PRIVATE_CHAT") {
		t.Fatal("PauseTimer should succeed on a running timer")
	}
	if r.PauseTimer("PRIVATE_CHAT") {
		t.Error("second PauseTimer should be a no-op")
	}

	remaining := r.RemainingTime("PRIVATE_CHAT")
	if remaining <= 0 || remaining > 75*time.Millisecond {
		t.Fatalf("RemainingTime after pause = %v, want in (0, 75ms]", remaining)
	}

	h, ok := r.Get("PRIVATE_CHAT")
	if !ok || h.Running {
		t.Fatalf("Get() = %+v, %v; want paused handle", h, ok)
	}

	// The frozen countdown must not move while paused.
	time.Sleep(80 * time.Millisecond)
	if firedAt.Load() != 0 {
		t.Fatal("paused timer fired")
	}
	if got := r.RemainingTime("PRIVATE_CHAT"); got != remaining {
		t.Errorf("RemainingTime while paused = %v, want %v", got, remaining)
	}

	resumedAt := time.Since(start)
	if !r.ResumeTimer("PRIVATE_CHAT") {
		t.Fatal("ResumeTimer should succeed on a paused timer")
	}
	if r.ResumeTimer("PRIVATE_CHAT") {
		t.Error("ResumeTimer on a running timer should be a no-op")
	}

	waitFor(t, time.Second, func() bool { return firedAt.Load() != 0 })

	elapsedAfterResume := time.Duration(firedAt.Load()) - resumedAt
	if elapsedAfterResume < remaining-10*time.Millisecond {
		t.Errorf("fired %v after resume, want about %v", elapsedAfterResume, remaining)
	}
}

func TestResumeTimer_NothingLeftFiresImmediately(t *testing.T) {
	r := NewRegistry(Callbacks{}, nil)

	var fired atomic.Bool
	r.StartTimer("TURN:alice", 0, func() error {
		fired.Store(true)
		return nil
	})
	// Pausing may race with the zero-length timer; only check the
	// resume path when the pause won.
	if r.PauseTimer("TURN:alice") {
		if r.RemainingTime("TURN:alice") != 0 {
			t.Errorf("RemainingTime = %v, want 0", r.RemainingTime("TURN:alice"))
		}
		r.ResumeTimer("TURN:alice")
	}
	waitFor(t, time.Second, fired.Load)
}

func TestCallbackErrorsAndPanicsAreContained(t *testing.T) {
	var mu sync.Mutex
	var failures []string
	r := NewRegistry(Callbacks{
		OnCallbackError: func(scope string, err error) {
			mu.Lock()
			failures = append(failures, scope)
			mu.Unlock()
		},
	}, nil)

	var ok atomic.Bool
	r.StartTimer("a", 5*time.Millisecond, func() error { return errors.New("boom") })
	r.StartTimer("b", 5*time.Millisecond, func() error { panic("kaboom") })
	r.StartTimer("c", 15*time.Millisecond, func() error {
		ok.Store(true)
		return nil
	})

	waitFor(t, time.Second, ok.Load)
	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(failures) == 2
	})
}

func TestOnExpireHook(t *testing.T) {
	var got atomic.Value
	r := NewRegistry(Callbacks{
		OnExpire: func(scope string) { got.Store(scope) },
	}, nil)

	r.StartTimer("STATEMENT", time.Millisecond, nil)
	waitFor(t, time.Second, func() bool { return got.Load() == "STATEMENT" })
}

func TestRemainingTime(t *testing.T) {
	r := NewRegistry(Callbacks{}, nil)

	if r.RemainingTime("none") != 0 {
		t.Error("RemainingTime of an absent scope should be 0")
	}

	r.StartTimer("STATEMENT", time.Hour, func() error { return nil })
	defer r.CancelAll()

	got := r.RemainingTime("STATEMENT")
	if got <= 59*time.Minute || got > time.Hour {
		t.Errorf("RemainingTime = %v, want just under 1h", got)
	}
}

func TestActiveAndCancelAll(t *testing.T) {
	r := NewRegistry(Callbacks{}, nil)

	r.StartTimer("b", time.Hour, nil)
	r.StartTimer("a", time.Hour, nil)
	r.StartTimer("PRIVATE_CHAT:x:y", time.Hour, nil)

	got := r.Active()
	want := []string{"PRIVATE_CHAT:x:y", "a", "b"}
	if len(got) != len(want) {
		t.Fatalf("Active() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Active()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	r.CancelAll()
	if len(r.Active()) != 0 {
		t.Errorf("Active() after CancelAll = %v, want empty", r.Active())
	}
}

func TestClose_RejectsNewTimers(t *testing.T) {
	r := NewRegistry(Callbacks{}, nil)

	var fired atomic.Bool
	r.StartTimer("a", 10*time.Millisecond, func() error {
		fired.Store(true)
		return nil
	})
	r.Close()

	h := r.StartTimer("b", time.Millisecond, func() error {
		fired.Store(true)
		return nil
	})
	if h.Scope != "" {
		t.Errorf("StartTimer after Close returned %+v, want zero handle", h)
	}

	time.Sleep(40 * time.Millisecond)
	if fired.Load() {
		t.Error("no timer should fire after Close")
	}
}

func TestConcurrentStartCancel(t *testing.T) {
	r := NewRegistry(Callbacks{}, nil)

	var fired atomic.Int32
	var wg sync.WaitGroup
	for range 50 {
		wg.Go(func() {
			r.StartTimer("STATEMENT", 30*time.Millisecond, func() error {
				fired.Add(1)
				return nil
			})
		})
	}
	wg.Wait()

	waitFor(t, time.Second, func() bool { return fired.Load() == 1 })
	time.Sleep(50 * time.Millisecond)
	if fired.Load() != 1 {
		t.Errorf("only the last registration may fire, got %d fires", fired.Load())
	}
}

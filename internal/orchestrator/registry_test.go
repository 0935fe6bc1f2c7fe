package orchestrator

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	rterrors "github.com/roundtable-games/roundtable/internal/errors"
	"github.com/roundtable-games/roundtable/internal/orchestrator/dispatch"
	"github.com/roundtable-games/roundtable/internal/orchestrator/session"
)

func newTestRegistry(t *testing.T, timings Timings) *Registry {
	t.Helper()
	pool := dispatch.NewPool(dispatch.PoolConfig{Workers: 4}, dispatch.Callbacks{}, nil)
	t.Cleanup(pool.Close)
	r := NewRegistry(pool, Deps{Provider: newMockProvider(), Sink: &recordingSink{}}, Options{Timings: timings})
	t.Cleanup(func() { _ = r.Shutdown(context.Background()) })
	return r
}

func TestRegistry_CreateGetDestroy(t *testing.T) {
	r := newTestRegistry(t, longTimings())

	d, err := r.Create("g1", []string{"A", "B"}, "mod")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := r.Create("g1", []string{"C"}, ""); !errors.Is(err, rterrors.ErrSessionExists) {
		t.Errorf("duplicate Create() error = %v, want ErrSessionExists", err)
	}
	if _, err := r.Create("", []string{"A"}, ""); !errors.Is(err, rterrors.ErrInvalidInput) {
		t.Errorf("Create() with empty id error = %v, want ErrInvalidInput", err)
	}

	got, err := r.Get("g1")
	if err != nil || got != d {
		t.Errorf("Get() = %p, %v, want %p", got, err, d)
	}
	if _, err := r.Get("missing"); !errors.Is(err, rterrors.ErrSessionNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrSessionNotFound", err)
	}

	if err := r.Destroy("g1"); err != nil {
		t.Fatalf("Destroy() error = %v", err)
	}
	if err := r.Destroy("g1"); !errors.Is(err, rterrors.ErrSessionNotFound) {
		t.Errorf("second Destroy() error = %v, want ErrSessionNotFound", err)
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestRegistry_GamesAreIndependent(t *testing.T) {
	r := newTestRegistry(t, longTimings())

	a, _ := r.Create("a", []string{"A", "B"}, "")
	b, _ := r.Create("b", []string{"A", "B"}, "")
	if err := a.StartSession(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := b.StartSession(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "free discussion", time.Second, func() bool {
		return a.CurrentPhase() == "FREE_DISCUSSION" && b.CurrentPhase() == "FREE_DISCUSSION"
	})

	if ok, _ := a.RequestPrivateChat("A", "B"); !ok {
		t.Fatal("invitation rejected")
	}
	if got := b.RemainingInvitations("A"); got != 2 {
		t.Errorf("game b quota changed by game a: %d", got)
	}
	if got := r.Games(); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("Games() = %v", got)
	}
}

func TestRegistry_OnComplete(t *testing.T) {
	timings := Timings{
		Statement:          time.Second,
		Turn:               time.Second,
		FreeDiscussion:     10 * time.Millisecond,
		PrivateChat:        10 * time.Millisecond,
		Answer:             30 * time.Millisecond,
		PrivateChatSession: 10 * time.Millisecond,
		MonitorPoll:        10 * time.Millisecond,
	}
	r := newTestRegistry(t, timings)

	var completed atomic.Int32
	r.OnComplete(func(s session.Summary) {
		if s.GameID == "g" {
			completed.Add(1)
		}
	})

	d, err := r.Create("g", []string{"A", "B"}, "mod")
	if err != nil {
		t.Fatal(err)
	}
	if err := d.StartSession(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	waitFor(t, "completion callback", time.Second, func() bool { return completed.Load() == 1 })
}

func TestRegistry_Shutdown(t *testing.T) {
	r := newTestRegistry(t, longTimings())
	for _, id := range []string{"a", "b", "c"} {
		d, err := r.Create(id, []string{"A"}, "")
		if err != nil {
			t.Fatal(err)
		}
		if err := d.StartSession(context.Background()); err != nil {
			t.Fatal(err)
		}
	}

	if err := r.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("Len() after Shutdown = %d", r.Len())
	}
}

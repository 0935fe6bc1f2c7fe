package quota

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/roundtable-games/roundtable/internal/errors"
)

func TestInitialize(t *testing.T) {
	l := New(MaxPrivateChats, nil)
	l.Initialize([]string{"A", "B"})

	for _, id := range []string{"A", "B"} {
		if got := l.Remaining(id); got != 2 {
			t.Errorf("Remaining(%q) = %d, want 2", id, got)
		}
		if got := l.Log(id); len(got) != 0 {
			t.Errorf("Log(%q) = %v, want empty", id, got)
		}
	}
	if got := l.Remaining("stranger"); got != 0 {
		t.Errorf("Remaining(unknown) = %d, want 0", got)
	}
}

func TestNew_NegativeLimitUsesDefault(t *testing.T) {
	if got := New(-1, nil).Limit(); got != MaxPrivateChats {
		t.Errorf("Limit() = %d, want %d", got, MaxPrivateChats)
	}
	if got := New(0, nil).Limit(); got != 0 {
		t.Errorf("Limit() = %d, want 0", got)
	}
}

func TestTryConsume(t *testing.T) {
	l := New(MaxPrivateChats, nil)
	l.Initialize([]string{"A"})

	tests := []struct {
		name          string
		want          bool
		wantRemaining int
	}{
		{"first", true, 1},
		{"second", true, 0},
		{"exhausted", false, 0},
		{"still exhausted", false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := l.TryConsume("A"); got != tt.want {
				t.Errorf("TryConsume() = %v, want %v", got, tt.want)
			}
			if got := l.Remaining("A"); got != tt.wantRemaining {
				t.Errorf("Remaining() = %d, want %d", got, tt.wantRemaining)
			}
		})
	}

	if l.TryConsume("unknown") {
		t.Error("TryConsume for an unknown participant should fail")
	}
}

func TestRecord(t *testing.T) {
	l := New(MaxPrivateChats, nil)
	l.Initialize([]string{"A"})

	if err := l.Record("A", "B"); !errors.Is(err, errors.ErrQuotaNotConsumed) {
		t.Errorf("Record without TryConsume error = %v, want ErrQuotaNotConsumed", err)
	}

	if !l.TryConsume("A") {
		t.Fatal("TryConsume should succeed")
	}
	if err := l.Record("A", "B"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := l.Record("A", "C"); !errors.Is(err, errors.ErrQuotaNotConsumed) {
		t.Errorf("second Record error = %v, want ErrQuotaNotConsumed", err)
	}

	if err := l.Record("ghost", "B"); !errors.Is(err, errors.ErrUnknownParticipant) {
		t.Errorf("Record for unknown sender error = %v, want ErrUnknownParticipant", err)
	}

	if got := l.Log("A"); len(got) != 1 || got[0] != "B" {
		t.Errorf("Log() = %v, want [B]", got)
	}
}

// A invites B, C, D in order: the first two succeed, the third is refused.
func TestInvite_ThirdInvitationRefused(t *testing.T) {
	l := New(MaxPrivateChats, nil)
	l.Initialize([]string{"A", "B", "C", "D"})

	results := []bool{l.Invite("A", "B"), l.Invite("A", "C"), l.Invite("A", "D")}
	want := []bool{true, true, false}
	for i := range want {
		if results[i] != want[i] {
			t.Errorf("Invite #%d = %v, want %v", i+1, results[i], want[i])
		}
	}

	if got := l.Remaining("A"); got != 0 {
		t.Errorf("Remaining(A) = %d, want 0", got)
	}
	log := l.Log("A")
	if len(log) != 2 || log[0] != "B" || log[1] != "C" {
		t.Errorf("Log(A) = %v, want [B C]", log)
	}
	if got := l.Remaining("B"); got != 2 {
		t.Errorf("Remaining(B) = %d, want 2 (receiving does not cost quota)", got)
	}
}

func TestInvite_SelfPermitted(t *testing.T) {
	l := New(MaxPrivateChats, nil)
	l.Initialize([]string{"A"})

	if !l.Invite("A", "A") {
		t.Error("ledger should permit self-invitation")
	}
}

func TestLogReturnsCopy(t *testing.T) {
	l := New(MaxPrivateChats, nil)
	l.Initialize([]string{"A"})
	l.Invite("A", "B")

	log := l.Log("A")
	log[0] = "mutated"

	if got := l.Log("A"); got[0] != "B" {
		t.Errorf("Log() was mutated through returned slice: %v", got)
	}
}

func TestResetForNewRound(t *testing.T) {
	l := New(MaxPrivateChats, nil)
	ids := []string{"A", "B"}
	l.Initialize(ids)
	l.Invite("A", "B")
	l.Invite("A", "B")

	l.ResetForNewRound(ids)

	if got := l.Remaining("A"); got != 2 {
		t.Errorf("Remaining(A) after reset = %d, want 2", got)
	}
	if got := l.Log("A"); len(got) != 0 {
		t.Errorf("Log(A) after reset = %v, want empty", got)
	}
}

func TestTryConsume_Linearizable(t *testing.T) {
	l := New(MaxPrivateChats, nil)
	l.Initialize([]string{"A"})

	var successes atomic.Int32
	var wg sync.WaitGroup
	for range 200 {
		wg.Go(func() {
			if l.TryConsume("A") {
				successes.Add(1)
			}
		})
	}
	wg.Wait()

	if got := successes.Load(); got != MaxPrivateChats {
		t.Errorf("concurrent TryConsume successes = %d, want %d", got, MaxPrivateChats)
	}
	if got := l.Remaining("A"); got != 0 {
		t.Errorf("Remaining(A) = %d, want 0", got)
	}
}

func TestInvite_ConcurrentKeepsBalance(t *testing.T) {
	l := New(MaxPrivateChats, nil)
	ids := []string{"A", "B", "C"}
	l.Initialize(ids)

	var wg sync.WaitGroup
	for range 20 {
		for _, sender := range ids {
			wg.Go(func() {
				l.Invite(sender, "X")
			})
		}
	}
	wg.Wait()

	for _, e := range l.Snapshot() {
		if e.Remaining < 0 || e.Remaining > MaxPrivateChats {
			t.Errorf("%s: Remaining = %d out of bounds", e.ParticipantID, e.Remaining)
		}
		if e.Remaining+len(e.Invited) != MaxPrivateChats {
			t.Errorf("%s: remaining %d + invited %d != %d", e.ParticipantID, e.Remaining, len(e.Invited), MaxPrivateChats)
		}
	}
}

func TestSnapshotSorted(t *testing.T) {
	l := New(1, nil)
	l.Initialize([]string{"c", "a", "b"})

	snap := l.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("Snapshot() len = %d, want 3", len(snap))
	}
	for i, want := range []string{"a", "b", "c"} {
		if snap[i].ParticipantID != want {
			t.Errorf("Snapshot()[%d] = %q, want %q", i, snap[i].ParticipantID, want)
		}
	}
}

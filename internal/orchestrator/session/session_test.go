package session

import (
	"sync"
	"testing"
	"time"

	"github.com/roundtable-games/roundtable/internal/errors"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name      string
		gameID    string
		ids       []string
		moderator string
		wantErr   bool
	}{
		{"valid", "g", []string{"a", "b"}, "dm", false},
		{"no participants", "g", nil, "dm", false},
		{"empty game id", "", []string{"a"}, "dm", true},
		{"empty participant", "g", []string{"a", ""}, "dm", true},
		{"duplicate participant", "g", []string{"a", "a"}, "dm", true},
		{"moderator participates", "g", []string{"a", "dm"}, "dm", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.gameID, tt.ids, tt.moderator)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errors.ErrInvalidInput) {
				t.Errorf("New() error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestParticipantIDsIsCopy(t *testing.T) {
	ids := []string{"a", "b"}
	s, err := New("g", ids, "dm")
	if err != nil {
		t.Fatal(err)
	}
	ids[0] = "changed"
	got := s.ParticipantIDs()
	got[1] = "changed"

	if again := s.ParticipantIDs(); again[0] != "a" || again[1] != "b" {
		t.Errorf("ParticipantIDs() = %v, want [a b]", again)
	}
	if !s.HasParticipant("a") || s.HasParticipant("dm") {
		t.Error("HasParticipant() returned unexpected results")
	}
}

func TestSubmitAnswer(t *testing.T) {
	s, _ := New("g", []string{"a", "b"}, "dm")

	if err := s.SubmitAnswer("a", "the butler"); err != nil {
		t.Fatalf("SubmitAnswer() error = %v", err)
	}
	if err := s.SubmitAnswer("a", "the gardener"); err != nil {
		t.Fatalf("SubmitAnswer() error = %v", err)
	}
	if got, _ := s.Answer("a"); got != "the gardener" {
		t.Errorf("Answer(a) = %q, want last write", got)
	}

	if err := s.SubmitAnswer("zoe", "x"); !errors.Is(err, errors.ErrUnknownParticipant) {
		t.Errorf("SubmitAnswer(unknown) error = %v, want ErrUnknownParticipant", err)
	}

	answers := s.Answers()
	answers["b"] = "injected"
	if _, ok := s.Answer("b"); ok {
		t.Error("Answers() must return a copy")
	}
}

func TestMarkCompleted_Once(t *testing.T) {
	s, _ := New("g", []string{"a"}, "dm")
	s.MarkStarted(time.Now())

	select {
	case <-s.Done():
		t.Fatal("Done() closed before completion")
	default:
	}

	end := time.Now()
	var wg sync.WaitGroup
	var mu sync.Mutex
	firsts := 0
	for range 20 {
		wg.Go(func() {
			if s.MarkCompleted(end) {
				mu.Lock()
				firsts++
				mu.Unlock()
			}
		})
	}
	wg.Wait()

	if firsts != 1 {
		t.Errorf("MarkCompleted returned true %d times, want 1", firsts)
	}
	if !s.Completed() {
		t.Error("Completed() = false after MarkCompleted")
	}
	select {
	case <-s.Done():
	default:
		t.Error("Done() not closed after completion")
	}
	if !s.EndTime().Equal(end) {
		t.Errorf("EndTime() = %v, want %v", s.EndTime(), end)
	}

	if err := s.SubmitAnswer("a", "late"); !errors.Is(err, errors.ErrSessionEnded) {
		t.Errorf("SubmitAnswer after completion error = %v, want ErrSessionEnded", err)
	}
}

func TestSummary(t *testing.T) {
	s, _ := New("g", []string{"a", "b", "c"}, "dm")
	start := time.Now().Add(-time.Minute)
	s.MarkStarted(start)
	if s.MarkStarted(time.Now()) {
		t.Error("second MarkStarted should be ignored")
	}
	s.SetRound(2)
	s.SetRound(1)
	_ = s.SubmitAnswer("c", "x")
	_ = s.SubmitAnswer("a", "y")
	s.MarkCompleted(start.Add(30 * time.Second))

	sum := s.Summary()
	if sum.GameID != "g" || sum.ModeratorID != "dm" || !sum.Completed {
		t.Errorf("unexpected summary: %+v", sum)
	}
	if sum.Rounds != 2 {
		t.Errorf("Rounds = %d, want 2", sum.Rounds)
	}
	if sum.Duration() != 30*time.Second {
		t.Errorf("Duration() = %v, want 30s", sum.Duration())
	}
	if missing := sum.Missing(); len(missing) != 1 || missing[0] != "b" {
		t.Errorf("Missing() = %v, want [b]", missing)
	}
	if ids := sum.SortedAnswerIDs(); len(ids) != 2 || ids[0] != "a" || ids[1] != "c" {
		t.Errorf("SortedAnswerIDs() = %v, want [a c]", ids)
	}
}
